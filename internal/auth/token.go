// Package auth verifies bearer tokens minted by the identity provider and
// decides admin access.
package auth

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/Pablito-AI/playmark-mvp/internal/domain"
)

// TokenVerifier checks HMAC-SHA256 signed bearer tokens. A token is
// base64url(userID|email|expiryUnix) + "." + base64url(signature).
type TokenVerifier struct {
	secret []byte
}

// NewTokenVerifier creates a TokenVerifier with the shared signing secret.
func NewTokenVerifier(secret string) *TokenVerifier {
	return &TokenVerifier{secret: []byte(secret)}
}

// Sign mints a token for the identity, valid until expiry. Used by tests and
// by the local dev login endpoint.
func (v *TokenVerifier) Sign(id domain.Identity, expiry time.Time) string {
	payload := base64.RawURLEncoding.EncodeToString(
		[]byte(id.UserID + "|" + id.Email + "|" + strconv.FormatInt(expiry.Unix(), 10)))
	return payload + "." + v.signature(payload)
}

// Verify checks the token's signature and expiry and returns the embedded
// identity.
func (v *TokenVerifier) Verify(token string) (domain.Identity, error) {
	payload, sig, ok := strings.Cut(token, ".")
	if !ok {
		return domain.Identity{}, fmt.Errorf("auth: malformed token: %w", domain.ErrUnauthorized)
	}
	if !hmac.Equal([]byte(sig), []byte(v.signature(payload))) {
		return domain.Identity{}, fmt.Errorf("auth: bad signature: %w", domain.ErrUnauthorized)
	}

	raw, err := base64.RawURLEncoding.DecodeString(payload)
	if err != nil {
		return domain.Identity{}, fmt.Errorf("auth: bad payload encoding: %w", domain.ErrUnauthorized)
	}
	parts := strings.Split(string(raw), "|")
	if len(parts) != 3 || parts[0] == "" || parts[1] == "" {
		return domain.Identity{}, fmt.Errorf("auth: bad payload: %w", domain.ErrUnauthorized)
	}
	expiry, err := strconv.ParseInt(parts[2], 10, 64)
	if err != nil {
		return domain.Identity{}, fmt.Errorf("auth: bad expiry: %w", domain.ErrUnauthorized)
	}
	if time.Now().Unix() >= expiry {
		return domain.Identity{}, fmt.Errorf("auth: token expired: %w", domain.ErrUnauthorized)
	}

	return domain.Identity{UserID: parts[0], Email: parts[1]}, nil
}

func (v *TokenVerifier) signature(payload string) string {
	mac := hmac.New(sha256.New, v.secret)
	mac.Write([]byte(payload))
	return base64.RawURLEncoding.EncodeToString(mac.Sum(nil))
}
