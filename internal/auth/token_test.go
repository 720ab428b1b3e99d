package auth

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Pablito-AI/playmark-mvp/internal/domain"
)

func TestTokenRoundTrip(t *testing.T) {
	v := NewTokenVerifier("test-secret")
	id := domain.Identity{UserID: "user-1", Email: "user@example.com"}

	token := v.Sign(id, time.Now().Add(time.Hour))
	got, err := v.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, id, got)
}

func TestTokenExpired(t *testing.T) {
	v := NewTokenVerifier("test-secret")
	id := domain.Identity{UserID: "user-1", Email: "user@example.com"}

	token := v.Sign(id, time.Now().Add(-time.Second))
	_, err := v.Verify(token)
	assert.ErrorIs(t, err, domain.ErrUnauthorized)
}

func TestTokenWrongSecret(t *testing.T) {
	id := domain.Identity{UserID: "user-1", Email: "user@example.com"}
	token := NewTokenVerifier("secret-a").Sign(id, time.Now().Add(time.Hour))

	_, err := NewTokenVerifier("secret-b").Verify(token)
	assert.ErrorIs(t, err, domain.ErrUnauthorized)
}

func TestTokenTampered(t *testing.T) {
	v := NewTokenVerifier("test-secret")
	id := domain.Identity{UserID: "user-1", Email: "user@example.com"}
	token := v.Sign(id, time.Now().Add(time.Hour))

	// Flip a character in the payload without re-signing.
	payload, sig, _ := strings.Cut(token, ".")
	tampered := payload[:len(payload)-1] + "A" + "." + sig
	if tampered == token {
		tampered = payload[:len(payload)-1] + "B" + "." + sig
	}

	_, err := v.Verify(tampered)
	assert.ErrorIs(t, err, domain.ErrUnauthorized)
}

func TestTokenMalformed(t *testing.T) {
	v := NewTokenVerifier("test-secret")
	for _, token := range []string{"", "no-dot", "not-base64!!.sig", "a.b.c"} {
		_, err := v.Verify(token)
		assert.ErrorIs(t, err, domain.ErrUnauthorized, token)
	}
}

func TestEmailPolicy(t *testing.T) {
	p := NewEmailPolicy([]string{"Admin@Example.com", "  ", "ops@example.com"})

	assert.True(t, p.IsAdmin("admin@example.com"))
	assert.True(t, p.IsAdmin("ADMIN@EXAMPLE.COM"))
	assert.True(t, p.IsAdmin(" ops@example.com "))
	assert.False(t, p.IsAdmin("user@example.com"))
	assert.False(t, p.IsAdmin(""))
}
