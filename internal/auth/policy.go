package auth

import "strings"

// EmailPolicy grants admin access to a fixed list of email addresses,
// compared case-insensitively.
type EmailPolicy struct {
	emails map[string]bool
}

// NewEmailPolicy creates an EmailPolicy from a list of admin emails. Blank
// entries are ignored.
func NewEmailPolicy(emails []string) *EmailPolicy {
	p := &EmailPolicy{emails: make(map[string]bool, len(emails))}
	for _, e := range emails {
		e = strings.ToLower(strings.TrimSpace(e))
		if e != "" {
			p.emails[e] = true
		}
	}
	return p
}

// IsAdmin reports whether the email is on the admin list.
func (p *EmailPolicy) IsAdmin(email string) bool {
	return p.emails[strings.ToLower(strings.TrimSpace(email))]
}
