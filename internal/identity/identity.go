// Package identity exposes the current-user collaborator consumed by the
// pipeline. Session management itself lives outside this service.
package identity

import "strings"

// User identifies a signed-in user.
type User struct {
	ID    string `json:"id"`
	Email string `json:"email"`
}

// Provider reports the current user, if any.
type Provider interface {
	// CurrentUser returns the signed-in user and true, or a zero User and
	// false when the session is anonymous.
	CurrentUser() (User, bool)
}

// StaticProvider serves a fixed user resolved at startup, typically from
// configuration. An empty ID means anonymous.
type StaticProvider struct {
	user User
}

func NewStaticProvider(id, email string) *StaticProvider {
	return &StaticProvider{user: User{ID: strings.TrimSpace(id), Email: strings.TrimSpace(email)}}
}

func (p *StaticProvider) CurrentUser() (User, bool) {
	if p == nil || p.user.ID == "" {
		return User{}, false
	}
	return p.user, true
}
