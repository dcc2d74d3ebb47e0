// Package auth describes the signed-in identity the sync engine acts for.
package auth

// Session identifies an authenticated user.
type Session struct {
	UID         string
	PhoneNumber string
}

// Provider reports the current session, or nil when signed out.
type Provider interface {
	Current() *Session
}

// StaticProvider is a Provider with a fixed session, set from config or
// the command line.
type StaticProvider struct {
	Session *Session
}

func (p *StaticProvider) Current() *Session { return p.Session }
