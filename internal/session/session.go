// Package session exposes the minimal auth/session contract the data layer
// reads. Token management itself lives outside this module.
package session

// Provider reports the current authentication state.
type Provider interface {
	// IsAuthenticated reports whether a user is signed in.
	IsAuthenticated() bool

	// CurrentUserID returns the stable user identifier, or "" when signed out.
	CurrentUserID() string
}

// Static is a fixed-value Provider, handy for wiring and tests.
type Static struct {
	Authenticated bool
	UserID        string
}

func (s Static) IsAuthenticated() bool { return s.Authenticated }
func (s Static) CurrentUserID() string { return s.UserID }
