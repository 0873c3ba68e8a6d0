// Package auth defines the auth provider contract the storefront runs on:
// sessions, state-change events and the error vocabulary shown to shoppers.
package auth

import (
	"context"
	"time"
)

type Event string

const (
	EventInitialSession   Event = "INITIAL_SESSION"
	EventSignedIn         Event = "SIGNED_IN"
	EventSignedOut        Event = "SIGNED_OUT"
	EventTokenRefreshed   Event = "TOKEN_REFRESHED"
	EventUserUpdated      Event = "USER_UPDATED"
	EventPasswordRecovery Event = "PASSWORD_RECOVERY"
)

type User struct {
	ID           string         `json:"id"`
	Email        string         `json:"email"`
	UserMetadata map[string]any `json:"user_metadata,omitempty"`
	CreatedAt    time.Time      `json:"created_at"`
}

// FullName reads the full_name recorded at sign-up.
func (u User) FullName() string {
	name, _ := u.UserMetadata["full_name"].(string)
	return name
}

type Session struct {
	AccessToken  string `json:"access_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int64  `json:"expires_in"`
	ExpiresAt    int64  `json:"expires_at"`
	RefreshToken string `json:"refresh_token"`
	User         User   `json:"user"`
}

// Expired reports whether the access token is past, or within skew of, its expiry.
func (s *Session) Expired(now time.Time, skew time.Duration) bool {
	if s == nil || s.ExpiresAt == 0 {
		return false
	}
	return !now.Add(skew).Before(time.Unix(s.ExpiresAt, 0))
}

// Listener receives state changes. A nil session means signed out.
// Listeners run while the provider holds its emitter lock and must not call
// back into the provider.
type Listener func(event Event, session *Session)

type Subscription interface {
	Unsubscribe()
}

type SignUpParams struct {
	Email      string
	Password   string
	FullName   string
	RedirectTo string
}

// UserUpdate changes the signed-in user. Empty fields are not sent.
type UserUpdate struct {
	Password string
	Data     map[string]any
}

// Provider is the hosted auth service.
type Provider interface {
	// SignUp returns the created user and, when email confirmation is off, a session.
	SignUp(ctx context.Context, params SignUpParams) (User, *Session, error)
	SignIn(ctx context.Context, email, password string) (*Session, error)
	// SignInWithOAuth returns the provider authorize URL to redirect to.
	SignInWithOAuth(ctx context.Context, provider, redirectTo string) (string, error)
	SignOut(ctx context.Context) error
	ResetPasswordForEmail(ctx context.Context, email, redirectTo string) error
	UpdateUser(ctx context.Context, update UserUpdate) (User, error)
	OnAuthStateChange(listener Listener) Subscription
	GetSession(ctx context.Context) (*Session, error)
	// SetSession restores a session from tokens handed back by a redirect flow.
	SetSession(ctx context.Context, accessToken, refreshToken string) (*Session, error)
	RefreshSession(ctx context.Context) (*Session, error)
}
