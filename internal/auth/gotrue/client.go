// Package gotrue implements auth.Provider against the Supabase GoTrue REST API.
package gotrue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/angelmondragon/miravo-storefront/internal/auth"
	"github.com/angelmondragon/miravo-storefront/internal/storage"
	"github.com/angelmondragon/miravo-storefront/pkg/config"
	pkgerrors "github.com/angelmondragon/miravo-storefront/pkg/errors"
	"github.com/angelmondragon/miravo-storefront/pkg/httpclient"
	"github.com/angelmondragon/miravo-storefront/pkg/logger"
)

// refreshSkew refreshes tokens slightly ahead of expiry.
const refreshSkew = 30 * time.Second

type Params struct {
	Config config.SupabaseConfig
	HTTP   *httpclient.Client
	// Local is the device partition; the session is shared by every tab on it.
	Local  storage.Store
	Logger *logger.Logger
	Now    func() time.Time
}

type Client struct {
	base     string
	anonKey  string
	verifier verifier
	http     *httpclient.Client
	local    storage.Store
	logg     *logger.Logger
	now      func() time.Time
	emitter  *auth.Emitter

	mu      sync.Mutex
	session *auth.Session

	refreshMu sync.Mutex
}

var _ auth.Provider = (*Client)(nil)

// New restores any session persisted for the device.
func New(ctx context.Context, p Params) (*Client, error) {
	if p.HTTP == nil || p.Local == nil {
		return nil, fmt.Errorf("gotrue: http client and local storage required")
	}
	if strings.TrimSpace(p.Config.URL) == "" {
		return nil, fmt.Errorf("gotrue: supabase url required")
	}
	c := &Client{
		base:    strings.TrimSuffix(p.Config.URL, "/") + "/auth/v1",
		anonKey: p.Config.AnonKey,
		http:    p.HTTP,
		local:   p.Local,
		logg:    p.Logger,
		now:     p.Now,
		emitter: auth.NewEmitter(),
	}
	if c.logg == nil {
		c.logg = logger.Nop()
	}
	if c.now == nil {
		c.now = time.Now
	}
	c.verifier = verifier{secret: []byte(p.Config.JWTSecret), now: c.now}

	session, err := c.restore(ctx)
	if err != nil {
		return nil, err
	}
	c.session = session
	return c, nil
}

// OnAuthStateChange registers l and delivers INITIAL_SESSION right away.
func (c *Client) OnAuthStateChange(l auth.Listener) auth.Subscription {
	return c.emitter.Subscribe(l, c.current())
}

func (c *Client) SignUp(ctx context.Context, p auth.SignUpParams) (auth.User, *auth.Session, error) {
	body := map[string]any{
		"email":    p.Email,
		"password": p.Password,
		"data":     map[string]any{"full_name": p.FullName},
	}
	var resp signUpResponse
	if err := c.call(ctx, http.MethodPost, "/signup", redirectQuery(p.RedirectTo), "", body, &resp); err != nil {
		return auth.User{}, nil, err
	}
	if resp.AccessToken == "" {
		return resp.user(), nil, nil
	}
	session, err := c.accept(&resp.Session)
	if err != nil {
		return auth.User{}, nil, err
	}
	c.emitter.Emit(auth.EventSignedIn, session)
	return session.User, session, nil
}

func (c *Client) SignIn(ctx context.Context, email, password string) (*auth.Session, error) {
	query := url.Values{"grant_type": {"password"}}
	var session auth.Session
	if err := c.call(ctx, http.MethodPost, "/token", query, "", map[string]string{"email": email, "password": password}, &session); err != nil {
		return nil, err
	}
	accepted, err := c.accept(&session)
	if err != nil {
		return nil, err
	}
	c.emitter.Emit(auth.EventSignedIn, accepted)
	return accepted, nil
}

// SignInWithOAuth builds the authorize URL; the browser completes the flow
// and comes back through SetSession.
func (c *Client) SignInWithOAuth(_ context.Context, provider, redirectTo string) (string, error) {
	provider = strings.TrimSpace(provider)
	if provider == "" {
		return "", pkgerrors.New(pkgerrors.CodeValidation, "oauth provider is required")
	}
	query := url.Values{"provider": {provider}}
	if redirectTo != "" {
		query.Set("redirect_to", redirectTo)
	}
	if provider == "google" {
		query.Set("access_type", "offline")
		query.Set("prompt", "consent")
	}
	return c.base + "/authorize?" + query.Encode(), nil
}

// SignOut revokes the session upstream and always clears it locally.
func (c *Client) SignOut(ctx context.Context) error {
	current := c.current()
	var upstreamErr error
	if current != nil {
		upstreamErr = c.call(ctx, http.MethodPost, "/logout", nil, current.AccessToken, nil, nil)
		var providerErr *auth.Error
		if errors.As(upstreamErr, &providerErr) {
			// The token is already gone upstream.
			upstreamErr = nil
		}
	}
	c.clear(ctx)
	c.emitter.Emit(auth.EventSignedOut, nil)
	return upstreamErr
}

func (c *Client) ResetPasswordForEmail(ctx context.Context, email, redirectTo string) error {
	return c.call(ctx, http.MethodPost, "/recover", redirectQuery(redirectTo), "", map[string]string{"email": email}, nil)
}

func (c *Client) UpdateUser(ctx context.Context, update auth.UserUpdate) (auth.User, error) {
	current := c.current()
	if current == nil {
		return auth.User{}, pkgerrors.New(pkgerrors.CodeUnauthorized, "Not authenticated")
	}
	body := map[string]any{}
	if update.Password != "" {
		body["password"] = update.Password
	}
	if len(update.Data) > 0 {
		body["data"] = update.Data
	}
	var user auth.User
	if err := c.call(ctx, http.MethodPut, "/user", nil, current.AccessToken, body, &user); err != nil {
		return auth.User{}, err
	}

	next := *current
	next.User = user
	c.store(ctx, &next)
	c.emitter.Emit(auth.EventUserUpdated, &next)
	return user, nil
}

// GetSession returns the current session, refreshing it when it is about to
// expire. A session the provider no longer honors is dropped and nil returned.
func (c *Client) GetSession(ctx context.Context) (*auth.Session, error) {
	current := c.current()
	if current == nil || !current.Expired(c.now(), refreshSkew) {
		return current, nil
	}
	if current.RefreshToken == "" {
		c.drop(ctx)
		return nil, nil
	}
	refreshed, err := c.RefreshSession(ctx)
	var providerErr *auth.Error
	if errors.As(err, &providerErr) {
		c.drop(ctx)
		return nil, nil
	}
	return refreshed, err
}

// SetSession adopts tokens returned by an OAuth or recovery redirect.
func (c *Client) SetSession(ctx context.Context, accessToken, refreshToken string) (*auth.Session, error) {
	claims, err := c.verifier.verify(accessToken)
	if err != nil && !isExpired(err) {
		return nil, pkgerrors.Wrap(pkgerrors.CodeUnauthorized, err, "invalid access token")
	}
	if isExpired(err) {
		session, err := c.refresh(ctx, refreshToken)
		if err != nil {
			return nil, err
		}
		c.emitter.Emit(auth.EventSignedIn, session)
		return session, nil
	}

	var user auth.User
	if err := c.call(ctx, http.MethodGet, "/user", nil, accessToken, nil, &user); err != nil {
		return nil, err
	}
	session := &auth.Session{
		AccessToken:  accessToken,
		TokenType:    "bearer",
		RefreshToken: refreshToken,
		User:         user,
	}
	if claims.ExpiresAt != nil {
		session.ExpiresAt = claims.ExpiresAt.Unix()
		session.ExpiresIn = int64(claims.ExpiresAt.Time.Sub(c.now()).Seconds())
	}
	c.store(ctx, session)
	c.emitter.Emit(auth.EventSignedIn, session)
	return session, nil
}

func (c *Client) RefreshSession(ctx context.Context) (*auth.Session, error) {
	current := c.current()
	if current == nil || current.RefreshToken == "" {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "Auth session missing")
	}
	session, err := c.refresh(ctx, current.RefreshToken)
	if err != nil {
		return nil, err
	}
	c.emitter.Emit(auth.EventTokenRefreshed, session)
	return session, nil
}

func (c *Client) refresh(ctx context.Context, refreshToken string) (*auth.Session, error) {
	c.refreshMu.Lock()
	defer c.refreshMu.Unlock()

	query := url.Values{"grant_type": {"refresh_token"}}
	var session auth.Session
	if err := c.call(ctx, http.MethodPost, "/token", query, "", map[string]string{"refresh_token": refreshToken}, &session); err != nil {
		return nil, err
	}
	return c.accept(&session)
}

// accept verifies a freshly issued session and makes it current.
func (c *Client) accept(session *auth.Session) (*auth.Session, error) {
	if _, err := c.verifier.verify(session.AccessToken); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeUnauthorized, err, "invalid access token")
	}
	if session.ExpiresAt == 0 && session.ExpiresIn > 0 {
		session.ExpiresAt = c.now().Add(time.Duration(session.ExpiresIn) * time.Second).Unix()
	}
	c.store(context.Background(), session)
	return session, nil
}

func (c *Client) current() *auth.Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.session
}

func (c *Client) store(ctx context.Context, session *auth.Session) {
	c.mu.Lock()
	c.session = session
	c.mu.Unlock()

	raw, err := json.Marshal(session)
	if err != nil {
		c.logg.Error(ctx, "auth.session.encode_failed", err)
		return
	}
	if err := c.local.Set(ctx, storage.KeyAuthToken, string(raw)); err != nil {
		c.logg.Error(ctx, "auth.session.persist_failed", err)
	}
}

func (c *Client) clear(ctx context.Context) {
	c.mu.Lock()
	c.session = nil
	c.mu.Unlock()
	if err := c.local.Delete(ctx, storage.KeyAuthToken); err != nil {
		c.logg.Error(ctx, "auth.session.delete_failed", err)
	}
}

// drop forgets a session the provider rejected and tells listeners.
func (c *Client) drop(ctx context.Context) {
	c.clear(ctx)
	c.emitter.Emit(auth.EventSignedOut, nil)
}

// restore loads the persisted session. Undecodable or forged records are
// discarded; expired ones are kept for GetSession to refresh.
func (c *Client) restore(ctx context.Context) (*auth.Session, error) {
	raw, ok, err := c.local.Get(ctx, storage.KeyAuthToken)
	if err != nil {
		return nil, fmt.Errorf("gotrue: load session: %w", err)
	}
	if !ok {
		return nil, nil
	}
	var session auth.Session
	if err := json.Unmarshal([]byte(raw), &session); err != nil || session.AccessToken == "" {
		c.clear(ctx)
		return nil, nil
	}
	if _, err := c.verifier.verify(session.AccessToken); err != nil && !isExpired(err) {
		c.logg.Warn(ctx, "auth.session.discarded")
		c.clear(ctx)
		return nil, nil
	}
	return &session, nil
}

func redirectQuery(redirectTo string) url.Values {
	if redirectTo == "" {
		return nil
	}
	return url.Values{"redirect_to": {redirectTo}}
}
