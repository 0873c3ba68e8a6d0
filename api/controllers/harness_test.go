package controllers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/miravo-storefront/api/middleware"
	"github.com/angelmondragon/miravo-storefront/internal/auth"
	"github.com/angelmondragon/miravo-storefront/internal/cart"
	"github.com/angelmondragon/miravo-storefront/internal/identity"
	"github.com/angelmondragon/miravo-storefront/internal/storage"
	"github.com/angelmondragon/miravo-storefront/internal/storefront"
	"github.com/angelmondragon/miravo-storefront/pkg/config"
	"github.com/angelmondragon/miravo-storefront/pkg/db/models"
)

const testPassword = "Sup3r$ecret"

// stubProvider is an in-memory auth provider keyed by email.
type stubProvider struct {
	mu        sync.Mutex
	emitter   *auth.Emitter
	session   *auth.Session
	passwords map[string]string
	confirm   bool
	recovered []string
	updates   []auth.UserUpdate
}

func newStubProvider() *stubProvider {
	return &stubProvider{emitter: auth.NewEmitter(), passwords: map[string]string{}}
}

func (p *stubProvider) sessionFor(email string) *auth.Session {
	return &auth.Session{
		AccessToken:  "access-" + email,
		RefreshToken: "refresh-" + email,
		User:         auth.User{ID: "u-" + email, Email: email},
	}
}

func (p *stubProvider) SignUp(_ context.Context, params auth.SignUpParams) (auth.User, *auth.Session, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.passwords[params.Email]; ok {
		return auth.User{}, nil, &auth.Error{Status: http.StatusUnprocessableEntity, Message: "User already registered"}
	}
	p.passwords[params.Email] = params.Password
	user := auth.User{ID: "u-" + params.Email, Email: params.Email, UserMetadata: map[string]any{"full_name": params.FullName}}
	if p.confirm {
		return user, nil, nil
	}
	p.session = p.sessionFor(params.Email)
	p.emitter.Emit(auth.EventSignedIn, p.session)
	return user, p.session, nil
}

func (p *stubProvider) SignIn(_ context.Context, email, password string) (*auth.Session, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.passwords[email] != password || password == "" {
		return nil, &auth.Error{Status: http.StatusBadRequest, Message: "Invalid login credentials"}
	}
	p.session = p.sessionFor(email)
	p.emitter.Emit(auth.EventSignedIn, p.session)
	return p.session, nil
}

func (p *stubProvider) SignInWithOAuth(_ context.Context, provider, redirectTo string) (string, error) {
	return "https://auth.example/authorize?provider=" + provider + "&redirect_to=" + redirectTo, nil
}

func (p *stubProvider) SignOut(context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.session = nil
	p.emitter.Emit(auth.EventSignedOut, nil)
	return nil
}

func (p *stubProvider) ResetPasswordForEmail(_ context.Context, email, redirectTo string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.recovered = append(p.recovered, email+" "+redirectTo)
	return nil
}

func (p *stubProvider) UpdateUser(_ context.Context, update auth.UserUpdate) (auth.User, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.session == nil {
		return auth.User{}, errors.New("Not authenticated")
	}
	p.updates = append(p.updates, update)
	user := p.session.User
	if update.Data != nil {
		user.UserMetadata = update.Data
	}
	p.session.User = user
	p.emitter.Emit(auth.EventUserUpdated, p.session)
	return user, nil
}

func (p *stubProvider) OnAuthStateChange(l auth.Listener) auth.Subscription {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.emitter.Subscribe(l, p.session)
}

func (p *stubProvider) GetSession(context.Context) (*auth.Session, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.session, nil
}

func (p *stubProvider) SetSession(_ context.Context, accessToken, _ string) (*auth.Session, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if accessToken != "access-oauth@example.com" {
		return nil, &auth.Error{Status: http.StatusUnauthorized, Message: "invalid JWT"}
	}
	p.session = p.sessionFor("oauth@example.com")
	p.emitter.Emit(auth.EventSignedIn, p.session)
	return p.session, nil
}

func (p *stubProvider) RefreshSession(context.Context) (*auth.Session, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.session == nil {
		return nil, &auth.Error{Status: http.StatusBadRequest, Message: "Refresh Token Not Found"}
	}
	p.emitter.Emit(auth.EventTokenRefreshed, p.session)
	return p.session, nil
}

type stubCheckout struct {
	err error
}

func (c stubCheckout) CreateCheckout(context.Context, []cart.LineItem) (cart.Checkout, error) {
	if c.err != nil {
		return cart.Checkout{}, c.err
	}
	return cart.Checkout{CartID: "gid://shopify/Cart/1", URL: "https://miravo.example/checkouts/1"}, nil
}

type stubProfiles struct {
	mu       sync.Mutex
	profiles map[string]*models.Profile
}

func newStubProfiles() *stubProfiles {
	return &stubProfiles{profiles: map[string]*models.Profile{}}
}

func (s *stubProfiles) Get(_ context.Context, userID string) (*models.Profile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.profiles[userID], nil
}

func (s *stubProfiles) put(p *models.Profile) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.profiles[p.UserID] = p
}

// env wires a registry with one runtime per test.
type env struct {
	t        *testing.T
	provider *stubProvider
	profiles *stubProfiles
	client   *storefront.Client
}

func newEnv(t *testing.T, checkout cart.CheckoutCreator) *env {
	t.Helper()
	if checkout == nil {
		checkout = stubCheckout{}
	}
	provider := newStubProvider()
	profiles := newStubProfiles()
	var seq atomic.Int64
	reg, err := storefront.NewRegistry(storefront.RegistryParams{
		Config:   config.StorefrontConfig{ClientCacheSize: 8, DispatchQueueSize: 8},
		Backend:  storage.NewMemoryBackend(),
		Checkout: checkout,
		Profiles: profiles,
		Providers: func(context.Context, storage.Store) (auth.Provider, error) {
			return provider, nil
		},
		Guests: identity.GeneratorFunc(func() string {
			return fmt.Sprintf("guest_%d", seq.Add(1))
		}),
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = reg.Close(context.Background()) })

	client, err := reg.Client(context.Background(), "device-1", "tab-1")
	require.NoError(t, err)
	return &env{t: t, provider: provider, profiles: profiles, client: client}
}

// do serves one request through a chi router so URL params resolve.
func (e *env) do(method, pattern, target string, body any, h http.HandlerFunc) *httptest.ResponseRecorder {
	e.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		switch v := body.(type) {
		case string:
			buf.WriteString(v)
		default:
			require.NoError(e.t, json.NewEncoder(&buf).Encode(v))
		}
	}
	req := httptest.NewRequest(method, target, &buf)
	req = req.WithContext(middleware.WithClient(req.Context(), e.client))

	router := chi.NewRouter()
	router.Method(method, pattern, h)
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)
	return resp
}

func decodeData(t *testing.T, resp *httptest.ResponseRecorder, dest any) {
	t.Helper()
	var envelope struct {
		Data json.RawMessage `json:"data"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&envelope))
	require.NoError(t, json.Unmarshal(envelope.Data, dest))
}

func decodeErrorCode(t *testing.T, resp *httptest.ResponseRecorder) string {
	t.Helper()
	var envelope struct {
		Error struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&envelope))
	return envelope.Error.Code
}
