package gotrue

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/miravo-storefront/internal/auth"
	"github.com/angelmondragon/miravo-storefront/internal/storage"
	"github.com/angelmondragon/miravo-storefront/pkg/config"
	"github.com/angelmondragon/miravo-storefront/pkg/httpclient"
)

const (
	testSecret  = "super-secret-jwt-token-with-at-least-32-characters"
	testAnonKey = "anon-key"
	testUserID  = "8c1f0c7e-4a1d-4d5e-9f3b-2f6a1c9d0e11"
)

type fakeGoTrue struct {
	t      *testing.T
	mu     sync.Mutex
	calls  []string
	issued int
}

func (f *fakeGoTrue) token(exp time.Time) string {
	f.issued++
	claims := jwt.RegisteredClaims{
		Subject:   testUserID,
		ExpiresAt: jwt.NewNumericDate(exp),
		ID:        strings.Repeat("x", f.issued),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testSecret))
	require.NoError(f.t, err)
	return signed
}

func (f *fakeGoTrue) session() map[string]any {
	return map[string]any{
		"access_token":  f.token(time.Now().Add(time.Hour)),
		"token_type":    "bearer",
		"expires_in":    3600,
		"refresh_token": "refresh-" + strings.Repeat("r", f.issued),
		"user":          f.user(),
	}
}

func (f *fakeGoTrue) user() map[string]any {
	return map[string]any{
		"id":            testUserID,
		"email":         "asha@example.com",
		"user_metadata": map[string]any{"full_name": "Asha Rao"},
	}
}

func (f *fakeGoTrue) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, r.Method+" "+r.URL.Path+"?"+r.URL.RawQuery)

	if r.Header.Get("apikey") != testAnonKey {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"message":"No API key found in request"}`))
		return
	}

	var body map[string]any
	_ = json.NewDecoder(r.Body).Decode(&body)
	w.Header().Set("Content-Type", "application/json")

	switch r.URL.Path {
	case "/auth/v1/token":
		switch r.URL.Query().Get("grant_type") {
		case "password":
			if body["password"] != "Miravo#2026" {
				w.WriteHeader(http.StatusBadRequest)
				_, _ = w.Write([]byte(`{"error":"invalid_grant","error_description":"Invalid login credentials"}`))
				return
			}
		case "refresh_token":
			if body["refresh_token"] == "revoked" {
				w.WriteHeader(http.StatusBadRequest)
				_, _ = w.Write([]byte(`{"code":400,"error_code":"refresh_token_not_found","msg":"Invalid Refresh Token: Refresh Token Not Found"}`))
				return
			}
		}
		_ = json.NewEncoder(w).Encode(f.session())
	case "/auth/v1/signup":
		_ = json.NewEncoder(w).Encode(f.user())
	case "/auth/v1/logout":
		w.WriteHeader(http.StatusNoContent)
	case "/auth/v1/recover":
		_, _ = w.Write([]byte(`{}`))
	case "/auth/v1/user":
		user := f.user()
		if data, ok := body["data"].(map[string]any); ok {
			user["user_metadata"] = data
		}
		_ = json.NewEncoder(w).Encode(user)
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func (f *fakeGoTrue) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

type recorder struct {
	mu     sync.Mutex
	events []auth.Event
	last   *auth.Session
}

func (r *recorder) listen(event auth.Event, session *auth.Session) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
	r.last = session
}

func (r *recorder) Events() []auth.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]auth.Event(nil), r.events...)
}

func newTestClient(t *testing.T, local storage.Store) (*Client, *fakeGoTrue) {
	t.Helper()
	fake := &fakeGoTrue{t: t}
	server := httptest.NewServer(fake)
	t.Cleanup(server.Close)

	httpCfg := config.HTTPClientConfig{
		Timeout:             5 * time.Second,
		RetryWaitMin:        time.Millisecond,
		RetryWaitMax:        time.Millisecond,
		BreakerTimeout:      time.Second,
		BreakerFailureRatio: 0.5,
		BreakerMinRequests:  50,
	}
	client, err := New(context.Background(), Params{
		Config: config.SupabaseConfig{URL: server.URL, AnonKey: testAnonKey, JWTSecret: testSecret},
		HTTP:   httpclient.New(httpCfg, httpclient.Options{Name: "supabase_auth"}),
		Local:  local,
	})
	require.NoError(t, err)
	return client, fake
}

func TestSignInPersistsAndRestoresSession(t *testing.T) {
	ctx := context.Background()
	local := storage.NewMemory()
	client, _ := newTestClient(t, local)

	rec := &recorder{}
	sub := client.OnAuthStateChange(rec.listen)
	defer sub.Unsubscribe()

	session, err := client.SignIn(ctx, "asha@example.com", "Miravo#2026")
	require.NoError(t, err)
	assert.Equal(t, testUserID, session.User.ID)
	assert.Equal(t, "Asha Rao", session.User.FullName())
	assert.NotZero(t, session.ExpiresAt)
	assert.Equal(t, []auth.Event{auth.EventInitialSession, auth.EventSignedIn}, rec.Events())

	_, ok, err := local.Get(ctx, storage.KeyAuthToken)
	require.NoError(t, err)
	assert.True(t, ok)

	restored, _ := newTestClient(t, local)
	again := &recorder{}
	restored.OnAuthStateChange(again.listen)
	require.NotNil(t, again.last)
	assert.Equal(t, session.AccessToken, again.last.AccessToken)
}

func TestSignInWrongPasswordReturnsProviderError(t *testing.T) {
	client, _ := newTestClient(t, storage.NewMemory())

	_, err := client.SignIn(context.Background(), "asha@example.com", "wrong")
	require.Error(t, err)

	var providerErr *auth.Error
	require.ErrorAs(t, err, &providerErr)
	assert.Equal(t, http.StatusBadRequest, providerErr.Status)
	assert.Equal(t, auth.KindInvalidCredentials, auth.Classify(err))
}

func TestRestoreDiscardsUnusableRecords(t *testing.T) {
	ctx := context.Background()

	forged, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   testUserID,
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}).SignedString([]byte("some-other-secret"))
	require.NoError(t, err)
	forgedRecord, err := json.Marshal(auth.Session{AccessToken: forged, RefreshToken: "r"})
	require.NoError(t, err)

	for name, raw := range map[string]string{
		"malformed": "{not json",
		"empty":     `{"access_token":""}`,
		"forged":    string(forgedRecord),
	} {
		t.Run(name, func(t *testing.T) {
			local := storage.NewMemory()
			require.NoError(t, local.Set(ctx, storage.KeyAuthToken, raw))

			client, _ := newTestClient(t, local)
			session, err := client.GetSession(ctx)
			require.NoError(t, err)
			assert.Nil(t, session)

			_, ok, err := local.Get(ctx, storage.KeyAuthToken)
			require.NoError(t, err)
			assert.False(t, ok)
		})
	}
}

func TestGetSessionRefreshesExpiredToken(t *testing.T) {
	ctx := context.Background()
	local := storage.NewMemory()
	seed := &fakeGoTrue{t: t}
	expired := auth.Session{
		AccessToken:  seed.token(time.Now().Add(-time.Minute)),
		ExpiresAt:    time.Now().Add(-time.Minute).Unix(),
		RefreshToken: "refresh-old",
		User:         auth.User{ID: testUserID},
	}
	raw, err := json.Marshal(expired)
	require.NoError(t, err)
	require.NoError(t, local.Set(ctx, storage.KeyAuthToken, string(raw)))

	client, fake := newTestClient(t, local)
	rec := &recorder{}
	client.OnAuthStateChange(rec.listen)

	session, err := client.GetSession(ctx)
	require.NoError(t, err)
	require.NotNil(t, session)
	assert.NotEqual(t, expired.AccessToken, session.AccessToken)
	assert.Contains(t, fake.Calls(), "POST /auth/v1/token?grant_type=refresh_token")
	assert.Equal(t, []auth.Event{auth.EventInitialSession, auth.EventTokenRefreshed}, rec.Events())
}

func TestGetSessionDropsRevokedRefreshToken(t *testing.T) {
	ctx := context.Background()
	local := storage.NewMemory()
	seed := &fakeGoTrue{t: t}
	raw, err := json.Marshal(auth.Session{
		AccessToken:  seed.token(time.Now().Add(-time.Minute)),
		ExpiresAt:    time.Now().Add(-time.Minute).Unix(),
		RefreshToken: "revoked",
	})
	require.NoError(t, err)
	require.NoError(t, local.Set(ctx, storage.KeyAuthToken, string(raw)))

	client, _ := newTestClient(t, local)
	rec := &recorder{}
	client.OnAuthStateChange(rec.listen)

	session, err := client.GetSession(ctx)
	require.NoError(t, err)
	assert.Nil(t, session)
	assert.Equal(t, []auth.Event{auth.EventInitialSession, auth.EventSignedOut}, rec.Events())
}

func TestSignOutClearsSession(t *testing.T) {
	ctx := context.Background()
	local := storage.NewMemory()
	client, fake := newTestClient(t, local)
	_, err := client.SignIn(ctx, "asha@example.com", "Miravo#2026")
	require.NoError(t, err)

	rec := &recorder{}
	client.OnAuthStateChange(rec.listen)
	require.NoError(t, client.SignOut(ctx))

	session, err := client.GetSession(ctx)
	require.NoError(t, err)
	assert.Nil(t, session)
	_, ok, err := local.Get(ctx, storage.KeyAuthToken)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Contains(t, fake.Calls(), "POST /auth/v1/logout?")
	assert.Equal(t, auth.EventSignedOut, rec.Events()[len(rec.Events())-1])
}

func TestSignUpWithoutAutoconfirmReturnsUserOnly(t *testing.T) {
	client, fake := newTestClient(t, storage.NewMemory())

	user, session, err := client.SignUp(context.Background(), auth.SignUpParams{
		Email:      "asha@example.com",
		Password:   "Miravo#2026",
		FullName:   "Asha Rao",
		RedirectTo: "https://miravo.example/",
	})
	require.NoError(t, err)
	assert.Nil(t, session)
	assert.Equal(t, testUserID, user.ID)
	assert.Contains(t, fake.Calls(), "POST /auth/v1/signup?redirect_to=https%3A%2F%2Fmiravo.example%2F")
}

func TestUpdateUserRequiresSession(t *testing.T) {
	ctx := context.Background()
	client, _ := newTestClient(t, storage.NewMemory())

	_, err := client.UpdateUser(ctx, auth.UserUpdate{Password: "Another#2026"})
	require.Error(t, err)

	_, err = client.SignIn(ctx, "asha@example.com", "Miravo#2026")
	require.NoError(t, err)

	rec := &recorder{}
	client.OnAuthStateChange(rec.listen)
	user, err := client.UpdateUser(ctx, auth.UserUpdate{Data: map[string]any{"full_name": "Asha R."}})
	require.NoError(t, err)
	assert.Equal(t, "Asha R.", user.FullName())
	assert.Equal(t, auth.EventUserUpdated, rec.Events()[1])

	session, err := client.GetSession(ctx)
	require.NoError(t, err)
	assert.Equal(t, "Asha R.", session.User.FullName())
}

func TestSetSessionLoadsUser(t *testing.T) {
	ctx := context.Background()
	client, fake := newTestClient(t, storage.NewMemory())
	access := fake.token(time.Now().Add(time.Hour))

	session, err := client.SetSession(ctx, access, "refresh-from-redirect")
	require.NoError(t, err)
	assert.Equal(t, testUserID, session.User.ID)
	assert.Equal(t, "refresh-from-redirect", session.RefreshToken)
	assert.Contains(t, fake.Calls(), "GET /auth/v1/user?")

	_, err = client.SetSession(ctx, "not-a-jwt", "r")
	require.Error(t, err)
}

func TestSignInWithOAuthBuildsAuthorizeURL(t *testing.T) {
	client, _ := newTestClient(t, storage.NewMemory())

	raw, err := client.SignInWithOAuth(context.Background(), "google", "https://miravo.example/")
	require.NoError(t, err)
	parsed, err := url.Parse(raw)
	require.NoError(t, err)
	assert.Equal(t, "/auth/v1/authorize", parsed.Path)
	assert.Equal(t, "google", parsed.Query().Get("provider"))
	assert.Equal(t, "offline", parsed.Query().Get("access_type"))
	assert.Equal(t, "consent", parsed.Query().Get("prompt"))
	assert.Equal(t, "https://miravo.example/", parsed.Query().Get("redirect_to"))

	_, err = client.SignInWithOAuth(context.Background(), " ", "")
	require.Error(t, err)
}

func TestResetPasswordForEmail(t *testing.T) {
	client, fake := newTestClient(t, storage.NewMemory())
	require.NoError(t, client.ResetPasswordForEmail(context.Background(), "asha@example.com", ""))
	assert.Contains(t, fake.Calls(), "POST /auth/v1/recover?")
}
