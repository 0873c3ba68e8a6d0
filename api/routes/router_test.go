package routes

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/prometheus/client_golang/prometheus"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/miravo-storefront/api/controllers"
	"github.com/angelmondragon/miravo-storefront/api/middleware"
	"github.com/angelmondragon/miravo-storefront/internal/auth"
	"github.com/angelmondragon/miravo-storefront/internal/cart"
	"github.com/angelmondragon/miravo-storefront/internal/identity"
	"github.com/angelmondragon/miravo-storefront/internal/storage"
	"github.com/angelmondragon/miravo-storefront/internal/storefront"
	"github.com/angelmondragon/miravo-storefront/pkg/config"
	"github.com/angelmondragon/miravo-storefront/pkg/logger"
	"github.com/angelmondragon/miravo-storefront/pkg/metrics"
	"github.com/angelmondragon/miravo-storefront/pkg/redis"
)

type stubPinger struct{}

func (stubPinger) Ping(context.Context) error {
	return nil
}

// guestProvider never holds a session and rejects every password.
type guestProvider struct {
	auth.Provider
	emitter *auth.Emitter
}

func (p *guestProvider) OnAuthStateChange(l auth.Listener) auth.Subscription {
	return p.emitter.Subscribe(l, nil)
}

func (p *guestProvider) GetSession(context.Context) (*auth.Session, error) {
	return nil, nil
}

func (p *guestProvider) SignIn(context.Context, string, string) (*auth.Session, error) {
	return nil, &auth.Error{Status: http.StatusBadRequest, Message: "Invalid login credentials"}
}

type stubCheckout struct{}

func (stubCheckout) CreateCheckout(context.Context, []cart.LineItem) (cart.Checkout, error) {
	return cart.Checkout{CartID: "c1", URL: "https://miravo.example/checkouts/c1"}, nil
}

type stubCatalog struct {
	controllers.Catalog
}

type stubAvatars struct {
	controllers.AvatarService
}

func testConfig() *config.Config {
	return &config.Config{
		App: config.AppConfig{Env: "dev", AllowedOrigins: []string{"https://miravo.example"}, SiteURL: "https://miravo.example"},
		AuthRateLimit: config.AuthRateLimitConfig{
			LoginWindow:     time.Minute,
			LoginEmailLimit: 2,
			LoginIPLimit:    100,
		},
	}
}

func newTestRouter(t *testing.T, redisClient *redis.Client) http.Handler {
	t.Helper()
	var seq atomic.Int64
	reg, err := storefront.NewRegistry(storefront.RegistryParams{
		Config:   config.StorefrontConfig{ClientCacheSize: 8, DispatchQueueSize: 8},
		Backend:  storage.NewMemoryBackend(),
		Checkout: stubCheckout{},
		Providers: func(context.Context, storage.Store) (auth.Provider, error) {
			return &guestProvider{emitter: auth.NewEmitter()}, nil
		},
		Guests: identity.GeneratorFunc(func() string {
			return fmt.Sprintf("guest_%d", seq.Add(1))
		}),
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = reg.Close(context.Background()) })

	promReg := prometheus.NewRegistry()
	return NewRouter(Deps{
		Config:   testConfig(),
		Logger:   logger.Nop(),
		Registry: reg,
		Redis:    redisClient,
		Pingers:  map[string]controllers.Pinger{"db": stubPinger{}},
		Gatherer: promReg,
		HTTP:     metrics.NewHTTP(promReg),
		Catalog:  stubCatalog{},
		Avatars:  stubAvatars{},
	})
}

func request(method, target, body string, headers map[string]string) *http.Request {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	return req
}

func tab(device, tabID string) map[string]string {
	return map[string]string{middleware.DeviceIDHeader: device, middleware.TabIDHeader: tabID}
}

func TestRouterHealthAndMetrics(t *testing.T) {
	router := newTestRouter(t, nil)

	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, request(http.MethodGet, "/health/ready", "", nil))
	require.Equal(t, http.StatusOK, resp.Code)
	assert.NotEmpty(t, resp.Header().Get("X-Request-Id"))

	resp = httptest.NewRecorder()
	router.ServeHTTP(resp, request(http.MethodGet, "/metrics", "", nil))
	require.Equal(t, http.StatusOK, resp.Code)
	body, _ := io.ReadAll(resp.Body)
	assert.Contains(t, string(body), `route="/health/ready"`)
}

func TestRouterRequiresClientHeaders(t *testing.T) {
	router := newTestRouter(t, nil)

	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, request(http.MethodGet, "/api/v1/cart", "", nil))
	require.Equal(t, http.StatusBadRequest, resp.Code)
}

func TestRouterCartIsScopedToDevice(t *testing.T) {
	router := newTestRouter(t, nil)
	item := `{"variant_id":"v1","product":{"id":"p1","handle":"linen-shirt","title":"Linen Shirt"},"price":{"amount":"10.00","currency_code":"USD"},"quantity":2}`

	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, request(http.MethodPost, "/api/v1/cart/items", item, tab("device-a", "tab-1")))
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())

	resp = httptest.NewRecorder()
	router.ServeHTTP(resp, request(http.MethodGet, "/api/v1/cart", "", tab("device-a", "tab-1")))
	assert.Contains(t, resp.Body.String(), `"totalQuantity":2`)

	resp = httptest.NewRecorder()
	router.ServeHTTP(resp, request(http.MethodGet, "/api/v1/cart", "", tab("device-b", "tab-1")))
	assert.Contains(t, resp.Body.String(), `"totalQuantity":0`)

	resp = httptest.NewRecorder()
	router.ServeHTTP(resp, request(http.MethodPost, "/api/v1/cart/checkout", "", tab("device-a", "tab-1")))
	require.Equal(t, http.StatusCreated, resp.Code)
	assert.Contains(t, resp.Body.String(), "https://miravo.example/checkouts/c1")
}

func TestRouterAvatarUploadRequiresSignIn(t *testing.T) {
	router := newTestRouter(t, nil)

	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, request(http.MethodPost, "/api/v1/account/avatar", "", tab("device-a", "tab-1")))
	require.Equal(t, http.StatusUnauthorized, resp.Code, resp.Body.String())
}

func TestRouterSignInIsRateLimited(t *testing.T) {
	mr := miniredis.RunT(t)
	raw := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = raw.Close() })
	router := newTestRouter(t, redis.Wrap(raw))

	body := `{"email":"ada@example.com","password":"wrong-password"}`
	statuses := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		resp := httptest.NewRecorder()
		router.ServeHTTP(resp, request(http.MethodPost, "/api/v1/auth/signin", body, tab("device-a", "tab-1")))
		statuses = append(statuses, resp.Code)
	}
	assert.Equal(t, []int{http.StatusUnauthorized, http.StatusUnauthorized, http.StatusTooManyRequests}, statuses)
}

func TestRouterCORSPreflight(t *testing.T) {
	router := newTestRouter(t, nil)
	req := request(http.MethodOptions, "/api/v1/cart", "", map[string]string{
		"Origin":                         "https://miravo.example",
		"Access-Control-Request-Method":  http.MethodPost,
		"Access-Control-Request-Headers": middleware.DeviceIDHeader,
	})
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)
	assert.Equal(t, "https://miravo.example", resp.Header().Get("Access-Control-Allow-Origin"))
}
