package routes

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/angelmondragon/miravo-storefront/api/controllers"
	"github.com/angelmondragon/miravo-storefront/api/middleware"
	"github.com/angelmondragon/miravo-storefront/internal/storefront"
	"github.com/angelmondragon/miravo-storefront/pkg/config"
	"github.com/angelmondragon/miravo-storefront/pkg/logger"
	"github.com/angelmondragon/miravo-storefront/pkg/metrics"
	"github.com/angelmondragon/miravo-storefront/pkg/redis"
)

type clientRegistry interface {
	Client(ctx context.Context, deviceID, tabID string) (*storefront.Client, error)
}

// Deps lists what the HTTP surface is built from. Optional services may be
// nil; their routes answer with an internal error.
type Deps struct {
	Config   *config.Config
	Logger   *logger.Logger
	Registry clientRegistry

	// Redis backs the rate limiter. Without it requests are not throttled.
	Redis    *redis.Client
	Pingers  map[string]controllers.Pinger
	Gatherer prometheus.Gatherer
	HTTP     *metrics.HTTP

	Catalog   controllers.Catalog
	SignUps   controllers.SignUpProfiles
	Profiles  controllers.ProfileService
	Avatars   controllers.AvatarService
	Orders    controllers.OrderHistory
	Customers controllers.CustomerSyncer
	Emails    controllers.EmailCapturer
}

func NewRouter(d Deps) http.Handler {
	cfg, logg := d.Config, d.Logger
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(cfg.App.AllowedOrigins),
		middleware.Metrics(d.HTTP),
	)

	limits := cfg.AuthRateLimit
	var counter middleware.RateCounter
	if d.Redis != nil {
		counter = d.Redis
	}
	limit := func(p middleware.RateLimitPolicy) func(http.Handler) http.Handler {
		return middleware.RateLimit(p, counter, logg)
	}
	signIn := limit(middleware.RateLimitPolicy{
		Name: "signin", Window: limits.LoginWindow,
		PerIP: limits.LoginIPLimit, PerEmail: limits.LoginEmailLimit, PerDevice: limits.LoginDeviceLimit,
	})
	signUp := limit(middleware.RateLimitPolicy{
		Name: "signup", Window: limits.RegisterWindow,
		PerIP: limits.RegisterIPLimit, PerEmail: limits.RegisterEmailLimit,
	})
	recoverPassword := limit(middleware.RateLimitPolicy{
		Name: "recover", Window: limits.LoginWindow,
		PerIP: limits.LoginIPLimit, PerEmail: limits.LoginEmailLimit,
	})
	capture := limit(middleware.RateLimitPolicy{
		Name: "capture", Window: limits.CaptureWindow,
		PerIP: limits.CaptureIPLimit, PerEmail: limits.CaptureEmailLimit,
	})

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, d.Pingers, logg))
	})
	if d.Gatherer != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(d.Gatherer, promhttp.HandlerOpts{}))
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/products", controllers.ProductsList(d.Catalog, logg))
		r.Get("/products/{handle}", controllers.ProductByHandle(d.Catalog, logg))
		r.Get("/collections", controllers.CollectionsList(d.Catalog, logg))

		r.Group(func(r chi.Router) {
			r.Use(middleware.ClientContext(d.Registry, logg))

			r.Route("/cart", func(r chi.Router) {
				r.Get("/", controllers.CartGet(logg))
				r.Delete("/", controllers.CartClear(logg))
				r.Post("/items", controllers.CartAddItem(logg))
				r.Patch("/items/{variantId}", controllers.CartUpdateItem(logg))
				r.Delete("/items/{variantId}", controllers.CartRemoveItem(logg))
				r.Post("/checkout", controllers.CartCheckout(logg))
			})

			r.Route("/wishlist", func(r chi.Router) {
				r.Get("/", controllers.WishlistGet(logg))
				r.Delete("/", controllers.WishlistClear(logg))
				r.Post("/items", controllers.WishlistAddItem(logg))
				r.Get("/items/{productId}", controllers.WishlistContains(logg))
				r.Delete("/items/{productId}", controllers.WishlistRemoveItem(logg))
			})

			r.Route("/auth", func(r chi.Router) {
				r.With(signUp).Post("/signup", controllers.AuthSignUp(d.SignUps, cfg.App.SiteURL, logg))
				r.With(signIn).Post("/signin", controllers.AuthSignIn(logg))
				r.Post("/oauth", controllers.AuthOAuth(cfg.App.SiteURL, logg))
				r.Post("/signout", controllers.AuthSignOut(logg))
				r.With(recoverPassword).Post("/recover", controllers.AuthRecover(cfg.App.SiteURL, logg))
				r.Post("/session", controllers.AuthSetSession(logg))
				r.Get("/session", controllers.AuthSession(logg))
				r.Post("/refresh", controllers.AuthRefresh(logg))
				r.Put("/user", controllers.AuthUpdateUser(logg))
			})

			r.Route("/account", func(r chi.Router) {
				r.Get("/profile", controllers.AccountProfile(d.Profiles, logg))
				r.Patch("/profile", controllers.AccountUpdateProfile(d.Profiles, logg))
				r.Post("/avatar", controllers.AccountUploadAvatar(d.Avatars, logg))
				r.Get("/orders", controllers.AccountOrders(d.Profiles, d.Orders, logg))
			})
		})
	})

	r.Route("/functions/v1", func(r chi.Router) {
		r.Post("/sync-shopify-customer", controllers.SyncShopifyCustomer(d.Customers, logg))
		r.With(capture).Post("/capture-email", controllers.CaptureEmail(d.Emails, logg))
	})

	return r
}
