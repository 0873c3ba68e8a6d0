package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"

	"github.com/angelmondragon/miravo-storefront/api/controllers"
	"github.com/angelmondragon/miravo-storefront/api/routes"
	"github.com/angelmondragon/miravo-storefront/internal/auth"
	"github.com/angelmondragon/miravo-storefront/internal/auth/gotrue"
	"github.com/angelmondragon/miravo-storefront/internal/commerce"
	"github.com/angelmondragon/miravo-storefront/internal/customers"
	"github.com/angelmondragon/miravo-storefront/internal/emailcapture"
	"github.com/angelmondragon/miravo-storefront/internal/identity"
	"github.com/angelmondragon/miravo-storefront/internal/profiles"
	"github.com/angelmondragon/miravo-storefront/internal/storage"
	"github.com/angelmondragon/miravo-storefront/internal/storefront"
	"github.com/angelmondragon/miravo-storefront/pkg/config"
	"github.com/angelmondragon/miravo-storefront/pkg/db"
	"github.com/angelmondragon/miravo-storefront/pkg/httpclient"
	"github.com/angelmondragon/miravo-storefront/pkg/instance"
	"github.com/angelmondragon/miravo-storefront/pkg/logger"
	"github.com/angelmondragon/miravo-storefront/pkg/metrics"
	"github.com/angelmondragon/miravo-storefront/pkg/migrate"
	"github.com/angelmondragon/miravo-storefront/pkg/redis"
	"github.com/angelmondragon/miravo-storefront/pkg/storage/supabase"
)

const (
	serviceName     = "miravo-api"
	shutdownTimeout = 15 * time.Second
)

func main() {
	logg := logger.New(logger.Options{ServiceName: serviceName})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: serviceName,
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	if err := run(cfg, logg); err != nil {
		logg.Error(context.Background(), "api server stopped unexpectedly", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, logg *logger.Logger) (err error) {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	dbClient, err := db.New(ctx, cfg.DB, logg)
	if err != nil {
		return err
	}
	defer func() {
		err = multierr.Append(err, dbClient.Close())
	}()

	if err := migrate.MaybeAutoRun(ctx, cfg, logg, dbClient); err != nil {
		return err
	}

	var (
		redisClient *redis.Client
		backend     storage.Backend
	)
	if cfg.Redis.Enabled() {
		redisClient, err = redis.New(ctx, cfg.Redis, logg)
		if err != nil {
			return err
		}
		defer func() {
			err = multierr.Append(err, redisClient.Close())
		}()
		backend = storage.NewRedisBackend(redisClient, cfg.Storefront.LocalStateTTL, cfg.Storefront.TabSessionTTL)
	} else {
		logg.Warn(ctx, "redis not configured, storefront state is kept in process memory")
		backend = storage.NewMemoryBackend()
	}

	promReg := prometheus.NewRegistry()
	promReg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	storefrontMetrics := metrics.NewStorefront(promReg)

	storefrontHTTP := httpclient.New(cfg.HTTPClient, httpclient.Options{Name: "shopify_storefront", Logger: logg, Registerer: promReg})
	authHTTP := httpclient.New(cfg.HTTPClient, httpclient.Options{Name: "supabase_auth", Logger: logg, Registerer: promReg})
	catalog := commerce.NewStorefront(cfg.Shopify, storefrontHTTP)

	profileRepo := profiles.NewRepository(dbClient.DB())
	var admin customers.Backend
	if cfg.Shopify.AdminToken != "" {
		adminHTTP := httpclient.New(cfg.HTTPClient, httpclient.Options{Name: "shopify_admin", Logger: logg, Registerer: promReg})
		admin = commerce.NewAdmin(cfg.Shopify, adminHTTP)
	}
	customerSvc := customers.NewService(admin, profileRepo, logg)
	storageHTTP := httpclient.New(cfg.HTTPClient, httpclient.Options{Name: "supabase_storage", Logger: logg, Registerer: promReg})
	objectStore, err := supabase.NewClient(cfg.Supabase, storageHTTP)
	if err != nil {
		return err
	}
	profileSvc := profiles.NewService(profileRepo, customerSvc, logg).
		WithAvatarStore(objectStore.Bucket(cfg.Supabase.AvatarBucket))
	emailSvc := emailcapture.NewService(emailcapture.NewRepository(dbClient.DB()), cfg.EmailCapture.DiscountPrefix, logg, storefrontMetrics)

	registry, err := storefront.NewRegistry(storefront.RegistryParams{
		Config:   cfg.Storefront,
		Backend:  backend,
		Checkout: catalog,
		Profiles: profileSvc,
		Providers: func(ctx context.Context, local storage.Store) (auth.Provider, error) {
			return gotrue.New(ctx, gotrue.Params{Config: cfg.Supabase, HTTP: authHTTP, Local: local, Logger: logg})
		},
		Guests:  identity.ClockGenerator{},
		Logger:  logg,
		Metrics: storefrontMetrics,
	})
	if err != nil {
		return err
	}

	pingers := map[string]controllers.Pinger{"db": dbClient}
	if redisClient != nil {
		pingers["redis"] = redisClient
	}

	addr := ":" + cfg.App.Port
	server := &http.Server{
		Addr: addr,
		Handler: routes.NewRouter(routes.Deps{
			Config:    cfg,
			Logger:    logg,
			Registry:  registry,
			Redis:     redisClient,
			Pingers:   pingers,
			Gatherer:  promReg,
			HTTP:      metrics.NewHTTP(promReg),
			Catalog:   catalog,
			SignUps:   profileSvc,
			Profiles:  profileSvc,
			Avatars:   profileSvc,
			Orders:    customerSvc,
			Customers: customerSvc,
			Emails:    emailSvc,
		}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx = logg.WithFields(ctx, map[string]any{
		"env":       cfg.App.Env,
		"addr":      addr,
		"db_driver": cfg.DB.Driver,
		"redis":     redisClient != nil,
		"instance":  instance.GetID(),
	})
	logg.Info(ctx, "starting api server")

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logg.Info(ctx, "api server shutting down gracefully")
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()
		return multierr.Combine(server.Shutdown(shutdownCtx), registry.Close(shutdownCtx))
	})
	return g.Wait()
}
