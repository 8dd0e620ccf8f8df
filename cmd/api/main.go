package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/harentsoaR/doctors-portal/internal/config"
	"github.com/harentsoaR/doctors-portal/internal/handlers"
	"github.com/harentsoaR/doctors-portal/internal/logging"
	"github.com/harentsoaR/doctors-portal/internal/metrics"
	"github.com/harentsoaR/doctors-portal/internal/middleware"
	"github.com/harentsoaR/doctors-portal/internal/services"
	"github.com/harentsoaR/doctors-portal/internal/store"
	"github.com/harentsoaR/doctors-portal/internal/utils"
)

// portalStore is everything the services need from storage. Both store.Mongo
// and store.Memory satisfy it.
type portalStore interface {
	services.AvailabilityStore
	services.AdmissionStore
	services.PaymentStore
	services.UserStore
	services.DoctorStore
	services.CatalogStore
	handlers.BookingReader
	handlers.Pinger
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		boot := logging.New("info", true)
		boot.Fatal().Err(err).Msg("invalid configuration")
	}
	logger := logging.New(cfg.LogLevel, cfg.IsDev())

	if err := run(cfg, logger); err != nil {
		logger.Fatal().Err(err).Msg("server exited")
	}
}

func run(cfg *config.Config, logger zerolog.Logger) error {
	// --- Storage ---
	var s portalStore
	switch cfg.StoreDriver {
	case config.DriverMemory:
		logger.Warn().Msg("using in-memory store: data is lost on restart")
		s = store.NewMemory()
	default:
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.MongoURI).SetTimeout(cfg.StoreTimeout))
		if err != nil {
			return err
		}
		defer func() {
			dctx, dcancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer dcancel()
			_ = client.Disconnect(dctx)
		}()

		m := store.NewMongo(client.Database(cfg.MongoDatabase), cfg.StoreTimeout)
		if err := m.Ping(ctx); err != nil {
			return err
		}
		if err := m.EnsureIndexes(ctx); err != nil {
			return err
		}
		logger.Info().Str("database", cfg.MongoDatabase).Msg("connected to MongoDB")
		s = m
	}

	// --- Booking lock ---
	var locker services.KeyLocker = services.NewLocalLocker()
	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword})
		defer rdb.Close()
		pctx, pcancel := context.WithTimeout(context.Background(), 3*time.Second)
		err := rdb.Ping(pctx).Err()
		pcancel()
		if err != nil {
			logger.Warn().Err(err).Str("addr", cfg.RedisAddr).Msg("redis unreachable at startup, lock will retry per request")
		}
		locker = services.NewRedisLocker(rdb, cfg.LockTTL)
		logger.Info().Str("addr", cfg.RedisAddr).Msg("using redis booking lock")
	}

	// --- Metrics ---
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	// --- Collaborators ---
	var mailer services.Mailer = services.NewLogMailer(logger)
	if cfg.SendGridAPIKey != "" {
		mailer = services.NewSendGridMailer(cfg.SendGridAPIKey, cfg.SendGridFromEmail, cfg.SendGridFromName)
	}
	notifier := services.NewNotificationService(mailer, logger)
	defer notifier.Wait()

	stripe := services.NewStripeClient(cfg.StripeSecretKey, logger).WithBaseURL(cfg.StripeBaseURL)
	if cfg.StripeSecretKey == "" {
		logger.Warn().Msg("STRIPE_SECRET_KEY not set: payment intents run in dry-run mode")
	}

	tokens, err := utils.NewTokenManager(cfg.AccessToken, cfg.TokenTTL)
	if err != nil {
		return err
	}

	h := &handlers.Handler{
		Resolver:  services.NewResolver(s, m, logger),
		Admission: services.NewAdmission(s, locker, notifier, m, logger),
		Users:     services.NewUserService(s, logger),
		Catalog:   services.NewCatalog(s),
		Roster:    services.NewRoster(s),
		Payments:  services.NewPaymentService(s, stripe, logger),
		Bookings:  s,
		Tokens:    tokens,
		Store:     s,
		Logger:    logger,
	}

	// --- Gin Router ---
	if !cfg.IsDev() {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Recovery(), middleware.RequestLogger(logger), middleware.Metrics(m))
	r.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.CORSOrigins,
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))
	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(reg, promhttp.HandlerOpts{})))
	h.Register(r)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", srv.Addr).Msg("doctors portal running")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case err := <-errCh:
		return err
	case <-quit:
	}

	logger.Info().Msg("shutting down server")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		return err
	}
	logger.Info().Msg("server stopped")
	return nil
}
