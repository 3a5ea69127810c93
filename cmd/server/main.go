package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/iliyamo/theatre-seat-reservation/internal/config"
	"github.com/iliyamo/theatre-seat-reservation/internal/database"
	"github.com/iliyamo/theatre-seat-reservation/internal/handler"
	"github.com/iliyamo/theatre-seat-reservation/internal/logger"
	"github.com/iliyamo/theatre-seat-reservation/internal/middleware"
	"github.com/iliyamo/theatre-seat-reservation/internal/model"
	"github.com/iliyamo/theatre-seat-reservation/internal/queue"
	"github.com/iliyamo/theatre-seat-reservation/internal/repository"
	"github.com/iliyamo/theatre-seat-reservation/internal/router"
	"github.com/iliyamo/theatre-seat-reservation/internal/service"
)

func main() {
	if err := config.LoadDotEnv(); err != nil {
		logrus.WithError(err).Fatal("load .env")
	}
	cfg, err := config.Load()
	if err != nil {
		logrus.WithError(err).Fatal("invalid configuration")
	}
	logger.Init(cfg.LogLevel, cfg.IsProduction())
	log := logrus.WithField("env", cfg.Env)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := database.Open(cfg.DBUser, cfg.DBPass, cfg.DBHost, cfg.DBPort, cfg.DBName)
	if err != nil {
		log.WithError(err).Fatal("connect mysql")
	}
	defer db.Close()

	if cfg.AutoMigrate {
		if err := database.Migrate(ctx, db); err != nil {
			log.WithError(err).Fatal("migrate")
		}
		log.Info("schema applied")
	}

	users := repository.NewUserRepo(db)
	if cfg.AdminEmail != "" {
		bootstrapAdmin(ctx, log, users, cfg)
	}

	rdb := config.NewRedisClient(log)
	if rdb != nil {
		defer rdb.Close()
	}
	cache := middleware.NewResponseCache(config.LoadCacheConfig(), rdb, log)

	opts := []service.Option{
		service.WithLogger(log),
		service.WithSeatCache(router.SeatCache{Cache: cache}),
	}
	var publisher *queue.Publisher
	if cfg.RabbitURL != "" {
		publisher = queue.NewPublisher(cfg.RabbitURL, log)
		defer publisher.Close()
		opts = append(opts, service.WithPublisher(publisher))
	}

	reservations := service.NewReservationService(db, opts...)
	performances := service.NewPerformanceService(db, log)

	e := echo.New()
	e.HideBanner = true
	e.Validator = handler.NewRequestValidator()
	e.Use(middleware.RequestLogger(log))

	router.Register(e, router.Handlers{
		Health: &handler.HealthHandler{DB: db, Redis: rdb},
		Auth:   handler.NewAuthHandler(cfg, users, repository.NewTokenRepo(db)),
		Catalog: handler.NewCatalogHandler(
			repository.NewActorRepo(db),
			repository.NewGenreRepo(db),
			repository.NewPlayRepo(db),
		),
		Halls:        handler.NewHallHandler(repository.NewHallRepo(db)),
		Performances: handler.NewPerformanceHandler(performances, reservations),
		Reservations: handler.NewReservationHandler(reservations),
	}, router.Middleware{
		JWTSecret: cfg.JWTSecret,
		Cache:     cache,
		RateLimit: middleware.NewTokenBucket(config.LoadRateLimitConfig(), rdb, log),
	})

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		addr := ":" + cfg.Port
		log.WithField("addr", addr).Info("listening")
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return e.Shutdown(shutdownCtx)
	})
	if cfg.RabbitURL != "" {
		consumer := &queue.Consumer{URL: cfg.RabbitURL, LogPath: cfg.EventLogPath, Log: log}
		g.Go(func() error {
			if err := consumer.Run(gctx); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		log.WithError(err).Fatal("server stopped")
	}
	log.Info("server stopped")
}

// bootstrapAdmin creates the configured ADMIN account.  Registration only
// ever creates customers, so this is the one way staff accounts appear.
func bootstrapAdmin(ctx context.Context, log logrus.FieldLogger, users *repository.UserRepo, cfg config.Config) {
	_, err := users.Create(ctx, cfg.AdminEmail, cfg.AdminPassword, model.RoleAdmin, cfg.BcryptCost)
	switch {
	case err == nil:
		log.WithField("email", cfg.AdminEmail).Info("admin account created")
	case errors.Is(err, repository.ErrEmailExists):
		log.WithField("email", cfg.AdminEmail).Debug("admin account already exists")
	default:
		log.WithError(err).Fatal("create admin account")
	}
}
