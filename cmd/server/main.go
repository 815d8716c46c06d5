package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"parkgate-service/internal/barrier"
	"parkgate-service/internal/config"
	"parkgate-service/internal/db"
	"parkgate-service/internal/debounce"
	"parkgate-service/internal/events"
	httpapi "parkgate-service/internal/http"
	"parkgate-service/internal/payments"
	"parkgate-service/internal/repository"
	"parkgate-service/internal/service"
)

func main() {
	log := zerolog.New(os.Stdout).With().Timestamp().Logger()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}
	if level, err := zerolog.ParseLevel(cfg.Logging.Level); err == nil {
		log = log.Level(level)
	}
	if cfg.Logging.Pretty {
		log = log.Output(zerolog.ConsoleWriter{Out: os.Stdout})
	}

	log.Info().
		Str("camera_mode", string(cfg.CarPark.CameraMode)).
		Str("access_mode", string(cfg.CarPark.AccessMode)).
		Str("payment_requirement", string(cfg.Payment.Requirement)).
		Str("fee_mode", string(cfg.Fee.Mode)).
		Msg("starting parkgate service")

	gdb, err := db.Connect(cfg.Database.DSN())
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	if err := db.RunMigrations(gdb); err != nil {
		log.Fatal().Err(err).Msg("failed to run migrations")
	}

	var publisher events.Publisher
	if cfg.AMQP.Enabled {
		publisher, err = events.NewAMQPPublisher(cfg.AMQP.URL, log)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to connect to message broker")
		}
	} else {
		publisher = events.NewLogPublisher(log)
	}
	defer publisher.Close()

	authRepo := repository.NewAuthorizationRepository(gdb)
	sessionRepo := repository.NewSessionRepository(gdb)
	detectionRepo := repository.NewDetectionRepository(gdb)

	barrierCtl := barrier.NewController(
		barrier.NoopActuator{},
		cfg.Barrier.OpenTime,
		cfg.Barrier.SafetyCheck,
		publisher,
		log,
	)

	processor := payments.NewBridgeProcessor(log)

	sessionManager := service.NewSessionManager(
		sessionRepo,
		processor,
		barrierCtl,
		publisher,
		cfg.Fee.Currency,
		cfg.Payment.Timeout,
		log,
	)

	filter := debounce.NewFilter(cfg.Recognition.ProcessingInterval, cfg.Recognition.PerCameraDebounce, log)

	accessService := service.NewAccessService(
		cfg,
		authRepo,
		detectionRepo,
		filter,
		sessionManager,
		barrierCtl,
		publisher,
		log,
	)

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	if len(cfg.Server.AllowedOrigins) > 0 {
		corsCfg := cors.DefaultConfig()
		corsCfg.AllowOrigins = cfg.Server.AllowedOrigins
		corsCfg.AllowHeaders = append(corsCfg.AllowHeaders, "Authorization")
		router.Use(cors.New(corsCfg))
	}

	handler := httpapi.NewHandler(accessService, sessionManager, barrierCtl, log)
	handler.Register(router, httpapi.JWTAuth(cfg.Auth.JWTSecret))

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.Info().Int("port", cfg.Server.Port).Msg("HTTP server listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})

	g.Go(func() error {
		err := sessionManager.RunTimeoutWatchdog(ctx)
		if err == context.Canceled {
			return nil
		}
		return err
	})

	g.Go(func() error {
		// Bound the debounce map for car parks with large plate churn.
		ticker := time.NewTicker(10 * time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return nil
			case <-ticker.C:
				filter.Prune(time.Now(), 10*cfg.Recognition.ProcessingInterval)
			}
		}
	})

	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		log.Fatal().Err(err).Msg("service terminated with error")
	}
	log.Info().Msg("service stopped")
}
