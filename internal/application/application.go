package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/psds-microservice/workshop-service/internal/auth"
	"github.com/psds-microservice/workshop-service/internal/clock"
	"github.com/psds-microservice/workshop-service/internal/config"
	"github.com/psds-microservice/workshop-service/internal/database"
	"github.com/psds-microservice/workshop-service/internal/kafka"
	"github.com/psds-microservice/workshop-service/internal/observability"
	"github.com/psds-microservice/workshop-service/internal/realtime"
	"github.com/psds-microservice/workshop-service/internal/router"
	"github.com/psds-microservice/workshop-service/internal/service"
	"github.com/psds-microservice/workshop-service/internal/telemetry"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"
)

const shutdownTimeout = 10 * time.Second

// API приложение: HTTP сервер, websocket-хаб и продюсер событий (режим api).
type API struct {
	cfg      *config.Config
	log      *slog.Logger
	db       *gorm.DB
	httpSrv  *http.Server
	hub      *realtime.Hub
	producer *kafka.Producer
	tracing  func(context.Context) error
}

// NewAPI создаёт приложение для режима api.
func NewAPI(ctx context.Context, cfg *config.Config) (*API, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	logger := NewLogger(nil, cfg.LogLevel, cfg.IsProduction())
	slog.SetDefault(logger)

	if err := database.MigrateUp(ctx, cfg.DatabaseURL()); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	db, err := database.Open(ctx, cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("database: %w", err)
	}

	shutdownTracing, err := telemetry.Init(ctx, cfg.OTLPEndpoint, cfg.AppEnv)
	if err != nil {
		// трейсинг не обязателен для работы API
		logger.Warn("tracing disabled", "error", err)
	}

	producer := kafka.NewProducer(kafka.ParseBrokers(cfg.KafkaBrokers), cfg.KafkaTopicTicket)
	if !producer.Enabled() {
		logger.Info("kafka disabled: KAFKA_BROKERS not set")
	}
	hub := realtime.NewHub(observability.RealtimeSubscribers)
	clk := clock.Real()
	issuer := auth.NewIssuer(cfg.JWT.Secret, cfg.JWT.TTL, clk.Now)

	handler := router.New(router.Deps{
		DB:              db,
		Issuer:          issuer,
		Hub:             hub,
		Tickets:         service.NewTicketService(db, clk, producer, hub),
		Buggies:         service.NewBuggyService(db, clk),
		Dealer:          service.NewDealerService(db, clk),
		Hours:           service.NewHoursService(db, clk),
		JobCards:        service.NewJobCardService(db, clk),
		Accounts:        service.NewAccountService(db, issuer, clk),
		CORSOrigins:     cfg.CORSOrigins,
		LoginRatePerMin: cfg.LoginRatePerMin,
		Logger:          logger,
	})

	httpSrv := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	return &API{
		cfg:      cfg,
		log:      logger,
		db:       db,
		httpSrv:  httpSrv,
		hub:      hub,
		producer: producer,
		tracing:  shutdownTracing,
	}, nil
}

// Run запускает HTTP сервер и хаб, блокируется до отмены ctx.
func (a *API) Run(ctx context.Context) error {
	host := a.cfg.AppHost
	if host == "0.0.0.0" {
		host = "localhost"
	}
	base := "http://" + host + ":" + a.cfg.HTTPPort
	a.log.Info("HTTP server listening",
		"addr", a.httpSrv.Addr,
		"swagger", base+"/swagger",
		"health", base+"/health",
		"metrics", base+router.PathMetrics,
		"api", base+"/api/v1/")

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return a.hub.Run(gctx)
	})
	g.Go(func() error {
		if err := a.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		return a.shutdown()
	})
	err := g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func (a *API) shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	var errs []error
	if err := a.httpSrv.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("http shutdown: %w", err))
	}
	// дожидаемся отправки событий, начатых запросами
	if err := a.producer.Close(); err != nil {
		errs = append(errs, fmt.Errorf("kafka close: %w", err))
	}
	if a.tracing != nil {
		if err := a.tracing(ctx); err != nil {
			errs = append(errs, fmt.Errorf("tracing shutdown: %w", err))
		}
	}
	if sqlDB, err := a.db.DB(); err == nil {
		_ = sqlDB.Close()
	}
	a.log.Info("shutdown complete")
	return errors.Join(errs...)
}
