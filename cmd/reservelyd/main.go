package main

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/reservely/reservely/internal/availability"
	"github.com/reservely/reservely/internal/cache"
	"github.com/reservely/reservely/internal/config"
	"github.com/reservely/reservely/internal/db"
	"github.com/reservely/reservely/internal/handlers"
	"github.com/reservely/reservely/internal/httpx"
	"github.com/reservely/reservely/internal/kafkax"
	"github.com/reservely/reservely/internal/otelx"
	"github.com/reservely/reservely/internal/outbox"
	"github.com/reservely/reservely/internal/runtime"
	"github.com/reservely/reservely/internal/storage"
	"github.com/reservely/reservely/migrations"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

func main() {
	config.LoadDotenv()

	service := config.String("SERVICE_NAME", "reservely")
	port, err := config.Port("PORT", "8080")
	if err != nil {
		panic(err)
	}
	logger := runtime.NewLogger(service)

	ctx, stop := runtime.SignalContext()
	defer stop()

	otelShutdown, err := otelx.Setup(ctx, otelx.ConfigFromEnv(service))
	if err != nil {
		logger.Error("otel setup failed", "err", err)
	} else {
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = otelShutdown(shutdownCtx)
		}()
	}

	dbURL, err := config.RequiredString("DATABASE_URL")
	if err != nil {
		panic(err)
	}
	pool, err := db.Open(ctx, dbURL)
	if err != nil {
		logger.Error("db connection failed", "err", err)
		panic(err)
	}
	defer pool.Close()

	if config.Bool("MIGRATE_ON_START", true) {
		if err := db.Migrate(ctx, pool, migrations.FS); err != nil {
			logger.Error("migrations failed", "err", err)
			panic(err)
		}
	}

	var rdb *redis.Client
	if addr := config.String("REDIS_ADDR", ""); addr != "" {
		rdb = redis.NewClient(&redis.Options{Addr: addr})
		defer rdb.Close()
	}

	businessRepo := storage.NewBusinessRepository(pool)
	scheduleRepo := storage.NewScheduleRepository(pool)
	bookingRepo := storage.NewBookingRepository(pool)
	waitlistRepo := storage.NewWaitlistRepository(pool)
	outboxRepo := outbox.NewRepository(pool)
	holdCache := cache.NewHoldCache(rdb)

	generator := availability.NewGenerator(businessRepo, scheduleRepo, scheduleRepo, scheduleRepo, logger)

	publisher := outbox.NewPublisher(outboxRepo, logger, outbox.PublisherConfig{
		Brokers:   config.String("KAFKA_BROKERS", ""),
		PollEvery: config.Duration("OUTBOX_POLL_INTERVAL", 2*time.Second),
		BatchSize: config.Int("OUTBOX_BATCH_SIZE", 50),
	})
	go publisher.Run(ctx)

	go runHoldReaper(ctx, bookingRepo, holdCache, logger, config.Duration("HOLD_REAP_INTERVAL", time.Minute))

	slotsHandler := handlers.NewSlotsHandler(generator, logger)
	bookingHandler := handlers.NewBookingHandler(bookingRepo, businessRepo, outboxRepo, holdCache, logger,
		config.Duration("HOLD_TTL", 10*time.Minute))
	scheduleHandler := handlers.NewScheduleHandler(businessRepo, scheduleRepo)
	waitlistHandler := handlers.NewWaitlistHandler(waitlistRepo, outboxRepo, logger)

	readyChecks := []runtime.ReadyCheck{
		{Name: "db", Check: db.ReadyCheck(pool)},
	}
	if brokers := config.String("KAFKA_BROKERS", ""); brokers != "" {
		readyChecks = append(readyChecks, runtime.ReadyCheck{Name: "kafka", Check: kafkax.ReadyCheck(brokers)})
	}
	if rdb != nil {
		readyChecks = append(readyChecks, runtime.ReadyCheck{Name: "redis", Check: func(ctx context.Context) error {
			return rdb.Ping(ctx).Err()
		}})
	}

	mux := runtime.NewBaseMux(readyChecks...)
	mux.HandleFunc("/api/v1/public/slots", slotsHandler.List)
	mux.HandleFunc("/api/v1/public/book", bookingHandler.Create)
	mux.HandleFunc("/api/v1/public/holds", bookingHandler.Hold)
	mux.HandleFunc("/api/v1/public/holds/confirm", bookingHandler.ConfirmHold)
	mux.HandleFunc("/api/v1/public/holds/release", bookingHandler.ReleaseHold)
	mux.HandleFunc("/api/v1/public/waitlist", waitlistHandler.Waitlist)
	mux.HandleFunc("/api/v1/appointments", bookingHandler.List)
	mux.HandleFunc("/api/v1/appointments/cancel", bookingHandler.Cancel)
	mux.HandleFunc("/api/v1/businesses", scheduleHandler.CreateBusiness)
	mux.HandleFunc("/api/v1/schedule/config", scheduleHandler.Config)
	mux.HandleFunc("/api/v1/schedule/services", scheduleHandler.Services)
	mux.HandleFunc("/api/v1/schedule/staff", scheduleHandler.Staff)
	mux.HandleFunc("/api/v1/schedule/staff/active", scheduleHandler.SetStaffActive)
	mux.HandleFunc("/api/v1/schedule/assignments", scheduleHandler.Assignments)
	mux.HandleFunc("/api/v1/schedule/rules", scheduleHandler.Rules)
	mux.HandleFunc("/api/v1/schedule/blackouts", scheduleHandler.Blackouts)

	middlewares := []httpx.Middleware{
		httpx.WithRequestID,
		httpx.WithAccessLog(logger),
		httpx.WithBodyLimit(int64(config.Int("MAX_BODY_BYTES", 1<<20))),
		httpx.WithTimeout(config.Duration("REQUEST_TIMEOUT", 30*time.Second)),
		httpx.WithCORS(httpx.CORSPolicy{
			AllowedOrigins: httpx.SplitCSV(config.String("CORS_ALLOWED_ORIGINS", "")),
			AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete},
			AllowedHeaders: []string{"Content-Type", "Idempotency-Key", "X-Business-Id"},
		}),
	}
	if rdb != nil {
		limiter := httpx.NewRedisRateLimiter(rdb,
			config.Int("RATE_LIMIT_PER_WINDOW", 120),
			config.Duration("RATE_LIMIT_WINDOW", time.Minute),
			service)
		middlewares = append(middlewares, limiter.Middleware(logger, true))
	}

	httpHandler := httpx.Chain(mux, middlewares...)
	httpHandler = otelhttp.NewHandler(httpHandler, service)
	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           httpHandler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("http server starting", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server error", "err", err)
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "err", err)
	}
	logger.Info("http server stopped")
}

// runHoldReaper cancels held appointments whose TTL lapsed so they stop
// blocking the overlap constraint, and drops their cache entries.
func runHoldReaper(ctx context.Context, repo *storage.BookingRepository, holds *cache.HoldCache, logger *slog.Logger, every time.Duration) {
	if every <= 0 {
		every = time.Minute
	}
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			ids, err := repo.ExpireHolds(ctx, time.Now().UTC())
			if err != nil {
				logger.Error("hold expiry sweep failed", "err", err)
				continue
			}
			for _, id := range ids {
				if err := holds.Drop(ctx, id); err != nil {
					logger.Warn("hold cache delete failed", "appointment_id", id, "err", err)
				}
			}
			if len(ids) > 0 {
				logger.Info("expired holds released", "count", len(ids))
			}
		}
	}
}
