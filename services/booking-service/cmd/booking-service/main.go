package main

import (
	"context"
	"net/http"
	"time"

	"github.com/slotsmith/slotsmith/libs/cachex"
	"github.com/slotsmith/slotsmith/libs/config"
	"github.com/slotsmith/slotsmith/libs/db"
	"github.com/slotsmith/slotsmith/libs/httpx"
	"github.com/slotsmith/slotsmith/libs/kafkax"
	otelx "github.com/slotsmith/slotsmith/libs/otel"
	"github.com/slotsmith/slotsmith/libs/runtime"
	"github.com/slotsmith/slotsmith/services/booking-service/internal/business"
	"github.com/slotsmith/slotsmith/services/booking-service/internal/cache"
	"github.com/slotsmith/slotsmith/services/booking-service/internal/catalog"
	"github.com/slotsmith/slotsmith/services/booking-service/internal/handlers"
	"github.com/slotsmith/slotsmith/services/booking-service/internal/outbox"
	"github.com/slotsmith/slotsmith/services/booking-service/internal/placement"
	"github.com/slotsmith/slotsmith/services/booking-service/internal/reservation"
	"github.com/slotsmith/slotsmith/services/booking-service/internal/schedule"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

func main() {
	service := config.String("SERVICE_NAME", "booking-service")
	port, err := config.Port("PORT", "8083")
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

	var redisCache *cachex.Cache
	var cacheStore cache.Store
	if addr := config.String("REDIS_ADDR", ""); addr != "" {
		redisCache = cachex.Open(addr, config.String("REDIS_PASSWORD", ""), config.Int("REDIS_DB", 0))
		defer redisCache.Close()
		cacheStore = redisCache
	} else {
		logger.Warn("redis not configured; business cache disabled")
	}
	cacheBoundary := cache.NewBoundary(cacheStore, logger)

	outboxRepo := outbox.NewRepository(pool)
	reservationRepo := reservation.NewRepository(pool, outboxRepo)
	scheduleRepo := schedule.NewRepository(pool)
	catalogRepo := catalog.NewRepository(pool)
	businessRepo := business.NewRepository(pool)

	placementSvc := placement.NewService(scheduleRepo, reservationRepo, catalogRepo, businessRepo, logger)

	outboxPublisher := outbox.NewPublisher(pool, outboxRepo, logger, outbox.PublisherConfig{
		Brokers:   config.String("KAFKA_BROKERS", ""),
		PollEvery: 2 * time.Second,
		BatchSize: 50,
	})
	go outboxPublisher.Run(ctx)

	availabilityHandler := handlers.NewAvailabilityHandler(placementSvc, businessRepo, logger)
	reservationHandler := handlers.NewReservationHandler(placementSvc, reservationRepo, logger)
	scheduleHandler := handlers.NewScheduleHandler(scheduleRepo, reservationRepo, cacheBoundary, logger)
	catalogHandler := handlers.NewCatalogHandler(catalogRepo, cacheBoundary, logger)
	businessHandler := handlers.NewBusinessHandler(businessRepo, cacheBoundary, logger)

	readyChecks := []runtime.ReadyCheck{
		{Name: "db", Check: db.ReadyCheck(pool)},
		{Name: "kafka", Check: kafkax.ReadyCheck(config.String("KAFKA_BROKERS", ""))},
	}
	if redisCache != nil {
		readyChecks = append(readyChecks, runtime.ReadyCheck{Name: "redis", Check: cachex.ReadyCheck(redisCache)})
	}
	mux := runtime.NewBaseMuxWithReady(readyChecks...)

	// The public booking page is unauthenticated, so it gets its own
	// rate-limited routes. Redis keeps the window shared across instances;
	// without it a per-instance window still caps abuse.
	publicLimit := config.Int("PUBLIC_RATE_LIMIT", 30)
	var limit httpx.Middleware
	if redisCache != nil {
		limit = httpx.NewRedisRateLimiter(redisCache.Client(), publicLimit, time.Minute, "public").Middleware(logger, true)
	} else {
		limit = httpx.NewRateLimiter(publicLimit, time.Minute).Middleware()
	}
	mux.Handle("/api/v1/public/book", limit(http.HandlerFunc(reservationHandler.Place)))
	mux.Handle("/api/v1/public/slots", limit(http.HandlerFunc(availabilityHandler.Slots)))

	mux.HandleFunc("/api/v1/availability", availabilityHandler.Resolve)
	mux.HandleFunc("/api/v1/availability/slots", availabilityHandler.Slots)

	mux.HandleFunc("/api/v1/reservations", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			reservationHandler.List(w, r)
			return
		}
		reservationHandler.Place(w, r)
	})
	mux.HandleFunc("/api/v1/reservations/update", reservationHandler.Update)
	mux.HandleFunc("/api/v1/reservations/cancel", reservationHandler.Cancel)
	mux.HandleFunc("/api/v1/reservations/complete", reservationHandler.Complete)

	mux.HandleFunc("/api/v1/staff", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			scheduleHandler.ListStaff(w, r)
			return
		}
		scheduleHandler.CreateStaff(w, r)
	})
	mux.HandleFunc("/api/v1/staff/active", scheduleHandler.SetStaffActive)
	mux.HandleFunc("/api/v1/staff/delete", scheduleHandler.DeleteStaff)

	mux.HandleFunc("/api/v1/schedule/weekly", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			scheduleHandler.GetWeeklyHours(w, r)
			return
		}
		scheduleHandler.UpsertWeeklyHours(w, r)
	})
	mux.HandleFunc("/api/v1/schedule/override", scheduleHandler.UpsertDayOverride)
	mux.HandleFunc("/api/v1/schedule/override/delete", scheduleHandler.DeleteDayOverride)
	mux.HandleFunc("/api/v1/schedule/absences", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			scheduleHandler.ListAbsences(w, r)
			return
		}
		scheduleHandler.CreateAbsence(w, r)
	})
	mux.HandleFunc("/api/v1/schedule/absences/delete", scheduleHandler.DeleteAbsence)

	mux.HandleFunc("/api/v1/time-blocks", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			catalogHandler.List(w, r)
			return
		}
		catalogHandler.Create(w, r)
	})
	mux.HandleFunc("/api/v1/time-blocks/update", catalogHandler.Update)
	mux.HandleFunc("/api/v1/time-blocks/delete", catalogHandler.Delete)

	mux.HandleFunc("/api/v1/business", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			businessHandler.Get(w, r)
			return
		}
		businessHandler.Update(w, r)
	})

	httpHandler := httpx.Chain(mux,
		httpx.WithRecovery(logger),
		httpx.WithRequestID,
		httpx.WithAccessLog(logger),
	)
	httpHandler = otelhttp.NewHandler(httpHandler, "booking")
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
