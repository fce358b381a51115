package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/slotsmith/slotsmith/libs/config"
	"github.com/slotsmith/slotsmith/libs/cryptox"
	"github.com/slotsmith/slotsmith/libs/db"
	"github.com/slotsmith/slotsmith/libs/httpx"
	"github.com/slotsmith/slotsmith/libs/kafkax"
	otelx "github.com/slotsmith/slotsmith/libs/otel"
	"github.com/slotsmith/slotsmith/libs/runtime"
	"github.com/slotsmith/slotsmith/services/calendar-sync-service/internal/calendar"
	"github.com/slotsmith/slotsmith/services/calendar-sync-service/internal/consumer"
	"github.com/slotsmith/slotsmith/services/calendar-sync-service/internal/handlers"
	"github.com/slotsmith/slotsmith/services/calendar-sync-service/internal/inbox"
	syncsvc "github.com/slotsmith/slotsmith/services/calendar-sync-service/internal/sync"
	"github.com/slotsmith/slotsmith/services/calendar-sync-service/internal/tokens"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

func main() {
	service := config.String("SERVICE_NAME", "calendar-sync-service")
	port, err := config.Port("PORT", "8087")
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

	secret, err := config.RequiredString("TOKEN_ENCRYPTION_SECRET")
	if err != nil {
		panic(err)
	}
	box, err := cryptox.New(secret)
	if err != nil {
		panic(err)
	}

	client := calendar.NewClient(calendar.Config{
		BaseURL:      config.String("CALENDAR_BASE_URL", "https://calendar.googleapis.com"),
		ClientID:     config.String("CALENDAR_CLIENT_ID", ""),
		ClientSecret: config.String("CALENDAR_CLIENT_SECRET", ""),
		RedirectURL:  config.String("CALENDAR_REDIRECT_URL", ""),
	})

	tokenRepo := tokens.NewRepository(pool, box)
	syncRepo := syncsvc.NewRepository(pool)
	engine := syncsvc.NewEngine(tokenRepo, client, syncRepo, logger, syncsvc.Config{
		BatchSize:    config.Int("SYNC_BATCH_SIZE", 100),
		EventTimeout: time.Duration(config.Int("SYNC_EVENT_TIMEOUT_SECONDS", 10)) * time.Second,
	})

	sweeper := syncsvc.NewSweeper(engine, logger, time.Duration(config.Int("SYNC_SWEEP_SECONDS", 60))*time.Second)
	go sweeper.Run(ctx)

	// Reservation events trigger an immediate sync for that business; the
	// sweep covers anything the fast path misses.
	inboxRepo := inbox.NewRepository(pool)
	startConsumer := func(topic string) {
		if strings.TrimSpace(topic) == "" {
			return
		}
		cfg := consumer.Config{
			Brokers: config.String("KAFKA_BROKERS", ""),
			GroupID: config.String("KAFKA_GROUP_ID", "calendar-sync-service"),
			Topic:   topic,
		}
		eventConsumer := consumer.New(logger, inboxRepo, cfg, func(ctx context.Context, msg kafka.Message) error {
			var payload struct {
				BusinessID string `json:"business_id"`
			}
			if err := json.Unmarshal(msg.Value, &payload); err != nil {
				logger.Error("invalid event payload", "err", err, "topic", msg.Topic)
				return nil
			}
			if payload.BusinessID == "" {
				logger.Error("event missing business_id", "topic", msg.Topic)
				return nil
			}

			report, err := engine.SyncPending(ctx, payload.BusinessID)
			if err != nil {
				if errors.Is(err, tokens.ErrNotConnected) {
					return nil
				}
				// Leave the rows unsynced; the sweep retries later.
				logger.Warn("event-driven sync failed", "err", err, "business_id", payload.BusinessID)
				return nil
			}
			if len(report.Errors) > 0 {
				logger.Warn("sync completed with errors", "business_id", payload.BusinessID, "errors", len(report.Errors))
			}
			return nil
		})
		go eventConsumer.Run(ctx)
	}
	startConsumer(config.String("KAFKA_TOPIC_CREATED", "booking.reservation.created.v1"))
	startConsumer(config.String("KAFKA_TOPIC_UPDATED", "booking.reservation.updated.v1"))
	startConsumer(config.String("KAFKA_TOPIC_CANCELLED", "booking.reservation.cancelled.v1"))

	calendarHandler := handlers.NewCalendarHandler(client, tokenRepo, engine, config.String("CALENDAR_PROVIDER", "google"), logger)

	mux := runtime.NewBaseMuxWithReady(
		runtime.ReadyCheck{Name: "db", Check: db.ReadyCheck(pool)},
		runtime.ReadyCheck{Name: "kafka", Check: kafkax.ReadyCheck(config.String("KAFKA_BROKERS", ""))},
	)
	mux.HandleFunc("/api/v1/calendar/connect", calendarHandler.Connect)
	mux.HandleFunc("/api/v1/calendar/oauth/callback", calendarHandler.Callback)
	mux.HandleFunc("/api/v1/calendar/sync", calendarHandler.Sync)
	mux.HandleFunc("/api/v1/calendar/status", calendarHandler.Status)
	mux.HandleFunc("/api/v1/calendar/disconnect", calendarHandler.Disconnect)

	httpHandler := httpx.Chain(mux,
		httpx.WithRecovery(logger),
		httpx.WithRequestID,
		httpx.WithAccessLog(logger),
	)
	httpHandler = otelhttp.NewHandler(httpHandler, "calendar-sync")
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
