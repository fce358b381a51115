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
	"github.com/slotsmith/slotsmith/libs/db"
	"github.com/slotsmith/slotsmith/libs/httpx"
	"github.com/slotsmith/slotsmith/libs/kafkax"
	otelx "github.com/slotsmith/slotsmith/libs/otel"
	"github.com/slotsmith/slotsmith/libs/runtime"
	"github.com/slotsmith/slotsmith/services/reminder-service/internal/consumer"
	"github.com/slotsmith/slotsmith/services/reminder-service/internal/delivery"
	"github.com/slotsmith/slotsmith/services/reminder-service/internal/email"
	"github.com/slotsmith/slotsmith/services/reminder-service/internal/inbox"
	"github.com/slotsmith/slotsmith/services/reminder-service/internal/jobs"
	"github.com/slotsmith/slotsmith/services/reminder-service/internal/outbox"
	"github.com/slotsmith/slotsmith/services/reminder-service/internal/sms"
	"github.com/slotsmith/slotsmith/services/reminder-service/internal/source"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

func main() {
	service := config.String("SERVICE_NAME", "reminder-service")
	port, err := config.Port("PORT", "8085")
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

	jobRepo := jobs.NewRepository()
	sourceRepo := source.NewRepository(pool)
	inboxRepo := inbox.NewRepository(pool)
	deliveries := delivery.NewRepository(pool)

	outboxRepo := outbox.NewRepository(pool)
	outboxPublisher := outbox.NewPublisher(pool, outboxRepo, logger, outbox.PublisherConfig{
		Brokers: config.String("KAFKA_BROKERS", ""),
	})
	go outboxPublisher.Run(ctx)

	emailSender := email.NewSMTPSender(
		config.String("SMTP_HOST", "mailpit"),
		config.String("SMTP_PORT", "1025"),
		config.String("SMTP_FROM", "no-reply@slotsmith.local"),
	)

	var smsSender sms.Sender
	switch strings.ToLower(config.String("SMS_PROVIDER", "noop")) {
	case "webhook":
		smsSender = sms.NewWebhookSender(config.String("SMS_WEBHOOK_URL", ""), config.String("SMS_WEBHOOK_TOKEN", ""))
	default:
		smsSender = sms.NewNoopSender()
	}

	worker := jobs.NewWorker(pool, jobRepo, outboxRepo, deliveries, emailSender, smsSender, logger, jobs.WorkerConfig{
		Interval:  time.Duration(config.Int("WORKER_INTERVAL_SECONDS", 5)) * time.Second,
		BatchSize: config.Int("WORKER_BATCH_SIZE", 50),
		Backoff:   time.Duration(config.Int("WORKER_BACKOFF_SECONDS", 60)) * time.Second,
	})
	go worker.Run(ctx)

	lead := time.Duration(config.Int("REMINDER_LEAD_HOURS", 24)) * time.Hour

	// Reservation mutations drive the job table: created/updated events plan
	// a fresh reminder, cancellations retire pending ones.
	scheduleJob := func(ctx context.Context, reservationID string) error {
		res, err := sourceRepo.Get(ctx, reservationID)
		if err != nil {
			if errors.Is(err, source.ErrNotFound) {
				logger.Warn("reservation vanished before reminder planning", "reservation_id", reservationID)
				return nil
			}
			return err
		}

		tx, err := pool.Begin(ctx)
		if err != nil {
			return err
		}
		defer func() { _ = tx.Rollback(ctx) }()

		if err := jobRepo.CancelPending(ctx, tx, res.ID); err != nil {
			return err
		}
		if res.Status == "pending" || res.Status == "confirmed" {
			job, ok := jobs.Plan(jobs.Appointment{
				ReservationID: res.ID,
				BusinessID:    res.BusinessID,
				BusinessName:  res.BusinessName,
				ClientName:    res.ClientName,
				ClientEmail:   res.ClientEmail,
				ClientPhone:   res.ClientPhone,
				ServiceName:   res.ServiceName,
				StartsAt:      res.StartsAt(),
			}, lead, time.Now())
			if ok {
				if err := jobRepo.Insert(ctx, tx, job); err != nil {
					return err
				}
			}
		}
		return tx.Commit(ctx)
	}

	cancelJobs := func(ctx context.Context, reservationID string) error {
		tx, err := pool.Begin(ctx)
		if err != nil {
			return err
		}
		defer func() { _ = tx.Rollback(ctx) }()
		if err := jobRepo.CancelPending(ctx, tx, reservationID); err != nil {
			return err
		}
		return tx.Commit(ctx)
	}

	startConsumer := func(topic string, handle func(context.Context, string) error) {
		if strings.TrimSpace(topic) == "" {
			return
		}
		cfg := consumer.Config{
			Brokers: config.String("KAFKA_BROKERS", ""),
			GroupID: config.String("KAFKA_GROUP_ID", "reminder-service"),
			Topic:   topic,
		}
		eventConsumer := consumer.New(logger, inboxRepo, cfg, func(ctx context.Context, msg kafka.Message) error {
			var payload struct {
				ID string `json:"id"`
			}
			if err := json.Unmarshal(msg.Value, &payload); err != nil {
				logger.Error("invalid event payload", "err", err, "topic", msg.Topic)
				return nil
			}
			if payload.ID == "" {
				logger.Error("event missing reservation id", "topic", msg.Topic)
				return nil
			}
			return handle(ctx, payload.ID)
		})
		go eventConsumer.Run(ctx)
	}
	startConsumer(config.String("KAFKA_TOPIC_CREATED", "booking.reservation.created.v1"), scheduleJob)
	startConsumer(config.String("KAFKA_TOPIC_UPDATED", "booking.reservation.updated.v1"), scheduleJob)
	startConsumer(config.String("KAFKA_TOPIC_CANCELLED", "booking.reservation.cancelled.v1"), cancelJobs)

	mux := runtime.NewBaseMuxWithReady(
		runtime.ReadyCheck{Name: "db", Check: db.ReadyCheck(pool)},
		runtime.ReadyCheck{Name: "kafka", Check: kafkax.ReadyCheck(config.String("KAFKA_BROKERS", ""))},
	)
	handler := httpx.Chain(mux,
		httpx.WithRecovery(logger),
		httpx.WithRequestID,
		httpx.WithAccessLog(logger),
	)
	handler = otelhttp.NewHandler(handler, "reminder")
	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           handler,
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
