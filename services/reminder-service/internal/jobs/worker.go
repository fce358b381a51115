package jobs

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/slotsmith/slotsmith/libs/db"
	otelx "github.com/slotsmith/slotsmith/libs/otel"
	"github.com/slotsmith/slotsmith/services/reminder-service/internal/delivery"
	"github.com/slotsmith/slotsmith/services/reminder-service/internal/email"
	"github.com/slotsmith/slotsmith/services/reminder-service/internal/outbox"
	"github.com/slotsmith/slotsmith/services/reminder-service/internal/sms"
)

// Worker drains due reminder jobs on a poll loop, sends them through the
// configured channels, and records the outcome. FOR UPDATE SKIP LOCKED keeps
// concurrent instances off each other's batches.
type Worker struct {
	pool       *db.Pool
	repo       *Repository
	outbox     *outbox.Repository
	deliveries *delivery.Repository
	email      email.Sender
	sms        sms.Sender
	logger     *slog.Logger
	interval   time.Duration
	batchSize  int
	backoff    time.Duration
}

type WorkerConfig struct {
	Interval  time.Duration
	BatchSize int
	Backoff   time.Duration
}

func NewWorker(pool *db.Pool, repo *Repository, outboxRepo *outbox.Repository, deliveries *delivery.Repository, emailSender email.Sender, smsSender sms.Sender, logger *slog.Logger, cfg WorkerConfig) *Worker {
	if cfg.Interval <= 0 {
		cfg.Interval = 5 * time.Second
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 50
	}
	if cfg.Backoff <= 0 {
		cfg.Backoff = 1 * time.Minute
	}
	return &Worker{
		pool:       pool,
		repo:       repo,
		outbox:     outboxRepo,
		deliveries: deliveries,
		email:      emailSender,
		sms:        smsSender,
		logger:     logger,
		interval:   cfg.Interval,
		batchSize:  cfg.BatchSize,
		backoff:    cfg.Backoff,
	}
}

func (w *Worker) Run(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := w.processBatch(ctx); err != nil {
				w.logger.Error("reminder batch failed", "err", err)
			}
		}
	}
}

func (w *Worker) processBatch(ctx context.Context) error {
	tx, err := w.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	due, err := w.repo.FetchDue(ctx, tx, w.batchSize)
	if err != nil {
		return err
	}
	if len(due) == 0 {
		return tx.Commit(ctx)
	}

	var sent []int64
	var failed []Job
	for _, job := range due {
		jobCtx := otelx.ContextWithTraceContext(ctx, job.Traceparent, job.Tracestate)

		providerID, err := w.deliver(jobCtx, job)
		if err != nil {
			w.logger.Error("reminder send failed", "err", err, "reservation_id", job.ReservationID, "channel", job.Channel)
			job.TemplateData["error_reason"] = err.Error()
			failed = append(failed, job)
			continue
		}

		if err := w.deliveries.Insert(jobCtx, delivery.Delivery{
			ReservationID: job.ReservationID,
			BusinessID:    job.BusinessID,
			Channel:       job.Channel,
			Recipient:     job.Recipient,
			Payload:       job.TemplateData,
			Status:        "sent",
			ProviderID:    providerID,
		}); err != nil {
			return err
		}
		if err := w.enqueueOutcome(jobCtx, tx, job, outbox.EventReminderSent, providerID, ""); err != nil {
			return err
		}
		sent = append(sent, job.ID)
		w.logger.Info("reminder sent", "reservation_id", job.ReservationID, "channel", job.Channel)
	}

	if err := w.repo.MarkProcessed(ctx, tx, sent); err != nil {
		return err
	}

	for _, job := range failed {
		jobCtx := otelx.ContextWithTraceContext(ctx, job.Traceparent, job.Tracestate)
		reason, _ := job.TemplateData["error_reason"].(string)
		attempts := job.Attempts + 1
		nextRunAt := time.Now().UTC().Add(w.backoff)
		if err := w.repo.MarkFailed(ctx, tx, job.ID, attempts, job.MaxAttempts, nextRunAt, reason); err != nil {
			return err
		}

		if attempts >= job.MaxAttempts {
			if err := w.deliveries.Insert(jobCtx, delivery.Delivery{
				ReservationID: job.ReservationID,
				BusinessID:    job.BusinessID,
				Channel:       job.Channel,
				Recipient:     job.Recipient,
				Payload:       job.TemplateData,
				Status:        "failed",
			}); err != nil {
				return err
			}
			if err := w.enqueueOutcome(jobCtx, tx, job, outbox.EventReminderDLQ, "", "max attempts reached"); err != nil {
				return err
			}
		}
	}

	return tx.Commit(ctx)
}

func (w *Worker) deliver(ctx context.Context, job Job) (string, error) {
	business, _ := job.TemplateData["business_name"].(string)
	service, _ := job.TemplateData["service_name"].(string)
	startsAt, _ := job.TemplateData["starts_at"].(string)
	if service == "" {
		service = "your appointment"
	}
	body := fmt.Sprintf("Reminder: %s at %s.", service, startsAt)
	if business != "" {
		body = fmt.Sprintf("[%s] %s", business, body)
	}

	switch job.Channel {
	case "email":
		if err := w.email.Send(job.Recipient, "Appointment reminder", body); err != nil {
			return "", err
		}
		return "smtp", nil
	case "sms":
		if err := w.sms.Send(ctx, job.Recipient, body); err != nil {
			return "", err
		}
		return w.sms.ProviderID(), nil
	default:
		return "", fmt.Errorf("unsupported channel: %s", job.Channel)
	}
}

func (w *Worker) enqueueOutcome(ctx context.Context, tx pgx.Tx, job Job, eventType string, providerID string, reason string) error {
	fields := map[string]any{
		"reservation_id": job.ReservationID,
		"business_id":    job.BusinessID,
		"channel":        job.Channel,
		"remind_at":      job.RemindAt.UTC().Format(time.RFC3339),
	}
	if providerID != "" {
		fields["provider_id"] = providerID
	}
	if reason != "" {
		fields["error_reason"] = reason
		fields["failed_at"] = time.Now().UTC().Format(time.RFC3339)
	}
	payload, err := json.Marshal(fields)
	if err != nil {
		return err
	}
	return w.outbox.Insert(ctx, tx, outbox.Event{
		AggregateType: "reminder",
		AggregateID:   job.ReservationID,
		EventType:     eventType,
		Payload:       payload,
	})
}
