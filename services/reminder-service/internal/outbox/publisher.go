package outbox

import (
	"context"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/slotsmith/slotsmith/libs/db"
	"github.com/slotsmith/slotsmith/libs/kafkax"
	otelx "github.com/slotsmith/slotsmith/libs/otel"
)

// Publisher relays reminder outcome events from the outbox table to Kafka.
// Rows are published one at a time; a broker hiccup marks what already went
// out and leaves the rest for the next poll.
type Publisher struct {
	pool      *db.Pool
	repo      *Repository
	logger    *slog.Logger
	brokers   []string
	pollEvery time.Duration
	batchSize int
}

type PublisherConfig struct {
	Brokers   string
	PollEvery time.Duration
	BatchSize int
}

func NewPublisher(pool *db.Pool, repo *Repository, logger *slog.Logger, cfg PublisherConfig) *Publisher {
	if cfg.PollEvery <= 0 {
		cfg.PollEvery = 2 * time.Second
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 50
	}
	return &Publisher{
		pool:      pool,
		repo:      repo,
		logger:    logger,
		brokers:   kafkax.SplitBrokers(cfg.Brokers),
		pollEvery: cfg.PollEvery,
		batchSize: cfg.BatchSize,
	}
}

func (p *Publisher) Run(ctx context.Context) {
	if len(p.brokers) == 0 {
		p.logger.Warn("outbox publisher disabled (no kafka brokers configured)")
		return
	}

	writer := &kafka.Writer{
		Addr:     kafka.TCP(p.brokers...),
		Balancer: &kafka.Hash{},
	}
	defer writer.Close()

	ticker := time.NewTicker(p.pollEvery)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.drain(ctx, writer)
		}
	}
}

func (p *Publisher) drain(ctx context.Context, writer *kafka.Writer) {
	tx, err := p.pool.Begin(ctx)
	if err != nil {
		p.logger.Error("outbox drain failed", "err", err)
		return
	}
	defer func() { _ = tx.Rollback(ctx) }()

	records, err := p.repo.FetchUnpublished(ctx, tx, p.batchSize)
	if err != nil {
		p.logger.Error("outbox drain failed", "err", err)
		return
	}

	var published []int64
	for _, r := range records {
		msgCtx := otelx.ContextWithTraceContext(ctx, r.Traceparent, r.Tracestate)
		msg := kafka.Message{
			Topic: r.EventType,
			Key:   []byte(r.AggregateID),
			Value: r.Payload,
			Headers: kafkax.InjectTraceHeaders(msgCtx, []kafka.Header{
				{Key: "event_id", Value: []byte(r.EventID)},
				{Key: "event_type", Value: []byte(r.EventType)},
			}),
		}
		if err := writer.WriteMessages(ctx, msg); err != nil {
			p.logger.Error("outbox publish failed", "err", err, "event_id", r.EventID, "event_type", r.EventType)
			break
		}
		published = append(published, r.ID)
	}

	if len(published) > 0 {
		if err := p.repo.MarkPublished(ctx, tx, published); err != nil {
			p.logger.Error("outbox mark published failed", "err", err)
			return
		}
	}
	if err := tx.Commit(ctx); err != nil {
		p.logger.Error("outbox drain failed", "err", err)
	}
}
