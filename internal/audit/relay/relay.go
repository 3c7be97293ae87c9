// Package relay ships committed outbox entries to Kafka. The outbox row is
// the source of truth; an entry is only marked published after the broker
// acknowledges it, so delivery is at-least-once.
package relay

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/twmb/franz-go/pkg/kadm"
	"github.com/twmb/franz-go/pkg/kgo"

	auditpostgres "kycnet/internal/audit/store/postgres"
)

const (
	defaultPollInterval = time.Second
	defaultBatchSize    = 100
)

// Outbox is the read side of the audit outbox.
type Outbox interface {
	FetchUnpublished(ctx context.Context, limit int) ([]auditpostgres.OutboxEntry, error)
	MarkPublished(ctx context.Context, ids []uuid.UUID) error
}

// Producer is the slice of the kgo client the relay uses. Narrowed to an
// interface so the publish path is testable without a broker.
type Producer interface {
	ProduceSync(ctx context.Context, records ...*kgo.Record) kgo.ProduceResults
}

// Relay polls the outbox and produces events to a Kafka topic.
type Relay struct {
	outbox       Outbox
	producer     Producer
	topic        string
	pollInterval time.Duration
	batchSize    int
	logger       *slog.Logger
}

// Option configures a Relay.
type Option func(*Relay)

// WithPollInterval sets how often the outbox is polled.
func WithPollInterval(interval time.Duration) Option {
	return func(r *Relay) {
		if interval > 0 {
			r.pollInterval = interval
		}
	}
}

// WithBatchSize caps how many entries are relayed per poll.
func WithBatchSize(size int) Option {
	return func(r *Relay) {
		if size > 0 {
			r.batchSize = size
		}
	}
}

func New(outbox Outbox, producer Producer, topic string, logger *slog.Logger, opts ...Option) (*Relay, error) {
	if outbox == nil {
		return nil, fmt.Errorf("relay: outbox is required")
	}
	if producer == nil {
		return nil, fmt.Errorf("relay: kafka producer is required")
	}
	if topic == "" {
		return nil, fmt.Errorf("relay: topic is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	r := &Relay{
		outbox:       outbox,
		producer:     producer,
		topic:        topic,
		pollInterval: defaultPollInterval,
		batchSize:    defaultBatchSize,
		logger:       logger,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}
	return r, nil
}

// EnsureTopic creates the audit topic if the broker does not have it yet.
func EnsureTopic(ctx context.Context, client *kgo.Client, topic string, partitions int32, replication int16) error {
	admin := kadm.NewClient(client)
	topics, err := admin.ListTopics(ctx, topic)
	if err != nil {
		return fmt.Errorf("list topics: %w", err)
	}
	if topics.Has(topic) {
		return nil
	}
	if _, err := admin.CreateTopic(ctx, partitions, replication, nil, topic); err != nil {
		return fmt.Errorf("create topic %s: %w", topic, err)
	}
	return nil
}

// Run polls the outbox until ctx is cancelled. Transient failures are logged
// and retried on the next tick; entries stay unpublished until acknowledged.
func (r *Relay) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := r.relayBatch(ctx); err != nil {
				r.logger.ErrorContext(ctx, "audit relay batch failed", "error", err)
			}
		}
	}
}

type eventPayload struct {
	ID        string    `json:"id"`
	Action    string    `json:"action"`
	Actor     string    `json:"actor"`
	Subject   string    `json:"subject"`
	Outcome   string    `json:"outcome"`
	RequestID string    `json:"request_id,omitempty"`
	ClientIP  string    `json:"client_ip,omitempty"`
	UserAgent string    `json:"user_agent,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

func (r *Relay) relayBatch(ctx context.Context) error {
	entries, err := r.outbox.FetchUnpublished(ctx, r.batchSize)
	if err != nil {
		return fmt.Errorf("fetch unpublished: %w", err)
	}
	if len(entries) == 0 {
		return nil
	}

	records := make([]*kgo.Record, 0, len(entries))
	for _, entry := range entries {
		value, err := json.Marshal(toPayload(entry))
		if err != nil {
			return fmt.Errorf("marshal event %s: %w", entry.ID, err)
		}
		records = append(records, &kgo.Record{
			Topic: r.topic,
			// Key by subject so every event about one bank or customer lands
			// on the same partition, preserving per-subject order.
			Key:   []byte(entry.Event.Subject),
			Value: value,
		})
	}

	if err := r.producer.ProduceSync(ctx, records...).FirstErr(); err != nil {
		return fmt.Errorf("produce audit events: %w", err)
	}

	ids := make([]uuid.UUID, len(entries))
	for i, entry := range entries {
		ids[i] = entry.ID
	}
	if err := r.outbox.MarkPublished(ctx, ids); err != nil {
		return fmt.Errorf("mark published: %w", err)
	}

	r.logger.DebugContext(ctx, "audit events relayed", "count", len(entries))
	return nil
}

func toPayload(entry auditpostgres.OutboxEntry) eventPayload {
	return eventPayload{
		ID:        entry.ID.String(),
		Action:    string(entry.Event.Action),
		Actor:     entry.Event.Actor,
		Subject:   entry.Event.Subject,
		Outcome:   entry.Event.Outcome,
		RequestID: entry.Event.RequestID,
		ClientIP:  entry.Event.ClientIP,
		UserAgent: entry.Event.UserAgent,
		Timestamp: entry.Event.Timestamp,
	}
}
