//go:build integration

package relay_test

import (
	"context"
	"encoding/json"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/twmb/franz-go/pkg/kgo"

	"kycnet/internal/audit"
	"kycnet/internal/audit/relay"
	auditpostgres "kycnet/internal/audit/store/postgres"
	registrypostgres "kycnet/internal/registry/store/postgres"
	"kycnet/pkg/testutil/containers"
)

// End to end: event in outbox -> relay -> Kafka topic -> consumed.
func TestRelayPublishesOutboxToKafka(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	ctx := context.Background()
	pg := containers.NewPostgresContainer(t)
	kafka := containers.NewKafkaContainer(t)

	// the audit outbox table ships with the registry schema
	require.NoError(t, registrypostgres.New(pg.DB).EnsureSchema(ctx))

	outbox := auditpostgres.New(pg.DB)
	require.NoError(t, outbox.Append(ctx, audit.Event{
		Action:    audit.ActionBankAdded,
		Actor:     "admin",
		Subject:   "hsbc",
		Outcome:   "success",
		RequestID: "req-1",
		Timestamp: time.Now(),
	}))

	const topic = "kyc.audit.test"

	producer, err := kgo.NewClient(kgo.SeedBrokers(kafka.Broker))
	require.NoError(t, err)
	defer producer.Close()
	require.NoError(t, relay.EnsureTopic(ctx, producer, topic, 1, 1))

	r, err := relay.New(outbox, producer, topic, slog.New(slog.DiscardHandler),
		relay.WithPollInterval(100*time.Millisecond))
	require.NoError(t, err)

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() { _ = r.Run(runCtx) }()

	consumer, err := kgo.NewClient(
		kgo.SeedBrokers(kafka.Broker),
		kgo.ConsumeTopics(topic),
		kgo.ConsumeResetOffset(kgo.NewOffset().AtStart()),
	)
	require.NoError(t, err)
	defer consumer.Close()

	var record *kgo.Record
	require.Eventually(t, func() bool {
		pollCtx, pollCancel := context.WithTimeout(ctx, time.Second)
		defer pollCancel()
		fetches := consumer.PollFetches(pollCtx)
		fetches.EachRecord(func(rec *kgo.Record) {
			record = rec
		})
		return record != nil
	}, 30*time.Second, 100*time.Millisecond)

	assert.Equal(t, []byte("hsbc"), record.Key)
	var payload map[string]any
	require.NoError(t, json.Unmarshal(record.Value, &payload))
	assert.Equal(t, string(audit.ActionBankAdded), payload["action"])
	assert.Equal(t, "admin", payload["actor"])
	assert.Equal(t, "req-1", payload["request_id"])

	// once relayed, the entry is marked and never re-sent
	require.Eventually(t, func() bool {
		entries, err := outbox.FetchUnpublished(ctx, 10)
		return err == nil && len(entries) == 0
	}, 10*time.Second, 100*time.Millisecond)
}
