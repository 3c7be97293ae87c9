// Package postgres implements the audit store with the transactional outbox
// pattern. Events are inserted in the same database transaction as the
// registry mutation they describe and published to Kafka by the relay.
package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"kycnet/internal/audit"
	txcontext "kycnet/pkg/platform/tx"
)

// Store writes audit events to the outbox table.
type Store struct {
	db *sql.DB
}

var _ audit.Store = (*Store)(nil)

func New(db *sql.DB) *Store {
	return &Store{db: db}
}

type dbExecutor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func (s *Store) execer(ctx context.Context) dbExecutor {
	if tx, ok := txcontext.From(ctx); ok {
		return tx
	}
	return s.db
}

// OutboxEntry is an audit event awaiting publication.
type OutboxEntry struct {
	ID    uuid.UUID
	Event audit.Event
}

// Append writes an audit event to the outbox. When a transaction is present
// in ctx the row commits or rolls back with the registry mutation.
func (s *Store) Append(ctx context.Context, event audit.Event) error {
	const query = `
		INSERT INTO audit_outbox
			(id, action, actor, subject, outcome, request_id, client_ip, user_agent, occurred_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	_, err := s.execer(ctx).ExecContext(ctx, query,
		uuid.New(),
		string(event.Action),
		event.Actor,
		event.Subject,
		event.Outcome,
		event.RequestID,
		event.ClientIP,
		event.UserAgent,
		event.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("insert outbox entry: %w", err)
	}
	return nil
}

// FetchUnpublished returns up to limit events that have not been relayed yet,
// oldest first.
func (s *Store) FetchUnpublished(ctx context.Context, limit int) ([]OutboxEntry, error) {
	const query = `
		SELECT id, action, actor, subject, outcome, request_id, client_ip, user_agent, occurred_at
		FROM audit_outbox
		WHERE published_at IS NULL
		ORDER BY occurred_at
		LIMIT $1
	`
	rows, err := s.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("fetch unpublished: %w", err)
	}
	defer rows.Close()

	var entries []OutboxEntry
	for rows.Next() {
		var entry OutboxEntry
		var action string
		if err := rows.Scan(
			&entry.ID, &action, &entry.Event.Actor, &entry.Event.Subject,
			&entry.Event.Outcome, &entry.Event.RequestID, &entry.Event.ClientIP,
			&entry.Event.UserAgent, &entry.Event.Timestamp,
		); err != nil {
			return nil, fmt.Errorf("scan outbox entry: %w", err)
		}
		entry.Event.Action = audit.Action(action)
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate outbox entries: %w", err)
	}
	return entries, nil
}

// MarkPublished timestamps relayed entries so they are never re-sent.
func (s *Store) MarkPublished(ctx context.Context, ids []uuid.UUID) error {
	if len(ids) == 0 {
		return nil
	}
	placeholders := make([]string, len(ids))
	args := make([]any, 0, len(ids)+1)
	args = append(args, time.Now())
	for i, entryID := range ids {
		placeholders[i] = fmt.Sprintf("$%d", i+2)
		args = append(args, entryID)
	}
	query := fmt.Sprintf(
		`UPDATE audit_outbox SET published_at = $1 WHERE id IN (%s)`,
		strings.Join(placeholders, ", "),
	)
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("mark published: %w", err)
	}
	return nil
}
