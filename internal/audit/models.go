// Package audit captures the registry's compliance trail: one event per
// committed mutation, written fail-closed so no state change can land without
// its audit row.
package audit

import (
	"context"
	"time"
)

// Action names a registry mutation. Values are stable; downstream consumers
// key off them.
type Action string

const (
	ActionBankAdded          Action = "bank_added"
	ActionBankRemoved        Action = "bank_removed"
	ActionBankEligibilitySet Action = "bank_eligibility_set"
	ActionBankReported       Action = "bank_reported"
	ActionCustomerAdded      Action = "customer_added"
	ActionCustomerModified   Action = "customer_modified"
	ActionRequestAdded       Action = "kyc_request_added"
	ActionRequestRemoved     Action = "kyc_request_removed"
	ActionCustomerUpvoted    Action = "customer_upvoted"
	ActionCustomerDownvoted  Action = "customer_downvoted"
)

// Event is a single audit record.
type Event struct {
	Action Action

	// Actor is the caller identity that performed the mutation.
	Actor string
	// Subject is the bank ID or customer username the mutation targeted.
	Subject string

	// Outcome carries the derived status after the mutation, where one exists
	// ("approved"/"rejected" for votes, "eligible"/"ineligible" for complaints).
	Outcome string

	RequestID string
	ClientIP  string
	UserAgent string
	Timestamp time.Time
}

// Store persists events. Postgres writes them to the transactional outbox the
// Kafka relay drains; memory keeps them in a slice for tests and dev runs.
type Store interface {
	Append(ctx context.Context, event Event) error
}
