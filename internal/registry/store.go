package registry

import (
	"context"

	id "kycnet/pkg/domain"
)

// Store is the persistence contract for the registry. Implementations return
// sentinel.ErrNotFound / sentinel.ErrConflict; the service translates those
// into coded domain errors.
//
// Create and Update are distinct so the total-bank counter can be maintained
// incrementally (++/-- on create/delete, never recomputed by scanning) and so
// a duplicate create fails in the store even if a service check raced.
type Store interface {
	GetBank(ctx context.Context, bankID id.BankID) (Bank, error)
	CreateBank(ctx context.Context, bank Bank) error
	UpdateBank(ctx context.Context, bank Bank) error
	DeleteBank(ctx context.Context, bankID id.BankID) error
	// TotalBanks returns the incrementally maintained member count.
	TotalBanks(ctx context.Context) (int, error)

	GetCustomer(ctx context.Context, username id.Username) (Customer, error)
	CreateCustomer(ctx context.Context, customer Customer) error
	UpdateCustomer(ctx context.Context, customer Customer) error

	GetRequest(ctx context.Context, username id.Username) (KycRequest, error)
	CreateRequest(ctx context.Context, request KycRequest) error
	DeleteRequest(ctx context.Context, username id.Username) error

	// Vote markers: one boolean per (customer, bank) pair on the customer's
	// current data. ClearVotes drops the whole per-username marker set; there
	// is deliberately no way to clear a single bank's marker.
	HasVoted(ctx context.Context, username id.Username, bankID id.BankID) (bool, error)
	MarkVoted(ctx context.Context, username id.Username, bankID id.BankID) error
	ClearVotes(ctx context.Context, username id.Username) error
}

// Tx provides the transactional boundary the engine's serializability
// contract requires: mutations run one at a time to completion, reads may
// overlap each other but never a mutation. Implementations are an exclusive
// lock in memory or a database transaction in Postgres.
type Tx interface {
	// RunInTx executes fn atomically with exclusive access to the registry.
	// If fn returns an error nothing it did is visible afterwards.
	RunInTx(ctx context.Context, fn func(ctx context.Context, store Store) error) error

	// RunInReadTx executes fn with a consistent read view.
	RunInReadTx(ctx context.Context, fn func(ctx context.Context, store Store) error) error
}
