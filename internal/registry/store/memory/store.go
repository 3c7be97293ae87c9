// Package memory provides the in-memory registry store. It favors clarity
// over performance and is the backing store for unit tests and single-node
// deployments without Postgres.
package memory

import (
	"context"
	"maps"
	"sync"

	"kycnet/internal/registry"
	id "kycnet/pkg/domain"
	"kycnet/pkg/platform/sentinel"
)

// Store keeps the whole registry in maps. It performs no locking of its own:
// all access goes through TxRunner, which enforces the engine's one-mutation-
// at-a-time ordering.
type Store struct {
	banks      map[id.BankID]registry.Bank
	customers  map[id.Username]registry.Customer
	requests   map[id.Username]registry.KycRequest
	votes      map[id.Username]map[id.BankID]bool
	totalBanks int
}

func New() *Store {
	return &Store{
		banks:     make(map[id.BankID]registry.Bank),
		customers: make(map[id.Username]registry.Customer),
		requests:  make(map[id.Username]registry.KycRequest),
		votes:     make(map[id.Username]map[id.BankID]bool),
	}
}

func (s *Store) GetBank(_ context.Context, bankID id.BankID) (registry.Bank, error) {
	if bank, ok := s.banks[bankID]; ok {
		return bank, nil
	}
	return registry.Bank{}, sentinel.ErrNotFound
}

func (s *Store) CreateBank(_ context.Context, bank registry.Bank) error {
	if _, ok := s.banks[bank.ID]; ok {
		return sentinel.ErrConflict
	}
	s.banks[bank.ID] = bank
	s.totalBanks++
	return nil
}

func (s *Store) UpdateBank(_ context.Context, bank registry.Bank) error {
	if _, ok := s.banks[bank.ID]; !ok {
		return sentinel.ErrNotFound
	}
	s.banks[bank.ID] = bank
	return nil
}

func (s *Store) DeleteBank(_ context.Context, bankID id.BankID) error {
	if _, ok := s.banks[bankID]; !ok {
		return sentinel.ErrNotFound
	}
	delete(s.banks, bankID)
	s.totalBanks--
	return nil
}

func (s *Store) TotalBanks(_ context.Context) (int, error) {
	return s.totalBanks, nil
}

func (s *Store) GetCustomer(_ context.Context, username id.Username) (registry.Customer, error) {
	if customer, ok := s.customers[username]; ok {
		return customer, nil
	}
	return registry.Customer{}, sentinel.ErrNotFound
}

func (s *Store) CreateCustomer(_ context.Context, customer registry.Customer) error {
	if _, ok := s.customers[customer.Username]; ok {
		return sentinel.ErrConflict
	}
	s.customers[customer.Username] = customer
	return nil
}

func (s *Store) UpdateCustomer(_ context.Context, customer registry.Customer) error {
	if _, ok := s.customers[customer.Username]; !ok {
		return sentinel.ErrNotFound
	}
	s.customers[customer.Username] = customer
	return nil
}

func (s *Store) GetRequest(_ context.Context, username id.Username) (registry.KycRequest, error) {
	if request, ok := s.requests[username]; ok {
		return request, nil
	}
	return registry.KycRequest{}, sentinel.ErrNotFound
}

func (s *Store) CreateRequest(_ context.Context, request registry.KycRequest) error {
	if _, ok := s.requests[request.Username]; ok {
		return sentinel.ErrConflict
	}
	s.requests[request.Username] = request
	return nil
}

func (s *Store) DeleteRequest(_ context.Context, username id.Username) error {
	if _, ok := s.requests[username]; !ok {
		return sentinel.ErrNotFound
	}
	delete(s.requests, username)
	return nil
}

func (s *Store) HasVoted(_ context.Context, username id.Username, bankID id.BankID) (bool, error) {
	return s.votes[username][bankID], nil
}

func (s *Store) MarkVoted(_ context.Context, username id.Username, bankID id.BankID) error {
	markers, ok := s.votes[username]
	if !ok {
		markers = make(map[id.BankID]bool)
		s.votes[username] = markers
	}
	markers[bankID] = true
	return nil
}

func (s *Store) ClearVotes(_ context.Context, username id.Username) error {
	delete(s.votes, username)
	return nil
}

// snapshot copies the full registry state so TxRunner can roll back a failed
// mutation. The vote matrix needs a per-key copy; the record maps hold value
// types and shallow-copy cleanly.
func (s *Store) snapshot() *Store {
	clone := &Store{
		banks:      maps.Clone(s.banks),
		customers:  maps.Clone(s.customers),
		requests:   maps.Clone(s.requests),
		votes:      make(map[id.Username]map[id.BankID]bool, len(s.votes)),
		totalBanks: s.totalBanks,
	}
	for username, markers := range s.votes {
		clone.votes[username] = maps.Clone(markers)
	}
	return clone
}

func (s *Store) restore(snap *Store) {
	s.banks = snap.banks
	s.customers = snap.customers
	s.requests = snap.requests
	s.votes = snap.votes
	s.totalBanks = snap.totalBanks
}

// TxRunner serializes registry access behind one RWMutex: mutations take the
// exclusive side, reads the shared side. On error the pre-transaction snapshot
// is restored, giving the same all-or-nothing behavior as a database rollback.
type TxRunner struct {
	mu    sync.RWMutex
	store *Store
}

func NewTxRunner(store *Store) *TxRunner {
	return &TxRunner{store: store}
}

func (t *TxRunner) RunInTx(ctx context.Context, fn func(ctx context.Context, store registry.Store) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	snap := t.store.snapshot()
	if err := fn(ctx, t.store); err != nil {
		t.store.restore(snap)
		return err
	}
	return nil
}

func (t *TxRunner) RunInReadTx(ctx context.Context, fn func(ctx context.Context, store registry.Store) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	t.mu.RLock()
	defer t.mu.RUnlock()
	return fn(ctx, t.store)
}
