// Package revocation tracks banks whose access has been cut before their
// tokens expire. Entries live for the token lifetime; after that the token is
// dead on its own and the entry is irrelevant.
package revocation

import (
	"context"
	"sync"
	"time"

	id "kycnet/pkg/domain"
)

// MemoryList is an in-process revocation list. Good for tests and single-node
// deployments; distributed deployments should use RedisList so every instance
// sees the same revocations.
type MemoryList struct {
	mu      sync.RWMutex
	entries map[id.BankID]time.Time // bank -> expiry of the revocation entry
	clock   func() time.Time
}

// MemoryListOption configures a MemoryList.
type MemoryListOption func(*MemoryList)

// WithClock sets the clock function for testability.
func WithClock(clock func() time.Time) MemoryListOption {
	return func(l *MemoryList) {
		if clock != nil {
			l.clock = clock
		}
	}
}

func NewMemoryList(opts ...MemoryListOption) *MemoryList {
	l := &MemoryList{
		entries: make(map[id.BankID]time.Time),
		clock:   time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(l)
		}
	}
	return l
}

// Revoke marks a bank as revoked for ttl.
func (l *MemoryList) Revoke(_ context.Context, bankID id.BankID, ttl time.Duration) error {
	if err := validateTTL(ttl); err != nil {
		return err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries[bankID] = l.clock().Add(ttl)
	return nil
}

// IsRevoked reports whether the bank has an unexpired revocation entry.
// Expired entries are pruned on read.
func (l *MemoryList) IsRevoked(_ context.Context, bankID id.BankID) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	expiry, ok := l.entries[bankID]
	if !ok {
		return false, nil
	}
	if l.clock().After(expiry) {
		delete(l.entries, bankID)
		return false, nil
	}
	return true, nil
}
