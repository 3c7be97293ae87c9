package memory

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kycnet/internal/registry"
	id "kycnet/pkg/domain"
	"kycnet/pkg/platform/sentinel"
)

func TestStore_BankLifecycle(t *testing.T) {
	ctx := context.Background()
	s := New()

	bank := registry.Bank{ID: "bank-a", Name: "Bank A", RegNumber: "R-1", AllowedToVote: true}

	t.Run("missing bank returns not found", func(t *testing.T) {
		_, err := s.GetBank(ctx, "bank-a")
		assert.ErrorIs(t, err, sentinel.ErrNotFound)
	})

	t.Run("create increments total", func(t *testing.T) {
		require.NoError(t, s.CreateBank(ctx, bank))
		total, err := s.TotalBanks(ctx)
		require.NoError(t, err)
		assert.Equal(t, 1, total)
	})

	t.Run("duplicate create conflicts", func(t *testing.T) {
		assert.ErrorIs(t, s.CreateBank(ctx, bank), sentinel.ErrConflict)
	})

	t.Run("update overwrites fields", func(t *testing.T) {
		bank.ComplaintsReported = 2
		require.NoError(t, s.UpdateBank(ctx, bank))
		got, err := s.GetBank(ctx, "bank-a")
		require.NoError(t, err)
		assert.Equal(t, 2, got.ComplaintsReported)
	})

	t.Run("delete restores total and removes record", func(t *testing.T) {
		require.NoError(t, s.DeleteBank(ctx, "bank-a"))
		total, err := s.TotalBanks(ctx)
		require.NoError(t, err)
		assert.Equal(t, 0, total)
		_, err = s.GetBank(ctx, "bank-a")
		assert.ErrorIs(t, err, sentinel.ErrNotFound)
	})

	t.Run("delete of absent bank returns not found", func(t *testing.T) {
		assert.ErrorIs(t, s.DeleteBank(ctx, "bank-a"), sentinel.ErrNotFound)
	})
}

func TestStore_VoteMarkers(t *testing.T) {
	ctx := context.Background()
	s := New()
	alice := id.Username("alice")

	voted, err := s.HasVoted(ctx, alice, "bank-b")
	require.NoError(t, err)
	assert.False(t, voted)

	require.NoError(t, s.MarkVoted(ctx, alice, "bank-b"))
	require.NoError(t, s.MarkVoted(ctx, alice, "bank-c"))

	voted, err = s.HasVoted(ctx, alice, "bank-b")
	require.NoError(t, err)
	assert.True(t, voted)

	// Clearing drops the whole per-username marker set.
	require.NoError(t, s.ClearVotes(ctx, alice))
	for _, bank := range []id.BankID{"bank-b", "bank-c"} {
		voted, err = s.HasVoted(ctx, alice, bank)
		require.NoError(t, err)
		assert.False(t, voted)
	}
}

func TestTxRunner_RollsBackOnError(t *testing.T) {
	ctx := context.Background()
	store := New()
	runner := NewTxRunner(store)

	boom := errors.New("boom")
	err := runner.RunInTx(ctx, func(ctx context.Context, s registry.Store) error {
		require.NoError(t, s.CreateBank(ctx, registry.Bank{ID: "bank-a", Name: "A", RegNumber: "R-1"}))
		require.NoError(t, s.MarkVoted(ctx, "alice", "bank-a"))
		return boom
	})
	require.ErrorIs(t, err, boom)

	// Nothing the failed transaction did is visible.
	_, err = store.GetBank(ctx, "bank-a")
	assert.ErrorIs(t, err, sentinel.ErrNotFound)
	total, err := store.TotalBanks(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, total)
	voted, err := store.HasVoted(ctx, "alice", "bank-a")
	require.NoError(t, err)
	assert.False(t, voted)
}

func TestTxRunner_CommitsOnSuccess(t *testing.T) {
	ctx := context.Background()
	store := New()
	runner := NewTxRunner(store)

	err := runner.RunInTx(ctx, func(ctx context.Context, s registry.Store) error {
		return s.CreateBank(ctx, registry.Bank{ID: "bank-a", Name: "A", RegNumber: "R-1"})
	})
	require.NoError(t, err)

	err = runner.RunInReadTx(ctx, func(ctx context.Context, s registry.Store) error {
		bank, err := s.GetBank(ctx, "bank-a")
		if err != nil {
			return err
		}
		assert.Equal(t, "A", bank.Name)
		return nil
	})
	require.NoError(t, err)
}
