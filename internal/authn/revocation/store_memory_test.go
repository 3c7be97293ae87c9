package revocation

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryList(t *testing.T) {
	ctx := context.Background()
	now := time.Now()
	clock := func() time.Time { return now }
	list := NewMemoryList(WithClock(clock))

	revoked, err := list.IsRevoked(ctx, "hsbc")
	require.NoError(t, err)
	assert.False(t, revoked)

	require.NoError(t, list.Revoke(ctx, "hsbc", time.Hour))

	revoked, err = list.IsRevoked(ctx, "hsbc")
	require.NoError(t, err)
	assert.True(t, revoked)

	// entry lapses with the token lifetime
	now = now.Add(2 * time.Hour)
	revoked, err = list.IsRevoked(ctx, "hsbc")
	require.NoError(t, err)
	assert.False(t, revoked)
}

func TestMemoryList_RejectsNonPositiveTTL(t *testing.T) {
	list := NewMemoryList()
	assert.Error(t, list.Revoke(context.Background(), "hsbc", 0))
	assert.Error(t, list.Revoke(context.Background(), "hsbc", -time.Minute))
}
