package tokenbroker_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/redemption-core/kv"
	"github.com/warp/redemption-core/tokenbroker"
)

func TestIssueThenConsumeRoundTrips(t *testing.T) {
	ctx := context.Background()
	store := kv.NewMemory(nil)
	b := tokenbroker.New(store, 30*time.Second, 24)

	issuedAt := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	token, expiresAt, err := b.Issue(ctx, "ent-1", "user-1", "offer-1", nil, issuedAt)
	require.NoError(t, err)
	assert.NotEmpty(t, token)
	assert.Equal(t, issuedAt.Add(30*time.Second), expiresAt)

	rec, ok, err := b.Consume(ctx, token)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "ent-1", rec.EntitlementID)
	assert.Equal(t, "user-1", rec.UserID)
	assert.Equal(t, "offer-1", rec.OfferID)
}

func TestConsumeIsSingleUse(t *testing.T) {
	ctx := context.Background()
	store := kv.NewMemory(nil)
	b := tokenbroker.New(store, 30*time.Second, 24)

	token, _, err := b.Issue(ctx, "ent-1", "user-1", "offer-1", nil, time.Now())
	require.NoError(t, err)

	_, ok, err := b.Consume(ctx, token)
	require.NoError(t, err)
	require.True(t, ok)

	_, ok, err = b.Consume(ctx, token)
	require.NoError(t, err)
	assert.False(t, ok, "second consume of the same token must report absent")
}

func TestConcurrentConsumeYieldsExactlyOneWinner(t *testing.T) {
	ctx := context.Background()
	store := kv.NewMemory(nil)
	b := tokenbroker.New(store, 30*time.Second, 24)

	token, _, err := b.Issue(ctx, "ent-1", "user-1", "offer-1", nil, time.Now())
	require.NoError(t, err)

	const attempts = 8
	var wins int32
	var mu sync.Mutex
	var wg sync.WaitGroup
	wg.Add(attempts)
	for i := 0; i < attempts; i++ {
		go func() {
			defer wg.Done()
			_, ok, err := b.Consume(ctx, token)
			require.NoError(t, err)
			if ok {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.EqualValues(t, 1, wins, "exactly one concurrent consumer should win")
}

func TestTokenDoesNotSurviveItsTTL(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	store := kv.NewMemory(func() time.Time { return now })
	b := tokenbroker.New(store, 30*time.Second, 24)

	token, _, err := b.Issue(ctx, "ent-1", "user-1", "offer-1", nil, now)
	require.NoError(t, err)

	now = now.Add(31 * time.Second)
	_, ok, err := b.Consume(ctx, token)
	require.NoError(t, err)
	assert.False(t, ok, "expired token must not be consumable")
}
