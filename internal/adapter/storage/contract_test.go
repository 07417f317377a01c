package storage

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rl1809/collectible-trade/internal/core/domain"
	"github.com/rl1809/collectible-trade/internal/port"
)

// runStoreContract checks the behaviour every adapter must share. Owner ids
// are randomised so integration runs do not collide with earlier data.
func runStoreContract(t *testing.T, store Store) {
	prefix := uuid.New().String()[:8]
	owner := func(name string) string { return prefix + "-" + name }

	t.Run("commit moves both legs and conserves items", func(t *testing.T) {
		ctx := context.Background()
		a, b := owner("a1"), owner("b1")
		require.NoError(t, store.SetHolding(ctx, a, "charizard", 3))
		require.NoError(t, store.SetHolding(ctx, b, "pikachu", 5))

		rec := newRecord(t, a, b, "charizard", 1, "pikachu", 2)
		require.NoError(t, store.CommitTrade(ctx, rec))

		assertHolding(t, store, a, "charizard", 2)
		assertHolding(t, store, a, "pikachu", 2)
		assertHolding(t, store, b, "charizard", 1)
		assertHolding(t, store, b, "pikachu", 3)

		got, err := store.GetTrade(ctx, rec.ID)
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, rec.ID, got.ID)
		assert.True(t, rec.InitiatorOffer.Equal(got.InitiatorOffer))
		assert.True(t, rec.RecipientOffer.Equal(got.RecipientOffer))
		assert.WithinDuration(t, rec.CommittedAt, got.CommittedAt, time.Second)

		list, err := store.ListTrades(ctx, b, 10)
		require.NoError(t, err)
		require.Len(t, list, 1)
		assert.Equal(t, rec.ID, list[0].ID)
	})

	t.Run("insufficient holding changes nothing", func(t *testing.T) {
		ctx := context.Background()
		a, b := owner("a2"), owner("b2")
		require.NoError(t, store.SetHolding(ctx, a, "charizard", 3))
		require.NoError(t, store.SetHolding(ctx, b, "pikachu", 1))

		rec := newRecord(t, a, b, "charizard", 1, "pikachu", 2)
		err := store.CommitTrade(ctx, rec)

		assert.ErrorIs(t, err, domain.ErrInsufficientHolding)
		assertHolding(t, store, a, "charizard", 3)
		assertHolding(t, store, b, "pikachu", 1)
		assertHolding(t, store, b, "charizard", 0)
		got, err := store.GetTrade(ctx, rec.ID)
		require.NoError(t, err)
		assert.Nil(t, got)
	})

	t.Run("gift creates the receiving holding", func(t *testing.T) {
		ctx := context.Background()
		a, b := owner("a3"), owner("b3")
		require.NoError(t, store.SetHolding(ctx, b, "eevee", 1))

		rec := domain.TradeRecord{
			ID:             uuid.New().String(),
			InitiatorID:    a,
			RecipientID:    b,
			InitiatorOffer: domain.NothingOffer(domain.PartyInitiator),
			RecipientOffer: mustOffer(t, domain.PartyRecipient, "eevee", 1),
			CommittedAt:    time.Now().UTC().Truncate(time.Microsecond),
		}
		require.NoError(t, store.CommitTrade(ctx, rec))

		assertHolding(t, store, a, "eevee", 1)
		assertHolding(t, store, b, "eevee", 0)
		holdings, err := store.ListHoldings(ctx, b)
		require.NoError(t, err)
		assert.Empty(t, holdings, "a zero holding is absent")
	})

	t.Run("duplicate trade id is rejected", func(t *testing.T) {
		ctx := context.Background()
		a, b := owner("a4"), owner("b4")
		require.NoError(t, store.SetHolding(ctx, a, "charizard", 3))

		rec := newRecord(t, a, b, "charizard", 1, "", 0)
		require.NoError(t, store.CommitTrade(ctx, rec))
		assert.ErrorIs(t, store.CommitTrade(ctx, rec), domain.ErrDuplicateTrade)
		assertHolding(t, store, a, "charizard", 2)
	})

	t.Run("adjust holding is conditional", func(t *testing.T) {
		ctx := context.Background()
		a := owner("a5")

		qty, err := store.AdjustHolding(ctx, a, "mew", 2)
		require.NoError(t, err)
		assert.Equal(t, 2, qty)

		_, err = store.AdjustHolding(ctx, a, "mew", -3)
		assert.ErrorIs(t, err, domain.ErrInsufficientHolding)

		qty, err = store.AdjustHolding(ctx, a, "mew", -2)
		require.NoError(t, err)
		assert.Equal(t, 0, qty)
	})

	t.Run("concurrent commits never double spend", func(t *testing.T) {
		ctx := context.Background()
		a := owner("a6")
		require.NoError(t, store.SetHolding(ctx, a, "charizard", 5))

		var ok atomic.Int32
		var wg sync.WaitGroup
		for i := 0; i < 20; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				rec := newRecord(t, a, owner(fmt.Sprintf("r6-%d", i)), "charizard", 1, "", 0)
				if err := store.CommitTrade(ctx, rec); err == nil {
					ok.Add(1)
				}
			}(i)
		}
		wg.Wait()

		left, err := store.GetHolding(ctx, a, "charizard")
		require.NoError(t, err)
		assert.Equal(t, 5, int(ok.Load())+left, "every unit is either traded away or still held")
		assert.GreaterOrEqual(t, left, 0)
	})
}

func newRecord(t *testing.T, initiator, recipient, giveItem string, giveQty int, takeItem string, takeQty int) domain.TradeRecord {
	t.Helper()
	return domain.TradeRecord{
		ID:             uuid.New().String(),
		InitiatorID:    initiator,
		RecipientID:    recipient,
		InitiatorOffer: mustOffer(t, domain.PartyInitiator, giveItem, giveQty),
		RecipientOffer: mustOffer(t, domain.PartyRecipient, takeItem, takeQty),
		CommittedAt:    time.Now().UTC().Truncate(time.Microsecond),
	}
}

func mustOffer(t *testing.T, p domain.Party, item string, qty int) domain.Offer {
	t.Helper()
	o, err := domain.NewOffer(p, item, qty)
	require.NoError(t, err)
	return o
}

func assertHolding(t *testing.T, store port.InventoryRepository, owner, item string, want int) {
	t.Helper()
	got, err := store.GetHolding(context.Background(), owner, item)
	require.NoError(t, err)
	assert.Equal(t, want, got, "%s holding of %s", owner, item)
}
