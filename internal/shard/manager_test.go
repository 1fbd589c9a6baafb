package shard

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"main/internal/account"
	"main/internal/model"
	"main/internal/model/enum"
	"main/internal/storage"
)

func deposit(client model.ClientID, tx model.TxID, amount string) model.InputOp {
	return model.InputOp{
		Kind:   enum.OpKindDeposit,
		Client: client,
		Tx:     tx,
		Amount: decimal.RequireFromString(amount),
	}
}

func TestDispatchCreatesActorsLazily(t *testing.T) {
	ctx := context.Background()
	m := NewManager(ctx, storage.NewMemoryStore(), Config{Shards: 4})
	defer m.Close(ctx)

	require.NoError(t, m.Dispatch(ctx, deposit(1, 1, "10.0")))
	require.NoError(t, m.Dispatch(ctx, deposit(5, 2, "20.0"))) // same shard as client 1
	require.NoError(t, m.Dispatch(ctx, deposit(1, 3, "5.0")))

	acc, ok := m.Snapshot(ctx, 1)
	require.True(t, ok)
	require.Equal(t, "15.0000", acc.Available.StringFixed(4))

	_, ok = m.Snapshot(ctx, 99)
	require.False(t, ok, "client 99 never existed")
}

func TestDispatchParallelClientsSettle(t *testing.T) {
	ctx := context.Background()
	m := NewManager(ctx, storage.NewMemoryStore(), Config{Shards: 4})
	defer m.Close(ctx)

	const clients = 32
	const perClient = 25
	var wg sync.WaitGroup
	for c := 1; c <= clients; c++ {
		wg.Add(1)
		go func(c int) {
			defer wg.Done()
			for i := 0; i < perClient; i++ {
				tx := model.TxID(c*1000 + i)
				require.NoError(t, m.Dispatch(ctx, deposit(model.ClientID(c), tx, "1.0")))
			}
		}(c)
	}
	wg.Wait()

	accounts := m.SnapshotAll(ctx)
	require.Len(t, accounts, clients)
	for _, acc := range accounts {
		require.Equal(t, "25.0000", acc.Available.StringFixed(4))
	}
}

func TestIdleEvictionRematerializesFromCheckpoint(t *testing.T) {
	ctx := context.Background()
	cold := storage.NewMemoryStore()
	m := NewManager(ctx, cold, Config{
		Shards: 2,
		Actor: account.Config{
			IdleTimeout:       10 * time.Millisecond,
			IdleCheckInterval: 5 * time.Millisecond,
		},
	})
	defer m.Close(ctx)

	require.NoError(t, m.Dispatch(ctx, deposit(3, 1, "80.0")))

	// Wait for the actor to suspend: its handle disappears from the shard.
	require.Eventually(t, func() bool {
		s := m.shardFor(3)
		s.mu.Lock()
		defer s.mu.Unlock()
		_, live := s.actors[3]
		return !live
	}, 2*time.Second, 5*time.Millisecond, "actor did not suspend")

	// The evicted account still answers snapshots from its checkpoint.
	acc, ok := m.Snapshot(ctx, 3)
	require.True(t, ok)
	require.Equal(t, "80.0000", acc.Available.StringFixed(4))
	require.Len(t, m.SnapshotAll(ctx), 1)

	// A new command re-creates the actor with full state, including the
	// deposit record that was flushed to the cold tier.
	require.NoError(t, m.Dispatch(ctx, model.InputOp{Kind: enum.OpKindDispute, Client: 3, Tx: 1}))
	acc, ok = m.Snapshot(ctx, 3)
	require.True(t, ok)
	require.Equal(t, "0.0000", acc.Available.StringFixed(4))
	require.Equal(t, "80.0000", acc.Held.StringFixed(4))
}

func TestSnapshotAllCoversEveryLiveActor(t *testing.T) {
	ctx := context.Background()
	m := NewManager(ctx, storage.NewMemoryStore(), Config{Shards: 2})
	defer m.Close(ctx)

	for c := 1; c <= 8; c++ {
		require.NoError(t, m.Dispatch(ctx, deposit(model.ClientID(c), model.TxID(c), "10.0")))
	}

	accounts := m.SnapshotAll(ctx)
	require.Len(t, accounts, 8)
	seen := make(map[model.ClientID]bool)
	for _, acc := range accounts {
		seen[acc.Client] = true
	}
	require.Len(t, seen, 8)
}
