package engine

import (
	"context"
	"path/filepath"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"main/internal/account"
	"main/internal/model"
	"main/internal/model/enum"
	"main/internal/obs"
	"main/internal/registry"
	"main/internal/storage"
)

func newTestEngine(t *testing.T, logPath string) *Coordinator {
	t.Helper()
	cfg := Config{}
	cfg.EventLog.Path = logPath
	eng, err := New(context.Background(), storage.NewMemoryStore(), cfg, obs.NewMetrics())
	require.NoError(t, err)
	t.Cleanup(func() { _ = eng.Close(context.Background()) })
	return eng
}

func op(kind enum.OpKind, client model.ClientID, tx model.TxID, amount string) model.InputOp {
	o := model.InputOp{Kind: kind, Client: client, Tx: tx}
	if amount != "" {
		o.Amount = decimal.RequireFromString(amount)
	}
	return o
}

func apply(ctx context.Context, eng *Coordinator, ops []model.InputOp) []error {
	errs := make([]error, len(ops))
	for i, o := range ops {
		errs[i] = eng.Process(ctx, o)
	}
	return errs
}

func requireRow(t *testing.T, s model.Snapshot, client model.ClientID, available, held, total string, locked bool) {
	t.Helper()
	require.Equal(t, client, s.Client)
	require.Equal(t, available, s.Available.StringFixed(4))
	require.Equal(t, held, s.Held.StringFixed(4))
	require.Equal(t, total, s.Total.StringFixed(4))
	require.Equal(t, locked, s.Locked)
}

func TestDisputeScenario(t *testing.T) {
	ctx := context.Background()
	eng := newTestEngine(t, "")

	for _, err := range apply(ctx, eng, []model.InputOp{
		op(enum.OpKindDeposit, 1, 1, "100.0"),
		op(enum.OpKindDeposit, 1, 2, "50.0"),
		op(enum.OpKindWithdrawal, 1, 3, "30.0"),
		op(enum.OpKindDispute, 1, 1, ""),
	}) {
		require.NoError(t, err)
	}

	snaps := eng.Snapshots(ctx)
	require.Len(t, snaps, 1)
	requireRow(t, snaps[0], 1, "20.0000", "100.0000", "120.0000", false)
}

func TestDisputeAfterSpendThenResolve(t *testing.T) {
	ctx := context.Background()
	eng := newTestEngine(t, "")

	for _, err := range apply(ctx, eng, []model.InputOp{
		op(enum.OpKindDeposit, 1, 1, "100.0"),
		op(enum.OpKindWithdrawal, 1, 2, "60.0"),
		op(enum.OpKindDispute, 1, 1, ""),
	}) {
		require.NoError(t, err)
	}

	snaps := eng.Snapshots(ctx)
	require.Len(t, snaps, 1)
	requireRow(t, snaps[0], 1, "-60.0000", "100.0000", "40.0000", false)

	require.NoError(t, eng.Process(ctx, op(enum.OpKindResolve, 1, 1, "")))
	snaps = eng.Snapshots(ctx)
	requireRow(t, snaps[0], 1, "40.0000", "0.0000", "40.0000", false)
}

func TestDisputeAfterSpendThenChargeback(t *testing.T) {
	ctx := context.Background()
	eng := newTestEngine(t, "")

	for _, err := range apply(ctx, eng, []model.InputOp{
		op(enum.OpKindDeposit, 1, 1, "100.0"),
		op(enum.OpKindWithdrawal, 1, 2, "60.0"),
		op(enum.OpKindDispute, 1, 1, ""),
		op(enum.OpKindChargeback, 1, 1, ""),
	}) {
		require.NoError(t, err)
	}

	snaps := eng.Snapshots(ctx)
	require.Len(t, snaps, 1)
	requireRow(t, snaps[0], 1, "-60.0000", "0.0000", "-60.0000", true)

	// Frozen for good: later ops bounce off and change nothing.
	require.ErrorIs(t, eng.Process(ctx, op(enum.OpKindDeposit, 1, 9, "5.0")), account.ErrAccountLocked)
	snaps = eng.Snapshots(ctx)
	requireRow(t, snaps[0], 1, "-60.0000", "0.0000", "-60.0000", true)
}

func TestDuplicateTxRejectedAcrossClients(t *testing.T) {
	ctx := context.Background()
	eng := newTestEngine(t, "")

	require.NoError(t, eng.Process(ctx, op(enum.OpKindDeposit, 1, 1, "100.0")))
	require.ErrorIs(t, eng.Process(ctx, op(enum.OpKindDeposit, 2, 1, "50.0")), registry.ErrDuplicateTx)

	// The duplicate was stopped before reaching any actor, so client 2 was
	// never created.
	snaps := eng.Snapshots(ctx)
	require.Len(t, snaps, 1)
	requireRow(t, snaps[0], 1, "100.0000", "0.0000", "100.0000", false)
	require.Equal(t, uint64(1), eng.Metrics().Snapshot().Duplicates)
}

func TestDuplicateTxOfOppositeKind(t *testing.T) {
	ctx := context.Background()
	eng := newTestEngine(t, "")

	require.NoError(t, eng.Process(ctx, op(enum.OpKindDeposit, 1, 1, "100.0")))
	require.ErrorIs(t, eng.Process(ctx, op(enum.OpKindWithdrawal, 1, 1, "10.0")), registry.ErrDuplicateTx)

	snaps := eng.Snapshots(ctx)
	requireRow(t, snaps[0], 1, "100.0000", "0.0000", "100.0000", false)
}

func TestTxIDStaysBurnedAfterChargeback(t *testing.T) {
	ctx := context.Background()
	eng := newTestEngine(t, "")

	for _, err := range apply(ctx, eng, []model.InputOp{
		op(enum.OpKindDeposit, 1, 1, "100.0"),
		op(enum.OpKindDispute, 1, 1, ""),
		op(enum.OpKindChargeback, 1, 1, ""),
	}) {
		require.NoError(t, err)
	}

	// The registry remembers the id even though the stored record is gone.
	require.ErrorIs(t, eng.Process(ctx, op(enum.OpKindDeposit, 2, 1, "5.0")), registry.ErrDuplicateTx)
}

func TestClientMismatchLeavesBothAccountsUntouched(t *testing.T) {
	ctx := context.Background()
	eng := newTestEngine(t, "")

	require.NoError(t, eng.Process(ctx, op(enum.OpKindDeposit, 1, 1, "100.0")))
	require.NoError(t, eng.Process(ctx, op(enum.OpKindDeposit, 2, 2, "10.0")))
	require.Error(t, eng.Process(ctx, op(enum.OpKindDispute, 2, 1, "")))

	snaps := eng.Snapshots(ctx)
	require.Len(t, snaps, 2)
	requireRow(t, snaps[0], 1, "100.0000", "0.0000", "100.0000", false)
	requireRow(t, snaps[1], 2, "10.0000", "0.0000", "10.0000", false)
}

func TestInsufficientFundsRejected(t *testing.T) {
	ctx := context.Background()
	eng := newTestEngine(t, "")

	require.NoError(t, eng.Process(ctx, op(enum.OpKindDeposit, 1, 1, "100.0")))
	require.ErrorIs(t, eng.Process(ctx, op(enum.OpKindWithdrawal, 1, 2, "200.0")), account.ErrInsufficientFunds)

	snaps := eng.Snapshots(ctx)
	requireRow(t, snaps[0], 1, "100.0000", "0.0000", "100.0000", false)
}

// Replaying the same input against fresh engines is deterministic.
func TestReplayDeterminism(t *testing.T) {
	ctx := context.Background()
	input := []model.InputOp{
		op(enum.OpKindDeposit, 1, 1, "100.0"),
		op(enum.OpKindDeposit, 2, 2, "200.0"),
		op(enum.OpKindWithdrawal, 1, 3, "25.0"),
		op(enum.OpKindDispute, 1, 1, ""),
		op(enum.OpKindDeposit, 3, 4, "7.5"),
		op(enum.OpKindDispute, 2, 2, ""),
		op(enum.OpKindChargeback, 2, 2, ""),
		op(enum.OpKindResolve, 1, 1, ""),
		op(enum.OpKindDeposit, 1, 1, "1.0"), // duplicate
		op(enum.OpKindWithdrawal, 3, 5, "100.0"), // insufficient
	}

	first := newTestEngine(t, "")
	apply(ctx, first, input)
	second := newTestEngine(t, "")
	apply(ctx, second, input)

	require.Equal(t, first.Snapshots(ctx), second.Snapshots(ctx))
}

// Interleaving across clients must not change any per-client outcome.
func TestCrossClientInterleavingMatchesSequential(t *testing.T) {
	ctx := context.Background()

	perClient := func(c model.ClientID) []model.InputOp {
		base := model.TxID(uint32(c) * 100)
		return []model.InputOp{
			op(enum.OpKindDeposit, c, base+1, "100.0"),
			op(enum.OpKindDeposit, c, base+2, "50.0"),
			op(enum.OpKindWithdrawal, c, base+3, "60.0"),
			op(enum.OpKindDispute, c, base+1, ""),
			op(enum.OpKindResolve, c, base+1, ""),
			op(enum.OpKindDispute, c, base+2, ""),
		}
	}

	sequential := newTestEngine(t, "")
	for c := model.ClientID(1); c <= 16; c++ {
		apply(ctx, sequential, perClient(c))
	}

	interleaved := newTestEngine(t, "")
	var wg sync.WaitGroup
	for c := model.ClientID(1); c <= 16; c++ {
		wg.Add(1)
		go func(c model.ClientID) {
			defer wg.Done()
			apply(ctx, interleaved, perClient(c))
		}(c)
	}
	wg.Wait()

	require.Equal(t, sequential.Snapshots(ctx), interleaved.Snapshots(ctx))
}

func TestRebuildFromEventLog(t *testing.T) {
	ctx := context.Background()
	logPath := filepath.Join(t.TempDir(), "events.log")

	first := newTestEngine(t, logPath)
	for _, err := range apply(ctx, first, []model.InputOp{
		op(enum.OpKindDeposit, 1, 1, "100.0"),
		op(enum.OpKindWithdrawal, 1, 2, "30.0"),
		op(enum.OpKindDispute, 1, 1, ""),
	}) {
		require.NoError(t, err)
	}
	want := first.Snapshots(ctx)
	require.NoError(t, first.Close(ctx))

	second := newTestEngine(t, logPath)
	require.NoError(t, second.Rebuild(ctx, logPath))
	require.Equal(t, want, second.Snapshots(ctx))

	// Replayed ids are registered again: the old deposit id stays burned.
	require.ErrorIs(t, second.Process(ctx, op(enum.OpKindDeposit, 2, 1, "5.0")), registry.ErrDuplicateTx)
}
