// Package engine orchestrates the per-record pipeline: uniqueness gate,
// actor apply, event log append. One Coordinator drives the whole run.
package engine

import (
	"context"
	"sort"
	"time"

	"github.com/yanun0323/logs"

	"main/internal/eventlog"
	"main/internal/model"
	"main/internal/obs"
	"main/internal/registry"
	"main/internal/shard"
	"main/internal/storage"
)

// Config assembles the engine.
type Config struct {
	RegistryShards int
	Shard          shard.Config
	EventLog       eventlog.Config // zero Path disables the log
}

// Coordinator threads each input record through registry check, actor apply,
// and durable append. Per-record failures are data, never fatal.
type Coordinator struct {
	registry *registry.Sharded
	shards   *shard.Manager
	log      *eventlog.Writer
	metrics  *obs.Metrics
}

// New builds and starts the engine components. ctx bounds the lifetime of
// every spawned actor.
func New(ctx context.Context, cold storage.Store, cfg Config, metrics *obs.Metrics) (*Coordinator, error) {
	c := &Coordinator{
		registry: registry.NewSharded(ctx, cfg.RegistryShards),
		shards:   shard.NewManager(ctx, cold, cfg.Shard),
		metrics:  metrics,
	}
	if cfg.EventLog.Path != "" {
		w, err := eventlog.NewWriter(cfg.EventLog)
		if err != nil {
			c.registry.Close()
			return nil, err
		}
		if err := w.Start(ctx); err != nil {
			c.registry.Close()
			return nil, err
		}
		c.log = w
	}
	return c, nil
}

// Process applies one input record. Deposit/withdrawal ids pass the
// uniqueness gate first; a Duplicate verdict stops the record before any
// actor call. Only a successful apply reaches the event log.
func (c *Coordinator) Process(ctx context.Context, op model.InputOp) error {
	start := time.Now()

	if op.Kind.CreatesTx() {
		if err := c.registry.CheckAndInsert(ctx, op.Tx); err != nil {
			if err == registry.ErrDuplicateTx {
				c.metrics.IncDuplicate()
			}
			return err
		}
	}

	if err := c.shards.Dispatch(ctx, op); err != nil {
		c.metrics.IncRejected(op.Kind)
		return err
	}

	c.metrics.IncApplied(op.Kind)
	c.metrics.ObserveApply(time.Since(start))

	if c.log != nil {
		if err := c.log.TryAppend(op); err != nil {
			c.metrics.IncLogAppendDrop()
			logs.Errorf("event log append dropped, %s client %d tx %d, err: %+v",
				op.Kind, op.Client, op.Tx, err)
		}
	}
	return nil
}

// Rebuild replays this engine's own event log from a prior run: ids are
// re-registered and rows re-applied through the actors, without re-appending.
func (c *Coordinator) Rebuild(ctx context.Context, path string) error {
	ops, err := eventlog.Replay(path)
	if err != nil {
		return err
	}
	for _, op := range ops {
		if op.Kind.CreatesTx() {
			_ = c.registry.CheckAndInsert(ctx, op.Tx)
		}
		if err := c.shards.Dispatch(ctx, op); err != nil {
			logs.Infof("rebuild: %s client %d tx %d not re-applied, err: %+v",
				op.Kind, op.Client, op.Tx, err)
		}
	}
	if len(ops) > 0 {
		logs.Infof("rebuilt engine state from %d logged operations", len(ops))
	}
	return nil
}

// Snapshots collects the final state of every account, sorted by client id.
func (c *Coordinator) Snapshots(ctx context.Context) []model.Snapshot {
	accounts := c.shards.SnapshotAll(ctx)
	snaps := make([]model.Snapshot, 0, len(accounts))
	for _, acc := range accounts {
		snaps = append(snaps, model.SnapshotOf(acc))
	}
	sort.Slice(snaps, func(i, j int) bool { return snaps[i].Client < snaps[j].Client })
	return snaps
}

// Snapshot returns one client's state, if the account ever existed.
func (c *Coordinator) Snapshot(ctx context.Context, client model.ClientID) (model.Snapshot, bool) {
	acc, ok := c.shards.Snapshot(ctx, client)
	if !ok {
		return model.Snapshot{}, false
	}
	return model.SnapshotOf(acc), true
}

// Metrics exposes the engine counters.
func (c *Coordinator) Metrics() *obs.Metrics {
	return c.metrics
}

// Close drains the actors, stops the registry, and flushes the log.
func (c *Coordinator) Close(ctx context.Context) error {
	c.shards.Close(ctx)
	c.registry.Close()
	if c.log != nil {
		return c.log.Close()
	}
	return nil
}
