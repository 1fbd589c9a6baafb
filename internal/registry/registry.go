// Package registry enforces global transaction-id uniqueness for new-id
// operations. The id space is partitioned across shard actors so concurrent
// probes for distinct shards never contend.
package registry

import (
	"context"
	"sync"

	"github.com/yanun0323/errors"

	"main/internal/model"
)

var (
	ErrDuplicateTx = errors.New("duplicate transaction id")
	ErrClosed      = errors.New("registry closed")
)

// DefaultShards is the default registry partition count.
const DefaultShards = 16

const shardMailboxSize = 10_000

type probe struct {
	tx    model.TxID
	fresh chan bool
}

// Sharded routes CheckAndInsert probes to per-shard actors by tx mod N.
type Sharded struct {
	shards    []chan probe
	done      chan struct{}
	closeOnce sync.Once
}

// NewSharded spawns n shard actors (DefaultShards when n <= 0).
func NewSharded(ctx context.Context, n int) *Sharded {
	if n <= 0 {
		n = DefaultShards
	}
	r := &Sharded{
		shards: make([]chan probe, n),
		done:   make(chan struct{}),
	}
	for i := range r.shards {
		ch := make(chan probe, shardMailboxSize)
		r.shards[i] = ch
		go r.runShard(ctx, ch)
	}
	return r
}

// runShard owns one partition of the seen-id set.
func (r *Sharded) runShard(ctx context.Context, ch chan probe) {
	seen := make(map[model.TxID]struct{})
	for {
		select {
		case <-ctx.Done():
			return
		case <-r.done:
			return
		case p := <-ch:
			_, dup := seen[p.tx]
			if !dup {
				seen[p.tx] = struct{}{}
			}
			p.fresh <- !dup
		}
	}
}

// CheckAndInsert records the id if unseen. It returns ErrDuplicateTx when the
// id was observed before; on success the id is recorded before returning, so
// the verdict is authoritative for any later probe.
func (r *Sharded) CheckAndInsert(ctx context.Context, tx model.TxID) error {
	p := probe{tx: tx, fresh: make(chan bool, 1)}
	shard := r.shards[int(uint32(tx))%len(r.shards)]

	select {
	case <-r.done:
		return ErrClosed
	default:
	}
	select {
	case shard <- p:
	case <-r.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case fresh := <-p.fresh:
		if !fresh {
			return ErrDuplicateTx
		}
		return nil
	case <-r.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close stops all shard actors. In-flight probes may report ErrClosed.
func (r *Sharded) Close() {
	r.closeOnce.Do(func() { close(r.done) })
}
