// Package shard routes account commands to per-client actors. Clients are
// partitioned by client id mod M; each partition serializes actor creation so
// an actor is never spawned twice.
package shard

import (
	"context"
	"sync"

	"github.com/bytedance/sonic"
	"github.com/yanun0323/logs"

	"main/internal/account"
	"main/internal/model"
	"main/internal/storage"
)

// DefaultShards is the default client partition count.
const DefaultShards = 16

// Config tunes the manager and the actors it spawns.
type Config struct {
	Shards int
	Actor  account.Config
}

type managerShard struct {
	mu          sync.Mutex
	actors      map[model.ClientID]*account.Handle
	checkpoints map[model.ClientID][]byte // sonic-encoded model.Account
}

// Manager owns every account actor and the routing table to reach them.
type Manager struct {
	ctx    context.Context
	cfg    Config
	cold   storage.Store
	shards []*managerShard
}

// NewManager creates the partition table. Actors spawn lazily on first
// dispatch and inherit ctx as their lifetime.
func NewManager(ctx context.Context, cold storage.Store, cfg Config) *Manager {
	if cfg.Shards <= 0 {
		cfg.Shards = DefaultShards
	}
	shards := make([]*managerShard, cfg.Shards)
	for i := range shards {
		shards[i] = &managerShard{
			actors:      make(map[model.ClientID]*account.Handle),
			checkpoints: make(map[model.ClientID][]byte),
		}
	}
	return &Manager{ctx: ctx, cfg: cfg, cold: cold, shards: shards}
}

// Dispatch routes one operation to its account actor and returns the actor's
// verdict. A suspended actor is re-created from checkpoint and the send
// retried.
func (m *Manager) Dispatch(ctx context.Context, op model.InputOp) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		h := m.getOrCreate(op.Client)
		err := h.Process(ctx, op)
		if err == account.ErrShutdown {
			continue
		}
		return err
	}
}

// Snapshot returns the state of one client's account, live or checkpointed.
func (m *Manager) Snapshot(ctx context.Context, client model.ClientID) (model.Account, bool) {
	s := m.shardFor(client)
	s.mu.Lock()
	h := s.actors[client]
	cp, hasCP := s.checkpoints[client]
	s.mu.Unlock()

	if h != nil {
		if acc, err := h.Snapshot(ctx); err == nil {
			return acc, true
		}
		// The actor suspended under us; its exit hook has published the
		// checkpoint by the time the handle reports shutdown.
		s.mu.Lock()
		cp, hasCP = s.checkpoints[client]
		s.mu.Unlock()
	}
	if !hasCP {
		return model.Account{}, false
	}
	acc, ok := decodeCheckpoint(client, cp)
	return acc, ok
}

// SnapshotAll collects the state of every account that ever existed, querying
// shards in parallel the way ops never overlap: one reply per client, evicted
// actors answered from their checkpoints.
func (m *Manager) SnapshotAll(ctx context.Context) []model.Account {
	results := make([][]model.Account, len(m.shards))
	var wg sync.WaitGroup
	for i, s := range m.shards {
		wg.Add(1)
		go func(i int, s *managerShard) {
			defer wg.Done()
			results[i] = m.collectShard(ctx, s)
		}(i, s)
	}
	wg.Wait()

	var all []model.Account
	for _, part := range results {
		all = append(all, part...)
	}
	return all
}

func (m *Manager) collectShard(ctx context.Context, s *managerShard) []model.Account {
	s.mu.Lock()
	handles := make(map[model.ClientID]*account.Handle, len(s.actors))
	for client, h := range s.actors {
		handles[client] = h
	}
	checkpoints := make(map[model.ClientID][]byte, len(s.checkpoints))
	for client, cp := range s.checkpoints {
		checkpoints[client] = cp
	}
	s.mu.Unlock()

	accounts := make([]model.Account, 0, len(handles)+len(checkpoints))
	seen := make(map[model.ClientID]struct{}, len(handles))
	for client, h := range handles {
		acc, err := h.Snapshot(ctx)
		if err != nil {
			s.mu.Lock()
			cp, ok := s.checkpoints[client]
			s.mu.Unlock()
			if !ok {
				continue
			}
			if acc, ok = decodeCheckpoint(client, cp); !ok {
				continue
			}
		}
		accounts = append(accounts, acc)
		seen[client] = struct{}{}
	}
	for client, cp := range checkpoints {
		if _, ok := seen[client]; ok {
			continue
		}
		if acc, ok := decodeCheckpoint(client, cp); ok {
			accounts = append(accounts, acc)
		}
	}
	return accounts
}

// Close stops every live actor and waits for each to exit.
func (m *Manager) Close(ctx context.Context) {
	for _, s := range m.shards {
		s.mu.Lock()
		handles := make([]*account.Handle, 0, len(s.actors))
		for _, h := range s.actors {
			handles = append(handles, h)
		}
		s.mu.Unlock()
		for _, h := range handles {
			if err := h.Stop(ctx); err != nil {
				logs.Errorf("actor stop interrupted, err: %+v", err)
			}
		}
	}
}

func (m *Manager) shardFor(client model.ClientID) *managerShard {
	return m.shards[int(client)%len(m.shards)]
}

func (m *Manager) getOrCreate(client model.ClientID) *account.Handle {
	s := m.shardFor(client)
	s.mu.Lock()
	defer s.mu.Unlock()

	if h, ok := s.actors[client]; ok {
		return h
	}

	seed := model.NewAccount(client)
	if cp, ok := s.checkpoints[client]; ok {
		if acc, ok := decodeCheckpoint(client, cp); ok {
			seed = acc
		}
	}

	var h *account.Handle
	h = account.Spawn(m.ctx, seed, m.cold, m.cfg.Actor, func(final model.Account) {
		s.mu.Lock()
		defer s.mu.Unlock()
		if data, err := sonic.ConfigFastest.Marshal(final); err != nil {
			logs.Errorf("account %d checkpoint encode failed, err: %+v", client, err)
		} else {
			s.checkpoints[client] = data
		}
		if s.actors[client] == h {
			delete(s.actors, client)
		}
	})
	s.actors[client] = h
	return h
}

func decodeCheckpoint(client model.ClientID, data []byte) (model.Account, bool) {
	var acc model.Account
	if err := sonic.ConfigFastest.Unmarshal(data, &acc); err != nil {
		logs.Errorf("account %d checkpoint decode failed, err: %+v", client, err)
		return model.Account{}, false
	}
	return acc, true
}
