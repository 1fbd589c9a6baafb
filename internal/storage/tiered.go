package storage

import (
	"context"
	"time"

	"main/internal/model"
)

// DefaultHotCutoff is how long an entry stays in the hot tier before a
// migration sweep moves it to cold storage.
const DefaultHotCutoff = 90 * 24 * time.Hour

// Tiered keeps recent records in an in-memory hot tier and ages them into a
// shared cold Store. It is owned by exactly one account actor and is not safe
// for concurrent use; the cold Store behind it is.
type Tiered struct {
	hot    map[model.TxID]StoredTx
	cold   Store
	cutoff time.Duration
	now    func() time.Time
}

// NewTiered wraps the given cold store. A non-positive cutoff falls back to
// DefaultHotCutoff.
func NewTiered(cold Store, cutoff time.Duration) *Tiered {
	if cutoff <= 0 {
		cutoff = DefaultHotCutoff
	}
	return &Tiered{
		hot:    make(map[model.TxID]StoredTx),
		cold:   cold,
		cutoff: cutoff,
		now:    time.Now,
	}
}

// Get probes the hot tier first, then cold.
func (t *Tiered) Get(ctx context.Context, tx model.TxID) (StoredTx, bool, error) {
	if rec, ok := t.hot[tx]; ok {
		return rec, true, nil
	}
	return t.cold.Get(ctx, tx)
}

// Put writes to the hot tier, stamping the insert time if unset.
func (t *Tiered) Put(rec StoredTx) {
	if rec.CreatedAt == 0 {
		rec.CreatedAt = t.now().UnixNano()
	}
	t.hot[rec.Tx] = rec
}

// Update rewrites an existing record. A record still in the hot tier is
// updated there; a migrated one is updated in cold in place, so a following
// Get returns the new value either way.
func (t *Tiered) Update(ctx context.Context, rec StoredTx) error {
	if _, ok := t.hot[rec.Tx]; ok {
		t.hot[rec.Tx] = rec
		return nil
	}
	return t.cold.Put(ctx, rec)
}

// Remove deletes from both tiers.
func (t *Tiered) Remove(ctx context.Context, tx model.TxID) error {
	delete(t.hot, tx)
	return t.cold.Remove(ctx, tx)
}

// Migrate sweeps hot entries older than the cutoff into cold storage. Each
// entry is written to cold before it is dropped from hot; a failed write
// keeps the entry hot and the sweep moves on.
func (t *Tiered) Migrate(ctx context.Context) (migrated int, err error) {
	horizon := t.now().Add(-t.cutoff).UnixNano()
	for tx, rec := range t.hot {
		if rec.CreatedAt >= horizon {
			continue
		}
		if perr := t.cold.Put(ctx, rec); perr != nil {
			err = perr
			continue
		}
		delete(t.hot, tx)
		migrated++
	}
	return migrated, err
}

// Flush moves every hot entry to cold regardless of age. Used when an actor
// checkpoints before suspending.
func (t *Tiered) Flush(ctx context.Context) error {
	for tx, rec := range t.hot {
		if err := t.cold.Put(ctx, rec); err != nil {
			return err
		}
		delete(t.hot, tx)
	}
	return nil
}

// HotLen reports the resident hot-tier size.
func (t *Tiered) HotLen() int {
	return len(t.hot)
}
