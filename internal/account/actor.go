package account

import (
	"context"
	"time"

	"github.com/yanun0323/logs"

	"main/internal/model"
	"main/internal/model/enum"
	"main/internal/storage"
)

// Config tunes one account actor.
type Config struct {
	MailboxSize       int
	HotCutoff         time.Duration
	MigrateInterval   time.Duration
	IdleTimeout       time.Duration // 0 disables idle suspension (batch mode)
	IdleCheckInterval time.Duration
}

const (
	defaultMailboxSize       = 10_000
	defaultMigrateInterval   = time.Hour
	defaultIdleCheckInterval = 5 * time.Minute
)

func (c Config) withDefaults() Config {
	if c.MailboxSize <= 0 {
		c.MailboxSize = defaultMailboxSize
	}
	if c.HotCutoff <= 0 {
		c.HotCutoff = storage.DefaultHotCutoff
	}
	if c.MigrateInterval <= 0 {
		c.MigrateInterval = defaultMigrateInterval
	}
	if c.IdleCheckInterval <= 0 {
		c.IdleCheckInterval = defaultIdleCheckInterval
	}
	return c
}

type msgKind uint8

const (
	msgApply msgKind = iota
	msgSnapshot
	msgMigrate
	msgStop
)

type message struct {
	kind  msgKind
	op    model.InputOp
	reply chan error
	state chan model.Account
}

// Actor is the sole mutator of one account. Commands arrive on a private
// bounded FIFO mailbox; at most one executes at a time.
type Actor struct {
	client       model.ClientID
	account      model.Account
	store        *storage.Tiered
	mailbox      chan message
	done         chan struct{}
	cfg          Config
	onExit       func(model.Account)
	lastActivity time.Time
}

// Spawn creates an actor seeded with the given state, starts its loop, and
// returns the handle for it. onExit, if set, observes the final account state
// right before the actor's handle goes dead (the checkpoint hook).
func Spawn(ctx context.Context, seed model.Account, cold storage.Store, cfg Config, onExit func(model.Account)) *Handle {
	cfg = cfg.withDefaults()
	a := &Actor{
		client:       seed.Client,
		account:      seed,
		store:        storage.NewTiered(cold, cfg.HotCutoff),
		mailbox:      make(chan message, cfg.MailboxSize),
		done:         make(chan struct{}),
		cfg:          cfg,
		onExit:       onExit,
		lastActivity: time.Now(),
	}
	go a.run(ctx)
	return &Handle{mailbox: a.mailbox, done: a.done}
}

func (a *Actor) run(ctx context.Context) {
	migrate := time.NewTicker(a.cfg.MigrateInterval)
	defer migrate.Stop()
	idle := time.NewTicker(a.cfg.IdleCheckInterval)
	defer idle.Stop()
	defer a.exit()

	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-a.mailbox:
			a.lastActivity = time.Now()
			if a.serve(ctx, msg) {
				return
			}
		case <-migrate.C:
			a.sweep(ctx)
		case <-idle.C:
			if a.cfg.IdleTimeout > 0 && time.Since(a.lastActivity) > a.cfg.IdleTimeout {
				logs.Infof("account %d idle for %s, suspending", a.client, a.cfg.IdleTimeout)
				if err := a.store.Flush(ctx); err != nil {
					logs.Errorf("account %d checkpoint flush failed, err: %+v", a.client, err)
					continue
				}
				return
			}
		}
	}
}

// serve handles one dequeued message; the returned flag stops the loop.
func (a *Actor) serve(ctx context.Context, msg message) (stop bool) {
	switch msg.kind {
	case msgApply:
		msg.reply <- a.apply(ctx, msg.op)
	case msgSnapshot:
		msg.state <- a.account
	case msgMigrate:
		a.sweep(ctx)
		if msg.reply != nil {
			msg.reply <- nil
		}
	case msgStop:
		if msg.reply != nil {
			msg.reply <- nil
		}
		return true
	}
	return false
}

// exit drains stragglers, publishes the checkpoint, and kills the handle.
func (a *Actor) exit() {
	for {
		select {
		case msg := <-a.mailbox:
			switch msg.kind {
			case msgApply:
				msg.reply <- ErrShutdown
			case msgSnapshot:
				msg.state <- a.account
			default:
				if msg.reply != nil {
					msg.reply <- ErrShutdown
				}
			}
			continue
		default:
		}
		break
	}
	if a.onExit != nil {
		a.onExit(a.account)
	}
	close(a.done)
}

func (a *Actor) sweep(ctx context.Context) {
	if _, err := a.store.Migrate(ctx); err != nil {
		logs.Errorf("account %d hot/cold migration failed, err: %+v", a.client, err)
	}
}

func (a *Actor) apply(ctx context.Context, op model.InputOp) error {
	switch op.Kind {
	case enum.OpKindDeposit:
		return a.deposit(op)
	case enum.OpKindWithdrawal:
		return a.withdrawal(op)
	case enum.OpKindDispute:
		return a.dispute(ctx, op)
	case enum.OpKindResolve:
		return a.resolve(ctx, op)
	case enum.OpKindChargeback:
		return a.chargeback(ctx, op)
	default:
		return ErrUnknownOp
	}
}

func (a *Actor) deposit(op model.InputOp) error {
	if !op.Amount.IsPositive() {
		return ErrInvalidAmount
	}
	if a.account.Locked {
		return ErrAccountLocked
	}

	a.account.Available = a.account.Available.Add(op.Amount)
	a.store.Put(storage.StoredTx{
		Tx:     op.Tx,
		Client: a.client,
		Amount: op.Amount,
	})
	return nil
}

func (a *Actor) withdrawal(op model.InputOp) error {
	if !op.Amount.IsPositive() {
		return ErrInvalidAmount
	}
	if a.account.Locked {
		return ErrAccountLocked
	}
	if a.account.Available.LessThan(op.Amount) {
		return ErrInsufficientFunds
	}

	// Withdrawals are final: no StoredTx, nothing to dispute later.
	a.account.Available = a.account.Available.Sub(op.Amount)
	return nil
}

func (a *Actor) dispute(ctx context.Context, op model.InputOp) error {
	if a.account.Locked {
		return ErrAccountLocked
	}
	rec, err := a.lookup(ctx, op)
	if err != nil {
		return err
	}
	if rec.Disputed {
		return ErrAlreadyDisputed
	}

	rec.Disputed = true
	if err := a.store.Update(ctx, rec); err != nil {
		logs.Errorf("account %d dispute update failed, tx %d, err: %+v", a.client, op.Tx, err)
		return ErrStorage
	}

	// Available may go negative here; the balance identity holds regardless.
	a.account.Available = a.account.Available.Sub(rec.Amount)
	a.account.Held = a.account.Held.Add(rec.Amount)
	return nil
}

func (a *Actor) resolve(ctx context.Context, op model.InputOp) error {
	if a.account.Locked {
		return ErrAccountLocked
	}
	rec, err := a.lookup(ctx, op)
	if err != nil {
		return err
	}
	if !rec.Disputed {
		return ErrNotDisputed
	}

	rec.Disputed = false
	if err := a.store.Update(ctx, rec); err != nil {
		logs.Errorf("account %d resolve update failed, tx %d, err: %+v", a.client, op.Tx, err)
		return ErrStorage
	}

	a.account.Held = a.account.Held.Sub(rec.Amount)
	a.account.Available = a.account.Available.Add(rec.Amount)
	return nil
}

func (a *Actor) chargeback(ctx context.Context, op model.InputOp) error {
	if a.account.Locked {
		return ErrAccountLocked
	}
	rec, err := a.lookup(ctx, op)
	if err != nil {
		return err
	}
	if !rec.Disputed {
		return ErrNotDisputed
	}

	if err := a.store.Remove(ctx, op.Tx); err != nil {
		// The balances and the lock are authoritative; a stale cold record
		// cannot be disputed again once the account is locked.
		logs.Errorf("account %d chargeback remove failed, tx %d, err: %+v", a.client, op.Tx, err)
	}

	a.account.Held = a.account.Held.Sub(rec.Amount)
	a.account.Locked = true
	return nil
}

func (a *Actor) lookup(ctx context.Context, op model.InputOp) (storage.StoredTx, error) {
	rec, ok, err := a.store.Get(ctx, op.Tx)
	if err != nil {
		logs.Errorf("account %d cold storage get failed, tx %d, err: %+v", a.client, op.Tx, err)
		return storage.StoredTx{}, ErrStorage
	}
	if !ok {
		return storage.StoredTx{}, ErrTxNotFound
	}
	if rec.Client != a.client {
		return storage.StoredTx{}, ErrClientMismatch
	}
	return rec, nil
}
