package account

import (
	"context"

	"main/internal/model"
)

// Handle is the routing side of an actor. It stays valid after the actor
// suspends; sends then fail with ErrShutdown so the caller can re-create.
type Handle struct {
	mailbox chan message
	done    chan struct{}
}

// Process applies one operation and waits for the actor's verdict.
func (h *Handle) Process(ctx context.Context, op model.InputOp) error {
	reply := make(chan error, 1)
	if err := h.send(ctx, message{kind: msgApply, op: op, reply: reply}); err != nil {
		return err
	}
	return h.await(ctx, reply)
}

// Snapshot returns a copy of the current account state.
func (h *Handle) Snapshot(ctx context.Context) (model.Account, error) {
	state := make(chan model.Account, 1)
	if err := h.send(ctx, message{kind: msgSnapshot, state: state}); err != nil {
		return model.Account{}, err
	}
	select {
	case acc := <-state:
		return acc, nil
	case <-h.done:
		select {
		case acc := <-state:
			return acc, nil
		default:
			return model.Account{}, ErrShutdown
		}
	case <-ctx.Done():
		return model.Account{}, ctx.Err()
	}
}

// Migrate forces a hot-to-cold sweep and waits for it.
func (h *Handle) Migrate(ctx context.Context) error {
	reply := make(chan error, 1)
	if err := h.send(ctx, message{kind: msgMigrate, reply: reply}); err != nil {
		return err
	}
	return h.await(ctx, reply)
}

// Stop asks the actor to exit and waits until it has.
func (h *Handle) Stop(ctx context.Context) error {
	reply := make(chan error, 1)
	if err := h.send(ctx, message{kind: msgStop, reply: reply}); err != nil {
		if err == ErrShutdown {
			return nil
		}
		return err
	}
	select {
	case <-h.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Done is closed once the actor has exited.
func (h *Handle) Done() <-chan struct{} {
	return h.done
}

// send blocks when the mailbox is full; that is the backpressure path from a
// slow account back to the coordinator.
func (h *Handle) send(ctx context.Context, msg message) error {
	select {
	case <-h.done:
		return ErrShutdown
	default:
	}
	select {
	case h.mailbox <- msg:
		return nil
	case <-h.done:
		return ErrShutdown
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (h *Handle) await(ctx context.Context, reply chan error) error {
	select {
	case err := <-reply:
		return err
	case <-h.done:
		select {
		case err := <-reply:
			return err
		default:
			return ErrShutdown
		}
	case <-ctx.Done():
		return ctx.Err()
	}
}
