package account

import "github.com/yanun0323/errors"

// Operation failures. All are recoverable at record granularity; the actor
// reports them to the caller and keeps serving its mailbox.
var (
	ErrInvalidAmount     = errors.New("invalid amount")
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrAccountLocked     = errors.New("account locked")
	ErrTxNotFound        = errors.New("transaction not found")
	ErrClientMismatch    = errors.New("client mismatch")
	ErrAlreadyDisputed   = errors.New("already disputed")
	ErrNotDisputed       = errors.New("not disputed")
	ErrStorage           = errors.New("cold storage failure")
	ErrShutdown          = errors.New("account actor stopped")
	ErrUnknownOp         = errors.New("unknown operation kind")
)
