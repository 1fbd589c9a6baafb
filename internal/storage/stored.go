package storage

import (
	"context"

	"github.com/shopspring/decimal"
	"github.com/yanun0323/errors"

	"main/internal/model"
)

var (
	ErrClosed = errors.New("store closed")
)

// StoredTx is the dispute-servicing record kept for each applied deposit.
// Withdrawals are final and leave no record.
type StoredTx struct {
	Tx        model.TxID      `json:"tx"`
	Client    model.ClientID  `json:"client"`
	Amount    decimal.Decimal `json:"amount"`
	Disputed  bool            `json:"disputed"`
	CreatedAt int64           `json:"createdAt"` // unix nanoseconds
}

// Store is a durable mapping TxID -> StoredTx. Implementations must be safe
// for concurrent use; deposit ids are globally unique so one store may be
// shared across accounts.
type Store interface {
	Get(ctx context.Context, tx model.TxID) (StoredTx, bool, error)
	Put(ctx context.Context, rec StoredTx) error
	Remove(ctx context.Context, tx model.TxID) error
}
