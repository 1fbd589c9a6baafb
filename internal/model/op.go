package model

import (
	"github.com/shopspring/decimal"

	"main/internal/model/enum"
)

// ClientID identifies one client account.
type ClientID uint16

// TxID identifies one deposit or withdrawal. Globally unique across clients.
type TxID uint32

// InputOp is one parsed input record. Amount is zero for dispute-class ops.
type InputOp struct {
	Kind   enum.OpKind
	Client ClientID
	Tx     TxID
	Amount decimal.Decimal
}
