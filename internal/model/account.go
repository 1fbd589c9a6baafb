package model

import "github.com/shopspring/decimal"

// Account is the balance state of one client. Available and Total may go
// negative after disputes and chargebacks; Held never does.
type Account struct {
	Client    ClientID        `json:"client"`
	Available decimal.Decimal `json:"available"`
	Held      decimal.Decimal `json:"held"`
	Locked    bool            `json:"locked"`
}

// NewAccount returns the zero-balance, unlocked state for a client.
func NewAccount(client ClientID) Account {
	return Account{
		Client:    client,
		Available: decimal.Zero,
		Held:      decimal.Zero,
	}
}

// Total is the full balance: available + held.
func (a Account) Total() decimal.Decimal {
	return a.Available.Add(a.Held)
}

// Snapshot is the reporting view of an account.
type Snapshot struct {
	Client    ClientID
	Available decimal.Decimal
	Held      decimal.Decimal
	Total     decimal.Decimal
	Locked    bool
}

// SnapshotOf captures the reporting view of an account.
func SnapshotOf(a Account) Snapshot {
	return Snapshot{
		Client:    a.Client,
		Available: a.Available,
		Held:      a.Held,
		Total:     a.Total(),
		Locked:    a.Locked,
	}
}
