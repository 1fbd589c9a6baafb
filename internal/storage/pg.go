package storage

import (
	"context"

	"github.com/shopspring/decimal"
	"github.com/yanun0323/errors"
	"gorm.io/gorm"

	"main/internal/model"
	"main/pkg/conn"
)

// storedTxRow is the relational layout of a cold-tier record.
type storedTxRow struct {
	Tx        uint32          `gorm:"column:tx;primaryKey"`
	Client    uint16          `gorm:"column:client;not null"`
	Amount    decimal.Decimal `gorm:"column:amount;type:numeric(24,4);not null"`
	Disputed  bool            `gorm:"column:disputed;not null"`
	CreatedAt int64           `gorm:"column:created_at;not null"`
}

func (storedTxRow) TableName() string { return "stored_txs" }

// PGStore is a postgres-backed cold tier for server deployments that need
// records to survive the process.
type PGStore struct {
	client *conn.Client
}

// NewPGStore connects and ensures the table exists.
func NewPGStore(opt conn.Option) (*PGStore, error) {
	client, err := conn.New(opt)
	if err != nil {
		return nil, errors.Wrap(err, "connect postgres")
	}
	if err := client.DB().AutoMigrate(&storedTxRow{}); err != nil {
		_ = client.Close()
		return nil, errors.Wrap(err, "migrate stored_txs")
	}
	return &PGStore{client: client}, nil
}

func (s *PGStore) Get(ctx context.Context, tx model.TxID) (StoredTx, bool, error) {
	var row storedTxRow
	err := s.client.DB().WithContext(ctx).First(&row, "tx = ?", uint32(tx)).Error
	if err == gorm.ErrRecordNotFound {
		return StoredTx{}, false, nil
	}
	if err != nil {
		return StoredTx{}, false, errors.Wrap(err, "get stored tx")
	}
	return StoredTx{
		Tx:        model.TxID(row.Tx),
		Client:    model.ClientID(row.Client),
		Amount:    row.Amount,
		Disputed:  row.Disputed,
		CreatedAt: row.CreatedAt,
	}, true, nil
}

func (s *PGStore) Put(ctx context.Context, rec StoredTx) error {
	row := storedTxRow{
		Tx:        uint32(rec.Tx),
		Client:    uint16(rec.Client),
		Amount:    rec.Amount,
		Disputed:  rec.Disputed,
		CreatedAt: rec.CreatedAt,
	}
	return errors.Wrap(s.client.DB().WithContext(ctx).Save(&row).Error, "put stored tx")
}

func (s *PGStore) Remove(ctx context.Context, tx model.TxID) error {
	err := s.client.DB().WithContext(ctx).Delete(&storedTxRow{}, "tx = ?", uint32(tx)).Error
	return errors.Wrap(err, "remove stored tx")
}

// Close releases the connection pool.
func (s *PGStore) Close() error {
	return s.client.Close()
}
