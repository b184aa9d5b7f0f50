package audit

import (
	"fmt"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"lendcore/native/risk"
)

// LiquidationRow is the persisted form of a liquidation event. Amounts are
// kept as decimal strings so arbitrary-precision values survive the trip.
type LiquidationRow struct {
	ID           string `gorm:"primaryKey"`
	Account      string `gorm:"index"`
	Liquidator   string
	RepaidAsset  string
	RepaidAmount string
	SeizedAsset  string
	SeizedAmount string
	IncentiveBps uint64
	BadDebt      string
	OccurredAt   time.Time
	CreatedAt    time.Time
}

// BadDebtRow records each socialization delta as an append-only trail; the
// ledger itself keeps the cumulative figure.
type BadDebtRow struct {
	ID        uint   `gorm:"primaryKey;autoIncrement"`
	Account   string `gorm:"index"`
	Asset     string
	Amount    string
	CreatedAt time.Time
}

// Store is the durable audit trail behind the engine's Auditor hook.
type Store struct {
	db *gorm.DB
}

// Open creates or opens the SQLite-backed audit store and migrates its schema.
func Open(path string) (*Store, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open audit store: %w", err)
	}
	if err := db.AutoMigrate(&LiquidationRow{}, &BadDebtRow{}); err != nil {
		return nil, fmt.Errorf("migrate audit store: %w", err)
	}
	return &Store{db: db}, nil
}

// RecordLiquidation implements risk.Auditor.
func (s *Store) RecordLiquidation(event risk.LiquidationEvent) error {
	row := LiquidationRow{
		ID:           event.ID,
		Account:      event.Account,
		Liquidator:   event.Liquidator,
		RepaidAsset:  event.RepaidAsset,
		RepaidAmount: event.RepaidAmount.String(),
		SeizedAsset:  event.SeizedAsset,
		SeizedAmount: event.SeizedAmount.String(),
		IncentiveBps: event.IncentiveBps,
		BadDebt:      event.BadDebt.String(),
		OccurredAt:   event.Timestamp,
	}
	return s.db.Create(&row).Error
}

// RecordBadDebt implements risk.Auditor.
func (s *Store) RecordBadDebt(record risk.BadDebtRecord) error {
	row := BadDebtRow{
		Account: record.Account,
		Asset:   record.Asset,
		Amount:  record.Amount.String(),
	}
	return s.db.Create(&row).Error
}

// Liquidations returns the most recent liquidations for the account, newest
// first. An empty account returns the global tail.
func (s *Store) Liquidations(account string, limit int) ([]LiquidationRow, error) {
	if limit <= 0 {
		limit = 50
	}
	query := s.db.Order("created_at desc").Limit(limit)
	if account != "" {
		query = query.Where("account = ?", account)
	}
	var rows []LiquidationRow
	if err := query.Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

// BadDebtTrail returns the recorded socialization deltas for the account.
func (s *Store) BadDebtTrail(account string) ([]BadDebtRow, error) {
	var rows []BadDebtRow
	if err := s.db.Where("account = ?", account).Order("id asc").Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
