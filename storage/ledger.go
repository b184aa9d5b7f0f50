package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"math/big"

	"lendcore/native/risk"
)

// Key prefixes for the ledger namespace inside the shared KV store.
const (
	marketPrefix   = "risk/market/"
	positionPrefix = "risk/position/"
	badDebtPrefix  = "risk/baddebt/"
)

// LedgerStore persists the risk ledger through a Database. Records are JSON
// encoded; one engine changeset maps onto one atomic batch write.
type LedgerStore struct {
	db Database
}

// NewLedgerStore wraps the database as a risk.State implementation.
func NewLedgerStore(db Database) *LedgerStore {
	return &LedgerStore{db: db}
}

// GetMarket implements risk.State.
func (s *LedgerStore) GetMarket(asset string) (*risk.Market, error) {
	raw, err := s.db.Get([]byte(marketPrefix + asset))
	if errors.Is(err, ErrKeyNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load market %s: %w", asset, err)
	}
	market := new(risk.Market)
	if err := json.Unmarshal(raw, market); err != nil {
		return nil, fmt.Errorf("decode market %s: %w", asset, err)
	}
	return market, nil
}

// GetPosition implements risk.State.
func (s *LedgerStore) GetPosition(account string) (*risk.Position, error) {
	raw, err := s.db.Get([]byte(positionPrefix + account))
	if errors.Is(err, ErrKeyNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load position %s: %w", account, err)
	}
	position := new(risk.Position)
	if err := json.Unmarshal(raw, position); err != nil {
		return nil, fmt.Errorf("decode position %s: %w", account, err)
	}
	return position, nil
}

// GetBadDebt implements risk.State.
func (s *LedgerStore) GetBadDebt(account, asset string) (*big.Int, error) {
	raw, err := s.db.Get([]byte(badDebtPrefix + risk.BadDebtKey(account, asset)))
	if errors.Is(err, ErrKeyNotFound) {
		return big.NewInt(0), nil
	}
	if err != nil {
		return nil, fmt.Errorf("load bad debt %s/%s: %w", account, asset, err)
	}
	amount := new(big.Int)
	if err := amount.UnmarshalText(raw); err != nil {
		return nil, fmt.Errorf("decode bad debt %s/%s: %w", account, asset, err)
	}
	return amount, nil
}

// Apply implements risk.State. The whole changeset lands in one batch write;
// the backend guarantees atomicity.
func (s *LedgerStore) Apply(cs *risk.Changeset) error {
	if cs == nil {
		return nil
	}
	batch := new(Batch)
	for asset, market := range cs.Markets {
		raw, err := json.Marshal(market)
		if err != nil {
			return fmt.Errorf("encode market %s: %w", asset, err)
		}
		batch.Put([]byte(marketPrefix+asset), raw)
	}
	for account, position := range cs.Positions {
		raw, err := json.Marshal(position)
		if err != nil {
			return fmt.Errorf("encode position %s: %w", account, err)
		}
		batch.Put([]byte(positionPrefix+account), raw)
	}
	for key, record := range cs.BadDebt {
		if record.Amount == nil || record.Amount.Sign() == 0 {
			batch.Delete([]byte(badDebtPrefix + key))
			continue
		}
		raw, err := record.Amount.MarshalText()
		if err != nil {
			return fmt.Errorf("encode bad debt %s: %w", key, err)
		}
		batch.Put([]byte(badDebtPrefix+key), raw)
	}
	if batch.Len() == 0 {
		return nil
	}
	return s.db.Write(batch)
}
