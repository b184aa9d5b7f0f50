package risk

import (
	"math/big"
	"sync"
)

// State is the persistence collaborator for the ledger of record. GetMarket and
// GetPosition return nil when the entry does not exist. Apply must commit the
// whole changeset atomically: either every write lands or none do.
type State interface {
	GetMarket(asset string) (*Market, error)
	GetPosition(account string) (*Position, error)
	GetBadDebt(account, asset string) (*big.Int, error)
	Apply(cs *Changeset) error
}

// Changeset stages every write of one engine operation so the commit is
// all-or-nothing.
type Changeset struct {
	Markets   map[string]*Market
	Positions map[string]*Position
	BadDebt   map[string]*BadDebtRecord
}

// NewChangeset constructs an empty changeset.
func NewChangeset() *Changeset {
	return &Changeset{
		Markets:   make(map[string]*Market),
		Positions: make(map[string]*Position),
		BadDebt:   make(map[string]*BadDebtRecord),
	}
}

// PutMarket stages a market write.
func (cs *Changeset) PutMarket(market *Market) {
	if market == nil {
		return
	}
	cs.Markets[market.Asset] = market
}

// PutPosition stages a position write.
func (cs *Changeset) PutPosition(position *Position) {
	if position == nil {
		return
	}
	cs.Positions[position.Account] = position
}

// PutBadDebt stages a bad-debt record write.
func (cs *Changeset) PutBadDebt(record *BadDebtRecord) {
	if record == nil {
		return
	}
	cs.BadDebt[BadDebtKey(record.Account, record.Asset)] = record
}

// BadDebtKey derives the storage key for a bad-debt record.
func BadDebtKey(account, asset string) string {
	return account + "/" + asset
}

// MemoryState is the in-process State implementation. It backs tests and any
// deployment that persists through periodic snapshots instead of a durable KV
// store.
type MemoryState struct {
	mu        sync.RWMutex
	markets   map[string]*Market
	positions map[string]*Position
	badDebt   map[string]*big.Int
}

// NewMemoryState constructs an empty in-memory state.
func NewMemoryState() *MemoryState {
	return &MemoryState{
		markets:   make(map[string]*Market),
		positions: make(map[string]*Position),
		badDebt:   make(map[string]*big.Int),
	}
}

// GetMarket implements State.
func (s *MemoryState) GetMarket(asset string) (*Market, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	market, ok := s.markets[asset]
	if !ok {
		return nil, nil
	}
	return market.Clone(), nil
}

// GetPosition implements State.
func (s *MemoryState) GetPosition(account string) (*Position, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	position, ok := s.positions[account]
	if !ok {
		return nil, nil
	}
	return position.Clone(), nil
}

// GetBadDebt implements State.
func (s *MemoryState) GetBadDebt(account, asset string) (*big.Int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	amount, ok := s.badDebt[BadDebtKey(account, asset)]
	if !ok {
		return big.NewInt(0), nil
	}
	return new(big.Int).Set(amount), nil
}

// Apply implements State. The single lock makes the multi-key write atomic
// with respect to concurrent readers.
func (s *MemoryState) Apply(cs *Changeset) error {
	if cs == nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for asset, market := range cs.Markets {
		s.markets[asset] = market.Clone()
	}
	for account, position := range cs.Positions {
		s.positions[account] = position.Clone()
	}
	for key, record := range cs.BadDebt {
		if record.Amount == nil || record.Amount.Sign() == 0 {
			delete(s.badDebt, key)
			continue
		}
		s.badDebt[key] = new(big.Int).Set(record.Amount)
	}
	return nil
}

// Positions returns a deep copy of every stored position, keyed by account.
func (s *MemoryState) Positions() map[string]*Position {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]*Position, len(s.positions))
	for account, position := range s.positions {
		out[account] = position.Clone()
	}
	return out
}
