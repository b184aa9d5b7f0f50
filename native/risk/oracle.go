package risk

import (
	"fmt"
	"math/big"
	"sync"
	"time"
)

// PriceQuote is the answer returned by the external price feed. Price is the
// wad-scaled value of one whole unit of the asset.
type PriceQuote struct {
	Price     *big.Int
	Timestamp time.Time
	Stale     bool
}

// PriceFeed is the trusted oracle collaborator. The engine never derives
// prices; it only consumes them together with their freshness flag.
type PriceFeed interface {
	GetPrice(asset string) (PriceQuote, error)
}

// StaticFeed is an in-memory price feed used by tests and local deployments.
type StaticFeed struct {
	mu     sync.RWMutex
	quotes map[string]PriceQuote
}

// NewStaticFeed constructs an empty static feed.
func NewStaticFeed() *StaticFeed {
	return &StaticFeed{quotes: make(map[string]PriceQuote)}
}

// SetPrice records a fresh quote for the asset.
func (f *StaticFeed) SetPrice(asset string, price *big.Int, at time.Time) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.quotes[asset] = PriceQuote{Price: new(big.Int).Set(price), Timestamp: at}
}

// MarkStale flags the asset's quote as stale without changing its value.
func (f *StaticFeed) MarkStale(asset string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	quote, ok := f.quotes[asset]
	if !ok {
		return
	}
	quote.Stale = true
	f.quotes[asset] = quote
}

// GetPrice implements PriceFeed.
func (f *StaticFeed) GetPrice(asset string) (PriceQuote, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	quote, ok := f.quotes[asset]
	if !ok {
		return PriceQuote{}, fmt.Errorf("%w: no quote for %q", ErrAssetNotFound, asset)
	}
	return PriceQuote{Price: new(big.Int).Set(quote.Price), Timestamp: quote.Timestamp, Stale: quote.Stale}, nil
}
