// Package registry holds the static set of markets the service distributes
// data for. The set is loaded once at startup and never mutated afterwards;
// its symbol list is the authoritative allow-list for every subscription and
// HTTP validation path.
package registry

import "github.com/shopspring/decimal"

// Market describes one tradable market. Address fields are base58 account
// keys on the venue's chain; enrichment fields (currencies, sizes, mints)
// are filled in by the metadata loader.
type Market struct {
	Symbol        string          `json:"symbol"`
	Address       string          `json:"address"`
	ProgramID     string          `json:"programId"`
	Deprecated    bool            `json:"deprecated"`
	BaseCurrency  string          `json:"baseCurrency,omitempty"`
	QuoteCurrency string          `json:"quoteCurrency,omitempty"`
	BaseMint      string          `json:"baseMintAddress,omitempty"`
	QuoteMint     string          `json:"quoteMintAddress,omitempty"`
	TickSize      decimal.Decimal `json:"tickSize"`
	MinOrderSize  decimal.Decimal `json:"minOrderSize"`
	Version       int             `json:"version"`
}

// Registry is an immutable market set. Symbol membership is case-sensitive
// and unnormalized: "btc/usdt" is not "BTC/USDT".
type Registry struct {
	markets []Market
	index   map[string]int
}

func New(markets []Market) *Registry {
	r := &Registry{
		markets: make([]Market, len(markets)),
		index:   make(map[string]int, len(markets)),
	}
	copy(r.markets, markets)
	for i, m := range r.markets {
		r.index[m.Symbol] = i
	}
	return r
}

// Has reports whether symbol names a registered market.
func (r *Registry) Has(symbol string) bool {
	_, ok := r.index[symbol]
	return ok
}

func (r *Registry) Get(symbol string) (Market, bool) {
	i, ok := r.index[symbol]
	if !ok {
		return Market{}, false
	}
	return r.markets[i], true
}

// Symbols returns all registered symbols in load order.
func (r *Registry) Symbols() []string {
	out := make([]string, len(r.markets))
	for i, m := range r.markets {
		out[i] = m.Symbol
	}
	return out
}

// Markets returns a copy of every descriptor in load order.
func (r *Registry) Markets() []Market {
	out := make([]Market, len(r.markets))
	copy(out, r.markets)
	return out
}

func (r *Registry) Len() int { return len(r.markets) }
