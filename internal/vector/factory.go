package vector

import (
	"fmt"
	"time"

	"go.uber.org/zap"
)

// Strategy selects the search structure behind an Index.
type Strategy string

const (
	// StrategyExact scans every entry. Exact results, O(n) per query, cheap removes.
	StrategyExact Strategy = "exact"
	// StrategyHNSW uses an approximate graph. Fast queries, O(n) removes.
	StrategyHNSW Strategy = "hnsw"
)

// Defaults for Params and rebuild paging.
const (
	DefaultM               = 16
	DefaultEfConstruction  = 200
	DefaultEfSearch        = 50
	DefaultMaxItems        = 100000
	DefaultRebuildPageSize = 1000
	DefaultLockTimeout     = 5 * time.Second
)

// Params tunes the approximate graph. The exact strategy records them only.
type Params struct {
	M              int `json:"m" yaml:"m"`
	EfConstruction int `json:"efConstruction" yaml:"ef_construction"`
	EfSearch       int `json:"efSearch" yaml:"ef_search"`
	MaxItems       int `json:"maxItems" yaml:"max_items"`
}

// DefaultParams returns the default graph parameters.
func DefaultParams() Params {
	return Params{
		M:              DefaultM,
		EfConstruction: DefaultEfConstruction,
		EfSearch:       DefaultEfSearch,
		MaxItems:       DefaultMaxItems,
	}
}

// withDefaults fills zero fields from DefaultParams.
func (p Params) withDefaults() Params {
	d := DefaultParams()
	if p.M <= 0 {
		p.M = d.M
	}
	if p.EfConstruction <= 0 {
		p.EfConstruction = d.EfConstruction
	}
	if p.EfSearch <= 0 {
		p.EfSearch = d.EfSearch
	}
	if p.MaxItems <= 0 {
		p.MaxItems = d.MaxItems
	}
	return p
}

// Validate rejects negative values. Zero means "use the default".
func (p Params) Validate() error {
	if p.M < 0 || p.EfConstruction < 0 || p.EfSearch < 0 || p.MaxItems < 0 {
		return fmt.Errorf("params must be non-negative: %+v", p)
	}
	if p.M == 1 {
		return fmt.Errorf("m must be at least 2")
	}
	return nil
}

// ParseStrategy maps a configured name to a Strategy. Empty means exact.
func ParseStrategy(name string) (Strategy, error) {
	switch Strategy(name) {
	case StrategyExact, "":
		return StrategyExact, nil
	case StrategyHNSW:
		return StrategyHNSW, nil
	default:
		return "", fmt.Errorf("unknown index strategy: %s (supported: exact, hnsw)", name)
	}
}

// Option configures an Index.
type Option func(*Index)

// WithStore sets the record source used by RebuildFromStore.
func WithStore(s PageScanner) Option {
	return func(x *Index) {
		x.store = s
	}
}

// WithPageSize sets the rebuild page size.
func WithPageSize(n int) Option {
	return func(x *Index) {
		if n > 0 {
			x.pageSize = n
		}
	}
}

// WithParams sets the graph parameters.
func WithParams(p Params) Option {
	return func(x *Index) {
		x.params = p.withDefaults()
	}
}

// WithLogger sets the logger for the index.
func WithLogger(l *zap.Logger) Option {
	return func(x *Index) {
		if l != nil {
			x.logger = l
		}
	}
}

// WithLockTimeout bounds how long Persist and Load wait for the snapshot file lock.
func WithLockTimeout(d time.Duration) Option {
	return func(x *Index) {
		if d > 0 {
			x.lockTimeout = d
		}
	}
}

// New creates an empty, unbound index using the named strategy.
func New(strategy string, opts ...Option) (*Index, error) {
	s, err := ParseStrategy(strategy)
	if err != nil {
		return nil, err
	}
	x := &Index{
		strategy:    s,
		params:      DefaultParams(),
		pageSize:    DefaultRebuildPageSize,
		lockTimeout: DefaultLockTimeout,
		logger:      zap.NewNop(),
		state:       &unboundState{staging: newOrderedVectors()},
	}
	for _, opt := range opts {
		opt(x)
	}
	return x, nil
}

func newEngine(s Strategy, p Params) engine {
	if s == StrategyHNSW {
		return newHNSWEngine(p)
	}
	return newExactEngine()
}
