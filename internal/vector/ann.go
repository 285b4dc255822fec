package vector

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// indexState is either *unboundState or *boundState.
type indexState interface {
	size() int
	each(fn func(id string, vec []float32))
}

// unboundState holds entries until a dimension is known.
type unboundState struct {
	staging *orderedVectors
}

func (s *unboundState) size() int                              { return s.staging.len() }
func (s *unboundState) each(fn func(id string, vec []float32)) { s.staging.each(fn) }

// boundState has a fixed dimension and a live search structure.
type boundState struct {
	dim int
	eng engine
}

func (s *boundState) size() int                              { return s.eng.len() }
func (s *boundState) each(fn func(id string, vec []float32)) { s.eng.each(fn) }

// Index is an in-memory ANN index guarded by a single reader/writer lock.
// Queries run concurrently; Add, Remove, RebuildFromStore, Load and
// Reconfigure are exclusive.
type Index struct {
	mu          sync.RWMutex
	strategy    Strategy
	params      Params
	state       indexState
	store       PageScanner
	pageSize    int
	lockTimeout time.Duration
	logger      *zap.Logger
}

var _ AnnIndex = (*Index)(nil)

// Strategy returns the strategy chosen at construction.
func (x *Index) Strategy() Strategy { return x.strategy }

// bind builds a bound state of dimension dim from entries. Entries of another
// length are dropped and counted.
func (x *Index) bind(entries *orderedVectors, dim int, params Params) (*boundState, int, error) {
	eng := newEngine(x.strategy, params)
	skipped := 0
	var err error
	entries.each(func(id string, vec []float32) {
		if err != nil {
			return
		}
		if len(vec) != dim {
			skipped++
			return
		}
		err = eng.put(id, vec)
	})
	if err != nil {
		return nil, skipped, err
	}
	return &boundState{dim: dim, eng: eng}, skipped, nil
}

// Add inserts or replaces the vector for id. The first add binds the dimension.
func (x *Index) Add(ctx context.Context, id string, vec []float32) error {
	if len(vec) == 0 {
		return ErrEmptyVector
	}
	v := cloneVector(vec)
	x.mu.Lock()
	defer x.mu.Unlock()
	switch s := x.state.(type) {
	case *unboundState:
		staged := s.staging.clone()
		staged.put(id, v)
		b, skipped, err := x.bind(staged, len(v), x.params)
		if err != nil {
			return err
		}
		if skipped > 0 {
			x.logger.Warn("Dropped staged vectors with a different dimension",
				zap.Int("dimensions", len(v)), zap.Int("dropped", skipped))
		}
		x.state = b
		x.logger.Debug("Index bound", zap.Int("dimensions", len(v)), zap.String("strategy", string(x.strategy)))
		return nil
	case *boundState:
		if len(v) != s.dim {
			return fmt.Errorf("%w: got %d, bound to %d", ErrDimensionMismatch, len(v), s.dim)
		}
		return s.eng.put(id, v)
	}
	return nil
}

// Remove deletes id if present.
func (x *Index) Remove(ctx context.Context, id string) error {
	x.mu.Lock()
	defer x.mu.Unlock()
	switch s := x.state.(type) {
	case *unboundState:
		s.staging.delete(id)
	case *boundState:
		s.eng.remove(id)
	}
	return nil
}

// Query returns up to k ids ranked by cosine similarity to vec.
func (x *Index) Query(ctx context.Context, vec []float32, k int) ([]*VectorResult, error) {
	if k <= 0 || len(vec) == 0 {
		return nil, nil
	}
	x.mu.RLock()
	defer x.mu.RUnlock()
	switch s := x.state.(type) {
	case *unboundState:
		return s.staging.scan(vec, k), nil
	case *boundState:
		return s.eng.search(vec, k), nil
	}
	return nil, nil
}

// Size returns the number of resident entries.
func (x *Index) Size() int {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return x.state.size()
}

// Dimensions returns the bound dimension or 0.
func (x *Index) Dimensions() int {
	x.mu.RLock()
	defer x.mu.RUnlock()
	if b, ok := x.state.(*boundState); ok {
		return b.dim
	}
	return 0
}

// Params returns the current graph parameters.
func (x *Index) Params() Params {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return x.params
}

// Stats returns a summary of the index.
func (x *Index) Stats() Stats {
	x.mu.RLock()
	defer x.mu.RUnlock()
	st := Stats{
		Strategy: string(x.strategy),
		Size:     x.state.size(),
		Params:   x.params,
	}
	if b, ok := x.state.(*boundState); ok {
		st.Bound = true
		st.Dimensions = b.dim
	}
	return st
}

// Reconfigure re-inserts every entry into a structure built with p.
// On failure the index is unchanged.
func (x *Index) Reconfigure(ctx context.Context, p Params) error {
	if err := p.Validate(); err != nil {
		return err
	}
	p = p.withDefaults()
	x.mu.Lock()
	defer x.mu.Unlock()
	b, ok := x.state.(*boundState)
	if !ok {
		x.params = p
		return nil
	}
	entries := newOrderedVectors()
	b.eng.each(entries.put)
	next, _, err := x.bind(entries, b.dim, p)
	if err != nil {
		return fmt.Errorf("reconfigure: %w", err)
	}
	x.state = next
	x.params = p
	x.logger.Info("Index reconfigured",
		zap.Int("m", p.M),
		zap.Int("ef_construction", p.EfConstruction),
		zap.Int("max_items", p.MaxItems),
		zap.Int("size", next.size()))
	return nil
}
