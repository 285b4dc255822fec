package vector

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/hyperjump/codeindex/internal/storage"
)

// PageScanner is the part of the record store a rebuild needs.
type PageScanner interface {
	ScanPage(ctx context.Context, page, size int) (*storage.Page, error)
}

// RebuildFromStore pages through the record store and replaces the index
// contents with every decodable vector. The first decodable record fixes the
// dimension. It runs to completion even if ctx is cancelled; on a store error
// the previous contents are kept.
func (x *Index) RebuildFromStore(ctx context.Context) (*RebuildStats, error) {
	if x.store == nil {
		return nil, ErrUnavailableDependency
	}
	ctx = context.WithoutCancel(ctx)

	x.mu.Lock()
	defer x.mu.Unlock()

	stats := &RebuildStats{}
	var next *boundState
	for page := 0; ; page++ {
		p, err := x.store.ScanPage(ctx, page, x.pageSize)
		if err != nil {
			return stats, fmt.Errorf("scan page %d: %w", page, err)
		}
		stats.Pages++
		for _, rec := range p.Records {
			vec, err := storage.DecodeRecordVector(rec)
			if err != nil {
				stats.Skipped++
				x.logger.Debug("Skipping undecodable vector", zap.String("id", rec.ID), zap.Error(err))
				continue
			}
			if next == nil {
				next = &boundState{dim: len(vec), eng: newEngine(x.strategy, x.params)}
			}
			if len(vec) != next.dim {
				stats.Skipped++
				x.logger.Debug("Skipping vector with a different dimension",
					zap.String("id", rec.ID), zap.Int("dimensions", len(vec)), zap.Int("bound", next.dim))
				continue
			}
			if err := next.eng.put(rec.ID, vec); err != nil {
				if errors.Is(err, ErrCapacityExceeded) {
					return stats, fmt.Errorf("rebuild: %w", err)
				}
				stats.Skipped++
				continue
			}
			stats.Loaded++
		}
		if !p.HasNext || len(p.Records) == 0 {
			break
		}
	}

	if next == nil {
		x.state = &unboundState{staging: newOrderedVectors()}
	} else {
		x.state = next
	}
	x.logger.Info("Index rebuilt from store",
		zap.Int("pages", stats.Pages),
		zap.Int("loaded", stats.Loaded),
		zap.Int("skipped", stats.Skipped),
		zap.Int("size", x.state.size()))
	return stats, nil
}
