package memory

import (
	"context"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// decayBatchSize bounds how many rows a single bulk-update batch touches,
// so one maintenance tick fans out across several concurrent statements
// rather than one giant UPDATE.
const decayBatchSize = 500

// RunDecayMaintenance runs until ctx is cancelled, recomputing
// decay_factor in bulk on every tick and then evicting records created
// more than MaxAgeDays ago and, above the MaxCount cap, the
// lowest-effective-score excess. Grounded loosely on the teacher's
// MemoryConsolidator ticker-driven run() loop in
// agent/memory/enhanced_memory.go, generalized from its pluggable
// consolidation-strategy shape to this store's fixed decay/eviction pass.
func (s *Store) RunDecayMaintenance(ctx context.Context) error {
	ticker := time.NewTicker(s.cfg.DecayInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := s.runDecayTick(ctx); err != nil {
				s.logger.Error("decay maintenance tick failed", zap.Error(err))
			}
		}
	}
}

func (s *Store) runDecayTick(ctx context.Context) error {
	type row struct {
		ID             string
		LastAccessedAt time.Time
	}
	var rows []row
	if err := s.db.WithContext(ctx).Model(&Record{}).Select("id", "last_accessed_at").Find(&rows).Error; err != nil {
		return err
	}
	if len(rows) == 0 {
		return nil
	}

	now := time.Now()
	g, gctx := errgroup.WithContext(ctx)

	for start := 0; start < len(rows); start += decayBatchSize {
		end := start + decayBatchSize
		if end > len(rows) {
			end = len(rows)
		}
		batch := rows[start:end]

		g.Go(func() error {
			for _, r := range batch {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				ageDays := now.Sub(r.LastAccessedAt).Hours() / 24
				decay := decayFactor(ageDays, s.cfg.DecayHalfLifeDays)
				if err := s.db.WithContext(gctx).Model(&Record{}).Where("id = ?", r.ID).
					Update("decay_factor", decay).Error; err != nil {
					return err
				}
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return err
	}

	return s.evictStale(ctx, now)
}

// evictStale deletes records older than MaxAgeDays, then trims down to
// MaxCount by lowest effective score. No fixed effective-score floor is
// applied: below MaxCount, a low-scoring record stays until it ages out.
func (s *Store) evictStale(ctx context.Context, now time.Time) error {
	cutoff := now.AddDate(0, 0, -s.cfg.MaxAgeDays)
	if err := s.db.WithContext(ctx).Where("created_at < ?", cutoff).Delete(&Record{}).Error; err != nil {
		return err
	}

	var count int64
	if err := s.db.WithContext(ctx).Model(&Record{}).Count(&count).Error; err != nil {
		return err
	}
	if int(count) <= s.cfg.MaxCount {
		return nil
	}

	type scored struct {
		ID    string
		Score float64
	}
	var all []Record
	if err := s.db.WithContext(ctx).Find(&all).Error; err != nil {
		return err
	}

	ranked := make([]scored, len(all))
	for i, r := range all {
		ranked[i] = scored{ID: r.ID, Score: effectiveScore(r.Importance, r.DecayFactor, r.AccessCount)}
	}
	// simple selection of the lowest-scoring (count - MaxCount) ids
	excess := int(count) - s.cfg.MaxCount
	for i := 0; i < excess; i++ {
		minIdx := i
		for j := i + 1; j < len(ranked); j++ {
			if ranked[j].Score < ranked[minIdx].Score {
				minIdx = j
			}
		}
		ranked[i], ranked[minIdx] = ranked[minIdx], ranked[i]
	}

	ids := make([]string, 0, excess)
	for i := 0; i < excess; i++ {
		ids = append(ids, ranked[i].ID)
	}
	if len(ids) == 0 {
		return nil
	}
	return s.db.WithContext(ctx).Where("id IN ?", ids).Delete(&Record{}).Error
}
