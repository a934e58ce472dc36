package indexsync

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/volunteermatching/volops/pkg/common"
	"github.com/volunteermatching/volops/pkg/repository"
	"github.com/volunteermatching/volops/pkg/types"
)

const (
	rebuildPageSize = 200
	rebuildLockTtlS = 600
)

// RebuildStats summarizes a rebuild
type RebuildStats struct {
	Refreshed int // opportunities whose cached partner fields changed
	Indexed   int
	Duration  time.Duration
}

// Rebuilder recomputes the whole index from the store
type Rebuilder struct {
	repo     repository.BackendRepository
	contract *Contract
	lock     *common.RedisLock
	pageSize int
}

// NewRebuilder creates a rebuilder. lock may be nil when Redis is not
// configured, in which case concurrent rebuilds are not prevented.
func NewRebuilder(repo repository.BackendRepository, contract *Contract, lock *common.RedisLock) *Rebuilder {
	return &Rebuilder{
		repo:     repo,
		contract: contract,
		lock:     lock,
		pageSize: rebuildPageSize,
	}
}

// Rebuild refreshes every opportunity's cached partner fields, clears the
// index and re-indexes every opportunity.
func (r *Rebuilder) Rebuild(ctx context.Context) (*RebuildStats, error) {
	if r.lock != nil {
		key := common.Keys.IndexRebuildLock()
		if err := r.lock.Acquire(ctx, key, common.RedisLockOptions{TtlS: rebuildLockTtlS}); err != nil {
			return nil, fmt.Errorf("failed to acquire rebuild lock: %w", err)
		}
		defer r.lock.Release(key)
	}

	start := time.Now()
	stats := &RebuildStats{}

	for offset := 0; ; offset += r.pageSize {
		refreshed, n, err := r.refreshPage(ctx, offset)
		if err != nil {
			return nil, err
		}
		stats.Refreshed += refreshed
		if n < r.pageSize {
			break
		}
	}

	store := r.contract.Store()
	if err := store.Clear(ctx); err != nil {
		return nil, fmt.Errorf("failed to clear index: %w", err)
	}
	defer func() {
		if err := r.contract.invalidate(ctx); err != nil {
			log.Warn().Err(err).Msg("failed to invalidate search cache after rebuild")
		}
	}()

	for offset := 0; ; offset += r.pageSize {
		page, err := r.repo.ListOpportunities(ctx, types.ListOptions{Offset: offset, Limit: r.pageSize})
		if err != nil {
			return nil, err
		}

		// Each entry is re-read under its lock so concurrent writes are not undone
		for _, o := range page {
			if err := r.contract.refresh(ctx, r.repo, o.Id); err != nil {
				return nil, fmt.Errorf("failed to index opportunity %d: %w", o.Id, err)
			}
			stats.Indexed++
		}

		if len(page) < r.pageSize {
			break
		}
	}

	stats.Duration = time.Since(start)
	log.Info().
		Int("refreshed", stats.Refreshed).
		Int("indexed", stats.Indexed).
		Dur("duration", stats.Duration).
		Msg("index rebuild complete")

	return stats, nil
}

// refreshPage re-derives partner_string and tag_string for one page in a
// single unit of work. It returns the number refreshed and the page size.
func (r *Rebuilder) refreshPage(ctx context.Context, offset int) (int, int, error) {
	tx, err := r.repo.Begin(ctx)
	if err != nil {
		return 0, 0, err
	}
	defer tx.Rollback()

	page, err := tx.ListOpportunities(ctx, types.ListOptions{Offset: offset, Limit: r.pageSize})
	if err != nil {
		return 0, 0, err
	}

	refreshed := 0
	for _, o := range page {
		partner, err := tx.GetPartner(ctx, o.PartnerId)
		if err != nil {
			return 0, 0, fmt.Errorf("failed to load partner for opportunity %d: %w", o.Id, err)
		}

		if o.PartnerString == partner.Name && o.TagString == partner.TagString() {
			continue
		}

		o.SetPartner(partner)
		if err := tx.UpdateOpportunity(ctx, o); err != nil {
			return 0, 0, err
		}
		refreshed++
	}

	if err := tx.Commit(); err != nil {
		return 0, 0, err
	}
	return refreshed, len(page), nil
}
