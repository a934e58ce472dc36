package indexsync

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/rs/zerolog/log"
	"github.com/volunteermatching/volops/pkg/index"
	"github.com/volunteermatching/volops/pkg/types"
)

// Action is an index mutation
type Action string

const (
	ActionUpsert Action = "upsert"
	ActionDelete Action = "delete"
)

// Operation is one index mutation for one opportunity. Attempt counts
// deliveries through the outbox, starting at 1.
type Operation struct {
	Action        Action
	OpportunityID uint
	Attempt       int
}

// Outbox durably queues index operations that failed inline
type Outbox interface {
	Enqueue(ctx context.Context, op Operation) error
}

// ErrIndexSync is returned when an index write failed after the store
// committed and no outbox could take the retry.
type ErrIndexSync struct {
	Op  Operation
	Err error
}

func (e *ErrIndexSync) Error() string {
	return fmt.Sprintf("index %s for opportunity %d failed: %v", e.Op.Action, e.Op.OpportunityID, e.Err)
}

func (e *ErrIndexSync) Unwrap() error {
	return e.Err
}

// OpportunityReader reads committed opportunities
type OpportunityReader interface {
	GetOpportunity(ctx context.Context, id uint) (*types.Opportunity, error)
}

// ContractConfig configures search behaviour of the contract
type ContractConfig struct {
	SearchLimit int
	CacheSize   int // 0 disables the search cache
	CacheTTL    time.Duration

	// Source, when set, is re-read under the entry lock so that the last
	// writer always indexes the latest committed state
	Source OpportunityReader

	// Locker serializes index writes per opportunity. Defaults to an
	// in-process lock.
	Locker Locker

	// Generation versions cached search results. Defaults to an
	// in-process counter.
	Generation Generation
}

// Contract keeps the search index in step with committed store state.
// Callers invoke it only after the store mutation committed.
type Contract struct {
	store       index.IndexStore
	outbox      Outbox
	source      OpportunityReader
	locker      Locker
	generation  Generation
	cache       *expirable.LRU[string, []uint]
	searchLimit int
}

// NewContract creates a contract over store. outbox may be nil, in which
// case index failures are returned to the caller.
func NewContract(store index.IndexStore, outbox Outbox, cfg ContractConfig) *Contract {
	if cfg.SearchLimit <= 0 {
		cfg.SearchLimit = index.DefaultSearchLimit
	}
	if cfg.Locker == nil {
		cfg.Locker = NewLocalLocker()
	}
	if cfg.Generation == nil {
		cfg.Generation = &LocalGeneration{}
	}

	c := &Contract{
		store:       store,
		outbox:      outbox,
		source:      cfg.Source,
		locker:      cfg.Locker,
		generation:  cfg.Generation,
		searchLimit: cfg.SearchLimit,
	}
	if cfg.CacheSize > 0 {
		c.cache = expirable.NewLRU[string, []uint](cfg.CacheSize, nil, cfg.CacheTTL)
	}
	return c
}

// Store returns the underlying index store
func (c *Contract) Store() index.IndexStore {
	return c.store
}

// OnCreate indexes a newly committed opportunity
func (c *Contract) OnCreate(ctx context.Context, o *types.Opportunity) error {
	op := Operation{Action: ActionUpsert, OpportunityID: o.Id, Attempt: 1}
	return c.apply(ctx, op, func() error {
		return c.upsert(ctx, o)
	})
}

// OnUpdate replaces the entry of a committed opportunity with its full
// current projection
func (c *Contract) OnUpdate(ctx context.Context, o *types.Opportunity) error {
	op := Operation{Action: ActionUpsert, OpportunityID: o.Id, Attempt: 1}
	return c.apply(ctx, op, func() error {
		return c.upsert(ctx, o)
	})
}

// OnDelete removes the entry of an opportunity whose delete committed
func (c *Contract) OnDelete(ctx context.Context, opportunityID uint) error {
	op := Operation{Action: ActionDelete, OpportunityID: opportunityID, Attempt: 1}
	return c.apply(ctx, op, func() error {
		if c.source != nil {
			return c.refresh(ctx, c.source, opportunityID)
		}
		return c.withEntryLock(ctx, opportunityID, func() error {
			return c.store.Delete(ctx, opportunityID)
		})
	})
}

func (c *Contract) upsert(ctx context.Context, o *types.Opportunity) error {
	if c.source != nil {
		return c.refresh(ctx, c.source, o.Id)
	}
	return c.withEntryLock(ctx, o.Id, func() error {
		return c.store.Upsert(ctx, index.EntryFromOpportunity(o))
	})
}

// Refresh brings the entry for opportunityID in line with what src holds
// now: a present record is upserted with its current projection and an
// absent one is deleted. The read and the write happen under the entry
// lock, so a refresh never overwrites a newer write with an older read.
func (c *Contract) Refresh(ctx context.Context, src OpportunityReader, opportunityID uint) error {
	if err := c.refresh(ctx, src, opportunityID); err != nil {
		return err
	}
	return c.invalidate(ctx)
}

func (c *Contract) refresh(ctx context.Context, src OpportunityReader, opportunityID uint) error {
	return c.withEntryLock(ctx, opportunityID, func() error {
		o, err := src.GetOpportunity(ctx, opportunityID)
		if (&types.ErrOpportunityNotFound{}).From(err) {
			return c.store.Delete(ctx, opportunityID)
		}
		if err != nil {
			return err
		}
		return c.store.Upsert(ctx, index.EntryFromOpportunity(o))
	})
}

func (c *Contract) withEntryLock(ctx context.Context, opportunityID uint, fn func() error) error {
	unlock, err := c.locker.Lock(ctx, opportunityID)
	if err != nil {
		return err
	}
	defer unlock()
	return fn()
}

// invalidate advances the search generation so no replica serves results
// computed before the write, then drops local entries
func (c *Contract) invalidate(ctx context.Context) error {
	defer c.Purge()
	if err := c.generation.Advance(ctx); err != nil {
		return fmt.Errorf("failed to advance search generation: %w", err)
	}
	return nil
}

func (c *Contract) apply(ctx context.Context, op Operation, write func() error) error {
	err := write()
	if err == nil {
		err = c.invalidate(ctx)
	} else {
		c.Purge()
	}
	if err == nil {
		return nil
	}

	log.Warn().
		Err(err).
		Str("action", string(op.Action)).
		Uint("opportunity_id", op.OpportunityID).
		Msg("index write failed after commit")

	if c.outbox == nil {
		return &ErrIndexSync{Op: op, Err: err}
	}

	if qerr := c.outbox.Enqueue(ctx, op); qerr != nil {
		log.Error().Err(qerr).Uint("opportunity_id", op.OpportunityID).Msg("failed to enqueue index operation")
		return &ErrIndexSync{Op: op, Err: err}
	}

	log.Info().
		Str("action", string(op.Action)).
		Uint("opportunity_id", op.OpportunityID).
		Msg("index operation queued for retry")
	return nil
}

// Search returns ids of opportunities matching any term of query, best
// match first. Cached results are keyed on the search generation read
// before the index is queried, so a result computed concurrently with a
// write is never served after that write returned.
func (c *Contract) Search(ctx context.Context, query string) ([]uint, error) {
	terms := strings.Join(index.SearchTerms(query), " ")
	if terms == "" {
		return []uint{}, nil
	}

	if c.cache == nil {
		return c.store.Search(ctx, query, c.searchLimit)
	}

	gen, err := c.generation.Current(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("search generation unavailable, bypassing cache")
		return c.store.Search(ctx, query, c.searchLimit)
	}

	key := strconv.FormatInt(gen, 10) + "/" + terms
	if ids, ok := c.cache.Get(key); ok {
		return ids, nil
	}

	ids, err := c.store.Search(ctx, query, c.searchLimit)
	if err != nil {
		return nil, err
	}

	c.cache.Add(key, ids)
	return ids, nil
}

// Purge drops locally cached search results
func (c *Contract) Purge() {
	if c.cache != nil {
		c.cache.Purge()
	}
}
