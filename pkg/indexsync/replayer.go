package indexsync

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/volunteermatching/volops/pkg/repository"
)

// ReplayerConfig configures outbox replay
type ReplayerConfig struct {
	// MaxAttempts is the number of deliveries before an operation is dropped
	MaxAttempts int

	// RetryDelay is waited before a failed operation is re-queued
	RetryDelay time.Duration

	// ReadBlock is how long one stream read waits for new operations
	ReadBlock time.Duration
}

// DefaultReplayerConfig returns sensible defaults
func DefaultReplayerConfig() ReplayerConfig {
	return ReplayerConfig{
		MaxAttempts: 5,
		RetryDelay:  2 * time.Second,
		ReadBlock:   5 * time.Second,
	}
}

// Replayer consumes the outbox and re-applies index operations. It always
// re-reads the opportunity: a present record is upserted with its current
// projection and an absent one is deleted, whatever the queued action was.
type Replayer struct {
	repo     repository.OpportunityRepository
	contract *Contract
	outbox   *RedisOutbox
	config   ReplayerConfig

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// NewReplayer creates a replayer for outbox
func NewReplayer(repo repository.OpportunityRepository, contract *Contract, outbox *RedisOutbox, cfg ReplayerConfig) *Replayer {
	defaults := DefaultReplayerConfig()
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = defaults.MaxAttempts
	}
	if cfg.ReadBlock <= 0 {
		cfg.ReadBlock = defaults.ReadBlock
	}

	return &Replayer{
		repo:     repo,
		contract: contract,
		outbox:   outbox,
		config:   cfg,
	}
}

// Start begins consuming the outbox in the background
func (r *Replayer) Start(ctx context.Context) {
	r.mu.Lock()
	if r.running {
		r.mu.Unlock()
		return
	}

	ctx, r.cancel = context.WithCancel(ctx)
	r.running = true
	r.mu.Unlock()

	log.Info().Msg("starting index outbox replayer")

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		r.outbox.stream.Consume(ctx, r.config.ReadBlock, r.handle)
	}()
}

// Stop gracefully stops the replayer
func (r *Replayer) Stop() {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return
	}

	log.Info().Msg("stopping index outbox replayer")

	if r.cancel != nil {
		r.cancel()
	}

	r.running = false
	r.mu.Unlock()

	r.wg.Wait()
	log.Info().Msg("index outbox replayer stopped")
}

// Drain processes every operation currently queued without waiting for new
// ones and returns how many were acknowledged
func (r *Replayer) Drain(ctx context.Context) (int, error) {
	if err := r.outbox.stream.EnsureGroup(ctx); err != nil {
		return 0, err
	}

	total := 0
	for {
		msgs, err := r.outbox.stream.Read(ctx, false, 100, -1)
		if err != nil {
			return total, err
		}
		if len(msgs) == 0 {
			return total, nil
		}
		total += r.outbox.stream.Process(ctx, msgs, r.handle)
	}
}

// handle processes one outbox message. Returning an error leaves the message
// pending in the stream.
func (r *Replayer) handle(ctx context.Context, id string, data map[string]any) error {
	op, err := decodeOperation(data)
	if err != nil {
		log.Error().Err(err).Str("message_id", id).Msg("dropping malformed index operation")
		return nil
	}

	err = r.Replay(ctx, op)
	if err == nil {
		log.Debug().
			Str("action", string(op.Action)).
			Uint("opportunity_id", op.OpportunityID).
			Int("attempt", op.Attempt).
			Msg("index operation replayed")
		return nil
	}

	if op.Attempt >= r.config.MaxAttempts {
		log.Error().
			Err(err).
			Str("action", string(op.Action)).
			Uint("opportunity_id", op.OpportunityID).
			Int("attempt", op.Attempt).
			Msg("index operation dropped after max attempts, reindex to repair")
		return nil
	}

	log.Warn().
		Err(err).
		Uint("opportunity_id", op.OpportunityID).
		Int("attempt", op.Attempt).
		Msg("index replay failed, requeueing")

	if r.config.RetryDelay > 0 {
		select {
		case <-time.After(r.config.RetryDelay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	op.Attempt++
	return r.outbox.Enqueue(ctx, op)
}

// Replay brings the index entry for op.OpportunityID in line with the store
func (r *Replayer) Replay(ctx context.Context, op Operation) error {
	return r.contract.Refresh(ctx, r.repo, op.OpportunityID)
}
