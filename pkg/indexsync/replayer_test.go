package indexsync

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/volunteermatching/volops/pkg/repository"
	"github.com/volunteermatching/volops/pkg/types"
)

type replayFixture struct {
	repo     *repository.MemoryBackend
	store    *flakyStore
	outbox   *RedisOutbox
	contract *Contract
	replayer *Replayer
}

func newReplayFixture(t *testing.T, maxAttempts int) *replayFixture {
	t.Helper()

	rdb, err := repository.NewRedisClientForTest()
	require.NoError(t, err)

	repo, err := repository.NewMemoryBackendForTest(types.PartnerSeed{Name: "Ocean Corp", Tags: []string{"water"}})
	require.NoError(t, err)

	store := newFlakyStore(t)
	outbox := NewRedisOutbox(rdb, "volops-indexer", "test")
	contract := NewContract(store, outbox, ContractConfig{})

	return &replayFixture{
		repo:     repo,
		store:    store,
		outbox:   outbox,
		contract: contract,
		replayer: NewReplayer(repo, contract, outbox, ReplayerConfig{MaxAttempts: maxAttempts, ReadBlock: 50 * time.Millisecond}),
	}
}

func (f *replayFixture) create(t *testing.T, name string) *types.Opportunity {
	t.Helper()
	partner, err := f.repo.GetPartnerByName(context.Background(), "Ocean Corp")
	require.NoError(t, err)

	o := &types.Opportunity{Name: name}
	o.SetPartner(partner)
	require.NoError(t, f.repo.CreateOpportunity(context.Background(), o))
	return o
}

func TestReplayer_HealsIndexAfterOutage(t *testing.T) {
	f := newReplayFixture(t, 5)
	ctx := context.Background()

	o := f.create(t, "Beach Cleanup")

	f.store.setBroken(true)
	require.NoError(t, f.contract.OnCreate(ctx, o))

	queued, err := f.outbox.Len(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), queued)

	f.store.setBroken(false)
	n, err := f.replayer.Drain(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	ids, err := f.contract.Search(ctx, "cleanup")
	require.NoError(t, err)
	assert.Equal(t, []uint{o.Id}, ids)
}

func TestReplayer_UpsertOfDeletedRecordDeletes(t *testing.T) {
	f := newReplayFixture(t, 5)
	ctx := context.Background()

	o := f.create(t, "Beach Cleanup")
	require.NoError(t, f.contract.OnCreate(ctx, o))

	// A queued upsert for a record deleted since must not resurrect it
	require.NoError(t, f.outbox.Enqueue(ctx, Operation{Action: ActionUpsert, OpportunityID: o.Id, Attempt: 1}))
	require.NoError(t, f.repo.DeleteOpportunity(ctx, o.Id))

	_, err := f.replayer.Drain(ctx)
	require.NoError(t, err)

	entry, err := f.store.Get(ctx, o.Id)
	require.NoError(t, err)
	assert.Nil(t, entry)
}

func TestReplayer_DeleteOfPresentRecordUpserts(t *testing.T) {
	f := newReplayFixture(t, 5)
	ctx := context.Background()

	o := f.create(t, "Beach Cleanup")
	require.NoError(t, f.outbox.Enqueue(ctx, Operation{Action: ActionDelete, OpportunityID: o.Id, Attempt: 1}))

	_, err := f.replayer.Drain(ctx)
	require.NoError(t, err)

	entry, err := f.store.Get(ctx, o.Id)
	require.NoError(t, err)
	require.NotNil(t, entry)
	assert.Equal(t, "Beach Cleanup", entry.Name)
}

// staleReadRepository returns the record as it was when read, after running
// onRead, so a write can commit between the read and the index write
type staleReadRepository struct {
	*repository.MemoryBackend
	onRead func()
}

func (r *staleReadRepository) GetOpportunity(ctx context.Context, id uint) (*types.Opportunity, error) {
	o, err := r.MemoryBackend.GetOpportunity(ctx, id)
	if r.onRead != nil {
		hook := r.onRead
		r.onRead = nil
		hook()
	}
	return o, err
}

// interleave commits a write while Replay is between its read and its index
// write. The contract call for that write runs concurrently and is given time
// to finish before Replay continues.
func interleave(f *replayFixture, write func() error, reindex func() error) (*staleReadRepository, chan error) {
	done := make(chan error, 1)
	repo := &staleReadRepository{MemoryBackend: f.repo}
	repo.onRead = func() {
		if err := write(); err != nil {
			done <- err
			return
		}
		started := make(chan struct{})
		go func() {
			close(started)
			done <- reindex()
		}()
		<-started
		time.Sleep(50 * time.Millisecond)
	}
	return repo, done
}

func TestReplayer_ReplayDoesNotUndoConcurrentUpdate(t *testing.T) {
	f := newReplayFixture(t, 5)
	ctx := context.Background()

	o := f.create(t, "Beach Cleanup")

	renamed := *o
	renamed.Name = "Mountain Hike"
	repo, done := interleave(f,
		func() error { return f.repo.UpdateOpportunity(ctx, &renamed) },
		func() error { return f.contract.OnUpdate(ctx, &renamed) },
	)

	r := NewReplayer(repo, f.contract, f.outbox, f.replayer.config)
	require.NoError(t, r.Replay(ctx, Operation{Action: ActionUpsert, OpportunityID: o.Id, Attempt: 1}))
	require.NoError(t, <-done)

	entry, err := f.store.Get(ctx, o.Id)
	require.NoError(t, err)
	require.NotNil(t, entry)
	assert.Equal(t, "Mountain Hike", entry.Name)
}

func TestReplayer_ReplayDoesNotResurrectConcurrentDelete(t *testing.T) {
	f := newReplayFixture(t, 5)
	ctx := context.Background()

	o := f.create(t, "Beach Cleanup")
	require.NoError(t, f.contract.OnCreate(ctx, o))

	repo, done := interleave(f,
		func() error { return f.repo.DeleteOpportunity(ctx, o.Id) },
		func() error { return f.contract.OnDelete(ctx, o.Id) },
	)

	r := NewReplayer(repo, f.contract, f.outbox, f.replayer.config)
	require.NoError(t, r.Replay(ctx, Operation{Action: ActionUpsert, OpportunityID: o.Id, Attempt: 1}))
	require.NoError(t, <-done)

	entry, err := f.store.Get(ctx, o.Id)
	require.NoError(t, err)
	assert.Nil(t, entry)
}

func TestReplayer_RequeuesUntilMaxAttempts(t *testing.T) {
	f := newReplayFixture(t, 3)
	ctx := context.Background()

	o := f.create(t, "Beach Cleanup")
	f.store.setBroken(true)
	require.NoError(t, f.contract.OnCreate(ctx, o))

	// Attempts 1 and 2 requeue, attempt 3 is dropped
	n, err := f.replayer.Drain(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	queued, err := f.outbox.Len(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), queued)

	n, err = f.replayer.Drain(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	entry, err := f.store.Get(ctx, o.Id)
	require.NoError(t, err)
	assert.Nil(t, entry)
}

func TestReplayer_DropsMalformedOperations(t *testing.T) {
	f := newReplayFixture(t, 5)
	ctx := context.Background()

	_, err := f.outbox.stream.Emit(ctx, map[string]any{"action": "explode", "opportunity_id": "1"})
	require.NoError(t, err)

	n, err := f.replayer.Drain(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestReplayer_StartStop(t *testing.T) {
	f := newReplayFixture(t, 5)
	ctx := context.Background()

	f.replayer.Start(ctx)
	f.replayer.Start(ctx)
	f.replayer.Stop()
	f.replayer.Stop()
}

func TestDecodeOperation(t *testing.T) {
	op, err := decodeOperation(encodeOperation(Operation{Action: ActionDelete, OpportunityID: 9, Attempt: 2}))
	require.NoError(t, err)
	assert.Equal(t, Operation{Action: ActionDelete, OpportunityID: 9, Attempt: 2}, op)

	op, err = decodeOperation(map[string]any{"action": "upsert", "opportunity_id": "4"})
	require.NoError(t, err)
	assert.Equal(t, 1, op.Attempt)

	_, err = decodeOperation(map[string]any{"action": "upsert", "opportunity_id": "zero"})
	assert.Error(t, err)
}
