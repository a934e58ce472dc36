package indexsync

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/volunteermatching/volops/pkg/common"
	"github.com/volunteermatching/volops/pkg/index"
	"github.com/volunteermatching/volops/pkg/repository"
	"github.com/volunteermatching/volops/pkg/types"
)

func TestRebuilder_RefreshesAndReindexes(t *testing.T) {
	ctx := context.Background()

	repo, err := repository.NewMemoryBackendForTest(types.PartnerSeed{Name: "Ocean Corp", Tags: []string{"water"}})
	require.NoError(t, err)

	store := newFlakyStore(t)
	contract := NewContract(store, nil, ContractConfig{})

	partner, err := repo.GetPartner(ctx, 1)
	require.NoError(t, err)

	for _, name := range []string{"Beach Cleanup", "Reef Survey", "Dune Planting"} {
		o := &types.Opportunity{Name: name}
		o.SetPartner(partner)
		require.NoError(t, repo.CreateOpportunity(ctx, o))
	}

	// Stale entry with no store row, and a new tag that makes cached fields stale
	require.NoError(t, store.Upsert(ctx, &index.IndexEntry{OpportunityID: 99, Name: "Ghost"}))
	_, err = repo.EnsurePartner(ctx, "Ocean Corp", []string{"beach"})
	require.NoError(t, err)

	rdb, err := repository.NewRedisClientForTest()
	require.NoError(t, err)

	r := NewRebuilder(repo, contract, common.NewRedisLock(rdb))
	r.pageSize = 2

	stats, err := r.Rebuild(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, stats.Refreshed)
	assert.Equal(t, 3, stats.Indexed)

	count, err := store.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), count)

	o, err := repo.GetOpportunityByName(ctx, "Reef Survey")
	require.NoError(t, err)
	assert.Equal(t, "beach,water", o.TagString)

	ids, err := contract.Search(ctx, "beach")
	require.NoError(t, err)
	assert.Len(t, ids, 3)

	ids, err = contract.Search(ctx, "ghost")
	require.NoError(t, err)
	assert.Empty(t, ids)

	// Nothing is stale the second time round
	stats, err = r.Rebuild(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, stats.Refreshed)
}

func TestRebuilder_LockHeldElsewhere(t *testing.T) {
	ctx := context.Background()

	repo := repository.NewMemoryBackend()
	contract := NewContract(newFlakyStore(t), nil, ContractConfig{})

	rdb, err := repository.NewRedisClientForTest()
	require.NoError(t, err)

	other := common.NewRedisLock(rdb)
	require.NoError(t, other.Acquire(ctx, common.Keys.IndexRebuildLock(), common.RedisLockOptions{TtlS: 60}))
	defer other.Release(common.Keys.IndexRebuildLock())

	_, err = NewRebuilder(repo, contract, common.NewRedisLock(rdb)).Rebuild(ctx)
	assert.ErrorIs(t, err, common.ErrLockNotObtained)
}
