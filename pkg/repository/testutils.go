package repository

import (
	"context"

	"github.com/alicebob/miniredis/v2"
	"github.com/volunteermatching/volops/pkg/common"
	"github.com/volunteermatching/volops/pkg/types"
)

// NewRedisClientForTest creates a Redis client backed by miniredis for testing
func NewRedisClientForTest() (*common.RedisClient, error) {
	s, err := miniredis.Run()
	if err != nil {
		return nil, err
	}

	rdb, err := common.NewRedisClient(types.RedisConfig{
		Addrs: []string{s.Addr()},
		Mode:  types.RedisModeSingle,
	})
	if err != nil {
		return nil, err
	}

	return rdb, nil
}

// NewMemoryBackendForTest creates an in-memory backend seeded with the given
// partners. Partner ids follow argument order starting at 1.
func NewMemoryBackendForTest(partners ...types.PartnerSeed) (*MemoryBackend, error) {
	b := NewMemoryBackend()
	if err := Seed(context.Background(), b, types.SeedConfig{Partners: partners}); err != nil {
		return nil, err
	}
	return b, nil
}
