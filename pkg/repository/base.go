package repository

import (
	"context"

	"github.com/volunteermatching/volops/pkg/types"
)

// OpportunityRepository manages volunteer opportunities
type OpportunityRepository interface {
	CreateOpportunity(ctx context.Context, opportunity *types.Opportunity) error
	GetOpportunity(ctx context.Context, id uint) (*types.Opportunity, error)
	GetOpportunityByName(ctx context.Context, name string) (*types.Opportunity, error)
	ListOpportunities(ctx context.Context, opts types.ListOptions) ([]*types.Opportunity, error)
	CountOpportunities(ctx context.Context, opts types.ListOptions) (int, error)
	UpdateOpportunity(ctx context.Context, opportunity *types.Opportunity) error
	DeleteOpportunity(ctx context.Context, id uint) error
}

// FrequencyRepository manages frequencies
type FrequencyRepository interface {
	CreateFrequency(ctx context.Context, name string) (*types.Frequency, error)
	GetFrequency(ctx context.Context, id uint) (*types.Frequency, error)
	GetFrequencyByName(ctx context.Context, name string) (*types.Frequency, error)
	ListFrequencies(ctx context.Context) ([]*types.Frequency, error)
	UpdateFrequency(ctx context.Context, frequency *types.Frequency) error
	DeleteFrequency(ctx context.Context, id uint) error
}

// PartnerRepository looks up partners. Partners are only written by seeding.
type PartnerRepository interface {
	GetPartner(ctx context.Context, id uint) (*types.Partner, error)
	GetPartnerByName(ctx context.Context, name string) (*types.Partner, error)
	EnsurePartner(ctx context.Context, name string, tags []string) (*types.Partner, error)
}

// Tx is a unit of work. Every read and write of one mutation goes through
// the same Tx, which is committed exactly once or rolled back.
// Rollback after Commit is a no-op, so it is safe to defer.
type Tx interface {
	OpportunityRepository
	FrequencyRepository
	PartnerRepository

	Commit() error
	Rollback() error
}

// BackendRepository is the persistent store. Calls made directly on it run
// outside any unit of work; mutations that must be atomic use Begin.
type BackendRepository interface {
	OpportunityRepository
	FrequencyRepository
	PartnerRepository

	Begin(ctx context.Context) (Tx, error)

	// Utilities
	Ping(ctx context.Context) error
	Close() error
	RunMigrations() error
}
