package repository

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/volunteermatching/volops/pkg/types"
)

// Seed idempotently ensures the configured partners and frequencies exist
func Seed(ctx context.Context, repo BackendRepository, cfg types.SeedConfig) error {
	for _, ps := range cfg.Partners {
		name := strings.TrimSpace(ps.Name)
		if name == "" {
			continue
		}

		partner, err := repo.EnsurePartner(ctx, name, ps.Tags)
		if err != nil {
			return fmt.Errorf("failed to seed partner %q: %w", name, err)
		}
		log.Debug().Uint("partner_id", partner.Id).Str("name", partner.Name).Msg("partner seeded")
	}

	for _, name := range cfg.Frequencies {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}

		_, err := repo.GetFrequencyByName(ctx, name)
		if err == nil {
			continue
		}
		if !(&types.ErrFrequencyNotFound{}).From(err) {
			return fmt.Errorf("failed to seed frequency %q: %w", name, err)
		}

		// A concurrent replica may have created it in the meantime.
		if _, err := repo.CreateFrequency(ctx, name); err != nil && !(&types.ErrNameConflict{}).From(err) {
			return fmt.Errorf("failed to seed frequency %q: %w", name, err)
		}
	}

	log.Info().
		Int("partners", len(cfg.Partners)).
		Int("frequencies", len(cfg.Frequencies)).
		Msg("seed data ensured")
	return nil
}
