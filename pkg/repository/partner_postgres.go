package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lib/pq"
	"github.com/volunteermatching/volops/pkg/types"
)

const partnerSelect = `
	SELECT p.id, p.name, p.created_at, p.updated_at,
		COALESCE(array_agg(t.name ORDER BY t.name) FILTER (WHERE t.name IS NOT NULL), '{}')
	FROM partner p
	LEFT JOIN partner_tag t ON t.partner_id = p.id
`

func scanPartner(row rowScanner) (*types.Partner, error) {
	partner := &types.Partner{}
	err := row.Scan(
		&partner.Id,
		&partner.Name,
		&partner.CreatedAt,
		&partner.UpdatedAt,
		pq.Array(&partner.Tags),
	)
	if err != nil {
		return nil, err
	}
	return partner, nil
}

// GetPartner retrieves a partner and its tags by id
func (p *postgresQueries) GetPartner(ctx context.Context, id uint) (*types.Partner, error) {
	query := partnerSelect + ` WHERE p.id = $1 GROUP BY p.id`

	partner, err := scanPartner(p.q.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, &types.ErrPartnerNotFound{Id: id}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get partner: %w", err)
	}

	return partner, nil
}

// GetPartnerByName retrieves a partner and its tags by name
func (p *postgresQueries) GetPartnerByName(ctx context.Context, name string) (*types.Partner, error) {
	query := partnerSelect + ` WHERE p.name = $1 GROUP BY p.id`

	partner, err := scanPartner(p.q.QueryRowContext(ctx, query, name))
	if err == sql.ErrNoRows {
		return nil, &types.ErrPartnerNotFound{Name: name}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get partner by name: %w", err)
	}

	return partner, nil
}

// EnsurePartner creates the partner if missing and adds any missing tags.
// Existing tags are never removed.
func (p *postgresQueries) EnsurePartner(ctx context.Context, name string, tags []string) (*types.Partner, error) {
	_, err := p.q.ExecContext(ctx, `INSERT INTO partner (name) VALUES ($1) ON CONFLICT (name) DO NOTHING`, name)
	if err != nil {
		return nil, fmt.Errorf("failed to ensure partner: %w", err)
	}

	for _, tag := range tags {
		_, err := p.q.ExecContext(ctx, `
			INSERT INTO partner_tag (partner_id, name)
			SELECT id, $2 FROM partner WHERE name = $1
			ON CONFLICT (partner_id, name) DO NOTHING
		`, name, tag)
		if err != nil {
			return nil, fmt.Errorf("failed to ensure partner tag: %w", err)
		}
	}

	return p.GetPartnerByName(ctx, name)
}
