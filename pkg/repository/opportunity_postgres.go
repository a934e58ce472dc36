package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/volunteermatching/volops/pkg/types"
)

const opportunityColumns = `id, name, active, description, shift_hours, commitment_length,
	location_city, location_state, location_zip, partner_id, frequency_id,
	partner_string, tag_string, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanOpportunity(row rowScanner) (*types.Opportunity, error) {
	o := &types.Opportunity{}
	var frequencyId sql.NullInt64
	err := row.Scan(
		&o.Id,
		&o.Name,
		&o.Active,
		&o.Description,
		&o.ShiftHours,
		&o.CommitmentLength,
		&o.LocationCity,
		&o.LocationState,
		&o.LocationZip,
		&o.PartnerId,
		&frequencyId,
		&o.PartnerString,
		&o.TagString,
		&o.CreatedAt,
		&o.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if frequencyId.Valid {
		id := uint(frequencyId.Int64)
		o.FrequencyId = &id
	}
	return o, nil
}

func nullableId(id *uint) sql.NullInt64 {
	if id == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*id), Valid: true}
}

// CreateOpportunity inserts o and fills in its id and timestamps
func (p *postgresQueries) CreateOpportunity(ctx context.Context, o *types.Opportunity) error {
	query := `
		INSERT INTO opportunity (name, active, description, shift_hours, commitment_length,
			location_city, location_state, location_zip, partner_id, frequency_id,
			partner_string, tag_string)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		RETURNING id, created_at, updated_at
	`

	err := p.q.QueryRowContext(ctx, query,
		o.Name, o.Active, o.Description, o.ShiftHours, o.CommitmentLength,
		o.LocationCity, o.LocationState, o.LocationZip, o.PartnerId, nullableId(o.FrequencyId),
		o.PartnerString, o.TagString,
	).Scan(&o.Id, &o.CreatedAt, &o.UpdatedAt)
	if isUniqueViolation(err) {
		return &types.ErrNameConflict{Kind: "opportunity", Name: o.Name}
	}
	if err != nil {
		return fmt.Errorf("failed to create opportunity: %w", err)
	}

	return nil
}

// GetOpportunity retrieves an opportunity by id
func (p *postgresQueries) GetOpportunity(ctx context.Context, id uint) (*types.Opportunity, error) {
	query := `SELECT ` + opportunityColumns + ` FROM opportunity WHERE id = $1`

	o, err := scanOpportunity(p.q.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, &types.ErrOpportunityNotFound{Id: id}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get opportunity: %w", err)
	}

	return o, nil
}

// GetOpportunityByName retrieves an opportunity by its unique name
func (p *postgresQueries) GetOpportunityByName(ctx context.Context, name string) (*types.Opportunity, error) {
	query := `SELECT ` + opportunityColumns + ` FROM opportunity WHERE name = $1`

	o, err := scanOpportunity(p.q.QueryRowContext(ctx, query, name))
	if err == sql.ErrNoRows {
		return nil, &types.ErrOpportunityNotFound{Name: name}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get opportunity by name: %w", err)
	}

	return o, nil
}

// ListOpportunities returns a page of opportunities ordered by id, or by the
// position in opts.Ids when a filter is given. LIMIT NULL means no limit.
func (p *postgresQueries) ListOpportunities(ctx context.Context, opts types.ListOptions) ([]*types.Opportunity, error) {
	var (
		rows *sql.Rows
		err  error
	)

	if opts.Ids != nil {
		query := `
			SELECT ` + opportunityColumns + `
			FROM opportunity
			WHERE id = ANY($1::int[])
			ORDER BY array_position($1::int[], id)
			LIMIT NULLIF($2, 0) OFFSET $3
		`
		rows, err = p.q.QueryContext(ctx, query, idArray(opts.Ids), opts.Limit, opts.Offset)
	} else {
		query := `
			SELECT ` + opportunityColumns + `
			FROM opportunity
			ORDER BY id
			LIMIT NULLIF($1, 0) OFFSET $2
		`
		rows, err = p.q.QueryContext(ctx, query, opts.Limit, opts.Offset)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to list opportunities: %w", err)
	}
	defer rows.Close()

	opportunities := []*types.Opportunity{}
	for rows.Next() {
		o, err := scanOpportunity(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan opportunity: %w", err)
		}
		opportunities = append(opportunities, o)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating opportunities: %w", err)
	}

	return opportunities, nil
}

// CountOpportunities counts the rows ListOpportunities would page over
func (p *postgresQueries) CountOpportunities(ctx context.Context, opts types.ListOptions) (int, error) {
	var (
		count int
		err   error
	)

	if opts.Ids != nil {
		err = p.q.QueryRowContext(ctx, `SELECT COUNT(*) FROM opportunity WHERE id = ANY($1::int[])`, idArray(opts.Ids)).Scan(&count)
	} else {
		err = p.q.QueryRowContext(ctx, `SELECT COUNT(*) FROM opportunity`).Scan(&count)
	}
	if err != nil {
		return 0, fmt.Errorf("failed to count opportunities: %w", err)
	}

	return count, nil
}

// UpdateOpportunity writes every mutable column of o
func (p *postgresQueries) UpdateOpportunity(ctx context.Context, o *types.Opportunity) error {
	query := `
		UPDATE opportunity
		SET name = $2, active = $3, description = $4, shift_hours = $5, commitment_length = $6,
			location_city = $7, location_state = $8, location_zip = $9, partner_id = $10,
			frequency_id = $11, partner_string = $12, tag_string = $13, updated_at = CURRENT_TIMESTAMP
		WHERE id = $1
		RETURNING updated_at
	`

	err := p.q.QueryRowContext(ctx, query,
		o.Id, o.Name, o.Active, o.Description, o.ShiftHours, o.CommitmentLength,
		o.LocationCity, o.LocationState, o.LocationZip, o.PartnerId,
		nullableId(o.FrequencyId), o.PartnerString, o.TagString,
	).Scan(&o.UpdatedAt)
	if err == sql.ErrNoRows {
		return &types.ErrOpportunityNotFound{Id: o.Id}
	}
	if isUniqueViolation(err) {
		return &types.ErrNameConflict{Kind: "opportunity", Name: o.Name}
	}
	if err != nil {
		return fmt.Errorf("failed to update opportunity: %w", err)
	}

	return nil
}

// DeleteOpportunity removes an opportunity by id
func (p *postgresQueries) DeleteOpportunity(ctx context.Context, id uint) error {
	result, err := p.q.ExecContext(ctx, `DELETE FROM opportunity WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete opportunity: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return &types.ErrOpportunityNotFound{Id: id}
	}

	return nil
}
