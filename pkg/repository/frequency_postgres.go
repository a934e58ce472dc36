package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/volunteermatching/volops/pkg/types"
)

// CreateFrequency creates a new frequency
func (p *postgresQueries) CreateFrequency(ctx context.Context, name string) (*types.Frequency, error) {
	query := `
		INSERT INTO frequency (name)
		VALUES ($1)
		RETURNING id, name, created_at, updated_at
	`

	frequency := &types.Frequency{}
	err := p.q.QueryRowContext(ctx, query, name).Scan(
		&frequency.Id,
		&frequency.Name,
		&frequency.CreatedAt,
		&frequency.UpdatedAt,
	)
	if isUniqueViolation(err) {
		return nil, &types.ErrNameConflict{Kind: "frequency", Name: name}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create frequency: %w", err)
	}

	return frequency, nil
}

// GetFrequency retrieves a frequency by id
func (p *postgresQueries) GetFrequency(ctx context.Context, id uint) (*types.Frequency, error) {
	query := `
		SELECT id, name, created_at, updated_at
		FROM frequency
		WHERE id = $1
	`

	frequency := &types.Frequency{}
	err := p.q.QueryRowContext(ctx, query, id).Scan(
		&frequency.Id,
		&frequency.Name,
		&frequency.CreatedAt,
		&frequency.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, &types.ErrFrequencyNotFound{Id: id}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get frequency: %w", err)
	}

	return frequency, nil
}

// GetFrequencyByName retrieves a frequency by name
func (p *postgresQueries) GetFrequencyByName(ctx context.Context, name string) (*types.Frequency, error) {
	query := `
		SELECT id, name, created_at, updated_at
		FROM frequency
		WHERE name = $1
	`

	frequency := &types.Frequency{}
	err := p.q.QueryRowContext(ctx, query, name).Scan(
		&frequency.Id,
		&frequency.Name,
		&frequency.CreatedAt,
		&frequency.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, &types.ErrFrequencyNotFound{Name: name}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get frequency by name: %w", err)
	}

	return frequency, nil
}

// ListFrequencies returns all frequencies ordered by id
func (p *postgresQueries) ListFrequencies(ctx context.Context) ([]*types.Frequency, error) {
	query := `
		SELECT id, name, created_at, updated_at
		FROM frequency
		ORDER BY id
	`

	rows, err := p.q.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list frequencies: %w", err)
	}
	defer rows.Close()

	frequencies := []*types.Frequency{}
	for rows.Next() {
		frequency := &types.Frequency{}
		if err := rows.Scan(
			&frequency.Id,
			&frequency.Name,
			&frequency.CreatedAt,
			&frequency.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan frequency: %w", err)
		}
		frequencies = append(frequencies, frequency)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating frequencies: %w", err)
	}

	return frequencies, nil
}

// UpdateFrequency renames a frequency
func (p *postgresQueries) UpdateFrequency(ctx context.Context, frequency *types.Frequency) error {
	query := `
		UPDATE frequency
		SET name = $2, updated_at = CURRENT_TIMESTAMP
		WHERE id = $1
		RETURNING updated_at
	`

	err := p.q.QueryRowContext(ctx, query, frequency.Id, frequency.Name).Scan(&frequency.UpdatedAt)
	if err == sql.ErrNoRows {
		return &types.ErrFrequencyNotFound{Id: frequency.Id}
	}
	if isUniqueViolation(err) {
		return &types.ErrNameConflict{Kind: "frequency", Name: frequency.Name}
	}
	if err != nil {
		return fmt.Errorf("failed to update frequency: %w", err)
	}

	return nil
}

// DeleteFrequency removes a frequency. Opportunities using it keep existing
// with a NULL frequency_id.
func (p *postgresQueries) DeleteFrequency(ctx context.Context, id uint) error {
	result, err := p.q.ExecContext(ctx, `DELETE FROM frequency WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete frequency: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return &types.ErrFrequencyNotFound{Id: id}
	}

	return nil
}
