package backend_postgres_migrations

import (
	"database/sql"

	"github.com/pressly/goose/v3"
)

func init() {
	goose.AddMigration(upInitial, downInitial)
}

func upInitial(tx *sql.Tx) error {
	createStatements := []string{
		// Partners (provisioned by seeding, read-only through the API)
		`CREATE TABLE IF NOT EXISTS partner (
			id SERIAL PRIMARY KEY,
			name VARCHAR(255) NOT NULL UNIQUE,
			created_at TIMESTAMP WITH TIME ZONE DEFAULT CURRENT_TIMESTAMP,
			updated_at TIMESTAMP WITH TIME ZONE DEFAULT CURRENT_TIMESTAMP
		);`,

		`CREATE TABLE IF NOT EXISTS partner_tag (
			id SERIAL PRIMARY KEY,
			partner_id INT NOT NULL REFERENCES partner(id) ON DELETE CASCADE,
			name VARCHAR(255) NOT NULL,
			UNIQUE (partner_id, name)
		);`,

		`CREATE TABLE IF NOT EXISTS frequency (
			id SERIAL PRIMARY KEY,
			name VARCHAR(255) NOT NULL UNIQUE,
			created_at TIMESTAMP WITH TIME ZONE DEFAULT CURRENT_TIMESTAMP,
			updated_at TIMESTAMP WITH TIME ZONE DEFAULT CURRENT_TIMESTAMP
		);`,

		// partner_string and tag_string cache partner.name and its tags
		`CREATE TABLE IF NOT EXISTS opportunity (
			id SERIAL PRIMARY KEY,
			name VARCHAR(255) NOT NULL UNIQUE,
			active BOOLEAN NOT NULL DEFAULT TRUE,
			description TEXT NOT NULL DEFAULT '',
			shift_hours DOUBLE PRECISION NOT NULL DEFAULT 0,
			commitment_length INT NOT NULL DEFAULT 0,
			location_city VARCHAR(255) NOT NULL DEFAULT '',
			location_state VARCHAR(64) NOT NULL DEFAULT '',
			location_zip VARCHAR(16) NOT NULL DEFAULT '',
			partner_id INT NOT NULL REFERENCES partner(id) ON DELETE RESTRICT,
			frequency_id INT REFERENCES frequency(id) ON DELETE SET NULL,
			partner_string VARCHAR(255) NOT NULL DEFAULT '',
			tag_string TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMP WITH TIME ZONE DEFAULT CURRENT_TIMESTAMP,
			updated_at TIMESTAMP WITH TIME ZONE DEFAULT CURRENT_TIMESTAMP
		);`,

		// Indexes
		`CREATE INDEX idx_partner_tag_partner_id ON partner_tag(partner_id);`,
		`CREATE INDEX idx_opportunity_partner_id ON opportunity(partner_id);`,
		`CREATE INDEX idx_opportunity_frequency_id ON opportunity(frequency_id);`,
	}

	for _, stmt := range createStatements {
		if _, err := tx.Exec(stmt); err != nil {
			return err
		}
	}

	return nil
}

func downInitial(tx *sql.Tx) error {
	dropStatements := []string{
		"DROP TABLE IF EXISTS opportunity;",
		"DROP TABLE IF EXISTS frequency;",
		"DROP TABLE IF EXISTS partner_tag;",
		"DROP TABLE IF EXISTS partner;",
	}

	for _, stmt := range dropStatements {
		if _, err := tx.Exec(stmt); err != nil {
			return err
		}
	}

	return nil
}
