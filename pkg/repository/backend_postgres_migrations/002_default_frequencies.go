package backend_postgres_migrations

import (
	"database/sql"

	"github.com/pressly/goose/v3"
)

func init() {
	goose.AddMigration(upDefaultFrequencies, downDefaultFrequencies)
}

var defaultFrequencies = []string{"One-time", "Weekly", "Monthly"}

func upDefaultFrequencies(tx *sql.Tx) error {
	for _, name := range defaultFrequencies {
		if _, err := tx.Exec(`INSERT INTO frequency (name) VALUES ($1) ON CONFLICT (name) DO NOTHING`, name); err != nil {
			return err
		}
	}
	return nil
}

func downDefaultFrequencies(tx *sql.Tx) error {
	for _, name := range defaultFrequencies {
		// Frequencies still referenced are kept; the FK would null them otherwise.
		if _, err := tx.Exec(`DELETE FROM frequency WHERE name = $1 AND NOT EXISTS (SELECT 1 FROM opportunity WHERE frequency_id = frequency.id)`, name); err != nil {
			return err
		}
	}
	return nil
}
