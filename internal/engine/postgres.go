package engine

import (
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

// PostgresDriver implements the Driver interface for PostgreSQL.
// The URI is handed to pgx unchanged.
type PostgresDriver struct{}

// Name returns the driver name
func (d *PostgresDriver) Name() string {
	return "postgres"
}

// Open accepts postgres:// and postgresql:// URIs
func (d *PostgresDriver) Open(uri string, _ Options) (gorm.Dialector, error) {
	if _, _, err := splitURI(uri); err != nil {
		return nil, err
	}
	return postgres.Open(uri), nil
}

// Configure has nothing to tune: foreign keys are always enforced and
// pool sizes are applied by the engine.
func (d *PostgresDriver) Configure(db *gorm.DB, opts Options) error {
	return nil
}
