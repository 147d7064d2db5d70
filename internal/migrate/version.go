package migrate

import (
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/gormscope/gormscope/pkg/errors"
)

// SchemaVersionTable is the table holding the recorded schema version
const SchemaVersionTable = "schema_version"

// schemaVersion is the single row of the schema_version table
type schemaVersion struct {
	ID        uint `gorm:"primaryKey;autoIncrement:false"`
	Version   int  `gorm:"not null"`
	UpdatedAt time.Time
}

func (schemaVersion) TableName() string {
	return SchemaVersionTable
}

// SchemaVersion returns the recorded schema version. ok is false when no
// version has been recorded yet.
func SchemaVersion(tx *gorm.DB) (version int, ok bool, err error) {
	if !tx.Migrator().HasTable(&schemaVersion{}) {
		return 0, false, nil
	}
	var row schemaVersion
	res := tx.Limit(1).Find(&row, 1)
	if res.Error != nil {
		return 0, false, errors.Wrap(errors.ErrCodeDBQuery, "failed to read schema version", res.Error)
	}
	if res.RowsAffected == 0 {
		return 0, false, nil
	}
	return row.Version, true, nil
}

// SetSchemaVersion records version as the current schema version
func SetSchemaVersion(tx *gorm.DB, version int) error {
	if err := tx.AutoMigrate(&schemaVersion{}); err != nil {
		return errors.Wrap(errors.ErrCodeDBMigration, "failed to create schema_version table", err)
	}
	row := schemaVersion{ID: 1, Version: version}
	err := tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"version", "updated_at"}),
	}).Create(&row).Error
	if err != nil {
		return errors.Wrap(errors.ErrCodeDBMigration, "failed to record schema version", err)
	}
	return nil
}
