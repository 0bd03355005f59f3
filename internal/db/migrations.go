package db

import (
	"github.com/go-gormigrate/gormigrate/v2"
	"gorm.io/gorm"
)

// runMigrations applies schema migrations in order. IDs are append-only.
func runMigrations(db *gorm.DB) error {
	m := gormigrate.New(db, gormigrate.DefaultOptions, []*gormigrate.Migration{
		{
			ID: "202608010001_create_documents",
			Migrate: func(tx *gorm.DB) error {
				return tx.AutoMigrate(&DocumentRecord{})
			},
			Rollback: func(tx *gorm.DB) error {
				return tx.Migrator().DropTable("documents")
			},
		},
	})
	return m.Migrate()
}
