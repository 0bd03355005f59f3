// Package db persists document records for index snapshots using SQLite.
package db

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/marulab/recall/pkg/models"
)

// Store wraps the GORM connection to a snapshot's document database.
type Store struct {
	db    *gorm.DB
	sqlDB *sql.DB
}

// Open opens (or creates) the document database at path, runs migrations and
// enables WAL mode for concurrent reads.
func Open(path string) (*Store, error) {
	sqlDB, err := sql.Open("sqlite3", path+"?_foreign_keys=ON")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db, err := gorm.Open(sqlite.Dialector{Conn: sqlDB}, &gorm.Config{
		Logger:      logger.Default.LogMode(logger.Silent),
		PrepareStmt: true,
	})
	if err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("open gorm: %w", err)
	}

	sqlDB.SetMaxOpenConns(4)
	sqlDB.SetMaxIdleConns(4)

	if err := runMigrations(db); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	if _, err := sqlDB.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}
	if _, err := sqlDB.Exec("PRAGMA synchronous=NORMAL"); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("set synchronous mode: %w", err)
	}
	if _, err := sqlDB.Exec("PRAGMA busy_timeout=5000"); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("set busy timeout: %w", err)
	}

	return &Store{db: db, sqlDB: sqlDB}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.sqlDB.Close()
}

// ReplaceAll atomically replaces the persisted record set with docs.
// This is the snapshot write path: the caller passes a consistent copy taken
// under the index read lock.
func (s *Store) ReplaceAll(ctx context.Context, docs []*models.Document) error {
	records := make([]*DocumentRecord, 0, len(docs))
	for _, doc := range docs {
		rec, err := NewDocumentRecord(doc)
		if err != nil {
			return fmt.Errorf("convert %s: %w", doc.DocID, err)
		}
		records = append(records, rec)
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Exec("DELETE FROM documents").Error; err != nil {
			return fmt.Errorf("clear documents: %w", err)
		}
		if len(records) == 0 {
			return nil
		}
		if err := tx.CreateInBatches(records, 200).Error; err != nil {
			return fmt.Errorf("insert documents: %w", err)
		}
		return nil
	})
}

// LoadAll reads every persisted document, ordered by vector slot.
func (s *Store) LoadAll(ctx context.Context) ([]*models.Document, error) {
	var records []DocumentRecord
	if err := s.db.WithContext(ctx).Order("vector_id").Find(&records).Error; err != nil {
		return nil, fmt.Errorf("load documents: %w", err)
	}

	docs := make([]*models.Document, 0, len(records))
	for i := range records {
		doc, err := records[i].ToDocument()
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	return docs, nil
}

// Count returns the number of persisted records.
func (s *Store) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := s.db.WithContext(ctx).Model(&DocumentRecord{}).Count(&n).Error; err != nil {
		return 0, fmt.Errorf("count documents: %w", err)
	}
	return n, nil
}
