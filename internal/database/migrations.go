package database

import (
	"gorm.io/gorm"

	"github.com/chachabrian/parkit-backend/internal/docstore"
)

func RunMigrations(db *gorm.DB) error {
	// Create tables if they don't exist
	if err := db.AutoMigrate(&docstore.DocumentRow{}); err != nil {
		return err
	}
	return createIndexes(db)
}

func createIndexes(db *gorm.DB) error {
	// Containment queries (userId, bookingId, status) use the jsonb GIN index
	indexes := []string{
		`CREATE INDEX IF NOT EXISTS idx_documents_data ON documents USING GIN (data jsonb_path_ops)`,
		`CREATE INDEX IF NOT EXISTS idx_documents_collection ON documents (collection)`,
	}
	for _, stmt := range indexes {
		if err := db.Exec(stmt).Error; err != nil {
			return err
		}
	}
	return nil
}
