package db

import (
	"fmt"
	"log"

	"github.com/kurtismassey/project-stargate/internal/config"
	"github.com/kurtismassey/project-stargate/internal/models"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// GormDB wraps the GORM database instance
type GormDB struct {
	*gorm.DB
}

// NewGorm initializes a new GORM database connection
func NewGorm(cfg *config.Config) (*GormDB, error) {
	dsn := cfg.DatabaseURL()

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// Enable pgvector extension for detail embeddings
	if err := db.Exec("CREATE EXTENSION IF NOT EXISTS vector").Error; err != nil {
		return nil, fmt.Errorf("failed to enable pgvector extension: %w", err)
	}

	// Auto-migrate schema
	if err := db.AutoMigrate(
		&models.SessionRecord{},
		&models.Message{},
		&models.StageSnapshot{},
		&models.DetailEmbedding{},
	); err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	// Create vector index for detail embeddings
	// Note: done manually since GORM has no built-in vector index support
	err = db.Exec(`
		CREATE INDEX IF NOT EXISTS idx_detail_embeddings_vector
		ON detail_embeddings USING ivfflat (embedding vector_cosine_ops)
	`).Error
	if err != nil {
		return nil, fmt.Errorf("failed to create vector index: %w", err)
	}

	log.Println("✓ Database connected and migrated successfully")

	return &GormDB{db}, nil
}

// Close closes the database connection
func (db *GormDB) Close() error {
	sqlDB, err := db.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
