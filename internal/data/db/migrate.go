package db

import (
	"fmt"

	"gorm.io/gorm"
)

// DecisionEmbedding is one vector per (decision, space). The graph stays the source of
// truth for decisions; this table only mirrors their embeddings for pgvector search.
type DecisionEmbedding struct {
	DecisionID string `gorm:"column:decision_id;primaryKey"`
	Space      string `gorm:"column:space;primaryKey"`
	Embedding  string `gorm:"column:embedding;type:vector;not null"`
}

func (DecisionEmbedding) TableName() string { return "decision_embeddings" }

func EnsureEmbeddingSchema(db *gorm.DB) error {
	if err := db.Exec(`CREATE EXTENSION IF NOT EXISTS vector;`).Error; err != nil {
		return fmt.Errorf("enable vector extension: %w", err)
	}
	if err := db.AutoMigrate(&DecisionEmbedding{}); err != nil {
		return fmt.Errorf("migrate decision_embeddings: %w", err)
	}
	if err := db.Exec(`
		CREATE INDEX IF NOT EXISTS idx_decision_embeddings_space
		ON decision_embeddings (space);
	`).Error; err != nil {
		return fmt.Errorf("create idx_decision_embeddings_space: %w", err)
	}
	return nil
}
