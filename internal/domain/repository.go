// Package domain defines the core interfaces and types for repayplan.
package domain

import (
	"context"
	"time"
)

// Repository defines the interface for data persistence.
type Repository interface {
	// Rules documents
	SaveRulesDocument(ctx context.Context, doc *RulesDocument) error
	GetRulesDocument(ctx context.Context, version string) (*StoredRules, error)
	ListRulesDocuments(ctx context.Context) ([]*StoredRules, error)
	SetActiveRulesVersion(ctx context.Context, version string) error
	GetActiveRulesVersion(ctx context.Context) (string, error)

	// Assessments
	SaveAssessment(ctx context.Context, a *Assessment) error
	GetAssessment(ctx context.Context, id string) (*Assessment, error)
	ListAssessments(ctx context.Context, limit int) ([]*Assessment, error)

	// Health check
	Ping(ctx context.Context) error

	// Lifecycle
	Close() error
}

// RepositoryConfig holds configuration for repository initialization.
type RepositoryConfig struct {
	// Driver is the database driver: "sqlite" or "postgres"
	Driver string

	// SQLite specific
	SQLitePath string

	// PostgreSQL specific
	PostgresHost     string
	PostgresPort     int
	PostgresUser     string
	PostgresPassword string
	PostgresDB       string
	PostgresSSLMode  string

	// Connection pool settings
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}
