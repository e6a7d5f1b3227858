// Package repository provides data persistence implementations.
package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	json "github.com/goccy/go-json"
	"github.com/opensource-finance/repayplan/internal/domain"
)

var (
	ErrNotFound     = errors.New("record not found")
	ErrInvalidInput = errors.New("invalid input")
)

// List limits for ListAssessments.
const (
	DefaultListLimit = 50
	MaxListLimit     = 500
)

// SQLRepository implements domain.Repository using database/sql.
// Works with both SQLite and PostgreSQL drivers.
type SQLRepository struct {
	db     *sql.DB
	driver string
}

// New creates a new repository based on configuration.
func New(cfg domain.RepositoryConfig) (domain.Repository, error) {
	var db *sql.DB
	var err error

	switch cfg.Driver {
	case "sqlite":
		db, err = openSQLite(cfg)
	case "postgres":
		db, err = openPostgres(cfg)
	default:
		return nil, fmt.Errorf("unsupported driver: %s", cfg.Driver)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Configure connection pool
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	repo := &SQLRepository{
		db:     db,
		driver: cfg.Driver,
	}

	// Run migrations
	if err := repo.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return repo, nil
}

func (r *SQLRepository) migrate() error {
	for _, schema := range AllSchemas() {
		if _, err := r.db.Exec(schema); err != nil {
			return err
		}
	}
	return nil
}

// SaveRulesDocument upserts a rules document under its resolved version.
// Saving never changes which version is active.
func (r *SQLRepository) SaveRulesDocument(ctx context.Context, doc *domain.RulesDocument) error {
	if doc == nil {
		return fmt.Errorf("%w: document is required", ErrInvalidInput)
	}

	version := doc.Resolve().Version
	data, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("failed to encode rules document: %w", err)
	}

	now := time.Now().UTC()

	query := `
		INSERT INTO rules_documents (version, document, active, created_at, updated_at)
		VALUES (?, ?, 0, ?, ?)
		ON CONFLICT(version) DO UPDATE SET
			document = excluded.document,
			updated_at = excluded.updated_at
	`

	_, err = r.db.ExecContext(ctx, r.rebind(query), version, string(data), now, now)
	return err
}

// GetRulesDocument retrieves a rules document by version.
func (r *SQLRepository) GetRulesDocument(ctx context.Context, version string) (*domain.StoredRules, error) {
	if version == "" {
		return nil, fmt.Errorf("%w: version is required", ErrInvalidInput)
	}

	query := `
		SELECT version, document, active, created_at, updated_at
		FROM rules_documents
		WHERE version = ?
	`

	stored, err := scanRules(r.db.QueryRowContext(ctx, r.rebind(query), version))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return stored, nil
}

// ListRulesDocuments retrieves every stored rules document ordered by version.
func (r *SQLRepository) ListRulesDocuments(ctx context.Context) ([]*domain.StoredRules, error) {
	query := `
		SELECT version, document, active, created_at, updated_at
		FROM rules_documents
		ORDER BY version
	`

	rows, err := r.db.QueryContext(ctx, r.rebind(query))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var docs []*domain.StoredRules
	for rows.Next() {
		stored, err := scanRules(rows)
		if err != nil {
			return nil, err
		}
		docs = append(docs, stored)
	}

	return docs, rows.Err()
}

// SetActiveRulesVersion marks one version active and clears the others.
func (r *SQLRepository) SetActiveRulesVersion(ctx context.Context, version string) error {
	if version == "" {
		return fmt.Errorf("%w: version is required", ErrInvalidInput)
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	now := time.Now().UTC()

	result, err := tx.ExecContext(ctx, r.rebind(`
		UPDATE rules_documents SET active = 1, updated_at = ? WHERE version = ?
	`), now, version)
	if err != nil {
		return err
	}
	n, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}

	if _, err := tx.ExecContext(ctx, r.rebind(`
		UPDATE rules_documents SET active = 0 WHERE version <> ? AND active = 1
	`), version); err != nil {
		return err
	}

	return tx.Commit()
}

// GetActiveRulesVersion returns the active version.
func (r *SQLRepository) GetActiveRulesVersion(ctx context.Context) (string, error) {
	var version string
	err := r.db.QueryRowContext(ctx, r.rebind(`
		SELECT version FROM rules_documents WHERE active = 1 LIMIT 1
	`)).Scan(&version)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotFound
	}
	return version, err
}

// SaveAssessment stores an assessment record.
func (r *SQLRepository) SaveAssessment(ctx context.Context, a *domain.Assessment) error {
	if a == nil || a.ID == "" || a.Result == nil {
		return fmt.Errorf("%w: assessment id and result are required", ErrInvalidInput)
	}

	input, _ := json.Marshal(a.Input)
	result, _ := json.Marshal(a.Result)
	display, _ := json.Marshal(a.Display)
	metadata, _ := json.Marshal(a.Metadata)

	consult := 0
	if a.Result.ConsultOnly {
		consult = 1
	}

	query := `
		INSERT INTO assessments (
			id, rules_version, consult_only, monthly_repayment, months,
			input_hash, input, result, display, metadata, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		a.ID, a.RulesVersion, consult, a.Result.MonthlyRepayment, a.Result.Months,
		a.InputHash, string(input), string(result), string(display), string(metadata),
		a.Timestamp,
	)
	return err
}

// GetAssessment retrieves an assessment by ID.
func (r *SQLRepository) GetAssessment(ctx context.Context, id string) (*domain.Assessment, error) {
	if id == "" {
		return nil, fmt.Errorf("%w: id is required", ErrInvalidInput)
	}

	query := `
		SELECT id, rules_version, input_hash, input, result, display, metadata, created_at
		FROM assessments
		WHERE id = ?
	`

	a, err := scanAssessment(r.db.QueryRowContext(ctx, r.rebind(query), id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return a, nil
}

// ListAssessments retrieves the most recent assessments, newest first.
func (r *SQLRepository) ListAssessments(ctx context.Context, limit int) ([]*domain.Assessment, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}
	limit = min(limit, MaxListLimit)

	query := `
		SELECT id, rules_version, input_hash, input, result, display, metadata, created_at
		FROM assessments
		ORDER BY created_at DESC, id
		LIMIT ?
	`

	rows, err := r.db.QueryContext(ctx, r.rebind(query), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var list []*domain.Assessment
	for rows.Next() {
		a, err := scanAssessment(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, a)
	}

	return list, rows.Err()
}

// Ping checks database connectivity.
func (r *SQLRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// Close closes the database connection.
func (r *SQLRepository) Close() error {
	return r.db.Close()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRules(row scanner) (*domain.StoredRules, error) {
	var s domain.StoredRules
	var document string
	var active int

	if err := row.Scan(&s.Version, &document, &active, &s.CreatedAt, &s.UpdatedAt); err != nil {
		return nil, err
	}

	s.Active = active == 1
	s.Document = &domain.RulesDocument{}
	if err := json.Unmarshal([]byte(document), s.Document); err != nil {
		return nil, fmt.Errorf("failed to parse rules document %s: %w", s.Version, err)
	}
	return &s, nil
}

func scanAssessment(row scanner) (*domain.Assessment, error) {
	var a domain.Assessment
	var input, result, display, metadata string

	if err := row.Scan(
		&a.ID, &a.RulesVersion, &a.InputHash,
		&input, &result, &display, &metadata, &a.Timestamp,
	); err != nil {
		return nil, err
	}

	if input != "" && input != "null" {
		a.Input = &domain.AssessmentInput{}
		json.Unmarshal([]byte(input), a.Input)
	}
	a.Result = &domain.AssessmentResult{}
	if err := json.Unmarshal([]byte(result), a.Result); err != nil {
		return nil, fmt.Errorf("failed to parse assessment result %s: %w", a.ID, err)
	}
	json.Unmarshal([]byte(display), &a.Display)
	json.Unmarshal([]byte(metadata), &a.Metadata)

	return &a, nil
}

// rebind converts ? placeholders to $1, $2, etc. for PostgreSQL.
func (r *SQLRepository) rebind(query string) string {
	if r.driver != "postgres" {
		return query
	}

	// Convert ? to $1, $2, etc.
	var result []byte
	n := 1
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			result = append(result, '$')
			result = append(result, fmt.Sprintf("%d", n)...)
			n++
		} else {
			result = append(result, query[i])
		}
	}
	return string(result)
}
