package store

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"

	"github.com/samaanhq/shipyard/internal/core/domain"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// =============================================================================
// Executor Interface - Shared by DB and Transaction
// =============================================================================

// executor abstracts database operations that can be performed on both
// a database connection and a transaction.
type executor interface {
	GetContext(ctx context.Context, dest any, query string, args ...any) error
	SelectContext(ctx context.Context, dest any, query string, args ...any) error
	NamedExecContext(ctx context.Context, query string, arg any) (sql.Result, error)
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// =============================================================================
// SQLiteStore
// =============================================================================

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db *sqlx.DB
}

// NewSQLiteStore creates a new SQLite store and runs migrations.
func NewSQLiteStore(dsn string) (*SQLiteStore, error) {
	db, err := sqlx.Open("sqlite3", dsn+"?_foreign_keys=on")
	if err != nil {
		return nil, NewStoreError("NewSQLiteStore", "", "", "failed to open database", ErrConnectionFailed)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, NewStoreError("NewSQLiteStore", "", "", "failed to ping database", ErrConnectionFailed)
	}

	if err := runMigrations(db.DB); err != nil {
		db.Close()
		return nil, NewStoreError("NewSQLiteStore", "", "", err.Error(), ErrMigrationFailed)
	}

	return &SQLiteStore{db: db}, nil
}

// runMigrations runs database migrations using embedded SQL files.
func runMigrations(db *sql.DB) error {
	driver, err := sqlite3.WithInstance(db, &sqlite3.Config{})
	if err != nil {
		return fmt.Errorf("failed to create migration driver: %w", err)
	}

	source, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("failed to create migration source: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", source, "sqlite3", driver)
	if err != nil {
		return fmt.Errorf("failed to create migrator: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	return nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// =============================================================================
// SQLiteStore Method Wrappers
// =============================================================================

func (s *SQLiteStore) CreateApp(ctx context.Context, app *domain.App) error {
	return createApp(ctx, s.db, app)
}

func (s *SQLiteStore) GetApp(ctx context.Context, id string) (*domain.App, error) {
	return getApp(ctx, s.db, id)
}

func (s *SQLiteStore) GetAppBySlug(ctx context.Context, slug string) (*domain.App, error) {
	return getAppBySlug(ctx, s.db, slug)
}

func (s *SQLiteStore) UpdateApp(ctx context.Context, app *domain.App) error {
	return updateApp(ctx, s.db, app)
}

func (s *SQLiteStore) DeleteApp(ctx context.Context, id string) error {
	return deleteApp(ctx, s.db, id)
}

func (s *SQLiteStore) ListApps(ctx context.Context, opts ListOptions) ([]domain.App, error) {
	return listApps(ctx, s.db, opts)
}

func (s *SQLiteStore) CreateRun(ctx context.Context, run *domain.Run) error {
	return createRun(ctx, s.db, run)
}

func (s *SQLiteStore) GetRun(ctx context.Context, id string) (*domain.Run, error) {
	return getRun(ctx, s.db, id)
}

func (s *SQLiteStore) UpdateRun(ctx context.Context, run *domain.Run) error {
	return updateRun(ctx, s.db, run)
}

func (s *SQLiteStore) ListRunsByApp(ctx context.Context, appID string, opts ListOptions) ([]domain.Run, error) {
	return listRunsByApp(ctx, s.db, appID, opts)
}

func (s *SQLiteStore) NextQueuedRun(ctx context.Context) (*domain.Run, error) {
	return nextQueuedRun(ctx, s.db)
}

func (s *SQLiteStore) CreateRelease(ctx context.Context, release *domain.Release) error {
	return createRelease(ctx, s.db, release)
}

func (s *SQLiteStore) ListReleasesByApp(ctx context.Context, appID string, opts ListOptions) ([]domain.Release, error) {
	return listReleasesByApp(ctx, s.db, appID, opts)
}

func (s *SQLiteStore) LatestRelease(ctx context.Context, appID string) (*domain.Release, error) {
	return latestRelease(ctx, s.db, appID)
}

func (s *SQLiteStore) CreateSecret(ctx context.Context, secret *domain.Secret, ciphertext string) error {
	return createSecret(ctx, s.db, secret, ciphertext)
}

func (s *SQLiteStore) GetSecret(ctx context.Context, name string) (*domain.Secret, error) {
	return getSecret(ctx, s.db, name)
}

func (s *SQLiteStore) GetSecretCiphertext(ctx context.Context, name string) (string, error) {
	return getSecretCiphertext(ctx, s.db, name)
}

func (s *SQLiteStore) UpdateSecretValue(ctx context.Context, secret *domain.Secret, ciphertext string) error {
	return updateSecretValue(ctx, s.db, secret, ciphertext)
}

func (s *SQLiteStore) DeleteSecret(ctx context.Context, name string) error {
	return deleteSecret(ctx, s.db, name)
}

func (s *SQLiteStore) ListSecrets(ctx context.Context, opts ListOptions) ([]domain.Secret, error) {
	return listSecrets(ctx, s.db, opts)
}

func (s *SQLiteStore) GetStack(ctx context.Context, appID string) (*domain.Stack, error) {
	return getStack(ctx, s.db, appID)
}

func (s *SQLiteStore) SaveStack(ctx context.Context, stack *domain.Stack) error {
	return saveStack(ctx, s.db, stack)
}

func (s *SQLiteStore) CreateAPIToken(ctx context.Context, token *domain.APIToken) error {
	return createAPIToken(ctx, s.db, token)
}

func (s *SQLiteStore) ListActiveAPITokens(ctx context.Context) ([]domain.APIToken, error) {
	return listActiveAPITokens(ctx, s.db)
}

func (s *SQLiteStore) RevokeAPIToken(ctx context.Context, id string) error {
	return revokeAPIToken(ctx, s.db, id)
}

// =============================================================================
// Transaction Support
// =============================================================================

func (s *SQLiteStore) WithTx(ctx context.Context, fn func(Store) error) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return NewStoreError("WithTx", "", "", "failed to begin transaction", ErrTxFailed)
	}

	txS := &txSQLiteStore{tx: tx}

	if err := fn(txS); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return NewStoreError("WithTx", "", "", fmt.Sprintf("rollback failed after error: %v", err), ErrTxFailed)
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return NewStoreError("WithTx", "", "", "failed to commit transaction", ErrTxFailed)
	}

	return nil
}

// txSQLiteStore implements Store within a transaction.
type txSQLiteStore struct {
	tx *sqlx.Tx
}

func (s *txSQLiteStore) CreateApp(ctx context.Context, app *domain.App) error {
	return createApp(ctx, s.tx, app)
}

func (s *txSQLiteStore) GetApp(ctx context.Context, id string) (*domain.App, error) {
	return getApp(ctx, s.tx, id)
}

func (s *txSQLiteStore) GetAppBySlug(ctx context.Context, slug string) (*domain.App, error) {
	return getAppBySlug(ctx, s.tx, slug)
}

func (s *txSQLiteStore) UpdateApp(ctx context.Context, app *domain.App) error {
	return updateApp(ctx, s.tx, app)
}

func (s *txSQLiteStore) DeleteApp(ctx context.Context, id string) error {
	return deleteApp(ctx, s.tx, id)
}

func (s *txSQLiteStore) ListApps(ctx context.Context, opts ListOptions) ([]domain.App, error) {
	return listApps(ctx, s.tx, opts)
}

func (s *txSQLiteStore) CreateRun(ctx context.Context, run *domain.Run) error {
	return createRun(ctx, s.tx, run)
}

func (s *txSQLiteStore) GetRun(ctx context.Context, id string) (*domain.Run, error) {
	return getRun(ctx, s.tx, id)
}

func (s *txSQLiteStore) UpdateRun(ctx context.Context, run *domain.Run) error {
	return updateRun(ctx, s.tx, run)
}

func (s *txSQLiteStore) ListRunsByApp(ctx context.Context, appID string, opts ListOptions) ([]domain.Run, error) {
	return listRunsByApp(ctx, s.tx, appID, opts)
}

func (s *txSQLiteStore) NextQueuedRun(ctx context.Context) (*domain.Run, error) {
	return nextQueuedRun(ctx, s.tx)
}

func (s *txSQLiteStore) CreateRelease(ctx context.Context, release *domain.Release) error {
	return createRelease(ctx, s.tx, release)
}

func (s *txSQLiteStore) ListReleasesByApp(ctx context.Context, appID string, opts ListOptions) ([]domain.Release, error) {
	return listReleasesByApp(ctx, s.tx, appID, opts)
}

func (s *txSQLiteStore) LatestRelease(ctx context.Context, appID string) (*domain.Release, error) {
	return latestRelease(ctx, s.tx, appID)
}

func (s *txSQLiteStore) CreateSecret(ctx context.Context, secret *domain.Secret, ciphertext string) error {
	return createSecret(ctx, s.tx, secret, ciphertext)
}

func (s *txSQLiteStore) GetSecret(ctx context.Context, name string) (*domain.Secret, error) {
	return getSecret(ctx, s.tx, name)
}

func (s *txSQLiteStore) GetSecretCiphertext(ctx context.Context, name string) (string, error) {
	return getSecretCiphertext(ctx, s.tx, name)
}

func (s *txSQLiteStore) UpdateSecretValue(ctx context.Context, secret *domain.Secret, ciphertext string) error {
	return updateSecretValue(ctx, s.tx, secret, ciphertext)
}

func (s *txSQLiteStore) DeleteSecret(ctx context.Context, name string) error {
	return deleteSecret(ctx, s.tx, name)
}

func (s *txSQLiteStore) ListSecrets(ctx context.Context, opts ListOptions) ([]domain.Secret, error) {
	return listSecrets(ctx, s.tx, opts)
}

func (s *txSQLiteStore) GetStack(ctx context.Context, appID string) (*domain.Stack, error) {
	return getStack(ctx, s.tx, appID)
}

func (s *txSQLiteStore) SaveStack(ctx context.Context, stack *domain.Stack) error {
	return saveStack(ctx, s.tx, stack)
}

func (s *txSQLiteStore) CreateAPIToken(ctx context.Context, token *domain.APIToken) error {
	return createAPIToken(ctx, s.tx, token)
}

func (s *txSQLiteStore) ListActiveAPITokens(ctx context.Context) ([]domain.APIToken, error) {
	return listActiveAPITokens(ctx, s.tx)
}

func (s *txSQLiteStore) RevokeAPIToken(ctx context.Context, id string) error {
	return revokeAPIToken(ctx, s.tx, id)
}

// Nested transactions are not supported; run the function on the same tx.
func (s *txSQLiteStore) WithTx(ctx context.Context, fn func(Store) error) error {
	return fn(s)
}

func (s *txSQLiteStore) Close() error {
	return nil
}

// =============================================================================
// App Queries
// =============================================================================

// appRow represents an app row in the database.
type appRow struct {
	ID          string `db:"id"`
	Name        string `db:"name"`
	Slug        string `db:"slug"`
	ProjectID   string `db:"project_id"`
	Registry    string `db:"registry"`
	Description string `db:"description"`
	ImageSpec   string `db:"image_spec"`
	ComposeSpec string `db:"compose_spec"`
	Pipeline    string `db:"pipeline"`
	CreatedAt   string `db:"created_at"`
	UpdatedAt   string `db:"updated_at"`
}

func createApp(ctx context.Context, exec executor, app *domain.App) error {
	query := `
		INSERT INTO apps (
			id, name, slug, project_id, registry, description,
			image_spec, compose_spec, pipeline, created_at, updated_at
		) VALUES (
			:id, :name, :slug, :project_id, :registry, :description,
			:image_spec, :compose_spec, :pipeline, :created_at, :updated_at
		)`

	_, err := exec.NamedExecContext(ctx, query, appToRow(app))
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed: apps.id") {
			return NewStoreError("CreateApp", "app", app.ID, "app with this ID already exists", ErrDuplicateID)
		}
		if strings.Contains(err.Error(), "UNIQUE constraint failed: apps.slug") {
			return NewStoreError("CreateApp", "app", app.ID, "app with this slug already exists", ErrDuplicateSlug)
		}
		return NewStoreError("CreateApp", "app", app.ID, err.Error(), err)
	}

	return nil
}

func getApp(ctx context.Context, exec executor, id string) (*domain.App, error) {
	var row appRow
	err := exec.GetContext(ctx, &row, `SELECT * FROM apps WHERE id = ?`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, NewStoreError("GetApp", "app", id, "app not found", ErrNotFound)
		}
		return nil, NewStoreError("GetApp", "app", id, err.Error(), err)
	}
	return rowToApp(&row), nil
}

func getAppBySlug(ctx context.Context, exec executor, slug string) (*domain.App, error) {
	var row appRow
	err := exec.GetContext(ctx, &row, `SELECT * FROM apps WHERE slug = ?`, slug)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, NewStoreError("GetAppBySlug", "app", slug, "app not found", ErrNotFound)
		}
		return nil, NewStoreError("GetAppBySlug", "app", slug, err.Error(), err)
	}
	return rowToApp(&row), nil
}

func updateApp(ctx context.Context, exec executor, app *domain.App) error {
	query := `
		UPDATE apps SET
			name = :name,
			slug = :slug,
			project_id = :project_id,
			registry = :registry,
			description = :description,
			image_spec = :image_spec,
			compose_spec = :compose_spec,
			pipeline = :pipeline,
			updated_at = :updated_at
		WHERE id = :id`

	result, err := exec.NamedExecContext(ctx, query, appToRow(app))
	if err != nil {
		return NewStoreError("UpdateApp", "app", app.ID, err.Error(), err)
	}

	rowsAffected, _ := result.RowsAffected()
	if rowsAffected == 0 {
		return NewStoreError("UpdateApp", "app", app.ID, "app not found", ErrNotFound)
	}

	return nil
}

func deleteApp(ctx context.Context, exec executor, id string) error {
	result, err := exec.ExecContext(ctx, `DELETE FROM apps WHERE id = ?`, id)
	if err != nil {
		return NewStoreError("DeleteApp", "app", id, err.Error(), err)
	}

	rowsAffected, _ := result.RowsAffected()
	if rowsAffected == 0 {
		return NewStoreError("DeleteApp", "app", id, "app not found", ErrNotFound)
	}

	return nil
}

func listApps(ctx context.Context, exec executor, opts ListOptions) ([]domain.App, error) {
	opts = opts.Normalize()

	var rows []appRow
	err := exec.SelectContext(ctx, &rows,
		`SELECT * FROM apps ORDER BY created_at DESC LIMIT ? OFFSET ?`, opts.Limit, opts.Offset)
	if err != nil {
		return nil, NewStoreError("ListApps", "app", "", err.Error(), err)
	}

	apps := make([]domain.App, 0, len(rows))
	for _, row := range rows {
		apps = append(apps, *rowToApp(&row))
	}
	return apps, nil
}

func appToRow(app *domain.App) map[string]any {
	return map[string]any{
		"id":           app.ID,
		"name":         app.Name,
		"slug":         app.Slug,
		"project_id":   app.ProjectID,
		"registry":     app.Registry,
		"description":  app.Description,
		"image_spec":   app.ImageSpec,
		"compose_spec": app.ComposeSpec,
		"pipeline":     app.Pipeline,
		"created_at":   app.CreatedAt.Format(time.RFC3339),
		"updated_at":   app.UpdatedAt.Format(time.RFC3339),
	}
}

func rowToApp(row *appRow) *domain.App {
	createdAt, _ := time.Parse(time.RFC3339, row.CreatedAt)
	updatedAt, _ := time.Parse(time.RFC3339, row.UpdatedAt)

	return &domain.App{
		ID:          row.ID,
		Name:        row.Name,
		Slug:        row.Slug,
		ProjectID:   row.ProjectID,
		Registry:    row.Registry,
		Description: row.Description,
		ImageSpec:   row.ImageSpec,
		ComposeSpec: row.ComposeSpec,
		Pipeline:    row.Pipeline,
		CreatedAt:   createdAt,
		UpdatedAt:   updatedAt,
	}
}

// =============================================================================
// Run Queries
// =============================================================================

// runRow represents a run row in the database. Steps are stored as JSON.
type runRow struct {
	ID           string  `db:"id"`
	AppID        string  `db:"app_id"`
	CommitSHA    string  `db:"commit_sha"`
	ImageRef     string  `db:"image_ref"`
	Status       string  `db:"status"`
	Steps        string  `db:"steps"`
	ErrorMessage string  `db:"error_message"`
	CreatedAt    string  `db:"created_at"`
	UpdatedAt    string  `db:"updated_at"`
	StartedAt    *string `db:"started_at"`
	FinishedAt   *string `db:"finished_at"`
}

func createRun(ctx context.Context, exec executor, run *domain.Run) error {
	stepsJSON, err := json.Marshal(run.Steps)
	if err != nil {
		return NewStoreError("CreateRun", "run", run.ID, "failed to serialize steps", ErrInvalidData)
	}

	query := `
		INSERT INTO runs (
			id, app_id, commit_sha, image_ref, status, steps,
			error_message, created_at, updated_at, started_at, finished_at
		) VALUES (
			:id, :app_id, :commit_sha, :image_ref, :status, :steps,
			:error_message, :created_at, :updated_at, :started_at, :finished_at
		)`

	row := map[string]any{
		"id":            run.ID,
		"app_id":        run.AppID,
		"commit_sha":    run.CommitSHA,
		"image_ref":     run.ImageRef,
		"status":        string(run.Status),
		"steps":         string(stepsJSON),
		"error_message": run.ErrorMessage,
		"created_at":    run.CreatedAt.Format(time.RFC3339),
		"updated_at":    run.UpdatedAt.Format(time.RFC3339),
		"started_at":    formatTimePtr(run.StartedAt),
		"finished_at":   formatTimePtr(run.FinishedAt),
	}

	if _, err := exec.NamedExecContext(ctx, query, row); err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed: runs.id") {
			return NewStoreError("CreateRun", "run", run.ID, "run with this ID already exists", ErrDuplicateID)
		}
		if strings.Contains(err.Error(), "FOREIGN KEY constraint failed") {
			return NewStoreError("CreateRun", "run", run.ID, "app not found", ErrForeignKey)
		}
		return NewStoreError("CreateRun", "run", run.ID, err.Error(), err)
	}

	return nil
}

func getRun(ctx context.Context, exec executor, id string) (*domain.Run, error) {
	var row runRow
	err := exec.GetContext(ctx, &row, `SELECT * FROM runs WHERE id = ?`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, NewStoreError("GetRun", "run", id, "run not found", ErrNotFound)
		}
		return nil, NewStoreError("GetRun", "run", id, err.Error(), err)
	}
	return rowToRun(&row)
}

func updateRun(ctx context.Context, exec executor, run *domain.Run) error {
	stepsJSON, err := json.Marshal(run.Steps)
	if err != nil {
		return NewStoreError("UpdateRun", "run", run.ID, "failed to serialize steps", ErrInvalidData)
	}

	query := `
		UPDATE runs SET
			status = :status,
			steps = :steps,
			error_message = :error_message,
			updated_at = :updated_at,
			started_at = :started_at,
			finished_at = :finished_at
		WHERE id = :id`

	row := map[string]any{
		"id":            run.ID,
		"status":        string(run.Status),
		"steps":         string(stepsJSON),
		"error_message": run.ErrorMessage,
		"updated_at":    run.UpdatedAt.Format(time.RFC3339),
		"started_at":    formatTimePtr(run.StartedAt),
		"finished_at":   formatTimePtr(run.FinishedAt),
	}

	result, err := exec.NamedExecContext(ctx, query, row)
	if err != nil {
		return NewStoreError("UpdateRun", "run", run.ID, err.Error(), err)
	}

	rowsAffected, _ := result.RowsAffected()
	if rowsAffected == 0 {
		return NewStoreError("UpdateRun", "run", run.ID, "run not found", ErrNotFound)
	}

	return nil
}

func listRunsByApp(ctx context.Context, exec executor, appID string, opts ListOptions) ([]domain.Run, error) {
	opts = opts.Normalize()

	var rows []runRow
	err := exec.SelectContext(ctx, &rows,
		`SELECT * FROM runs WHERE app_id = ? ORDER BY created_at DESC LIMIT ? OFFSET ?`,
		appID, opts.Limit, opts.Offset)
	if err != nil {
		return nil, NewStoreError("ListRunsByApp", "run", "", err.Error(), err)
	}

	runs := make([]domain.Run, 0, len(rows))
	for _, row := range rows {
		run, err := rowToRun(&row)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *run)
	}
	return runs, nil
}

// nextQueuedRun returns the oldest queued run, or ErrNotFound when the queue
// is empty. Run IDs are ksuids, so id order equals creation order.
func nextQueuedRun(ctx context.Context, exec executor) (*domain.Run, error) {
	var row runRow
	err := exec.GetContext(ctx, &row,
		`SELECT * FROM runs WHERE status = ? ORDER BY id ASC LIMIT 1`, string(domain.RunStatusQueued))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, NewStoreError("NextQueuedRun", "run", "", "no queued runs", ErrNotFound)
		}
		return nil, NewStoreError("NextQueuedRun", "run", "", err.Error(), err)
	}
	return rowToRun(&row)
}

func rowToRun(row *runRow) (*domain.Run, error) {
	createdAt, _ := time.Parse(time.RFC3339, row.CreatedAt)
	updatedAt, _ := time.Parse(time.RFC3339, row.UpdatedAt)

	var steps []domain.StepResult
	if row.Steps != "" && row.Steps != "null" {
		if err := json.Unmarshal([]byte(row.Steps), &steps); err != nil {
			return nil, NewStoreError("rowToRun", "run", row.ID, "failed to parse steps", ErrInvalidData)
		}
	}

	return &domain.Run{
		ID:           row.ID,
		AppID:        row.AppID,
		CommitSHA:    row.CommitSHA,
		ImageRef:     row.ImageRef,
		Status:       domain.RunStatus(row.Status),
		Steps:        steps,
		ErrorMessage: row.ErrorMessage,
		CreatedAt:    createdAt,
		UpdatedAt:    updatedAt,
		StartedAt:    parseTimePtr(row.StartedAt),
		FinishedAt:   parseTimePtr(row.FinishedAt),
	}, nil
}

// =============================================================================
// Release Queries
// =============================================================================

// releaseRow represents a release row in the database.
type releaseRow struct {
	ID        string `db:"id"`
	AppID     string `db:"app_id"`
	RunID     string `db:"run_id"`
	CommitSHA string `db:"commit_sha"`
	ImageRef  string `db:"image_ref"`
	Target    string `db:"target"`
	CreatedAt string `db:"created_at"`
}

func createRelease(ctx context.Context, exec executor, release *domain.Release) error {
	query := `
		INSERT INTO releases (id, app_id, run_id, commit_sha, image_ref, target, created_at)
		VALUES (:id, :app_id, :run_id, :commit_sha, :image_ref, :target, :created_at)`

	row := map[string]any{
		"id":         release.ID,
		"app_id":     release.AppID,
		"run_id":     release.RunID,
		"commit_sha": release.CommitSHA,
		"image_ref":  release.ImageRef,
		"target":     release.Target,
		"created_at": release.CreatedAt.Format(time.RFC3339),
	}

	if _, err := exec.NamedExecContext(ctx, query, row); err != nil {
		if strings.Contains(err.Error(), "FOREIGN KEY constraint failed") {
			return NewStoreError("CreateRelease", "release", release.ID, "app not found", ErrForeignKey)
		}
		return NewStoreError("CreateRelease", "release", release.ID, err.Error(), err)
	}

	return nil
}

func listReleasesByApp(ctx context.Context, exec executor, appID string, opts ListOptions) ([]domain.Release, error) {
	opts = opts.Normalize()

	var rows []releaseRow
	err := exec.SelectContext(ctx, &rows,
		`SELECT * FROM releases WHERE app_id = ? ORDER BY id DESC LIMIT ? OFFSET ?`,
		appID, opts.Limit, opts.Offset)
	if err != nil {
		return nil, NewStoreError("ListReleasesByApp", "release", "", err.Error(), err)
	}

	releases := make([]domain.Release, 0, len(rows))
	for _, row := range rows {
		releases = append(releases, *rowToRelease(&row))
	}
	return releases, nil
}

func latestRelease(ctx context.Context, exec executor, appID string) (*domain.Release, error) {
	var row releaseRow
	err := exec.GetContext(ctx, &row,
		`SELECT * FROM releases WHERE app_id = ? ORDER BY id DESC LIMIT 1`, appID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, NewStoreError("LatestRelease", "release", appID, "no releases for app", ErrNotFound)
		}
		return nil, NewStoreError("LatestRelease", "release", appID, err.Error(), err)
	}
	return rowToRelease(&row), nil
}

func rowToRelease(row *releaseRow) *domain.Release {
	createdAt, _ := time.Parse(time.RFC3339, row.CreatedAt)
	return &domain.Release{
		ID:        row.ID,
		AppID:     row.AppID,
		RunID:     row.RunID,
		CommitSHA: row.CommitSHA,
		ImageRef:  row.ImageRef,
		Target:    row.Target,
		CreatedAt: createdAt,
	}
}

// =============================================================================
// Secret Queries
// =============================================================================

// secretRow represents a secret row in the database. Ciphertext is null for
// secrets whose value lives in an external backend.
type secretRow struct {
	ID         string  `db:"id"`
	Name       string  `db:"name"`
	Backend    string  `db:"backend"`
	Version    int     `db:"version"`
	Ciphertext *string `db:"ciphertext"`
	CreatedAt  string  `db:"created_at"`
	UpdatedAt  string  `db:"updated_at"`
}

func createSecret(ctx context.Context, exec executor, secret *domain.Secret, ciphertext string) error {
	query := `
		INSERT INTO secrets (id, name, backend, version, ciphertext, created_at, updated_at)
		VALUES (:id, :name, :backend, :version, :ciphertext, :created_at, :updated_at)`

	var ct *string
	if ciphertext != "" {
		ct = &ciphertext
	}

	row := map[string]any{
		"id":         secret.ID,
		"name":       secret.Name,
		"backend":    secret.Backend,
		"version":    secret.Version,
		"ciphertext": ct,
		"created_at": secret.CreatedAt.Format(time.RFC3339),
		"updated_at": secret.UpdatedAt.Format(time.RFC3339),
	}

	if _, err := exec.NamedExecContext(ctx, query, row); err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed: secrets.name") {
			return NewStoreError("CreateSecret", "secret", secret.Name, "secret with this name already exists", ErrDuplicateName)
		}
		return NewStoreError("CreateSecret", "secret", secret.Name, err.Error(), err)
	}

	return nil
}

func getSecret(ctx context.Context, exec executor, name string) (*domain.Secret, error) {
	var row secretRow
	err := exec.GetContext(ctx, &row, `SELECT * FROM secrets WHERE name = ?`, name)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, NewStoreError("GetSecret", "secret", name, "secret not found", ErrNotFound)
		}
		return nil, NewStoreError("GetSecret", "secret", name, err.Error(), err)
	}
	return rowToSecret(&row), nil
}

func getSecretCiphertext(ctx context.Context, exec executor, name string) (string, error) {
	var row secretRow
	err := exec.GetContext(ctx, &row, `SELECT * FROM secrets WHERE name = ?`, name)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", NewStoreError("GetSecretCiphertext", "secret", name, "secret not found", ErrNotFound)
		}
		return "", NewStoreError("GetSecretCiphertext", "secret", name, err.Error(), err)
	}
	if row.Ciphertext == nil {
		return "", nil
	}
	return *row.Ciphertext, nil
}

func updateSecretValue(ctx context.Context, exec executor, secret *domain.Secret, ciphertext string) error {
	query := `
		UPDATE secrets SET
			version = :version,
			ciphertext = :ciphertext,
			updated_at = :updated_at
		WHERE name = :name`

	var ct *string
	if ciphertext != "" {
		ct = &ciphertext
	}

	row := map[string]any{
		"name":       secret.Name,
		"version":    secret.Version,
		"ciphertext": ct,
		"updated_at": secret.UpdatedAt.Format(time.RFC3339),
	}

	result, err := exec.NamedExecContext(ctx, query, row)
	if err != nil {
		return NewStoreError("UpdateSecretValue", "secret", secret.Name, err.Error(), err)
	}

	rowsAffected, _ := result.RowsAffected()
	if rowsAffected == 0 {
		return NewStoreError("UpdateSecretValue", "secret", secret.Name, "secret not found", ErrNotFound)
	}

	return nil
}

func deleteSecret(ctx context.Context, exec executor, name string) error {
	result, err := exec.ExecContext(ctx, `DELETE FROM secrets WHERE name = ?`, name)
	if err != nil {
		return NewStoreError("DeleteSecret", "secret", name, err.Error(), err)
	}

	rowsAffected, _ := result.RowsAffected()
	if rowsAffected == 0 {
		return NewStoreError("DeleteSecret", "secret", name, "secret not found", ErrNotFound)
	}

	return nil
}

func listSecrets(ctx context.Context, exec executor, opts ListOptions) ([]domain.Secret, error) {
	opts = opts.Normalize()

	var rows []secretRow
	err := exec.SelectContext(ctx, &rows,
		`SELECT * FROM secrets ORDER BY name ASC LIMIT ? OFFSET ?`, opts.Limit, opts.Offset)
	if err != nil {
		return nil, NewStoreError("ListSecrets", "secret", "", err.Error(), err)
	}

	secrets := make([]domain.Secret, 0, len(rows))
	for _, row := range rows {
		secrets = append(secrets, *rowToSecret(&row))
	}
	return secrets, nil
}

func rowToSecret(row *secretRow) *domain.Secret {
	createdAt, _ := time.Parse(time.RFC3339, row.CreatedAt)
	updatedAt, _ := time.Parse(time.RFC3339, row.UpdatedAt)

	return &domain.Secret{
		ID:        row.ID,
		Name:      row.Name,
		Backend:   row.Backend,
		Version:   row.Version,
		CreatedAt: createdAt,
		UpdatedAt: updatedAt,
	}
}

// =============================================================================
// Stack Queries
// =============================================================================

// stackRow represents a stack row in the database. Services are stored as
// JSON.
type stackRow struct {
	AppID        string  `db:"app_id"`
	Status       string  `db:"status"`
	Services     string  `db:"services"`
	ErrorMessage string  `db:"error_message"`
	UpdatedAt    string  `db:"updated_at"`
	StartedAt    *string `db:"started_at"`
}

func getStack(ctx context.Context, exec executor, appID string) (*domain.Stack, error) {
	var row stackRow
	err := exec.GetContext(ctx, &row, `SELECT * FROM stacks WHERE app_id = ?`, appID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, NewStoreError("GetStack", "stack", appID, "stack not found", ErrNotFound)
		}
		return nil, NewStoreError("GetStack", "stack", appID, err.Error(), err)
	}
	return rowToStack(&row)
}

func saveStack(ctx context.Context, exec executor, stack *domain.Stack) error {
	servicesJSON, err := json.Marshal(stack.Services)
	if err != nil {
		return NewStoreError("SaveStack", "stack", stack.AppID, "failed to serialize services", ErrInvalidData)
	}

	query := `
		INSERT INTO stacks (app_id, status, services, error_message, updated_at, started_at)
		VALUES (:app_id, :status, :services, :error_message, :updated_at, :started_at)
		ON CONFLICT(app_id) DO UPDATE SET
			status = :status,
			services = :services,
			error_message = :error_message,
			updated_at = :updated_at,
			started_at = :started_at`

	row := map[string]any{
		"app_id":        stack.AppID,
		"status":        string(stack.Status),
		"services":      string(servicesJSON),
		"error_message": stack.ErrorMessage,
		"updated_at":    stack.UpdatedAt.Format(time.RFC3339),
		"started_at":    formatTimePtr(stack.StartedAt),
	}

	if _, err := exec.NamedExecContext(ctx, query, row); err != nil {
		if strings.Contains(err.Error(), "FOREIGN KEY constraint failed") {
			return NewStoreError("SaveStack", "stack", stack.AppID, "app not found", ErrForeignKey)
		}
		return NewStoreError("SaveStack", "stack", stack.AppID, err.Error(), err)
	}

	return nil
}

func rowToStack(row *stackRow) (*domain.Stack, error) {
	updatedAt, _ := time.Parse(time.RFC3339, row.UpdatedAt)

	var services []domain.ServiceInfo
	if row.Services != "" && row.Services != "null" {
		if err := json.Unmarshal([]byte(row.Services), &services); err != nil {
			return nil, NewStoreError("rowToStack", "stack", row.AppID, "failed to parse services", ErrInvalidData)
		}
	}

	return &domain.Stack{
		AppID:        row.AppID,
		Status:       domain.StackStatus(row.Status),
		Services:     services,
		ErrorMessage: row.ErrorMessage,
		UpdatedAt:    updatedAt,
		StartedAt:    parseTimePtr(row.StartedAt),
	}, nil
}

// =============================================================================
// API Token Queries
// =============================================================================

// tokenRow represents an api_tokens row in the database.
type tokenRow struct {
	ID        string  `db:"id"`
	Name      string  `db:"name"`
	Hash      string  `db:"hash"`
	CreatedAt string  `db:"created_at"`
	RevokedAt *string `db:"revoked_at"`
}

func createAPIToken(ctx context.Context, exec executor, token *domain.APIToken) error {
	query := `
		INSERT INTO api_tokens (id, name, hash, created_at, revoked_at)
		VALUES (:id, :name, :hash, :created_at, :revoked_at)`

	row := map[string]any{
		"id":         token.ID,
		"name":       token.Name,
		"hash":       token.Hash,
		"created_at": token.CreatedAt.Format(time.RFC3339),
		"revoked_at": formatTimePtr(token.RevokedAt),
	}

	if _, err := exec.NamedExecContext(ctx, query, row); err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed: api_tokens.id") {
			return NewStoreError("CreateAPIToken", "token", token.ID, "token with this ID already exists", ErrDuplicateID)
		}
		return NewStoreError("CreateAPIToken", "token", token.ID, err.Error(), err)
	}

	return nil
}

func listActiveAPITokens(ctx context.Context, exec executor) ([]domain.APIToken, error) {
	var rows []tokenRow
	err := exec.SelectContext(ctx, &rows,
		`SELECT * FROM api_tokens WHERE revoked_at IS NULL ORDER BY created_at ASC`)
	if err != nil {
		return nil, NewStoreError("ListActiveAPITokens", "token", "", err.Error(), err)
	}

	tokens := make([]domain.APIToken, 0, len(rows))
	for _, row := range rows {
		createdAt, _ := time.Parse(time.RFC3339, row.CreatedAt)
		tokens = append(tokens, domain.APIToken{
			ID:        row.ID,
			Name:      row.Name,
			Hash:      row.Hash,
			CreatedAt: createdAt,
			RevokedAt: parseTimePtr(row.RevokedAt),
		})
	}
	return tokens, nil
}

func revokeAPIToken(ctx context.Context, exec executor, id string) error {
	result, err := exec.ExecContext(ctx,
		`UPDATE api_tokens SET revoked_at = ? WHERE id = ? AND revoked_at IS NULL`,
		time.Now().UTC().Format(time.RFC3339), id)
	if err != nil {
		return NewStoreError("RevokeAPIToken", "token", id, err.Error(), err)
	}

	rowsAffected, _ := result.RowsAffected()
	if rowsAffected == 0 {
		return NewStoreError("RevokeAPIToken", "token", id, "active token not found", ErrNotFound)
	}

	return nil
}

// =============================================================================
// Time Helpers
// =============================================================================

func formatTimePtr(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := t.Format(time.RFC3339)
	return &s
}

func parseTimePtr(s *string) *time.Time {
	if s == nil || *s == "" {
		return nil
	}
	t, err := time.Parse(time.RFC3339, *s)
	if err != nil {
		return nil
	}
	return &t
}
