// Package stores implements the persistence layer on SQLite: user accounts
// and their key material, sealed provider secrets, blueprints, deployed
// ranges with their engine state blobs, and the job queue records. A range
// row is only ever written from a confirmed successful apply, and only ever
// deleted after the engine confirms teardown.
package stores

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/google/uuid"

	// SQLite driver
	_ "modernc.org/sqlite"

	"github.com/rangeforge/rangeforge/pkg/lifecycle"
	"github.com/rangeforge/rangeforge/pkg/vault"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// SQLiteStore implements the Store interface using SQLite.
type SQLiteStore struct {
	db   *sql.DB
	path string
}

// Config holds SQLite store configuration.
type Config struct {
	Path            string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// NewSQLiteStore creates a new SQLite store instance.
func NewSQLiteStore(cfg Config) (*SQLiteStore, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("database path is required")
	}
	return &SQLiteStore{path: cfg.Path}, nil
}

// Init opens the database connection and enables WAL mode.
func (s *SQLiteStore) Init(ctx context.Context) error {
	dsn := fmt.Sprintf("%s?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000&_synchronous=NORMAL&_txlock=immediate", s.path)

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to ping database: %w", err)
	}

	if _, err := db.ExecContext(ctx, "PRAGMA foreign_keys = ON"); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	s.db = db
	return nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Migrate runs database migrations from the embedded source.
func (s *SQLiteStore) Migrate(_ context.Context) error {
	if s.db == nil {
		return fmt.Errorf("database not initialized")
	}

	sourceDriver, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("failed to create migration source: %w", err)
	}

	driver, err := sqlite3.WithInstance(s.db, &sqlite3.Config{})
	if err != nil {
		return fmt.Errorf("failed to create database driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", sourceDriver, "sqlite3", driver)
	if err != nil {
		return fmt.Errorf("failed to create migration instance: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	return nil
}

// CreateUser creates a new user record.
func (s *SQLiteStore) CreateUser(ctx context.Context, user *User) error {
	query := `
		INSERT INTO users (id, username, public_key, encrypted_private_key, key_salt, kdf_version, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := s.db.ExecContext(ctx, query,
		user.ID.String(),
		user.Username,
		user.PublicKey,
		user.EncryptedPrivateKey,
		user.KeySalt,
		user.KDFVersion,
		user.CreatedAt,
		user.UpdatedAt,
	)

	if err != nil {
		return fmt.Errorf("failed to create user: %w", err)
	}

	return nil
}

// GetUserByID retrieves a user by ID.
func (s *SQLiteStore) GetUserByID(ctx context.Context, id uuid.UUID) (*User, error) {
	query := `
		SELECT id, username, public_key, encrypted_private_key, key_salt, kdf_version, created_at, updated_at
		FROM users
		WHERE id = ?
	`
	return s.scanUser(s.db.QueryRowContext(ctx, query, id.String()), id.String())
}

// GetUserByUsername retrieves a user by username.
func (s *SQLiteStore) GetUserByUsername(ctx context.Context, username string) (*User, error) {
	query := `
		SELECT id, username, public_key, encrypted_private_key, key_salt, kdf_version, created_at, updated_at
		FROM users
		WHERE username = ?
	`
	return s.scanUser(s.db.QueryRowContext(ctx, query, username), username)
}

// scanUser reads one user row.
func (s *SQLiteStore) scanUser(row scanner, ref string) (*User, error) {
	user := &User{}
	var id string
	err := row.Scan(
		&id,
		&user.Username,
		&user.PublicKey,
		&user.EncryptedPrivateKey,
		&user.KeySalt,
		&user.KDFVersion,
		&user.CreatedAt,
		&user.UpdatedAt,
	)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("user %s: %w", ref, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}

	user.ID, err = uuid.Parse(id)
	if err != nil {
		return nil, fmt.Errorf("invalid user id %q: %w", id, err)
	}
	return user, nil
}

// UpdateUserKeys replaces the user's sealed key material in a single
// statement, so a password change commits atomically: either the new blob,
// salt, and KDF version all land, or none do.
func (s *SQLiteStore) UpdateUserKeys(ctx context.Context, id uuid.UUID, encryptedPrivateKey, keySalt []byte, kdfVersion int) error {
	query := `
		UPDATE users
		SET encrypted_private_key = ?, key_salt = ?, kdf_version = ?, updated_at = CURRENT_TIMESTAMP
		WHERE id = ?
	`

	result, err := s.db.ExecContext(ctx, query, encryptedPrivateKey, keySalt, kdfVersion, id.String())
	if err != nil {
		return fmt.Errorf("failed to update user keys: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("user %s: %w", id, ErrNotFound)
	}

	return nil
}

// PutUserSecrets upserts the sealed credential fields for one provider.
func (s *SQLiteStore) PutUserSecrets(ctx context.Context, userID uuid.UUID, provider string, fields vault.Fields) error {
	payload, err := json.Marshal(fields)
	if err != nil {
		return fmt.Errorf("failed to encode secrets: %w", err)
	}

	query := `
		INSERT INTO user_secrets (user_id, provider, fields, created_at, updated_at)
		VALUES (?, ?, ?, CURRENT_TIMESTAMP, CURRENT_TIMESTAMP)
		ON CONFLICT(user_id, provider) DO UPDATE SET
			fields = excluded.fields,
			updated_at = CURRENT_TIMESTAMP
	`

	if _, err := s.db.ExecContext(ctx, query, userID.String(), provider, string(payload)); err != nil {
		return fmt.Errorf("failed to put user secrets: %w", err)
	}

	return nil
}

// GetUserSecrets retrieves the sealed credential fields for one provider.
func (s *SQLiteStore) GetUserSecrets(ctx context.Context, userID uuid.UUID, provider string) (vault.Fields, error) {
	query := `SELECT fields FROM user_secrets WHERE user_id = ? AND provider = ?`

	var payload string
	err := s.db.QueryRowContext(ctx, query, userID.String(), provider).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("secrets for user %s provider %s: %w", userID, provider, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user secrets: %w", err)
	}

	fields := vault.Fields{}
	if err := json.Unmarshal([]byte(payload), &fields); err != nil {
		return nil, fmt.Errorf("failed to decode secrets: %w", err)
	}
	return fields, nil
}

// DeleteUserSecrets removes the stored credentials for one provider.
func (s *SQLiteStore) DeleteUserSecrets(ctx context.Context, userID uuid.UUID, provider string) error {
	query := `DELETE FROM user_secrets WHERE user_id = ? AND provider = ?`

	result, err := s.db.ExecContext(ctx, query, userID.String(), provider)
	if err != nil {
		return fmt.Errorf("failed to delete user secrets: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("secrets for user %s provider %s: %w", userID, provider, ErrNotFound)
	}

	return nil
}

// CreateBlueprint creates a new blueprint record.
func (s *SQLiteStore) CreateBlueprint(ctx context.Context, bp *Blueprint) error {
	query := `
		INSERT INTO blueprints (id, user_id, name, provider, document, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`

	_, err := s.db.ExecContext(ctx, query,
		bp.ID.String(),
		bp.UserID.String(),
		bp.Name,
		bp.Provider,
		bp.Document,
		bp.CreatedAt,
	)

	if err != nil {
		return fmt.Errorf("failed to create blueprint: %w", err)
	}

	return nil
}

// GetBlueprint retrieves a blueprint by ID.
func (s *SQLiteStore) GetBlueprint(ctx context.Context, id uuid.UUID) (*Blueprint, error) {
	query := `
		SELECT id, user_id, name, provider, document, created_at
		FROM blueprints
		WHERE id = ?
	`
	return s.scanBlueprint(s.db.QueryRowContext(ctx, query, id.String()))
}

// ListBlueprintsByUser lists a user's blueprints, newest first.
func (s *SQLiteStore) ListBlueprintsByUser(ctx context.Context, userID uuid.UUID) ([]*Blueprint, error) {
	query := `
		SELECT id, user_id, name, provider, document, created_at
		FROM blueprints
		WHERE user_id = ?
		ORDER BY created_at DESC
	`

	rows, err := s.db.QueryContext(ctx, query, userID.String())
	if err != nil {
		return nil, fmt.Errorf("failed to list blueprints: %w", err)
	}
	defer rows.Close()

	blueprints := []*Blueprint{}
	for rows.Next() {
		bp, err := s.scanBlueprint(rows)
		if err != nil {
			return nil, err
		}
		blueprints = append(blueprints, bp)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating blueprints: %w", err)
	}

	return blueprints, nil
}

// scanBlueprint reads one blueprint row.
func (s *SQLiteStore) scanBlueprint(row scanner) (*Blueprint, error) {
	bp := &Blueprint{}
	var id, userID string
	err := row.Scan(&id, &userID, &bp.Name, &bp.Provider, &bp.Document, &bp.CreatedAt)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("blueprint: %w", ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get blueprint: %w", err)
	}

	if bp.ID, err = uuid.Parse(id); err != nil {
		return nil, fmt.Errorf("invalid blueprint id %q: %w", id, err)
	}
	if bp.UserID, err = uuid.Parse(userID); err != nil {
		return nil, fmt.Errorf("invalid blueprint user id %q: %w", userID, err)
	}
	return bp, nil
}

// DeleteBlueprint deletes a blueprint by ID.
func (s *SQLiteStore) DeleteBlueprint(ctx context.Context, id uuid.UUID) error {
	query := `DELETE FROM blueprints WHERE id = ?`

	result, err := s.db.ExecContext(ctx, query, id.String())
	if err != nil {
		return fmt.Errorf("failed to delete blueprint: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("blueprint %s: %w", id, ErrNotFound)
	}

	return nil
}

// CreateRange persists a deployed range: its topology with cloud resource
// identifiers, the jump host address and per-range key, and the engine state
// blob required for a later destroy.
func (s *SQLiteStore) CreateRange(ctx context.Context, rng *lifecycle.DeployedRange) error {
	resources, err := json.Marshal(rng.VPCs)
	if err != nil {
		return fmt.Errorf("failed to encode range resources: %w", err)
	}

	query := `
		INSERT INTO ranges (
			id, blueprint_id, user_id, provider, region, state,
			engine_state, resources, jump_host_ip, ssh_private_key, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP)
	`

	_, err = s.db.ExecContext(ctx, query,
		rng.ID.String(),
		rng.BlueprintID.String(),
		rng.UserID.String(),
		rng.Provider,
		rng.Region,
		string(rng.State),
		rng.EngineState,
		string(resources),
		rng.JumpHostIP,
		rng.SSHPrivateKey,
		rng.CreatedAt,
	)

	if err != nil {
		return fmt.Errorf("failed to create range: %w", err)
	}

	return nil
}

// GetRange retrieves a deployed range by ID.
func (s *SQLiteStore) GetRange(ctx context.Context, id uuid.UUID) (*lifecycle.DeployedRange, error) {
	query := `
		SELECT id, blueprint_id, user_id, provider, region, state,
		       engine_state, resources, jump_host_ip, ssh_private_key, created_at
		FROM ranges
		WHERE id = ?
	`
	return s.scanRange(s.db.QueryRowContext(ctx, query, id.String()))
}

// ListRangesByUser lists a user's deployed ranges, newest first.
func (s *SQLiteStore) ListRangesByUser(ctx context.Context, userID uuid.UUID) ([]*lifecycle.DeployedRange, error) {
	query := `
		SELECT id, blueprint_id, user_id, provider, region, state,
		       engine_state, resources, jump_host_ip, ssh_private_key, created_at
		FROM ranges
		WHERE user_id = ?
		ORDER BY created_at DESC
	`

	rows, err := s.db.QueryContext(ctx, query, userID.String())
	if err != nil {
		return nil, fmt.Errorf("failed to list ranges: %w", err)
	}
	defer rows.Close()

	ranges := []*lifecycle.DeployedRange{}
	for rows.Next() {
		rng, err := s.scanRange(rows)
		if err != nil {
			return nil, err
		}
		ranges = append(ranges, rng)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating ranges: %w", err)
	}

	return ranges, nil
}

// scanRange reads one range row.
func (s *SQLiteStore) scanRange(row scanner) (*lifecycle.DeployedRange, error) {
	rng := &lifecycle.DeployedRange{}
	var id, blueprintID, userID, state, resources string
	err := row.Scan(
		&id,
		&blueprintID,
		&userID,
		&rng.Provider,
		&rng.Region,
		&state,
		&rng.EngineState,
		&resources,
		&rng.JumpHostIP,
		&rng.SSHPrivateKey,
		&rng.CreatedAt,
	)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("range: %w", ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get range: %w", err)
	}

	if rng.ID, err = uuid.Parse(id); err != nil {
		return nil, fmt.Errorf("invalid range id %q: %w", id, err)
	}
	if rng.BlueprintID, err = uuid.Parse(blueprintID); err != nil {
		return nil, fmt.Errorf("invalid range blueprint id %q: %w", blueprintID, err)
	}
	if rng.UserID, err = uuid.Parse(userID); err != nil {
		return nil, fmt.Errorf("invalid range user id %q: %w", userID, err)
	}
	rng.State = lifecycle.State(state)
	if err := json.Unmarshal([]byte(resources), &rng.VPCs); err != nil {
		return nil, fmt.Errorf("failed to decode range resources: %w", err)
	}
	return rng, nil
}

// UpdateRangeState updates a range's lifecycle state.
func (s *SQLiteStore) UpdateRangeState(ctx context.Context, id uuid.UUID, state lifecycle.State) error {
	query := `UPDATE ranges SET state = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`

	result, err := s.db.ExecContext(ctx, query, string(state), id.String())
	if err != nil {
		return fmt.Errorf("failed to update range state: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("range %s: %w", id, ErrNotFound)
	}

	return nil
}

// DeleteRange deletes a range record. Callers only do this after the engine
// confirms the infrastructure is gone.
func (s *SQLiteStore) DeleteRange(ctx context.Context, id uuid.UUID) error {
	query := `DELETE FROM ranges WHERE id = ?`

	result, err := s.db.ExecContext(ctx, query, id.String())
	if err != nil {
		return fmt.Errorf("failed to delete range: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("range %s: %w", id, ErrNotFound)
	}

	return nil
}

// CreateJob creates a new job record.
func (s *SQLiteStore) CreateJob(ctx context.Context, job *Job) error {
	query := `
		INSERT INTO jobs (id, kind, status, user_id, range_id, region, error, started_at, completed_at, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := s.db.ExecContext(ctx, query,
		job.ID.String(),
		string(job.Kind),
		string(job.Status),
		job.UserID.String(),
		job.RangeID.String(),
		job.Region,
		job.Error,
		job.StartedAt,
		job.CompletedAt,
		job.CreatedAt,
		job.UpdatedAt,
	)

	if err != nil {
		return fmt.Errorf("failed to create job: %w", err)
	}

	return nil
}

// GetJob retrieves a job by ID.
func (s *SQLiteStore) GetJob(ctx context.Context, id uuid.UUID) (*Job, error) {
	query := `
		SELECT id, kind, status, user_id, range_id, region, error, started_at, completed_at, created_at, updated_at
		FROM jobs
		WHERE id = ?
	`
	return s.scanJob(s.db.QueryRowContext(ctx, query, id.String()))
}

// ListJobsByUser lists a user's jobs, newest first.
func (s *SQLiteStore) ListJobsByUser(ctx context.Context, userID uuid.UUID) ([]*Job, error) {
	query := `
		SELECT id, kind, status, user_id, range_id, region, error, started_at, completed_at, created_at, updated_at
		FROM jobs
		WHERE user_id = ?
		ORDER BY created_at DESC
	`

	rows, err := s.db.QueryContext(ctx, query, userID.String())
	if err != nil {
		return nil, fmt.Errorf("failed to list jobs: %w", err)
	}
	defer rows.Close()

	jobs := []*Job{}
	for rows.Next() {
		job, err := s.scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating jobs: %w", err)
	}

	return jobs, nil
}

// scanJob reads one job row.
func (s *SQLiteStore) scanJob(row scanner) (*Job, error) {
	job := &Job{}
	var id, kind, status, userID, rangeID string
	err := row.Scan(
		&id,
		&kind,
		&status,
		&userID,
		&rangeID,
		&job.Region,
		&job.Error,
		&job.StartedAt,
		&job.CompletedAt,
		&job.CreatedAt,
		&job.UpdatedAt,
	)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("job: %w", ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get job: %w", err)
	}

	if job.ID, err = uuid.Parse(id); err != nil {
		return nil, fmt.Errorf("invalid job id %q: %w", id, err)
	}
	if job.UserID, err = uuid.Parse(userID); err != nil {
		return nil, fmt.Errorf("invalid job user id %q: %w", userID, err)
	}
	if job.RangeID, err = uuid.Parse(rangeID); err != nil {
		return nil, fmt.Errorf("invalid job range id %q: %w", rangeID, err)
	}
	job.Kind = JobKind(kind)
	job.Status = JobStatus(status)
	return job, nil
}

// UpdateJobStatus updates a job's status. Terminal statuses also set the
// completion timestamp; the running status sets the start timestamp.
func (s *SQLiteStore) UpdateJobStatus(ctx context.Context, id uuid.UUID, status JobStatus, errMsg *string) error {
	query := `
		UPDATE jobs
		SET status = ?, error = ?,
			started_at = CASE WHEN started_at IS NULL AND ? = 'running' THEN CURRENT_TIMESTAMP ELSE started_at END,
			completed_at = CASE WHEN ? IN ('succeeded', 'failed') THEN CURRENT_TIMESTAMP ELSE completed_at END,
			updated_at = CURRENT_TIMESTAMP
		WHERE id = ?
	`

	result, err := s.db.ExecContext(ctx, query, string(status), errMsg, string(status), string(status), id.String())
	if err != nil {
		return fmt.Errorf("failed to update job status: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("job %s: %w", id, ErrNotFound)
	}

	return nil
}

// HealthCheck verifies the database connection is healthy.
func (s *SQLiteStore) HealthCheck(ctx context.Context) error {
	if s.db == nil {
		return fmt.Errorf("database not initialized")
	}
	return s.db.PingContext(ctx)
}
