package stores

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/rangeforge/rangeforge/pkg/lifecycle"
	"github.com/rangeforge/rangeforge/pkg/vault"
)

// ErrNotFound is returned when a requested record does not exist. Callers
// distinguish a missing user or range from a database failure with errors.Is.
var ErrNotFound = errors.New("record not found")

// JobKind identifies what a queued job does.
type JobKind string

const (
	JobKindDeploy  JobKind = "deploy"
	JobKindDestroy JobKind = "destroy"
)

// JobStatus represents the status of a queued job.
type JobStatus string

const (
	JobStatusQueued    JobStatus = "queued"
	JobStatusRunning   JobStatus = "running"
	JobStatusSucceeded JobStatus = "succeeded"
	JobStatusFailed    JobStatus = "failed"
)

// User is a tenant account with its key material. PublicKey encrypts the
// user's secrets at rest; EncryptedPrivateKey is the matching identity sealed
// under a key derived from the user's password.
type User struct {
	ID                  uuid.UUID `json:"id"`
	Username            string    `json:"username"`
	PublicKey           string    `json:"public_key"`
	EncryptedPrivateKey []byte    `json:"encrypted_private_key"`
	KeySalt             []byte    `json:"key_salt"`
	KDFVersion          int       `json:"kdf_version"`
	CreatedAt           time.Time `json:"created_at"`
	UpdatedAt           time.Time `json:"updated_at"`
}

// Blueprint is a stored topology template, kept as the raw YAML document the
// user submitted so validation always runs against the same bytes.
type Blueprint struct {
	ID        uuid.UUID `json:"id"`
	UserID    uuid.UUID `json:"user_id"`
	Name      string    `json:"name"`
	Provider  string    `json:"provider"`
	Document  []byte    `json:"document"`
	CreatedAt time.Time `json:"created_at"`
}

// Job is one queued deployment or destruction request.
type Job struct {
	ID          uuid.UUID  `json:"id"`
	Kind        JobKind    `json:"kind"`
	Status      JobStatus  `json:"status"`
	UserID      uuid.UUID  `json:"user_id"`
	RangeID     uuid.UUID  `json:"range_id"`
	Region      string     `json:"region,omitempty"`
	Error       *string    `json:"error,omitempty"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// Store defines the persistence layer.
type Store interface {
	// Lifecycle
	Init(ctx context.Context) error
	Close() error
	Migrate(ctx context.Context) error

	// User operations
	CreateUser(ctx context.Context, user *User) error
	GetUserByID(ctx context.Context, id uuid.UUID) (*User, error)
	GetUserByUsername(ctx context.Context, username string) (*User, error)
	UpdateUserKeys(ctx context.Context, id uuid.UUID, encryptedPrivateKey, keySalt []byte, kdfVersion int) error

	// Secret operations. Fields are stored already sealed; the store never
	// sees plaintext credentials.
	PutUserSecrets(ctx context.Context, userID uuid.UUID, provider string, fields vault.Fields) error
	GetUserSecrets(ctx context.Context, userID uuid.UUID, provider string) (vault.Fields, error)
	DeleteUserSecrets(ctx context.Context, userID uuid.UUID, provider string) error

	// Blueprint operations
	CreateBlueprint(ctx context.Context, bp *Blueprint) error
	GetBlueprint(ctx context.Context, id uuid.UUID) (*Blueprint, error)
	ListBlueprintsByUser(ctx context.Context, userID uuid.UUID) ([]*Blueprint, error)
	DeleteBlueprint(ctx context.Context, id uuid.UUID) error

	// Range operations
	CreateRange(ctx context.Context, rng *lifecycle.DeployedRange) error
	GetRange(ctx context.Context, id uuid.UUID) (*lifecycle.DeployedRange, error)
	ListRangesByUser(ctx context.Context, userID uuid.UUID) ([]*lifecycle.DeployedRange, error)
	UpdateRangeState(ctx context.Context, id uuid.UUID, state lifecycle.State) error
	DeleteRange(ctx context.Context, id uuid.UUID) error

	// Job operations
	CreateJob(ctx context.Context, job *Job) error
	GetJob(ctx context.Context, id uuid.UUID) (*Job, error)
	UpdateJobStatus(ctx context.Context, id uuid.UUID, status JobStatus, errMsg *string) error
	ListJobsByUser(ctx context.Context, userID uuid.UUID) ([]*Job, error)

	// Utility
	HealthCheck(ctx context.Context) error
}

// assert the SQLite implementation satisfies the interface.
var _ Store = (*SQLiteStore)(nil)

// scanner abstracts sql.Row and sql.Rows for shared scan helpers.
type scanner interface {
	Scan(dest ...any) error
}

var _ scanner = (*sql.Row)(nil)
