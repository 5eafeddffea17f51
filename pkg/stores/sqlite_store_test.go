package stores

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/rangeforge/rangeforge/pkg/lifecycle"
	"github.com/rangeforge/rangeforge/pkg/vault"
)

// setupTestStore creates an in-memory SQLite store for testing.
func setupTestStore(t *testing.T) *SQLiteStore {
	t.Helper()

	store, err := NewSQLiteStore(Config{Path: ":memory:"})
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}

	ctx := context.Background()
	if err := store.Init(ctx); err != nil {
		t.Fatalf("failed to initialize store: %v", err)
	}
	if err := store.Migrate(ctx); err != nil {
		t.Fatalf("failed to migrate store: %v", err)
	}

	t.Cleanup(func() { store.Close() })
	return store
}

// createTestUser inserts a user with placeholder key material.
func createTestUser(t *testing.T, store *SQLiteStore) *User {
	t.Helper()

	now := time.Now().UTC()
	user := &User{
		ID:                  uuid.New(),
		Username:            "alice-" + uuid.NewString()[:8],
		PublicKey:           "age1testrecipient",
		EncryptedPrivateKey: []byte("sealed-identity"),
		KeySalt:             []byte("0123456789abcdef"),
		KDFVersion:          1,
		CreatedAt:           now,
		UpdatedAt:           now,
	}
	if err := store.CreateUser(context.Background(), user); err != nil {
		t.Fatalf("failed to create user: %v", err)
	}
	return user
}

func TestStoreLifecycle(t *testing.T) {
	store, err := NewSQLiteStore(Config{Path: ":memory:"})
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}

	ctx := context.Background()
	if err := store.Init(ctx); err != nil {
		t.Fatalf("failed to initialize store: %v", err)
	}
	if err := store.HealthCheck(ctx); err != nil {
		t.Fatalf("health check failed: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("failed to close store: %v", err)
	}
}

func TestStoreMigrations(t *testing.T) {
	store := setupTestStore(t)

	ctx := context.Background()
	tables := []string{"users", "user_secrets", "blueprints", "ranges", "jobs"}
	for _, table := range tables {
		var count int
		if err := store.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+table).Scan(&count); err != nil {
			t.Errorf("table %s does not exist or is not accessible: %v", table, err)
		}
	}
}

func TestUserCRUD(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	user := createTestUser(t, store)

	byID, err := store.GetUserByID(ctx, user.ID)
	if err != nil {
		t.Fatalf("failed to get user by id: %v", err)
	}
	if byID.Username != user.Username || byID.PublicKey != user.PublicKey {
		t.Errorf("retrieved user differs: %+v", byID)
	}

	byName, err := store.GetUserByUsername(ctx, user.Username)
	if err != nil {
		t.Fatalf("failed to get user by username: %v", err)
	}
	if byName.ID != user.ID {
		t.Errorf("expected ID %s, got %s", user.ID, byName.ID)
	}

	if _, err := store.GetUserByID(ctx, uuid.New()); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestUpdateUserKeysAtomic(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	user := createTestUser(t, store)

	newBlob := []byte("resealed-identity")
	newSalt := []byte("fedcba9876543210")
	if err := store.UpdateUserKeys(ctx, user.ID, newBlob, newSalt, 2); err != nil {
		t.Fatalf("failed to update user keys: %v", err)
	}

	updated, err := store.GetUserByID(ctx, user.ID)
	if err != nil {
		t.Fatalf("failed to get user: %v", err)
	}
	if string(updated.EncryptedPrivateKey) != string(newBlob) {
		t.Error("encrypted private key not updated")
	}
	if string(updated.KeySalt) != string(newSalt) {
		t.Error("key salt not updated")
	}
	if updated.KDFVersion != 2 {
		t.Errorf("kdf version = %d, want 2", updated.KDFVersion)
	}
	// The public key and the rest of the account are untouched.
	if updated.PublicKey != user.PublicKey {
		t.Error("public key changed during rekey")
	}

	if err := store.UpdateUserKeys(ctx, uuid.New(), newBlob, newSalt, 2); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestUserSecretsUpsert(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	user := createTestUser(t, store)

	sealed := vault.Fields{
		vault.FieldAWSAccessKeyID:     "c2VhbGVkMQ==",
		vault.FieldAWSSecretAccessKey: "c2VhbGVkMg==",
	}
	if err := store.PutUserSecrets(ctx, user.ID, "aws", sealed); err != nil {
		t.Fatalf("failed to put secrets: %v", err)
	}

	got, err := store.GetUserSecrets(ctx, user.ID, "aws")
	if err != nil {
		t.Fatalf("failed to get secrets: %v", err)
	}
	if got[vault.FieldAWSAccessKeyID] != sealed[vault.FieldAWSAccessKeyID] {
		t.Errorf("secrets round trip failed: %+v", got)
	}

	// Upsert replaces the whole field set.
	replacement := vault.Fields{vault.FieldAWSAccessKeyID: "bmV3"}
	if err := store.PutUserSecrets(ctx, user.ID, "aws", replacement); err != nil {
		t.Fatalf("failed to upsert secrets: %v", err)
	}
	got, err = store.GetUserSecrets(ctx, user.ID, "aws")
	if err != nil {
		t.Fatalf("failed to get secrets after upsert: %v", err)
	}
	if len(got) != 1 || got[vault.FieldAWSAccessKeyID] != "bmV3" {
		t.Errorf("upsert did not replace fields: %+v", got)
	}

	if _, err := store.GetUserSecrets(ctx, user.ID, "azure"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound for unset provider, got %v", err)
	}

	if err := store.DeleteUserSecrets(ctx, user.ID, "aws"); err != nil {
		t.Fatalf("failed to delete secrets: %v", err)
	}
	if _, err := store.GetUserSecrets(ctx, user.ID, "aws"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound after delete, got %v", err)
	}
}

func TestBlueprintCRUD(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	user := createTestUser(t, store)

	bp := &Blueprint{
		ID:        uuid.New(),
		UserID:    user.ID,
		Name:      "red-team-lab",
		Provider:  "aws",
		Document:  []byte("name: red-team-lab\nprovider: aws\n"),
		CreatedAt: time.Now().UTC(),
	}
	if err := store.CreateBlueprint(ctx, bp); err != nil {
		t.Fatalf("failed to create blueprint: %v", err)
	}

	got, err := store.GetBlueprint(ctx, bp.ID)
	if err != nil {
		t.Fatalf("failed to get blueprint: %v", err)
	}
	if got.Name != bp.Name || string(got.Document) != string(bp.Document) {
		t.Errorf("retrieved blueprint differs: %+v", got)
	}

	list, err := store.ListBlueprintsByUser(ctx, user.ID)
	if err != nil {
		t.Fatalf("failed to list blueprints: %v", err)
	}
	if len(list) != 1 {
		t.Errorf("expected 1 blueprint, got %d", len(list))
	}

	if err := store.DeleteBlueprint(ctx, bp.ID); err != nil {
		t.Fatalf("failed to delete blueprint: %v", err)
	}
	if _, err := store.GetBlueprint(ctx, bp.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound after delete, got %v", err)
	}
}

func TestRangeRoundTrip(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	user := createTestUser(t, store)

	rng := &lifecycle.DeployedRange{
		ID:          uuid.New(),
		BlueprintID: uuid.New(),
		UserID:      user.ID,
		Provider:    "aws",
		Region:      "us-east-1",
		State:       lifecycle.StateDeployed,
		EngineState: []byte(`{"resources":[]}`),
		VPCs: []lifecycle.DeployedVPC{
			{
				Name:       "main",
				CIDR:       "10.0.0.0/16",
				ResourceID: "vpc-abc",
				Subnets: []lifecycle.DeployedSubnet{
					{
						Name:       "a",
						CIDR:       "10.0.1.0/24",
						ResourceID: "subnet-abc",
						Hosts:      []lifecycle.DeployedHost{{Hostname: "ws1", ResourceID: "i-abc"}},
					},
				},
			},
		},
		JumpHostIP:    "198.51.100.10",
		SSHPrivateKey: "KEY",
		CreatedAt:     time.Now().UTC(),
	}

	if err := store.CreateRange(ctx, rng); err != nil {
		t.Fatalf("failed to create range: %v", err)
	}

	got, err := store.GetRange(ctx, rng.ID)
	if err != nil {
		t.Fatalf("failed to get range: %v", err)
	}
	if got.State != lifecycle.StateDeployed {
		t.Errorf("state = %s, want deployed", got.State)
	}
	if string(got.EngineState) != string(rng.EngineState) {
		t.Error("engine state blob did not survive the round trip")
	}
	if len(got.VPCs) != 1 || got.VPCs[0].Subnets[0].Hosts[0].ResourceID != "i-abc" {
		t.Errorf("resource tree did not survive the round trip: %+v", got.VPCs)
	}
	if got.JumpHostIP != rng.JumpHostIP || got.SSHPrivateKey != rng.SSHPrivateKey {
		t.Error("access material did not survive the round trip")
	}

	if err := store.UpdateRangeState(ctx, rng.ID, lifecycle.StateDestroying); err != nil {
		t.Fatalf("failed to update range state: %v", err)
	}
	got, err = store.GetRange(ctx, rng.ID)
	if err != nil {
		t.Fatalf("failed to get range after update: %v", err)
	}
	if got.State != lifecycle.StateDestroying {
		t.Errorf("state = %s, want destroying", got.State)
	}

	list, err := store.ListRangesByUser(ctx, user.ID)
	if err != nil {
		t.Fatalf("failed to list ranges: %v", err)
	}
	if len(list) != 1 {
		t.Errorf("expected 1 range, got %d", len(list))
	}

	if err := store.DeleteRange(ctx, rng.ID); err != nil {
		t.Fatalf("failed to delete range: %v", err)
	}
	if _, err := store.GetRange(ctx, rng.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound after delete, got %v", err)
	}
}

func TestJobCRUD(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	now := time.Now().UTC()
	job := &Job{
		ID:        uuid.New(),
		Kind:      JobKindDeploy,
		Status:    JobStatusQueued,
		UserID:    uuid.New(),
		RangeID:   uuid.New(),
		Region:    "us-east-1",
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := store.CreateJob(ctx, job); err != nil {
		t.Fatalf("failed to create job: %v", err)
	}

	got, err := store.GetJob(ctx, job.ID)
	if err != nil {
		t.Fatalf("failed to get job: %v", err)
	}
	if got.Kind != JobKindDeploy || got.Status != JobStatusQueued || got.Region != "us-east-1" {
		t.Errorf("retrieved job differs: %+v", got)
	}
	if got.StartedAt != nil || got.CompletedAt != nil {
		t.Error("queued job should have no start or completion time")
	}

	if err := store.UpdateJobStatus(ctx, job.ID, JobStatusRunning, nil); err != nil {
		t.Fatalf("failed to mark job running: %v", err)
	}
	got, _ = store.GetJob(ctx, job.ID)
	if got.StartedAt == nil {
		t.Error("running job should have a start time")
	}

	errMsg := "engine apply failed"
	if err := store.UpdateJobStatus(ctx, job.ID, JobStatusFailed, &errMsg); err != nil {
		t.Fatalf("failed to mark job failed: %v", err)
	}
	got, _ = store.GetJob(ctx, job.ID)
	if got.Status != JobStatusFailed || got.Error == nil || *got.Error != errMsg {
		t.Errorf("failure status not recorded: %+v", got)
	}
	if got.CompletedAt == nil {
		t.Error("failed job should have a completion time")
	}

	list, err := store.ListJobsByUser(ctx, job.UserID)
	if err != nil {
		t.Fatalf("failed to list jobs: %v", err)
	}
	if len(list) != 1 {
		t.Errorf("expected 1 job, got %d", len(list))
	}

	if err := store.UpdateJobStatus(ctx, uuid.New(), JobStatusRunning, nil); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}
