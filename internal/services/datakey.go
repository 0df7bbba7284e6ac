package services

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"

	"github.com/dimitrije/credstore-api/internal/database"
	"github.com/dimitrije/credstore-api/internal/kms"
	"github.com/dimitrije/credstore-api/internal/models"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

var (
	ErrDataKeyNotFound = errors.New("data key not found")
	ErrDataKeyExists   = errors.New("data key already exists for this scope")
)

// DataKeyService provisions and resolves the wrapped data-encryption key for
// each (org, user) scope. Exactly one key exists per scope; the unique
// constraint on credential_data_keys is the source of truth under races.
type DataKeyService struct {
	db       *database.DB
	provider kms.MasterKeyProvider
}

func NewDataKeyService(db *database.DB, provider kms.MasterKeyProvider) *DataKeyService {
	return &DataKeyService{db: db, provider: provider}
}

func (s *DataKeyService) GetByScope(ctx context.Context, orgID, userID uuid.UUID) (*models.DataKey, error) {
	var key models.DataKey
	err := s.db.Pool.QueryRow(ctx, `
		SELECT id, org_id, user_id, master_key_id, encrypted_data_key, created_at, updated_at
		FROM credential_data_keys
		WHERE org_id = $1 AND user_id = $2
	`, orgID, userID).Scan(
		&key.ID, &key.OrgID, &key.UserID, &key.MasterKeyID,
		&key.EncryptedDataKey, &key.CreatedAt, &key.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrDataKeyNotFound
		}
		return nil, fmt.Errorf("failed to load data key: %w", err)
	}
	return &key, nil
}

// Provision generates a fresh 256-bit DEK, wraps it under the org's master
// key and persists the wrapped form. The plaintext DEK never leaves this
// function. If a key already exists for the scope the insert fails with
// ErrDataKeyExists and the caller is expected to re-read.
func (s *DataKeyService) Provision(ctx context.Context, orgID, userID uuid.UUID) (*models.DataKey, error) {
	dek := make([]byte, 32)
	if _, err := rand.Read(dek); err != nil {
		return nil, fmt.Errorf("failed to generate data key material: %w", err)
	}
	defer zeroBytes(dek)

	masterKeyID, err := s.provider.GenerateKey(ctx, orgID)
	if err != nil {
		return nil, fmt.Errorf("failed to obtain master key: %w", err)
	}

	wrapped, err := s.provider.Wrap(ctx, masterKeyID, dek)
	if err != nil {
		return nil, fmt.Errorf("failed to wrap data key: %w", err)
	}

	var key models.DataKey
	err = s.db.Pool.QueryRow(ctx, `
		INSERT INTO credential_data_keys (org_id, user_id, master_key_id, encrypted_data_key)
		VALUES ($1, $2, $3, $4)
		RETURNING id, org_id, user_id, master_key_id, encrypted_data_key, created_at, updated_at
	`, orgID, userID, masterKeyID, wrapped).Scan(
		&key.ID, &key.OrgID, &key.UserID, &key.MasterKeyID,
		&key.EncryptedDataKey, &key.CreatedAt, &key.UpdatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return nil, ErrDataKeyExists
		}
		return nil, fmt.Errorf("failed to store data key: %w", err)
	}
	return &key, nil
}

// GetOrProvision returns the scope's data key, provisioning it on first use.
// A provisioning race is resolved by re-reading the winner's row.
func (s *DataKeyService) GetOrProvision(ctx context.Context, orgID, userID uuid.UUID) (*models.DataKey, error) {
	key, err := s.GetByScope(ctx, orgID, userID)
	if err == nil {
		return key, nil
	}
	if !errors.Is(err, ErrDataKeyNotFound) {
		return nil, err
	}

	key, err = s.Provision(ctx, orgID, userID)
	if errors.Is(err, ErrDataKeyExists) {
		return s.GetByScope(ctx, orgID, userID)
	}
	return key, err
}

func zeroBytes(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
