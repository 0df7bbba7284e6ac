package kms

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"

	"github.com/dimitrije/credstore-api/internal/database"
	"github.com/google/uuid"
	wrapping "github.com/hashicorp/go-kms-wrapping/v2"
	"github.com/hashicorp/go-kms-wrapping/v2/aead"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"google.golang.org/protobuf/proto"
)

var ErrMasterKeyNotFound = errors.New("master key not found")

// LocalProvider keeps one reserved AES-256 master key per organization in
// the master_keys table, wrapped by a root key held only in memory. Wrapped
// blobs are proto-marshaled wrapping.BlobInfo messages.
type LocalProvider struct {
	db   *database.DB
	root *aead.Wrapper
}

func NewLocalProvider(db *database.DB, rootKey []byte) (*LocalProvider, error) {
	if len(rootKey) != 32 {
		return nil, fmt.Errorf("root key must be 32 bytes, got %d", len(rootKey))
	}

	root := aead.NewWrapper()
	if _, err := root.SetConfig(context.Background(), wrapping.WithKeyId("root")); err != nil {
		return nil, fmt.Errorf("failed to configure root wrapper: %w", err)
	}
	if err := root.SetAesGcmKeyBytes(rootKey); err != nil {
		return nil, fmt.Errorf("failed to set root key bytes: %w", err)
	}

	return &LocalProvider{db: db, root: root}, nil
}

func (p *LocalProvider) GenerateKey(ctx context.Context, orgID uuid.UUID) (uuid.UUID, error) {
	keyID, err := p.findReservedKey(ctx, orgID)
	if err == nil {
		return keyID, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return uuid.Nil, fmt.Errorf("failed to look up master key: %w", err)
	}

	keyBytes := make([]byte, 32)
	if _, err := rand.Read(keyBytes); err != nil {
		return uuid.Nil, fmt.Errorf("failed to generate master key material: %w", err)
	}

	blob, err := p.root.Encrypt(ctx, keyBytes)
	if err != nil {
		return uuid.Nil, fmt.Errorf("failed to wrap master key: %w", err)
	}
	wrapped, err := proto.Marshal(blob)
	if err != nil {
		return uuid.Nil, fmt.Errorf("failed to marshal wrapped master key: %w", err)
	}

	err = p.db.Pool.QueryRow(ctx, `
		INSERT INTO master_keys (org_id, encrypted_key)
		VALUES ($1, $2)
		RETURNING id
	`, orgID, wrapped).Scan(&keyID)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			// Another request created the org's key first; use theirs.
			return p.findReservedKey(ctx, orgID)
		}
		return uuid.Nil, fmt.Errorf("failed to store master key: %w", err)
	}
	return keyID, nil
}

func (p *LocalProvider) Wrap(ctx context.Context, keyID uuid.UUID, plaintext []byte) ([]byte, error) {
	wrapper, err := p.masterWrapper(ctx, keyID)
	if err != nil {
		return nil, err
	}

	blob, err := wrapper.Encrypt(ctx, plaintext)
	if err != nil {
		return nil, fmt.Errorf("failed to wrap with master key %s: %w", keyID, err)
	}
	return proto.Marshal(blob)
}

func (p *LocalProvider) Unwrap(ctx context.Context, keyID uuid.UUID, wrapped []byte) ([]byte, error) {
	wrapper, err := p.masterWrapper(ctx, keyID)
	if err != nil {
		return nil, err
	}

	blob := &wrapping.BlobInfo{}
	if err := proto.Unmarshal(wrapped, blob); err != nil {
		return nil, fmt.Errorf("failed to unmarshal wrapped blob: %w", err)
	}

	plaintext, err := wrapper.Decrypt(ctx, blob)
	if err != nil {
		return nil, fmt.Errorf("failed to unwrap with master key %s: %w", keyID, err)
	}
	return plaintext, nil
}

func (p *LocalProvider) findReservedKey(ctx context.Context, orgID uuid.UUID) (uuid.UUID, error) {
	var keyID uuid.UUID
	err := p.db.Pool.QueryRow(ctx, `
		SELECT id FROM master_keys
		WHERE org_id = $1 AND is_reserved = TRUE
	`, orgID).Scan(&keyID)
	return keyID, err
}

// masterWrapper loads and unwraps the org master key, then binds a fresh
// AEAD wrapper to it for the duration of one wrap/unwrap call.
func (p *LocalProvider) masterWrapper(ctx context.Context, keyID uuid.UUID) (*aead.Wrapper, error) {
	var encrypted []byte
	err := p.db.Pool.QueryRow(ctx, `
		SELECT encrypted_key FROM master_keys WHERE id = $1
	`, keyID).Scan(&encrypted)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrMasterKeyNotFound
		}
		return nil, fmt.Errorf("failed to load master key %s: %w", keyID, err)
	}

	blob := &wrapping.BlobInfo{}
	if err := proto.Unmarshal(encrypted, blob); err != nil {
		return nil, fmt.Errorf("failed to unmarshal master key %s: %w", keyID, err)
	}

	keyBytes, err := p.root.Decrypt(ctx, blob)
	if err != nil {
		return nil, fmt.Errorf("failed to unwrap master key %s: %w", keyID, err)
	}

	wrapper := aead.NewWrapper()
	if _, err := wrapper.SetConfig(ctx, wrapping.WithKeyId(keyID.String())); err != nil {
		return nil, fmt.Errorf("failed to configure master wrapper: %w", err)
	}
	if err := wrapper.SetAesGcmKeyBytes(keyBytes); err != nil {
		return nil, fmt.Errorf("failed to set master key bytes: %w", err)
	}
	return wrapper, nil
}
