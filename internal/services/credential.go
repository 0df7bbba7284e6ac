package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"

	"github.com/dimitrije/credstore-api/internal/database"
	"github.com/dimitrije/credstore-api/internal/models"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

var (
	ErrCredentialNotFound     = errors.New("credential not found")
	ErrCredentialTypeMismatch = errors.New("credential type mismatch")
	ErrInvalidPayload         = errors.New("invalid credential payload")
)

// CredentialService orchestrates credential create/update/list/delete:
// validates the typed payload, derives the scope's cipher pair, and
// encrypts/decrypts label and data independently. Plaintext is never
// persisted and ciphertext is never returned to callers.
type CredentialService struct {
	db      *database.DB
	ciphers *CipherService
}

func NewCredentialService(db *database.DB, ciphers *CipherService) *CredentialService {
	return &CredentialService{db: db, ciphers: ciphers}
}

func (s *CredentialService) Create(ctx context.Context, orgID, userID uuid.UUID, typ models.CredentialType, data json.RawMessage, label *string) (*models.DecryptedCredential, error) {
	payload, err := models.ParsePayload(typ, data)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}

	pair, err := s.ciphers.DeriveCipherPair(ctx, orgID, userID)
	if err != nil {
		return nil, err
	}

	plain, err := models.EncodePayload(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to encode payload: %w", err)
	}

	encryptedData, err := pair.Encrypt(plain)
	if err != nil {
		return nil, fmt.Errorf("failed to encrypt credential data: %w", err)
	}

	var encryptedLabel []byte
	if label != nil && *label != "" {
		encryptedLabel, err = pair.Encrypt([]byte(*label))
		if err != nil {
			return nil, fmt.Errorf("failed to encrypt credential label: %w", err)
		}
	} else {
		label = nil
	}

	cred := models.DecryptedCredential{
		Type:  typ,
		Label: label,
		Data:  plain,
	}
	err = s.db.Pool.QueryRow(ctx, `
		INSERT INTO credentials (type, encrypted_label, encrypted_data, user_id, org_id)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, user_id, org_id, created_at, updated_at
	`, typ, encryptedLabel, encryptedData, userID, orgID).Scan(
		&cred.ID, &cred.UserID, &cred.OrgID, &cred.CreatedAt, &cred.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to store credential: %w", err)
	}
	return &cred, nil
}

// Update merges the caller's partial payload over the stored one and
// replaces the ciphertext atomically. The declared type must match the
// stored type. labelSet reports whether the request carried a label at all;
// a nil label with labelSet clears the stored label.
func (s *CredentialService) Update(ctx context.Context, credentialID uuid.UUID, typ models.CredentialType, data json.RawMessage, label *string, labelSet bool) (*models.DecryptedCredential, error) {
	existing, err := s.getByID(ctx, credentialID)
	if err != nil {
		return nil, err
	}
	if existing.Type != typ {
		return nil, ErrCredentialTypeMismatch
	}

	if _, err := models.ParsePayload(typ, data); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}

	// The cipher pair is bound to the record's scope, not the caller's.
	pair, err := s.ciphers.DeriveCipherPair(ctx, existing.OrgID, existing.UserID)
	if err != nil {
		return nil, err
	}

	priorPlain, err := pair.Decrypt(existing.EncryptedData)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt credential data: %w", err)
	}
	prior, err := models.ParsePayload(existing.Type, priorPlain)
	if err != nil {
		return nil, fmt.Errorf("failed to decode stored payload: %w", err)
	}

	merged, err := models.MergePayload(existing.Type, prior, data)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	mergedPlain, err := models.EncodePayload(merged)
	if err != nil {
		return nil, fmt.Errorf("failed to encode merged payload: %w", err)
	}

	encryptedData, err := pair.Encrypt(mergedPlain)
	if err != nil {
		return nil, fmt.Errorf("failed to encrypt credential data: %w", err)
	}

	cred := models.DecryptedCredential{
		ID:     existing.ID,
		Type:   existing.Type,
		Data:   mergedPlain,
		UserID: existing.UserID,
		OrgID:  existing.OrgID,
	}

	if labelSet {
		var encryptedLabel []byte
		if label != nil && *label != "" {
			encryptedLabel, err = pair.Encrypt([]byte(*label))
			if err != nil {
				return nil, fmt.Errorf("failed to encrypt credential label: %w", err)
			}
			cred.Label = label
		}
		err = s.db.Pool.QueryRow(ctx, `
			UPDATE credentials
			SET encrypted_data = $1, encrypted_label = $2, updated_at = NOW()
			WHERE id = $3
			RETURNING created_at, updated_at
		`, encryptedData, encryptedLabel, credentialID).Scan(&cred.CreatedAt, &cred.UpdatedAt)
	} else {
		if existing.EncryptedLabel != nil {
			labelPlain, decErr := pair.Decrypt(existing.EncryptedLabel)
			if decErr != nil {
				return nil, fmt.Errorf("failed to decrypt credential label: %w", decErr)
			}
			labelStr := string(labelPlain)
			cred.Label = &labelStr
		}
		err = s.db.Pool.QueryRow(ctx, `
			UPDATE credentials
			SET encrypted_data = $1, updated_at = NOW()
			WHERE id = $2
			RETURNING created_at, updated_at
		`, encryptedData, credentialID).Scan(&cred.CreatedAt, &cred.UpdatedAt)
	}
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrCredentialNotFound
		}
		return nil, fmt.Errorf("failed to update credential: %w", err)
	}
	return &cred, nil
}

// List returns the scope's credentials newest-first with data and label
// decrypted. One cipher pair is derived for the whole batch. A record that
// fails to decrypt is skipped, not fatal to the rest of the list.
func (s *CredentialService) List(ctx context.Context, orgID, userID uuid.UUID) ([]models.DecryptedCredential, error) {
	rows, err := s.db.Pool.Query(ctx, `
		SELECT id, type, encrypted_label, encrypted_data, user_id, org_id, created_at, updated_at
		FROM credentials
		WHERE org_id = $1 AND user_id = $2
		ORDER BY created_at DESC
	`, orgID, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list credentials: %w", err)
	}
	defer rows.Close()

	var records []models.Credential
	for rows.Next() {
		var rec models.Credential
		if err := rows.Scan(
			&rec.ID, &rec.Type, &rec.EncryptedLabel, &rec.EncryptedData,
			&rec.UserID, &rec.OrgID, &rec.CreatedAt, &rec.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan credential: %w", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read credentials: %w", err)
	}

	out := []models.DecryptedCredential{}
	if len(records) == 0 {
		return out, nil
	}

	pair, err := s.ciphers.DeriveCipherPair(ctx, orgID, userID)
	if err != nil {
		return nil, err
	}

	for _, rec := range records {
		plain, err := pair.Decrypt(rec.EncryptedData)
		if err != nil {
			log.Printf("skipping credential %s: undecryptable data: %v", rec.ID, err)
			continue
		}

		cred := models.DecryptedCredential{
			ID:        rec.ID,
			Type:      rec.Type,
			Data:      plain,
			UserID:    rec.UserID,
			OrgID:     rec.OrgID,
			CreatedAt: rec.CreatedAt,
			UpdatedAt: rec.UpdatedAt,
		}
		if rec.EncryptedLabel != nil {
			labelPlain, err := pair.Decrypt(rec.EncryptedLabel)
			if err != nil {
				log.Printf("skipping credential %s: undecryptable label: %v", rec.ID, err)
				continue
			}
			labelStr := string(labelPlain)
			cred.Label = &labelStr
		}
		out = append(out, cred)
	}
	return out, nil
}

func (s *CredentialService) Delete(ctx context.Context, credentialID uuid.UUID) error {
	result, err := s.db.Pool.Exec(ctx, `
		DELETE FROM credentials WHERE id = $1
	`, credentialID)
	if err != nil {
		return fmt.Errorf("failed to delete credential: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrCredentialNotFound
	}
	return nil
}

func (s *CredentialService) getByID(ctx context.Context, credentialID uuid.UUID) (*models.Credential, error) {
	var rec models.Credential
	err := s.db.Pool.QueryRow(ctx, `
		SELECT id, type, encrypted_label, encrypted_data, user_id, org_id, created_at, updated_at
		FROM credentials
		WHERE id = $1
	`, credentialID).Scan(
		&rec.ID, &rec.Type, &rec.EncryptedLabel, &rec.EncryptedData,
		&rec.UserID, &rec.OrgID, &rec.CreatedAt, &rec.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrCredentialNotFound
		}
		return nil, fmt.Errorf("failed to load credential: %w", err)
	}
	return &rec, nil
}
