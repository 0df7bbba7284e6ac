package models

import (
	"time"

	"github.com/google/uuid"
)

// DataKey is the wrapped data-encryption key for one (org, user) scope.
// EncryptedDataKey holds the master-key-wrapped DEK; the plaintext DEK is
// never persisted. Rows are immutable after creation.
type DataKey struct {
	ID               uuid.UUID `json:"id"`
	OrgID            uuid.UUID `json:"org_id"`
	UserID           uuid.UUID `json:"user_id"`
	MasterKeyID      uuid.UUID `json:"master_key_id"`
	EncryptedDataKey []byte    `json:"-"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}
