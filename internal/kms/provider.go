// Package kms abstracts the master key service that wraps and unwraps
// per-scope data-encryption keys. Implementations never expose root key
// material and fail closed: an error means no bytes, never partial bytes.
package kms

import (
	"context"

	"github.com/google/uuid"
)

type MasterKeyProvider interface {
	// GenerateKey materializes, or reuses, the reserved master key for the
	// given organization and returns its id.
	GenerateKey(ctx context.Context, orgID uuid.UUID) (uuid.UUID, error)

	// Wrap encrypts key material under the master key identified by keyID.
	Wrap(ctx context.Context, keyID uuid.UUID, plaintext []byte) ([]byte, error)

	// Unwrap decrypts previously wrapped key material. Tampered or
	// mismatched ciphertext returns an error, never corrupted bytes.
	Unwrap(ctx context.Context, keyID uuid.UUID, wrapped []byte) ([]byte, error)
}
