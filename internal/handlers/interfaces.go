package handlers

import (
	"context"
	"encoding/json"

	"github.com/dimitrije/credstore-api/internal/models"
	"github.com/google/uuid"
)

// CredentialServiceInterface defines the methods used by handlers from CredentialService
type CredentialServiceInterface interface {
	Create(ctx context.Context, orgID, userID uuid.UUID, typ models.CredentialType, data json.RawMessage, label *string) (*models.DecryptedCredential, error)
	Update(ctx context.Context, credentialID uuid.UUID, typ models.CredentialType, data json.RawMessage, label *string, labelSet bool) (*models.DecryptedCredential, error)
	List(ctx context.Context, orgID, userID uuid.UUID) ([]models.DecryptedCredential, error)
	Delete(ctx context.Context, credentialID uuid.UUID) error
}

// UserServiceInterface defines the methods used by handlers from UserService
type UserServiceInterface interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.User, error)
}
