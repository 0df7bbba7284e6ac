package testutil

import (
	"context"
	"encoding/json"

	"github.com/dimitrije/credstore-api/internal/models"
	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"
)

// MockCredentialService mocks the CredentialService
type MockCredentialService struct {
	mock.Mock
}

func (m *MockCredentialService) Create(ctx context.Context, orgID, userID uuid.UUID, typ models.CredentialType, data json.RawMessage, label *string) (*models.DecryptedCredential, error) {
	args := m.Called(ctx, orgID, userID, typ, data, label)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.DecryptedCredential), args.Error(1)
}

func (m *MockCredentialService) Update(ctx context.Context, credentialID uuid.UUID, typ models.CredentialType, data json.RawMessage, label *string, labelSet bool) (*models.DecryptedCredential, error) {
	args := m.Called(ctx, credentialID, typ, data, label, labelSet)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.DecryptedCredential), args.Error(1)
}

func (m *MockCredentialService) List(ctx context.Context, orgID, userID uuid.UUID) ([]models.DecryptedCredential, error) {
	args := m.Called(ctx, orgID, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.DecryptedCredential), args.Error(1)
}

func (m *MockCredentialService) Delete(ctx context.Context, credentialID uuid.UUID) error {
	args := m.Called(ctx, credentialID)
	return args.Error(0)
}

// MockUserService mocks the UserService
type MockUserService struct {
	mock.Mock
}

func (m *MockUserService) GetByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.User), args.Error(1)
}
