package handlers

import (
	"context"
	"errors"

	"github.com/dimitrije/credstore-api/internal/middleware"
	"github.com/dimitrije/credstore-api/internal/models"
	"github.com/dimitrije/credstore-api/internal/services"
	"github.com/dimitrije/credstore-api/pkg/dto"
	"github.com/google/uuid"
	"github.com/m1z23r/drift/pkg/drift"
)

type CredentialHandler struct {
	credentialService CredentialServiceInterface
}

func NewCredentialHandler(credentialService CredentialServiceInterface) *CredentialHandler {
	return &CredentialHandler{credentialService: credentialService}
}

func (h *CredentialHandler) Create(c *drift.Context) {
	userID := middleware.GetUserID(c)
	orgID := middleware.GetOrgID(c)
	if userID == uuid.Nil || orgID == uuid.Nil {
		c.Unauthorized("not authenticated")
		return
	}

	var req dto.CreateCredentialRequest
	if err := c.BindJSON(&req); err != nil {
		c.BadRequest("invalid request body")
		return
	}

	cred, err := h.credentialService.Create(context.Background(), orgID, userID, req.Type, req.Data, req.Label)
	if err != nil {
		if errors.Is(err, services.ErrInvalidPayload) {
			c.BadRequest(err.Error())
			return
		}
		c.InternalServerError("failed to create credential")
		return
	}

	_ = c.JSON(201, credentialResponse(cred))
}

func (h *CredentialHandler) Update(c *drift.Context) {
	userID := middleware.GetUserID(c)
	if userID == uuid.Nil {
		c.Unauthorized("not authenticated")
		return
	}

	credentialID, err := uuid.Parse(c.Param("credentialId"))
	if err != nil {
		c.BadRequest("invalid credential id")
		return
	}

	var req dto.UpdateCredentialRequest
	if err := c.BindJSON(&req); err != nil {
		c.BadRequest("invalid request body")
		return
	}

	cred, err := h.credentialService.Update(context.Background(), credentialID, req.Type, req.Data, req.Label, req.LabelSet)
	if err != nil {
		if errors.Is(err, services.ErrCredentialNotFound) {
			c.NotFound("credential not found")
			return
		}
		if errors.Is(err, services.ErrCredentialTypeMismatch) {
			_ = c.JSON(409, map[string]string{"error": "credential type mismatch"})
			return
		}
		if errors.Is(err, services.ErrInvalidPayload) {
			c.BadRequest(err.Error())
			return
		}
		c.InternalServerError("failed to update credential")
		return
	}

	_ = c.JSON(200, credentialResponse(cred))
}

func (h *CredentialHandler) List(c *drift.Context) {
	userID := middleware.GetUserID(c)
	orgID := middleware.GetOrgID(c)
	if userID == uuid.Nil || orgID == uuid.Nil {
		c.Unauthorized("not authenticated")
		return
	}

	creds, err := h.credentialService.List(context.Background(), orgID, userID)
	if err != nil {
		c.InternalServerError("failed to list credentials")
		return
	}

	response := make([]dto.CredentialResponse, len(creds))
	for i := range creds {
		response[i] = credentialResponse(&creds[i])
	}
	_ = c.JSON(200, response)
}

func (h *CredentialHandler) Delete(c *drift.Context) {
	userID := middleware.GetUserID(c)
	if userID == uuid.Nil {
		c.Unauthorized("not authenticated")
		return
	}

	credentialID, err := uuid.Parse(c.Param("credentialId"))
	if err != nil {
		c.BadRequest("invalid credential id")
		return
	}

	if err := h.credentialService.Delete(context.Background(), credentialID); err != nil {
		if errors.Is(err, services.ErrCredentialNotFound) {
			c.NotFound("credential not found")
			return
		}
		c.InternalServerError("failed to delete credential")
		return
	}

	_ = c.JSON(200, dto.DeleteCredentialResponse{Success: true})
}

func credentialResponse(cred *models.DecryptedCredential) dto.CredentialResponse {
	return dto.CredentialResponse{
		ID:        cred.ID,
		Type:      cred.Type,
		Label:     cred.Label,
		Data:      cred.Data,
		CreatedAt: cred.CreatedAt,
		UpdatedAt: cred.UpdatedAt,
	}
}
