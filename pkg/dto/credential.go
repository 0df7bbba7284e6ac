package dto

import (
	"encoding/json"
	"time"

	"github.com/dimitrije/credstore-api/internal/models"
	"github.com/google/uuid"
)

type CreateCredentialRequest struct {
	Type  models.CredentialType `json:"type"`
	Data  json.RawMessage       `json:"data"`
	Label *string               `json:"label,omitempty"`
}

type UpdateCredentialRequest struct {
	Type  models.CredentialType `json:"type"`
	Data  json.RawMessage       `json:"data"`
	Label *string               `json:"label"`
	// LabelSet reports whether the request body carried a label key at all,
	// so an explicit null (clear the label) is distinguishable from absence
	// (keep the stored label).
	LabelSet bool `json:"-"`
}

func (r *UpdateCredentialRequest) UnmarshalJSON(b []byte) error {
	type alias UpdateCredentialRequest
	var a alias
	if err := json.Unmarshal(b, &a); err != nil {
		return err
	}
	*r = UpdateCredentialRequest(a)

	var keys map[string]json.RawMessage
	if err := json.Unmarshal(b, &keys); err != nil {
		return err
	}
	_, r.LabelSet = keys["label"]
	return nil
}

type CredentialResponse struct {
	ID        uuid.UUID             `json:"id"`
	Type      models.CredentialType `json:"type"`
	Label     *string               `json:"label"`
	Data      json.RawMessage       `json:"data"`
	CreatedAt time.Time             `json:"created_at"`
	UpdatedAt time.Time             `json:"updated_at"`
}

type DeleteCredentialResponse struct {
	Success bool `json:"success"`
}
