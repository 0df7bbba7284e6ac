package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

type CredentialType string

const (
	CredentialTypeWebLogin   CredentialType = "web-login"
	CredentialTypeCreditCard CredentialType = "credit-card"
	CredentialTypeSecureNote CredentialType = "secure-note"
)

func (t CredentialType) Valid() bool {
	switch t {
	case CredentialTypeWebLogin, CredentialTypeCreditCard, CredentialTypeSecureNote:
		return true
	}
	return false
}

type CardProvider string

const (
	CardProviderAmex       CardProvider = "amex"
	CardProviderDinersClub CardProvider = "dinersclub"
	CardProviderDiscover   CardProvider = "discover"
	CardProviderJCB        CardProvider = "jcb"
	CardProviderMastercard CardProvider = "mastercard"
	CardProviderUnionPay   CardProvider = "unionpay"
	CardProviderVisa       CardProvider = "visa"
)

func (p CardProvider) Valid() bool {
	switch p {
	case CardProviderAmex, CardProviderDinersClub, CardProviderDiscover,
		CardProviderJCB, CardProviderMastercard, CardProviderUnionPay, CardProviderVisa:
		return true
	}
	return false
}

// Credential is the persisted record: ciphertext plus discriminant metadata.
// Type is immutable after creation.
type Credential struct {
	ID             uuid.UUID      `json:"id"`
	Type           CredentialType `json:"type"`
	EncryptedLabel []byte         `json:"-"`
	EncryptedData  []byte         `json:"-"`
	UserID         uuid.UUID      `json:"user_id"`
	OrgID          uuid.UUID      `json:"org_id"`
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
}

// DecryptedCredential is what the service hands back to callers: the record
// with plaintext label and canonically encoded plaintext data. Ciphertext
// never leaves the service.
type DecryptedCredential struct {
	ID        uuid.UUID       `json:"id"`
	Type      CredentialType  `json:"type"`
	Label     *string         `json:"label"`
	Data      json.RawMessage `json:"data"`
	UserID    uuid.UUID       `json:"user_id"`
	OrgID     uuid.UUID       `json:"org_id"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// Payload is the decrypted body of a credential: exactly one of
// WebLoginData, CreditCardData or SecureNoteData, selected by the
// credential type. All fields are optional; nil fields are dropped on
// encode so the ciphertext never carries explicit nulls.
type Payload interface {
	credentialPayload()
}

type WebLoginData struct {
	Username *string `json:"username,omitempty"`
	Password *string `json:"password,omitempty"`
}

func (*WebLoginData) credentialPayload() {}

type CreditCardData struct {
	HolderName         *string       `json:"holderName,omitempty"`
	Provider           *CardProvider `json:"provider,omitempty"`
	CardNumber         *string       `json:"cardNumber,omitempty"`
	VerificationNumber *string       `json:"verificationNumber,omitempty"`
	ExpireAt           *string       `json:"expireAt,omitempty"`
	PostalCode         *string       `json:"postalCode,omitempty"`
}

func (*CreditCardData) credentialPayload() {}

type SecureNoteData struct {
	Content *string `json:"content,omitempty"`
}

func (*SecureNoteData) credentialPayload() {}

// ParsePayload decodes raw into the payload shape declared by t. Unknown
// fields and shapes that do not match the declared type are rejected.
func ParsePayload(t CredentialType, raw json.RawMessage) (Payload, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, fmt.Errorf("data is required for type %q", t)
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()

	switch t {
	case CredentialTypeWebLogin:
		var d WebLoginData
		if err := dec.Decode(&d); err != nil {
			return nil, fmt.Errorf("invalid %s data: %w", t, err)
		}
		return &d, nil
	case CredentialTypeCreditCard:
		var d CreditCardData
		if err := dec.Decode(&d); err != nil {
			return nil, fmt.Errorf("invalid %s data: %w", t, err)
		}
		if d.Provider != nil && !d.Provider.Valid() {
			return nil, fmt.Errorf("invalid card provider %q", *d.Provider)
		}
		return &d, nil
	case CredentialTypeSecureNote:
		var d SecureNoteData
		if err := dec.Decode(&d); err != nil {
			return nil, fmt.Errorf("invalid %s data: %w", t, err)
		}
		return &d, nil
	default:
		return nil, fmt.Errorf("unknown credential type %q", t)
	}
}

// EncodePayload produces the canonical plaintext bytes for p. Nil fields are
// omitted, so two logically identical payloads encode to the same bytes.
func EncodePayload(p Payload) ([]byte, error) {
	return json.Marshal(p)
}

// MergePayload applies the caller's partial update over the prior payload,
// field by field. Fields present in updateRaw win; an explicit null clears
// the prior value; fields absent from updateRaw retain their prior values.
// The merged result is re-validated against t.
func MergePayload(t CredentialType, prior Payload, updateRaw json.RawMessage) (Payload, error) {
	priorBytes, err := json.Marshal(prior)
	if err != nil {
		return nil, fmt.Errorf("failed to encode prior payload: %w", err)
	}

	merged := map[string]json.RawMessage{}
	if err := json.Unmarshal(priorBytes, &merged); err != nil {
		return nil, fmt.Errorf("failed to decode prior payload: %w", err)
	}

	var update map[string]json.RawMessage
	if err := json.Unmarshal(updateRaw, &update); err != nil {
		return nil, fmt.Errorf("invalid update payload: %w", err)
	}

	for k, v := range update {
		if string(v) == "null" {
			delete(merged, k)
			continue
		}
		merged[k] = v
	}

	mergedBytes, err := json.Marshal(merged)
	if err != nil {
		return nil, fmt.Errorf("failed to encode merged payload: %w", err)
	}

	return ParsePayload(t, mergedBytes)
}
