package services

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"errors"
	"fmt"
	"io"

	"github.com/dimitrije/credstore-api/internal/kms"
	"github.com/google/uuid"
)

var ErrKeyResolution = errors.New("unable to resolve data encryption key")

// CipherService derives the encrypt/decrypt pair for a (org, user) scope:
// it resolves the scope's wrapped DEK, unwraps it through the master key
// provider and binds an AES-256-GCM cipher to it. The unwrapped DEK lives
// only for the duration of this derivation; nothing is cached across calls.
type CipherService struct {
	dataKeys *DataKeyService
	provider kms.MasterKeyProvider
}

func NewCipherService(dataKeys *DataKeyService, provider kms.MasterKeyProvider) *CipherService {
	return &CipherService{dataKeys: dataKeys, provider: provider}
}

func (s *CipherService) DeriveCipherPair(ctx context.Context, orgID, userID uuid.UUID) (*CipherPair, error) {
	key, err := s.dataKeys.GetOrProvision(ctx, orgID, userID)
	if err != nil {
		return nil, err
	}

	dek, err := s.provider.Unwrap(ctx, key.MasterKeyID, key.EncryptedDataKey)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrKeyResolution, err)
	}
	defer zeroBytes(dek)

	return NewCipherPair(dek)
}

// CipherPair is a bound encryptor/decryptor for one scope's DEK. Every
// Encrypt call uses a fresh random nonce, prepended to the ciphertext.
type CipherPair struct {
	aead cipher.AEAD
}

func NewCipherPair(key []byte) (*CipherPair, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to construct cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to construct AEAD: %w", err)
	}
	return &CipherPair{aead: aead}, nil
}

func (p *CipherPair) Encrypt(plaintext []byte) ([]byte, error) {
	nonce := make([]byte, p.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("failed to generate nonce: %w", err)
	}
	return p.aead.Seal(nonce, nonce, plaintext, nil), nil
}

func (p *CipherPair) Decrypt(ciphertext []byte) ([]byte, error) {
	if len(ciphertext) < p.aead.NonceSize() {
		return nil, errors.New("ciphertext too short")
	}
	nonce := ciphertext[:p.aead.NonceSize()]
	plaintext, err := p.aead.Open(nil, nonce, ciphertext[p.aead.NonceSize():], nil)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt: %w", err)
	}
	return plaintext, nil
}
