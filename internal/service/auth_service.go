package service

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"time"

	"odbcref/internal/core"
)

var ErrInvalidApiKey = errors.New("invalid api key")

type AuthService struct {
	apiKeyRepo core.ApiKeyRepository
}

func NewAuthService(apiKeyRepo core.ApiKeyRepository) *AuthService {
	return &AuthService{apiKeyRepo: apiKeyRepo}
}

// GenerateApiKey creates a key and returns its plaintext. Only the hash is
// stored, so the plaintext cannot be recovered later.
func (s *AuthService) GenerateApiKey(description string) (string, *core.ApiKey, error) {
	bytes := make([]byte, 32)
	if _, err := rand.Read(bytes); err != nil {
		return "", nil, err
	}
	key := hex.EncodeToString(bytes)

	apiKey := &core.ApiKey{
		KeyPrefix:   key[:8],
		KeyHash:     hashKey(key),
		Description: description,
		CreatedAt:   time.Now().UTC(),
		IsActive:    true,
	}

	if err := s.apiKeyRepo.Create(apiKey); err != nil {
		return "", nil, err
	}

	return key, apiKey, nil
}

func (s *AuthService) VerifyApiKey(plainKey string) (*core.ApiKey, error) {
	apiKey, err := s.apiKeyRepo.GetByHash(hashKey(plainKey))
	if errors.Is(err, core.ErrNotFound) {
		return nil, ErrInvalidApiKey
	}
	if err != nil {
		return nil, err
	}

	// Ignore error to not block auth
	_ = s.apiKeyRepo.UpdateLastUsed(apiKey.ID)

	return apiKey, nil
}

func hashKey(key string) string {
	sum := sha256.Sum256([]byte(key))
	return hex.EncodeToString(sum[:])
}
