package domain

import "time"

// Provider is an upstream model provider a user can bring a key for.
type Provider string

const (
	ProviderOpenAI     Provider = "openai"
	ProviderMistral    Provider = "mistral"
	ProviderOpenRouter Provider = "openrouter"
)

// Valid reports whether p is supported.
func (p Provider) Valid() bool {
	switch p {
	case ProviderOpenAI, ProviderMistral, ProviderOpenRouter:
		return true
	}
	return false
}

// UserKey is a stored provider key. The secret never leaves the service
// layer in clear text.
type UserKey struct {
	UserID       string    `json:"-"`
	Provider     Provider  `json:"provider"`
	EncryptedKey string    `json:"-"`
	Nonce        string    `json:"-"`
	Masked       string    `json:"masked_key"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// SaveKeyRequest is the body of POST /api/user-keys.
type SaveKeyRequest struct {
	Provider Provider `json:"provider" binding:"required"`
	APIKey   string   `json:"apiKey" binding:"required"`
}
