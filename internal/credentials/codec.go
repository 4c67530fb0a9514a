// Package credentials validates and seals provider token material for storage.
package credentials

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/fr0stylo/synclink/internal/app/domain"
)

const sealedPrefix = "enc:v1:"

var (
	// ErrInvalid indicates the credentials record failed schema validation.
	ErrInvalid = errors.New("invalid credentials")
	// ErrNotConnectable indicates the token is expired and cannot be refreshed.
	ErrNotConnectable = errors.New("credentials expired without refresh token")
	// ErrKeyRequired indicates a sealed record was read without a configured key.
	ErrKeyRequired = errors.New("credentials key required to open sealed record")
)

// Codec converts credentials to and from their stored form.
type Codec struct {
	aead     cipher.AEAD
	validate *validator.Validate
}

// NewCodec builds a codec. An empty key stores JSON in the clear.
func NewCodec(key string) (*Codec, error) {
	c := &Codec{validate: validator.New(validator.WithRequiredStructEnabled())}
	key = strings.TrimSpace(key)
	if key == "" {
		return c, nil
	}
	sum := sha256.Sum256([]byte(key))
	block, err := aes.NewCipher(sum[:])
	if err != nil {
		return nil, fmt.Errorf("create cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("create gcm: %w", err)
	}
	c.aead = aead
	return c, nil
}

// Encrypted reports whether stored records are sealed.
func (c *Codec) Encrypted() bool {
	return c.aead != nil
}

// Validate checks the record against its schema tags.
func (c *Codec) Validate(creds domain.Credentials) error {
	if err := c.validate.Struct(creds); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	return nil
}

// ValidateConnectable checks that creds can back a connected status at now.
func (c *Codec) ValidateConnectable(creds domain.Credentials, now time.Time) error {
	if err := c.Validate(creds); err != nil {
		return err
	}
	if creds.ExpiresWithin(now, 0) && !creds.Refreshable() {
		return ErrNotConnectable
	}
	return nil
}

// Seal validates and encodes creds for storage.
func (c *Codec) Seal(creds domain.Credentials) (string, error) {
	if err := c.Validate(creds); err != nil {
		return "", err
	}
	raw, err := json.Marshal(creds)
	if err != nil {
		return "", fmt.Errorf("encode credentials: %w", err)
	}
	if c.aead == nil {
		return string(raw), nil
	}
	nonce := make([]byte, c.aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("generate nonce: %w", err)
	}
	sealed := c.aead.Seal(nonce, nonce, raw, nil)
	return sealedPrefix + hex.EncodeToString(sealed), nil
}

// Open decodes a stored record. Plain JSON records are accepted even when a key is set.
func (c *Codec) Open(stored string) (domain.Credentials, error) {
	raw := []byte(stored)
	if strings.HasPrefix(stored, sealedPrefix) {
		if c.aead == nil {
			return domain.Credentials{}, ErrKeyRequired
		}
		data, err := hex.DecodeString(strings.TrimPrefix(stored, sealedPrefix))
		if err != nil {
			return domain.Credentials{}, fmt.Errorf("decode sealed credentials: %w", err)
		}
		size := c.aead.NonceSize()
		if len(data) < size {
			return domain.Credentials{}, errors.New("sealed credentials too short")
		}
		raw, err = c.aead.Open(nil, data[:size], data[size:], nil)
		if err != nil {
			return domain.Credentials{}, fmt.Errorf("open sealed credentials: %w", err)
		}
	}

	var creds domain.Credentials
	if err := json.Unmarshal(raw, &creds); err != nil {
		return domain.Credentials{}, fmt.Errorf("decode credentials: %w", err)
	}
	return creds, nil
}
