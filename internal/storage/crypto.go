package storage

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"

	"golang.org/x/crypto/argon2"
)

// keySalt is fixed so the same passphrase always yields the same key.
var keySalt = []byte("video-lister/metadata/v1")

var errSealedTooShort = errors.New("sealed data too short")

// DeriveKey creates a 32-byte AES-256 key from a passphrase with Argon2id.
// An empty passphrase yields nil, which disables encryption.
func DeriveKey(passphrase string) []byte {
	if passphrase == "" {
		return nil
	}
	return argon2.IDKey([]byte(passphrase), keySalt, 1, 64*1024, 4, 32)
}

// sealer encrypts listing metadata with AES-GCM. The listing id is bound as
// additional data, so a sealed blob only opens on the row it was written to.
// A nil sealer leaves data in the clear.
type sealer struct {
	aead cipher.AEAD
}

func newSealer(key []byte) (*sealer, error) {
	if key == nil {
		return nil, nil
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("invalid metadata key: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}
	return &sealer{aead: aead}, nil
}

// seal returns base64(nonce || ciphertext || tag).
func (s *sealer) seal(plaintext []byte, listingID string) string {
	nonce := make([]byte, s.aead.NonceSize(), s.aead.NonceSize()+len(plaintext)+s.aead.Overhead())
	rand.Read(nonce)
	return base64.StdEncoding.EncodeToString(s.aead.Seal(nonce, nonce, plaintext, []byte(listingID)))
}

func (s *sealer) open(encoded, listingID string) ([]byte, error) {
	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("failed to decode sealed data: %w", err)
	}
	n := s.aead.NonceSize()
	if len(raw) < n+s.aead.Overhead() {
		return nil, errSealedTooShort
	}
	plaintext, err := s.aead.Open(nil, raw[:n], raw[n:], []byte(listingID))
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt: %w", err)
	}
	return plaintext, nil
}
