package crypto

import (
	"encoding/hex"
	"fmt"
)

// Service encrypts and decrypts stored secret and certificate material with
// a fixed installation key.
type Service struct {
	key []byte
}

// NewService creates a Service from a hex-encoded 32-byte key
func NewService(hexKey string) (*Service, error) {
	key, err := hex.DecodeString(hexKey)
	if err != nil {
		return nil, fmt.Errorf("decode encryption key: %w", err)
	}
	if len(key) != 32 {
		return nil, fmt.Errorf("encryption key must be 32 bytes, got %d", len(key))
	}
	return &Service{key: key}, nil
}

// EncryptString encrypts a string value
func (s *Service) EncryptString(value string) ([]byte, error) {
	return Encrypt(s.key, []byte(value))
}

// DecryptString decrypts an encrypted string value
func (s *Service) DecryptString(ciphertext []byte) (string, error) {
	plain, err := Decrypt(s.key, ciphertext)
	if err != nil {
		return "", err
	}
	return string(plain), nil
}

// EncryptBytes encrypts raw material
func (s *Service) EncryptBytes(value []byte) ([]byte, error) {
	return Encrypt(s.key, value)
}

// DecryptBytes decrypts raw material
func (s *Service) DecryptBytes(ciphertext []byte) ([]byte, error) {
	return Decrypt(s.key, ciphertext)
}
