package crypto

import (
	"crypto/cipher"
	"crypto/rand"
	"errors"
	"fmt"

	"golang.org/x/crypto/chacha20poly1305"
)

// KeySize - размер ключа XChaCha20-Poly1305
const KeySize = chacha20poly1305.KeySize

var (
	// ErrEmptyValue is returned when sealing an empty value.
	ErrEmptyValue = errors.New("value cannot be empty")
	// ErrShortValue is returned when a sealed value cannot hold a nonce and tag.
	ErrShortValue = errors.New("sealed value too short")
)

// Sealer шифрует значения локального хранилища одним ключом.
// Запечатанное значение: nonce (24 байта) || ciphertext || tag (16 байт).
// label передается как additional data, поэтому запись, перенесенная
// под другой ключ bucket, не откроется.
type Sealer struct {
	aead cipher.AEAD
}

// NewSealer создает Sealer. key должен быть KeySize байт
func NewSealer(key []byte) (*Sealer, error) {
	if len(key) != KeySize {
		return nil, fmt.Errorf("encryption key must be %d bytes, got %d", KeySize, len(key))
	}
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}
	return &Sealer{aead: aead}, nil
}

// Seal шифрует value, привязывая его к label
func (s *Sealer) Seal(label, value []byte) ([]byte, error) {
	if len(value) == 0 {
		return nil, ErrEmptyValue
	}

	ns := s.aead.NonceSize()
	out := make([]byte, ns, ns+len(value)+s.aead.Overhead())
	// 24 байта nonce достаточно, чтобы выбирать его случайно
	if _, err := rand.Read(out); err != nil {
		return nil, fmt.Errorf("failed to generate nonce: %w", err)
	}
	return s.aead.Seal(out, out[:ns], value, label), nil
}

// Open расшифровывает value, запечатанное с тем же label
func (s *Sealer) Open(label, value []byte) ([]byte, error) {
	ns := s.aead.NonceSize()
	if len(value) < ns+s.aead.Overhead() {
		return nil, ErrShortValue
	}
	plain, err := s.aead.Open(nil, value[:ns], value[ns:], label)
	if err != nil {
		return nil, fmt.Errorf("failed to open sealed value: authentication failed: %w", err)
	}
	return plain, nil
}
