package crypto

import (
	"crypto/rand"
	"fmt"

	"golang.org/x/crypto/argon2"
)

// SaltSize - размер соли в байтах
const SaltSize = 32

// KDFParams are the Argon2id cost parameters.
type KDFParams struct {
	Time    uint32 // итерации
	Memory  uint32 // KiB
	Threads uint8
}

// DefaultKDF is used for every store. Changing it invalidates existing key checks.
var DefaultKDF = KDFParams{Time: 1, Memory: 64 * 1024, Threads: 4}

// GenerateSalt генерирует криптографически случайную соль
func GenerateSalt() ([]byte, error) {
	salt := make([]byte, SaltSize)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("failed to generate salt: %w", err)
	}
	return salt, nil
}

// DeriveKey получает ключ локального хранилища из парольной фразы устройства.
// deviceID входит в вход KDF: одна фраза на двух устройствах дает разные ключи.
func DeriveKey(passphrase, deviceID string, salt []byte) ([]byte, error) {
	return DefaultKDF.Derive(passphrase, deviceID, salt)
}

// Derive runs Argon2id with p.
func (p KDFParams) Derive(passphrase, deviceID string, salt []byte) ([]byte, error) {
	switch {
	case passphrase == "":
		return nil, fmt.Errorf("passphrase cannot be empty")
	case deviceID == "":
		return nil, fmt.Errorf("device id cannot be empty")
	case len(salt) != SaltSize:
		return nil, fmt.Errorf("salt must be %d bytes, got %d", SaltSize, len(salt))
	}

	input := make([]byte, 0, len(passphrase)+len(deviceID)+1)
	input = append(input, passphrase...)
	input = append(input, 0)
	input = append(input, deviceID...)
	return argon2.IDKey(input, salt, p.Time, p.Memory, p.Threads, KeySize), nil
}
