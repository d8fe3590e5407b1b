package crypto

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

var keyCheckLabel = []byte("famsync key check")

// KeyCheck вычисляет контрольное значение ключа.
// Хранится рядом с солью, чтобы неверная фраза обнаруживалась сразу,
// а не при первой попытке расшифровать запись
func KeyCheck(key []byte) (string, error) {
	if len(key) == 0 {
		return "", fmt.Errorf("key cannot be empty")
	}

	mac := hmac.New(sha256.New, key)
	mac.Write(keyCheckLabel)
	return hex.EncodeToString(mac.Sum(nil)), nil
}

// VerifyKey проверяет ключ по сохраненному контрольному значению
func VerifyKey(key []byte, check string) error {
	if check == "" {
		return fmt.Errorf("key check cannot be empty")
	}

	computed, err := KeyCheck(key)
	if err != nil {
		return err
	}
	if !hmac.Equal([]byte(computed), []byte(check)) {
		return fmt.Errorf("invalid passphrase")
	}
	return nil
}
