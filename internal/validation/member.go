package validation

import (
	"fmt"
	"regexp"
)

// MemberPattern определяет допустимый формат имени члена семьи
// Только латинские буквы (a-z, A-Z), цифры (0-9), нижнее подчеркивание (_)
// Длина: 2-32 символа
var MemberPattern = regexp.MustCompile(`^[a-zA-Z0-9_]{2,32}$`)

const (
	// MinMemberLen минимальная длина имени
	MinMemberLen = 2
	// MaxMemberLen максимальная длина имени
	MaxMemberLen = 32
)

// ValidateMember проверяет, что имя члена семьи соответствует требованиям
func ValidateMember(member string) error {
	if member == "" {
		return fmt.Errorf("member cannot be empty")
	}

	if len(member) < MinMemberLen {
		return fmt.Errorf("member must be at least %d characters long", MinMemberLen)
	}

	if len(member) > MaxMemberLen {
		return fmt.Errorf("member must not exceed %d characters", MaxMemberLen)
	}

	if !MemberPattern.MatchString(member) {
		return fmt.Errorf("member can only contain letters (a-z, A-Z), numbers (0-9), and underscores (_)")
	}

	return nil
}

// ValidatePassphrase проверяет минимальные требования к парольной фразе
// локального хранилища. Минимум 12 символов
func ValidatePassphrase(passphrase string) error {
	const minPassphraseLen = 12

	if passphrase == "" {
		return fmt.Errorf("passphrase cannot be empty")
	}

	if len(passphrase) < minPassphraseLen {
		return fmt.Errorf("passphrase must be at least %d characters long", minPassphraseLen)
	}

	return nil
}
