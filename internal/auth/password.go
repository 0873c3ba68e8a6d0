package auth

import (
	pkgerrors "github.com/angelmondragon/miravo-storefront/pkg/errors"
)

const (
	minPasswordLength = 8
	minStrengthScore  = 60
)

// PasswordStrength scores a password 0-100, 20 points for each of: length
// of at least 8, an upper-case letter, a lower-case letter, a digit, a symbol.
func PasswordStrength(password string) int {
	var upper, lower, digit, special bool
	for _, r := range password {
		switch {
		case r >= 'A' && r <= 'Z':
			upper = true
		case r >= 'a' && r <= 'z':
			lower = true
		case r >= '0' && r <= '9':
			digit = true
		default:
			special = true
		}
	}
	score := 0
	for _, ok := range []bool{len(password) >= minPasswordLength, upper, lower, digit, special} {
		if ok {
			score += 20
		}
	}
	return score
}

// ValidateNewPassword applies the sign-up and reset password rules.
func ValidateNewPassword(password string) error {
	if len(password) < minPasswordLength {
		return pkgerrors.New(pkgerrors.CodeValidation, "Password must be at least 8 characters")
	}
	if PasswordStrength(password) < minStrengthScore {
		return pkgerrors.New(pkgerrors.CodeValidation, "Please choose a stronger password (include uppercase, number, and special character)")
	}
	return nil
}
