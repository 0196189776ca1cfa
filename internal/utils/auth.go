package utils

import (
	"fmt"
	"net/mail"
	"strings"
	"unicode"

	"golang.org/x/crypto/bcrypt"
)

const minPasswordLength = 8

// NormalizeEmail trims and lower-cases an email address.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// NormalizeName trims a name and collapses inner whitespace.
func NormalizeName(name string) string {
	return strings.Join(strings.Fields(name), " ")
}

func ValidateRegistration(email, password, firstName, lastName string) error {
	if email == "" {
		return fmt.Errorf("an email is required to register")
	}
	if _, err := mail.ParseAddress(email); err != nil {
		return fmt.Errorf("invalid email address %q", email)
	}
	if len(password) < minPasswordLength {
		return fmt.Errorf("password must be at least %d characters", minPasswordLength)
	}
	if firstName == "" {
		return fmt.Errorf("a first name is required to register")
	}
	if lastName == "" {
		return fmt.Errorf("a last name is required to register")
	}
	return nil
}

func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(hash), nil
}

func CheckPassword(hash, password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

// Initials returns up to two upper-case initials, "?" standing in for a missing name.
func Initials(first, last string) string {
	pick := func(s string) string {
		for _, r := range strings.TrimSpace(s) {
			return string(unicode.ToUpper(r))
		}
		return "?"
	}
	return pick(first) + pick(last)
}
