package email

import (
	"fmt"
	"net/mail"
	"regexp"
	"strings"
)

var addressPattern = regexp.MustCompile(`^[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}$`)

// invisible reports zero-width and bidi control runes that chat clients
// sometimes paste into addresses.
func invisible(r rune) bool {
	switch {
	case r >= 0x200B && r <= 0x200F,
		r >= 0x202A && r <= 0x202E,
		r >= 0x2060 && r <= 0x2064,
		r >= 0x2066 && r <= 0x2069,
		r == 0xFEFF:
		return true
	}
	return false
}

// Normalize strips invisible control runes, trims whitespace and lower-cases.
// Normalize(Normalize(s)) == Normalize(s).
func Normalize(s string) string {
	s = strings.Map(func(r rune) rune {
		if invisible(r) {
			return -1
		}
		return r
	}, s)
	return strings.ToLower(strings.TrimSpace(s))
}

// IsValid reports whether s is a syntactically acceptable lead address.
func IsValid(s string) bool {
	return addressPattern.MatchString(s)
}

// ValidateEmail checks for injection characters and RFC 5322 compliance
func ValidateEmail(email string) error {
	if strings.ContainsAny(email, "\r\n,;") {
		return fmt.Errorf("email contains invalid characters")
	}
	if _, err := mail.ParseAddress(email); err != nil {
		return fmt.Errorf("invalid email format: %w", err)
	}
	return nil
}
