package email

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"plain", "john@example.com", "john@example.com"},
		{"mixed case", "John.Doe@Example.com", "john.doe@example.com"},
		{"zero width injected", "\u200cJohn.Doe@\u200bExample.com\u200f", "john.doe@example.com"},
		{"bidi and bom", "\ufeff\u202ajohn@example.com\u202c", "john@example.com"},
		{"word joiner", "jo\u2060hn@example.com", "john@example.com"},
		{"surrounding space", "  john@example.com \n", "john@example.com"},
		{"empty", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Normalize(tt.in))
		})
	}
}

func TestNormalize_Idempotent(t *testing.T) {
	inputs := []string{
		"John.Doe@Example.com",
		"a_b%c+d-e@sub.domain.io",
		"\u200dUPPER@CASE.ORG ",
		"x@y.co",
	}
	for _, in := range inputs {
		once := Normalize(in)
		assert.Equal(t, once, Normalize(once), "input %q", in)
	}
}

func TestNormalize_ZeroWidthExamplePassesValidation(t *testing.T) {
	got := Normalize("John.\u200cDoe@Exa\u200bmple.com")
	assert.Equal(t, "john.doe@example.com", got)
	assert.True(t, IsValid(got))
}

func TestIsValid(t *testing.T) {
	tests := []struct {
		in   string
		want bool
	}{
		{"john@example.com", true},
		{"a.b_c%d+e-f@mail.example.co.uk", true},
		{"not-an-email", false},
		{"missing@tld", false},
		{"@example.com", false},
		{"john@example.c", false},
		{"john doe@example.com", false},
		{"", false},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, IsValid(tt.in))
		})
	}
}

func TestValidateEmail(t *testing.T) {
	assert.NoError(t, ValidateEmail("john@example.com"))
	assert.Error(t, ValidateEmail("john@example.com\r\nBcc: x@y.z"))
	assert.Error(t, ValidateEmail("a@b.com, c@d.com"))
	assert.Error(t, ValidateEmail("not an address"))
}
