package domain

import (
	"fmt"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/google/uuid"
)

const maxParticipantIDLength = 128

// NewParticipantID mints the identifier of one tab's membership:
// <displayName>_<unixMillis>_<random>. The random part is the first block of a
// UUIDv4, so two sessions of the same human never share an identifier.
func NewParticipantID(displayName string) string {
	name := strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) || unicode.IsControl(r) {
			return '-'
		}
		return r
	}, strings.TrimSpace(displayName))
	if name == "" {
		name = "guest"
	}
	if utf8.RuneCountInString(name) > 64 {
		name = string([]rune(name)[:64])
	}
	random := strings.SplitN(uuid.NewString(), "-", 2)[0]
	return fmt.Sprintf("%s_%d_%s", name, time.Now().UnixMilli(), random)
}

// ValidateParticipantID enforces the identifier contract accepted at the API
// boundary.
func ValidateParticipantID(id string) error {
	if id == "" {
		return NewValidationError("userId", "is required")
	}
	if utf8.RuneCountInString(id) > maxParticipantIDLength {
		return NewValidationError("userId", "is too long")
	}
	for _, r := range id {
		if unicode.IsSpace(r) || unicode.IsControl(r) {
			return NewValidationError("userId", "must not contain whitespace")
		}
	}
	return nil
}
