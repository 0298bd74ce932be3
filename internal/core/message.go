package core

import (
	"strings"
	"unicode/utf8"
)

// DefaultMaxMessageLength is the maximum body length in characters.
const DefaultMaxMessageLength = 2000

// validateBody rejects empty (or whitespace-only) bodies and bodies over maxLen characters.
func validateBody(body string, maxLen int) *CoreError {
	if strings.TrimSpace(body) == "" {
		return coreError(ErrCodeInvalidMessage, "message is empty")
	}
	if utf8.RuneCountInString(body) > maxLen {
		return coreError(ErrCodeInvalidMessage, "message is too long")
	}
	return nil
}
