package domain

import (
	"strings"
	"time"
	"unicode/utf8"
)

const maxChatMessageLength = 4000

type ChatMessage struct {
	UserID    string
	Message   string
	Timestamp time.Time
}

// NewChatMessage trims and validates the text and stamps the server time.
func NewChatMessage(userID, message string) (*ChatMessage, error) {
	if userID == "" {
		return nil, NewValidationError("userId", "is required")
	}
	trimmed := strings.TrimSpace(message)
	if trimmed == "" {
		return nil, NewValidationError("message", "cannot be empty")
	}
	if utf8.RuneCountInString(trimmed) > maxChatMessageLength {
		return nil, NewValidationError("message", "is too long")
	}
	return &ChatMessage{
		UserID:    userID,
		Message:   trimmed,
		Timestamp: time.Now().UTC(),
	}, nil
}
