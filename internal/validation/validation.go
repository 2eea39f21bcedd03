// Package validation implements the request-validation rules shared by
// every text-carrying HTTP endpoint, grounded on original_source's
// server/src/validation.rs.
package validation

import (
	"fmt"
	"regexp"

	"github.com/google/uuid"
)

const (
	minTextLength = 1
	maxTextLength = 5000
)

var languageCodeRe = regexp.MustCompile(`^[a-z]{2}(_[A-Z]{2})?$`)

// InvalidInputError is the one error type this package returns; callers at
// the HTTP boundary map it to 400.
type InvalidInputError struct {
	Message string
}

func (e *InvalidInputError) Error() string { return e.Message }

// Text validates a text-carrying field's length in [1, 5000].
func Text(text string) error {
	length := len([]rune(text))
	if length < minTextLength {
		return &InvalidInputError{Message: "text cannot be empty"}
	}
	if length > maxTextLength {
		return &InvalidInputError{Message: fmt.Sprintf("text too long (max %d characters)", maxTextLength)}
	}
	return nil
}

// Language validates an optional language code against ll or ll_CC. An
// empty code is valid (callers fall back to a configured default).
func Language(code string) error {
	if code == "" {
		return nil
	}
	if !languageCodeRe.MatchString(code) {
		return &InvalidInputError{Message: fmt.Sprintf("invalid language code format: %s (expected ll or ll_CC)", code)}
	}
	return nil
}

// ConversationID validates an optional conversation id as a UUID.
func ConversationID(id string) error {
	if id == "" {
		return nil
	}
	if _, err := uuid.Parse(id); err != nil {
		return &InvalidInputError{Message: fmt.Sprintf("invalid conversation id: %s", id)}
	}
	return nil
}
