// Package apperrors is the single error taxonomy for the SDK. Every failure
// leaving the request pipeline or the refresh coordinator is one of the
// shapes below, so callers never branch on transport specifics.
package apperrors

import (
	"errors"
	"fmt"
)

// ErrAuthExpired is returned when a token refresh failed or no refresh token
// was available. It always forces a logout: by the time a caller sees it the
// credential store has already been cleared.
var ErrAuthExpired = errors.New("authentication expired")

// MessageKind tags how the backend delivered its error message.
type MessageKind int

const (
	// MessageSingle means the envelope carried one message string.
	MessageSingle MessageKind = iota
	// MessageValidationList means the envelope carried a list of
	// validation messages. Status codes in the 400 range with a list are
	// presented as warnings rather than hard errors.
	MessageValidationList
)

// TransportError means the request never reached the backend: DNS, dial,
// timeout. It carries no HTTP status and must never be mistaken for an
// authorization failure.
type TransportError struct {
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport failure: %v", e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// StatusCode reports the sentinel 0: no response was received.
func (e *TransportError) StatusCode() int { return 0 }

// APIError is a structured failure response from the backend.
type APIError struct {
	Status      int
	ErrorCode   string
	MessageKind MessageKind
	Message     string
	Messages    []string
}

func (e *APIError) Error() string {
	if e.ErrorCode != "" {
		return fmt.Sprintf("api error %d (%s): %s", e.Status, e.ErrorCode, e.Message)
	}
	return fmt.Sprintf("api error %d: %s", e.Status, e.Message)
}

// StatusCode reports the HTTP status the backend answered with.
func (e *APIError) StatusCode() int { return e.Status }

// IsValidation reports whether this is a 4xx failure carrying a validation
// message list, which the UI surfaces as a warning toast.
func (e *APIError) IsValidation() bool {
	return e.MessageKind == MessageValidationList && e.Status >= 400 && e.Status < 500
}

// userMessages maps backend domain error codes to user-facing text.
var userMessages = map[string]string{
	"INVALID_CREDENTIALS":  "Email or password is incorrect.",
	"RESTAURANT_NOT_FOUND": "The selected restaurant no longer exists.",
	"ORDER_NOT_FOUND":      "The order could not be found.",
	"COUPON_CODE_TAKEN":    "A coupon with this code already exists.",
	"PRODUCT_OUT_OF_STOCK": "This product is out of stock.",
	"FORBIDDEN":            "You do not have permission to do that.",
}

const genericMessage = "Something went wrong. Please try again."

// UserMessage resolves any SDK error to exactly one user-facing string,
// falling back to a generic message when no mapping exists.
func UserMessage(err error) string {
	if errors.Is(err, ErrAuthExpired) {
		return "Your session has expired. Please sign in again."
	}

	var apiErr *APIError
	if errors.As(err, &apiErr) {
		if apiErr.MessageKind == MessageValidationList && len(apiErr.Messages) > 0 {
			return apiErr.Messages[0]
		}
		if msg, ok := userMessages[apiErr.ErrorCode]; ok {
			return msg
		}
		if apiErr.Message != "" {
			return apiErr.Message
		}
		return genericMessage
	}

	var transportErr *TransportError
	if errors.As(err, &transportErr) {
		return "Could not reach the server. Check your connection."
	}

	return genericMessage
}
