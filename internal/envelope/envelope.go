// Package envelope decodes the backend's uniform response wrapper:
// {statusCode, message, data} on success, {statusCode, errorCode, message,
// data} on failure, where message is either a single string or a list of
// validation messages. The string-or-array union is resolved here, once,
// so nothing downstream ever inspects raw payloads.
package envelope

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/restomate/restokit/apperrors"
)

// Envelope is the wire shape of every REST response body.
type Envelope struct {
	StatusCode int             `json:"statusCode"`
	ErrorCode  string          `json:"errorCode,omitempty"`
	Message    json.RawMessage `json:"message,omitempty"`
	Data       json.RawMessage `json:"data,omitempty"`
}

// Decode reads an envelope from r. A body that is not valid JSON is a
// transport-level failure, not an API error.
func Decode(r io.Reader) (*Envelope, error) {
	var env Envelope
	if err := json.NewDecoder(r).Decode(&env); err != nil {
		return nil, &apperrors.TransportError{Err: fmt.Errorf("decoding response envelope: %w", err)}
	}

	return &env, nil
}

// Error converts a failure envelope into an APIError, tagging the message
// variant.
func (e *Envelope) Error(httpStatus int) *apperrors.APIError {
	apiErr := &apperrors.APIError{
		Status:    httpStatus,
		ErrorCode: e.ErrorCode,
	}
	if e.StatusCode != 0 {
		apiErr.Status = e.StatusCode
	}

	var list []string
	if err := json.Unmarshal(e.Message, &list); err == nil {
		apiErr.MessageKind = apperrors.MessageValidationList
		apiErr.Messages = list
		if len(list) > 0 {
			apiErr.Message = list[0]
		}
		return apiErr
	}

	var single string
	if err := json.Unmarshal(e.Message, &single); err == nil {
		apiErr.Message = single
	}
	apiErr.MessageKind = apperrors.MessageSingle

	return apiErr
}

// Bind unmarshals the data field into out. A missing data field leaves out
// untouched.
func (e *Envelope) Bind(out interface{}) error {
	if out == nil || len(e.Data) == 0 {
		return nil
	}
	if err := json.Unmarshal(e.Data, out); err != nil {
		return &apperrors.TransportError{Err: fmt.Errorf("decoding response data: %w", err)}
	}

	return nil
}
