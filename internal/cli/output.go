package cli

import (
	"encoding/json"
	"fmt"
	"io"
)

// ErrorBody is the error half of the JSON envelope.
type ErrorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Envelope is the top-level JSON error envelope. Successful commands emit
// their result object directly instead.
type Envelope struct {
	Error *ErrorBody `json:"error"`
}

// WriteJSON writes v as indented JSON followed by a newline.
func WriteJSON(w io.Writer, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal output: %w", err)
	}
	_, err = fmt.Fprintln(w, string(data))
	return err
}

// WriteError writes err as the JSON error envelope.
func WriteError(w io.Writer, err error) error {
	return WriteJSON(w, Envelope{
		Error: &ErrorBody{
			Code:    ErrorCode(err),
			Message: err.Error(),
		},
	})
}
