package shared

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"labourpanel/internal/domain/validation"
	"labourpanel/internal/transport/http/api"
)

var ErrEmptyBody = errors.New("request body is empty")

// FailValidation answers 422 with details.fields = {field: message}.
func FailValidation(w http.ResponseWriter, requestID string, fields validation.FieldErrors) {
	api.FailWithDetails(
		w,
		http.StatusUnprocessableEntity,
		"validation_error",
		"payload validation failed",
		map[string]any{"fields": fields},
		requestID,
	)
}

// DecodeJSON reads one JSON object from the body into dst.
func DecodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return ErrEmptyBody
		}
		return fmt.Errorf("decode body: %w", err)
	}
	return nil
}

// FailDecode answers a body that could not be read, telling an oversized
// upload apart from a malformed one.
func FailDecode(w http.ResponseWriter, requestID string, err error) {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		api.Fail(w, http.StatusRequestEntityTooLarge, "body_too_large", "request body is too large", requestID)
		return
	}
	api.Fail(w, http.StatusBadRequest, "invalid_json", "invalid request payload", requestID)
}
