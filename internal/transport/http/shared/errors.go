package shared

import (
	"errors"
	"log/slog"
	"net/http"

	"labourpanel/internal/domain/engineer"
	"labourpanel/internal/domain/labour"
	"labourpanel/internal/domain/workspace"
	"labourpanel/internal/platform/apiclient"
	"labourpanel/internal/platform/imaging"
	"labourpanel/internal/transport/http/api"
)

// FailError answers err with the envelope matching its kind. Backend
// failures keep the backend's message so the user sees it verbatim.
func FailError(w http.ResponseWriter, r *http.Request, err error) {
	reqID := requestID(r)

	var transport *apiclient.TransportError
	switch {
	case errors.Is(err, apiclient.ErrCredentialMissing):
		api.Fail(w, http.StatusUnauthorized, "credential_missing", "Sign in to continue", reqID)
	case errors.Is(err, apiclient.ErrCredentialExpired):
		api.Fail(w, http.StatusUnauthorized, "credential_expired", "Your session has expired, please sign in again", reqID)
	case errors.As(err, &transport):
		slog.WarnContext(r.Context(), "backend call failed", "op", transport.Op, "status", transport.Status, "err", err)
		api.FailWithDetails(w, http.StatusBadGateway, "backend_error", transport.UserMessage(), map[string]any{"status": transport.Status}, reqID)
	case errors.Is(err, imaging.ErrTooLarge):
		api.Fail(w, http.StatusRequestEntityTooLarge, "image_too_large", "Image size should be less than 5MB", reqID)
	case errors.Is(err, imaging.ErrNotImage):
		api.Fail(w, http.StatusUnsupportedMediaType, "image_unsupported", "Please select an image file", reqID)
	case errors.Is(err, engineer.ErrFormLocked), errors.Is(err, engineer.ErrSubmitInProgress):
		api.Fail(w, http.StatusConflict, "submit_in_progress", "A submission is already in progress", reqID)
	case errors.Is(err, engineer.ErrDisposed), errors.Is(err, labour.ErrDisposed):
		api.Fail(w, http.StatusGone, "workspace_closed", "This view was closed, reload the page", reqID)
	case errors.Is(err, engineer.ErrUnknownField):
		api.Fail(w, http.StatusBadRequest, "unknown_field", "unknown form field", reqID)
	case errors.Is(err, workspace.ErrNoModal):
		api.Fail(w, http.StatusConflict, "modal_not_open", "open the matching dialog first", reqID)
	case errors.Is(err, workspace.ErrUnknownModal):
		api.Fail(w, http.StatusNotFound, "unknown_modal", "unknown dialog", reqID)
	case errors.Is(err, workspace.ErrMissingTarget), errors.Is(err, labour.ErrMissingID):
		api.Fail(w, http.StatusBadRequest, "missing_id", "an id is required", reqID)
	default:
		slog.ErrorContext(r.Context(), "request failed", "err", err)
		api.Fail(w, http.StatusInternalServerError, "internal_error", "internal server error", reqID)
	}
}
