// Package handler exposes the fulfillment core over JSON HTTP endpoints.
package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/kiwari-pos/fulfillment/internal/apperr"
	"github.com/sirupsen/logrus"
)

// Publisher pushes events to dashboard subscribers. Satisfied by *ws.Hub.
type Publisher interface {
	Publish(topic, eventType string, payload any)
}

func writeJSON(w http.ResponseWriter, log logrus.FieldLogger, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.WithError(err).Error("failed to encode JSON response")
	}
}

func decodeJSON(w http.ResponseWriter, r *http.Request, log logrus.FieldLogger, v interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeJSON(w, log, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return false
	}
	return true
}

// statusFor maps an error kind to its HTTP status.
func statusFor(err error) int {
	switch {
	case errors.Is(err, apperr.ErrPartial):
		return http.StatusMultiStatus
	case errors.Is(err, apperr.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, apperr.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, apperr.ErrConflict), errors.Is(err, apperr.ErrInsufficientStock):
		return http.StatusConflict
	case errors.Is(err, apperr.ErrTransientStore):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// writeError writes err as {"error": ...}. Unclassified errors are logged and
// hidden behind a generic message.
func writeError(w http.ResponseWriter, log logrus.FieldLogger, op string, err error) {
	status := statusFor(err)
	body := map[string]interface{}{"error": err.Error()}

	var stockErr *apperr.InsufficientStockError
	if errors.As(err, &stockErr) {
		body["menu_item_id"] = stockErr.MenuItemID
		body["available"] = stockErr.Available
		body["requested"] = stockErr.Requested
	}

	switch status {
	case http.StatusInternalServerError:
		log.WithError(err).Error(op)
		body["error"] = "internal server error"
	case http.StatusServiceUnavailable:
		log.WithError(err).Warn(op)
		body["error"] = "store temporarily unavailable"
	}
	writeJSON(w, log, status, body)
}
