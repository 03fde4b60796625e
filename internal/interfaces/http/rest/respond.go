package rest

import (
	"encoding/json"
	"net/http"

	"go.uber.org/zap"

	apperrors "homeguard-backend/pkg/errors"
)

type errorResponse struct {
	Error   bool   `json:"error"`
	Code    int    `json:"code"`
	Type    string `json:"type"`
	Message string `json:"message"`
}

func respondJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// respondError maps err to a status code. Internal details are logged, not
// returned.
func respondError(w http.ResponseWriter, r *http.Request, logger *zap.Logger, err error) {
	status := apperrors.HTTPStatus(err)
	if status >= http.StatusInternalServerError {
		logger.Error("Request error",
			zap.String("path", r.URL.Path),
			zap.Error(err),
		)
	}
	respondJSON(w, status, errorResponse{
		Error:   true,
		Code:    status,
		Type:    string(apperrors.TypeOf(err)),
		Message: apperrors.PublicMessage(err),
	})
}
