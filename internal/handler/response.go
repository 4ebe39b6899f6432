package handler

import (
	"errors"
	"net/http"

	metaerrors "github.com/chronodb/metasrv/internal/errors"
	json "github.com/goccy/go-json"
	"go.uber.org/zap"
)

// ErrorResponse represents the standard error response format
type ErrorResponse struct {
	Status    string                 `json:"status"`
	ErrorCode string                 `json:"error_code"`
	Message   string                 `json:"message"`
	Details   map[string]interface{} `json:"details,omitempty"`
	RequestID string                 `json:"request_id,omitempty"`
}

func (h *Handlers) writeJSONResponse(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to encode response", zap.Error(err))
	}
}

func (h *Handlers) writeError(w http.ResponseWriter, r *http.Request, err error) {
	resp := ErrorResponse{
		Status:    "error",
		ErrorCode: metaerrors.GetCode(err).String(),
		Message:   err.Error(),
		RequestID: r.Header.Get("X-Request-ID"),
	}

	var me *metaerrors.MetaError
	if errors.As(err, &me) {
		resp.Message = me.Message
		if len(me.Details) > 0 {
			resp.Details = me.Details
		}
	}

	status := metaerrors.HTTPStatus(err)
	if status >= http.StatusInternalServerError {
		h.logger.Error("request failed",
			zap.String("path", r.URL.Path),
			zap.String("request_id", resp.RequestID),
			zap.Error(err))
	}

	h.writeJSONResponse(w, status, resp)
}
