package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/sells-group/metalsense/internal/geo"
	"github.com/sells-group/metalsense/internal/model"
	"github.com/sells-group/metalsense/internal/store"
	"github.com/sells-group/metalsense/internal/units"
	"github.com/sells-group/metalsense/internal/worker"
)

const maxBodyBytes = 1 << 20

type errorBody struct {
	Error    string `json:"error"`
	SampleID string `json:"sample_id,omitempty"`
}

// badRequest marks an error raised while reading a request.
type badRequest struct{ msg string }

func (e *badRequest) Error() string { return e.msg }

// writeJSON encodes v before writing the header so an unencodable value
// becomes a 500 instead of a truncated success.
func writeJSON(w http.ResponseWriter, status int, v any) {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(v); err != nil {
		zap.L().Error("api: encode response", zap.Int("status", status), zap.Error(err))
		buf.Reset()
		status = http.StatusInternalServerError
		_ = json.NewEncoder(&buf).Encode(errorBody{Error: "response could not be encoded"})
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if _, err := w.Write(buf.Bytes()); err != nil {
		zap.L().Warn("api: write response", zap.Error(err))
	}
}

// statusFor maps domain errors to HTTP status codes.
func statusFor(err error) int {
	var br *badRequest
	var inErr *units.InputError
	switch {
	case errors.As(err, &br),
		errors.As(err, &inErr),
		errors.Is(err, model.ErrInvalidSample),
		errors.Is(err, geo.ErrLatitudeRange),
		errors.Is(err, geo.ErrLongitudeRange):
		return http.StatusBadRequest
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, worker.ErrQueueFull), errors.Is(err, worker.ErrStopped):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		zap.L().Error("api: request failed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Error(err),
		)
		msg = http.StatusText(status)
	}
	writeJSON(w, status, errorBody{Error: msg})
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		return &badRequest{msg: "invalid request body: " + err.Error()}
	}
	return nil
}
