// Package httpapi is the front-door HTTP surface: POST /messages, POST
// /responses, and the health endpoints, grounded on the teacher's
// api/handlers/common.go and chat.go (ValidateContentType ->
// DecodeJSONBody with DisallowUnknownFields + a 1MB MaxBytesReader ->
// validate -> dispatch -> WriteJSON/WriteError). Unlike the teacher,
// responses here are not wrapped in a generic {success,data,error}
// envelope: the wire contract in spec §6 is the canonical body itself, or
// a bare {error:{kind,message}} object, so WriteJSON/WriteError write
// those shapes directly.
package httpapi

import (
	"encoding/json"
	"mime"
	"net/http"

	"go.uber.org/zap"

	"github.com/ashgate/gateway/internal/canon"
)

// errorEnvelope is the body for a surfaced error, per spec §7.
type errorEnvelope struct {
	Error errorInfo `json:"error"`
}

type errorInfo struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// WriteJSON writes data as the JSON body with the given status.
func WriteJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// WriteError surfaces err as {error:{kind,message}}, per spec §7: status
// is derived via canon.SurfaceStatus, logged at Error level before
// writing.
func WriteError(w http.ResponseWriter, err error, logger *zap.Logger) {
	status := canon.SurfaceStatus(err)
	code := canon.GetErrorCode(err)
	if code == "" {
		code = canon.ErrUpstreamError
	}
	if logger != nil {
		logger.Error("request failed", zap.String("code", string(code)), zap.Int("status", status), zap.Error(err))
	}
	WriteJSON(w, status, errorEnvelope{Error: errorInfo{Kind: string(code), Message: err.Error()}})
}

// DecodeJSONBody decodes r's body into dst, rejecting unknown fields and
// bodies over 1MB. On failure it writes the error response itself and
// returns a non-nil error so the caller can return immediately.
func DecodeJSONBody(w http.ResponseWriter, r *http.Request, dst any, logger *zap.Logger) error {
	if r.Body == nil {
		err := canon.NewError(canon.ErrInvalidRequest, "request body is empty")
		WriteError(w, err, logger)
		return err
	}
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)

	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dst); err != nil {
		apiErr := canon.NewError(canon.ErrInvalidRequest, "invalid JSON body").WithCause(err).WithHTTPStatus(http.StatusBadRequest)
		WriteError(w, apiErr, logger)
		return apiErr
	}
	return nil
}

// WriteSSEJSON encodes v directly onto w without the trailing newline
// json.Encoder normally appends, so callers control SSE frame boundaries.
func WriteSSEJSON(w http.ResponseWriter, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	_, err = w.Write(b)
	return err
}

// ValidateContentType rejects any request whose Content-Type is not
// application/json, per the teacher's mime.ParseMediaType-based check.
func ValidateContentType(w http.ResponseWriter, r *http.Request, logger *zap.Logger) bool {
	mediaType, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if err != nil || mediaType != "application/json" {
		WriteError(w, canon.NewError(canon.ErrInvalidRequest, "Content-Type must be application/json"), logger)
		return false
	}
	return true
}
