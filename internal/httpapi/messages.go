package httpapi

import (
	"context"
	"io"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/ashgate/gateway/internal/canon"
	"github.com/ashgate/gateway/internal/dispatch"
	"github.com/ashgate/gateway/internal/memory"
)

// MessagesHandler implements POST /messages, grounded on the teacher's
// ChatHandler.HandleCompletion/HandleStream (validate -> dispatch ->
// encode, with a dedicated SSE path guarded by an http.Flusher check).
type MessagesHandler struct {
	Dispatcher *dispatch.Dispatcher
	Memory     *memory.Store
	Logger     *zap.Logger
}

func sessionIDFrom(req canon.CanonicalRequest) string {
	if v, ok := req.Metadata["session_id"].(string); ok && v != "" {
		return v
	}
	return ""
}

func (h *MessagesHandler) validate(req *canon.CanonicalRequest) error {
	if req.Model == "" {
		return canon.NewError(canon.ErrInvalidRequest, "model is required")
	}
	if len(req.Messages) == 0 {
		return canon.NewError(canon.ErrInvalidRequest, "messages cannot be empty")
	}
	return nil
}

func assistantText(resp *canon.CanonicalResponse) string {
	var sb strings.Builder
	for _, b := range resp.Content {
		if b.Kind == canon.BlockText && b.Text != "" {
			if sb.Len() > 0 {
				sb.WriteByte('\n')
			}
			sb.WriteString(b.Text)
		}
	}
	return sb.String()
}

// extract runs memory extraction in the background; the store never
// surfaces errors and extraction must never delay the response, per spec
// §4.8.
func (h *MessagesHandler) extract(sessionID, turnID string, resp *canon.CanonicalResponse) {
	if h.Memory == nil || resp == nil {
		return
	}
	text := assistantText(resp)
	if text == "" {
		return
	}
	go h.Memory.ExtractAndStore(context.Background(), sessionID, turnID, text)
}

// writeStreamHandle proxies handle's raw upstream SSE body verbatim to w,
// per the dispatcher's "no response translation is performed" contract
// for families it can stream.
func writeStreamHandle(w http.ResponseWriter, handle *dispatch.StreamHandle, logger *zap.Logger) {
	defer handle.Close()
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	flusher, ok := w.(http.Flusher)
	if !ok {
		return
	}
	buf := make([]byte, 4096)
	for {
		n, err := handle.Response.Body.Read(buf)
		if n > 0 {
			if _, werr := w.Write(buf[:n]); werr != nil {
				return
			}
			flusher.Flush()
		}
		if err != nil {
			if err != io.EOF && logger != nil {
				logger.Warn("stream read error", zap.Error(err))
			}
			return
		}
	}
}

// writeSyntheticStream emits resp as a single canonical-event SSE frame
// for families the translator cannot yet stream natively: the client
// asked for stream=true but the dispatcher forced a non-streaming
// dispatch, so the whole response arrives as one frame rather than as
// incremental deltas.
func writeSyntheticStream(w http.ResponseWriter, resp *canon.CanonicalResponse, logger *zap.Logger) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	flusher, ok := w.(http.Flusher)
	if !ok {
		return
	}
	w.Write([]byte("data: "))
	if err := WriteSSEJSON(w, resp); err != nil {
		if logger != nil {
			logger.Warn("failed to write stream frame", zap.Error(err))
		}
		return
	}
	w.Write([]byte("\n\n"))
	flusher.Flush()
	w.Write([]byte("data: [DONE]\n\n"))
	flusher.Flush()
}

// Handle serves POST /messages.
func (h *MessagesHandler) Handle(w http.ResponseWriter, r *http.Request) {
	if !ValidateContentType(w, r, h.Logger) {
		return
	}

	var req canon.CanonicalRequest
	if err := DecodeJSONBody(w, r, &req, h.Logger); err != nil {
		return
	}
	if err := h.validate(&req); err != nil {
		WriteError(w, err, h.Logger)
		return
	}

	resp, handle, err := h.Dispatcher.Dispatch(r.Context(), req)
	if err != nil {
		WriteError(w, err, h.Logger)
		return
	}

	if handle != nil {
		writeStreamHandle(w, handle, h.Logger)
		return
	}

	if req.Stream {
		writeSyntheticStream(w, resp, h.Logger)
	} else {
		WriteJSON(w, http.StatusOK, resp)
	}

	h.extract(sessionIDFrom(req), resp.ID, resp)
}
