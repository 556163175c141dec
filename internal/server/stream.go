package server

import (
	"fmt"
	"net/http"

	"golang.org/x/time/rate"

	"github.com/ayusman/fingerspell/internal/overlay"
)

// DefaultStreamFPS caps the MJPEG stream when no rate is configured.
const DefaultStreamFPS = 15

// StreamHandler serves annotated frames as MJPEG.
type StreamHandler struct {
	frames *overlay.FrameBuffer
	fps    int
}

// NewStreamHandler creates a StreamHandler reading from frames at up to fps frames per second.
func NewStreamHandler(frames *overlay.FrameBuffer, fps int) *StreamHandler {
	if fps <= 0 {
		fps = DefaultStreamFPS
	}
	return &StreamHandler{frames: frames, fps: fps}
}

// ServeHTTP streams frames until the client disconnects.
func (h *StreamHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	w.Header().Set("Content-Type", "multipart/x-mixed-replace; boundary=frame")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	ctx := r.Context()
	limiter := rate.NewLimiter(rate.Limit(h.fps), 1)
	var seq uint64
	for {
		if err := limiter.Wait(ctx); err != nil {
			return
		}
		jpeg, next, err := h.frames.Next(ctx, seq)
		if err != nil {
			return
		}
		seq = next

		if _, err := fmt.Fprintf(w, "--frame\r\nContent-Type: image/jpeg\r\nContent-Length: %d\r\n\r\n", len(jpeg)); err != nil {
			return
		}
		if _, err := w.Write(jpeg); err != nil {
			return
		}
		if _, err := fmt.Fprint(w, "\r\n"); err != nil {
			return
		}
		if f, ok := w.(http.Flusher); ok {
			f.Flush()
		}
	}
}
