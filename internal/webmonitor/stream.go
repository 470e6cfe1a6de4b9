package webmonitor

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/sfm/tilapia-camera/internal/camera"
	"github.com/sfm/tilapia-camera/internal/logger"
)

const (
	mjpegIdleTimeout = 5 * time.Second
	sseKeepalive     = 30 * time.Second
)

var (
	blankOnce sync.Once
	blankData []byte
	blankErr  error
)

// blankJPEG is the no-camera placeholder, encoded once.
func blankJPEG() ([]byte, error) {
	blankOnce.Do(func() {
		img := camera.Placeholder(camera.NoCameraText, camera.DefaultWidth/2, camera.DefaultHeight/2)
		blankData, blankErr = encodeJPEG(img, 75)
	})
	return blankData, blankErr
}

// streamMJPEGFromChannel streams MJPEG from a channel (fanout pattern).
func streamMJPEGFromChannel(ctx context.Context, w http.ResponseWriter, frameCh <-chan []byte) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "multipart/x-mixed-replace; boundary=frame")
	w.Header().Set("Cache-Control", "no-cache")

	blank, err := blankJPEG()
	if err != nil {
		http.Error(w, "Failed to render frame", http.StatusInternalServerError)
		return
	}

	for {
		var jpegData []byte
		select {
		case <-ctx.Done():
			return
		case data, ok := <-frameCh:
			if !ok {
				// Channel closed, client should disconnect
				return
			}
			if data != nil {
				jpegData = data
			} else {
				jpegData = blank
			}
		case <-time.After(mjpegIdleTimeout):
			// No frame for a while, send placeholder to keep connection alive
			jpegData = blank
		}

		// Write frame with error checking - if client disconnected, exit immediately
		if _, err := w.Write([]byte("--frame\r\nContent-Type: image/jpeg\r\n\r\n")); err != nil {
			logger.Debug("MJPEG", "Client disconnected during write: %v", err)
			return
		}
		if _, err := w.Write(jpegData); err != nil {
			logger.Debug("MJPEG", "Client disconnected during frame write: %v", err)
			return
		}
		if _, err := w.Write([]byte("\r\n")); err != nil {
			logger.Debug("MJPEG", "Client disconnected during delimiter write: %v", err)
			return
		}
		flusher.Flush()
	}
}

// streamEventsFromChannel streams pre-serialized events to an SSE client.
// Data is already serialized in both formats by the broadcaster.
func streamEventsFromChannel(ctx context.Context, w http.ResponseWriter, eventCh <-chan *SerializedEvent, useProtobuf bool) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	// Add custom header to indicate format
	if useProtobuf {
		w.Header().Set("X-Content-Format", "application/protobuf")
	} else {
		w.Header().Set("X-Content-Format", "application/json")
	}
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-eventCh:
			if !ok {
				// Channel closed, client should disconnect
				return
			}

			var data []byte
			if useProtobuf {
				data = event.ProtobufData
			} else {
				data = event.JSONData
			}

			if _, err := fmt.Fprintf(w, "data: %s\n\n", data); err != nil {
				logger.Debug("SSE", "Client disconnected during event write: %v", err)
				return
			}
			flusher.Flush()

		case <-time.After(sseKeepalive):
			// Send keepalive comment to prevent timeout
			if _, err := fmt.Fprintf(w, ": keepalive\n\n"); err != nil {
				logger.Debug("SSE", "Client disconnected during keepalive: %v", err)
				return
			}
			flusher.Flush()
		}
	}
}
