package metrics

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestHandlerExposesCounters(t *testing.T) {
	m := New()
	m.FramesProcessed.Add(3)
	m.InferenceErrors.Add(1)
	m.ActiveClients.Add(2)
	m.UpdateProcessLatency(42 * time.Millisecond)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body, _ := io.ReadAll(rec.Body)
	for _, want := range []string{
		"tilapia_frames_processed_total 3",
		"tilapia_inference_errors_total 1",
		"tilapia_stream_clients 2",
		"tilapia_process_latency_ms 42",
	} {
		if !strings.Contains(string(body), want) {
			t.Errorf("metrics output missing %q", want)
		}
	}
}
