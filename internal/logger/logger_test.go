package logger

import (
	"bytes"
	"strings"
	"testing"
)

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	l := New(WARN, &buf, false)

	l.Info("Detector", "hidden %d", 1)
	l.Warn("Detector", "inference failed: %s", "boom")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Fatalf("info message written at WARN level: %q", out)
	}
	if !strings.Contains(out, "[WARN] [Detector] inference failed: boom") {
		t.Fatalf("unexpected output: %q", out)
	}
}

func TestSilentWritesNothing(t *testing.T) {
	var buf bytes.Buffer
	l := New(SILENT, &buf, false)
	l.Error("Main", "nope")
	if buf.Len() != 0 {
		t.Fatalf("silent logger wrote %q", buf.String())
	}
}

func TestColorPrefix(t *testing.T) {
	var buf bytes.Buffer
	l := New(DEBUG, &buf, true)
	l.Error("Main", "x")
	if !strings.Contains(buf.String(), "\033[31m[ERROR]\033[0m [Main] x") {
		t.Fatalf("missing colour prefix: %q", buf.String())
	}
}

func TestGlobalInitReplaces(t *testing.T) {
	var first, second bytes.Buffer
	Init(INFO, &first, false)
	Info("A", "one")
	Init(INFO, &second, false)
	Info("B", "two")

	if !strings.Contains(first.String(), "one") || strings.Contains(first.String(), "two") {
		t.Fatalf("first = %q", first.String())
	}
	if !strings.Contains(second.String(), "[B] two") {
		t.Fatalf("second = %q", second.String())
	}
}

func TestParseLevel(t *testing.T) {
	tests := map[string]LogLevel{
		"debug":   DEBUG,
		"INFO":    INFO,
		"warning": WARN,
		"Error":   ERROR,
		"none":    SILENT,
	}
	for in, want := range tests {
		got, err := ParseLevel(in)
		if err != nil || got != want {
			t.Errorf("ParseLevel(%q) = %v, %v; want %v", in, got, err, want)
		}
	}
	if _, err := ParseLevel("verbose"); err == nil {
		t.Error("expected error for unknown level")
	}
}

func TestStdAdapter(t *testing.T) {
	var buf bytes.Buffer
	l := New(INFO, &buf, false)

	std := l.Std(WARN, "MQTT")
	std.Println("connection", "lost")
	std.Printf("retry in %ds", 2)
	l.Std(DEBUG, "MQTT").Println("hidden")

	out := buf.String()
	if !strings.Contains(out, "[WARN] [MQTT] connection lost\n") {
		t.Fatalf("Println output = %q", out)
	}
	if !strings.Contains(out, "[WARN] [MQTT] retry in 2s") {
		t.Fatalf("Printf output = %q", out)
	}
	if strings.Contains(out, "hidden") {
		t.Fatalf("debug line written at INFO level: %q", out)
	}
}

func TestUnknownLevelString(t *testing.T) {
	if got := LogLevel(42).String(); got != "UNKNOWN" {
		t.Fatalf("String() = %q", got)
	}
	if New(DEBUG, nil, false).Enabled(LogLevel(42)) {
		t.Fatal("out-of-range level reported enabled")
	}
}
