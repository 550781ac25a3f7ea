package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/uuid"
)

func TestSlogJSONBackend(t *testing.T) {
	var buf bytes.Buffer
	log := New(Config{Level: "info", Format: "json", Output: &buf})

	log.Debug(context.Background(), "hidden")
	log.With(String("component", "adjudicator")).Info(context.Background(), "route scored",
		Float64("score", 0.82), Int("hops", 3), Err(errors.New("boom")))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 1 {
		t.Fatalf("expected exactly one line at info level, got %d: %q", len(lines), buf.String())
	}
	var rec map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &rec); err != nil {
		t.Fatalf("unmarshal log line: %v", err)
	}
	if rec["msg"] != "route scored" || rec["component"] != "adjudicator" || rec["hops"] != float64(3) || rec["error"] != "boom" {
		t.Fatalf("unexpected record %v", rec)
	}
}

func TestZapJSONBackend(t *testing.T) {
	var buf bytes.Buffer
	log := New(Config{Level: "warn", Format: "json", Backend: BackendZap, Output: &buf})

	log.Info(context.Background(), "hidden")
	log.With(String("component", "calibration")).Warn(context.Background(), "rollback", String("bucket", "45/ISL"))
	if err := Sync(log); err != nil {
		t.Fatalf("Sync: %v", err)
	}

	out := strings.TrimSpace(buf.String())
	if strings.Contains(out, "hidden") {
		t.Fatalf("info line should be filtered at warn level: %s", out)
	}
	var rec map[string]any
	if err := json.Unmarshal([]byte(out), &rec); err != nil {
		t.Fatalf("unmarshal zap line %q: %v", out, err)
	}
	if rec["msg"] != "rollback" || rec["component"] != "calibration" || rec["bucket"] != "45/ISL" || rec["level"] != "warn" {
		t.Fatalf("unexpected record %v", rec)
	}
}

func TestFileSinkWritesRotatingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "router.log")
	log := New(Config{Format: "json", File: path})
	log.Info(context.Background(), "to file")

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	if !strings.Contains(string(data), "to file") {
		t.Fatalf("log file missing entry: %q", data)
	}
}

func TestRequestIDHelpers(t *testing.T) {
	ctx, id := EnsureRequestID(context.Background())
	if _, err := uuid.Parse(id); err != nil {
		t.Fatalf("request id %q is not a uuid: %v", id, err)
	}
	if again, same := EnsureRequestID(ctx); RequestIDFromContext(again) != id || same != id {
		t.Fatalf("EnsureRequestID replaced an existing id")
	}

	var buf bytes.Buffer
	base := New(Config{Format: "json", Output: &buf})
	ctx, reqLog := WithRequestLogger(ContextWithRequestID(context.Background(), "req-1"), base)
	reqLog.Info(ctx, "hello")
	if !strings.Contains(buf.String(), `"request_id":"req-1"`) {
		t.Fatalf("request logger missing id: %s", buf.String())
	}

	if LoggerFromContext(ContextWithLogger(ctx, reqLog), nil) != reqLog {
		t.Fatalf("LoggerFromContext did not return stored logger")
	}
	if _, ok := LoggerFromContext(context.Background(), nil).(noopLogger); !ok {
		t.Fatalf("expected noop fallback")
	}
}
