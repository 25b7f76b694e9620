package obs

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func decodeLines(t *testing.T, buf *bytes.Buffer) []map[string]any {
	t.Helper()
	var out []map[string]any
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}
		var rec map[string]any
		if err := json.Unmarshal([]byte(line), &rec); err != nil {
			t.Fatalf("log line is not JSON: %q: %v", line, err)
		}
		out = append(out, rec)
	}
	return out
}

func TestFrom_AddsRunAndStep(t *testing.T) {
	var buf bytes.Buffer
	restore := SetOutputForTests(&buf)
	defer restore()

	ctx := WithRunID(context.Background(), "run-123")
	ctx = WithStep(ctx, "client")
	From(ctx).Info("client selected", "text", "STILO CONCEPTO")

	lines := decodeLines(t, &buf)
	if len(lines) != 1 {
		t.Fatalf("expected one log line, got %d", len(lines))
	}
	rec := lines[0]
	if rec["run_id"] != "run-123" || rec["step"] != "client" {
		t.Fatalf("missing correlation fields: %v", rec)
	}
	if _, ok := rec["time"].(string); !ok {
		t.Fatalf("expected string time field: %v", rec)
	}
}

func TestWithStep_KeepsRunID(t *testing.T) {
	ctx := WithRunID(context.Background(), " run-a ")
	ctx = WithStep(ctx, "issuer")
	ctx = WithStep(ctx, "client")
	corr := CorrelationFromContext(ctx)
	if corr.RunID != "run-a" || corr.Step != "client" {
		t.Fatalf("unexpected correlation: %+v", corr)
	}
	if CorrelationFromContext(context.Background()) != (Correlation{}) {
		t.Fatal("bare context should yield empty correlation")
	}
}

func TestParseLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"WARN":    slog.LevelWarn,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"":        slog.LevelInfo,
		"chatty":  slog.LevelInfo,
	}
	for in, want := range cases {
		if got := ParseLevel(in); got != want {
			t.Errorf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestNewRunID_Unique(t *testing.T) {
	a, b := NewRunID(), NewRunID()
	if a == b || !strings.HasPrefix(a, "run-") {
		t.Fatalf("unexpected run ids %q %q", a, b)
	}
}

func TestMiddleware_LogsRunHeader(t *testing.T) {
	var buf bytes.Buffer
	restore := SetOutputForTests(&buf)
	defer restore()

	h := RequestContextMiddleware(AccessLogMiddleware("fixture", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
		_, _ = w.Write([]byte("ok"))
	})))

	req := httptest.NewRequest(http.MethodGet, "/Home/Plantillas?x=1", nil)
	req.Header.Set(RunHeader, "run-xyz")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Header().Get("X-Request-Id") == "" {
		t.Fatal("expected generated X-Request-Id header")
	}
	lines := decodeLines(t, &buf)
	if len(lines) != 1 {
		t.Fatalf("expected one access line, got %d", len(lines))
	}
	got := lines[0]
	if got["msg"] != "http_access" || got["run_id"] != "run-xyz" || got["path"] != "/Home/Plantillas" {
		t.Fatalf("unexpected access line: %v", got)
	}
	if got["status"].(float64) != http.StatusTeapot || got["resp_bytes"].(float64) != 2 {
		t.Fatalf("unexpected status/bytes: %v", got)
	}
}
