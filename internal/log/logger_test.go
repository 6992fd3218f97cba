package log

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"INFO", slog.LevelInfo},
		{" warn ", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{"", slog.LevelInfo},
		{"chatty", slog.LevelInfo},
	}
	for _, tt := range tests {
		if got := ParseLevel(tt.in); got != tt.want {
			t.Errorf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestLoggerStampsComponent(t *testing.T) {
	var buf bytes.Buffer
	l := New(Config{Level: slog.LevelInfo, Component: ComponentWorker, Output: &buf})

	l.Info("Export written", FieldSiteID, 3)
	l.Debug("hidden")
	l.WithComponent(ComponentSheets).Warn("Quota low")

	out := buf.String()
	if !strings.Contains(out, "component=worker") || !strings.Contains(out, "site_id=3") {
		t.Errorf("missing fields in %q", out)
	}
	if strings.Contains(out, "hidden") {
		t.Error("debug record should be filtered at info level")
	}
	if !strings.Contains(out, "component=sheets") {
		t.Errorf("WithComponent not applied: %q", out)
	}
}

func TestFields(t *testing.T) {
	f := NewFields().WithSite("owner-1", 4).WithOperation(OpExport).WithError(errors.New("boom")).WithError(nil)
	want := []any{FieldOwnerID, "owner-1", FieldSiteID, int64(4), FieldOperation, OpExport, FieldError, "boom"}
	if len(f) != len(want) {
		t.Fatalf("got %v, want %v", f, want)
	}
	for i := range want {
		if f[i] != want[i] {
			t.Errorf("field %d = %v, want %v", i, f[i], want[i])
		}
	}
}

func TestMiddlewareAddsRequestID(t *testing.T) {
	var buf bytes.Buffer
	base := New(Config{Output: &buf, Component: ComponentHTTP})

	h := Middleware(base, func(context.Context) string { return "req_1" })(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		FromContext(r.Context()).InfoContext(r.Context(), "handled")
	}))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))

	if !strings.Contains(buf.String(), "request_id=req_1") {
		t.Errorf("request id missing from %q", buf.String())
	}
	if FromContext(context.Background()).Component() != ComponentApp {
		t.Error("fallback logger should use the app component")
	}
}
