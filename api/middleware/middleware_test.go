package middleware

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/danielortiz-dev/vendique-backend/pkg/logger"
)

func newCapturedLogger(t *testing.T) (*logger.Logger, *bytes.Buffer) {
	t.Helper()
	buf := &bytes.Buffer{}
	logg := logger.New(logger.Options{
		ServiceName: "middleware-test",
		Level:       zerolog.InfoLevel,
		Output:      buf,
	})
	return logg, buf
}

func okHandler(body string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(body))
	})
}

func TestRequestIDKeepsHeaderSafeInboundID(t *testing.T) {
	logg, _ := newCapturedLogger(t)
	handler := RequestID(logg)(okHandler("ok"))

	req := httptest.NewRequest(http.MethodGet, "/readyz", nil)
	req.Header.Set(requestIDHeader, "gw-trace.0042_a")
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	if got := rec.Header().Get(requestIDHeader); got != "gw-trace.0042_a" {
		t.Fatalf("expected inbound id to survive, got %q", got)
	}
}

func TestRequestIDReplacesBadInboundID(t *testing.T) {
	cases := map[string]string{
		"spaces":   "not a header safe id",
		"controls": "abc\x00def",
		"too long": strings.Repeat("a", maxRequestIDLen+1),
		"empty":    "",
	}
	for name, inbound := range cases {
		t.Run(name, func(t *testing.T) {
			handler := RequestID(nil)(okHandler("ok"))
			req := httptest.NewRequest(http.MethodGet, "/readyz", nil)
			if inbound != "" {
				req.Header.Set(requestIDHeader, inbound)
			}
			rec := httptest.NewRecorder()

			handler.ServeHTTP(rec, req)

			got := rec.Header().Get(requestIDHeader)
			if got == inbound {
				t.Fatalf("expected %q to be replaced", inbound)
			}
			if _, err := uuid.Parse(got); err != nil {
				t.Fatalf("replacement %q is not a uuid: %v", got, err)
			}
		})
	}
}

func TestLoggingEmitsOneLinePerRequest(t *testing.T) {
	logg, buf := newCapturedLogger(t)
	handler := Logging(logg)(okHandler("payload"))

	req := httptest.NewRequest(http.MethodGet, "/debug/outbox/dlq", nil)
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 1 {
		t.Fatalf("expected exactly one log line, got %d: %s", len(lines), buf.String())
	}
	var entry map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &entry); err != nil {
		t.Fatalf("decode log line: %v", err)
	}
	if entry["message"] != "request.complete" {
		t.Fatalf("unexpected message %v", entry["message"])
	}
	if entry["method"] != http.MethodGet || entry["path"] != "/debug/outbox/dlq" {
		t.Fatalf("missing method/path fields: %v", entry)
	}
	if entry["status"] != float64(http.StatusOK) {
		t.Fatalf("unexpected status field %v", entry["status"])
	}
	if entry["bytes"] != float64(len("payload")) {
		t.Fatalf("unexpected bytes field %v", entry["bytes"])
	}
}

func TestLoggingSuppressesHealthyProbes(t *testing.T) {
	logg, buf := newCapturedLogger(t)
	handler := Logging(logg)(okHandler("ok"))

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	handler.ServeHTTP(httptest.NewRecorder(), req)

	if buf.Len() != 0 {
		t.Fatalf("expected no log output for healthy probe, got %s", buf.String())
	}
}

func TestLoggingReportsFailedProbes(t *testing.T) {
	logg, buf := newCapturedLogger(t)
	handler := Logging(logg)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))

	req := httptest.NewRequest(http.MethodGet, "/readyz", nil)
	handler.ServeHTTP(httptest.NewRecorder(), req)

	if !strings.Contains(buf.String(), "request.failed") {
		t.Fatalf("expected failed probe to be logged, got %s", buf.String())
	}
}

func TestRecovererTurnsPanicInto500(t *testing.T) {
	logg, buf := newCapturedLogger(t)
	handler := Recoverer(logg)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("reservation ledger out of sync")
	}))

	req := httptest.NewRequest(http.MethodPost, "/readyz", nil)
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "INTERNAL_ERROR") {
		t.Fatalf("expected error envelope, got %s", rec.Body.String())
	}
	if !strings.Contains(buf.String(), "panic.recovered") {
		t.Fatalf("expected panic log, got %s", buf.String())
	}
}

func TestRecovererLetsAbortHandlerThrough(t *testing.T) {
	handler := Recoverer(nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic(http.ErrAbortHandler)
	}))

	defer func() {
		if recover() != http.ErrAbortHandler {
			t.Fatal("expected http.ErrAbortHandler to propagate")
		}
	}()
	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/readyz", nil))
	t.Fatal("expected panic")
}
