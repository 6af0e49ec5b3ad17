package responses

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	pkgerrors "github.com/danielortiz-dev/vendique-backend/pkg/errors"
	"github.com/danielortiz-dev/vendique-backend/pkg/logger"
)

func decodeError(t *testing.T, w *httptest.ResponseRecorder) ErrorEnvelope {
	t.Helper()
	var body ErrorEnvelope
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("decode error envelope: %v", err)
	}
	return body
}

func TestWriteSuccessWrapsData(t *testing.T) {
	w := httptest.NewRecorder()
	WriteSuccess(w, map[string]string{"status": "ready"})

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); ct != "application/json" {
		t.Fatalf("unexpected content type %q", ct)
	}

	var body SuccessEnvelope
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("decode success envelope: %v", err)
	}
	if body.Data.(map[string]any)["status"] != "ready" {
		t.Fatalf("unexpected payload %v", body.Data)
	}
}

func TestWriteErrorKeepsHandlerMessageOnClientFaults(t *testing.T) {
	w := httptest.NewRecorder()
	err := pkgerrors.New(pkgerrors.CodeValidation, "quantity must be positive").
		WithDetails(map[string]string{"field": "quantity"})
	WriteError(context.Background(), nil, w, err)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
	body := decodeError(t, w)
	if body.Error.Code != string(pkgerrors.CodeValidation) {
		t.Fatalf("unexpected code %s", body.Error.Code)
	}
	if body.Error.Message != "quantity must be positive" {
		t.Fatalf("handler message should pass through, got %q", body.Error.Message)
	}
	if body.Error.Details == nil {
		t.Fatal("expected details for a validation failure")
	}
}

func TestWriteErrorMasksServerFaults(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		status int
		code   pkgerrors.Code
	}{
		{
			name:   "untyped error",
			err:    errors.New("pq: deadlock detected"),
			status: http.StatusInternalServerError,
			code:   pkgerrors.CodeInternal,
		},
		{
			name:   "dependency error",
			err:    pkgerrors.Wrap(pkgerrors.CodeDependency, errors.New("dial tcp: refused"), "redis ping"),
			status: http.StatusServiceUnavailable,
			code:   pkgerrors.CodeDependency,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			WriteError(context.Background(), nil, w, tc.err)

			if w.Code != tc.status {
				t.Fatalf("expected %d, got %d", tc.status, w.Code)
			}
			body := decodeError(t, w)
			if body.Error.Code != string(tc.code) {
				t.Fatalf("unexpected code %s", body.Error.Code)
			}
			want := pkgerrors.MetadataFor(tc.code).PublicMessage
			if body.Error.Message != want {
				t.Fatalf("expected public message %q, got %q", want, body.Error.Message)
			}
			if strings.Contains(body.Error.Message, "deadlock") || strings.Contains(body.Error.Message, "dial tcp") {
				t.Fatalf("internal text leaked: %q", body.Error.Message)
			}
			if tc.code == pkgerrors.CodeInternal && body.Error.Details != nil {
				t.Fatal("internal errors must not carry details")
			}
		})
	}
}

func TestWriteErrorLogsFlattenedChain(t *testing.T) {
	buf := &bytes.Buffer{}
	logg := logger.New(logger.Options{
		ServiceName: "responses-test",
		Level:       zerolog.InfoLevel,
		Output:      buf,
	})

	w := httptest.NewRecorder()
	err := pkgerrors.Wrap(pkgerrors.CodeConflict, errors.New("version moved"), "stale product update")
	WriteError(context.Background(), logg, w, err)

	line := buf.String()
	if !strings.Contains(line, "request.error") {
		t.Fatalf("expected request.error event, got %s", line)
	}
	if !strings.Contains(line, string(pkgerrors.CodeConflict)) {
		t.Fatalf("expected error code in log line, got %s", line)
	}
	if !strings.Contains(line, "version moved") {
		t.Fatalf("expected cause in log line, got %s", line)
	}
}

func TestWriteSuccessSurvivesUnencodablePayload(t *testing.T) {
	w := httptest.NewRecorder()
	WriteSuccess(w, make(chan int))

	if w.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500 fallback, got %d", w.Code)
	}
	body := decodeError(t, w)
	if body.Error.Code != string(pkgerrors.CodeInternal) {
		t.Fatalf("expected fallback body, got %+v", body)
	}
}
