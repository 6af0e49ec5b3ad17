// Package responses renders the JSON bodies of the worker's ops endpoints.
// Every body is wrapped in an envelope: {"data": ...} on success and
// {"error": {...}} on failure, with the failure class resolved through
// pkg/errors metadata.
package responses

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"

	pkgerrors "github.com/danielortiz-dev/vendique-backend/pkg/errors"
	"github.com/danielortiz-dev/vendique-backend/pkg/logger"
)

// SuccessEnvelope is the JSON wrapper around every 2xx body.
type SuccessEnvelope struct {
	Data any `json:"data"`
}

// ErrorEnvelope is the JSON wrapper around every failure body.
type ErrorEnvelope struct {
	Error ErrorBody `json:"error"`
}

// ErrorBody names the failure class and carries the public message. Details
// appears only for codes whose metadata allows structured context out.
type ErrorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

// WriteSuccess writes data wrapped in the success envelope with status 200.
func WriteSuccess(w http.ResponseWriter, data any) {
	writeJSON(w, http.StatusOK, SuccessEnvelope{Data: data})
}

// WriteError renders err as the error envelope and logs the full chain.
// Handler-written messages surface only on 4xx codes; 5xx bodies always use
// the code's public message so internals never reach the caller.
func WriteError(ctx context.Context, logg *logger.Logger, w http.ResponseWriter, err error) {
	if err == nil {
		err = errors.New("unknown error")
	}
	typed := pkgerrors.As(err)
	if typed == nil {
		typed = pkgerrors.Wrap(pkgerrors.CodeInternal, err, "unexpected error")
	}

	meta := typed.Metadata()
	body := ErrorBody{Code: string(typed.Code()), Message: meta.PublicMessage}
	if meta.HTTPStatus < http.StatusInternalServerError {
		if m := typed.Message(); m != "" {
			body.Message = m
		}
	}
	if meta.DetailsAllowed {
		body.Details = typed.Details()
	}

	if logg != nil {
		ctx = logg.WithFields(ctx, pkgerrors.Dump(err).Fields())
		logg.Error(ctx, "request.error", err)
	}

	writeJSON(w, meta.HTTPStatus, ErrorEnvelope{Error: body})
}

// writeJSON marshals before touching the ResponseWriter so an unencodable
// payload still produces a well-formed 500 instead of a truncated body.
func writeJSON(w http.ResponseWriter, status int, payload any) {
	body, err := json.Marshal(payload)
	if err != nil {
		log.Printf(`{"level":"error","message":"encode response failed","error":%q}`, err.Error())
		status = http.StatusInternalServerError
		body = []byte(`{"error":{"code":"INTERNAL_ERROR","message":"internal server error"}}`)
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(body)
}
