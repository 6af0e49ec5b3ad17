package errors

import (
	stdErrors "errors"
	"fmt"
	"net/http"
	"testing"
)

func TestMetadataCatalog(t *testing.T) {
	cases := []struct {
		code Code
		want Metadata
	}{
		{CodeValidation, Metadata{HTTPStatus: http.StatusBadRequest, PublicMessage: "validation failed", DetailsAllowed: true}},
		{CodeNotFound, Metadata{HTTPStatus: http.StatusNotFound, PublicMessage: "resource not found"}},
		{CodeConflict, Metadata{HTTPStatus: http.StatusConflict, PublicMessage: "version conflict", Retryable: true}},
		{CodeStateConflict, Metadata{HTTPStatus: http.StatusUnprocessableEntity, PublicMessage: "operation not allowed in current state", DetailsAllowed: true}},
		{CodeOutOfRange, Metadata{HTTPStatus: http.StatusUnprocessableEntity, PublicMessage: "quantity out of range", DetailsAllowed: true}},
		{CodeInternal, Metadata{HTTPStatus: http.StatusInternalServerError, PublicMessage: "internal server error", Retryable: true}},
		{CodeDependency, Metadata{HTTPStatus: http.StatusServiceUnavailable, PublicMessage: "service dependency unavailable", Retryable: true, DetailsAllowed: true}},
	}

	for _, tc := range cases {
		t.Run(string(tc.code), func(t *testing.T) {
			if got := MetadataFor(tc.code); got != tc.want {
				t.Fatalf("metadata mismatch:\n got %+v\nwant %+v", got, tc.want)
			}
		})
	}

	t.Run("unknown", func(t *testing.T) {
		if got := MetadataFor("SOMETHING_UNKNOWN"); got.HTTPStatus != http.StatusInternalServerError {
			t.Fatalf("unknown code should map to internal, got %+v", got)
		}
	})
}

func TestNewAndWithDetails(t *testing.T) {
	err := New(CodeValidation, "quantity must be positive")

	if err.Code() != CodeValidation {
		t.Fatalf("code: got %s", err.Code())
	}
	if err.Message() != "quantity must be positive" {
		t.Fatalf("message: got %q", err.Message())
	}
	if err.Details() != nil {
		t.Fatal("details should start nil")
	}
	if got := err.Error(); got != "VALIDATION_ERROR: quantity must be positive" {
		t.Fatalf("Error(): got %q", got)
	}

	err.WithDetails(map[string]any{"field": "quantity"})
	if err.Details() == nil {
		t.Fatal("details not retained")
	}
	if !err.Metadata().DetailsAllowed {
		t.Fatal("validation metadata should allow details")
	}
}

func TestWrapKeepsCauseChain(t *testing.T) {
	cause := stdErrors.New("row version moved")
	wrapped := Wrap(CodeConflict, fmt.Errorf("adjust stock: %w", cause), "stock conflict")

	if wrapped.Code() != CodeConflict {
		t.Fatalf("code: got %s", wrapped.Code())
	}
	if !stdErrors.Is(wrapped, cause) {
		t.Fatal("cause lost through Wrap")
	}
	if !wrapped.Metadata().Retryable {
		t.Fatal("conflict should be retryable")
	}
}

func TestAs(t *testing.T) {
	inner := New(CodeOutOfRange, "computed stock above limit")
	chained := fmt.Errorf("outer: %w", inner)

	got := As(chained)
	if got == nil || got.Code() != CodeOutOfRange {
		t.Fatalf("As should find the typed error through wrapping, got %v", got)
	}
	if As(nil) != nil {
		t.Fatal("As(nil) should be nil")
	}
	if As(stdErrors.New("plain")) != nil {
		t.Fatal("As should ignore untyped errors")
	}
}

func TestNilReceiverSafety(t *testing.T) {
	var err *Error
	if err.Code() != CodeInternal {
		t.Fatalf("nil receiver code: got %s", err.Code())
	}
	if err.Error() != "" || err.Message() != "" {
		t.Fatal("nil receiver should render empty strings")
	}
	if err.Unwrap() != nil || err.Details() != nil || err.WithDetails("x") != nil {
		t.Fatal("nil receiver accessors should return nil")
	}
}
