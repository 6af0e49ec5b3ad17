package validate

import (
	"testing"

	pkgerrors "github.com/danielortiz-dev/vendique-backend/pkg/errors"
)

type sampleInput struct {
	Name  string `json:"name" validate:"required"`
	Count int    `json:"count" validate:"gt=0,max=100"`
}

func TestStructPassesValidInput(t *testing.T) {
	if err := Struct(sampleInput{Name: "widget", Count: 5}); err != nil {
		t.Fatalf("expected valid input, got %v", err)
	}
}

func TestStructReportsFieldDetails(t *testing.T) {
	err := Struct(sampleInput{Count: 0})
	if err == nil {
		t.Fatal("expected validation error")
	}
	typed := pkgerrors.As(err)
	if typed == nil || typed.Code() != pkgerrors.CodeValidation {
		t.Fatalf("expected validation code, got %v", err)
	}
	details, ok := typed.Details().(map[string]string)
	if !ok {
		t.Fatalf("expected details map, got %T", typed.Details())
	}
	if details["name"] != "is required" {
		t.Fatalf("expected json tag name in details, got %v", details)
	}
	if _, found := details["count"]; !found {
		t.Fatalf("expected count failure in details, got %v", details)
	}
}
