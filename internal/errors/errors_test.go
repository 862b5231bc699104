package errors

import (
	stderrors "errors"
	"fmt"
	"testing"
)

func TestHTTPStatusMapping(t *testing.T) {
	tests := []struct {
		code Code
		want int
	}{
		{CodeTaskNotFound, 404},
		{CodeProjectNotFound, 404},
		{CodeInvalidRequest, 400},
		{CodeRunnerBusy, 409},
		{CodeIndexerUnavailable, 503},
		{CodeSpawnFailed, 500},
		{Code("SOMETHING_ELSE"), 500},
	}

	for _, tt := range tests {
		e := New(tt.code, "boom")
		if got := e.HTTPStatus(); got != tt.want {
			t.Errorf("HTTPStatus(%s) = %d, want %d", tt.code, got, tt.want)
		}
	}
}

func TestErrorWrapping(t *testing.T) {
	cause := stderrors.New("exec: \"brain-index\": executable file not found in $PATH")
	e := ErrIndexerUnavailable(cause)

	if !stderrors.Is(e, cause) {
		t.Error("expected wrapped cause to be found by errors.Is")
	}
	if got := e.Error(); got != "note indexer is not available: "+cause.Error() {
		t.Errorf("unexpected Error(): %q", got)
	}

	wrapped := fmt.Errorf("load tasks: %w", e)
	var be *BrainError
	if !stderrors.As(wrapped, &be) {
		t.Fatal("expected errors.As to unwrap BrainError")
	}
	if be.Code != CodeIndexerUnavailable {
		t.Errorf("code = %s, want %s", be.Code, CodeIndexerUnavailable)
	}
}

func TestIsMatchesByCode(t *testing.T) {
	a := New(CodeTaskNotFound, "task \"x\" not found")
	b := ErrTaskNotFound("y")
	if !stderrors.Is(a, b) {
		t.Error("errors with the same code should match")
	}
	c := New(CodeSpawnFailed, "spawn")
	if stderrors.Is(a, c) {
		t.Error("errors with different codes should not match")
	}
}
