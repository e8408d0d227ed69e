package errs

import (
	"errors"
	"strings"
	"testing"
)

func TestErrorFormattingIncludesScopeAndCode(t *testing.T) {
	err := New(
		"engine/play",
		CodeInvalidRecording,
		WithMessage("recording has no physics deltas"),
		WithRemediation("record at least one tick before replaying"),
		WithCause(errors.New("empty stream")),
	)

	out := err.Error()
	if !strings.Contains(out, "scope=engine/play") {
		t.Fatalf("expected scope marker in error string: %s", out)
	}
	if !strings.Contains(out, "code=invalid_recording") {
		t.Fatalf("expected code in error string: %s", out)
	}
	if !strings.Contains(out, "message=\"recording has no physics deltas\"") {
		t.Fatalf("expected message in error string: %s", out)
	}
	if !strings.Contains(out, "remediation=\"record at least one tick before replaying\"") {
		t.Fatalf("expected remediation guidance in error string: %s", out)
	}
	if !strings.Contains(out, "cause=\"empty stream\"") {
		t.Fatalf("expected wrapped cause in error string: %s", out)
	}
}

func TestErrorsIsMatchesByCode(t *testing.T) {
	err := New("engine/seek", CodeInvalidTransition, WithMessage("not replaying"))
	if !errors.Is(err, New("", CodeInvalidTransition)) {
		t.Fatal("expected errors.Is to match on code")
	}
	if errors.Is(err, New("", CodeMissingData)) {
		t.Fatal("expected errors.Is to reject different codes")
	}
}

func TestUnwrapReturnsCause(t *testing.T) {
	cause := errors.New("root")
	err := New("codec", CodeCorruptRecording, WithCause(cause))
	if !errors.Is(err, cause) {
		t.Fatalf("expected unwrap chain to reach cause, got %v", err)
	}
}

func TestIsMatchesCodeThroughWrapping(t *testing.T) {
	err := New("engine/record", CodeInvalidTransition, WithMessage("session already active"))
	if !Is(err, CodeInvalidTransition) {
		t.Fatal("expected Is to match the envelope's code")
	}
	if Is(err, CodeMissingData) {
		t.Fatal("expected Is to reject a different code")
	}

	wrapped := New("cli", CodeInvalid, WithCause(New("codec", CodeCorruptRecording)))
	if !Is(wrapped, CodeInvalid) {
		t.Fatal("expected Is to match the outermost envelope first")
	}
	if Is(errors.New("x"), CodeInvalid) {
		t.Fatal("expected Is to reject a plain error")
	}
	if Is(nil, CodeInvalid) {
		t.Fatal("expected Is to reject nil")
	}
}

func TestCodeOf(t *testing.T) {
	if got := CodeOf(New("x", CodeMissingData)); got != CodeMissingData {
		t.Fatalf("expected missing_data, got %q", got)
	}
	if got := CodeOf(errors.New("plain")); got != "" {
		t.Fatalf("expected empty code for plain error, got %q", got)
	}
}
