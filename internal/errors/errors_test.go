package errors

import (
	"errors"
	"fmt"
	"testing"
)

func TestToshError_Error(t *testing.T) {
	err := New(ErrCategoryParse, CodeMissingField, "line 3: missing required field 'blkno'")
	expected := "[PARSE:MISSING_FIELD] line 3: missing required field 'blkno'"
	if err.Error() != expected {
		t.Errorf("got %q, want %q", err.Error(), expected)
	}
}

func TestToshError_ErrorWithCause(t *testing.T) {
	cause := fmt.Errorf("permission denied")
	err := Wrap(ErrCategoryTarget, CodeOpenFailed, "open /dev/dsk/c0t0d0", cause)
	expected := "[TARGET:OPEN_FAILED] open /dev/dsk/c0t0d0: permission denied"
	if err.Error() != expected {
		t.Errorf("got %q, want %q", err.Error(), expected)
	}
}

func TestToshError_Unwrap(t *testing.T) {
	cause := fmt.Errorf("root cause")
	err := Wrap(ErrCategoryIO, CodeTransferFailed, "write failed", cause)
	if !errors.Is(err, cause) {
		t.Error("Unwrap should allow errors.Is to find the cause")
	}
}

func TestToshError_Is(t *testing.T) {
	err1 := New(ErrCategoryCapacity, CodePoolExhausted, "first")
	err2 := New(ErrCategoryCapacity, CodePoolExhausted, "second")
	err3 := New(ErrCategoryCapacity, CodeOffsetBeyondEnd, "different code")

	if !errors.Is(err1, err2) {
		t.Error("errors with same category+code should match via Is")
	}
	if errors.Is(err1, err3) {
		t.Error("errors with different codes should not match via Is")
	}
}

func TestExitCode(t *testing.T) {
	tests := []struct {
		category ErrorCategory
		code     string
		exit     int
	}{
		{ErrCategoryUsage, CodeBadInvocation, ExitUsage},
		{ErrCategoryParse, CodeMissingField, ExitFatal},
		{ErrCategoryParse, CodeTimeRegression, ExitFatal},
		{ErrCategoryCapacity, CodePoolExhausted, ExitFatal},
		{ErrCategoryTarget, CodeBufferedDevice, ExitFatal},
		{ErrCategoryIO, CodeShortTransfer, ExitOK},
		{ErrCategoryInternal, CodeUnexpected, ExitFatal},
	}

	for _, tt := range tests {
		err := New(tt.category, tt.code, "test")
		if ExitCode(err) != tt.exit {
			t.Errorf("%s:%s exit=%d, want %d", tt.category, tt.code, ExitCode(err), tt.exit)
		}
	}

	if ExitCode(nil) != ExitOK {
		t.Error("nil error should map to ExitOK")
	}
	if ExitCode(fmt.Errorf("plain error")) != ExitFatal {
		t.Error("plain error should map to ExitFatal")
	}
}

func TestExitCodeThroughWrapping(t *testing.T) {
	inner := NewUsageError("target device required")
	outer := fmt.Errorf("startup: %w", inner)
	if ExitCode(outer) != ExitUsage {
		t.Errorf("wrapped usage error exit=%d, want %d", ExitCode(outer), ExitUsage)
	}
}

func TestGetCategory(t *testing.T) {
	err := New(ErrCategoryParse, CodeIllegalValue, "line 9: illegal value for field 'size'")
	if GetCategory(err) != ErrCategoryParse {
		t.Errorf("got %q, want %q", GetCategory(err), ErrCategoryParse)
	}
	if GetCategory(fmt.Errorf("plain error")) != "" {
		t.Error("non-ToshError should return empty category")
	}
}

func TestGetCode(t *testing.T) {
	err := New(ErrCategoryParse, CodeIllegalValue, "line 9: illegal value for field 'size'")
	if GetCode(err) != CodeIllegalValue {
		t.Errorf("got %q, want %q", GetCode(err), CodeIllegalValue)
	}
	if GetCode(fmt.Errorf("plain error")) != "" {
		t.Error("non-ToshError should return empty code")
	}
}

func TestWithDetails(t *testing.T) {
	err := New(ErrCategoryParse, CodeInvalidValue, "bad terminator")
	detailed := err.WithDetails(map[string]interface{}{"line": 41})

	if detailed.Details["line"] != 41 {
		t.Error("WithDetails should set details")
	}
	// Original should be unmodified
	if err.Details != nil {
		t.Error("WithDetails should not modify original")
	}
}

func TestConvenienceConstructors(t *testing.T) {
	cause := fmt.Errorf("io error")

	u := NewUsageError("usage: toshreplay [-c] [-t nworkers] device")
	if u.Category != ErrCategoryUsage || u.ExitCode != ExitUsage {
		t.Error("NewUsageError mismatch")
	}

	p := NewParseError(CodeMissingField, "line 1: missing required field 'size'")
	if p.Category != ErrCategoryParse || p.Code != CodeMissingField {
		t.Error("NewParseError mismatch")
	}

	c := NewCapacityError(CodePoolExhausted, "ran out of workers")
	if c.Category != ErrCategoryCapacity {
		t.Error("NewCapacityError mismatch")
	}

	tg := NewTargetError(CodeOpenFailed, "open failed", cause)
	if tg.Category != ErrCategoryTarget || !errors.Is(tg, cause) {
		t.Error("NewTargetError mismatch")
	}

	io := NewIOError(CodeShortTransfer, "short write", cause)
	if io.Category != ErrCategoryIO || io.ExitCode != ExitOK {
		t.Error("NewIOError mismatch")
	}

	i := NewInternalError("unexpected", cause)
	if i.Category != ErrCategoryInternal || i.Code != CodeUnexpected {
		t.Error("NewInternalError mismatch")
	}
}
