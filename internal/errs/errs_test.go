package errs

import (
	"errors"
	"testing"
)

func TestKindOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Kind
	}{
		{"nil", nil, NoError},
		{"timeout sentinel", ErrTimeout, Timeout},
		{"wrapped invalid operation", Wrap(InvalidOperation, "semaphore not open", nil), InvalidOperation},
		{"wrapped unsupported", Wrap(UnsupportedFeature, "mode 42", nil), UnsupportedFeature},
		{"wrapped parameters", Wrap(ParametersError, "empty name", nil), ParametersError},
		{"foreign error", errors.New("EBADF"), OSError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := KindOf(tt.err); got != tt.want {
				t.Errorf("KindOf(%v) = %s, want %s", tt.err, got, tt.want)
			}
		})
	}
}

func TestWrapKeepsCause(t *testing.T) {
	cause := errors.New("eventfd: too many open files")
	err := Wrap(OSError, "synchronizer open", cause)
	if !errors.Is(err, ErrOSError) {
		t.Errorf("expected %v to match ErrOSError", err)
	}
	if !errors.Is(err, cause) {
		t.Errorf("expected %v to keep its cause", err)
	}
}

func TestKindString(t *testing.T) {
	if Timeout.String() != "timeout" {
		t.Errorf("Timeout.String() = %q", Timeout.String())
	}
	if Kind(200).String() != "kind(200)" {
		t.Errorf("unexpected name for unknown kind: %q", Kind(200).String())
	}
}

func TestReportErrorDoesNotPanic(t *testing.T) {
	for k := NoError; k <= FatalError; k++ {
		ReportError(k, "report "+k.String())
	}
	ReportErr(nil, "ignored")
	ReportErr(ErrTimeout, "timed out")
}
