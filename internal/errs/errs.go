// Package errs holds the error taxonomy shared by the portability core and the
// ReportError sink every primitive logs through.
package errs

import (
	"errors"
	"fmt"

	"github.com/phuslu/log"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Kind classifies a reported condition.
type Kind uint8

const (
	NoError Kind = iota
	Information
	Warning
	InvalidOperation
	OSError
	Timeout
	UnsupportedFeature
	ParametersError
	FatalError
)

var kindNames = [...]string{
	NoError:            "no_error",
	Information:        "information",
	Warning:            "warning",
	InvalidOperation:   "invalid_operation",
	OSError:            "os_error",
	Timeout:            "timeout",
	UnsupportedFeature: "unsupported_feature",
	ParametersError:    "parameters_error",
	FatalError:         "fatal_error",
}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("kind(%d)", uint8(k))
}

// Sentinel errors. Concrete failures wrap one of these so callers can use errors.Is.
var (
	ErrInvalidOperation   = errors.New("invalid operation")
	ErrOSError            = errors.New("operating system error")
	ErrTimeout            = errors.New("timeout")
	ErrUnsupportedFeature = errors.New("unsupported feature")
	ErrParameters         = errors.New("invalid parameters")
)

// KindOf maps an error back to its Kind. Unknown errors are treated as OSError
// because every other kind is produced by this module.
func KindOf(err error) Kind {
	switch {
	case err == nil:
		return NoError
	case errors.Is(err, ErrTimeout):
		return Timeout
	case errors.Is(err, ErrInvalidOperation):
		return InvalidOperation
	case errors.Is(err, ErrUnsupportedFeature):
		return UnsupportedFeature
	case errors.Is(err, ErrParameters):
		return ParametersError
	default:
		return OSError
	}
}

// Wrap attaches the sentinel for kind to a message and an optional cause.
func Wrap(kind Kind, msg string, cause error) error {
	sentinel := sentinelFor(kind)
	if cause == nil {
		return fmt.Errorf("%s: %w", msg, sentinel)
	}
	return fmt.Errorf("%s: %w: %w", msg, sentinel, cause)
}

func sentinelFor(kind Kind) error {
	switch kind {
	case Timeout:
		return ErrTimeout
	case InvalidOperation:
		return ErrInvalidOperation
	case UnsupportedFeature:
		return ErrUnsupportedFeature
	case ParametersError:
		return ErrParameters
	default:
		return ErrOSError
	}
}

var reported = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "rtthreads_reported_errors_total",
		Help: "Total number of conditions reported by the portability core, by kind.",
	},
	[]string{"kind"},
)

// ReportError logs a condition through the default logger and counts it.
// It never aborts the caller, whatever the kind.
func ReportError(kind Kind, msg string) {
	reported.WithLabelValues(kind.String()).Inc()

	var e *log.Entry
	switch kind {
	case NoError, Information:
		e = log.DefaultLogger.Debug()
	case Warning, Timeout:
		e = log.DefaultLogger.Warn()
	default:
		e = log.DefaultLogger.Error()
	}
	e.Str("kind", kind.String()).Msg(msg)
}

// ReportErr is ReportError for an error value; the kind is derived from err.
func ReportErr(err error, msg string) {
	if err == nil {
		return
	}
	kind := KindOf(err)
	reported.WithLabelValues(kind.String()).Inc()
	log.DefaultLogger.Error().Err(err).Str("kind", kind.String()).Msg(msg)
}
