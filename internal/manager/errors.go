package manager

import "fmt"

// validationError signals a bad request shape or out-of-range parameter.
// The resource is never touched on this path.
type validationError struct{ msg string }

func (e validationError) Error() string { return e.msg }

// ErrValidation constructs a validationError.
func ErrValidation(format string, args ...any) error {
	return validationError{msg: fmt.Sprintf(format, args...)}
}

// IsValidation reports whether err is a request validation failure (400).
func IsValidation(err error) bool {
	_, ok := err.(validationError)
	return ok
}

// notReadyError signals the pipeline is not serving yet (or failed).
type notReadyError struct{ state State }

func (e notReadyError) Error() string { return "service not ready: state=" + string(e.state) }

// ErrNotReady constructs a notReadyError for the given state.
func ErrNotReady(state State) error { return notReadyError{state: state} }

// IsNotReady reports whether err maps to 503 Service Unavailable.
func IsNotReady(err error) bool {
	_, ok := err.(notReadyError)
	return ok
}

// invalidImageError signals malformed input image bytes. Caught and
// translated, never fatal to the process.
type invalidImageError struct{ err error }

func (e invalidImageError) Error() string { return "invalid input image: " + e.err.Error() }
func (e invalidImageError) Unwrap() error { return e.err }

// ErrInvalidImage constructs an invalidImageError.
func ErrInvalidImage(err error) error { return invalidImageError{err: err} }

// IsInvalidImage reports whether err indicates undecodable upload bytes (400).
func IsInvalidImage(err error) bool {
	_, ok := err.(invalidImageError)
	return ok
}

// tooBusyError signals admission queue overflow or wait timeout for 429
// mapping.
type tooBusyError struct{ reason string }

func (e tooBusyError) Error() string { return "too busy: " + e.reason }

// ErrTooBusy constructs a tooBusyError.
func ErrTooBusy(reason string) error { return tooBusyError{reason: reason} }

// IsTooBusy reports whether err indicates backpressure (return 429).
func IsTooBusy(err error) bool {
	_, ok := err.(tooBusyError)
	return ok
}

// pipelineError wraps a failure inside the model invocation (OOM, shape
// mismatch, divergence, runner transport). Maps to 500; the process stays up
// and the admission ticket is still released.
type pipelineError struct{ err error }

func (e pipelineError) Error() string { return "pipeline: " + e.err.Error() }
func (e pipelineError) Unwrap() error { return e.err }

// ErrPipeline constructs a pipelineError.
func ErrPipeline(err error) error { return pipelineError{err: err} }

// IsPipelineFailure reports whether err is a resource-side generation failure.
func IsPipelineFailure(err error) bool {
	_, ok := err.(pipelineError)
	return ok
}

// startupError marks a fatal initialization failure. The manager stays in
// StateFailed and never serves generation traffic.
type startupError struct {
	stage string
	err   error
}

func (e startupError) Error() string { return "startup (" + e.stage + "): " + e.err.Error() }
func (e startupError) Unwrap() error { return e.err }

// IsStartup reports whether err originated in the startup sequencer.
func IsStartup(err error) bool {
	_, ok := err.(startupError)
	return ok
}

// Kind returns a stable machine-readable kind string for an error produced
// by this package, for use in wire-level error bodies.
func Kind(err error) string {
	switch {
	case IsValidation(err):
		return "validation_error"
	case IsInvalidImage(err):
		return "invalid_input"
	case IsNotReady(err):
		return "service_unavailable"
	case IsTooBusy(err):
		return "too_busy"
	case IsPipelineFailure(err):
		return "resource_error"
	case IsStartup(err):
		return "startup_error"
	default:
		return "internal_error"
	}
}
