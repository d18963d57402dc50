package errors

import (
	"errors"
	"fmt"
	"log/slog"
	"runtime"
)

// AnnotatedError includes more context than a plain error that is useful for troubleshooting.
type AnnotatedError struct {
	// msg is the error message.
	msg string
	// pc is the program counter for the location of the error provided by runtime.Callers.
	pc uintptr
	// attrs are slog attributes that are added to the log event to provide more context for the error.
	attrs []slog.Attr
	// cause is the wrapped error, if any.
	cause error
}

// New creates a new AnnotatedError with the given message and attributes.
func New(msg string, attrs ...slog.Attr) error {
	return newAnnotated(msg, nil, attrs)
}

// Wrap annotates err with msg and attributes. Returns nil if err is nil.
func Wrap(err error, msg string, attrs ...slog.Attr) error {
	if err == nil {
		return nil
	}
	return newAnnotated(msg, err, attrs)
}

func newAnnotated(msg string, cause error, attrs []slog.Attr) AnnotatedError {
	var pcs [1]uintptr
	// Skip runtime.Callers, this function and the exported constructor.
	runtime.Callers(3, pcs[:]) //nolint:mnd // see above
	return AnnotatedError{
		msg:   msg,
		pc:    pcs[0],
		attrs: attrs,
		cause: cause,
	}
}

// NewSentinel creates a plain error without other context that can be used as sentinel error that can be detected
// with errors.Is.
func NewSentinel(msg string) error {
	return errors.New(msg)
}

// Error implements error interface.
func (err AnnotatedError) Error() string {
	if err.cause == nil {
		return err.msg
	}
	return fmt.Sprintf("%s: %s", err.msg, err.cause.Error())
}

// Unwrap exposes the wrapped error to errors.Is and errors.As.
func (err AnnotatedError) Unwrap() error {
	return err.cause
}

// LogValue formats the error for useful logging.
func (err AnnotatedError) LogValue() slog.Value {
	// Retrieve the source location of the error so that developers can locate it faster.
	frames := runtime.CallersFrames([]uintptr{err.pc})
	source, _ := frames.Next()
	sourceAttr := slog.String("source", fmt.Sprintf("%s:%d", source.File, source.Line))

	attrs := append(
		[]slog.Attr{slog.String("msg", err.Error()), sourceAttr},
		err.attrs...,
	)

	// Include the annotations of wrapped errors so that the whole chain shows up in the logs.
	var inner AnnotatedError
	if err.cause != nil && errors.As(err.cause, &inner) {
		attrs = append(attrs, slog.Any("cause", inner))
	}

	return slog.GroupValue(attrs...)
}

// SlogError is a convenience for logging errors with the key "error".
func SlogError(err error) slog.Attr {
	if valuer, ok := err.(slog.LogValuer); ok { //nolint:errorlint // the outermost error formats the whole chain.
		return slog.Any("error", valuer)
	}
	var annotated AnnotatedError
	if errors.As(err, &annotated) {
		return slog.Any("error", annotated)
	}
	return slog.String("error", err.Error())
}

// As exposes stdlib errors.As.
func As(err error, target any) bool {
	return errors.As(err, target)
}

// Is exposes stdlib errors.Is.
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// Unwrap exposes stdlib errors.Unwrap.
func Unwrap(err error) error {
	return errors.Unwrap(err)
}

// Join exposes stdlib errors.Join.
func Join(errs ...error) error {
	return errors.Join(errs...)
}
