// Package poollog classifies launcher errors per the taxonomy in spec §7
// and renders them through logrus using the bracketed-tag convention the
// original hottub client used for fprintf (now one logrus field per tag).
package poollog

import (
	"fmt"

	"github.com/sirupsen/logrus"
)

// Bucket names one of the three propagation policies from spec §7.
type Bucket string

const (
	// FatalToPooling means: abandon pooling entirely, fall through to a
	// direct VM exec (C6).
	FatalToPooling Bucket = "fatal-to-pooling"

	// FatalToSlot means: abandon this slot only, advance to the next one.
	FatalToSlot Bucket = "fatal-to-slot"

	// Logged means: non-fatal, recorded and execution continues.
	Logged Bucket = "logged"
)

// Error wraps a cause with the bucket that determines how callers should
// react to it, and the component tag that produced it.
type Error struct {
	Bucket    Bucket
	Component string
	Cause     error
}

func (e *Error) Error() string {
	return fmt.Sprintf("[hottub][%s][%s] %v", e.Bucket, e.Component, e.Cause)
}

func (e *Error) Unwrap() error { return e.Cause }

// Wrap builds a bucketed Error. component is a short tag like "fingerprint"
// or "coordinator.run_hottub", matching the original java.c function names.
func Wrap(bucket Bucket, component string, cause error) error {
	if cause == nil {
		return nil
	}
	return &Error{Bucket: bucket, Component: component, Cause: cause}
}

// IsFatalToPooling reports whether err (or a wrapped cause of it) demands
// falling through to the direct exec fallback.
func IsFatalToPooling(err error) bool {
	var e *Error
	return asError(err, &e) && e.Bucket == FatalToPooling
}

// IsFatalToSlot reports whether err demands abandoning the current slot
// only.
func IsFatalToSlot(err error) bool {
	var e *Error
	return asError(err, &e) && e.Bucket == FatalToSlot
}

func asError(err error, target **Error) bool {
	for err != nil {
		if e, ok := err.(*Error); ok {
			*target = e
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}

// Logger is a thin wrapper around a *logrus.Entry scoped to one launcher
// invocation (tagged with its correlation id), handed down pre-scoped to
// callers rather than passing the bare logger around.
type Logger struct {
	entry *logrus.Entry
}

// New builds a Logger writing to the given logrus instance, tagged with a
// correlation id for this invocation (see internal/fingerprint for where
// that id comes from in practice).
func New(base *logrus.Logger, invocationID string) *Logger {
	if base == nil {
		base = logrus.StandardLogger()
	}
	return &Logger{entry: base.WithField("invocation", invocationID)}
}

// WithAttempt returns a Logger scoped additionally to a single launcher
// attempt, distinct from the pool-identity invocation id passed to New:
// the same fingerprint id is shared by every process that ever attaches
// to that pool, while an attempt id (see cmd/java's use of google/uuid)
// names exactly one client's run, so its log lines can be told apart
// from a concurrent sibling hitting the same slot.
func (l *Logger) WithAttempt(attemptID string) *Logger {
	return &Logger{entry: l.entry.WithField("attempt", attemptID)}
}

// Info logs a non-error lifecycle event, e.g. "trying slot 2".
func (l *Logger) Info(component, msg string, args ...any) {
	l.entry.WithField("component", component).Infof(msg, args...)
}

// Error logs a bucketed Error (or wraps cause into one first) at the
// appropriate logrus level: FatalToPooling/FatalToSlot at Warn (the
// launcher recovers), Logged at Info.
func (l *Logger) Error(bucket Bucket, component string, cause error) error {
	wrapped := Wrap(bucket, component, cause)
	entry := l.entry.WithField("component", component).WithField("bucket", string(bucket))
	if bucket == Logged {
		entry.Info(cause)
	} else {
		entry.Warn(cause)
	}
	return wrapped
}
