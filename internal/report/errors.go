package report

import "errors"

var (
	// ErrInvalidInput marks input that does not fit the current step. The
	// session re-prompts and keeps its state.
	ErrInvalidInput = errors.New("report: invalid input")

	// ErrUnresolvableReference marks a message link whose target cannot be
	// found or was already removed.
	ErrUnresolvableReference = errors.New("report: unresolvable message reference")

	// ErrNoActiveSession is returned for DM text that neither starts nor
	// continues a report.
	ErrNoActiveSession = errors.New("report: no active session")

	// ErrWrongReporter is returned when a sender other than the owner steps
	// a session.
	ErrWrongReporter = errors.New("report: message from a different user")

	// ErrSessionClosed is returned when stepping a completed or cancelled
	// session.
	ErrSessionClosed = errors.New("report: session already closed")
)
