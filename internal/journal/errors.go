package journal

import "errors"

// ErrMalformedLine is returned by ReadAll/ReadByType when a journal line
// cannot be parsed as JSON. A malformed line is treated as a
// fatal read error; it is never silently skipped.
var ErrMalformedLine = errors.New("journal: malformed line")

// ErrAppendFailed wraps any error that occurs while appending an event.
// Spec.md §4.2 requires the exact prefix "Failed to write journal event" to
// be testable, so ErrAppendFailed.Error() reproduces it verbatim.
type ErrAppendFailed struct {
	Cause error
}

func (e *ErrAppendFailed) Error() string {
	return "Failed to write journal event: " + e.Cause.Error()
}

func (e *ErrAppendFailed) Unwrap() error { return e.Cause }
