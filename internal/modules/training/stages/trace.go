package stages

import (
	"fmt"
	"runtime/debug"

	"golang.org/x/xerrors"
)

// RecordedError is returned by Fit after it has already committed the
// failure trace to the record, so callers can keep that text.
type RecordedError struct {
	Err   error
	Trace string
}

func (e *RecordedError) Error() string { return e.Err.Error() }

func (e *RecordedError) Unwrap() error { return e.Err }

// FailureText renders the text stored in data.error: the error chain with
// frames, followed by the one-line message.
func FailureText(err error) string {
	if err == nil {
		return ""
	}
	return fmt.Sprintf("%+v\nMain error: %s", err, err.Error())
}

// guard runs fn and turns a panic into an error carrying the goroutine
// stack. Engine code is not trusted to return errors.
func guard(what string, fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = xerrors.Errorf("%s: panic: %v\n%s", what, r, debug.Stack())
		}
	}()
	if err := fn(); err != nil {
		return xerrors.Errorf("%s: %w", what, err)
	}
	return nil
}
