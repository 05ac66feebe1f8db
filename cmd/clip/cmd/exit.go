package cmd

import "errors"

// configError marks an error as a configuration failure (spec.md §6 exit
// code 1), as opposed to a fatal runtime error (exit code 2).
type configError struct{ err error }

func (e *configError) Error() string { return e.err.Error() }
func (e *configError) Unwrap() error { return e.err }

func wrapConfigError(err error) error {
	if err == nil {
		return nil
	}
	return &configError{err: err}
}

// exitCodeFor maps a top-level command error to spec.md §6's exit codes:
// 0 clean shutdown, 1 configuration error, 2 fatal runtime error.
func exitCodeFor(err error) int {
	var cfgErr *configError
	if errors.As(err, &cfgErr) {
		return 1
	}
	return 2
}
