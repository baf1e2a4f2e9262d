package ref

import "fmt"

// ResolutionError reports a failed reference resolution with the original
// ref string attached.
type ResolutionError struct {
	Ref string
	Err error
}

func (e *ResolutionError) Error() string {
	return fmt.Sprintf("resolve ref %q: %v", e.Ref, e.Err)
}

func (e *ResolutionError) Unwrap() error { return e.Err }

func resolutionErrorf(raw, format string, args ...any) *ResolutionError {
	return &ResolutionError{Ref: raw, Err: fmt.Errorf(format, args...)}
}
