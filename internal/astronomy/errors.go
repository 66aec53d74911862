package astronomy

import (
	"errors"
	"fmt"
)

// Failure kinds. Use errors.Is to classify errors returned by Client.Fetch.
var (
	ErrNetwork = errors.New("network failure")
	ErrAuth    = errors.New("authentication failure")
)

// RequestError describes a failed events request.
type RequestError struct {
	Kind       error // ErrNetwork or ErrAuth
	StatusCode int
	Body       string
	Err        error
}

func (e *RequestError) Error() string {
	switch {
	case e.Err != nil:
		return fmt.Sprintf("%v: %v", e.Kind, e.Err)
	case e.StatusCode != 0:
		return fmt.Sprintf("%v: HTTP %d: %s", e.Kind, e.StatusCode, e.Body)
	default:
		return e.Kind.Error()
	}
}

func (e *RequestError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}
