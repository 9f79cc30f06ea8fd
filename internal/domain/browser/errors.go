package browser

import (
	"errors"
	"fmt"
)

var (
	ErrBrowserNotFound   = errors.New("no chrome executable found")
	ErrHandleClosed      = errors.New("browser handle closed")
	ErrUnsupportedFormat = errors.New("unsupported screenshot format")
	ErrUnknownKey        = errors.New("unknown key")
	ErrRemoteUnavailable = errors.New("remote devtools endpoint unavailable")
)

// OpError records the browser operation that failed.
type OpError struct {
	Op  string
	Err error
}

func (e *OpError) Error() string {
	return fmt.Sprintf("browser %s: %v", e.Op, e.Err)
}

func (e *OpError) Unwrap() error {
	return e.Err
}

func opErr(op string, err error) error {
	if err == nil {
		return nil
	}
	return &OpError{Op: op, Err: err}
}
