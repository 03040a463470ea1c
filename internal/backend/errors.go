package backend

import (
	"errors"
	"fmt"
)

// TransportError covers an unreachable backend and non-2xx answers.
type TransportError struct {
	StatusCode int
	Body       string
	Err        error
}

func (e *TransportError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("backend transport: %v", e.Err)
	}
	if e.Body == "" {
		return fmt.Sprintf("backend status=%d", e.StatusCode)
	}
	return fmt.Sprintf("backend status=%d body=%s", e.StatusCode, trimText(e.Body, 200))
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// DecodeError means the backend answered but not with a result object.
type DecodeError struct {
	Err error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode backend response: %v", e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

func IsTransport(err error) bool {
	var te *TransportError
	return errors.As(err, &te)
}

func IsDecode(err error) bool {
	var de *DecodeError
	return errors.As(err, &de)
}
