package proto

import (
	"errors"
	"fmt"
)

// ErrAborted is matched by every AbortError.
var ErrAborted = errors.New("call aborted")

// EncodingError means an outbound command could not be serialized. Nothing
// was sent.
type EncodingError struct {
	Err error
}

func (e *EncodingError) Error() string {
	return fmt.Sprintf("encode command: %v", e.Err)
}

func (e *EncodingError) Unwrap() error {
	return e.Err
}

// DecodingError means an inbound frame was not a JSON object.
type DecodingError struct {
	Err error
}

func (e *DecodingError) Error() string {
	return fmt.Sprintf("decode frame: %v", e.Err)
}

func (e *DecodingError) Unwrap() error {
	return e.Err
}

// ProtocolError carries an error reported by the service.
type ProtocolError struct {
	Message string
}

func (e *ProtocolError) Error() string {
	return e.Message
}

// TransportError wraps a failure of the underlying socket.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// AbortError resolves calls that were pending when the connection closed.
type AbortError struct {
	Reason error
}

func (e *AbortError) Error() string {
	if e.Reason == nil {
		return ErrAborted.Error()
	}
	return fmt.Sprintf("%v: %v", ErrAborted, e.Reason)
}

func (e *AbortError) Is(target error) bool {
	return target == ErrAborted
}

func (e *AbortError) Unwrap() error {
	return e.Reason
}
