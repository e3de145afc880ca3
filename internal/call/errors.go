package call

import (
	"errors"
	"fmt"
)

var (
	ErrRoomFull       = errors.New("room is full")
	ErrPeerLeft       = errors.New("peer left the call")
	ErrSignalingError = errors.New("signaling server error")
	ErrDisconnected   = errors.New("signaling connection lost")
	ErrTimeout        = errors.New("timeout")
	ErrNotConnected   = errors.New("no call in progress")
	ErrClosed         = errors.New("session closed")
)

type CallError struct {
	Op      string
	Err     error
	Details string
}

func (e *CallError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("%s: %v (%s)", e.Op, e.Err, e.Details)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *CallError) Unwrap() error {
	return e.Err
}

func NewError(op string, err error) *CallError {
	return &CallError{Op: op, Err: err}
}

func WrapError(op string, err error, details string) *CallError {
	return &CallError{Op: op, Err: err, Details: details}
}
