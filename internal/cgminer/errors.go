package cgminer

import (
	"errors"
	"fmt"
	"io"
)

var (
	// ErrConnectionTimeout is returned when no connection is established within the connect bound.
	ErrConnectionTimeout = errors.New("cgminer: connection timeout")
	// ErrCommandTimeout is returned when a connected daemon does not finish a response in time.
	ErrCommandTimeout = errors.New("cgminer: command timeout")
	// ErrCancelled is returned when the caller's context ends before the exchange settles.
	ErrCancelled = errors.New("cgminer: cancelled")
	// ErrIncompleteResponse is returned when the daemon closes the socket before a terminator.
	ErrIncompleteResponse = fmt.Errorf("cgminer: connection closed before response terminator: %w", io.ErrUnexpectedEOF)
	// ErrResponseTooLarge is returned when Config.MaxResponseBytes is exceeded.
	ErrResponseTooLarge = errors.New("cgminer: response exceeds size limit")
	// ErrInvalidAddress is wrapped by ConnectionError for unusable host/port pairs.
	ErrInvalidAddress = errors.New("invalid daemon address")
)

// ConnectionError reports a failed attempt to open the daemon socket.
type ConnectionError struct {
	Addr string
	Err  error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("cgminer: connect %s: %v", e.Addr, e.Err)
}

func (e *ConnectionError) Unwrap() error {
	return e.Err
}

// ResponseParseError reports a terminated response that is not valid JSON.
// Raw holds the cleaned text that failed to parse.
type ResponseParseError struct {
	Raw string
	Err error
}

func (e *ResponseParseError) Error() string {
	return fmt.Sprintf("cgminer: failed to parse response: %s", e.Raw)
}

func (e *ResponseParseError) Unwrap() error {
	return e.Err
}
