package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidCredential is returned by Channel.Connect when the platform
	// rejects the configured token.
	ErrInvalidCredential = errors.New("invalid credential")

	// ErrUnsupportedAction is returned when a platform cannot perform an action kind.
	ErrUnsupportedAction = errors.New("unsupported action")

	// ErrNoRoute is returned when no adapter is registered for an action's source.
	ErrNoRoute = errors.New("no outbound handler for source")
)

// PostFailedError reports an outbound action that did not go through.
// It is never retried.
type PostFailedError struct {
	Source  string
	Channel string
	Text    string
	Err     error
}

func (e *PostFailedError) Error() string {
	return fmt.Sprintf("post to %s channel %s failed: %v", e.Source, e.Channel, e.Err)
}

func (e *PostFailedError) Unwrap() error { return e.Err }

// ConnectError wraps a failure to open a platform stream at startup.
type ConnectError struct {
	Platform string
	Err      error
}

func (e *ConnectError) Error() string {
	if errors.Is(e.Err, ErrInvalidCredential) {
		return fmt.Sprintf("connection failed (%s): invalid credential; check the bot token", e.Platform)
	}
	return fmt.Sprintf("connection failed (%s): %v", e.Platform, e.Err)
}

func (e *ConnectError) Unwrap() error { return e.Err }
