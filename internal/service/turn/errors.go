package turn

import (
	"fmt"

	"github.com/pkg/errors"
)

// ErrBusy is returned synchronously when a turn is already in flight.
var ErrBusy = errors.New("chat turn already in flight")

// TransportError is a network or HTTP status failure of the chat request.
type TransportError struct {
	Op         string
	StatusCode int
	Err        error
}

func (e *TransportError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("chat %s: HTTP error! status: %d", e.Op, e.StatusCode)
	}
	return fmt.Sprintf("chat %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// ServerError carries the content of an error frame sent by the agent.
type ServerError struct {
	Message string
}

func (e *ServerError) Error() string {
	return e.Message
}
