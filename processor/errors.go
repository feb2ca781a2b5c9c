package processor

import (
	"errors"
	"fmt"
)

// ArgumentParseError is reported back to the model when the accumulated
// function call arguments are not a JSON object.
type ArgumentParseError struct {
	CallID    string
	Name      string
	Arguments string
	Err       error
}

func (e *ArgumentParseError) Error() string {
	return fmt.Sprintf("invalid arguments for %q (call %s): %v", e.Name, e.CallID, e.Err)
}

func (e *ArgumentParseError) Unwrap() error { return e.Err }

var (
	errEmptyArguments = errors.New("empty arguments")
	errNoExecutor     = errors.New("no tool executor configured")
)

type panicError struct {
	value any
}

func (e panicError) Error() string {
	return fmt.Sprintf("panic: %v", e.value)
}
