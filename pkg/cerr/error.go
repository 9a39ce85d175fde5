package cerr

import (
	"errors"
	"fmt"
	"runtime"
)

type Error struct {
	Code  Code
	Msg   string // message shown to the operator together with the code
	Err   error  // underlying error kept for logs
	Stack string // stack trace, only captured for severe codes
}

func NewError(code Code, msg string, underlying error) *Error {
	err := &Error{
		Code: code,
		Msg:  msg,
		Err:  underlying,
	}
	if code.severe() {
		stackTrace := make([]byte, 2048)
		n := runtime.Stack(stackTrace, false)
		err.Stack = string(stackTrace[0:n])
	}
	return err
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("[%s] %s", e.Code.String(), e.Msg)
	}
	return fmt.Sprintf("[%s] %s: %s", e.Code.String(), e.Msg, e.Err.Error())
}

func (e *Error) Unwrap() error {
	return e.Err
}

// CodeOf extracts the Code from err, or Internal when err is not a cerr
// error. A nil err yields OK.
func CodeOf(err error) Code {
	if err == nil {
		return OK
	}
	var cerr *Error
	if errors.As(err, &cerr) {
		return cerr.Code
	}
	return Internal
}

// IsCode reports whether err carries the given code.
func IsCode(err error, code Code) bool {
	return CodeOf(err) == code
}
