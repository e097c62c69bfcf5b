package rpc

import (
	"errors"
	"fmt"
	"io"
)

// Error kinds; match with errors.Is against a wrapped *Error.
var (
	ErrUnexpectedEOF = errors.New("unexpected eof")
	ErrUtf8          = errors.New("invalid utf-8")
	ErrIO            = errors.New("i/o error")
	ErrSerde         = errors.New("serde error")
	ErrDb            = errors.New("database error")
	ErrInvalidData   = errors.New("invalid data")
	ErrOutOfMemory   = errors.New("out of memory")
	ErrTodo          = errors.New("not implemented")
)

// Error pairs a kind with detail and an optional cause.
type Error struct {
	kind  error
	msg   string
	cause error
}

func (e *Error) Error() string {
	switch {
	case e.msg != "" && e.cause != nil:
		return e.kind.Error() + ": " + e.msg + ": " + e.cause.Error()
	case e.msg != "":
		return e.kind.Error() + ": " + e.msg
	case e.cause != nil:
		return e.kind.Error() + ": " + e.cause.Error()
	}
	return e.kind.Error()
}

func (e *Error) Is(target error) bool { return target == e.kind }

func (e *Error) Unwrap() error { return e.cause }

func invalidf(format string, args ...any) error {
	return &Error{kind: ErrInvalidData, msg: fmt.Sprintf(format, args...)}
}

func serdef(format string, args ...any) error {
	return &Error{kind: ErrSerde, msg: fmt.Sprintf(format, args...)}
}

func utf8Err(msg string) error {
	return &Error{kind: ErrUtf8, msg: msg}
}

// ioErr classifies a transport error: stream closed mid-frame is
// UnexpectedEOF, anything else IO.
func ioErr(err error) error {
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return &Error{kind: ErrUnexpectedEOF, cause: err}
	}
	return &Error{kind: ErrIO, cause: err}
}

// DbErr forwards a persistence failure through the protocol error
// channel without interpreting it.
func DbErr(err error) error {
	return &Error{kind: ErrDb, cause: err}
}
