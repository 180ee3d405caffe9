package webdav

import (
	"fmt"
	"net/http"

	"github.com/pkg/errors"

	"github.com/davgo/webdav/internal"
)

// ErrorKind classifies the failures reported by Client operations.
type ErrorKind int

const (
	// KindProtocol means the server answered with a status code the operation
	// does not accept.
	KindProtocol ErrorKind = iota + 1
	// KindConflict is a 409 Conflict answer to MKCOL: a missing ancestor or an
	// already existing target.
	KindConflict
	// KindParse means the response body was not a usable multistatus document.
	KindParse
	// KindPrecondition means a caller argument was rejected before any request
	// was sent.
	KindPrecondition
)

func (k ErrorKind) String() string {
	switch k {
	case KindProtocol:
		return "protocol"
	case KindConflict:
		return "conflict"
	case KindParse:
		return "parse"
	case KindPrecondition:
		return "precondition"
	}
	return fmt.Sprintf("ErrorKind(%d)", int(k))
}

// Error is returned for failures detected by the client. Transport failures,
// including context cancellation, are returned unchanged instead.
type Error struct {
	Kind ErrorKind
	// Code is the HTTP status code, zero when no response was involved.
	Code int
	// Op describes the failed operation.
	Op  string
	Err error
}

func (err *Error) Error() string {
	s := "webdav: " + err.Op
	if err.Code != 0 {
		s = fmt.Sprintf("%v: %v %v", s, err.Code, http.StatusText(err.Code))
	}
	if err.Err != nil {
		s = fmt.Sprintf("%v: %v", s, err.Err)
	}
	return s
}

func (err *Error) Unwrap() error {
	return err.Err
}

func protocolError(op string, resp *http.Response) *Error {
	return &Error{Kind: KindProtocol, Code: resp.StatusCode, Op: op, Err: internal.ResponseDetail(resp)}
}

func conflictError(op string, resp *http.Response) *Error {
	return &Error{Kind: KindConflict, Code: resp.StatusCode, Op: op, Err: internal.ResponseDetail(resp)}
}

func parseError(op string, err error) *Error {
	return &Error{Kind: KindParse, Op: op, Err: err}
}

func preconditionErrorf(op string, format string, a ...interface{}) *Error {
	return &Error{Kind: KindPrecondition, Op: op, Err: errors.Errorf(format, a...)}
}

// IsKind reports whether err is an *Error of the given kind.
func IsKind(err error, kind ErrorKind) bool {
	var e *Error
	return errors.As(err, &e) && e.Kind == kind
}

// IsConflict reports whether err is a MKCOL conflict.
func IsConflict(err error) bool {
	return IsKind(err, KindConflict)
}

// IsNotFound reports whether the server answered 404 Not Found.
func IsNotFound(err error) bool {
	return StatusCode(err) == http.StatusNotFound
}

// StatusCode returns the HTTP status code carried by err, or zero.
func StatusCode(err error) int {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return 0
}
