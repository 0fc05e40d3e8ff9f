package ingest

import (
	"errors"
	"fmt"

	"github.com/valyala/fasthttp"
)

// Code is a stable, caller-facing error code.
type Code string

const (
	CodeClientIDRequired      Code = "CLIENT_ID_REQUIRED"
	CodeNoRows                Code = "NO_ROWS"
	CodeDecodeFailed          Code = "DECODE_FAILED"
	CodeRawImportTableMissing Code = "RAW_IMPORT_TABLE_MISSING"
	CodeRawImportCreateFailed Code = "RAW_IMPORT_CREATE_FAILED"
	CodeRawRowsInsertFailed   Code = "RAW_ROWS_INSERT_FAILED"
	CodeApplyFailed           Code = "APPLY_FAILED"
	CodeCanonicalTableMissing Code = "CANONICAL_TABLE_MISSING"
)

// Error is the structured failure returned by the coordinator.
type Error struct {
	Code    Code
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// HTTPStatus maps the code to a response status.
func (e *Error) HTTPStatus() int {
	switch e.Code {
	case CodeClientIDRequired, CodeNoRows, CodeDecodeFailed:
		return fasthttp.StatusBadRequest
	default:
		return fasthttp.StatusInternalServerError
	}
}

func newError(code Code, msg string, err error) *Error {
	return &Error{Code: code, Message: msg, Err: err}
}

// CodeOf returns the code carried by err, or "" when err is not an *Error.
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// ErrDecode is wrapped by every DecodeError.
var ErrDecode = errors.New("decode failed")

// DecodeError reports input the tabular decoder could not parse.
type DecodeError struct {
	Line   int
	Reason string
}

func (e *DecodeError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("decode: line %d: %s", e.Line, e.Reason)
	}
	return "decode: " + e.Reason
}

func (e *DecodeError) Unwrap() error { return ErrDecode }
