package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
)

// Error kinds. Every error returned by Client matches exactly one of them
// with errors.Is.
var (
	ErrTransport  = fmt.Errorf("transport failure")
	ErrAuth       = fmt.Errorf("not authenticated")
	ErrForbidden  = fmt.Errorf("forbidden")
	ErrNotFound   = fmt.Errorf("not found")
	ErrValidation = fmt.Errorf("invalid input")
)

type Error struct {
	Kind   error
	Op     string
	Status int
	Msg    string
	Err    error
}

func (e *Error) Error() string {
	var sb strings.Builder
	sb.WriteString(e.Op)
	sb.WriteString(": ")
	sb.WriteString(e.Kind.Error())
	if e.Msg != "" {
		sb.WriteString(": ")
		sb.WriteString(e.Msg)
	}
	if e.Err != nil {
		sb.WriteString(": ")
		sb.WriteString(e.Err.Error())
	}
	return sb.String()
}

func (e *Error) Unwrap() []error {
	if e.Err != nil {
		return []error{e.Kind, e.Err}
	}
	return []error{e.Kind}
}

// statusError maps a non-2xx backend response to an Error.
func statusError(op string, status int, body []byte) *Error {
	e := &Error{Op: op, Status: status, Msg: errMessage(body)}
	switch status {
	case http.StatusBadRequest, http.StatusUnprocessableEntity:
		e.Kind = ErrValidation
	case http.StatusUnauthorized:
		e.Kind = ErrAuth
	case http.StatusForbidden:
		e.Kind = ErrForbidden
	case http.StatusNotFound:
		e.Kind = ErrNotFound
	default:
		e.Kind = ErrTransport
	}
	if e.Msg == "" {
		e.Msg = http.StatusText(status)
	}
	return e
}

// errMessage extracts the backend's failure text from a JSON object body of
// the form {"err": "..."} or {"error": "..."}.
func errMessage(body []byte) string {
	body = bytes.TrimSpace(body)
	if len(body) == 0 || body[0] != '{' {
		return ""
	}

	var payload struct {
		Err   string `json:"err"`
		Error string `json:"error"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return ""
	}
	if payload.Err != "" {
		return payload.Err
	}
	return payload.Error
}
