package api

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/vocdoni/aztec-rpc/log"
)

// Error is an API error: an error code, the HTTP status it is written with
// and the underlying error.
type Error struct {
	Err        error
	Code       int
	HTTPstatus int
}

// MarshalJSON returns the JSON body of the error.
func (e Error) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Error string `json:"error"`
		Code  int    `json:"code"`
	}{Error: e.Err.Error(), Code: e.Code})
}

// Error returns the message of the error.
func (e Error) Error() string {
	return e.Err.Error()
}

// Unwrap returns the underlying error.
func (e Error) Unwrap() error {
	return e.Err
}

// Write writes the error to w as JSON with its HTTP status.
func (e Error) Write(w http.ResponseWriter) {
	msg, err := json.Marshal(e)
	if err != nil {
		log.Warnw("failed to marshal api error", "error", err.Error())
		http.Error(w, e.Error(), e.HTTPstatus)
		return
	}
	if log.Level() == log.LogLevelDebug {
		log.Debugw("api error response", "code", e.Code, "error", e.Error())
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(e.HTTPstatus)
	if _, err := w.Write(msg); err != nil {
		log.Warnw("failed to write api error", "error", err.Error())
	}
}

// Withf returns a copy of the error with a formatted detail appended.
func (e Error) Withf(format string, args ...any) Error {
	return Error{
		Err:        fmt.Errorf("%w: %v", e.Err, fmt.Sprintf(format, args...)),
		Code:       e.Code,
		HTTPstatus: e.HTTPstatus,
	}
}

// With returns a copy of the error with s appended.
func (e Error) With(s string) Error {
	return e.Withf("%s", s)
}

// WithErr returns a copy of the error with the message of err appended.
func (e Error) WithErr(err error) Error {
	return e.Withf("%v", err)
}
