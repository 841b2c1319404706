package oidcclient

import (
	"fmt"
	"net/http"

	"github.com/jrsteele09/fixit-auth/internal/errors"
	"github.com/tidwall/gjson"
	"golang.org/x/oauth2"
)

// BackendError is an error response from the identity backend.
type BackendError struct {
	StatusCode  int
	Code        string
	Description string
}

func (e *BackendError) Error() string {
	if e.Description == "" {
		return fmt.Sprintf("identity backend: %d %s", e.StatusCode, e.Code)
	}
	return fmt.Sprintf("identity backend: %d %s: %s", e.StatusCode, e.Code, e.Description)
}

// Unwrap maps credential rejections onto ErrInvalidToken.
func (e *BackendError) Unwrap() error {
	if e.Rejected() {
		return errors.ErrInvalidToken
	}
	return nil
}

// Rejected reports whether the backend refused the credential itself, as
// opposed to failing for a transient reason.
func (e *BackendError) Rejected() bool {
	switch e.Code {
	case "invalid_grant", "invalid_request", "invalid_token", "flow_state_not_found", "flow_state_expired", "bad_code_verifier":
		return true
	}
	return e.StatusCode >= http.StatusBadRequest && e.StatusCode < http.StatusInternalServerError && e.StatusCode != http.StatusTooManyRequests
}

// describeError turns an oauth2 retrieve error into a BackendError. The body
// is read with gjson because backends disagree on field names: RFC 6749 uses
// error/error_description, others send error_code/msg.
func describeError(err error) error {
	var re *oauth2.RetrieveError
	if !errors.As(err, &re) {
		return err
	}

	be := &BackendError{Code: re.ErrorCode, Description: re.ErrorDescription}
	if re.Response != nil {
		be.StatusCode = re.Response.StatusCode
	}
	if be.Code == "" {
		be.Code = firstString(re.Body, "error", "error_code", "code")
	}
	if be.Description == "" {
		be.Description = firstString(re.Body, "error_description", "msg", "message")
	}
	return be
}

func firstString(body []byte, paths ...string) string {
	if !gjson.ValidBytes(body) {
		return ""
	}
	for _, p := range paths {
		if v := gjson.GetBytes(body, p); v.Exists() && v.String() != "" {
			return v.String()
		}
	}
	return ""
}
