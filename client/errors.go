package client

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
)

// ErrReauthRequired marks terminal authentication failure: the refresh call
// failed, or a request still got a 401 after a successful refresh. The
// pipeline never navigates anywhere itself; callers detect this with
// errors.Is and decide whether to send the user back to sign-in.
var ErrReauthRequired = errors.New("re-authentication required")

type reauthError struct {
	err error
}

func (e *reauthError) Error() string {
	if e.err == nil {
		return ErrReauthRequired.Error()
	}
	return fmt.Sprintf("%s: %s", ErrReauthRequired, e.err)
}

func (e *reauthError) Unwrap() error { return e.err }

func (e *reauthError) Is(target error) bool { return target == ErrReauthRequired }

// APIError is a non-401 error status decoded from the backend's
// {"error": "..."} body. The message is the server's, passed through
// verbatim so invalid-coupon or kitchen-mismatch rejections read exactly as
// the backend phrased them.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error (%d): %s", e.StatusCode, e.Message)
}

// IsStatus reports whether err is an APIError with the given status code.
func IsStatus(err error, code int) bool {
	var ae *APIError
	return errors.As(err, &ae) && ae.StatusCode == code
}

func errorFromResponse(resp *http.Response) error {
	var body struct {
		Error string `json:"error"`
	}
	msg := http.StatusText(resp.StatusCode)
	if b, err := io.ReadAll(io.LimitReader(resp.Body, 1<<16)); err == nil {
		if jerr := json.Unmarshal(b, &body); jerr == nil && body.Error != "" {
			msg = body.Error
		}
	}
	return &APIError{StatusCode: resp.StatusCode, Message: msg}
}
