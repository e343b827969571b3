package errors

import "net/http"

type HTTPError struct {
	Code       int
	Message    string
	StatusCode int
}

func NewHTTPError(code int, message string) *HTTPError {
	return &HTTPError{
		Code:    code,
		Message: message,
	}
}

// WithStatus returns a copy of e answered with status instead of 400.
func (e HTTPError) WithStatus(status int) *HTTPError {
	e.StatusCode = status
	return &e
}

func (e HTTPError) Error() string {
	return e.Message
}

func (e HTTPError) Status() int {
	if e.StatusCode == 0 {
		return http.StatusBadRequest
	}
	return e.StatusCode
}
