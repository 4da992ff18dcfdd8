package client

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/go-resty/resty/v2"
)

// ErrNotFound matches 404 responses via errors.Is.
var ErrNotFound = errors.New("not found")

// APIError is a non-2xx response from the server.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("chroma-server: HTTP %d", e.Status)
	}
	return fmt.Sprintf("chroma-server: HTTP %d: %s", e.Status, e.Message)
}

func (e *APIError) Is(target error) bool {
	return target == ErrNotFound && e.Status == http.StatusNotFound
}

// IsNotFound reports whether err is a 404 from the server.
func IsNotFound(err error) bool { return errors.Is(err, ErrNotFound) }

type errorBody struct {
	Error   string `json:"error"`
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func newAPIError(resp *resty.Response) error {
	e := &APIError{Status: resp.StatusCode()}
	if body, ok := resp.Error().(*errorBody); ok && body != nil {
		e.Message = body.Message
		if e.Message == "" {
			e.Message = body.Error
		}
	}
	return e
}
