package canvas

import (
	"errors"
	"fmt"
	"net/http"
)

// APIError is a non-2xx response from the Canvas REST API.
type APIError struct {
	StatusCode int
	Method     string
	URL        string
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("canvas api: %s %s returned %d: %s", e.Method, e.URL, e.StatusCode, e.Body)
}

// IsConflict reports whether the error is the 400-class response Canvas
// returns when the SIS id is already taken by an existing course.
func (e *APIError) IsConflict() bool {
	return e.StatusCode == http.StatusBadRequest
}

func (e *APIError) IsNotFound() bool {
	return e.StatusCode == http.StatusNotFound
}

// AsAPIError unwraps err into an *APIError if there is one in the chain.
func AsAPIError(err error) (*APIError, bool) {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr, true
	}
	return nil, false
}
