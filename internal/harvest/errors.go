package harvest

import (
	"errors"
	"fmt"
)

// Common errors returned by the harvester.
var (
	// ErrNetworkError indicates a connectivity problem with the repository.
	ErrNetworkError = errors.New("network error communicating with repository")

	// ErrInvalidResponse indicates an unexpected repository response.
	ErrInvalidResponse = errors.New("invalid response from repository")
)

// APIError represents an HTTP-level error from a DSpace repository.
type APIError struct {
	StatusCode int
	Repository string
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("repository error (status %d, %s): %s", e.StatusCode, e.Repository, e.Message)
}
