package jira

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// Sentinel errors for common failure modes.
var (
	// ErrIssueNotFound indicates the issue key does not exist or is not visible.
	ErrIssueNotFound = errors.New("issue not found")

	// ErrIssueKeyInvalid indicates a malformed issue key.
	ErrIssueKeyInvalid = errors.New("invalid issue key")

	// ErrTransitionNotFound indicates no transition with the requested name.
	ErrTransitionNotFound = errors.New("transition not found")

	// ErrUnauthorized indicates rejected credentials.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrRateLimited indicates the API is throttling requests.
	ErrRateLimited = errors.New("rate limited")
)

// APIError is a non-2xx response from the Jira API.
type APIError struct {
	StatusCode int
	Path       string
	Messages   []string
}

func (e *APIError) Error() string {
	if len(e.Messages) > 0 {
		return fmt.Sprintf("jira api %s: status %d: %s", e.Path, e.StatusCode, strings.Join(e.Messages, "; "))
	}
	return fmt.Sprintf("jira api %s: status %d", e.Path, e.StatusCode)
}

// Unwrap maps well-known statuses to sentinels.
func (e *APIError) Unwrap() error {
	switch e.StatusCode {
	case http.StatusUnauthorized, http.StatusForbidden:
		return ErrUnauthorized
	case http.StatusNotFound:
		return ErrIssueNotFound
	case http.StatusTooManyRequests:
		return ErrRateLimited
	}
	return nil
}

// apiErrorBody is Jira's error envelope.
type apiErrorBody struct {
	ErrorMessages []string          `json:"errorMessages"`
	Errors        map[string]string `json:"errors"`
}

// parseAPIError builds an APIError from a non-2xx response.
func parseAPIError(resp *http.Response, path string) error {
	apiErr := &APIError{
		StatusCode: resp.StatusCode,
		Path:       path,
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err == nil && len(body) > 0 {
		var envelope apiErrorBody
		if json.Unmarshal(body, &envelope) == nil {
			apiErr.Messages = envelope.ErrorMessages
			for field, msg := range envelope.Errors {
				apiErr.Messages = append(apiErr.Messages, field+": "+msg)
			}
		}
	}
	return apiErr
}
