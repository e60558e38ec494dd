// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package github

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// APIError is a non-2xx GitHub response.
type APIError struct {
	StatusCode int
	Message    string
}

func (err *APIError) Error() string {
	return fmt.Sprintf("github: HTTP %d: %s", err.StatusCode, err.Message)
}

// GitHub signals a primary rate limit with 403 and a recognisable
// message, and a secondary limit with 429.
func (err *APIError) rateLimited() bool {
	if err.StatusCode == http.StatusTooManyRequests {
		return true
	}
	lower := strings.ToLower(err.Message)
	return err.StatusCode == http.StatusForbidden &&
		(strings.Contains(lower, "rate limit") || strings.Contains(lower, "abuse detection"))
}

// IsNotFound reports whether err is a 404 response.
func IsNotFound(err error) bool {
	var apiError *APIError
	return errors.As(err, &apiError) && apiError.StatusCode == http.StatusNotFound
}

// IsRateLimited reports whether err is a rate limit response.
func IsRateLimited(err error) bool {
	var apiError *APIError
	return errors.As(err, &apiError) && apiError.rateLimited()
}

func parseAPIError(status int, body []byte) *APIError {
	apiError := &APIError{StatusCode: status}
	var wire struct {
		Message string `json:"message"`
	}
	if json.Unmarshal(body, &wire) == nil && wire.Message != "" {
		apiError.Message = wire.Message
	} else {
		apiError.Message = strings.TrimSpace(string(body))
	}
	return apiError
}
