package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

// DefaultClientTimeout is the default timeout for API requests.
const DefaultClientTimeout = 10 * time.Second

var apiClient = &http.Client{Timeout: DefaultClientTimeout}

// apiError carries the status and message of a failed API call. Body is
// the raw response so callers can decode a partial result.
type apiError struct {
	Status  int
	Message string
	Body    []byte
}

func (e *apiError) Error() string {
	return fmt.Sprintf("API error (%d): %s", e.Status, e.Message)
}

func apiGet(path string) ([]byte, error) {
	return apiCall(http.MethodGet, path, nil)
}

func apiPost(path string, data any) ([]byte, error) {
	return apiCall(http.MethodPost, path, data)
}

// apiCall sends data as JSON to the daemon and returns the response body.
// Responses with status >= 400 become *apiError.
func apiCall(method, path string, data any) ([]byte, error) {
	var payload io.Reader
	if data != nil {
		b, err := json.Marshal(data)
		if err != nil {
			return nil, err
		}
		payload = bytes.NewReader(b)
	}

	req, err := http.NewRequest(method, apiAddr+path, payload)
	if err != nil {
		return nil, err
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := apiClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("API request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 400 {
		return body, nil
	}

	apiErr := &apiError{Status: resp.StatusCode, Message: string(bytes.TrimSpace(body)), Body: body}
	var e struct {
		Error string `json:"error"`
	}
	if json.Unmarshal(body, &e) == nil && e.Error != "" {
		apiErr.Message = e.Error
	}
	return nil, apiErr
}

// HealthResponse matches the server's health response structure.
type HealthResponse struct {
	OK      bool   `json:"ok"`
	DB      string `json:"db"`
	Version string `json:"version"`
	Time    string `json:"time"`
}

// CheckHealth queries /health. An unhealthy daemon answers 503 with a
// payload, which is returned together with the error.
func CheckHealth() (*HealthResponse, error) {
	body, err := apiGet("/health")
	var apiErr *apiError
	if err != nil {
		if !errors.As(err, &apiErr) {
			return nil, err
		}
		body = apiErr.Body
	}

	var health HealthResponse
	if jerr := json.Unmarshal(body, &health); jerr != nil {
		return nil, fmt.Errorf("failed to parse health response: %w", jerr)
	}
	if err != nil {
		return &health, fmt.Errorf("health check failed: %w", err)
	}
	return &health, nil
}
