// Package codemagic provides a client for the Codemagic build API.
package codemagic

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"buildwatch-agent/src/provider"
)

// Client is a Codemagic API client.
type Client struct {
	apiToken   string
	httpClient *http.Client
	baseURL    string
}

// NewClient creates a new Codemagic API client.
func NewClient(apiToken string) *Client {
	return &Client{
		apiToken: apiToken,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		baseURL: "https://api.codemagic.io",
	}
}

// StartBuildRequest is the body for POST /builds.
type StartBuildRequest struct {
	AppID       string            `json:"appId"`
	WorkflowID  string            `json:"workflowId"`
	Branch      string            `json:"branch"`
	Environment *BuildEnvironment `json:"environment,omitempty"`
}

// BuildEnvironment carries build-time variables.
type BuildEnvironment struct {
	Variables map[string]string `json:"variables"`
}

type startBuildResponse struct {
	BuildID string `json:"buildId"`
}

// Build is a Codemagic build as returned by GET /builds/{id}.
type Build struct {
	ID         string     `json:"_id"`
	AppID      string     `json:"appId"`
	WorkflowID string     `json:"workflowId"`
	Branch     string     `json:"branch"`
	Status     string     `json:"status"`
	StartedAt  time.Time  `json:"startedAt"`
	Artefacts  []Artefact `json:"artefacts"`
}

// Artefact is a file produced by a finished build.
type Artefact struct {
	Name      string `json:"name"`
	Type      string `json:"type"`
	URL       string `json:"url"`
	SizeBytes int64  `json:"size"`
}

type getBuildResponse struct {
	Build Build `json:"build"`
}

// StartBuild submits a new build and returns its build ID.
func (c *Client) StartBuild(ctx context.Context, req StartBuildRequest) (string, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("failed to encode request: %w", err)
	}

	url := fmt.Sprintf("%s/builds", c.baseURL)
	httpReq, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}

	httpReq.Header.Set("x-auth-token", c.apiToken)
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return "", fmt.Errorf("%w: status %d", provider.ErrAuthFailed, resp.StatusCode)
	}
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		respBody, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("API request failed with status %d: %s", resp.StatusCode, string(respBody))
	}

	var started startBuildResponse
	if err := json.NewDecoder(resp.Body).Decode(&started); err != nil {
		return "", fmt.Errorf("failed to decode response: %w", err)
	}
	if started.BuildID == "" {
		return "", fmt.Errorf("response missing buildId")
	}

	return started.BuildID, nil
}

// GetBuild fetches a build's current state.
func (c *Client) GetBuild(ctx context.Context, buildID string) (*Build, error) {
	url := fmt.Sprintf("%s/builds/%s", c.baseURL, buildID)

	req, err := http.NewRequestWithContext(ctx, "GET", url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("x-auth-token", c.apiToken)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, fmt.Errorf("%w: build %s", provider.ErrNotFound, buildID)
	}
	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return nil, fmt.Errorf("%w: status %d", provider.ErrAuthFailed, resp.StatusCode)
	}
	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("API request failed with status %d: %s", resp.StatusCode, string(respBody))
	}

	var wrapped getBuildResponse
	if err := json.NewDecoder(resp.Body).Decode(&wrapped); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	return &wrapped.Build, nil
}
