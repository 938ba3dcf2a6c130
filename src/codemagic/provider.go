package codemagic

import (
	"context"
	"errors"
	"fmt"
	"os"

	"buildwatch-agent/src/provider"
)

func init() {
	// Register the Codemagic provider factory
	provider.Register("codemagic", func(token string) provider.Provider {
		return NewProvider(token, os.Getenv("CODEMAGIC_APP_ID"))
	})
}

// Provider implements provider.Provider for Codemagic
type Provider struct {
	client *Client
	appID  string
}

// NewProvider creates a Codemagic provider with an API token and app ID
func NewProvider(token, appID string) *Provider {
	return &Provider{
		client: NewClient(token),
		appID:  appID,
	}
}

// Name returns "codemagic"
func (p *Provider) Name() string {
	return "codemagic"
}

// Trigger starts a Codemagic build for the requested workflow and branch
func (p *Provider) Trigger(ctx context.Context, req provider.JobRequest) (*provider.JobHandle, error) {
	if p.appID == "" {
		return nil, &provider.TriggerError{Provider: "codemagic", Err: fmt.Errorf("app ID is not configured (set CODEMAGIC_APP_ID)")}
	}

	start := StartBuildRequest{
		AppID:      p.appID,
		WorkflowID: req.Workflow,
		Branch:     req.Ref,
	}
	if req.Environment != "" {
		start.Environment = &BuildEnvironment{
			Variables: map[string]string{"ENVIRONMENT": req.Environment},
		}
	}

	buildID, err := p.client.StartBuild(ctx, start)
	if err != nil {
		return nil, &provider.TriggerError{Provider: "codemagic", Err: err}
	}

	return &provider.JobHandle{
		Provider: "codemagic",
		ID:       buildID,
		Metadata: map[string]string{"appId": p.appID},
	}, nil
}

// Poll fetches the build and maps its status to the normalized vocabulary
func (p *Provider) Poll(ctx context.Context, handle *provider.JobHandle) (*provider.StatusReport, error) {
	build, err := p.client.GetBuild(ctx, handle.ID)
	if err != nil {
		// Not-found and auth failures are permanent; everything else is
		// a transient poll failure the watch loop may retry.
		if errors.Is(err, provider.ErrNotFound) || errors.Is(err, provider.ErrAuthFailed) {
			return nil, err
		}
		return nil, &provider.PollError{Provider: "codemagic", Err: err}
	}

	report := &provider.StatusReport{Status: mapStatus(build.Status)}
	if report.Status == provider.StatusFinished {
		report.Success = true
		report.URL = resultURL(build)
	}
	return report, nil
}

// mapStatus translates Codemagic's build status vocabulary.
func mapStatus(status string) provider.JobStatus {
	switch status {
	case "queued", "preparing":
		return provider.StatusPending
	case "fetching", "building", "testing", "publishing", "finishing":
		return provider.StatusRunning
	case "finished", "warning":
		return provider.StatusFinished
	case "failed":
		return provider.StatusFailed
	case "canceled", "timeout", "skipped":
		return provider.StatusError
	}
	// Unrecognized statuses keep the watch alive rather than aborting it.
	return provider.StatusRunning
}

// resultURL prefers the first artefact; the build page is the fallback.
func resultURL(build *Build) string {
	for _, artefact := range build.Artefacts {
		if artefact.URL != "" {
			return artefact.URL
		}
	}
	return fmt.Sprintf("https://codemagic.io/app/%s/build/%s", build.AppID, build.ID)
}
