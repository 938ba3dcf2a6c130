// Package githubactions provides a client and provider for GitHub Actions
// workflow_dispatch builds.
package githubactions

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"buildwatch-agent/src/provider"
)

func init() {
	// Register the GitHub Actions provider factory
	provider.Register("github", func(token string) provider.Provider {
		return NewProvider(token, os.Getenv("GITHUB_REPO"))
	})
}

// Provider implements provider.Provider for GitHub Actions
type Provider struct {
	client *Client
	owner  string
	repo   string

	// The dispatches endpoint returns 204 with no run ID, so the provider
	// lists recent runs until the dispatched one appears.
	lookupAttempts int
	lookupInterval time.Duration
}

// NewProvider creates a GitHub Actions provider. ownerRepo is "owner/repo".
func NewProvider(token, ownerRepo string) *Provider {
	owner, repo, _ := strings.Cut(ownerRepo, "/")
	return &Provider{
		client:         NewClient(token),
		owner:          owner,
		repo:           repo,
		lookupAttempts: 10,
		lookupInterval: 2 * time.Second,
	}
}

// Name returns "github"
func (p *Provider) Name() string {
	return "github"
}

// Trigger dispatches the workflow and resolves the resulting run ID
func (p *Provider) Trigger(ctx context.Context, req provider.JobRequest) (*provider.JobHandle, error) {
	if p.owner == "" || p.repo == "" {
		return nil, &provider.TriggerError{Provider: "github", Err: fmt.Errorf("repository is not configured (set GITHUB_REPO to owner/repo)")}
	}

	var inputs map[string]string
	if req.Environment != "" {
		inputs = map[string]string{"environment": req.Environment}
	}

	// Clock skew between us and GitHub can put the run's created_at
	// slightly before the dispatch call.
	since := time.Now().UTC().Add(-time.Minute)

	if err := p.client.DispatchWorkflow(ctx, p.owner, p.repo, req.Workflow, req.Ref, inputs); err != nil {
		return nil, &provider.TriggerError{Provider: "github", Err: err}
	}

	run, err := p.findDispatchedRun(ctx, req, since)
	if err != nil {
		return nil, &provider.TriggerError{Provider: "github", Err: err}
	}

	return &provider.JobHandle{
		Provider: "github",
		ID:       strconv.FormatInt(run.ID, 10),
		Metadata: map[string]string{"owner": p.owner, "repo": p.repo},
	}, nil
}

// findDispatchedRun polls the runs list until a workflow_dispatch run created
// at or after the dispatch time shows up.
func (p *Provider) findDispatchedRun(ctx context.Context, req provider.JobRequest, since time.Time) (*WorkflowRun, error) {
	for attempt := 0; attempt < p.lookupAttempts; attempt++ {
		if attempt > 0 {
			timer := time.NewTimer(p.lookupInterval)
			select {
			case <-ctx.Done():
				timer.Stop()
				return nil, ctx.Err()
			case <-timer.C:
			}
		}

		runs, err := p.client.ListWorkflowRuns(ctx, p.owner, p.repo, req.Workflow, req.Ref, since)
		if err != nil {
			return nil, err
		}
		if len(runs) > 0 {
			// Newest first; the most recent run is the one just dispatched.
			return &runs[0], nil
		}
	}

	return nil, fmt.Errorf("dispatched run did not appear after %d attempts", p.lookupAttempts)
}

// Poll fetches the run and maps status/conclusion to the normalized vocabulary
func (p *Provider) Poll(ctx context.Context, handle *provider.JobHandle) (*provider.StatusReport, error) {
	runID, err := strconv.ParseInt(handle.ID, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid run ID %q", provider.ErrNotFound, handle.ID)
	}

	owner := handle.Metadata["owner"]
	repo := handle.Metadata["repo"]
	if owner == "" {
		owner = p.owner
	}
	if repo == "" {
		repo = p.repo
	}

	run, err := p.client.GetWorkflowRun(ctx, owner, repo, runID)
	if err != nil {
		if errors.Is(err, provider.ErrNotFound) || errors.Is(err, provider.ErrAuthFailed) {
			return nil, err
		}
		return nil, &provider.PollError{Provider: "github", Err: err}
	}

	report := &provider.StatusReport{Status: mapRunStatus(run.Status, run.Conclusion)}
	if report.Status == provider.StatusFinished {
		report.Success = run.Conclusion == "success"
		report.URL = run.HTMLURL
	}
	return report, nil
}

// mapRunStatus translates GitHub's status/conclusion pair.
func mapRunStatus(status, conclusion string) provider.JobStatus {
	switch status {
	case "queued", "waiting", "pending", "requested":
		return provider.StatusPending
	case "in_progress":
		return provider.StatusRunning
	case "completed":
		switch conclusion {
		case "success", "neutral":
			return provider.StatusFinished
		case "failure", "timed_out":
			return provider.StatusFailed
		default: // cancelled, skipped, stale, action_required
			return provider.StatusError
		}
	}
	return provider.StatusRunning
}
