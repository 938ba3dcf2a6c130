//go:build integration

package integration

import (
	"context"
	"os"
	"testing"

	"buildwatch-agent/src/githubactions"
	"buildwatch-agent/src/provider"
)

func TestGitHubActionsIntegration(t *testing.T) {
	token := os.Getenv("GITHUB_TOKEN")
	if token == "" {
		t.Skip("GITHUB_TOKEN not set, skipping integration test")
	}

	repo := os.Getenv("TEST_GITHUB_REPO")
	if repo == "" {
		t.Skip("TEST_GITHUB_REPO not set, skipping integration test")
	}

	workflow := os.Getenv("TEST_GITHUB_WORKFLOW")
	if workflow == "" {
		t.Skip("TEST_GITHUB_WORKFLOW not set, skipping integration test")
	}

	branch := os.Getenv("TEST_GITHUB_BRANCH")
	if branch == "" {
		branch = "main"
	}

	prov := githubactions.NewProvider(token, repo)

	handle, err := prov.Trigger(context.Background(), provider.JobRequest{
		Workflow: workflow,
		Ref:      branch,
	})
	if err != nil {
		t.Fatalf("Trigger failed: %v", err)
	}
	if handle.ID == "" {
		t.Fatal("Expected a run ID, got empty string")
	}

	report, err := prov.Poll(context.Background(), handle)
	if err != nil {
		t.Fatalf("Poll failed: %v", err)
	}

	t.Logf("Dispatched run %s, current status: %s", handle.ID, report.Status)
}
