package githubactions

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"buildwatch-agent/src/provider"
)

func TestMapRunStatus(t *testing.T) {
	tests := []struct {
		name       string
		status     string
		conclusion string
		want       provider.JobStatus
	}{
		{"queued", "queued", "", provider.StatusPending},
		{"waiting", "waiting", "", provider.StatusPending},
		{"in progress", "in_progress", "", provider.StatusRunning},
		{"completed success", "completed", "success", provider.StatusFinished},
		{"completed failure", "completed", "failure", provider.StatusFailed},
		{"completed timed out", "completed", "timed_out", provider.StatusFailed},
		{"completed cancelled", "completed", "cancelled", provider.StatusError},
		{"completed skipped", "completed", "skipped", provider.StatusError},
		{"unknown status", "mystery", "", provider.StatusRunning},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := mapRunStatus(tt.status, tt.conclusion); got != tt.want {
				t.Errorf("mapRunStatus(%q, %q) = %v, want %v", tt.status, tt.conclusion, got, tt.want)
			}
		})
	}
}

func TestProvider_Trigger_ResolvesDispatchedRun(t *testing.T) {
	var listCalls atomic.Int32

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/repos/owner/repo/actions/workflows/release.yml/dispatches":
			w.WriteHeader(http.StatusNoContent)
		case "/repos/owner/repo/actions/workflows/release.yml/runs":
			w.Header().Set("Content-Type", "application/json")
			// The run appears on the second listing, as it does in practice.
			if listCalls.Add(1) == 1 {
				w.Write([]byte(`{"total_count": 0, "workflow_runs": []}`))
				return
			}
			w.Write([]byte(`{"total_count": 1, "workflow_runs": [{"id": 555, "status": "queued"}]}`))
		default:
			t.Errorf("unexpected path: %s", r.URL.Path)
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer server.Close()

	p := NewProvider("token", "owner/repo")
	p.client.baseURL = server.URL
	p.lookupInterval = time.Millisecond

	handle, err := p.Trigger(context.Background(), provider.JobRequest{Workflow: "release.yml", Ref: "main"})
	if err != nil {
		t.Fatalf("Trigger() error = %v", err)
	}

	if handle.Provider != "github" {
		t.Errorf("Provider = %q, want github", handle.Provider)
	}
	if handle.ID != "555" {
		t.Errorf("ID = %q, want 555", handle.ID)
	}
	if handle.Metadata["owner"] != "owner" || handle.Metadata["repo"] != "repo" {
		t.Errorf("Metadata = %v, want owner/repo", handle.Metadata)
	}
}

func TestProvider_Trigger_RunNeverAppears(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/repos/owner/repo/actions/workflows/release.yml/dispatches":
			w.WriteHeader(http.StatusNoContent)
		default:
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(`{"total_count": 0, "workflow_runs": []}`))
		}
	}))
	defer server.Close()

	p := NewProvider("token", "owner/repo")
	p.client.baseURL = server.URL
	p.lookupAttempts = 2
	p.lookupInterval = time.Millisecond

	_, err := p.Trigger(context.Background(), provider.JobRequest{Workflow: "release.yml", Ref: "main"})

	var trigErr *provider.TriggerError
	if !errors.As(err, &trigErr) {
		t.Fatalf("Trigger() error = %T, want *provider.TriggerError", err)
	}
}

func TestProvider_Trigger_RequiresRepo(t *testing.T) {
	p := NewProvider("token", "")

	_, err := p.Trigger(context.Background(), provider.JobRequest{Workflow: "release.yml", Ref: "main"})

	var trigErr *provider.TriggerError
	if !errors.As(err, &trigErr) {
		t.Fatalf("Trigger() error = %T, want *provider.TriggerError", err)
	}
}

func TestProvider_Poll_CompletedRun(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"id": 555,
			"status": "completed",
			"conclusion": "success",
			"html_url": "https://github.com/owner/repo/actions/runs/555"
		}`))
	}))
	defer server.Close()

	p := NewProvider("token", "owner/repo")
	p.client.baseURL = server.URL

	report, err := p.Poll(context.Background(), &provider.JobHandle{
		Provider: "github",
		ID:       "555",
		Metadata: map[string]string{"owner": "owner", "repo": "repo"},
	})
	if err != nil {
		t.Fatalf("Poll() error = %v", err)
	}

	if report.Status != provider.StatusFinished {
		t.Errorf("Status = %v, want finished", report.Status)
	}
	if !report.Success {
		t.Error("Success = false, want true")
	}
	if report.URL != "https://github.com/owner/repo/actions/runs/555" {
		t.Errorf("URL = %q, want run URL", report.URL)
	}
}

func TestProvider_Poll_InvalidHandle(t *testing.T) {
	p := NewProvider("token", "owner/repo")

	_, err := p.Poll(context.Background(), &provider.JobHandle{Provider: "github", ID: "not-a-number"})
	if !errors.Is(err, provider.ErrNotFound) {
		t.Fatalf("Poll() error = %v, want ErrNotFound", err)
	}
}
