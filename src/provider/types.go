package provider

// JobStatus is the normalized lifecycle state of a remote build.
type JobStatus string

const (
	StatusPending  JobStatus = "pending"
	StatusRunning  JobStatus = "running"
	StatusFinished JobStatus = "finished"
	StatusFailed   JobStatus = "failed"
	StatusError    JobStatus = "error"
)

// IsTerminal reports whether no further status transitions can occur.
func (s JobStatus) IsTerminal() bool {
	switch s {
	case StatusFinished, StatusFailed, StatusError:
		return true
	}
	return false
}

// JobRequest identifies the build to trigger. Immutable once submitted.
type JobRequest struct {
	// Workflow is the provider-side job type (e.g. a Codemagic workflow ID
	// or a GitHub Actions workflow file name).
	Workflow string
	// Ref is the branch or git ref to build.
	Ref string
	// Environment is an optional target environment label (e.g. "staging").
	Environment string
}

// JobHandle identifies a build created by Trigger. A handle is only valid
// after a successful trigger; polling an unknown handle yields ErrNotFound.
type JobHandle struct {
	Provider string            // "codemagic" or "github"
	ID       string            // Provider-side build/run identifier
	Metadata map[string]string // Provider-specific routing data (app ID, owner/repo)
}

// StatusReport is a single poll observation. Success and URL are only
// meaningful when Status is terminal.
type StatusReport struct {
	Status  JobStatus
	Success bool
	URL     string
}

// JobResult is the outcome of a watch. Success and URL are populated only
// when Status is StatusFinished.
type JobResult struct {
	Status  JobStatus
	Success bool
	URL     string
}
