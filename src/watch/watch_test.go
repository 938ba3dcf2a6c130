package watch

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"buildwatch-agent/src/provider"
)

// pollStep is one scripted Poll response.
type pollStep struct {
	report *provider.StatusReport
	err    error
}

// scriptedProvider replays a fixed sequence of poll responses.
// The last step repeats if the watch polls past the end of the script.
type scriptedProvider struct {
	mu         sync.Mutex
	steps      []pollStep
	polls      int
	triggerErr error
}

func (s *scriptedProvider) Name() string { return "scripted" }

func (s *scriptedProvider) Trigger(ctx context.Context, req provider.JobRequest) (*provider.JobHandle, error) {
	if s.triggerErr != nil {
		return nil, s.triggerErr
	}
	return &provider.JobHandle{Provider: "scripted", ID: "build-1"}, nil
}

func (s *scriptedProvider) Poll(ctx context.Context, handle *provider.JobHandle) (*provider.StatusReport, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.polls
	if i >= len(s.steps) {
		i = len(s.steps) - 1
	}
	s.polls++
	step := s.steps[i]
	return step.report, step.err
}

func (s *scriptedProvider) pollCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.polls
}

func transientErr() error {
	return &provider.PollError{Provider: "scripted", Err: errors.New("502 Bad Gateway")}
}

func fastOpts() Options {
	return Options{
		Interval:    time.Millisecond,
		Timeout:     5 * time.Second,
		RetryBudget: 5,
	}
}

func testHandle() *provider.JobHandle {
	return &provider.JobHandle{Provider: "scripted", ID: "build-1"}
}

func TestWatch_FinishedCarriesSuccessAndURL(t *testing.T) {
	p := &scriptedProvider{steps: []pollStep{
		{report: &provider.StatusReport{Status: provider.StatusFinished, Success: true, URL: "https://x/1"}},
	}}

	result, err := Watch(context.Background(), p, testHandle(), fastOpts())
	if err != nil {
		t.Fatalf("Watch() error = %v", err)
	}

	if result.Status != provider.StatusFinished {
		t.Errorf("Status = %v, want finished", result.Status)
	}
	if !result.Success {
		t.Error("Success = false, want true")
	}
	if result.URL != "https://x/1" {
		t.Errorf("URL = %q, want %q", result.URL, "https://x/1")
	}
	if got := p.pollCount(); got != 1 {
		t.Errorf("poll count = %d, want 1", got)
	}
}

func TestWatch_FailedOnFirstPoll(t *testing.T) {
	// URL in the report must not leak into a failed result.
	p := &scriptedProvider{steps: []pollStep{
		{report: &provider.StatusReport{Status: provider.StatusFailed, Success: true, URL: "https://x/1"}},
	}}

	result, err := Watch(context.Background(), p, testHandle(), fastOpts())
	if err != nil {
		t.Fatalf("Watch() error = %v", err)
	}

	if result.Status != provider.StatusFailed {
		t.Errorf("Status = %v, want failed", result.Status)
	}
	if result.Success {
		t.Error("Success = true, want false for failed result")
	}
	if result.URL != "" {
		t.Errorf("URL = %q, want empty for failed result", result.URL)
	}
	if got := p.pollCount(); got != 1 {
		t.Errorf("poll count = %d, want exactly 1", got)
	}
}

func TestWatch_PollsUntilTerminal(t *testing.T) {
	p := &scriptedProvider{steps: []pollStep{
		{report: &provider.StatusReport{Status: provider.StatusPending}},
		{report: &provider.StatusReport{Status: provider.StatusRunning}},
		{report: &provider.StatusReport{Status: provider.StatusRunning}},
		{report: &provider.StatusReport{Status: provider.StatusFinished, Success: true, URL: "https://x/2"}},
	}}

	result, err := Watch(context.Background(), p, testHandle(), fastOpts())
	if err != nil {
		t.Fatalf("Watch() error = %v", err)
	}
	if result.Status != provider.StatusFinished {
		t.Errorf("Status = %v, want finished", result.Status)
	}
	if got := p.pollCount(); got != 4 {
		t.Errorf("poll count = %d, want 4", got)
	}
}

func TestWatch_TransientErrorsWithinBudget(t *testing.T) {
	// N consecutive transient failures (N <= budget) followed by finished:
	// the watch succeeds with exactly N+1 polls.
	const n = 3
	steps := make([]pollStep, 0, n+1)
	for i := 0; i < n; i++ {
		steps = append(steps, pollStep{err: transientErr()})
	}
	steps = append(steps, pollStep{report: &provider.StatusReport{Status: provider.StatusFinished, Success: true}})

	p := &scriptedProvider{steps: steps}

	result, err := Watch(context.Background(), p, testHandle(), fastOpts())
	if err != nil {
		t.Fatalf("Watch() error = %v", err)
	}
	if result.Status != provider.StatusFinished {
		t.Errorf("Status = %v, want finished", result.Status)
	}
	if got := p.pollCount(); got != n+1 {
		t.Errorf("poll count = %d, want %d", got, n+1)
	}
}

func TestWatch_RetryBudgetExhausted(t *testing.T) {
	p := &scriptedProvider{steps: []pollStep{
		{err: transientErr()},
	}}

	opts := fastOpts()
	opts.RetryBudget = 2

	_, err := Watch(context.Background(), p, testHandle(), opts)
	if err == nil {
		t.Fatal("Watch() error = nil, want retry exhaustion")
	}

	var watchErr *Error
	if !errors.As(err, &watchErr) {
		t.Fatalf("Watch() error = %T, want *Error", err)
	}
	if watchErr.Reason != ReasonRetriesExhausted {
		t.Errorf("Reason = %v, want %v", watchErr.Reason, ReasonRetriesExhausted)
	}
	if !errors.Is(err, ErrRetriesExhausted) {
		t.Error("errors.Is(err, ErrRetriesExhausted) = false, want true")
	}

	// Budget of 2 tolerates 2 consecutive failures; the third aborts.
	if got := p.pollCount(); got != opts.RetryBudget+1 {
		t.Errorf("poll count = %d, want %d", got, opts.RetryBudget+1)
	}
}

func TestWatch_SuccessfulPollResetsFailureCount(t *testing.T) {
	p := &scriptedProvider{steps: []pollStep{
		{err: transientErr()},
		{err: transientErr()},
		{report: &provider.StatusReport{Status: provider.StatusRunning}},
		{err: transientErr()},
		{err: transientErr()},
		{report: &provider.StatusReport{Status: provider.StatusFinished, Success: true}},
	}}

	opts := fastOpts()
	opts.RetryBudget = 2

	result, err := Watch(context.Background(), p, testHandle(), opts)
	if err != nil {
		t.Fatalf("Watch() error = %v", err)
	}
	if result.Status != provider.StatusFinished {
		t.Errorf("Status = %v, want finished", result.Status)
	}
	if got := p.pollCount(); got != 6 {
		t.Errorf("poll count = %d, want 6", got)
	}
}

func TestWatch_NotFoundAbortsImmediately(t *testing.T) {
	p := &scriptedProvider{steps: []pollStep{
		{err: &provider.PollError{Provider: "scripted", Err: provider.ErrNotFound}},
	}}

	_, err := Watch(context.Background(), p, testHandle(), fastOpts())
	if err == nil {
		t.Fatal("Watch() error = nil, want not-found abort")
	}

	var watchErr *Error
	if !errors.As(err, &watchErr) {
		t.Fatalf("Watch() error = %T, want *Error", err)
	}
	if watchErr.Reason != ReasonNotFound {
		t.Errorf("Reason = %v, want %v", watchErr.Reason, ReasonNotFound)
	}
	if !errors.Is(err, provider.ErrNotFound) {
		t.Error("errors.Is(err, provider.ErrNotFound) = false, want true")
	}
	if got := p.pollCount(); got != 1 {
		t.Errorf("poll count = %d, want 1 (no retries on not found)", got)
	}
}

func TestWatch_NonTransientErrorAborts(t *testing.T) {
	p := &scriptedProvider{steps: []pollStep{
		{err: provider.ErrAuthFailed},
	}}

	_, err := Watch(context.Background(), p, testHandle(), fastOpts())
	if err == nil {
		t.Fatal("Watch() error = nil, want abort")
	}

	var watchErr *Error
	if !errors.As(err, &watchErr) {
		t.Fatalf("Watch() error = %T, want *Error", err)
	}
	if watchErr.Reason != ReasonPollFailed {
		t.Errorf("Reason = %v, want %v", watchErr.Reason, ReasonPollFailed)
	}
	if got := p.pollCount(); got != 1 {
		t.Errorf("poll count = %d, want 1", got)
	}
}

func TestWatch_Timeout(t *testing.T) {
	p := &scriptedProvider{steps: []pollStep{
		{report: &provider.StatusReport{Status: provider.StatusRunning}},
	}}

	opts := Options{
		Interval:    2 * time.Millisecond,
		Timeout:     20 * time.Millisecond,
		RetryBudget: 5,
	}

	start := time.Now()
	_, err := Watch(context.Background(), p, testHandle(), opts)
	elapsed := time.Since(start)

	if !errors.Is(err, ErrTimeout) {
		t.Fatalf("Watch() error = %v, want ErrTimeout", err)
	}
	if elapsed < opts.Timeout {
		t.Errorf("watch returned after %v, want at or after the %v deadline", elapsed, opts.Timeout)
	}

	var watchErr *Error
	if !errors.As(err, &watchErr) {
		t.Fatalf("Watch() error = %T, want *Error", err)
	}
	if watchErr.LastStatus != provider.StatusRunning {
		t.Errorf("LastStatus = %v, want running", watchErr.LastStatus)
	}
}

func TestWatch_Cancelled(t *testing.T) {
	p := &scriptedProvider{steps: []pollStep{
		{report: &provider.StatusReport{Status: provider.StatusRunning}},
	}}

	ctx, cancel := context.WithCancel(context.Background())

	opts := Options{
		Interval:    time.Hour, // cancellation must not wait out the interval
		Timeout:     time.Hour,
		RetryBudget: 5,
		OnPoll: func(progress Progress) {
			cancel()
		},
	}

	done := make(chan error, 1)
	go func() {
		_, err := Watch(ctx, p, testHandle(), opts)
		done <- err
	}()

	select {
	case err := <-done:
		if !errors.Is(err, ErrCancelled) {
			t.Fatalf("Watch() error = %v, want ErrCancelled", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Watch() did not observe cancellation")
	}

	if got := p.pollCount(); got != 1 {
		t.Errorf("poll count = %d, want 1 (no polls after cancellation)", got)
	}
}

func TestWatch_CancelledBeforeFirstPoll(t *testing.T) {
	p := &scriptedProvider{steps: []pollStep{
		{report: &provider.StatusReport{Status: provider.StatusRunning}},
	}}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := Watch(ctx, p, testHandle(), fastOpts())
	if !errors.Is(err, ErrCancelled) {
		t.Fatalf("Watch() error = %v, want ErrCancelled", err)
	}
	if got := p.pollCount(); got != 0 {
		t.Errorf("poll count = %d, want 0", got)
	}
}

func TestWatch_ReportsProgress(t *testing.T) {
	p := &scriptedProvider{steps: []pollStep{
		{report: &provider.StatusReport{Status: provider.StatusPending}},
		{err: transientErr()},
		{report: &provider.StatusReport{Status: provider.StatusFinished, Success: true}},
	}}

	var events []Progress
	opts := fastOpts()
	opts.OnPoll = func(progress Progress) {
		events = append(events, progress)
	}

	if _, err := Watch(context.Background(), p, testHandle(), opts); err != nil {
		t.Fatalf("Watch() error = %v", err)
	}

	if len(events) != 3 {
		t.Fatalf("progress events = %d, want 3", len(events))
	}
	if events[0].Attempt != 1 || events[0].Status != provider.StatusPending {
		t.Errorf("event 0 = %+v, want attempt 1 pending", events[0])
	}
	if events[1].Err == nil {
		t.Error("event 1 should carry the transient poll error")
	}
	if events[2].Status != provider.StatusFinished {
		t.Errorf("event 2 status = %v, want finished", events[2].Status)
	}
}

func TestRun_TriggerFailureSkipsPolling(t *testing.T) {
	p := &scriptedProvider{
		triggerErr: &provider.TriggerError{Provider: "scripted", Err: errors.New("503")},
	}

	var trigErr *provider.TriggerError
	_, _, err := Run(context.Background(), p, provider.JobRequest{Workflow: "ios-release", Ref: "main"}, fastOpts())
	if !errors.As(err, &trigErr) {
		t.Fatalf("Run() error = %v, want *provider.TriggerError", err)
	}
	if got := p.pollCount(); got != 0 {
		t.Errorf("poll count = %d, want 0 after trigger failure", got)
	}
}

func TestRun_TriggerThenWatch(t *testing.T) {
	p := &scriptedProvider{steps: []pollStep{
		{report: &provider.StatusReport{Status: provider.StatusRunning}},
		{report: &provider.StatusReport{Status: provider.StatusFinished, Success: true, URL: "https://x/3"}},
	}}

	handle, result, err := Run(context.Background(), p, provider.JobRequest{Workflow: "ios-release", Ref: "main"}, fastOpts())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if handle == nil || handle.ID != "build-1" {
		t.Errorf("handle = %+v, want build-1", handle)
	}
	if result.URL != "https://x/3" {
		t.Errorf("URL = %q, want %q", result.URL, "https://x/3")
	}
}
