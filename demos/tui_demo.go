// Demo program to showcase the watch TUI against a simulated build that
// walks through the full status lifecycle.
package main

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"buildwatch-agent/src/provider"
	"buildwatch-agent/src/tui"
	"buildwatch-agent/src/watch"
)

// simulatedProvider replays a scripted sequence of status reports, one per
// poll, holding the last report once the script runs out.
type simulatedProvider struct {
	mu    sync.Mutex
	polls int
	steps []provider.StatusReport
}

func (s *simulatedProvider) Name() string { return "codemagic" }

func (s *simulatedProvider) Trigger(ctx context.Context, req provider.JobRequest) (*provider.JobHandle, error) {
	return &provider.JobHandle{Provider: s.Name(), ID: "demo-build-001"}, nil
}

func (s *simulatedProvider) Poll(ctx context.Context, handle *provider.JobHandle) (*provider.StatusReport, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.polls
	if i >= len(s.steps) {
		i = len(s.steps) - 1
	}
	s.polls++
	report := s.steps[i]
	return &report, nil
}

func main() {
	fmt.Println("Simulating a Codemagic build (pending → running → finished)...")
	time.Sleep(500 * time.Millisecond) // Brief pause for effect

	sim := &simulatedProvider{
		steps: []provider.StatusReport{
			{Status: provider.StatusPending},
			{Status: provider.StatusPending},
			{Status: provider.StatusRunning},
			{Status: provider.StatusRunning},
			{Status: provider.StatusRunning},
			{Status: provider.StatusFinished, Success: true, URL: "https://codemagic.io/app/demo/build/demo-build-001"},
		},
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	handle, _ := sim.Trigger(ctx, provider.JobRequest{Workflow: "ios-release", Ref: "main"})

	events := make(chan tea.Msg, 16)
	opts := watch.Options{
		Interval: time.Second,
		Timeout:  time.Minute,
		OnPoll: func(pr watch.Progress) {
			select {
			case events <- tui.ProgressMsg(pr):
			default:
			}
		},
	}

	go func() {
		result, err := watch.Watch(ctx, sim, handle, opts)
		events <- tui.DoneMsg{Result: result, Err: err}
	}()

	info := tui.Info{Provider: sim.Name(), Workflow: "ios-release", Ref: "main", BuildID: handle.ID}
	result, err := tui.RunWatch(info, events, cancel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Watch error: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Final status: %s (success=%v)\n", result.Status, result.Success)
}
