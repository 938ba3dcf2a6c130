// Package watch resolves a triggered build to a terminal result by polling
// the provider at a fixed interval with a bounded retry budget and deadline.
package watch

import (
	"context"
	"errors"
	"time"

	"buildwatch-agent/src/provider"
)

const (
	// DefaultInterval is the pause between status polls.
	DefaultInterval = 60 * time.Second
	// DefaultTimeout bounds the total wall-clock time of a watch.
	DefaultTimeout = 90 * time.Minute
	// DefaultRetryBudget is the number of consecutive transient poll
	// failures tolerated before the watch gives up.
	DefaultRetryBudget = 5
)

// Progress describes one completed poll attempt. Err is non-nil for
// attempts that failed transiently and were absorbed by the retry budget.
type Progress struct {
	Attempt int
	Status  provider.JobStatus
	Elapsed time.Duration
	Err     error
}

// Options configures a watch. Zero values fall back to the defaults.
type Options struct {
	Interval    time.Duration
	Timeout     time.Duration
	RetryBudget int
	// OnPoll, if set, is invoked after every poll attempt. It must not block.
	OnPoll func(Progress)
}

func (o Options) withDefaults() Options {
	if o.Interval <= 0 {
		o.Interval = DefaultInterval
	}
	if o.Timeout <= 0 {
		o.Timeout = DefaultTimeout
	}
	if o.RetryBudget <= 0 {
		o.RetryBudget = DefaultRetryBudget
	}
	return o
}

// Watch polls the provider until the build reaches a terminal status, the
// deadline passes, the context is cancelled, or the retry budget is spent.
// The first poll is immediate; later polls wait Options.Interval.
//
// A transient poll failure does not abort the watch until RetryBudget
// consecutive failures have accumulated; a successful poll resets the count.
// provider.ErrNotFound aborts immediately.
func Watch(ctx context.Context, p provider.Provider, handle *provider.JobHandle, opts Options) (*provider.JobResult, error) {
	opts = opts.withDefaults()

	start := time.Now()
	deadline := start.Add(opts.Timeout)

	attempts := 0
	failures := 0
	var lastStatus provider.JobStatus

	for {
		// Observe cancellation before issuing another network call.
		if err := ctx.Err(); err != nil {
			return nil, newError(ReasonCancelled, handle, lastStatus, attempts, err)
		}

		report, err := p.Poll(ctx, handle)
		attempts++

		if err != nil {
			if ctx.Err() != nil {
				return nil, newError(ReasonCancelled, handle, lastStatus, attempts, ctx.Err())
			}
			if errors.Is(err, provider.ErrNotFound) {
				return nil, newError(ReasonNotFound, handle, lastStatus, attempts, err)
			}
			if !provider.IsTransient(err) {
				return nil, newError(ReasonPollFailed, handle, lastStatus, attempts, err)
			}

			failures++
			notify(opts, Progress{Attempt: attempts, Status: lastStatus, Elapsed: time.Since(start), Err: err})
			if failures > opts.RetryBudget {
				return nil, newError(ReasonRetriesExhausted, handle, lastStatus, attempts, err)
			}
		} else {
			failures = 0
			lastStatus = report.Status
			notify(opts, Progress{Attempt: attempts, Status: report.Status, Elapsed: time.Since(start)})

			if report.Status.IsTerminal() {
				result := &provider.JobResult{Status: report.Status}
				if report.Status == provider.StatusFinished {
					result.Success = report.Success
					result.URL = report.URL
				}
				return result, nil
			}
		}

		remaining := time.Until(deadline)
		if remaining <= 0 {
			return nil, newError(ReasonTimeout, handle, lastStatus, attempts, nil)
		}

		wait := opts.Interval
		if wait > remaining {
			wait = remaining
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, newError(ReasonCancelled, handle, lastStatus, attempts, ctx.Err())
		case <-timer.C:
		}

		if !time.Now().Before(deadline) {
			return nil, newError(ReasonTimeout, handle, lastStatus, attempts, nil)
		}
	}
}

// Run triggers a build and watches it to completion.
func Run(ctx context.Context, p provider.Provider, req provider.JobRequest, opts Options) (*provider.JobHandle, *provider.JobResult, error) {
	handle, err := p.Trigger(ctx, req)
	if err != nil {
		return nil, nil, err
	}

	result, err := Watch(ctx, p, handle, opts)
	return handle, result, err
}

func notify(opts Options, progress Progress) {
	if opts.OnPoll != nil {
		opts.OnPoll(progress)
	}
}
