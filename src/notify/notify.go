// Package notify publishes terminal build outcomes for downstream consumers.
// buildwatch does not format or deliver user-facing notifications itself;
// a consumer of the outcomes topic (Slack bridge, dashboard) owns that.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"buildwatch-agent/src/broker"
	"buildwatch-agent/src/provider"
)

// Topic is the broker topic terminal outcomes are published to,
// keyed by provider build ID.
const Topic = "ci.build.outcomes"

// Outcome is the message published when a watch reaches a terminal state.
type Outcome struct {
	RunID       string             `json:"run_id"`
	Provider    string             `json:"provider"`
	Workflow    string             `json:"workflow"`
	Ref         string             `json:"ref"`
	Environment string             `json:"environment,omitempty"`
	BuildID     string             `json:"build_id"`
	Status      provider.JobStatus `json:"status"`
	Success     bool               `json:"success"`
	URL         string             `json:"url,omitempty"`
	FinishedAt  time.Time          `json:"finished_at"`
}

// Notifier publishes outcomes to a broker.
type Notifier struct {
	broker broker.Broker
}

// NewNotifier creates a notifier on top of the given broker.
func NewNotifier(b broker.Broker) *Notifier {
	return &Notifier{broker: b}
}

// Publish sends the outcome to the outcomes topic.
func (n *Notifier) Publish(ctx context.Context, outcome Outcome) error {
	if outcome.FinishedAt.IsZero() {
		outcome.FinishedAt = time.Now().UTC()
	}

	data, err := json.Marshal(outcome)
	if err != nil {
		return fmt.Errorf("failed to encode outcome: %w", err)
	}

	if err := n.broker.Publish(ctx, Topic, outcome.BuildID, data); err != nil {
		return fmt.Errorf("failed to publish outcome: %w", err)
	}
	return nil
}
