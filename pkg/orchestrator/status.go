package orchestrator

import (
	"context"

	"near-intents/pkg/intent"
	"near-intents/pkg/metrics"
	"near-intents/pkg/tracker"
)

// countingSource records every status poll.
type countingSource struct {
	source  tracker.StatusSource
	metrics *metrics.Registry
}

func (s countingSource) Status(ctx context.Context, handle string) (intent.StatusReport, error) {
	report, err := s.source.Status(ctx, handle)
	s.metrics.ObserveStatusPoll(err)
	return report, err
}
