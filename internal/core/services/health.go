package services

import (
	"fmt"
	"time"

	"github.com/custodia-labs/driftsync/internal/core/domain"
	"github.com/custodia-labs/driftsync/internal/core/ports/driven"
)

const (
	largeQueueThreshold = 100
	staleSyncAfter      = 24 * time.Hour
)

// HealthMonitor derives a health verdict from queue and sync state.
// Health is pure: every call recomputes from scratch, nothing
// accumulates between calls and nothing is persisted.
type HealthMonitor struct {
	queue *OperationQueue
	clock driven.Clock
}

// NewHealthMonitor creates a health monitor over the queue.
func NewHealthMonitor(queue *OperationQueue, clock driven.Clock) *HealthMonitor {
	if clock == nil {
		clock = driven.SystemClock{}
	}
	return &HealthMonitor{queue: queue, clock: clock}
}

// Compute derives the current verdict: critical when any issue is high
// severity, degraded when the highest present severity is medium,
// healthy otherwise.
func (m *HealthMonitor) Compute(lastSync *time.Time) domain.Health {
	now := m.clock.Now()
	health := domain.Health{
		Verdict:   domain.HealthHealthy,
		CheckedAt: now,
	}

	if failed := m.queue.FailedCount(); failed > 0 {
		health.Issues = append(health.Issues, domain.HealthIssue{
			Severity:       domain.SeverityHigh,
			Message:        fmt.Sprintf("%d operations have exhausted their retries", failed),
			Recommendation: "inspect failed operations and resolve or remove them",
			Timestamp:      now,
		})
	}

	if pending := m.queue.Len(); pending > largeQueueThreshold {
		health.Issues = append(health.Issues, domain.HealthIssue{
			Severity:       domain.SeverityMedium,
			Message:        fmt.Sprintf("sync queue is large (%d pending operations)", pending),
			Recommendation: "check connectivity or increase sync frequency",
			Timestamp:      now,
		})
	}

	if lastSync != nil && now.Sub(*lastSync) > staleSyncAfter {
		health.Issues = append(health.Issues, domain.HealthIssue{
			Severity:       domain.SeverityMedium,
			Message:        fmt.Sprintf("last successful sync was %s ago", now.Sub(*lastSync).Round(time.Minute)),
			Recommendation: "trigger a manual sync or check network connectivity",
			Timestamp:      now,
		})
	}

	for _, issue := range health.Issues {
		health.Recommendations = append(health.Recommendations, issue.Recommendation)
		switch issue.Severity {
		case domain.SeverityHigh:
			health.Verdict = domain.HealthCritical
		case domain.SeverityMedium:
			if health.Verdict != domain.HealthCritical {
				health.Verdict = domain.HealthDegraded
			}
		}
	}

	return health
}
