package swarm

import (
	"sync"

	"github.com/callpilot/callpilot/pkg/models"
)

// progressTracker owns the live call counters for one campaign run. It holds
// its own lock so snapshots are internally consistent regardless of how many
// call goroutines report at once; the manager publishes each snapshot to the
// store.
type progressTracker struct {
	mu sync.Mutex
	p  models.Progress
}

func newProgressTracker(total int) *progressTracker {
	return &progressTracker{p: models.Progress{TotalProviders: total}}
}

// callStarted bumps in_progress and returns a snapshot.
func (t *progressTracker) callStarted() models.Progress {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.p.InProgress++
	return t.p
}

// callFinished moves one call from in-progress to completed and classifies
// its outcome.
func (t *progressTracker) callFinished(outcome models.CallOutcome) models.Progress {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.p.InProgress--
	t.p.CompletedCalls++
	if outcome == models.OutcomeSuccess {
		t.p.SuccessfulCalls++
	} else if outcome.CountsAsFailed() {
		t.p.FailedCalls++
	}
	return t.p
}

// snapshot returns the current counters.
func (t *progressTracker) snapshot() models.Progress {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.p
}
