package jobs

import (
	"errors"
	"fmt"
	"time"

	"github.com/JonMunkholm/factflow/internal/model"
)

// ErrInvalidTransition is returned when a job is asked to move to a state
// its current state does not lead to.
var ErrInvalidTransition = errors.New("invalid job state transition")

// transitions is the job lifecycle. PENDING may fail directly when the job
// never gets a processing slot. Terminal states have no entry.
var transitions = map[model.JobStatus][]model.JobStatus{
	model.JobPending: {model.JobRunning, model.JobFailed},
	model.JobRunning: {model.JobCompleted, model.JobFailed},
}

// CanTransition reports whether from may move to to.
func CanTransition(from, to model.JobStatus) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Transition moves job to status to, stamping StartedAt when it starts
// running and FinishedAt when it reaches a terminal state.
func Transition(job *model.ProcessingJob, to model.JobStatus, now time.Time) error {
	if !CanTransition(job.Status, to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, job.Status, to)
	}
	job.Status = to
	switch {
	case to == model.JobRunning:
		job.StartedAt = &now
	case to.Terminal():
		job.FinishedAt = &now
	}
	return nil
}
