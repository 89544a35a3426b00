package jobs

import (
	"errors"
	"testing"
	"time"

	"github.com/JonMunkholm/factflow/internal/model"
)

func TestCanTransition(t *testing.T) {
	all := []model.JobStatus{model.JobPending, model.JobRunning, model.JobCompleted, model.JobFailed}
	allowed := map[[2]model.JobStatus]bool{
		{model.JobPending, model.JobRunning}:   true,
		{model.JobPending, model.JobFailed}:    true,
		{model.JobRunning, model.JobCompleted}: true,
		{model.JobRunning, model.JobFailed}:    true,
	}

	for _, from := range all {
		for _, to := range all {
			want := allowed[[2]model.JobStatus{from, to}]
			if got := CanTransition(from, to); got != want {
				t.Errorf("CanTransition(%s, %s) = %v, want %v", from, to, got, want)
			}
		}
	}
}

func TestTransition_Timestamps(t *testing.T) {
	now := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	job := &model.ProcessingJob{Status: model.JobPending}

	if err := Transition(job, model.JobRunning, now); err != nil {
		t.Fatalf("Transition(RUNNING) error = %v", err)
	}
	if job.StartedAt == nil || !job.StartedAt.Equal(now) || job.FinishedAt != nil {
		t.Errorf("after RUNNING: started=%v finished=%v", job.StartedAt, job.FinishedAt)
	}

	later := now.Add(time.Minute)
	if err := Transition(job, model.JobCompleted, later); err != nil {
		t.Fatalf("Transition(COMPLETED) error = %v", err)
	}
	if job.FinishedAt == nil || !job.FinishedAt.Equal(later) {
		t.Errorf("FinishedAt = %v, want %v", job.FinishedAt, later)
	}
}

func TestTransition_TerminalRejects(t *testing.T) {
	for _, status := range []model.JobStatus{model.JobCompleted, model.JobFailed} {
		job := &model.ProcessingJob{Status: status}
		err := Transition(job, model.JobRunning, time.Now())
		if !errors.Is(err, ErrInvalidTransition) {
			t.Errorf("Transition from %s: error = %v, want ErrInvalidTransition", status, err)
		}
		if job.Status != status {
			t.Errorf("status changed to %s on rejected transition", job.Status)
		}
	}
}
