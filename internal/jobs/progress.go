package jobs

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/JonMunkholm/factflow/internal/model"
)

// Event is a snapshot of a job's progress, published whenever its status or
// counters change.
type Event struct {
	JobID              uuid.UUID       `json:"jobId"`
	Status             model.JobStatus `json:"status"`
	RecordsProcessed   int             `json:"recordsProcessed"`
	RecordsTotal       int             `json:"recordsTotal"`
	ProgressPercentage float64         `json:"progressPercentage"`
	ErrorCount         int             `json:"errorCount"`
	ErrorMessage       string          `json:"errorMessage,omitempty"`
	At                 time.Time       `json:"at"`
}

// EventFrom snapshots job.
func EventFrom(job *model.ProcessingJob) Event {
	return Event{
		JobID:              job.ID,
		Status:             job.Status,
		RecordsProcessed:   job.RecordsProcessed,
		RecordsTotal:       job.RecordsTotal,
		ProgressPercentage: job.ProgressPercentage,
		ErrorCount:         job.ErrorCount,
		ErrorMessage:       job.ErrorMessage,
		At:                 time.Now().UTC(),
	}
}

// Publisher receives every progress event of every job.
type Publisher interface {
	Publish(ctx context.Context, e Event) error
}

// subscriberBuffer is the per-subscriber channel depth. A subscriber that
// falls further behind misses intermediate events, never the terminal one.
const subscriberBuffer = 16

// Broker fans progress events out to in-process subscribers.
type Broker struct {
	mu   sync.Mutex
	subs map[uuid.UUID]map[chan Event]struct{}
}

// NewBroker returns an empty broker.
func NewBroker() *Broker {
	return &Broker{subs: make(map[uuid.UUID]map[chan Event]struct{})}
}

// Subscribe returns a channel of jobID's events and a function that ends the
// subscription. The channel is closed after the job's terminal event or on
// cancel.
func (b *Broker) Subscribe(jobID uuid.UUID) (<-chan Event, func()) {
	ch := make(chan Event, subscriberBuffer)

	b.mu.Lock()
	if b.subs[jobID] == nil {
		b.subs[jobID] = make(map[chan Event]struct{})
	}
	b.subs[jobID][ch] = struct{}{}
	b.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			if set, ok := b.subs[jobID]; ok {
				if _, ok := set[ch]; ok {
					delete(set, ch)
					close(ch)
				}
				if len(set) == 0 {
					delete(b.subs, jobID)
				}
			}
		})
	}
	return ch, cancel
}

// Publish delivers e to the job's subscribers without blocking.
func (b *Broker) Publish(ctx context.Context, e Event) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	set := b.subs[e.JobID]
	for ch := range set {
		if e.Status.Terminal() {
			// Make room so the terminal event is never dropped.
			select {
			case ch <- e:
			default:
				<-ch
				ch <- e
			}
			close(ch)
			continue
		}
		select {
		case ch <- e:
		default:
		}
	}
	if e.Status.Terminal() {
		delete(b.subs, e.JobID)
	}
	return nil
}

// Subscribers returns the number of open subscriptions for jobID.
func (b *Broker) Subscribers(jobID uuid.UUID) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs[jobID])
}
