package jobs

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/JonMunkholm/factflow/internal/model"
)

func TestBroker_DeliversAndClosesOnTerminal(t *testing.T) {
	b := NewBroker()
	jobID := uuid.New()
	ch, cancel := b.Subscribe(jobID)
	defer cancel()

	ctx := context.Background()
	_ = b.Publish(ctx, Event{JobID: uuid.New(), Status: model.JobRunning})
	_ = b.Publish(ctx, Event{JobID: jobID, Status: model.JobRunning, RecordsProcessed: 10})
	_ = b.Publish(ctx, Event{JobID: jobID, Status: model.JobCompleted, RecordsProcessed: 20})

	var got []Event
	for e := range ch {
		got = append(got, e)
	}
	if len(got) != 2 || got[0].RecordsProcessed != 10 || got[1].Status != model.JobCompleted {
		t.Errorf("events = %+v", got)
	}
	if n := b.Subscribers(jobID); n != 0 {
		t.Errorf("Subscribers = %d after terminal event, want 0", n)
	}
}

func TestBroker_SlowSubscriberKeepsTerminalEvent(t *testing.T) {
	b := NewBroker()
	jobID := uuid.New()
	ch, cancel := b.Subscribe(jobID)
	defer cancel()

	ctx := context.Background()
	for i := 0; i < subscriberBuffer*2; i++ {
		_ = b.Publish(ctx, Event{JobID: jobID, Status: model.JobRunning, RecordsProcessed: i})
	}
	_ = b.Publish(ctx, Event{JobID: jobID, Status: model.JobFailed})

	var last Event
	for e := range ch {
		last = e
	}
	if last.Status != model.JobFailed {
		t.Errorf("last event status = %s, want FAILED", last.Status)
	}
}

func TestBroker_CancelUnsubscribes(t *testing.T) {
	b := NewBroker()
	jobID := uuid.New()
	ch, cancel := b.Subscribe(jobID)

	cancel()
	cancel()

	if _, open := <-ch; open {
		t.Error("channel still open after cancel")
	}
	if n := b.Subscribers(jobID); n != 0 {
		t.Errorf("Subscribers = %d, want 0", n)
	}
	// Publishing with no subscribers is a no-op.
	_ = b.Publish(context.Background(), Event{JobID: jobID, Status: model.JobCompleted})
}

func setupRedis(t *testing.T) (*RedisPublisher, *miniredis.Miniredis, *redis.Client) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("Failed to start miniredis: %v", err)
	}
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	return NewRedisPublisher(client, time.Minute), mr, client
}

func TestRedisPublisher_StoresLatest(t *testing.T) {
	p, mr, _ := setupRedis(t)
	ctx := context.Background()
	jobID := uuid.New()

	if _, ok, err := p.Latest(ctx, jobID); err != nil || ok {
		t.Fatalf("Latest before publish = ok %v, err %v", ok, err)
	}

	for _, processed := range []int{10, 20} {
		e := Event{JobID: jobID, Status: model.JobRunning, RecordsProcessed: processed, RecordsTotal: 20}
		if err := p.Publish(ctx, e); err != nil {
			t.Fatalf("Publish() error = %v", err)
		}
	}

	got, ok, err := p.Latest(ctx, jobID)
	if err != nil || !ok {
		t.Fatalf("Latest() = ok %v, err %v", ok, err)
	}
	if got.RecordsProcessed != 20 || got.Status != model.JobRunning {
		t.Errorf("Latest() = %+v", got)
	}

	if ttl := mr.TTL(progressKey(jobID)); ttl != time.Minute {
		t.Errorf("TTL = %v, want 1m", ttl)
	}

	mr.FastForward(2 * time.Minute)
	if _, ok, _ := p.Latest(ctx, jobID); ok {
		t.Error("snapshot still present after TTL")
	}
}

func TestRedisPublisher_AnnouncesOnChannel(t *testing.T) {
	p, _, client := setupRedis(t)
	ctx := context.Background()
	jobID := uuid.New()

	sub := client.Subscribe(ctx, ProgressChannel(jobID))
	defer sub.Close()
	if _, err := sub.Receive(ctx); err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	if err := p.Publish(ctx, Event{JobID: jobID, Status: model.JobCompleted}); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}

	select {
	case msg := <-sub.Channel():
		if msg.Channel != ProgressChannel(jobID) || msg.Payload == "" {
			t.Errorf("message = %+v", msg)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no message received")
	}
}

func TestRedisPublisher_ServerDown(t *testing.T) {
	p, mr, _ := setupRedis(t)
	mr.Close()

	if err := p.Publish(context.Background(), Event{JobID: uuid.New()}); err == nil {
		t.Error("Publish() succeeded against a stopped server")
	}
}
