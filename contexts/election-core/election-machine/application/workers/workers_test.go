package workers_test

import (
	"context"
	"testing"
	"time"

	"ballotbox/contexts/election-core/election-machine/adapters/memory"
	"ballotbox/contexts/election-core/election-machine/application/workers"
	"ballotbox/contexts/election-core/election-machine/domain/entities"
	"ballotbox/contexts/election-core/election-machine/ports"
)

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	return c.now
}

type capturePublisher struct {
	topics []string
	events []ports.EventEnvelope
}

func (p *capturePublisher) Publish(_ context.Context, topic string, event ports.EventEnvelope) error {
	p.topics = append(p.topics, topic)
	p.events = append(p.events, event)
	return nil
}

var base = time.Date(2026, time.March, 1, 12, 0, 0, 0, time.UTC)

func TestOutboxRelayPublishesAndMarks(t *testing.T) {
	store := memory.NewStore(nil)
	for _, eventID := range []string{"event-1", "event-2"} {
		if err := store.AppendOutbox(context.Background(), ports.EventEnvelope{
			EventID:      eventID,
			EventType:    "election.vote_cast",
			OccurredAt:   base,
			PartitionKey: "election-1",
		}); err != nil {
			t.Fatalf("append %s failed: %v", eventID, err)
		}
	}

	publisher := &capturePublisher{}
	relay := workers.OutboxRelay{
		Outbox:    store,
		Publisher: publisher,
		Clock:     &fakeClock{now: base.Add(time.Minute)},
		BatchSize: 10,
	}

	if err := relay.RunOnce(context.Background()); err != nil {
		t.Fatalf("relay cycle failed: %v", err)
	}
	if len(publisher.events) != 2 {
		t.Fatalf("expected 2 published events, got %d", len(publisher.events))
	}
	if publisher.topics[0] != "election.vote_cast" {
		t.Fatalf("expected topic from event type, got %s", publisher.topics[0])
	}

	// Everything was marked published, so a second cycle is a no-op.
	if err := relay.RunOnce(context.Background()); err != nil {
		t.Fatalf("second relay cycle failed: %v", err)
	}
	if len(publisher.events) != 2 {
		t.Fatalf("expected no republished events, got %d", len(publisher.events))
	}
}

func TestWindowWatcherAnnouncesEachClosedWindowOnce(t *testing.T) {
	open := entities.Election{
		ElectionID:  "election-open",
		VotingStart: base,
		VotingEnd:   base.Add(4 * time.Hour),
		CreatedAt:   base,
	}
	closed := entities.Election{
		ElectionID:  "election-closed",
		VotingStart: base.Add(-4 * time.Hour),
		VotingEnd:   base.Add(-2 * time.Hour),
		TotalVotes:  3,
		CreatedAt:   base.Add(-4 * time.Hour),
	}
	store := memory.NewStore([]entities.Election{open, closed})

	watcher := &workers.WindowWatcher{
		Elections: store,
		Outbox:    store,
		Clock:     &fakeClock{now: base},
	}

	if err := watcher.RunOnce(context.Background()); err != nil {
		t.Fatalf("first sweep failed: %v", err)
	}
	if err := watcher.RunOnce(context.Background()); err != nil {
		t.Fatalf("second sweep failed: %v", err)
	}

	pending, err := store.ListPendingOutbox(context.Background(), 10)
	if err != nil {
		t.Fatalf("list pending failed: %v", err)
	}
	if len(pending) != 1 {
		t.Fatalf("expected one window close announcement, got %d", len(pending))
	}
	if pending[0].OutboxID != "election.window_closed:election-closed" {
		t.Fatalf("unexpected outbox id %s", pending[0].OutboxID)
	}
	if pending[0].EventType != "election.window_closed" {
		t.Fatalf("unexpected event type %s", pending[0].EventType)
	}
}
