package workers

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	application "ballotbox/contexts/election-core/election-machine/application"
	"ballotbox/contexts/election-core/election-machine/ports"
)

// WindowWatcher emits a window-closed notification once per election after its
// voting window passes. The phase itself stays derived from the clock; the
// event is operational only (dashboards, reveal reminders).
type WindowWatcher struct {
	Elections ports.ElectionRepository
	Outbox    ports.OutboxWriter
	Clock     ports.Clock
	Logger    *slog.Logger

	announced map[string]struct{}
}

// RunOnce sweeps all elections and appends one election.window_closed outbox
// row per newly closed window. The outbox id is derived from the election id,
// so a sweep after restart replays as an idempotent append.
func (w *WindowWatcher) RunOnce(ctx context.Context) error {
	logger := application.ResolveLogger(w.Logger)
	if w.announced == nil {
		w.announced = make(map[string]struct{})
	}
	now := time.Now().UTC()
	if w.Clock != nil {
		now = w.Clock.Now().UTC()
	}

	elections, err := w.Elections.ListElections(ctx)
	if err != nil {
		logger.Error("election window sweep list failed",
			"event", "election_window_sweep_list_failed",
			"module", "election-core/election-machine",
			"layer", "worker",
			"error", err.Error(),
		)
		return err
	}

	closed := 0
	for _, election := range elections {
		if !now.After(election.VotingEnd) {
			continue
		}
		if _, done := w.announced[election.ElectionID]; done {
			continue
		}
		payload, err := json.Marshal(map[string]any{
			"election_id": election.ElectionID,
			"voting_end":  election.VotingEnd.Format(time.RFC3339),
			"total_votes": election.TotalVotes,
		})
		if err != nil {
			return err
		}
		envelope := ports.EventEnvelope{
			EventID:          "election.window_closed:" + election.ElectionID,
			EventType:        "election.window_closed",
			OccurredAt:       election.VotingEnd.UTC(),
			SourceService:    "election-machine",
			TraceID:          election.ElectionID,
			SchemaVersion:    1,
			PartitionKeyPath: "election_id",
			PartitionKey:     election.ElectionID,
			Data:             payload,
		}
		if err := w.Outbox.AppendOutbox(ctx, envelope); err != nil {
			logger.Error("election window close append failed",
				"event", "election_window_close_append_failed",
				"module", "election-core/election-machine",
				"layer", "worker",
				"election_id", election.ElectionID,
				"error", err.Error(),
			)
			return err
		}
		w.announced[election.ElectionID] = struct{}{}
		closed++
	}

	if closed > 0 {
		logger.Info("election window sweep completed",
			"event", "election_window_sweep_completed",
			"module", "election-core/election-machine",
			"layer", "worker",
			"closed_count", closed,
		)
	}
	return nil
}
