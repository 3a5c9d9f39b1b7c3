package queries_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/crypto"

	"ballotbox/contexts/election-core/election-machine/adapters/memory"
	"ballotbox/contexts/election-core/election-machine/application/commands"
	"ballotbox/contexts/election-core/election-machine/application/queries"
	"ballotbox/contexts/election-core/election-machine/domain/entities"
	domainerrors "ballotbox/contexts/election-core/election-machine/domain/errors"
)

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	return c.now
}

var base = time.Date(2026, time.March, 1, 12, 0, 0, 0, time.UTC)

func seedElection(t *testing.T) (*commands.ElectionUseCase, queries.ResultsUseCase, *fakeClock, string) {
	t.Helper()
	store := memory.NewStore(nil)
	clock := &fakeClock{now: base}
	writes := &commands.ElectionUseCase{
		Elections: store,
		Outbox:    store,
		Clock:     clock,
		IDGen:     store,
	}
	reads := queries.ResultsUseCase{
		Elections: store,
		Clock:     clock,
	}
	election, err := writes.CreateElection(context.Background(), commands.CreateElectionCommand{
		AuthorityID:  "authority-1",
		Title:        "Board election",
		VotingStart:  base.Add(1 * time.Hour),
		VotingEnd:    base.Add(3 * time.Hour),
		CandidateIDs: []string{"candidate-1", "candidate-2"},
	})
	if err != nil {
		t.Fatalf("create election failed: %v", err)
	}
	for _, voterID := range []string{"voter-1", "voter-2"} {
		if err := writes.Register(context.Background(), commands.RegisterCommand{
			ElectionID: election.ElectionID,
			CallerID:   "authority-1",
			VoterID:    voterID,
		}); err != nil {
			t.Fatalf("register %s failed: %v", voterID, err)
		}
	}
	return writes, reads, clock, election.ElectionID
}

func TestVerifyVoteMatchesStoredCommitment(t *testing.T) {
	writes, reads, clock, electionID := seedElection(t)
	clock.now = base.Add(2 * time.Hour)

	commitment := crypto.Keccak256Hash([]byte("ballot-1"))
	if _, err := writes.CastVote(context.Background(), commands.CastVoteCommand{
		ElectionID: electionID,
		VoterID:    "voter-1",
		Commitment: commitment,
	}); err != nil {
		t.Fatalf("cast failed: %v", err)
	}

	matches, err := reads.VerifyVote(context.Background(), electionID, "voter-1", commitment)
	if err != nil {
		t.Fatalf("verify failed: %v", err)
	}
	if !matches {
		t.Fatalf("expected stored commitment to match")
	}

	matches, err = reads.VerifyVote(context.Background(), electionID, "voter-1", crypto.Keccak256Hash([]byte("other")))
	if err != nil {
		t.Fatalf("verify mismatch failed: %v", err)
	}
	if matches {
		t.Fatalf("expected mismatch for a different commitment")
	}

	_, err = reads.VerifyVote(context.Background(), electionID, "voter-2", commitment)
	if !errors.Is(err, domainerrors.ErrHasNotVoted) {
		t.Fatalf("expected has not voted, got %v", err)
	}
}

func TestResultsGatedUntilReveal(t *testing.T) {
	writes, reads, clock, electionID := seedElection(t)
	clock.now = base.Add(2 * time.Hour)

	if _, err := writes.CastVote(context.Background(), commands.CastVoteCommand{
		ElectionID: electionID,
		VoterID:    "voter-1",
		Commitment: crypto.Keccak256Hash([]byte("ballot-1")),
	}); err != nil {
		t.Fatalf("cast failed: %v", err)
	}

	_, err := reads.Results(context.Background(), electionID)
	if !errors.Is(err, domainerrors.ErrResultsNotReady) {
		t.Fatalf("expected results not ready, got %v", err)
	}

	clock.now = base.Add(4 * time.Hour)
	if _, err := writes.RevealResults(context.Background(), commands.RevealCommand{
		ElectionID:       electionID,
		CallerID:         "authority-1",
		VoterIDs:         []string{"voter-1"},
		CandidateChoices: []string{"candidate-2"},
	}); err != nil {
		t.Fatalf("reveal failed: %v", err)
	}

	results, err := reads.Results(context.Background(), electionID)
	if err != nil {
		t.Fatalf("results failed: %v", err)
	}
	if len(results.CandidateIDs) != 2 || results.CandidateIDs[0] != "candidate-1" {
		t.Fatalf("expected counts in declared candidate order, got %v", results.CandidateIDs)
	}
	if results.Counts[0] != 0 || results.Counts[1] != 1 {
		t.Fatalf("unexpected counts %v", results.Counts)
	}
}

func TestStatsReportsRegisteredAndCastSeparately(t *testing.T) {
	writes, reads, clock, electionID := seedElection(t)
	clock.now = base.Add(2 * time.Hour)

	if _, err := writes.CastVote(context.Background(), commands.CastVoteCommand{
		ElectionID: electionID,
		VoterID:    "voter-1",
		Commitment: crypto.Keccak256Hash([]byte("ballot-1")),
	}); err != nil {
		t.Fatalf("cast failed: %v", err)
	}

	stats, err := reads.Stats(context.Background(), electionID)
	if err != nil {
		t.Fatalf("stats failed: %v", err)
	}
	if stats.RegisteredCount != 2 {
		t.Fatalf("expected 2 registered, got %d", stats.RegisteredCount)
	}
	if stats.TotalVotes != 1 {
		t.Fatalf("expected 1 vote cast, got %d", stats.TotalVotes)
	}
	if stats.Phase != entities.PhaseOpen {
		t.Fatalf("expected open phase inside window, got %s", stats.Phase)
	}

	clock.now = base.Add(4 * time.Hour)
	stats, err = reads.Stats(context.Background(), electionID)
	if err != nil {
		t.Fatalf("stats after close failed: %v", err)
	}
	if stats.Phase != entities.PhaseClosed {
		t.Fatalf("expected closed phase after window, got %s", stats.Phase)
	}

	_, err = reads.Stats(context.Background(), "missing-election")
	if !errors.Is(err, domainerrors.ErrElectionNotFound) {
		t.Fatalf("expected election not found, got %v", err)
	}
}
