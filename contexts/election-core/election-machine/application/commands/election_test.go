package commands_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/crypto"

	"ballotbox/contexts/election-core/election-machine/adapters/memory"
	"ballotbox/contexts/election-core/election-machine/application/commands"
	domainerrors "ballotbox/contexts/election-core/election-machine/domain/errors"
)

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	return c.now
}

var base = time.Date(2026, time.March, 1, 12, 0, 0, 0, time.UTC)

func newUseCase() (*commands.ElectionUseCase, *memory.Store, *fakeClock) {
	store := memory.NewStore(nil)
	clock := &fakeClock{now: base}
	return &commands.ElectionUseCase{
		Elections: store,
		Outbox:    store,
		Clock:     clock,
		IDGen:     store,
	}, store, clock
}

func createElection(t *testing.T, uc *commands.ElectionUseCase, candidates ...string) string {
	t.Helper()
	election, err := uc.CreateElection(context.Background(), commands.CreateElectionCommand{
		AuthorityID:  "authority-1",
		Title:        "Board election",
		VotingStart:  base.Add(1 * time.Hour),
		VotingEnd:    base.Add(3 * time.Hour),
		CandidateIDs: candidates,
	})
	if err != nil {
		t.Fatalf("create election failed: %v", err)
	}
	return election.ElectionID
}

func register(t *testing.T, uc *commands.ElectionUseCase, electionID string, voterIDs ...string) {
	t.Helper()
	for _, voterID := range voterIDs {
		err := uc.Register(context.Background(), commands.RegisterCommand{
			ElectionID: electionID,
			CallerID:   "authority-1",
			VoterID:    voterID,
		})
		if err != nil {
			t.Fatalf("register %s failed: %v", voterID, err)
		}
	}
}

func TestCreateElectionValidation(t *testing.T) {
	uc, _, _ := newUseCase()

	_, err := uc.CreateElection(context.Background(), commands.CreateElectionCommand{
		AuthorityID:  "   ",
		VotingStart:  base,
		VotingEnd:    base.Add(time.Hour),
		CandidateIDs: []string{"candidate-1"},
	})
	if !errors.Is(err, domainerrors.ErrInvalidIdentity) {
		t.Fatalf("expected invalid identity, got %v", err)
	}

	_, err = uc.CreateElection(context.Background(), commands.CreateElectionCommand{
		AuthorityID:  "authority-1",
		VotingStart:  base.Add(time.Hour),
		VotingEnd:    base,
		CandidateIDs: []string{"candidate-1"},
	})
	if !errors.Is(err, domainerrors.ErrInvalidWindow) {
		t.Fatalf("expected invalid window, got %v", err)
	}

	_, err = uc.CreateElection(context.Background(), commands.CreateElectionCommand{
		AuthorityID: "authority-1",
		VotingStart: base,
		VotingEnd:   base.Add(time.Hour),
	})
	if !errors.Is(err, domainerrors.ErrNoCandidates) {
		t.Fatalf("expected no candidates, got %v", err)
	}

	_, err = uc.CreateElection(context.Background(), commands.CreateElectionCommand{
		AuthorityID:  "authority-1",
		VotingStart:  base,
		VotingEnd:    base.Add(time.Hour),
		CandidateIDs: []string{"candidate-1", "candidate-1"},
	})
	if !errors.Is(err, domainerrors.ErrDuplicateCandidate) {
		t.Fatalf("expected duplicate candidate, got %v", err)
	}
}

func TestRegisterIsWriteOnce(t *testing.T) {
	uc, _, _ := newUseCase()
	electionID := createElection(t, uc, "candidate-1")

	register(t, uc, electionID, "voter-1")

	err := uc.Register(context.Background(), commands.RegisterCommand{
		ElectionID: electionID,
		CallerID:   "authority-1",
		VoterID:    "voter-1",
	})
	if !errors.Is(err, domainerrors.ErrAlreadyRegistered) {
		t.Fatalf("expected already registered, got %v", err)
	}

	err = uc.Register(context.Background(), commands.RegisterCommand{
		ElectionID: electionID,
		CallerID:   "intruder",
		VoterID:    "voter-2",
	})
	if !errors.Is(err, domainerrors.ErrUnauthorized) {
		t.Fatalf("expected unauthorized, got %v", err)
	}

	err = uc.Register(context.Background(), commands.RegisterCommand{
		ElectionID: electionID,
		CallerID:   "authority-1",
		VoterID:    "   ",
	})
	if !errors.Is(err, domainerrors.ErrInvalidIdentity) {
		t.Fatalf("expected invalid identity, got %v", err)
	}
}

func TestCastVoteWindowBoundariesAreInclusive(t *testing.T) {
	uc, _, clock := newUseCase()
	electionID := createElection(t, uc, "candidate-1")
	register(t, uc, electionID, "voter-1", "voter-2", "voter-3")

	start := base.Add(1 * time.Hour)
	end := base.Add(3 * time.Hour)

	clock.now = start.Add(-time.Second)
	_, err := uc.CastVote(context.Background(), commands.CastVoteCommand{
		ElectionID: electionID,
		VoterID:    "voter-1",
		Commitment: crypto.Keccak256Hash([]byte("ballot-1")),
	})
	if !errors.Is(err, domainerrors.ErrVotingNotOpen) {
		t.Fatalf("expected voting not open before start, got %v", err)
	}

	clock.now = start
	if _, err := uc.CastVote(context.Background(), commands.CastVoteCommand{
		ElectionID: electionID,
		VoterID:    "voter-1",
		Commitment: crypto.Keccak256Hash([]byte("ballot-1")),
	}); err != nil {
		t.Fatalf("cast exactly at start failed: %v", err)
	}

	clock.now = end
	if _, err := uc.CastVote(context.Background(), commands.CastVoteCommand{
		ElectionID: electionID,
		VoterID:    "voter-2",
		Commitment: crypto.Keccak256Hash([]byte("ballot-2")),
	}); err != nil {
		t.Fatalf("cast exactly at end failed: %v", err)
	}

	clock.now = end.Add(time.Second)
	_, err = uc.CastVote(context.Background(), commands.CastVoteCommand{
		ElectionID: electionID,
		VoterID:    "voter-3",
		Commitment: crypto.Keccak256Hash([]byte("ballot-3")),
	})
	if !errors.Is(err, domainerrors.ErrVotingClosed) {
		t.Fatalf("expected voting closed after end, got %v", err)
	}
}

func TestCastVoteRejections(t *testing.T) {
	uc, store, clock := newUseCase()
	electionID := createElection(t, uc, "candidate-1")
	register(t, uc, electionID, "voter-1", "voter-2")
	clock.now = base.Add(2 * time.Hour)

	_, err := uc.CastVote(context.Background(), commands.CastVoteCommand{
		ElectionID: electionID,
		VoterID:    "stranger",
		Commitment: crypto.Keccak256Hash([]byte("ballot-x")),
	})
	if !errors.Is(err, domainerrors.ErrNotRegistered) {
		t.Fatalf("expected not registered, got %v", err)
	}

	_, err = uc.CastVote(context.Background(), commands.CastVoteCommand{
		ElectionID: electionID,
		VoterID:    "voter-1",
	})
	if !errors.Is(err, domainerrors.ErrEmptyCommitment) {
		t.Fatalf("expected empty commitment, got %v", err)
	}

	commitment := crypto.Keccak256Hash([]byte("ballot-1"))
	if _, err := uc.CastVote(context.Background(), commands.CastVoteCommand{
		ElectionID: electionID,
		VoterID:    "voter-1",
		Commitment: commitment,
	}); err != nil {
		t.Fatalf("first cast failed: %v", err)
	}

	_, err = uc.CastVote(context.Background(), commands.CastVoteCommand{
		ElectionID: electionID,
		VoterID:    "voter-1",
		Commitment: crypto.Keccak256Hash([]byte("ballot-other")),
	})
	if !errors.Is(err, domainerrors.ErrAlreadyVoted) {
		t.Fatalf("expected already voted, got %v", err)
	}

	_, err = uc.CastVote(context.Background(), commands.CastVoteCommand{
		ElectionID: electionID,
		VoterID:    "voter-2",
		Commitment: commitment,
	})
	if !errors.Is(err, domainerrors.ErrCommitmentReused) {
		t.Fatalf("expected commitment reused, got %v", err)
	}

	election, err := store.GetElection(context.Background(), electionID)
	if err != nil {
		t.Fatalf("get election failed: %v", err)
	}
	if election.TotalVotes != 1 {
		t.Fatalf("expected one counted vote after rejections, got %d", election.TotalVotes)
	}
}

func TestPauseBlocksWritesUntilUnpause(t *testing.T) {
	uc, _, clock := newUseCase()
	electionID := createElection(t, uc, "candidate-1")
	register(t, uc, electionID, "voter-1")
	clock.now = base.Add(2 * time.Hour)

	if _, err := uc.Pause(context.Background(), electionID, "authority-1"); err != nil {
		t.Fatalf("pause failed: %v", err)
	}

	_, err := uc.CastVote(context.Background(), commands.CastVoteCommand{
		ElectionID: electionID,
		VoterID:    "voter-1",
		Commitment: crypto.Keccak256Hash([]byte("ballot-1")),
	})
	if !errors.Is(err, domainerrors.ErrElectionPaused) {
		t.Fatalf("expected paused rejection, got %v", err)
	}

	err = uc.Register(context.Background(), commands.RegisterCommand{
		ElectionID: electionID,
		CallerID:   "authority-1",
		VoterID:    "voter-2",
	})
	if !errors.Is(err, domainerrors.ErrElectionPaused) {
		t.Fatalf("expected paused registration rejection, got %v", err)
	}

	if _, err := uc.Unpause(context.Background(), electionID, "authority-1"); err != nil {
		t.Fatalf("unpause failed: %v", err)
	}
	if _, err := uc.CastVote(context.Background(), commands.CastVoteCommand{
		ElectionID: electionID,
		VoterID:    "voter-1",
		Commitment: crypto.Keccak256Hash([]byte("ballot-1")),
	}); err != nil {
		t.Fatalf("cast after unpause failed: %v", err)
	}
}

func TestRevealPreconditions(t *testing.T) {
	uc, _, clock := newUseCase()
	electionID := createElection(t, uc, "candidate-1")
	register(t, uc, electionID, "voter-1")
	clock.now = base.Add(2 * time.Hour)
	if _, err := uc.CastVote(context.Background(), commands.CastVoteCommand{
		ElectionID: electionID,
		VoterID:    "voter-1",
		Commitment: crypto.Keccak256Hash([]byte("ballot-1")),
	}); err != nil {
		t.Fatalf("cast failed: %v", err)
	}

	_, err := uc.RevealResults(context.Background(), commands.RevealCommand{
		ElectionID:       electionID,
		CallerID:         "intruder",
		VoterIDs:         []string{"voter-1"},
		CandidateChoices: []string{"candidate-1"},
	})
	if !errors.Is(err, domainerrors.ErrUnauthorized) {
		t.Fatalf("expected unauthorized, got %v", err)
	}

	_, err = uc.RevealResults(context.Background(), commands.RevealCommand{
		ElectionID:       electionID,
		CallerID:         "authority-1",
		VoterIDs:         []string{"voter-1"},
		CandidateChoices: []string{"candidate-1"},
	})
	if !errors.Is(err, domainerrors.ErrVotingInProgress) {
		t.Fatalf("expected reveal before window end to fail, got %v", err)
	}

	clock.now = base.Add(4 * time.Hour)
	_, err = uc.RevealResults(context.Background(), commands.RevealCommand{
		ElectionID:       electionID,
		CallerID:         "authority-1",
		VoterIDs:         []string{"voter-1", "voter-2"},
		CandidateChoices: []string{"candidate-1"},
	})
	if !errors.Is(err, domainerrors.ErrLengthMismatch) {
		t.Fatalf("expected length mismatch, got %v", err)
	}

	_, err = uc.RevealResults(context.Background(), commands.RevealCommand{
		ElectionID:       electionID,
		CallerID:         "authority-1",
		VoterIDs:         []string{"voter-1", "voter-2"},
		CandidateChoices: []string{"candidate-1", "candidate-1"},
	})
	if !errors.Is(err, domainerrors.ErrVoterCountExceedsTotal) {
		t.Fatalf("expected voter count exceeds total, got %v", err)
	}
}

func TestRevealBatchIsAllOrNothing(t *testing.T) {
	uc, store, clock := newUseCase()
	electionID := createElection(t, uc, "candidate-1", "candidate-2")
	register(t, uc, electionID, "voter-1", "voter-2", "voter-3")
	clock.now = base.Add(2 * time.Hour)
	for i, voterID := range []string{"voter-1", "voter-2", "voter-3"} {
		if _, err := uc.CastVote(context.Background(), commands.CastVoteCommand{
			ElectionID: electionID,
			VoterID:    voterID,
			Commitment: crypto.Keccak256Hash([]byte{byte(i)}),
		}); err != nil {
			t.Fatalf("cast %s failed: %v", voterID, err)
		}
	}
	clock.now = base.Add(4 * time.Hour)

	// Third entry names a candidate outside the declared list; the first two
	// valid entries must leave no trace behind.
	_, err := uc.RevealResults(context.Background(), commands.RevealCommand{
		ElectionID:       electionID,
		CallerID:         "authority-1",
		VoterIDs:         []string{"voter-1", "voter-2", "voter-3"},
		CandidateChoices: []string{"candidate-1", "candidate-2", "candidate-9"},
	})
	if !errors.Is(err, domainerrors.ErrInvalidCandidate) {
		t.Fatalf("expected invalid candidate, got %v", err)
	}

	election, err := store.GetElection(context.Background(), electionID)
	if err != nil {
		t.Fatalf("get election failed: %v", err)
	}
	if election.ResultsRevealed {
		t.Fatalf("expected revealed flag untouched after aborted batch")
	}
	tally, err := store.GetTally(context.Background(), electionID)
	if err != nil {
		t.Fatalf("get tally failed: %v", err)
	}
	if len(tally) != 0 {
		t.Fatalf("expected no tally rows after aborted batch, got %d", len(tally))
	}
	record, voted, err := store.GetVote(context.Background(), electionID, "voter-1")
	if err != nil || !voted {
		t.Fatalf("expected voter-1 record to survive, voted=%v err=%v", voted, err)
	}
	if record.VerifiedAtReveal {
		t.Fatalf("expected voter-1 record unverified after aborted batch")
	}

	_, err = uc.RevealResults(context.Background(), commands.RevealCommand{
		ElectionID:       electionID,
		CallerID:         "authority-1",
		VoterIDs:         []string{"voter-1", "ghost"},
		CandidateChoices: []string{"candidate-1", "candidate-2"},
	})
	if !errors.Is(err, domainerrors.ErrHasNotVoted) {
		t.Fatalf("expected has not voted, got %v", err)
	}

	_, err = uc.RevealResults(context.Background(), commands.RevealCommand{
		ElectionID:       electionID,
		CallerID:         "authority-1",
		VoterIDs:         []string{"voter-1", "voter-1"},
		CandidateChoices: []string{"candidate-1", "candidate-2"},
	})
	if !errors.Is(err, domainerrors.ErrAlreadyVerified) {
		t.Fatalf("expected already verified for in-batch duplicate, got %v", err)
	}
}

func TestRevealTallyAndOneWayFlag(t *testing.T) {
	uc, store, clock := newUseCase()
	electionID := createElection(t, uc, "candidate-1", "candidate-2", "candidate-3")
	register(t, uc, electionID, "voter-1", "voter-2")
	clock.now = base.Add(2 * time.Hour)
	for i, voterID := range []string{"voter-1", "voter-2"} {
		if _, err := uc.CastVote(context.Background(), commands.CastVoteCommand{
			ElectionID: electionID,
			VoterID:    voterID,
			Commitment: crypto.Keccak256Hash([]byte{byte(i)}),
		}); err != nil {
			t.Fatalf("cast %s failed: %v", voterID, err)
		}
	}
	clock.now = base.Add(4 * time.Hour)

	results, err := uc.RevealResults(context.Background(), commands.RevealCommand{
		ElectionID:       electionID,
		CallerID:         "authority-1",
		VoterIDs:         []string{"voter-1", "voter-2"},
		CandidateChoices: []string{"candidate-1", "candidate-2"},
	})
	if err != nil {
		t.Fatalf("reveal failed: %v", err)
	}
	if len(results.Counts) != 3 {
		t.Fatalf("expected a count per declared candidate, got %d", len(results.Counts))
	}
	for i, want := range []int{1, 1, 0} {
		if results.Counts[i] != want {
			t.Fatalf("count[%d] = %d, want %d", i, results.Counts[i], want)
		}
	}

	record, voted, err := store.GetVote(context.Background(), electionID, "voter-1")
	if err != nil || !voted {
		t.Fatalf("expected voter-1 record, voted=%v err=%v", voted, err)
	}
	if !record.VerifiedAtReveal {
		t.Fatalf("expected voter-1 record verified after reveal")
	}

	_, err = uc.RevealResults(context.Background(), commands.RevealCommand{
		ElectionID:       electionID,
		CallerID:         "authority-1",
		VoterIDs:         []string{"voter-2"},
		CandidateChoices: []string{"candidate-2"},
	})
	if !errors.Is(err, domainerrors.ErrAlreadyRevealed) {
		t.Fatalf("expected already revealed, got %v", err)
	}
}

func TestMutationsAppendOutboxEvents(t *testing.T) {
	uc, store, clock := newUseCase()
	electionID := createElection(t, uc, "candidate-1")
	register(t, uc, electionID, "voter-1")
	clock.now = base.Add(2 * time.Hour)
	if _, err := uc.CastVote(context.Background(), commands.CastVoteCommand{
		ElectionID: electionID,
		VoterID:    "voter-1",
		Commitment: crypto.Keccak256Hash([]byte("ballot-1")),
	}); err != nil {
		t.Fatalf("cast failed: %v", err)
	}

	pending, err := store.ListPendingOutbox(context.Background(), 10)
	if err != nil {
		t.Fatalf("list pending outbox failed: %v", err)
	}
	if len(pending) != 3 {
		t.Fatalf("expected created+registered+cast outbox rows, got %d", len(pending))
	}
}
