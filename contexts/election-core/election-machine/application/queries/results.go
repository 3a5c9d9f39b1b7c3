package queries

import (
	"context"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"ballotbox/contexts/election-core/election-machine/domain/entities"
	domainerrors "ballotbox/contexts/election-core/election-machine/domain/errors"
	"ballotbox/contexts/election-core/election-machine/ports"
)

// ResultsUseCase serves the pure read operations. Reads take no transition
// lock: every repository write is atomic, so a read only ever observes state
// between complete transitions.
type ResultsUseCase struct {
	Elections ports.ElectionRepository
	Clock     ports.Clock
}

// VerifyVote reports whether the stored commitment for a voter equals the
// supplied one. A voter without a record is an error, not a false result.
func (uc ResultsUseCase) VerifyVote(
	ctx context.Context,
	electionID string,
	voterID string,
	commitment common.Hash,
) (bool, error) {
	record, voted, err := uc.Elections.GetVote(ctx, strings.TrimSpace(electionID), strings.TrimSpace(voterID))
	if err != nil {
		return false, err
	}
	if !voted {
		return false, domainerrors.ErrHasNotVoted
	}
	return record.Commitment == commitment, nil
}

// Results returns counts in the election's declared candidate order, zero
// counts included. Unavailable until a reveal has committed.
func (uc ResultsUseCase) Results(ctx context.Context, electionID string) (entities.ElectionResults, error) {
	election, err := uc.Elections.GetElection(ctx, strings.TrimSpace(electionID))
	if err != nil {
		return entities.ElectionResults{}, err
	}
	if !election.ResultsRevealed {
		return entities.ElectionResults{}, domainerrors.ErrResultsNotReady
	}
	tally, err := uc.Elections.GetTally(ctx, election.ElectionID)
	if err != nil {
		return entities.ElectionResults{}, err
	}
	counts := make(map[string]int, len(tally))
	for _, entry := range tally {
		counts[entry.CandidateID] = entry.Count
	}
	results := entities.ElectionResults{
		ElectionID:   election.ElectionID,
		CandidateIDs: election.CandidateIDs,
		Counts:       make([]int, len(election.CandidateIDs)),
	}
	for i, candidateID := range election.CandidateIDs {
		results.Counts[i] = counts[candidateID]
	}
	return results, nil
}

// Stats is always available and has no failure mode beyond a missing
// election. Registered and cast counts are reported separately.
func (uc ResultsUseCase) Stats(ctx context.Context, electionID string) (entities.ElectionStats, error) {
	election, err := uc.Elections.GetElection(ctx, strings.TrimSpace(electionID))
	if err != nil {
		return entities.ElectionStats{}, err
	}
	registered, err := uc.Elections.CountRegistered(ctx, election.ElectionID)
	if err != nil {
		return entities.ElectionStats{}, err
	}
	return entities.ElectionStats{
		ElectionID:      election.ElectionID,
		RegisteredCount: registered,
		TotalVotes:      election.TotalVotes,
		VotingStart:     election.VotingStart,
		VotingEnd:       election.VotingEnd,
		Paused:          election.Paused,
		ResultsRevealed: election.ResultsRevealed,
		Phase:           election.Phase(uc.now()),
	}, nil
}

// Election fetches one aggregate for the API read surface.
func (uc ResultsUseCase) Election(ctx context.Context, electionID string) (entities.Election, error) {
	return uc.Elections.GetElection(ctx, strings.TrimSpace(electionID))
}

// ListElections returns all aggregates ordered by creation time.
func (uc ResultsUseCase) ListElections(ctx context.Context) ([]entities.Election, error) {
	return uc.Elections.ListElections(ctx)
}

func (uc ResultsUseCase) now() time.Time {
	now := time.Now().UTC()
	if uc.Clock != nil {
		now = uc.Clock.Now().UTC()
	}
	return now
}
