package httpadapter

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"ballotbox/contexts/election-core/election-machine/application/commands"
	"ballotbox/contexts/election-core/election-machine/application/queries"
	"ballotbox/contexts/election-core/election-machine/domain/entities"
	domainerrors "ballotbox/contexts/election-core/election-machine/domain/errors"
	httptransport "ballotbox/contexts/election-core/election-machine/transport/http"
)

type Handler struct {
	Elections *commands.ElectionUseCase
	Reads     queries.ResultsUseCase
	Logger    *slog.Logger
}

func (h Handler) CreateElectionHandler(
	ctx context.Context,
	callerID string,
	req httptransport.CreateElectionRequest,
) (httptransport.ElectionResponse, error) {
	start, err := parseTimestamp(req.VotingStart)
	if err != nil {
		return httptransport.ElectionResponse{}, domainerrors.ErrInvalidWindow
	}
	end, err := parseTimestamp(req.VotingEnd)
	if err != nil {
		return httptransport.ElectionResponse{}, domainerrors.ErrInvalidWindow
	}
	election, err := h.Elections.CreateElection(ctx, commands.CreateElectionCommand{
		AuthorityID:  callerID,
		Title:        req.Title,
		VotingStart:  start,
		VotingEnd:    end,
		CandidateIDs: req.CandidateIDs,
	})
	if err != nil {
		return httptransport.ElectionResponse{}, err
	}
	return mapElection(election, ""), nil
}

func (h Handler) ListElectionsHandler(ctx context.Context) (httptransport.ElectionListResponse, error) {
	elections, err := h.Reads.ListElections(ctx)
	if err != nil {
		return httptransport.ElectionListResponse{}, err
	}
	items := make([]httptransport.ElectionResponse, 0, len(elections))
	for _, election := range elections {
		items = append(items, mapElection(election, ""))
	}
	return httptransport.ElectionListResponse{Items: items}, nil
}

func (h Handler) GetElectionHandler(ctx context.Context, electionID string) (httptransport.ElectionResponse, error) {
	stats, err := h.Reads.Stats(ctx, electionID)
	if err != nil {
		return httptransport.ElectionResponse{}, err
	}
	election, err := h.Reads.Election(ctx, electionID)
	if err != nil {
		return httptransport.ElectionResponse{}, err
	}
	return mapElection(election, string(stats.Phase)), nil
}

func (h Handler) PauseHandler(ctx context.Context, electionID string, callerID string, paused bool) (httptransport.ElectionResponse, error) {
	var (
		election entities.Election
		err      error
	)
	if paused {
		election, err = h.Elections.Pause(ctx, electionID, callerID)
	} else {
		election, err = h.Elections.Unpause(ctx, electionID, callerID)
	}
	if err != nil {
		return httptransport.ElectionResponse{}, err
	}
	return mapElection(election, ""), nil
}

func (h Handler) RegisterParticipantHandler(
	ctx context.Context,
	electionID string,
	callerID string,
	req httptransport.RegisterParticipantRequest,
) error {
	return h.Elections.Register(ctx, commands.RegisterCommand{
		ElectionID: electionID,
		CallerID:   callerID,
		VoterID:    req.VoterID,
	})
}

func (h Handler) CastVoteHandler(
	ctx context.Context,
	electionID string,
	callerID string,
	req httptransport.CastVoteRequest,
) (httptransport.CastVoteResponse, error) {
	commitment, err := parseCommitment(req.Commitment)
	if err != nil {
		return httptransport.CastVoteResponse{}, err
	}
	record, err := h.Elections.CastVote(ctx, commands.CastVoteCommand{
		ElectionID: electionID,
		VoterID:    callerID,
		Commitment: commitment,
	})
	if err != nil {
		return httptransport.CastVoteResponse{}, err
	}
	return httptransport.CastVoteResponse{
		ElectionID: record.ElectionID,
		VoterID:    record.VoterID,
		Commitment: record.Commitment.Hex(),
		CastAt:     record.CastAt.Format(time.RFC3339),
	}, nil
}

func (h Handler) VerifyVoteHandler(
	ctx context.Context,
	electionID string,
	voterID string,
	commitmentHex string,
) (httptransport.VerifyVoteResponse, error) {
	commitment, err := parseCommitment(commitmentHex)
	if err != nil {
		return httptransport.VerifyVoteResponse{}, err
	}
	matches, err := h.Reads.VerifyVote(ctx, electionID, voterID, commitment)
	if err != nil {
		return httptransport.VerifyVoteResponse{}, err
	}
	return httptransport.VerifyVoteResponse{
		ElectionID: strings.TrimSpace(electionID),
		VoterID:    strings.TrimSpace(voterID),
		Matches:    matches,
	}, nil
}

func (h Handler) RevealResultsHandler(
	ctx context.Context,
	electionID string,
	callerID string,
	req httptransport.RevealResultsRequest,
) (httptransport.ResultsResponse, error) {
	results, err := h.Elections.RevealResults(ctx, commands.RevealCommand{
		ElectionID:       electionID,
		CallerID:         callerID,
		VoterIDs:         req.VoterIDs,
		CandidateChoices: req.CandidateChoices,
	})
	if err != nil {
		return httptransport.ResultsResponse{}, err
	}
	return mapResults(results), nil
}

func (h Handler) ResultsHandler(ctx context.Context, electionID string) (httptransport.ResultsResponse, error) {
	results, err := h.Reads.Results(ctx, electionID)
	if err != nil {
		return httptransport.ResultsResponse{}, err
	}
	return mapResults(results), nil
}

func (h Handler) StatsHandler(ctx context.Context, electionID string) (httptransport.StatsResponse, error) {
	stats, err := h.Reads.Stats(ctx, electionID)
	if err != nil {
		return httptransport.StatsResponse{}, err
	}
	return httptransport.StatsResponse{
		ElectionID:      stats.ElectionID,
		RegisteredCount: stats.RegisteredCount,
		TotalVotes:      stats.TotalVotes,
		VotingStart:     stats.VotingStart.Format(time.RFC3339),
		VotingEnd:       stats.VotingEnd.Format(time.RFC3339),
		Paused:          stats.Paused,
		ResultsRevealed: stats.ResultsRevealed,
		Phase:           string(stats.Phase),
	}, nil
}

// parseCommitment accepts a 0x-prefixed 32-byte hex value. Empty input maps to
// the zero hash so the use case reports EmptyCommitment; anything else that
// fails to decode is malformed at the transport boundary.
func parseCommitment(raw string) (common.Hash, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return common.Hash{}, nil
	}
	decoded, err := hexutil.Decode(raw)
	if err != nil || len(decoded) != common.HashLength {
		return common.Hash{}, domainerrors.ErrMalformedCommitment
	}
	return common.BytesToHash(decoded), nil
}

func parseTimestamp(raw string) (time.Time, error) {
	return time.Parse(time.RFC3339, strings.TrimSpace(raw))
}

func mapElection(election entities.Election, phase string) httptransport.ElectionResponse {
	return httptransport.ElectionResponse{
		ElectionID:      election.ElectionID,
		AuthorityID:     election.AuthorityID,
		Title:           election.Title,
		VotingStart:     election.VotingStart.Format(time.RFC3339),
		VotingEnd:       election.VotingEnd.Format(time.RFC3339),
		CandidateIDs:    election.CandidateIDs,
		Paused:          election.Paused,
		ResultsRevealed: election.ResultsRevealed,
		TotalVotes:      election.TotalVotes,
		Phase:           phase,
	}
}

func mapResults(results entities.ElectionResults) httptransport.ResultsResponse {
	return httptransport.ResultsResponse{
		ElectionID:   results.ElectionID,
		CandidateIDs: results.CandidateIDs,
		Counts:       results.Counts,
	}
}
