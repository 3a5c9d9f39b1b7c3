package commands

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"

	application "ballotbox/contexts/election-core/election-machine/application"
	"ballotbox/contexts/election-core/election-machine/domain/entities"
	domainerrors "ballotbox/contexts/election-core/election-machine/domain/errors"
	"ballotbox/contexts/election-core/election-machine/ports"
)

// CreateElectionCommand is the write-model input for election creation.
type CreateElectionCommand struct {
	AuthorityID  string
	Title        string
	VotingStart  time.Time
	VotingEnd    time.Time
	CandidateIDs []string
}

// PauseCommand flips the paused flag; Paused carries the target value.
type PauseCommand struct {
	ElectionID string
	CallerID   string
	Paused     bool
}

// RegisterCommand marks one participant eligible to vote.
type RegisterCommand struct {
	ElectionID string
	CallerID   string
	VoterID    string
}

// CastVoteCommand submits one opaque commitment for the calling voter.
type CastVoteCommand struct {
	ElectionID string
	VoterID    string
	Commitment common.Hash
}

// RevealCommand binds previously cast commitments to plaintext choices.
// VoterIDs and CandidateChoices are parallel arrays processed in order.
type RevealCommand struct {
	ElectionID       string
	CallerID         string
	VoterIDs         []string
	CandidateChoices []string
}

// ElectionUseCase orchestrates all election state transitions. Every mutation
// runs under one exclusive mutex so no transition can observe another's
// partial state; the clock is read once at call entry and never re-read.
// Observer notifications go through the outbox, so nothing downstream can
// re-enter a mutation in progress.
type ElectionUseCase struct {
	Elections ports.ElectionRepository
	Outbox    ports.OutboxWriter
	Clock     ports.Clock
	IDGen     ports.IDGenerator
	Logger    *slog.Logger

	mu sync.Mutex
}

// CreateElection validates and persists a new election aggregate. The caller
// becomes the election's authority.
func (uc *ElectionUseCase) CreateElection(ctx context.Context, cmd CreateElectionCommand) (entities.Election, error) {
	logger := application.ResolveLogger(uc.Logger)
	authorityID := strings.TrimSpace(cmd.AuthorityID)
	logger.Info("election create processing started",
		"event", "election_create_started",
		"module", "election-core/election-machine",
		"layer", "application",
		"authority_id", authorityID,
	)
	if authorityID == "" {
		return entities.Election{}, uc.reject(logger, "election_create_rejected", domainerrors.ErrInvalidIdentity,
			"authority_id", authorityID)
	}
	if cmd.VotingStart.IsZero() || cmd.VotingEnd.IsZero() || !cmd.VotingStart.Before(cmd.VotingEnd) {
		return entities.Election{}, uc.reject(logger, "election_create_rejected", domainerrors.ErrInvalidWindow,
			"authority_id", authorityID)
	}
	candidates := make([]string, 0, len(cmd.CandidateIDs))
	seen := make(map[string]struct{}, len(cmd.CandidateIDs))
	for _, raw := range cmd.CandidateIDs {
		id := strings.TrimSpace(raw)
		if id == "" {
			continue
		}
		if _, dup := seen[id]; dup {
			return entities.Election{}, uc.reject(logger, "election_create_rejected", domainerrors.ErrDuplicateCandidate,
				"authority_id", authorityID, "candidate_id", id)
		}
		seen[id] = struct{}{}
		candidates = append(candidates, id)
	}
	if len(candidates) == 0 {
		return entities.Election{}, uc.reject(logger, "election_create_rejected", domainerrors.ErrNoCandidates,
			"authority_id", authorityID)
	}

	uc.mu.Lock()
	defer uc.mu.Unlock()

	now := uc.now()
	electionID, err := uc.IDGen.NewID(ctx)
	if err != nil {
		return entities.Election{}, err
	}
	election := entities.Election{
		ElectionID:   electionID,
		AuthorityID:  authorityID,
		Title:        strings.TrimSpace(cmd.Title),
		VotingStart:  cmd.VotingStart.UTC(),
		VotingEnd:    cmd.VotingEnd.UTC(),
		CandidateIDs: candidates,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := uc.Elections.SaveElection(ctx, election); err != nil {
		return entities.Election{}, err
	}
	if err := uc.appendElectionEvent(ctx, "election.created", election, now, map[string]any{
		"voting_start": election.VotingStart.Format(time.RFC3339),
		"voting_end":   election.VotingEnd.Format(time.RFC3339),
		"candidates":   election.CandidateIDs,
	}); err != nil {
		return entities.Election{}, err
	}
	logger.Info("election created",
		"event", "election_created",
		"module", "election-core/election-machine",
		"layer", "application",
		"election_id", election.ElectionID,
		"authority_id", election.AuthorityID,
		"candidate_count", len(election.CandidateIDs),
	)
	return election, nil
}

// Pause halts registration and vote casting until Unpause. The flip is
// unconditional; pausing an already paused election is a no-op write.
func (uc *ElectionUseCase) Pause(ctx context.Context, electionID string, callerID string) (entities.Election, error) {
	return uc.setPaused(ctx, PauseCommand{ElectionID: electionID, CallerID: callerID, Paused: true})
}

// Unpause restores normal time-based gating without touching any vote state.
func (uc *ElectionUseCase) Unpause(ctx context.Context, electionID string, callerID string) (entities.Election, error) {
	return uc.setPaused(ctx, PauseCommand{ElectionID: electionID, CallerID: callerID, Paused: false})
}

func (uc *ElectionUseCase) setPaused(ctx context.Context, cmd PauseCommand) (entities.Election, error) {
	logger := application.ResolveLogger(uc.Logger)

	uc.mu.Lock()
	defer uc.mu.Unlock()

	now := uc.now()
	election, err := uc.Elections.GetElection(ctx, strings.TrimSpace(cmd.ElectionID))
	if err != nil {
		return entities.Election{}, err
	}
	if !identityEqual(cmd.CallerID, election.AuthorityID) {
		return entities.Election{}, uc.reject(logger, "election_pause_rejected", domainerrors.ErrUnauthorized,
			"election_id", election.ElectionID, "caller_id", strings.TrimSpace(cmd.CallerID))
	}

	election.Paused = cmd.Paused
	election.UpdatedAt = now
	if err := uc.Elections.SaveElection(ctx, election); err != nil {
		return entities.Election{}, err
	}
	if err := uc.appendElectionEvent(ctx, "election.pause_changed", election, now, map[string]any{
		"paused": election.Paused,
	}); err != nil {
		return entities.Election{}, err
	}
	logger.Info("election pause flag changed",
		"event", "election_pause_changed",
		"module", "election-core/election-machine",
		"layer", "application",
		"election_id", election.ElectionID,
		"paused", election.Paused,
	)
	return election, nil
}

// Register marks a participant eligible. Registration is write-once; a second
// attempt for the same identity is rejected without any state change.
func (uc *ElectionUseCase) Register(ctx context.Context, cmd RegisterCommand) error {
	logger := application.ResolveLogger(uc.Logger)
	voterID := strings.TrimSpace(cmd.VoterID)
	logger.Info("participant registration started",
		"event", "election_register_started",
		"module", "election-core/election-machine",
		"layer", "application",
		"election_id", strings.TrimSpace(cmd.ElectionID),
		"voter_id", voterID,
	)

	uc.mu.Lock()
	defer uc.mu.Unlock()

	now := uc.now()
	election, err := uc.Elections.GetElection(ctx, strings.TrimSpace(cmd.ElectionID))
	if err != nil {
		return err
	}
	if !identityEqual(cmd.CallerID, election.AuthorityID) {
		return uc.reject(logger, "election_register_rejected", domainerrors.ErrUnauthorized,
			"election_id", election.ElectionID, "caller_id", strings.TrimSpace(cmd.CallerID))
	}
	if election.Paused {
		return uc.reject(logger, "election_register_rejected", domainerrors.ErrElectionPaused,
			"election_id", election.ElectionID)
	}
	if voterID == "" {
		return uc.reject(logger, "election_register_rejected", domainerrors.ErrInvalidIdentity,
			"election_id", election.ElectionID)
	}
	registered, err := uc.Elections.IsRegistered(ctx, election.ElectionID, voterID)
	if err != nil {
		return err
	}
	if registered {
		return uc.reject(logger, "election_register_rejected", domainerrors.ErrAlreadyRegistered,
			"election_id", election.ElectionID, "voter_id", voterID)
	}

	if err := uc.Elections.RegisterParticipant(ctx, entities.Participant{
		ElectionID:   election.ElectionID,
		VoterID:      voterID,
		RegisteredAt: now,
	}); err != nil {
		return err
	}
	if err := uc.appendElectionEvent(ctx, "election.participant_registered", election, now, map[string]any{
		"voter_id": voterID,
	}); err != nil {
		return err
	}
	logger.Info("participant registered",
		"event", "election_participant_registered",
		"module", "election-core/election-machine",
		"layer", "application",
		"election_id", election.ElectionID,
		"voter_id", voterID,
	)
	return nil
}

// CastVote accepts one commitment per registered voter inside the inclusive
// voting window. The record write, the uniqueness entry and the counter bump
// commit as a single repository operation under the transition lock.
func (uc *ElectionUseCase) CastVote(ctx context.Context, cmd CastVoteCommand) (entities.VoteRecord, error) {
	logger := application.ResolveLogger(uc.Logger)
	voterID := strings.TrimSpace(cmd.VoterID)
	logger.Info("vote cast processing started",
		"event", "election_cast_started",
		"module", "election-core/election-machine",
		"layer", "application",
		"election_id", strings.TrimSpace(cmd.ElectionID),
		"voter_id", voterID,
	)

	uc.mu.Lock()
	defer uc.mu.Unlock()

	now := uc.now()
	election, err := uc.Elections.GetElection(ctx, strings.TrimSpace(cmd.ElectionID))
	if err != nil {
		return entities.VoteRecord{}, err
	}
	if election.Paused {
		return entities.VoteRecord{}, uc.reject(logger, "election_cast_rejected", domainerrors.ErrElectionPaused,
			"election_id", election.ElectionID, "voter_id", voterID)
	}
	if now.Before(election.VotingStart) {
		return entities.VoteRecord{}, uc.reject(logger, "election_cast_rejected", domainerrors.ErrVotingNotOpen,
			"election_id", election.ElectionID, "voter_id", voterID)
	}
	if now.After(election.VotingEnd) {
		return entities.VoteRecord{}, uc.reject(logger, "election_cast_rejected", domainerrors.ErrVotingClosed,
			"election_id", election.ElectionID, "voter_id", voterID)
	}
	registered, err := uc.Elections.IsRegistered(ctx, election.ElectionID, voterID)
	if err != nil {
		return entities.VoteRecord{}, err
	}
	if !registered {
		return entities.VoteRecord{}, uc.reject(logger, "election_cast_rejected", domainerrors.ErrNotRegistered,
			"election_id", election.ElectionID, "voter_id", voterID)
	}
	if _, voted, err := uc.Elections.GetVote(ctx, election.ElectionID, voterID); err != nil {
		return entities.VoteRecord{}, err
	} else if voted {
		return entities.VoteRecord{}, uc.reject(logger, "election_cast_rejected", domainerrors.ErrAlreadyVoted,
			"election_id", election.ElectionID, "voter_id", voterID)
	}
	if cmd.Commitment == (common.Hash{}) {
		return entities.VoteRecord{}, uc.reject(logger, "election_cast_rejected", domainerrors.ErrEmptyCommitment,
			"election_id", election.ElectionID, "voter_id", voterID)
	}
	if used, err := uc.Elections.CommitmentUsed(ctx, election.ElectionID, cmd.Commitment); err != nil {
		return entities.VoteRecord{}, err
	} else if used {
		return entities.VoteRecord{}, uc.reject(logger, "election_cast_rejected", domainerrors.ErrCommitmentReused,
			"election_id", election.ElectionID, "voter_id", voterID)
	}

	record := entities.VoteRecord{
		ElectionID: election.ElectionID,
		VoterID:    voterID,
		Commitment: cmd.Commitment,
		CastAt:     now,
	}
	election.TotalVotes++
	election.UpdatedAt = now
	if err := uc.Elections.SaveCast(ctx, election, record); err != nil {
		return entities.VoteRecord{}, err
	}
	if err := uc.appendElectionEvent(ctx, "election.vote_cast", election, now, map[string]any{
		"voter_id":    voterID,
		"commitment":  record.Commitment.Hex(),
		"total_votes": election.TotalVotes,
	}); err != nil {
		return entities.VoteRecord{}, err
	}
	logger.Info("vote cast accepted",
		"event", "election_vote_cast",
		"module", "election-core/election-machine",
		"layer", "application",
		"election_id", election.ElectionID,
		"voter_id", voterID,
		"total_votes", election.TotalVotes,
	)
	return record, nil
}

// RevealResults validates the whole (voter, choice) batch first and commits it
// as one repository write, so a failure at any index leaves the tally and
// every vote record untouched. A successful call is terminal: the revealed
// flag is one-way and a second call fails before reading any record.
func (uc *ElectionUseCase) RevealResults(ctx context.Context, cmd RevealCommand) (entities.ElectionResults, error) {
	logger := application.ResolveLogger(uc.Logger)
	logger.Info("results reveal processing started",
		"event", "election_reveal_started",
		"module", "election-core/election-machine",
		"layer", "application",
		"election_id", strings.TrimSpace(cmd.ElectionID),
		"batch_size", len(cmd.VoterIDs),
	)

	uc.mu.Lock()
	defer uc.mu.Unlock()

	now := uc.now()
	election, err := uc.Elections.GetElection(ctx, strings.TrimSpace(cmd.ElectionID))
	if err != nil {
		return entities.ElectionResults{}, err
	}
	if !identityEqual(cmd.CallerID, election.AuthorityID) {
		return entities.ElectionResults{}, uc.reject(logger, "election_reveal_rejected", domainerrors.ErrUnauthorized,
			"election_id", election.ElectionID, "caller_id", strings.TrimSpace(cmd.CallerID))
	}
	if election.Paused {
		return entities.ElectionResults{}, uc.reject(logger, "election_reveal_rejected", domainerrors.ErrElectionPaused,
			"election_id", election.ElectionID)
	}
	if !now.After(election.VotingEnd) {
		return entities.ElectionResults{}, uc.reject(logger, "election_reveal_rejected", domainerrors.ErrVotingInProgress,
			"election_id", election.ElectionID)
	}
	if election.ResultsRevealed {
		return entities.ElectionResults{}, uc.reject(logger, "election_reveal_rejected", domainerrors.ErrAlreadyRevealed,
			"election_id", election.ElectionID)
	}
	if len(cmd.VoterIDs) != len(cmd.CandidateChoices) {
		return entities.ElectionResults{}, uc.reject(logger, "election_reveal_rejected", domainerrors.ErrLengthMismatch,
			"election_id", election.ElectionID, "voters", len(cmd.VoterIDs), "choices", len(cmd.CandidateChoices))
	}
	if len(cmd.VoterIDs) > election.TotalVotes {
		return entities.ElectionResults{}, uc.reject(logger, "election_reveal_rejected", domainerrors.ErrVoterCountExceedsTotal,
			"election_id", election.ElectionID, "voters", len(cmd.VoterIDs), "total_votes", election.TotalVotes)
	}

	counts := make(map[string]int, len(election.CandidateIDs))
	records := make([]entities.VoteRecord, 0, len(cmd.VoterIDs))
	seen := make(map[string]struct{}, len(cmd.VoterIDs))
	for i := range cmd.VoterIDs {
		voterID := strings.TrimSpace(cmd.VoterIDs[i])
		choice := strings.TrimSpace(cmd.CandidateChoices[i])

		record, voted, err := uc.Elections.GetVote(ctx, election.ElectionID, voterID)
		if err != nil {
			return entities.ElectionResults{}, err
		}
		if !voted {
			return entities.ElectionResults{}, uc.reject(logger, "election_reveal_rejected", domainerrors.ErrHasNotVoted,
				"election_id", election.ElectionID, "voter_id", voterID, "index", i)
		}
		if _, dup := seen[voterID]; dup || record.VerifiedAtReveal {
			return entities.ElectionResults{}, uc.reject(logger, "election_reveal_rejected", domainerrors.ErrAlreadyVerified,
				"election_id", election.ElectionID, "voter_id", voterID, "index", i)
		}
		if !election.HasCandidate(choice) {
			return entities.ElectionResults{}, uc.reject(logger, "election_reveal_rejected", domainerrors.ErrInvalidCandidate,
				"election_id", election.ElectionID, "candidate_id", choice, "index", i)
		}
		seen[voterID] = struct{}{}
		counts[choice]++
		record.VerifiedAtReveal = true
		records = append(records, record)
	}

	tally := make([]entities.TallyEntry, 0, len(election.CandidateIDs))
	for _, candidateID := range election.CandidateIDs {
		tally = append(tally, entities.TallyEntry{
			ElectionID:  election.ElectionID,
			CandidateID: candidateID,
			Count:       counts[candidateID],
		})
	}

	election.ResultsRevealed = true
	election.UpdatedAt = now
	if err := uc.Elections.SaveReveal(ctx, election, records, tally); err != nil {
		return entities.ElectionResults{}, err
	}
	if err := uc.appendElectionEvent(ctx, "election.results_revealed", election, now, map[string]any{
		"revealed_count": len(records),
		"total_votes":    election.TotalVotes,
	}); err != nil {
		return entities.ElectionResults{}, err
	}
	logger.Info("results revealed",
		"event", "election_results_revealed",
		"module", "election-core/election-machine",
		"layer", "application",
		"election_id", election.ElectionID,
		"revealed_count", len(records),
	)

	results := entities.ElectionResults{
		ElectionID:   election.ElectionID,
		CandidateIDs: election.CandidateIDs,
		Counts:       make([]int, len(tally)),
	}
	for i, entry := range tally {
		results.Counts[i] = entry.Count
	}
	return results, nil
}

func (uc *ElectionUseCase) now() time.Time {
	now := time.Now().UTC()
	if uc.Clock != nil {
		now = uc.Clock.Now().UTC()
	}
	return now
}

func (uc *ElectionUseCase) reject(logger *slog.Logger, event string, cause error, attrs ...any) error {
	fields := make([]any, 0, len(attrs)+8)
	fields = append(fields,
		"event", event,
		"module", "election-core/election-machine",
		"layer", "application",
		"reason", cause.Error(),
	)
	fields = append(fields, attrs...)
	logger.Warn("election transition rejected", fields...)
	return cause
}

func (uc *ElectionUseCase) appendElectionEvent(
	ctx context.Context,
	eventType string,
	election entities.Election,
	occurredAt time.Time,
	data map[string]any,
) error {
	// Outbox is optional for pure read/test wiring, so nil is treated as no-op.
	if uc.Outbox == nil {
		return nil
	}
	eventID, err := uc.IDGen.NewID(ctx)
	if err != nil {
		return err
	}
	payload := map[string]any{
		"election_id": election.ElectionID,
		"occurred_at": occurredAt.Format(time.RFC3339),
	}
	for key, value := range data {
		payload[key] = value
	}
	envelope, err := newElectionEnvelope(eventID, eventType, election.ElectionID, occurredAt, payload)
	if err != nil {
		return err
	}
	return uc.Outbox.AppendOutbox(ctx, envelope)
}

func identityEqual(caller string, authority string) bool {
	caller = strings.TrimSpace(caller)
	return caller != "" && caller == strings.TrimSpace(authority)
}
