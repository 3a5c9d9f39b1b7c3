package entities

import (
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// Phase is the derived lifecycle position of an election. It is computed from
// the clock and the stored flags, never persisted.
type Phase string

const (
	PhaseNotStarted Phase = "not_started"
	PhaseOpen       Phase = "open"
	PhasePaused     Phase = "paused"
	PhaseClosed     Phase = "closed"
	PhaseRevealed   Phase = "revealed"
)

// Election is the aggregate configuration plus its mutable flags. Window and
// candidate list are immutable after creation; Paused flips freely under
// authority control; ResultsRevealed moves false -> true exactly once.
type Election struct {
	ElectionID      string
	AuthorityID     string
	Title           string
	VotingStart     time.Time
	VotingEnd       time.Time
	CandidateIDs    []string
	Paused          bool
	ResultsRevealed bool
	TotalVotes      int
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// Phase derives the lifecycle position at the supplied instant. The voting
// window is inclusive on both ends.
func (e Election) Phase(now time.Time) Phase {
	switch {
	case e.ResultsRevealed:
		return PhaseRevealed
	case e.Paused:
		return PhasePaused
	case now.Before(e.VotingStart):
		return PhaseNotStarted
	case now.After(e.VotingEnd):
		return PhaseClosed
	default:
		return PhaseOpen
	}
}

// HasCandidate reports membership in the declared candidate list.
func (e Election) HasCandidate(candidateID string) bool {
	for _, id := range e.CandidateIDs {
		if id == candidateID {
			return true
		}
	}
	return false
}

// Participant is a write-once registry row.
type Participant struct {
	ElectionID   string
	VoterID      string
	RegisteredAt time.Time
}

// VoteRecord holds one voter's opaque commitment. VerifiedAtReveal flips true
// exactly once, inside the reveal batch that consumed the record.
type VoteRecord struct {
	ElectionID       string
	VoterID          string
	Commitment       common.Hash
	CastAt           time.Time
	VerifiedAtReveal bool
}

// TallyEntry is one candidate's accumulated count after reveal. Entries exist
// for every declared candidate, zero counts included, in declared order.
type TallyEntry struct {
	ElectionID  string
	CandidateID string
	Count       int
}

// ElectionResults pairs the declared candidate order with parallel counts.
type ElectionResults struct {
	ElectionID   string
	CandidateIDs []string
	Counts       []int
}

// ElectionStats is the always-available read model. RegisteredCount and
// TotalVotes are distinct fields.
type ElectionStats struct {
	ElectionID      string
	RegisteredCount int
	TotalVotes      int
	VotingStart     time.Time
	VotingEnd       time.Time
	Paused          bool
	ResultsRevealed bool
	Phase           Phase
}
