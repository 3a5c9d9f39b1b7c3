package errors

import "errors"

var (
	ErrElectionNotFound   = errors.New("election not found")
	ErrConflict           = errors.New("conflicting election write")
	ErrInvalidWindow      = errors.New("voting window start must be before end")
	ErrNoCandidates       = errors.New("election requires at least one candidate")
	ErrDuplicateCandidate = errors.New("duplicate candidate id")

	ErrUnauthorized    = errors.New("caller is not the election authority")
	ErrElectionPaused  = errors.New("election is paused")
	ErrInvalidIdentity = errors.New("participant identity is empty")

	ErrAlreadyRegistered = errors.New("participant is already registered")
	ErrNotRegistered     = errors.New("caller is not a registered participant")

	ErrVotingNotOpen    = errors.New("voting window has not opened")
	ErrVotingClosed     = errors.New("voting window has closed")
	ErrVotingInProgress = errors.New("voting window is still open")

	ErrAlreadyVoted        = errors.New("caller has already voted")
	ErrEmptyCommitment     = errors.New("vote commitment is empty")
	ErrMalformedCommitment = errors.New("vote commitment must be 32 hex-encoded bytes")
	ErrCommitmentReused    = errors.New("vote commitment was already used")

	ErrHasNotVoted            = errors.New("voter has no vote record")
	ErrAlreadyVerified        = errors.New("vote record is already verified")
	ErrInvalidCandidate       = errors.New("candidate id is not on the ballot")
	ErrVoterCountExceedsTotal = errors.New("reveal batch exceeds total votes cast")
	ErrAlreadyRevealed        = errors.New("results are already revealed")
	ErrResultsNotReady        = errors.New("results are not revealed yet")
	ErrLengthMismatch         = errors.New("voters and choices length mismatch")
)
