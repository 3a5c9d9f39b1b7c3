package ports

import (
	"context"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"ballotbox/contexts/election-core/election-machine/domain/entities"
	"ballotbox/internal/shared/events"
)

// ElectionRepository owns all persisted election state. SaveCast and
// SaveReveal are the two multi-write operations and must commit atomically;
// everything else is a single-row read or write.
type ElectionRepository interface {
	SaveElection(ctx context.Context, election entities.Election) error
	GetElection(ctx context.Context, electionID string) (entities.Election, error)
	ListElections(ctx context.Context) ([]entities.Election, error)

	RegisterParticipant(ctx context.Context, participant entities.Participant) error
	IsRegistered(ctx context.Context, electionID string, voterID string) (bool, error)
	CountRegistered(ctx context.Context, electionID string) (int, error)

	GetVote(ctx context.Context, electionID string, voterID string) (entities.VoteRecord, bool, error)
	CommitmentUsed(ctx context.Context, electionID string, commitment common.Hash) (bool, error)

	// SaveCast persists the vote record, the commitment uniqueness entry and
	// the bumped total as one unit.
	SaveCast(ctx context.Context, election entities.Election, record entities.VoteRecord) error

	// SaveReveal marks every supplied record verified, writes the full tally
	// and sets the revealed flag as one unit.
	SaveReveal(
		ctx context.Context,
		election entities.Election,
		records []entities.VoteRecord,
		tally []entities.TallyEntry,
	) error

	GetTally(ctx context.Context, electionID string) ([]entities.TallyEntry, error)
}

// EventEnvelope aliases the shared contract so every process speaks the same
// event shape.
type EventEnvelope = events.Envelope

type OutboxMessage struct {
	OutboxID     string
	EventType    string
	PartitionKey string
	Payload      []byte
	CreatedAt    time.Time
}

type OutboxWriter interface {
	AppendOutbox(ctx context.Context, envelope EventEnvelope) error
}

type OutboxRepository interface {
	ListPendingOutbox(ctx context.Context, limit int) ([]OutboxMessage, error)
	MarkOutboxPublished(ctx context.Context, outboxID string, publishedAt time.Time) error
}

type EventPublisher interface {
	Publish(ctx context.Context, topic string, event EventEnvelope) error
}

type Clock interface {
	Now() time.Time
}

type IDGenerator interface {
	NewID(ctx context.Context) (string, error)
}
