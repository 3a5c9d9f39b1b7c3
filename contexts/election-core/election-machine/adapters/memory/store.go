package memory

import (
	"bytes"
	"context"
	"encoding/json"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"

	"ballotbox/contexts/election-core/election-machine/domain/entities"
	domainerrors "ballotbox/contexts/election-core/election-machine/domain/errors"
	"ballotbox/contexts/election-core/election-machine/ports"
)

type outboxRecord struct {
	message   ports.OutboxMessage
	published bool
}

// Store is the in-memory implementation of every election-machine port. Each
// exported method is atomic under one RWMutex, which is what SaveCast and
// SaveReveal rely on for their multi-write semantics.
type Store struct {
	mu sync.RWMutex

	elections    map[string]entities.Election
	participants map[string]map[string]entities.Participant
	votes        map[string]map[string]entities.VoteRecord
	commitments  map[string]map[common.Hash]string
	tallies      map[string][]entities.TallyEntry
	outbox       map[string]outboxRecord
}

func NewStore(seed []entities.Election) *Store {
	elections := make(map[string]entities.Election, len(seed))
	for _, election := range seed {
		elections[election.ElectionID] = election
	}
	return &Store{
		elections:    elections,
		participants: make(map[string]map[string]entities.Participant),
		votes:        make(map[string]map[string]entities.VoteRecord),
		commitments:  make(map[string]map[common.Hash]string),
		tallies:      make(map[string][]entities.TallyEntry),
		outbox:       make(map[string]outboxRecord),
	}
}

func (s *Store) SaveElection(_ context.Context, election entities.Election) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.elections[strings.TrimSpace(election.ElectionID)] = election
	return nil
}

func (s *Store) GetElection(_ context.Context, electionID string) (entities.Election, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	election, ok := s.elections[strings.TrimSpace(electionID)]
	if !ok {
		return entities.Election{}, domainerrors.ErrElectionNotFound
	}
	return election, nil
}

func (s *Store) ListElections(_ context.Context) ([]entities.Election, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	items := make([]entities.Election, 0, len(s.elections))
	for _, election := range s.elections {
		items = append(items, election)
	}
	sort.Slice(items, func(i, j int) bool {
		if items[i].CreatedAt.Equal(items[j].CreatedAt) {
			return items[i].ElectionID < items[j].ElectionID
		}
		return items[i].CreatedAt.Before(items[j].CreatedAt)
	})
	return items, nil
}

func (s *Store) RegisterParticipant(_ context.Context, participant entities.Participant) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	electionID := strings.TrimSpace(participant.ElectionID)
	voterID := strings.TrimSpace(participant.VoterID)
	registry, ok := s.participants[electionID]
	if !ok {
		registry = make(map[string]entities.Participant)
		s.participants[electionID] = registry
	}
	if _, exists := registry[voterID]; exists {
		return domainerrors.ErrAlreadyRegistered
	}
	registry[voterID] = entities.Participant{
		ElectionID:   electionID,
		VoterID:      voterID,
		RegisteredAt: participant.RegisteredAt.UTC(),
	}
	return nil
}

func (s *Store) IsRegistered(_ context.Context, electionID string, voterID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.participants[strings.TrimSpace(electionID)][strings.TrimSpace(voterID)]
	return ok, nil
}

func (s *Store) CountRegistered(_ context.Context, electionID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.participants[strings.TrimSpace(electionID)]), nil
}

func (s *Store) GetVote(_ context.Context, electionID string, voterID string) (entities.VoteRecord, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	record, ok := s.votes[strings.TrimSpace(electionID)][strings.TrimSpace(voterID)]
	if !ok {
		return entities.VoteRecord{}, false, nil
	}
	return record, true, nil
}

func (s *Store) CommitmentUsed(_ context.Context, electionID string, commitment common.Hash) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.commitments[strings.TrimSpace(electionID)][commitment]
	return ok, nil
}

func (s *Store) SaveCast(_ context.Context, election entities.Election, record entities.VoteRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	electionID := strings.TrimSpace(election.ElectionID)
	voterID := strings.TrimSpace(record.VoterID)

	votes, ok := s.votes[electionID]
	if !ok {
		votes = make(map[string]entities.VoteRecord)
		s.votes[electionID] = votes
	}
	if _, exists := votes[voterID]; exists {
		return domainerrors.ErrAlreadyVoted
	}
	used, ok := s.commitments[electionID]
	if !ok {
		used = make(map[common.Hash]string)
		s.commitments[electionID] = used
	}
	if _, exists := used[record.Commitment]; exists {
		return domainerrors.ErrCommitmentReused
	}

	votes[voterID] = record
	used[record.Commitment] = voterID
	s.elections[electionID] = election
	return nil
}

func (s *Store) SaveReveal(
	_ context.Context,
	election entities.Election,
	records []entities.VoteRecord,
	tally []entities.TallyEntry,
) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	electionID := strings.TrimSpace(election.ElectionID)
	stored, ok := s.elections[electionID]
	if !ok {
		return domainerrors.ErrElectionNotFound
	}
	if stored.ResultsRevealed {
		return domainerrors.ErrAlreadyRevealed
	}

	votes := s.votes[electionID]
	for _, record := range records {
		votes[strings.TrimSpace(record.VoterID)] = record
	}
	s.tallies[electionID] = append([]entities.TallyEntry(nil), tally...)
	s.elections[electionID] = election
	return nil
}

func (s *Store) GetTally(_ context.Context, electionID string) ([]entities.TallyEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]entities.TallyEntry(nil), s.tallies[strings.TrimSpace(electionID)]...), nil
}

func (s *Store) AppendOutbox(_ context.Context, envelope ports.EventEnvelope) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	payload, err := json.Marshal(envelope)
	if err != nil {
		return err
	}
	outboxID := strings.TrimSpace(envelope.EventID)
	if outboxID == "" {
		outboxID = uuid.NewString()
	}
	if existing, ok := s.outbox[outboxID]; ok {
		if !bytes.Equal(existing.message.Payload, payload) {
			return domainerrors.ErrConflict
		}
		return nil
	}
	createdAt := envelope.OccurredAt.UTC()
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	s.outbox[outboxID] = outboxRecord{
		message: ports.OutboxMessage{
			OutboxID:     outboxID,
			EventType:    strings.TrimSpace(envelope.EventType),
			PartitionKey: strings.TrimSpace(envelope.PartitionKey),
			Payload:      payload,
			CreatedAt:    createdAt,
		},
	}
	return nil
}

func (s *Store) ListPendingOutbox(_ context.Context, limit int) ([]ports.OutboxMessage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 {
		limit = 100
	}
	items := make([]ports.OutboxMessage, 0, len(s.outbox))
	for _, row := range s.outbox {
		if row.published {
			continue
		}
		items = append(items, row.message)
	}
	sort.Slice(items, func(i, j int) bool {
		if items[i].CreatedAt.Equal(items[j].CreatedAt) {
			return items[i].OutboxID < items[j].OutboxID
		}
		return items[i].CreatedAt.Before(items[j].CreatedAt)
	})
	if len(items) > limit {
		items = items[:limit]
	}
	return items, nil
}

func (s *Store) MarkOutboxPublished(_ context.Context, outboxID string, _ time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	row, ok := s.outbox[strings.TrimSpace(outboxID)]
	if !ok {
		return domainerrors.ErrConflict
	}
	row.published = true
	s.outbox[strings.TrimSpace(outboxID)] = row
	return nil
}

func (s *Store) Now() time.Time {
	return time.Now().UTC()
}

func (s *Store) NewID(_ context.Context) (string, error) {
	return uuid.NewString(), nil
}

var _ ports.ElectionRepository = (*Store)(nil)
var _ ports.OutboxWriter = (*Store)(nil)
var _ ports.OutboxRepository = (*Store)(nil)
var _ ports.Clock = (*Store)(nil)
var _ ports.IDGenerator = (*Store)(nil)
