package postgresadapter

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"ballotbox/contexts/election-core/election-machine/domain/entities"
	domainerrors "ballotbox/contexts/election-core/election-machine/domain/errors"
	"ballotbox/contexts/election-core/election-machine/ports"
)

const (
	outboxStatusPending   = "pending"
	outboxStatusPublished = "published"
)

type Repository struct {
	db     *gorm.DB
	logger *slog.Logger
}

func NewRepository(db *gorm.DB, logger *slog.Logger) *Repository {
	if logger == nil {
		logger = slog.Default()
	}
	return &Repository{
		db:     db,
		logger: logger,
	}
}

func (r *Repository) SaveElection(ctx context.Context, election entities.Election) error {
	row := electionModelFromEntity(election)
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		create := tx.Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "id"}},
			DoUpdates: clause.Assignments(map[string]any{
				"paused":           row.Paused,
				"results_revealed": row.ResultsRevealed,
				"total_votes":      row.TotalVotes,
				"updated_at":       row.UpdatedAt,
			}),
		}).Create(&row)
		if create.Error != nil {
			return r.logError("election_repo_save_election_failed", create.Error,
				"election_id", row.ID,
			)
		}
		for position, candidateID := range election.CandidateIDs {
			candidate := candidateModel{
				ElectionID:  row.ID,
				Position:    position,
				CandidateID: strings.TrimSpace(candidateID),
			}
			if err := tx.Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "election_id"}, {Name: "position"}},
				DoNothing: true,
			}).Create(&candidate).Error; err != nil {
				return r.logError("election_repo_save_candidate_failed", err,
					"election_id", row.ID,
					"candidate_id", candidate.CandidateID,
				)
			}
		}
		return nil
	})
}

func (r *Repository) GetElection(ctx context.Context, electionID string) (entities.Election, error) {
	var row electionModel
	err := r.db.WithContext(ctx).
		Where("id = ?", strings.TrimSpace(electionID)).
		First(&row).
		Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return entities.Election{}, domainerrors.ErrElectionNotFound
		}
		return entities.Election{}, r.logError("election_repo_get_election_failed", err,
			"election_id", strings.TrimSpace(electionID),
		)
	}
	candidates, err := r.loadCandidates(ctx, row.ID)
	if err != nil {
		return entities.Election{}, err
	}
	return row.toEntity(candidates), nil
}

func (r *Repository) ListElections(ctx context.Context) ([]entities.Election, error) {
	var rows []electionModel
	if err := r.db.WithContext(ctx).
		Order("created_at ASC").
		Find(&rows).Error; err != nil {
		return nil, r.logError("election_repo_list_elections_failed", err)
	}
	items := make([]entities.Election, 0, len(rows))
	for _, row := range rows {
		candidates, err := r.loadCandidates(ctx, row.ID)
		if err != nil {
			return nil, err
		}
		items = append(items, row.toEntity(candidates))
	}
	return items, nil
}

func (r *Repository) RegisterParticipant(ctx context.Context, participant entities.Participant) error {
	row := participantModel{
		ElectionID:   strings.TrimSpace(participant.ElectionID),
		VoterID:      strings.TrimSpace(participant.VoterID),
		RegisteredAt: participant.RegisteredAt.UTC(),
	}
	create := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "election_id"}, {Name: "voter_id"}},
		DoNothing: true,
	}).Create(&row)
	if create.Error != nil {
		if isUniqueViolation(create.Error) {
			return domainerrors.ErrAlreadyRegistered
		}
		return r.logError("election_repo_register_participant_failed", create.Error,
			"election_id", row.ElectionID,
			"voter_id", row.VoterID,
		)
	}
	if create.RowsAffected == 0 {
		return domainerrors.ErrAlreadyRegistered
	}
	return nil
}

func (r *Repository) IsRegistered(ctx context.Context, electionID string, voterID string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&participantModel{}).
		Where("election_id = ?", strings.TrimSpace(electionID)).
		Where("voter_id = ?", strings.TrimSpace(voterID)).
		Count(&count).
		Error
	if err != nil {
		return false, r.logError("election_repo_is_registered_failed", err,
			"election_id", strings.TrimSpace(electionID),
			"voter_id", strings.TrimSpace(voterID),
		)
	}
	return count > 0, nil
}

func (r *Repository) CountRegistered(ctx context.Context, electionID string) (int, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&participantModel{}).
		Where("election_id = ?", strings.TrimSpace(electionID)).
		Count(&count).
		Error
	if err != nil {
		return 0, r.logError("election_repo_count_registered_failed", err,
			"election_id", strings.TrimSpace(electionID),
		)
	}
	return int(count), nil
}

func (r *Repository) GetVote(ctx context.Context, electionID string, voterID string) (entities.VoteRecord, bool, error) {
	var row voteModel
	err := r.db.WithContext(ctx).
		Where("election_id = ?", strings.TrimSpace(electionID)).
		Where("voter_id = ?", strings.TrimSpace(voterID)).
		First(&row).
		Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return entities.VoteRecord{}, false, nil
		}
		return entities.VoteRecord{}, false, r.logError("election_repo_get_vote_failed", err,
			"election_id", strings.TrimSpace(electionID),
			"voter_id", strings.TrimSpace(voterID),
		)
	}
	return row.toEntity(), true, nil
}

func (r *Repository) CommitmentUsed(ctx context.Context, electionID string, commitment common.Hash) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&voteModel{}).
		Where("election_id = ?", strings.TrimSpace(electionID)).
		Where("commitment = ?", commitment.Bytes()).
		Count(&count).
		Error
	if err != nil {
		return false, r.logError("election_repo_commitment_used_failed", err,
			"election_id", strings.TrimSpace(electionID),
		)
	}
	return count > 0, nil
}

// SaveCast inserts the vote row and bumps the election counter in one
// transaction. The unique indexes on (election_id, voter_id) and
// (election_id, commitment) back the exactly-once and uniqueness invariants
// even under concurrent writers.
func (r *Repository) SaveCast(ctx context.Context, election entities.Election, record entities.VoteRecord) error {
	row := voteModelFromEntity(record)
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&row).Error; err != nil {
			if isUniqueViolation(err) {
				return domainerrors.ErrCommitmentReused
			}
			return r.logError("election_repo_save_cast_failed", err,
				"election_id", row.ElectionID,
				"voter_id", row.VoterID,
			)
		}
		result := tx.Model(&electionModel{}).
			Where("id = ?", strings.TrimSpace(election.ElectionID)).
			Updates(map[string]any{
				"total_votes": election.TotalVotes,
				"updated_at":  election.UpdatedAt.UTC(),
			})
		if result.Error != nil {
			return r.logError("election_repo_save_cast_total_failed", result.Error,
				"election_id", row.ElectionID,
			)
		}
		if result.RowsAffected == 0 {
			return domainerrors.ErrElectionNotFound
		}
		return nil
	})
}

// SaveReveal commits the verified flags, the full tally and the revealed flag
// in one transaction, guarded against a concurrent reveal by the conditional
// flag update.
func (r *Repository) SaveReveal(
	ctx context.Context,
	election entities.Election,
	records []entities.VoteRecord,
	tally []entities.TallyEntry,
) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		flip := tx.Model(&electionModel{}).
			Where("id = ?", strings.TrimSpace(election.ElectionID)).
			Where("results_revealed = ?", false).
			Updates(map[string]any{
				"results_revealed": true,
				"updated_at":       election.UpdatedAt.UTC(),
			})
		if flip.Error != nil {
			return r.logError("election_repo_save_reveal_flag_failed", flip.Error,
				"election_id", strings.TrimSpace(election.ElectionID),
			)
		}
		if flip.RowsAffected == 0 {
			return domainerrors.ErrAlreadyRevealed
		}
		for _, record := range records {
			update := tx.Model(&voteModel{}).
				Where("election_id = ?", strings.TrimSpace(record.ElectionID)).
				Where("voter_id = ?", strings.TrimSpace(record.VoterID)).
				Where("verified_at_reveal = ?", false).
				Update("verified_at_reveal", true)
			if update.Error != nil {
				return r.logError("election_repo_save_reveal_record_failed", update.Error,
					"election_id", strings.TrimSpace(record.ElectionID),
					"voter_id", strings.TrimSpace(record.VoterID),
				)
			}
			if update.RowsAffected == 0 {
				return domainerrors.ErrAlreadyVerified
			}
		}
		for _, entry := range tally {
			row := tallyModel{
				ElectionID:  strings.TrimSpace(entry.ElectionID),
				CandidateID: strings.TrimSpace(entry.CandidateID),
				Count:       entry.Count,
			}
			if err := tx.Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "election_id"}, {Name: "candidate_id"}},
				DoNothing: true,
			}).Create(&row).Error; err != nil {
				return r.logError("election_repo_save_reveal_tally_failed", err,
					"election_id", row.ElectionID,
					"candidate_id", row.CandidateID,
				)
			}
		}
		return nil
	})
}

func (r *Repository) GetTally(ctx context.Context, electionID string) ([]entities.TallyEntry, error) {
	var rows []tallyModel
	if err := r.db.WithContext(ctx).
		Where("election_id = ?", strings.TrimSpace(electionID)).
		Order("candidate_id ASC").
		Find(&rows).Error; err != nil {
		return nil, r.logError("election_repo_get_tally_failed", err,
			"election_id", strings.TrimSpace(electionID),
		)
	}
	items := make([]entities.TallyEntry, 0, len(rows))
	for _, row := range rows {
		items = append(items, entities.TallyEntry{
			ElectionID:  row.ElectionID,
			CandidateID: row.CandidateID,
			Count:       row.Count,
		})
	}
	return items, nil
}

func (r *Repository) AppendOutbox(ctx context.Context, envelope ports.EventEnvelope) error {
	payload, err := json.Marshal(envelope)
	if err != nil {
		return r.logError("election_repo_append_outbox_marshal_failed", err,
			"event_id", strings.TrimSpace(envelope.EventID),
			"event_type", strings.TrimSpace(envelope.EventType),
		)
	}
	row := outboxModel{
		OutboxID:     strings.TrimSpace(envelope.EventID),
		EventType:    strings.TrimSpace(envelope.EventType),
		PartitionKey: strings.TrimSpace(envelope.PartitionKey),
		Payload:      payload,
		Status:       outboxStatusPending,
		CreatedAt:    envelope.OccurredAt.UTC(),
	}
	if row.OutboxID == "" {
		row.OutboxID = uuid.NewString()
	}
	if row.CreatedAt.IsZero() {
		row.CreatedAt = time.Now().UTC()
	}
	create := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "outbox_id"}},
		DoNothing: true,
	}).Create(&row)
	if create.Error != nil {
		return r.logError("election_repo_append_outbox_insert_failed", create.Error,
			"outbox_id", row.OutboxID,
		)
	}
	if create.RowsAffected > 0 {
		return nil
	}

	var existing outboxModel
	if err := r.db.WithContext(ctx).
		Select("payload").
		Where("outbox_id = ?", row.OutboxID).
		First(&existing).Error; err != nil {
		return r.logError("election_repo_append_outbox_load_existing_failed", err,
			"outbox_id", row.OutboxID,
		)
	}
	if !bytes.Equal(existing.Payload, row.Payload) {
		return domainerrors.ErrConflict
	}
	return nil
}

func (r *Repository) ListPendingOutbox(ctx context.Context, limit int) ([]ports.OutboxMessage, error) {
	if limit <= 0 {
		limit = 100
	}
	var rows []outboxModel
	if err := r.db.WithContext(ctx).
		Where("status = ?", outboxStatusPending).
		Order("created_at ASC").
		Limit(limit).
		Find(&rows).Error; err != nil {
		return nil, r.logError("election_repo_list_pending_outbox_failed", err, "limit", limit)
	}
	items := make([]ports.OutboxMessage, 0, len(rows))
	for _, row := range rows {
		items = append(items, ports.OutboxMessage{
			OutboxID:     row.OutboxID,
			EventType:    row.EventType,
			PartitionKey: row.PartitionKey,
			Payload:      append([]byte(nil), row.Payload...),
			CreatedAt:    row.CreatedAt.UTC(),
		})
	}
	return items, nil
}

func (r *Repository) MarkOutboxPublished(ctx context.Context, outboxID string, publishedAt time.Time) error {
	result := r.db.WithContext(ctx).
		Model(&outboxModel{}).
		Where("outbox_id = ?", strings.TrimSpace(outboxID)).
		Updates(map[string]any{
			"status":       outboxStatusPublished,
			"published_at": publishedAt.UTC(),
		})
	if result.Error != nil {
		return r.logError("election_repo_mark_outbox_published_failed", result.Error,
			"outbox_id", strings.TrimSpace(outboxID),
		)
	}
	if result.RowsAffected == 0 {
		return domainerrors.ErrConflict
	}
	return nil
}

func (r *Repository) loadCandidates(ctx context.Context, electionID string) ([]string, error) {
	var rows []candidateModel
	if err := r.db.WithContext(ctx).
		Where("election_id = ?", electionID).
		Order("position ASC").
		Find(&rows).Error; err != nil {
		return nil, r.logError("election_repo_load_candidates_failed", err,
			"election_id", electionID,
		)
	}
	candidates := make([]string, 0, len(rows))
	for _, row := range rows {
		candidates = append(candidates, row.CandidateID)
	}
	return candidates, nil
}

func (r *Repository) logError(event string, err error, attrs ...any) error {
	fields := make([]any, 0, len(attrs)+8)
	fields = append(fields,
		"event", event,
		"module", "election-core/election-machine",
		"layer", "adapter",
		"error", err.Error(),
	)
	fields = append(fields, attrs...)
	r.logger.Error("election repository operation failed", fields...)
	return err
}

type electionModel struct {
	ID              string    `gorm:"column:id;primaryKey"`
	AuthorityID     string    `gorm:"column:authority_id"`
	Title           string    `gorm:"column:title"`
	VotingStart     time.Time `gorm:"column:voting_start"`
	VotingEnd       time.Time `gorm:"column:voting_end"`
	Paused          bool      `gorm:"column:paused"`
	ResultsRevealed bool      `gorm:"column:results_revealed"`
	TotalVotes      int       `gorm:"column:total_votes"`
	CreatedAt       time.Time `gorm:"column:created_at"`
	UpdatedAt       time.Time `gorm:"column:updated_at"`
}

func (electionModel) TableName() string {
	return "elections"
}

func electionModelFromEntity(election entities.Election) electionModel {
	row := electionModel{
		ID:              strings.TrimSpace(election.ElectionID),
		AuthorityID:     strings.TrimSpace(election.AuthorityID),
		Title:           strings.TrimSpace(election.Title),
		VotingStart:     election.VotingStart.UTC(),
		VotingEnd:       election.VotingEnd.UTC(),
		Paused:          election.Paused,
		ResultsRevealed: election.ResultsRevealed,
		TotalVotes:      election.TotalVotes,
		CreatedAt:       election.CreatedAt.UTC(),
		UpdatedAt:       election.UpdatedAt.UTC(),
	}
	if row.CreatedAt.IsZero() {
		row.CreatedAt = time.Now().UTC()
	}
	if row.UpdatedAt.IsZero() {
		row.UpdatedAt = row.CreatedAt
	}
	return row
}

func (m electionModel) toEntity(candidates []string) entities.Election {
	return entities.Election{
		ElectionID:      m.ID,
		AuthorityID:     m.AuthorityID,
		Title:           m.Title,
		VotingStart:     m.VotingStart.UTC(),
		VotingEnd:       m.VotingEnd.UTC(),
		CandidateIDs:    candidates,
		Paused:          m.Paused,
		ResultsRevealed: m.ResultsRevealed,
		TotalVotes:      m.TotalVotes,
		CreatedAt:       m.CreatedAt.UTC(),
		UpdatedAt:       m.UpdatedAt.UTC(),
	}
}

type candidateModel struct {
	ElectionID  string `gorm:"column:election_id;primaryKey"`
	Position    int    `gorm:"column:position;primaryKey"`
	CandidateID string `gorm:"column:candidate_id"`
}

func (candidateModel) TableName() string {
	return "election_candidates"
}

type participantModel struct {
	ElectionID   string    `gorm:"column:election_id;primaryKey"`
	VoterID      string    `gorm:"column:voter_id;primaryKey"`
	RegisteredAt time.Time `gorm:"column:registered_at"`
}

func (participantModel) TableName() string {
	return "election_participants"
}

type voteModel struct {
	ElectionID       string    `gorm:"column:election_id;primaryKey"`
	VoterID          string    `gorm:"column:voter_id;primaryKey"`
	Commitment       []byte    `gorm:"column:commitment"`
	CastAt           time.Time `gorm:"column:cast_at"`
	VerifiedAtReveal bool      `gorm:"column:verified_at_reveal"`
}

func (voteModel) TableName() string {
	return "election_votes"
}

func voteModelFromEntity(record entities.VoteRecord) voteModel {
	return voteModel{
		ElectionID:       strings.TrimSpace(record.ElectionID),
		VoterID:          strings.TrimSpace(record.VoterID),
		Commitment:       record.Commitment.Bytes(),
		CastAt:           record.CastAt.UTC(),
		VerifiedAtReveal: record.VerifiedAtReveal,
	}
}

func (m voteModel) toEntity() entities.VoteRecord {
	return entities.VoteRecord{
		ElectionID:       m.ElectionID,
		VoterID:          m.VoterID,
		Commitment:       common.BytesToHash(m.Commitment),
		CastAt:           m.CastAt.UTC(),
		VerifiedAtReveal: m.VerifiedAtReveal,
	}
}

type tallyModel struct {
	ElectionID  string `gorm:"column:election_id;primaryKey"`
	CandidateID string `gorm:"column:candidate_id;primaryKey"`
	Count       int    `gorm:"column:count"`
}

func (tallyModel) TableName() string {
	return "election_tallies"
}

type outboxModel struct {
	OutboxID     string     `gorm:"column:outbox_id;primaryKey"`
	EventType    string     `gorm:"column:event_type"`
	PartitionKey string     `gorm:"column:partition_key"`
	Payload      []byte     `gorm:"column:payload"`
	Status       string     `gorm:"column:status"`
	CreatedAt    time.Time  `gorm:"column:created_at"`
	PublishedAt  *time.Time `gorm:"column:published_at"`
}

func (outboxModel) TableName() string {
	return "election_outbox"
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

var _ ports.ElectionRepository = (*Repository)(nil)
var _ ports.OutboxWriter = (*Repository)(nil)
var _ ports.OutboxRepository = (*Repository)(nil)
