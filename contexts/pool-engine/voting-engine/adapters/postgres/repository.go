package postgresadapter

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/Crowd-VC/crowd-vc-fullstack-sub002/contexts/pool-engine/voting-engine/domain/entities"
	domainerrors "github.com/Crowd-VC/crowd-vc-fullstack-sub002/contexts/pool-engine/voting-engine/domain/errors"
	platformdb "github.com/Crowd-VC/crowd-vc-fullstack-sub002/internal/platform/db"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type Repository struct {
	db     *gorm.DB
	logger *slog.Logger
}

func NewRepository(db *gorm.DB, logger *slog.Logger) *Repository {
	if logger == nil {
		logger = slog.Default()
	}
	return &Repository{db: db, logger: logger}
}

// conn returns the transaction carried by an open unit of work, falling back
// to the shared handle.
func (r *Repository) conn(ctx context.Context) *gorm.DB {
	if tx, ok := platformdb.TxFrom(ctx); ok {
		return tx.WithContext(ctx)
	}
	return r.db.WithContext(ctx)
}

func (r *Repository) SaveVote(ctx context.Context, vote entities.Vote) error {
	row := voteModelFromEntity(vote)
	create := r.conn(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoNothing: true,
	}).Create(&row)
	if create.Error != nil {
		if isUniqueViolation(create.Error) {
			return domainerrors.ErrVoteConflict
		}
		return r.logError("voting_repo_save_vote_failed", create.Error,
			"pool_id", vote.PoolID,
			"voter", vote.Voter,
			"candidate_id", vote.CandidateID,
		)
	}
	return nil
}

func (r *Repository) GetVoteByVoterCandidate(
	ctx context.Context,
	poolID string,
	voter string,
	candidateID string,
) (entities.Vote, bool, error) {
	var row voteModel
	err := r.conn(ctx).
		Where("pool_id = ?", strings.TrimSpace(poolID)).
		Where("voter = ?", strings.TrimSpace(voter)).
		Where("candidate_id = ?", strings.TrimSpace(candidateID)).
		First(&row).
		Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return entities.Vote{}, false, nil
		}
		return entities.Vote{}, false, r.logError("voting_repo_get_vote_failed", err,
			"pool_id", strings.TrimSpace(poolID),
			"voter", strings.TrimSpace(voter),
		)
	}
	return row.toEntity(), true, nil
}

func (r *Repository) ListVotesByVoter(ctx context.Context, poolID string, voter string) ([]entities.Vote, error) {
	var rows []voteModel
	if err := r.conn(ctx).
		Where("pool_id = ?", strings.TrimSpace(poolID)).
		Where("voter = ?", strings.TrimSpace(voter)).
		Order("cast_at ASC").
		Find(&rows).Error; err != nil {
		return nil, r.logError("voting_repo_list_voter_votes_failed", err,
			"pool_id", strings.TrimSpace(poolID),
			"voter", strings.TrimSpace(voter),
		)
	}
	return toVoteEntities(rows), nil
}

func (r *Repository) ListVotesByPool(ctx context.Context, poolID string) ([]entities.Vote, error) {
	var rows []voteModel
	if err := r.conn(ctx).
		Where("pool_id = ?", strings.TrimSpace(poolID)).
		Order("cast_at ASC").
		Find(&rows).Error; err != nil {
		return nil, r.logError("voting_repo_list_pool_votes_failed", err,
			"pool_id", strings.TrimSpace(poolID),
		)
	}
	return toVoteEntities(rows), nil
}

func (r *Repository) ReplaceVote(ctx context.Context, oldVoteID string, replacement entities.Vote) error {
	row := voteModelFromEntity(replacement)
	err := r.conn(ctx).Transaction(func(tx *gorm.DB) error {
		deleted := tx.Where("id = ?", strings.TrimSpace(oldVoteID)).Delete(&voteModel{})
		if deleted.Error != nil {
			return deleted.Error
		}
		if deleted.RowsAffected == 0 {
			return domainerrors.ErrVoteNotFound
		}
		return tx.Create(&row).Error
	})
	if err != nil {
		if errors.Is(err, domainerrors.ErrVoteNotFound) {
			return err
		}
		return r.logError("voting_repo_replace_vote_failed", err,
			"old_vote_id", strings.TrimSpace(oldVoteID),
			"pool_id", replacement.PoolID,
		)
	}
	return nil
}

func (r *Repository) ClearVotesByVoter(ctx context.Context, poolID string, voter string) ([]entities.Vote, error) {
	var rows []voteModel
	err := r.conn(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.
			Where("pool_id = ?", strings.TrimSpace(poolID)).
			Where("voter = ?", strings.TrimSpace(voter)).
			Order("cast_at ASC").
			Find(&rows).Error; err != nil {
			return err
		}
		if len(rows) == 0 {
			return nil
		}
		return tx.
			Where("pool_id = ?", strings.TrimSpace(poolID)).
			Where("voter = ?", strings.TrimSpace(voter)).
			Delete(&voteModel{}).Error
	})
	if err != nil {
		return nil, r.logError("voting_repo_clear_votes_failed", err,
			"pool_id", strings.TrimSpace(poolID),
			"voter", strings.TrimSpace(voter),
		)
	}
	return toVoteEntities(rows), nil
}

func (r *Repository) SaveAllocationResult(ctx context.Context, result entities.AllocationResult) error {
	winners, err := json.Marshal(result.Winners)
	if err != nil {
		return r.logError("voting_repo_marshal_allocations_failed", err,
			"pool_id", result.PoolID,
		)
	}
	row := allocationResultModel{
		PoolID:           strings.TrimSpace(result.PoolID),
		TotalVotedWeight: result.TotalVotedWeight,
		AllocationBase:   result.AllocationBase,
		Residual:         result.Residual,
		Winners:          winners,
		ClosedAt:         result.ClosedAt.UTC(),
	}
	create := r.conn(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "pool_id"}},
		DoNothing: true,
	}).Create(&row)
	if create.Error != nil {
		return r.logError("voting_repo_save_allocations_failed", create.Error,
			"pool_id", result.PoolID,
		)
	}
	if create.RowsAffected == 0 {
		return domainerrors.ErrAlreadyClosed
	}
	return nil
}

func (r *Repository) GetAllocationResult(ctx context.Context, poolID string) (entities.AllocationResult, bool, error) {
	var row allocationResultModel
	err := r.conn(ctx).
		Where("pool_id = ?", strings.TrimSpace(poolID)).
		First(&row).
		Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return entities.AllocationResult{}, false, nil
		}
		return entities.AllocationResult{}, false, r.logError("voting_repo_get_allocations_failed", err,
			"pool_id", strings.TrimSpace(poolID),
		)
	}
	var winners []entities.Allocation
	if err := json.Unmarshal(row.Winners, &winners); err != nil {
		return entities.AllocationResult{}, false, r.logError("voting_repo_decode_allocations_failed", err,
			"pool_id", strings.TrimSpace(poolID),
		)
	}
	return entities.AllocationResult{
		PoolID:           row.PoolID,
		TotalVotedWeight: row.TotalVotedWeight,
		AllocationBase:   row.AllocationBase,
		Residual:         row.Residual,
		Winners:          winners,
		ClosedAt:         row.ClosedAt.UTC(),
	}, true, nil
}

func (r *Repository) logError(event string, err error, attrs ...any) error {
	fields := make([]any, 0, len(attrs)+8)
	fields = append(fields,
		"event", event,
		"module", "pool-engine/voting-engine",
		"layer", "adapter",
		"error", err.Error(),
	)
	fields = append(fields, attrs...)
	r.logger.Error("voting repository operation failed", fields...)
	return err
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}

type voteModel struct {
	ID          string    `gorm:"column:id;primaryKey"`
	PoolID      string    `gorm:"column:pool_id"`
	Voter       string    `gorm:"column:voter"`
	CandidateID string    `gorm:"column:candidate_id"`
	Weight      int64     `gorm:"column:weight"`
	CastAt      time.Time `gorm:"column:cast_at"`
}

func (voteModel) TableName() string {
	return "pool_votes"
}

func voteModelFromEntity(vote entities.Vote) voteModel {
	row := voteModel{
		ID:          strings.TrimSpace(vote.VoteID),
		PoolID:      strings.TrimSpace(vote.PoolID),
		Voter:       strings.TrimSpace(vote.Voter),
		CandidateID: strings.TrimSpace(vote.CandidateID),
		Weight:      vote.Weight,
		CastAt:      vote.CastAt.UTC(),
	}
	if row.CastAt.IsZero() {
		row.CastAt = time.Now().UTC()
	}
	return row
}

func (m voteModel) toEntity() entities.Vote {
	return entities.Vote{
		VoteID:      m.ID,
		PoolID:      m.PoolID,
		Voter:       m.Voter,
		CandidateID: m.CandidateID,
		Weight:      m.Weight,
		CastAt:      m.CastAt.UTC(),
	}
}

type allocationResultModel struct {
	PoolID           string    `gorm:"column:pool_id;primaryKey"`
	TotalVotedWeight int64     `gorm:"column:total_voted_weight"`
	AllocationBase   int64     `gorm:"column:allocation_base"`
	Residual         int64     `gorm:"column:residual"`
	Winners          []byte    `gorm:"column:winners"`
	ClosedAt         time.Time `gorm:"column:closed_at"`
}

func (allocationResultModel) TableName() string {
	return "pool_allocation_results"
}

func toVoteEntities(rows []voteModel) []entities.Vote {
	items := make([]entities.Vote, 0, len(rows))
	for _, row := range rows {
		items = append(items, row.toEntity())
	}
	return items
}
