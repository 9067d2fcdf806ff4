package postgresadapter

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/Crowd-VC/crowd-vc-fullstack-sub002/contexts/pool-engine/pool-lifecycle/domain/entities"
	domainerrors "github.com/Crowd-VC/crowd-vc-fullstack-sub002/contexts/pool-engine/pool-lifecycle/domain/errors"
	platformdb "github.com/Crowd-VC/crowd-vc-fullstack-sub002/internal/platform/db"
	"github.com/Crowd-VC/crowd-vc-fullstack-sub002/internal/shared/outbox"

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

func (r *Repository) CreatePool(ctx context.Context, pool entities.Pool) error {
	row := poolModelFromEntity(pool)
	if err := r.conn(ctx).Create(&row).Error; err != nil {
		if isUniqueViolation(err) {
			return domainerrors.ErrPoolExists
		}
		return r.logError("lifecycle_repo_create_pool_failed", err, "pool_id", pool.PoolID)
	}
	return nil
}

func (r *Repository) GetPool(ctx context.Context, poolID string) (entities.Pool, bool, error) {
	var row poolModel
	err := r.conn(ctx).
		Where("id = ?", strings.TrimSpace(poolID)).
		First(&row).
		Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return entities.Pool{}, false, nil
		}
		return entities.Pool{}, false, r.logError("lifecycle_repo_get_pool_failed", err,
			"pool_id", strings.TrimSpace(poolID),
		)
	}
	return row.toEntity(), true, nil
}

func (r *Repository) SavePool(ctx context.Context, pool entities.Pool) error {
	row := poolModelFromEntity(pool)
	update := r.conn(ctx).
		Where("id = ?", row.ID).
		Select("*").
		Updates(&row)
	if update.Error != nil {
		return r.logError("lifecycle_repo_save_pool_failed", update.Error, "pool_id", pool.PoolID)
	}
	if update.RowsAffected == 0 {
		return domainerrors.ErrPoolNotFound
	}
	return nil
}

func (r *Repository) ListPoolsByStatus(ctx context.Context, status entities.PoolStatus) ([]entities.Pool, error) {
	var rows []poolModel
	if err := r.conn(ctx).
		Where("status = ?", string(status)).
		Order("created_at ASC").
		Find(&rows).Error; err != nil {
		return nil, r.logError("lifecycle_repo_list_pools_failed", err, "status", string(status))
	}
	items := make([]entities.Pool, 0, len(rows))
	for _, row := range rows {
		items = append(items, row.toEntity())
	}
	return items, nil
}

func (r *Repository) RegisterCandidate(ctx context.Context, candidate entities.Candidate) error {
	row := candidateModel{
		PoolID:       strings.TrimSpace(candidate.PoolID),
		CandidateID:  strings.TrimSpace(candidate.CandidateID),
		Name:         candidate.Name,
		Recipient:    strings.TrimSpace(candidate.Recipient),
		RegisteredAt: candidate.RegisteredAt.UTC(),
	}
	if err := r.conn(ctx).Create(&row).Error; err != nil {
		if isUniqueViolation(err) {
			return domainerrors.ErrCandidateExists
		}
		return r.logError("lifecycle_repo_register_candidate_failed", err,
			"pool_id", candidate.PoolID,
			"candidate_id", candidate.CandidateID,
		)
	}
	return nil
}

func (r *Repository) GetCandidate(ctx context.Context, poolID string, candidateID string) (entities.Candidate, bool, error) {
	var row candidateModel
	err := r.conn(ctx).
		Where("pool_id = ?", strings.TrimSpace(poolID)).
		Where("candidate_id = ?", strings.TrimSpace(candidateID)).
		First(&row).
		Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return entities.Candidate{}, false, nil
		}
		return entities.Candidate{}, false, r.logError("lifecycle_repo_get_candidate_failed", err,
			"pool_id", strings.TrimSpace(poolID),
			"candidate_id", strings.TrimSpace(candidateID),
		)
	}
	return row.toEntity(), true, nil
}

func (r *Repository) ListCandidates(ctx context.Context, poolID string) ([]entities.Candidate, error) {
	var rows []candidateModel
	if err := r.conn(ctx).
		Where("pool_id = ?", strings.TrimSpace(poolID)).
		Order("candidate_id ASC").
		Find(&rows).Error; err != nil {
		return nil, r.logError("lifecycle_repo_list_candidates_failed", err,
			"pool_id", strings.TrimSpace(poolID),
		)
	}
	items := make([]entities.Candidate, 0, len(rows))
	for _, row := range rows {
		items = append(items, row.toEntity())
	}
	return items, nil
}

func (r *Repository) AppendMessages(ctx context.Context, messages []outbox.Message) error {
	if len(messages) == 0 {
		return nil
	}
	rows := make([]outboxModel, 0, len(messages))
	for _, message := range messages {
		rows = append(rows, outboxModel{
			ID:           message.ID,
			EventType:    message.EventType,
			PartitionKey: message.PartitionKey,
			Payload:      message.Payload,
			Status:       message.Status,
			RetryCount:   message.RetryCount,
			CreatedAt:    message.CreatedAt.UTC(),
			PublishedAt:  message.PublishedAt,
		})
	}
	create := r.conn(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoNothing: true,
	}).Create(&rows)
	if create.Error != nil {
		return r.logError("lifecycle_repo_append_outbox_failed", create.Error,
			"message_count", len(messages),
		)
	}
	return nil
}

func (r *Repository) ListPending(ctx context.Context, limit int) ([]outbox.Message, error) {
	if limit <= 0 {
		limit = 100
	}
	var rows []outboxModel
	if err := r.conn(ctx).
		Where("status = ?", outbox.StatusPending).
		Order("created_at ASC").
		Limit(limit).
		Find(&rows).Error; err != nil {
		return nil, r.logError("lifecycle_repo_list_pending_outbox_failed", err)
	}
	items := make([]outbox.Message, 0, len(rows))
	for _, row := range rows {
		items = append(items, outbox.Message{
			ID:           row.ID,
			EventType:    row.EventType,
			PartitionKey: row.PartitionKey,
			Payload:      row.Payload,
			Status:       row.Status,
			RetryCount:   row.RetryCount,
			CreatedAt:    row.CreatedAt.UTC(),
			PublishedAt:  row.PublishedAt,
		})
	}
	return items, nil
}

func (r *Repository) MarkPublished(ctx context.Context, messageID string, at time.Time) error {
	published := at.UTC()
	update := r.conn(ctx).Model(&outboxModel{}).
		Where("id = ?", strings.TrimSpace(messageID)).
		Updates(map[string]any{
			"status":       outbox.StatusPublished,
			"published_at": &published,
		})
	if update.Error != nil {
		return r.logError("lifecycle_repo_mark_published_failed", update.Error,
			"message_id", strings.TrimSpace(messageID),
		)
	}
	return nil
}

func (r *Repository) MarkFailed(ctx context.Context, messageID string) error {
	update := r.conn(ctx).Model(&outboxModel{}).
		Where("id = ?", strings.TrimSpace(messageID)).
		Updates(map[string]any{
			"status":      outbox.StatusFailed,
			"retry_count": gorm.Expr("retry_count + 1"),
		})
	if update.Error != nil {
		return r.logError("lifecycle_repo_mark_failed_failed", update.Error,
			"message_id", strings.TrimSpace(messageID),
		)
	}
	return nil
}

func (r *Repository) logError(event string, err error, attrs ...any) error {
	fields := make([]any, 0, len(attrs)+8)
	fields = append(fields,
		"event", event,
		"module", "pool-engine/pool-lifecycle",
		"layer", "adapter",
		"error", err.Error(),
	)
	fields = append(fields, attrs...)
	r.logger.Error("lifecycle repository operation failed", fields...)
	return err
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}

type poolModel struct {
	ID                 string     `gorm:"column:id;primaryKey"`
	Name               string     `gorm:"column:name"`
	Controller         string     `gorm:"column:controller"`
	FundingAssetID     string     `gorm:"column:funding_asset_id"`
	FundingGoal        int64      `gorm:"column:funding_goal"`
	MinContribution    int64      `gorm:"column:min_contribution"`
	MaxContribution    *int64     `gorm:"column:max_contribution"`
	FeeBasisPoints     int64      `gorm:"column:fee_basis_points"`
	FeeRecipient       string     `gorm:"column:fee_recipient"`
	VotingDeadline     time.Time  `gorm:"column:voting_deadline"`
	MaxWinners         int        `gorm:"column:max_winners"`
	TotalContributions int64      `gorm:"column:total_contributions"`
	RetainedPenalties  int64      `gorm:"column:retained_penalties"`
	Status             string     `gorm:"column:status"`
	ActivatedAt        *time.Time `gorm:"column:activated_at"`
	ClosedAt           *time.Time `gorm:"column:closed_at"`
	CreatedAt          time.Time  `gorm:"column:created_at"`
	UpdatedAt          time.Time  `gorm:"column:updated_at"`
}

func (poolModel) TableName() string {
	return "pools"
}

func poolModelFromEntity(pool entities.Pool) poolModel {
	return poolModel{
		ID:                 strings.TrimSpace(pool.PoolID),
		Name:               pool.Name,
		Controller:         strings.TrimSpace(pool.Controller),
		FundingAssetID:     strings.TrimSpace(pool.FundingAssetID),
		FundingGoal:        pool.FundingGoal,
		MinContribution:    pool.MinContribution,
		MaxContribution:    pool.MaxContribution,
		FeeBasisPoints:     pool.FeeBasisPoints,
		FeeRecipient:       strings.TrimSpace(pool.FeeRecipient),
		VotingDeadline:     pool.VotingDeadline.UTC(),
		MaxWinners:         pool.MaxWinners,
		TotalContributions: pool.TotalContributions,
		RetainedPenalties:  pool.RetainedPenalties,
		Status:             string(pool.Status),
		ActivatedAt:        pool.ActivatedAt,
		ClosedAt:           pool.ClosedAt,
		CreatedAt:          pool.CreatedAt.UTC(),
		UpdatedAt:          pool.UpdatedAt.UTC(),
	}
}

func (m poolModel) toEntity() entities.Pool {
	return entities.Pool{
		PoolID:             m.ID,
		Name:               m.Name,
		Controller:         m.Controller,
		FundingAssetID:     m.FundingAssetID,
		FundingGoal:        m.FundingGoal,
		MinContribution:    m.MinContribution,
		MaxContribution:    m.MaxContribution,
		FeeBasisPoints:     m.FeeBasisPoints,
		FeeRecipient:       m.FeeRecipient,
		VotingDeadline:     m.VotingDeadline.UTC(),
		MaxWinners:         m.MaxWinners,
		TotalContributions: m.TotalContributions,
		RetainedPenalties:  m.RetainedPenalties,
		Status:             entities.PoolStatus(m.Status),
		ActivatedAt:        m.ActivatedAt,
		ClosedAt:           m.ClosedAt,
		CreatedAt:          m.CreatedAt.UTC(),
		UpdatedAt:          m.UpdatedAt.UTC(),
	}
}

type candidateModel struct {
	PoolID       string    `gorm:"column:pool_id;primaryKey"`
	CandidateID  string    `gorm:"column:candidate_id;primaryKey"`
	Name         string    `gorm:"column:name"`
	Recipient    string    `gorm:"column:recipient"`
	RegisteredAt time.Time `gorm:"column:registered_at"`
}

func (candidateModel) TableName() string {
	return "pool_candidates"
}

func (m candidateModel) toEntity() entities.Candidate {
	return entities.Candidate{
		PoolID:       m.PoolID,
		CandidateID:  m.CandidateID,
		Name:         m.Name,
		Recipient:    m.Recipient,
		RegisteredAt: m.RegisteredAt.UTC(),
	}
}

type outboxModel struct {
	ID           string     `gorm:"column:id;primaryKey"`
	EventType    string     `gorm:"column:event_type"`
	PartitionKey string     `gorm:"column:partition_key"`
	Payload      []byte     `gorm:"column:payload"`
	Status       string     `gorm:"column:status"`
	RetryCount   int        `gorm:"column:retry_count"`
	CreatedAt    time.Time  `gorm:"column:created_at"`
	PublishedAt  *time.Time `gorm:"column:published_at"`
}

func (outboxModel) TableName() string {
	return "pool_outbox"
}
