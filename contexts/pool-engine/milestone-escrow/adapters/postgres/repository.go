package postgresadapter

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/Crowd-VC/crowd-vc-fullstack-sub002/contexts/pool-engine/milestone-escrow/domain/entities"
	domainerrors "github.com/Crowd-VC/crowd-vc-fullstack-sub002/contexts/pool-engine/milestone-escrow/domain/errors"
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

func (r *Repository) SaveSchedule(ctx context.Context, milestones []entities.Milestone) error {
	rows := make([]milestoneModel, 0, len(milestones))
	for _, milestone := range milestones {
		rows = append(rows, milestoneModelFromEntity(milestone))
	}
	err := r.conn(ctx).Transaction(func(tx *gorm.DB) error {
		return tx.Create(&rows).Error
	})
	if err != nil {
		if isUniqueViolation(err) {
			return domainerrors.ErrAlreadyConfigured
		}
		poolID := ""
		if len(milestones) > 0 {
			poolID = milestones[0].PoolID
		}
		return r.logError("escrow_repo_save_schedule_failed", err,
			"pool_id", poolID,
			"milestone_count", len(milestones),
		)
	}
	return nil
}

func (r *Repository) GetMilestone(ctx context.Context, milestoneID string) (entities.Milestone, bool, error) {
	var row milestoneModel
	err := r.conn(ctx).
		Where("id = ?", strings.TrimSpace(milestoneID)).
		First(&row).
		Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return entities.Milestone{}, false, nil
		}
		return entities.Milestone{}, false, r.logError("escrow_repo_get_milestone_failed", err,
			"milestone_id", strings.TrimSpace(milestoneID),
		)
	}
	return row.toEntity(), true, nil
}

func (r *Repository) ListMilestonesByCandidate(
	ctx context.Context,
	poolID string,
	candidateID string,
) ([]entities.Milestone, error) {
	var rows []milestoneModel
	if err := r.conn(ctx).
		Where("pool_id = ?", strings.TrimSpace(poolID)).
		Where("candidate_id = ?", strings.TrimSpace(candidateID)).
		Order("idx ASC").
		Find(&rows).Error; err != nil {
		return nil, r.logError("escrow_repo_list_candidate_milestones_failed", err,
			"pool_id", strings.TrimSpace(poolID),
			"candidate_id", strings.TrimSpace(candidateID),
		)
	}
	return toMilestoneEntities(rows), nil
}

func (r *Repository) ListMilestonesByPool(ctx context.Context, poolID string) ([]entities.Milestone, error) {
	var rows []milestoneModel
	if err := r.conn(ctx).
		Where("pool_id = ?", strings.TrimSpace(poolID)).
		Order("candidate_id ASC, idx ASC").
		Find(&rows).Error; err != nil {
		return nil, r.logError("escrow_repo_list_pool_milestones_failed", err,
			"pool_id", strings.TrimSpace(poolID),
		)
	}
	return toMilestoneEntities(rows), nil
}

func (r *Repository) SaveMilestone(ctx context.Context, milestone entities.Milestone) error {
	row := milestoneModelFromEntity(milestone)
	update := r.conn(ctx).
		Where("id = ?", row.ID).
		Select("*").
		Updates(&row)
	if update.Error != nil {
		return r.logError("escrow_repo_save_milestone_failed", update.Error,
			"milestone_id", milestone.MilestoneID,
			"pool_id", milestone.PoolID,
		)
	}
	if update.RowsAffected == 0 {
		return domainerrors.ErrMilestoneNotFound
	}
	return nil
}

func (r *Repository) SaveApproval(ctx context.Context, approval entities.Approval) (bool, error) {
	row := approvalModel{
		ID:          strings.TrimSpace(approval.ApprovalID),
		MilestoneID: strings.TrimSpace(approval.MilestoneID),
		PoolID:      strings.TrimSpace(approval.PoolID),
		Approver:    strings.TrimSpace(approval.Approver),
		ApprovedAt:  approval.ApprovedAt.UTC(),
	}
	inserted := false
	err := r.conn(ctx).Transaction(func(tx *gorm.DB) error {
		create := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "milestone_id"}, {Name: "approver"}},
			DoNothing: true,
		}).Create(&row)
		if create.Error != nil {
			return create.Error
		}
		if create.RowsAffected == 0 {
			return nil
		}
		inserted = true
		bump := tx.Model(&milestoneModel{}).
			Where("id = ?", row.MilestoneID).
			Updates(map[string]any{
				"approval_count": gorm.Expr("approval_count + 1"),
				"updated_at":     row.ApprovedAt,
			})
		if bump.Error != nil {
			return bump.Error
		}
		if bump.RowsAffected == 0 {
			return domainerrors.ErrMilestoneNotFound
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, domainerrors.ErrMilestoneNotFound) {
			return false, err
		}
		return false, r.logError("escrow_repo_save_approval_failed", err,
			"milestone_id", approval.MilestoneID,
			"approver", approval.Approver,
		)
	}
	return inserted, nil
}

func (r *Repository) ListApprovalsByMilestone(ctx context.Context, milestoneID string) ([]entities.Approval, error) {
	var rows []approvalModel
	if err := r.conn(ctx).
		Where("milestone_id = ?", strings.TrimSpace(milestoneID)).
		Order("approved_at ASC").
		Find(&rows).Error; err != nil {
		return nil, r.logError("escrow_repo_list_approvals_failed", err,
			"milestone_id", strings.TrimSpace(milestoneID),
		)
	}
	items := make([]entities.Approval, 0, len(rows))
	for _, row := range rows {
		items = append(items, entities.Approval{
			ApprovalID:  row.ID,
			MilestoneID: row.MilestoneID,
			PoolID:      row.PoolID,
			Approver:    row.Approver,
			ApprovedAt:  row.ApprovedAt.UTC(),
		})
	}
	return items, nil
}

func (r *Repository) logError(event string, err error, attrs ...any) error {
	fields := make([]any, 0, len(attrs)+8)
	fields = append(fields,
		"event", event,
		"module", "pool-engine/milestone-escrow",
		"layer", "adapter",
		"error", err.Error(),
	)
	fields = append(fields, attrs...)
	r.logger.Error("milestone repository operation failed", fields...)
	return err
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}

type milestoneModel struct {
	ID                string     `gorm:"column:id;primaryKey"`
	PoolID            string     `gorm:"column:pool_id"`
	CandidateID       string     `gorm:"column:candidate_id"`
	Index             int        `gorm:"column:idx"`
	Description       string     `gorm:"column:description"`
	FundingPercentBps int64      `gorm:"column:funding_percent_bps"`
	Deadline          *time.Time `gorm:"column:deadline"`
	EvidenceURI       string     `gorm:"column:evidence_uri"`
	ApprovalsNeeded   int        `gorm:"column:approvals_needed"`
	ApprovalCount     int        `gorm:"column:approval_count"`
	Completed         bool       `gorm:"column:completed"`
	Disputed          bool       `gorm:"column:disputed"`
	Abandoned         bool       `gorm:"column:abandoned"`
	ReleasedAmount    int64      `gorm:"column:released_amount"`
	CompletedAt       *time.Time `gorm:"column:completed_at"`
	CreatedAt         time.Time  `gorm:"column:created_at"`
	UpdatedAt         time.Time  `gorm:"column:updated_at"`
}

func (milestoneModel) TableName() string {
	return "pool_milestones"
}

func milestoneModelFromEntity(milestone entities.Milestone) milestoneModel {
	return milestoneModel{
		ID:                strings.TrimSpace(milestone.MilestoneID),
		PoolID:            strings.TrimSpace(milestone.PoolID),
		CandidateID:       strings.TrimSpace(milestone.CandidateID),
		Index:             milestone.Index,
		Description:       milestone.Description,
		FundingPercentBps: milestone.FundingPercentBps,
		Deadline:          milestone.Deadline,
		EvidenceURI:       milestone.EvidenceURI,
		ApprovalsNeeded:   milestone.ApprovalsNeeded,
		ApprovalCount:     milestone.ApprovalCount,
		Completed:         milestone.Completed,
		Disputed:          milestone.Disputed,
		Abandoned:         milestone.Abandoned,
		ReleasedAmount:    milestone.ReleasedAmount,
		CompletedAt:       milestone.CompletedAt,
		CreatedAt:         milestone.CreatedAt.UTC(),
		UpdatedAt:         milestone.UpdatedAt.UTC(),
	}
}

func (m milestoneModel) toEntity() entities.Milestone {
	return entities.Milestone{
		MilestoneID:       m.ID,
		PoolID:            m.PoolID,
		CandidateID:       m.CandidateID,
		Index:             m.Index,
		Description:       m.Description,
		FundingPercentBps: m.FundingPercentBps,
		Deadline:          m.Deadline,
		EvidenceURI:       m.EvidenceURI,
		ApprovalsNeeded:   m.ApprovalsNeeded,
		ApprovalCount:     m.ApprovalCount,
		Completed:         m.Completed,
		Disputed:          m.Disputed,
		Abandoned:         m.Abandoned,
		ReleasedAmount:    m.ReleasedAmount,
		CompletedAt:       m.CompletedAt,
		CreatedAt:         m.CreatedAt.UTC(),
		UpdatedAt:         m.UpdatedAt.UTC(),
	}
}

type approvalModel struct {
	ID          string    `gorm:"column:id;primaryKey"`
	MilestoneID string    `gorm:"column:milestone_id"`
	PoolID      string    `gorm:"column:pool_id"`
	Approver    string    `gorm:"column:approver"`
	ApprovedAt  time.Time `gorm:"column:approved_at"`
}

func (approvalModel) TableName() string {
	return "pool_milestone_approvals"
}

func toMilestoneEntities(rows []milestoneModel) []entities.Milestone {
	items := make([]entities.Milestone, 0, len(rows))
	for _, row := range rows {
		items = append(items, row.toEntity())
	}
	return items
}
