package postgresadapter

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/Crowd-VC/crowd-vc-fullstack-sub002/contexts/pool-engine/ledger-service/domain/entities"
	domainerrors "github.com/Crowd-VC/crowd-vc-fullstack-sub002/contexts/pool-engine/ledger-service/domain/errors"
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

func (r *Repository) RecordContribution(
	ctx context.Context,
	contribution entities.Contribution,
	entries []entities.LedgerEntry,
) error {
	row := contributionModelFromEntity(contribution)
	entryRows := entryModelsFromEntities(entries)
	err := r.conn(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "id"}},
			DoNothing: true,
		}).Create(&row).Error; err != nil {
			return err
		}
		if len(entryRows) > 0 {
			if err := tx.Create(&entryRows).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		if isUniqueViolation(err) {
			return domainerrors.ErrInvalidLedgerInput
		}
		return r.logError("ledger_repo_record_contribution_failed", err,
			"pool_id", contribution.PoolID,
			"contributor", contribution.Contributor,
		)
	}
	return nil
}

func (r *Repository) WithdrawContributions(
	ctx context.Context,
	poolID string,
	contributor string,
	at time.Time,
	entries []entities.LedgerEntry,
) ([]entities.Contribution, error) {
	poolID = strings.TrimSpace(poolID)
	contributor = strings.TrimSpace(contributor)
	entryRows := entryModelsFromEntities(entries)

	var rows []contributionModel
	err := r.conn(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.
			Where("pool_id = ?", poolID).
			Where("contributor = ?", contributor).
			Where("withdrawn = ?", false).
			Order("created_at ASC").
			Find(&rows).Error; err != nil {
			return err
		}
		if len(rows) == 0 {
			return domainerrors.ErrContributionNotFound
		}
		withdrawnAt := at.UTC()
		if err := tx.Model(&contributionModel{}).
			Where("pool_id = ?", poolID).
			Where("contributor = ?", contributor).
			Where("withdrawn = ?", false).
			Updates(map[string]any{
				"withdrawn":    true,
				"withdrawn_at": withdrawnAt,
				"updated_at":   withdrawnAt,
			}).Error; err != nil {
			return err
		}
		if len(entryRows) > 0 {
			if err := tx.Create(&entryRows).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, domainerrors.ErrContributionNotFound) {
			return nil, err
		}
		return nil, r.logError("ledger_repo_withdraw_failed", err,
			"pool_id", poolID,
			"contributor", contributor,
		)
	}

	withdrawnAt := at.UTC()
	items := make([]entities.Contribution, 0, len(rows))
	for _, row := range rows {
		row.Withdrawn = true
		row.WithdrawnAt = &withdrawnAt
		row.UpdatedAt = withdrawnAt
		items = append(items, row.toEntity())
	}
	return items, nil
}

func (r *Repository) AppendEntries(ctx context.Context, entries []entities.LedgerEntry) error {
	if len(entries) == 0 {
		return nil
	}
	rows := entryModelsFromEntities(entries)
	if err := r.conn(ctx).Create(&rows).Error; err != nil {
		return r.logError("ledger_repo_append_entries_failed", err,
			"pool_id", entries[0].PoolID,
		)
	}
	return nil
}

func (r *Repository) ListContributionsByPool(ctx context.Context, poolID string) ([]entities.Contribution, error) {
	var rows []contributionModel
	if err := r.conn(ctx).
		Where("pool_id = ?", strings.TrimSpace(poolID)).
		Order("created_at ASC").
		Find(&rows).Error; err != nil {
		return nil, r.logError("ledger_repo_list_contributions_failed", err,
			"pool_id", strings.TrimSpace(poolID),
		)
	}
	return toContributionEntities(rows), nil
}

func (r *Repository) ListContributionsByContributor(
	ctx context.Context,
	poolID string,
	contributor string,
) ([]entities.Contribution, error) {
	var rows []contributionModel
	if err := r.conn(ctx).
		Where("pool_id = ?", strings.TrimSpace(poolID)).
		Where("contributor = ?", strings.TrimSpace(contributor)).
		Order("created_at ASC").
		Find(&rows).Error; err != nil {
		return nil, r.logError("ledger_repo_list_contributor_failed", err,
			"pool_id", strings.TrimSpace(poolID),
			"contributor", strings.TrimSpace(contributor),
		)
	}
	return toContributionEntities(rows), nil
}

func (r *Repository) ListEntriesByPool(ctx context.Context, poolID string) ([]entities.LedgerEntry, error) {
	var rows []ledgerEntryModel
	if err := r.conn(ctx).
		Where("pool_id = ?", strings.TrimSpace(poolID)).
		Order("created_at ASC").
		Find(&rows).Error; err != nil {
		return nil, r.logError("ledger_repo_list_entries_failed", err,
			"pool_id", strings.TrimSpace(poolID),
		)
	}
	items := make([]entities.LedgerEntry, 0, len(rows))
	for _, row := range rows {
		items = append(items, row.toEntity())
	}
	return items, nil
}

func (r *Repository) logError(event string, err error, attrs ...any) error {
	fields := make([]any, 0, len(attrs)+8)
	fields = append(fields,
		"event", event,
		"module", "pool-engine/ledger-service",
		"layer", "adapter",
		"error", err.Error(),
	)
	fields = append(fields, attrs...)
	r.logger.Error("ledger repository operation failed", fields...)
	return err
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}

type contributionModel struct {
	ID          string     `gorm:"column:id;primaryKey"`
	PoolID      string     `gorm:"column:pool_id"`
	Contributor string     `gorm:"column:contributor"`
	AssetID     string     `gorm:"column:asset_id"`
	GrossAmount int64      `gorm:"column:gross_amount"`
	PlatformFee int64      `gorm:"column:platform_fee"`
	NetAmount   int64      `gorm:"column:net_amount"`
	Withdrawn   bool       `gorm:"column:withdrawn"`
	WithdrawnAt *time.Time `gorm:"column:withdrawn_at"`
	CreatedAt   time.Time  `gorm:"column:created_at"`
	UpdatedAt   time.Time  `gorm:"column:updated_at"`
}

func (contributionModel) TableName() string {
	return "pool_contributions"
}

func contributionModelFromEntity(contribution entities.Contribution) contributionModel {
	row := contributionModel{
		ID:          strings.TrimSpace(contribution.ContributionID),
		PoolID:      strings.TrimSpace(contribution.PoolID),
		Contributor: strings.TrimSpace(contribution.Contributor),
		AssetID:     strings.TrimSpace(contribution.AssetID),
		GrossAmount: contribution.GrossAmount,
		PlatformFee: contribution.PlatformFee,
		NetAmount:   contribution.NetAmount,
		Withdrawn:   contribution.Withdrawn,
		WithdrawnAt: contribution.WithdrawnAt,
		CreatedAt:   contribution.CreatedAt.UTC(),
		UpdatedAt:   contribution.UpdatedAt.UTC(),
	}
	if row.CreatedAt.IsZero() {
		row.CreatedAt = time.Now().UTC()
	}
	if row.UpdatedAt.IsZero() {
		row.UpdatedAt = row.CreatedAt
	}
	return row
}

func (m contributionModel) toEntity() entities.Contribution {
	return entities.Contribution{
		ContributionID: m.ID,
		PoolID:         m.PoolID,
		Contributor:    m.Contributor,
		AssetID:        m.AssetID,
		GrossAmount:    m.GrossAmount,
		PlatformFee:    m.PlatformFee,
		NetAmount:      m.NetAmount,
		Withdrawn:      m.Withdrawn,
		WithdrawnAt:    m.WithdrawnAt,
		CreatedAt:      m.CreatedAt.UTC(),
		UpdatedAt:      m.UpdatedAt.UTC(),
	}
}

type ledgerEntryModel struct {
	ID          string    `gorm:"column:id;primaryKey"`
	PoolID      string    `gorm:"column:pool_id"`
	Account     string    `gorm:"column:account"`
	EntryType   string    `gorm:"column:entry_type"`
	Amount      int64     `gorm:"column:amount"`
	AssetID     string    `gorm:"column:asset_id"`
	ReferenceID string    `gorm:"column:reference_id"`
	CreatedAt   time.Time `gorm:"column:created_at"`
}

func (ledgerEntryModel) TableName() string {
	return "pool_ledger_entries"
}

func entryModelsFromEntities(entries []entities.LedgerEntry) []ledgerEntryModel {
	rows := make([]ledgerEntryModel, 0, len(entries))
	for _, entry := range entries {
		rows = append(rows, ledgerEntryModel{
			ID:          strings.TrimSpace(entry.EntryID),
			PoolID:      strings.TrimSpace(entry.PoolID),
			Account:     strings.TrimSpace(entry.Account),
			EntryType:   string(entry.EntryType),
			Amount:      entry.Amount,
			AssetID:     strings.TrimSpace(entry.AssetID),
			ReferenceID: strings.TrimSpace(entry.ReferenceID),
			CreatedAt:   entry.CreatedAt.UTC(),
		})
	}
	return rows
}

func (m ledgerEntryModel) toEntity() entities.LedgerEntry {
	return entities.LedgerEntry{
		EntryID:     m.ID,
		PoolID:      m.PoolID,
		Account:     m.Account,
		EntryType:   entities.EntryType(m.EntryType),
		Amount:      m.Amount,
		AssetID:     m.AssetID,
		ReferenceID: m.ReferenceID,
		CreatedAt:   m.CreatedAt.UTC(),
	}
}

func toContributionEntities(rows []contributionModel) []entities.Contribution {
	items := make([]entities.Contribution, 0, len(rows))
	for _, row := range rows {
		items = append(items, row.toEntity())
	}
	return items
}
