package sqlite

import (
	"context"
	"fmt"
	"time"

	"github.com/atvirokodosprendimai/invoices/internal/adapters/sqlite/gormsqlite"
	"github.com/atvirokodosprendimai/invoices/internal/core/domain"
	"gorm.io/gorm/clause"
)

type journalEntryModel struct {
	ID               int64      `gorm:"column:id;primaryKey;autoIncrement"`
	TenantID         string     `gorm:"column:tenant_id;not null"`
	Actor            string     `gorm:"column:actor;not null"`
	ClientMutationID string     `gorm:"column:client_mutation_id;not null"`
	Kind             string     `gorm:"column:kind;not null"`
	Label            string     `gorm:"column:label;not null"`
	EntityID         string     `gorm:"column:entity_id;not null"`
	Status           string     `gorm:"column:status;not null"`
	Error            string     `gorm:"column:error;not null"`
	RequestedAt      time.Time  `gorm:"column:requested_at;not null"`
	SettledAt        *time.Time `gorm:"column:settled_at"`
	JournalizedAt    time.Time  `gorm:"column:journalized_at;not null"`
}

func (journalEntryModel) TableName() string {
	return "journal_entries"
}

func (m journalEntryModel) toDomain() domain.JournalEntry {
	return domain.JournalEntry{
		ID:               m.ID,
		TenantID:         m.TenantID,
		Actor:            m.Actor,
		ClientMutationID: m.ClientMutationID,
		Kind:             m.Kind,
		Label:            m.Label,
		EntityID:         m.EntityID,
		Status:           domain.MutationStatus(m.Status),
		Error:            m.Error,
		RequestedAt:      m.RequestedAt,
		SettledAt:        m.SettledAt,
		JournalizedAt:    m.JournalizedAt,
	}
}

type JournalRepository struct {
	db *gormsqlite.DB
}

func NewJournalRepository(db *gormsqlite.DB) *JournalRepository {
	return &JournalRepository{db: db}
}

// Append stores one entry per client mutation; a repeated append returns the stored entry.
func (r *JournalRepository) Append(ctx context.Context, entry domain.JournalEntry) (domain.JournalEntry, error) {
	model := journalEntryModel{
		TenantID:         entry.TenantID,
		Actor:            entry.Actor,
		ClientMutationID: entry.ClientMutationID,
		Kind:             entry.Kind,
		Label:            entry.Label,
		EntityID:         entry.EntityID,
		Status:           string(entry.Status),
		Error:            entry.Error,
		RequestedAt:      entry.RequestedAt.UTC(),
		SettledAt:        entry.SettledAt,
		JournalizedAt:    entry.JournalizedAt.UTC(),
	}

	var stored journalEntryModel
	err := r.db.WriteTX(ctx, func(tx *gormsqlite.Tx) error {
		if err := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "client_mutation_id"}},
			DoNothing: true,
		}).Create(&model).Error; err != nil {
			return err
		}
		return tx.Where("client_mutation_id = ?", entry.ClientMutationID).First(&stored).Error
	})
	if err != nil {
		return domain.JournalEntry{}, fmt.Errorf("append journal entry: %w", err)
	}
	return stored.toDomain(), nil
}

func (r *JournalRepository) List(ctx context.Context, filter domain.JournalFilter) ([]domain.JournalEntry, error) {
	var rows []journalEntryModel
	err := r.db.ReadTX(ctx, func(tx *gormsqlite.Tx) error {
		query := tx.Model(&journalEntryModel{}).Where("tenant_id = ?", filter.TenantID)
		if filter.Status != "" {
			query = query.Where("status = ?", string(filter.Status))
		}
		if filter.BeforeID > 0 {
			query = query.Where("id < ?", filter.BeforeID)
		}
		return query.Order("id DESC").Limit(filter.Limit).Find(&rows).Error
	})
	if err != nil {
		return nil, fmt.Errorf("list journal entries: %w", err)
	}

	result := make([]domain.JournalEntry, 0, len(rows))
	for _, row := range rows {
		result = append(result, row.toDomain())
	}
	return result, nil
}
