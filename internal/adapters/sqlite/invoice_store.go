package sqlite

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/atvirokodosprendimai/invoices/internal/adapters/sqlite/gormsqlite"
	"github.com/atvirokodosprendimai/invoices/internal/core/domain"
)

const aggregateInvoice = "invoice"

type invoiceModel struct {
	TenantID       string     `gorm:"column:tenant_id;primaryKey"`
	ID             string     `gorm:"column:id;primaryKey"`
	Code           string     `gorm:"column:code;not null"`
	SubjectType    string     `gorm:"column:subject_type;not null"`
	SubjectName    string     `gorm:"column:subject_name;not null"`
	ThirdpartyType string     `gorm:"column:thirdparty_type;not null"`
	ThirdpartyName string     `gorm:"column:thirdparty_name;not null"`
	DateInvoice    *time.Time `gorm:"column:date_invoice"`
	AmountTotal    float64    `gorm:"column:amount_total;not null"`
	Status         int        `gorm:"column:status;not null"`
	IsDeleted      bool       `gorm:"column:is_deleted;not null"`
	CreatedAt      time.Time  `gorm:"column:created_at;not null"`
	UpdatedAt      time.Time  `gorm:"column:updated_at;not null"`
}

func (invoiceModel) TableName() string {
	return "invoices"
}

func (m invoiceModel) toDomain() domain.Invoice {
	return domain.Invoice{
		TenantID:       m.TenantID,
		ID:             m.ID,
		Code:           m.Code,
		SubjectType:    m.SubjectType,
		SubjectName:    m.SubjectName,
		ThirdpartyType: m.ThirdpartyType,
		ThirdpartyName: m.ThirdpartyName,
		DateInvoice:    m.DateInvoice,
		AmountTotal:    m.AmountTotal,
		Status:         domain.InvoiceStatus(m.Status),
		IsDeleted:      m.IsDeleted,
		CreatedAt:      m.CreatedAt,
		UpdatedAt:      m.UpdatedAt,
	}
}

func invoiceFromDomain(inv domain.Invoice) invoiceModel {
	return invoiceModel{
		TenantID:       inv.TenantID,
		ID:             inv.ID,
		Code:           inv.Code,
		SubjectType:    inv.SubjectType,
		SubjectName:    inv.SubjectName,
		ThirdpartyType: inv.ThirdpartyType,
		ThirdpartyName: inv.ThirdpartyName,
		DateInvoice:    inv.DateInvoice,
		AmountTotal:    inv.AmountTotal,
		Status:         int(inv.Status),
		IsDeleted:      inv.IsDeleted,
		CreatedAt:      inv.CreatedAt,
		UpdatedAt:      inv.UpdatedAt,
	}
}

// invoiceSnapshot is the JSON form stored in audit rows and event payloads.
type invoiceSnapshot struct {
	ID             string     `json:"id"`
	Code           string     `json:"code"`
	SubjectType    string     `json:"subject_type,omitempty"`
	SubjectName    string     `json:"subject_name,omitempty"`
	ThirdpartyType string     `json:"thirdparty_type,omitempty"`
	ThirdpartyName string     `json:"thirdparty_name,omitempty"`
	DateInvoice    *time.Time `json:"date_invoice,omitempty"`
	AmountTotal    float64    `json:"amount_total"`
	Status         int        `json:"status"`
	IsDeleted      bool       `json:"is_deleted"`
}

func snapshot(m *invoiceModel) string {
	if m == nil {
		return ""
	}
	return string(mustJSON(invoiceSnapshot{
		ID:             m.ID,
		Code:           m.Code,
		SubjectType:    m.SubjectType,
		SubjectName:    m.SubjectName,
		ThirdpartyType: m.ThirdpartyType,
		ThirdpartyName: m.ThirdpartyName,
		DateInvoice:    m.DateInvoice,
		AmountTotal:    m.AmountTotal,
		Status:         m.Status,
		IsDeleted:      m.IsDeleted,
	}))
}

var sortColumns = map[string]string{
	"subjectType":    "subject_type",
	"thirdpartyType": "thirdparty_type",
	"code":           "code",
	"dateInvoice":    "date_invoice",
	"amountTotal":    "amount_total",
	"status":         "status",
}

type InvoiceStore struct {
	db *gormsqlite.DB
}

func NewInvoiceStore(db *gormsqlite.DB) *InvoiceStore {
	return &InvoiceStore{db: db}
}

func (s *InvoiceStore) UpsertWithEvents(ctx context.Context, inv domain.Invoice, meta domain.MutationMetadata) (domain.Invoice, error) {
	meta = meta.Normalize()
	var result domain.Invoice

	err := s.db.WriteTX(ctx, func(tx *gormsqlite.Tx) error {
		var before *invoiceModel
		var existing invoiceModel
		err := tx.Where("tenant_id = ? AND id = ?", inv.TenantID, inv.ID).First(&existing).Error
		switch {
		case err == nil:
			before = &existing
		case errors.Is(err, gorm.ErrRecordNotFound):
			before = nil
		default:
			return fmt.Errorf("load existing invoice: %w", err)
		}

		now := meta.OccurredAt.UTC()
		model := invoiceFromDomain(inv)
		model.IsDeleted = false
		model.CreatedAt = now
		model.UpdatedAt = now

		if err := tx.Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "tenant_id"}, {Name: "id"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"code", "subject_type", "subject_name", "thirdparty_type", "thirdparty_name",
				"date_invoice", "amount_total", "status", "is_deleted", "updated_at",
			}),
		}).Create(&model).Error; err != nil {
			return fmt.Errorf("upsert invoice: %w", err)
		}

		var after invoiceModel
		if err := tx.Where("tenant_id = ? AND id = ?", inv.TenantID, inv.ID).First(&after).Error; err != nil {
			return fmt.Errorf("load updated invoice: %w", err)
		}

		action := domain.EventInvoiceUpdated
		if before == nil {
			action = domain.EventInvoiceCreated
		}
		if err := s.recordEvent(tx.DB, inv.TenantID, inv.ID, action, meta, before, &after); err != nil {
			return err
		}

		result = after.toDomain()
		return nil
	})
	if err != nil {
		return domain.Invoice{}, err
	}
	return result, nil
}

// DeleteWithEvents marks the invoice deleted. It reports false when the invoice is
// missing or already deleted, and refuses paid invoices with domain.ErrInvoicePaid.
func (s *InvoiceStore) DeleteWithEvents(ctx context.Context, tenantID, id string, meta domain.MutationMetadata) (bool, error) {
	meta = meta.Normalize()
	deleted := false

	err := s.db.WriteTX(ctx, func(tx *gormsqlite.Tx) error {
		var before invoiceModel
		if err := tx.Where("tenant_id = ? AND id = ? AND is_deleted = ?", tenantID, id, false).First(&before).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil
			}
			return fmt.Errorf("load invoice before delete: %w", err)
		}

		now := meta.OccurredAt.UTC()
		res := tx.Model(&invoiceModel{}).
			Where("tenant_id = ? AND id = ? AND is_deleted = ? AND status <> ?", tenantID, id, false, int(domain.StatusPaid)).
			Updates(map[string]any{"is_deleted": true, "updated_at": now})
		if res.Error != nil {
			return fmt.Errorf("delete invoice: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			if domain.InvoiceStatus(before.Status) == domain.StatusPaid {
				return domain.ErrInvoicePaid
			}
			return nil
		}
		deleted = true

		after := before
		after.IsDeleted = true
		after.UpdatedAt = now
		return s.recordEvent(tx.DB, tenantID, id, domain.EventInvoiceDeleted, meta, &before, &after)
	})
	if err != nil {
		return false, err
	}
	return deleted, nil
}

func (s *InvoiceStore) Get(ctx context.Context, tenantID, id string) (domain.Invoice, error) {
	var model invoiceModel
	err := s.db.ReadTX(ctx, func(tx *gormsqlite.Tx) error {
		return tx.Where("tenant_id = ? AND id = ?", tenantID, id).First(&model).Error
	})
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.Invoice{}, domain.ErrNotFound
		}
		return domain.Invoice{}, fmt.Errorf("get invoice: %w", err)
	}
	return model.toDomain(), nil
}

// Search returns one page of invoices together with the total match count.
func (s *InvoiceStore) Search(ctx context.Context, q domain.InvoiceQuery) (domain.InvoicePage, error) {
	column, ok := sortColumns[q.Sort.Field]
	if !ok {
		return domain.InvoicePage{}, domain.ErrInvalidSort
	}

	var models []invoiceModel
	var total int64
	err := s.db.ReadTX(ctx, func(tx *gormsqlite.Tx) error {
		query := applyInvoiceFilter(tx.Model(&invoiceModel{}).Where("tenant_id = ?", q.TenantID), q.Filter).
			Session(&gorm.Session{})
		if err := query.Count(&total).Error; err != nil {
			return err
		}
		return query.
			Order(clause.OrderByColumn{Column: clause.Column{Name: column}, Desc: q.Sort.Desc}).
			Order("id ASC").
			Offset(q.Page.Offset()).
			Limit(q.Page.Size).
			Find(&models).Error
	})
	if err != nil {
		return domain.InvoicePage{}, fmt.Errorf("search invoices: %w", err)
	}

	items := make([]domain.Invoice, 0, len(models))
	for _, m := range models {
		items = append(items, m.toDomain())
	}
	return domain.InvoicePage{
		Items:      items,
		PageInfo:   domain.NewPageInfo(q.Page, total),
		TotalCount: total,
	}, nil
}

func applyInvoiceFilter(query *gorm.DB, f domain.InvoiceFilter) *gorm.DB {
	if f.Code != "" {
		query = query.Where("instr(lower(code), lower(?)) > 0", f.Code)
	}
	if f.Status != nil {
		query = query.Where("status = ?", int(*f.Status))
	}
	if f.SubjectType != "" {
		query = query.Where("subject_type = ?", f.SubjectType)
	}
	if f.ThirdpartyType != "" {
		query = query.Where("thirdparty_type = ?", f.ThirdpartyType)
	}
	if f.DateFrom != nil {
		query = query.Where("date_invoice >= ?", f.DateFrom.UTC())
	}
	if f.DateTo != nil {
		query = query.Where("date_invoice <= ?", f.DateTo.UTC())
	}
	if f.AmountMin != nil {
		query = query.Where("amount_total >= ?", *f.AmountMin)
	}
	if f.AmountMax != nil {
		query = query.Where("amount_total <= ?", *f.AmountMax)
	}
	if f.IsDeleted != nil {
		query = query.Where("is_deleted = ?", *f.IsDeleted)
	}
	return query
}

func (s *InvoiceStore) recordEvent(tx *gorm.DB, tenantID, id, action string, meta domain.MutationMetadata, before, after *invoiceModel) error {
	aggregateVersion, err := nextAggregateVersion(tx, tenantID, id)
	if err != nil {
		return err
	}

	payload := map[string]any{"invoice_id": id}
	if after != nil {
		payload["invoice"] = json.RawMessage(snapshot(after))
	}
	envelope := domain.EventEnvelope{
		EventID:          uuid.NewString(),
		EventType:        action,
		SchemaVersion:    domain.CurrentEventSchemaVersion,
		TenantID:         tenantID,
		AggregateType:    aggregateInvoice,
		AggregateID:      id,
		AggregateVersion: aggregateVersion,
		OccurredAt:       meta.OccurredAt.UTC(),
		CorrelationID:    meta.CorrelationID,
		CausationID:      meta.CausationID,
		Actor:            meta.Actor,
		Source:           meta.Source,
		Payload:          mustJSON(payload),
	}
	return insertAuditAndOutbox(tx, meta, snapshot(before), snapshot(after), envelope)
}

func nextAggregateVersion(tx *gorm.DB, tenantID, id string) (int64, error) {
	var maxVersion int64
	err := tx.Model(&auditEventModel{}).
		Where("tenant_id = ? AND aggregate_type = ? AND aggregate_id = ?", tenantID, aggregateInvoice, id).
		Select("COALESCE(MAX(aggregate_version), 0)").
		Scan(&maxVersion).Error
	if err != nil {
		return 0, fmt.Errorf("query aggregate version: %w", err)
	}
	return maxVersion + 1, nil
}

func insertAuditAndOutbox(tx *gorm.DB, meta domain.MutationMetadata, beforeJSON, afterJSON string, envelope domain.EventEnvelope) error {
	audit := auditEventModel{
		EventID:          envelope.EventID,
		SchemaVersion:    envelope.SchemaVersion,
		TenantID:         envelope.TenantID,
		AggregateType:    envelope.AggregateType,
		AggregateID:      envelope.AggregateID,
		AggregateVersion: envelope.AggregateVersion,
		Action:           envelope.EventType,
		Actor:            meta.Actor,
		Source:           meta.Source,
		RequestID:        meta.RequestID,
		CorrelationID:    meta.CorrelationID,
		CausationID:      meta.CausationID,
		IdempotencyKey:   meta.IdempotencyKey,
		BeforeJSON:       beforeJSON,
		AfterJSON:        afterJSON,
		OccurredAt:       envelope.OccurredAt,
	}
	if err := tx.Create(&audit).Error; err != nil {
		return fmt.Errorf("insert audit event: %w", err)
	}

	payload, err := json.Marshal(envelope)
	if err != nil {
		return fmt.Errorf("marshal outbox payload: %w", err)
	}

	outbox := outboxEventModel{
		EventID:       envelope.EventID,
		TenantID:      envelope.TenantID,
		Topic:         "events." + envelope.TenantID + "." + envelope.EventType,
		PayloadJSON:   string(payload),
		Status:        outboxPending,
		Attempts:      0,
		NextAttemptAt: envelope.OccurredAt,
		LastError:     "",
		CreatedAt:     envelope.OccurredAt,
	}
	if err := tx.Create(&outbox).Error; err != nil {
		return fmt.Errorf("insert outbox event: %w", err)
	}
	return nil
}

func mustJSON(v any) json.RawMessage {
	b, _ := json.Marshal(v)
	return b
}
