package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/atvirokodosprendimai/invoices/internal/core/domain"
	"github.com/atvirokodosprendimai/invoices/internal/core/ports"
)

type InvoiceService struct {
	store  ports.InvoiceStore
	audit  ports.AuditTrailRepository
	schema *InvoiceSchema
}

func NewInvoiceService(store ports.InvoiceStore, audit ports.AuditTrailRepository, schema *InvoiceSchema) *InvoiceService {
	return &InvoiceService{store: store, audit: audit, schema: schema}
}

// Search fetches one page of invoices, applying the searcher's default filters.
func (s *InvoiceService) Search(ctx context.Context, query domain.InvoiceQuery) (domain.InvoicePage, error) {
	if err := domain.ValidateKey(query.TenantID); err != nil {
		return domain.InvoicePage{}, err
	}
	if err := query.Filter.Validate(); err != nil {
		return domain.InvoicePage{}, err
	}
	page, err := query.Page.Normalize()
	if err != nil {
		return domain.InvoicePage{}, err
	}
	query.Page = page
	query = query.WithDefaultFilters()
	if _, err := domain.ParseSort(query.Sort.String()); err != nil {
		return domain.InvoicePage{}, err
	}
	return s.store.Search(ctx, query)
}

func (s *InvoiceService) Get(ctx context.Context, tenantID, id string) (domain.Invoice, error) {
	if err := domain.ValidateKey(tenantID); err != nil {
		return domain.Invoice{}, err
	}
	if err := domain.ValidateKey(id); err != nil {
		return domain.Invoice{}, err
	}
	return s.store.Get(ctx, tenantID, id)
}

// Upsert validates a raw invoice document and stores it. Creating requires the create
// right, replacing an existing invoice requires the update right.
func (s *InvoiceService) Upsert(ctx context.Context, tenantID, id string, data json.RawMessage, perms domain.Permissions, meta domain.MutationMetadata) (domain.Invoice, error) {
	inv, err := s.schema.Decode(tenantID, id, data)
	if err != nil {
		return domain.Invoice{}, err
	}
	if err := inv.Validate(); err != nil {
		return domain.Invoice{}, err
	}

	_, err = s.store.Get(ctx, tenantID, inv.ID)
	switch {
	case err == nil:
		if !perms.Has(domain.RightInvoiceUpdate) {
			return domain.Invoice{}, domain.ErrForbidden
		}
	case errors.Is(err, domain.ErrNotFound):
		if !perms.Has(domain.RightInvoiceCreate) {
			return domain.Invoice{}, domain.ErrForbidden
		}
	default:
		return domain.Invoice{}, err
	}

	return s.store.UpsertWithEvents(ctx, inv, meta)
}

// Delete soft-deletes an invoice. Paid invoices cannot be deleted.
func (s *InvoiceService) Delete(ctx context.Context, tenantID, id string, meta domain.MutationMetadata) error {
	inv, err := s.Get(ctx, tenantID, id)
	if err != nil {
		return err
	}
	if inv.IsDeleted {
		return domain.ErrNotFound
	}
	if inv.Status.Terminal() {
		return fmt.Errorf("delete %s: %w", inv.Code, domain.ErrInvoicePaid)
	}

	deleted, err := s.store.DeleteWithEvents(ctx, tenantID, id, meta)
	if err != nil {
		return err
	}
	if !deleted {
		return domain.ErrNotFound
	}
	return nil
}

func (s *InvoiceService) History(ctx context.Context, filter domain.AuditFilter) ([]domain.AuditTrailEvent, error) {
	if err := domain.ValidateKey(filter.TenantID); err != nil {
		return nil, err
	}
	if err := domain.ValidateKey(filter.InvoiceID); err != nil {
		return nil, err
	}
	if filter.Limit <= 0 {
		filter.Limit = 100
	}
	if filter.Limit > 1000 {
		filter.Limit = 1000
	}
	return s.audit.List(ctx, filter)
}

// Import upserts a batch of invoice documents on behalf of a trusted operator.
func (s *InvoiceService) Import(ctx context.Context, tenantID string, docs []json.RawMessage, meta domain.MutationMetadata) (int, error) {
	perms := domain.Permissions{domain.RightInvoiceCreate, domain.RightInvoiceUpdate}
	for i, doc := range docs {
		if _, err := s.Upsert(ctx, tenantID, "", doc, perms, meta); err != nil {
			return i, fmt.Errorf("import document %d: %w", i, err)
		}
	}
	return len(docs), nil
}
