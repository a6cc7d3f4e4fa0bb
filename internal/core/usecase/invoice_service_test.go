package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/atvirokodosprendimai/invoices/internal/core/domain"
)

type stubInvoiceStore struct {
	upsertFn func(ctx context.Context, inv domain.Invoice, meta domain.MutationMetadata) (domain.Invoice, error)
	deleteFn func(ctx context.Context, tenantID, id string, meta domain.MutationMetadata) (bool, error)
	getFn    func(ctx context.Context, tenantID, id string) (domain.Invoice, error)
	searchFn func(ctx context.Context, query domain.InvoiceQuery) (domain.InvoicePage, error)
}

func (s *stubInvoiceStore) UpsertWithEvents(ctx context.Context, inv domain.Invoice, meta domain.MutationMetadata) (domain.Invoice, error) {
	if s.upsertFn != nil {
		return s.upsertFn(ctx, inv, meta)
	}
	now := time.Now().UTC()
	inv.CreatedAt = now
	inv.UpdatedAt = now
	return inv, nil
}

func (s *stubInvoiceStore) DeleteWithEvents(ctx context.Context, tenantID, id string, meta domain.MutationMetadata) (bool, error) {
	if s.deleteFn != nil {
		return s.deleteFn(ctx, tenantID, id, meta)
	}
	return true, nil
}

func (s *stubInvoiceStore) Get(ctx context.Context, tenantID, id string) (domain.Invoice, error) {
	if s.getFn != nil {
		return s.getFn(ctx, tenantID, id)
	}
	return domain.Invoice{}, domain.ErrNotFound
}

func (s *stubInvoiceStore) Search(ctx context.Context, query domain.InvoiceQuery) (domain.InvoicePage, error) {
	if s.searchFn != nil {
		return s.searchFn(ctx, query)
	}
	return domain.InvoicePage{}, nil
}

type stubAuditTrailRepo struct {
	listFn func(ctx context.Context, filter domain.AuditFilter) ([]domain.AuditTrailEvent, error)
}

func (s *stubAuditTrailRepo) List(ctx context.Context, filter domain.AuditFilter) ([]domain.AuditTrailEvent, error) {
	if s.listFn != nil {
		return s.listFn(ctx, filter)
	}
	return nil, nil
}

func newTestInvoiceService(t *testing.T, store *stubInvoiceStore) *InvoiceService {
	t.Helper()
	schema, err := NewInvoiceSchema()
	if err != nil {
		t.Fatalf("invoice schema: %v", err)
	}
	return NewInvoiceService(store, &stubAuditTrailRepo{}, schema)
}

func TestInvoiceServiceSearchAppliesDefaults(t *testing.T) {
	var got domain.InvoiceQuery
	svc := newTestInvoiceService(t, &stubInvoiceStore{searchFn: func(_ context.Context, q domain.InvoiceQuery) (domain.InvoicePage, error) {
		got = q
		return domain.InvoicePage{TotalCount: 0}, nil
	}})

	if _, err := svc.Search(context.Background(), domain.InvoiceQuery{TenantID: "tenant-a"}); err != nil {
		t.Fatalf("search: %v", err)
	}
	if got.Page.Size != domain.DefaultPageSize || got.Page.Number != 1 {
		t.Fatalf("unexpected page: %+v", got.Page)
	}
	if got.Filter.IsDeleted == nil || *got.Filter.IsDeleted {
		t.Fatalf("expected isDeleted=false filter, got %v", got.Filter.IsDeleted)
	}
	if got.Sort.Field != "code" || got.Sort.Desc {
		t.Fatalf("unexpected sort: %+v", got.Sort)
	}
}

func TestInvoiceServiceSearchRejectsBadPageSize(t *testing.T) {
	svc := newTestInvoiceService(t, &stubInvoiceStore{})
	_, err := svc.Search(context.Background(), domain.InvoiceQuery{TenantID: "tenant-a", Page: domain.Page{Size: 33}})
	if !errors.Is(err, domain.ErrInvalidPage) {
		t.Fatalf("expected invalid page, got %v", err)
	}
}

func TestInvoiceServiceUpsertRequiresCreateRight(t *testing.T) {
	svc := newTestInvoiceService(t, &stubInvoiceStore{})
	_, err := svc.Upsert(context.Background(), "tenant-a", "inv-1",
		json.RawMessage(`{"code":"INV-001","status":0,"amount_total":10}`),
		domain.Permissions{domain.RightInvoiceUpdate}, domain.MutationMetadata{})
	if !errors.Is(err, domain.ErrForbidden) {
		t.Fatalf("expected forbidden, got %v", err)
	}
}

func TestInvoiceServiceUpsertUpdateRequiresUpdateRight(t *testing.T) {
	svc := newTestInvoiceService(t, &stubInvoiceStore{getFn: func(_ context.Context, tenantID, id string) (domain.Invoice, error) {
		return domain.Invoice{TenantID: tenantID, ID: id, Code: "INV-001"}, nil
	}})
	_, err := svc.Upsert(context.Background(), "tenant-a", "inv-1",
		json.RawMessage(`{"code":"INV-001","status":1,"amount_total":10}`),
		domain.Permissions{domain.RightInvoiceCreate}, domain.MutationMetadata{})
	if !errors.Is(err, domain.ErrForbidden) {
		t.Fatalf("expected forbidden, got %v", err)
	}
}

func TestInvoiceServiceUpsertStoresDecodedInvoice(t *testing.T) {
	var stored domain.Invoice
	svc := newTestInvoiceService(t, &stubInvoiceStore{upsertFn: func(_ context.Context, inv domain.Invoice, _ domain.MutationMetadata) (domain.Invoice, error) {
		stored = inv
		return inv, nil
	}})

	_, err := svc.Upsert(context.Background(), "tenant-a", "inv-1",
		json.RawMessage(`{"code":"INV-042","status":1,"amount_total":120.5,"date_invoice":"2024-03-01","subject_type":"policyholder","subject_name":"ACME"}`),
		domain.Permissions{domain.RightInvoiceCreate}, domain.MutationMetadata{})
	if err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if stored.Code != "INV-042" || stored.Status != domain.StatusValidated || stored.AmountTotal != 120.5 {
		t.Fatalf("unexpected stored invoice: %+v", stored)
	}
	if stored.DateInvoice == nil || stored.DateInvoice.Format(time.DateOnly) != "2024-03-01" {
		t.Fatalf("unexpected date: %v", stored.DateInvoice)
	}
}

func TestInvoiceServiceUpsertSchemaViolation(t *testing.T) {
	svc := newTestInvoiceService(t, &stubInvoiceStore{})
	_, err := svc.Upsert(context.Background(), "tenant-a", "inv-1",
		json.RawMessage(`{"code":"","status":9}`),
		domain.Permissions{domain.RightInvoiceCreate}, domain.MutationMetadata{})
	var violation *ErrSchemaViolation
	if !errors.As(err, &violation) {
		t.Fatalf("expected schema violation, got %v", err)
	}
	if len(violation.Errors) == 0 {
		t.Fatal("expected violation details")
	}
}

func TestInvoiceServiceDeletePaidInvoice(t *testing.T) {
	deleteCalled := false
	svc := newTestInvoiceService(t, &stubInvoiceStore{
		getFn: func(_ context.Context, tenantID, id string) (domain.Invoice, error) {
			return domain.Invoice{TenantID: tenantID, ID: id, Code: "INV-007", Status: domain.StatusPaid}, nil
		},
		deleteFn: func(context.Context, string, string, domain.MutationMetadata) (bool, error) {
			deleteCalled = true
			return true, nil
		},
	})

	err := svc.Delete(context.Background(), "tenant-a", "inv-7", domain.MutationMetadata{})
	if !errors.Is(err, domain.ErrInvoicePaid) {
		t.Fatalf("expected paid error, got %v", err)
	}
	if deleteCalled {
		t.Fatal("store delete must not run for a paid invoice")
	}
}

func TestInvoiceServiceDeleteMissingInvoice(t *testing.T) {
	svc := newTestInvoiceService(t, &stubInvoiceStore{})
	err := svc.Delete(context.Background(), "tenant-a", "missing", domain.MutationMetadata{})
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestInvoiceServiceDeletePassesMetadata(t *testing.T) {
	var gotMeta domain.MutationMetadata
	svc := newTestInvoiceService(t, &stubInvoiceStore{
		getFn: func(_ context.Context, tenantID, id string) (domain.Invoice, error) {
			return domain.Invoice{TenantID: tenantID, ID: id, Code: "INV-001", Status: domain.StatusDraft}, nil
		},
		deleteFn: func(_ context.Context, _, _ string, meta domain.MutationMetadata) (bool, error) {
			gotMeta = meta
			return true, nil
		},
	})

	if err := svc.Delete(context.Background(), "tenant-a", "inv-1", domain.MutationMetadata{Actor: "alice", IdempotencyKey: "m-1"}); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if gotMeta.Actor != "alice" || gotMeta.IdempotencyKey != "m-1" {
		t.Fatalf("unexpected metadata: %+v", gotMeta)
	}
}

func TestInvoiceServiceImportStopsAtFirstInvalidDocument(t *testing.T) {
	stored := 0
	svc := newTestInvoiceService(t, &stubInvoiceStore{upsertFn: func(_ context.Context, inv domain.Invoice, _ domain.MutationMetadata) (domain.Invoice, error) {
		stored++
		return inv, nil
	}})

	docs := []json.RawMessage{
		json.RawMessage(`{"id":"inv-1","code":"INV-001","status":0}`),
		json.RawMessage(`{"id":"inv-2","code":"INV-002","status":"paid"}`),
	}
	n, err := svc.Import(context.Background(), "tenant-a", docs, domain.MutationMetadata{Actor: "import"})
	if err == nil {
		t.Fatal("expected import error")
	}
	if n != 1 || stored != 1 {
		t.Fatalf("expected one stored document, got n=%d stored=%d", n, stored)
	}
}
