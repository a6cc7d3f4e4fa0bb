package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/atvirokodosprendimai/invoices/internal/adapters/sqlite/gormsqlite"
	"github.com/atvirokodosprendimai/invoices/internal/core/domain"
	"github.com/atvirokodosprendimai/invoices/migrations"
)

func openTestDB(t *testing.T) (*gormsqlite.DB, *sql.DB) {
	t.Helper()
	ctx := context.Background()

	db, err := gormsqlite.Open(filepath.Join(t.TempDir(), "invoices.sqlite"), zerolog.Nop())
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	wdb, err := db.WriteSQLDB()
	if err != nil {
		t.Fatalf("writer sql db: %v", err)
	}
	if _, err := migrations.Up(ctx, wdb); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db, wdb
}

func seedInvoices(t *testing.T, store *InvoiceStore, invoices ...domain.Invoice) {
	t.Helper()
	for _, inv := range invoices {
		if _, err := store.UpsertWithEvents(context.Background(), inv, domain.MutationMetadata{Actor: "seed"}); err != nil {
			t.Fatalf("seed %s: %v", inv.ID, err)
		}
	}
}

func TestInvoiceStoreOutboxFailureRollsBackUpsertAndDelete(t *testing.T) {
	ctx := context.Background()
	db, wdb := openTestDB(t)
	store := NewInvoiceStore(db)

	meta := domain.MutationMetadata{
		Actor:          "tester",
		Source:         "test",
		RequestID:      "req-1",
		CorrelationID:  "corr-1",
		CausationID:    "cause-1",
		IdempotencyKey: "idem-1",
	}

	failTrigger := `
		CREATE TRIGGER trg_fail_outbox_insert
		BEFORE INSERT ON outbox_events
		BEGIN
			SELECT RAISE(ABORT, 'forced outbox failure');
		END;
	`
	if _, err := wdb.ExecContext(ctx, failTrigger); err != nil {
		t.Fatalf("create failure trigger: %v", err)
	}

	t.Run("upsert rollback", func(t *testing.T) {
		inv := domain.Invoice{TenantID: "t1", ID: "inv-1", Code: "INV-001", AmountTotal: 10}

		_, err := store.UpsertWithEvents(ctx, inv, meta)
		if err == nil {
			t.Fatalf("expected upsert error")
		}
		if !strings.Contains(err.Error(), "forced outbox failure") {
			t.Fatalf("expected forced outbox failure, got: %v", err)
		}

		assertTableCount(t, ctx, wdb, "invoices", 0)
		assertTableCount(t, ctx, wdb, "audit_events", 0)
		assertTableCount(t, ctx, wdb, "outbox_events", 0)
	})

	t.Run("delete rollback", func(t *testing.T) {
		if _, err := wdb.ExecContext(ctx, "DROP TRIGGER IF EXISTS trg_fail_outbox_insert"); err != nil {
			t.Fatalf("drop trigger: %v", err)
		}
		seedInvoices(t, store, domain.Invoice{TenantID: "t1", ID: "inv-2", Code: "INV-002"})
		if _, err := wdb.ExecContext(ctx, failTrigger); err != nil {
			t.Fatalf("recreate failure trigger: %v", err)
		}

		deleted, err := store.DeleteWithEvents(ctx, "t1", "inv-2", meta)
		if err == nil {
			t.Fatalf("expected delete error")
		}
		if deleted {
			t.Fatalf("expected deleted=false on rollback")
		}

		got, err := store.Get(ctx, "t1", "inv-2")
		if err != nil {
			t.Fatalf("get: %v", err)
		}
		if got.IsDeleted {
			t.Fatal("soft delete survived the rollback")
		}
		assertTableCount(t, ctx, wdb, "audit_events", 1)
		assertTableCount(t, ctx, wdb, "outbox_events", 1)
	})
}

func TestInvoiceStoreSoftDeleteWritesHistory(t *testing.T) {
	ctx := context.Background()
	db, wdb := openTestDB(t)
	store := NewInvoiceStore(db)
	seedInvoices(t, store, domain.Invoice{TenantID: "t1", ID: "inv-42", Code: "INV-042", AmountTotal: 120.5})

	deleted, err := store.DeleteWithEvents(ctx, "t1", "inv-42", domain.MutationMetadata{Actor: "alice", IdempotencyKey: "m-1"})
	if err != nil || !deleted {
		t.Fatalf("delete: deleted=%v err=%v", deleted, err)
	}

	again, err := store.DeleteWithEvents(ctx, "t1", "inv-42", domain.MutationMetadata{Actor: "alice"})
	if err != nil || again {
		t.Fatalf("second delete: deleted=%v err=%v", again, err)
	}

	got, err := store.Get(ctx, "t1", "inv-42")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !got.IsDeleted {
		t.Fatal("invoice not marked deleted")
	}

	history, err := NewAuditTrailRepository(db).List(ctx, domain.AuditFilter{TenantID: "t1", InvoiceID: "inv-42", Limit: 10})
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(history) != 2 {
		t.Fatalf("expected 2 audit events, got %d", len(history))
	}
	if history[0].Action != domain.EventInvoiceDeleted || history[0].AggregateVersion != 2 || history[0].IdempotencyKey != "m-1" {
		t.Fatalf("unexpected delete event: %+v", history[0])
	}
	if history[1].Action != domain.EventInvoiceCreated || len(history[1].BeforeJSON) != 0 {
		t.Fatalf("unexpected create event: %+v", history[1])
	}

	var after map[string]any
	if err := json.Unmarshal(history[0].AfterJSON, &after); err != nil {
		t.Fatalf("decode after snapshot: %v", err)
	}
	if after["is_deleted"] != true || after["code"] != "INV-042" {
		t.Fatalf("unexpected after snapshot: %v", after)
	}

	assertTableCount(t, ctx, wdb, "outbox_events", 2)
}

func TestInvoiceStoreRefusesToDeletePaidInvoice(t *testing.T) {
	ctx := context.Background()
	db, wdb := openTestDB(t)
	store := NewInvoiceStore(db)
	seedInvoices(t, store, domain.Invoice{TenantID: "t1", ID: "inv-7", Code: "INV-007", Status: domain.StatusPaid, AmountTotal: 70})

	deleted, err := store.DeleteWithEvents(ctx, "t1", "inv-7", domain.MutationMetadata{Actor: "alice"})
	if !errors.Is(err, domain.ErrInvoicePaid) || deleted {
		t.Fatalf("expected ErrInvoicePaid, got deleted=%v err=%v", deleted, err)
	}

	got, err := store.Get(ctx, "t1", "inv-7")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.IsDeleted {
		t.Fatal("paid invoice marked deleted")
	}
	assertTableCount(t, ctx, wdb, "outbox_events", 1)
}

func TestInvoiceStoreSearch(t *testing.T) {
	ctx := context.Background()
	db, _ := openTestDB(t)
	store := NewInvoiceStore(db)
	seedInvoices(t, store,
		domain.Invoice{TenantID: "t1", ID: "a", Code: "INV-003", AmountTotal: 30, Status: domain.StatusPaid},
		domain.Invoice{TenantID: "t1", ID: "b", Code: "INV-001", AmountTotal: 10, Status: domain.StatusDraft},
		domain.Invoice{TenantID: "t1", ID: "c", Code: "INV-002", AmountTotal: 20, Status: domain.StatusDraft},
		domain.Invoice{TenantID: "t1", ID: "d", Code: "INV-004", AmountTotal: 40, Status: domain.StatusDraft},
		domain.Invoice{TenantID: "t2", ID: "e", Code: "INV-001", AmountTotal: 99},
	)
	if _, err := store.DeleteWithEvents(ctx, "t1", "d", domain.MutationMetadata{}); err != nil {
		t.Fatalf("delete: %v", err)
	}

	query := domain.InvoiceQuery{TenantID: "t1", Page: domain.Page{Number: 1, Size: 10}}.WithDefaultFilters()
	page, err := store.Search(ctx, query)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if page.TotalCount != 3 {
		t.Fatalf("expected 3 live invoices, got %d", page.TotalCount)
	}
	if codes := invoiceCodes(page.Items); codes != "INV-001,INV-002,INV-003" {
		t.Fatalf("unexpected default order: %s", codes)
	}

	query.Sort = domain.Sort{Field: "amountTotal", Desc: true}
	query.Page = domain.Page{Number: 2, Size: 2}
	page, err = store.Search(ctx, query)
	if err != nil {
		t.Fatalf("search page 2: %v", err)
	}
	if codes := invoiceCodes(page.Items); codes != "INV-001" {
		t.Fatalf("unexpected second page: %s", codes)
	}
	if page.PageInfo.HasNextPage || !page.PageInfo.HasPreviousPage {
		t.Fatalf("unexpected page info: %+v", page.PageInfo)
	}

	draft := domain.StatusDraft
	minAmount := 15.0
	query = domain.InvoiceQuery{
		TenantID: "t1",
		Filter:   domain.InvoiceFilter{Status: &draft, AmountMin: &minAmount, Code: "inv-00"},
		Page:     domain.Page{Number: 1, Size: 10},
	}.WithDefaultFilters()
	page, err = store.Search(ctx, query)
	if err != nil {
		t.Fatalf("filtered search: %v", err)
	}
	if codes := invoiceCodes(page.Items); codes != "INV-002" {
		t.Fatalf("unexpected filtered result: %s", codes)
	}
}

func TestJournalRepositoryAppendIsIdempotent(t *testing.T) {
	ctx := context.Background()
	db, _ := openTestDB(t)
	repo := NewJournalRepository(db)

	settled := time.Now().UTC()
	entry := domain.JournalEntry{
		TenantID:         "t1",
		Actor:            "alice",
		ClientMutationID: "m-1",
		Kind:             domain.MutationKindInvoiceDelete,
		Label:            "Delete invoice INV-042",
		EntityID:         "inv-42",
		Status:           domain.MutationSuccess,
		RequestedAt:      settled.Add(-time.Second),
		SettledAt:        &settled,
		JournalizedAt:    settled,
	}
	first, err := repo.Append(ctx, entry)
	if err != nil {
		t.Fatalf("append: %v", err)
	}
	second, err := repo.Append(ctx, entry)
	if err != nil {
		t.Fatalf("second append: %v", err)
	}
	if first.ID == 0 || first.ID != second.ID {
		t.Fatalf("expected the same stored entry, got %d and %d", first.ID, second.ID)
	}

	entry.ClientMutationID = "m-2"
	entry.Status = domain.MutationError
	entry.Error = "invoice is paid"
	if _, err := repo.Append(ctx, entry); err != nil {
		t.Fatalf("append error entry: %v", err)
	}

	all, err := repo.List(ctx, domain.JournalFilter{TenantID: "t1", Limit: 10})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(all) != 2 || all[0].ClientMutationID != "m-2" {
		t.Fatalf("unexpected journal: %+v", all)
	}

	failed, err := repo.List(ctx, domain.JournalFilter{TenantID: "t1", Status: domain.MutationError, Limit: 10})
	if err != nil {
		t.Fatalf("list errors: %v", err)
	}
	if len(failed) != 1 || failed[0].Error != "invoice is paid" {
		t.Fatalf("unexpected failed entries: %+v", failed)
	}
}

func TestOutboxRepositoryLifecycle(t *testing.T) {
	ctx := context.Background()
	db, wdb := openTestDB(t)
	seedInvoices(t, NewInvoiceStore(db),
		domain.Invoice{TenantID: "t1", ID: "inv-1", Code: "INV-001"},
		domain.Invoice{TenantID: "t1", ID: "inv-2", Code: "INV-002"},
	)
	repo := NewOutboxRepository(db)

	pending, err := repo.FetchPending(ctx, 10)
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if len(pending) != 2 {
		t.Fatalf("expected 2 pending events, got %d", len(pending))
	}
	if pending[0].Topic != "events.t1.invoice.created" {
		t.Fatalf("unexpected topic %s", pending[0].Topic)
	}

	if err := repo.MarkDispatched(ctx, pending[0].ID); err != nil {
		t.Fatalf("mark dispatched: %v", err)
	}
	if err := repo.MarkDead(ctx, pending[1].ID, 5, "gone"); err != nil {
		t.Fatalf("mark dead: %v", err)
	}

	pending, err = repo.FetchPending(ctx, 10)
	if err != nil {
		t.Fatalf("refetch: %v", err)
	}
	if len(pending) != 0 {
		t.Fatalf("expected no pending events, got %d", len(pending))
	}

	var dead int
	if err := wdb.QueryRowContext(ctx, "SELECT COUNT(*) FROM outbox_events WHERE status = 'dead'").Scan(&dead); err != nil {
		t.Fatalf("count dead: %v", err)
	}
	if dead != 1 {
		t.Fatalf("expected one dead event, got %d", dead)
	}
}

func TestAPIKeyRepositoryStoresRights(t *testing.T) {
	ctx := context.Background()
	db, _ := openTestDB(t)
	repo := NewAPIKeyRepository(db)

	key := domain.APIKey{
		TokenHash: "hash",
		TenantID:  "t1",
		Name:      "searcher",
		Rights:    domain.Permissions{domain.RightInvoiceSearch, domain.RightInvoiceDelete},
		Active:    true,
		CreatedAt: time.Now().UTC(),
	}
	if err := repo.Upsert(ctx, key); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	got, err := repo.FindByTokenHash(ctx, "hash")
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if !got.Rights.Has(domain.RightInvoiceDelete) || got.Rights.Has(domain.RightInvoiceUpdate) {
		t.Fatalf("unexpected rights: %v", got.Rights)
	}

	if _, err := repo.FindByTokenHash(ctx, "missing"); err != domain.ErrNotFound {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestMigrateIsIdempotent(t *testing.T) {
	ctx := context.Background()

	db, err := sql.Open("sqlite", filepath.Join(t.TempDir(), "migrate.sqlite"))
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	first, err := migrations.Up(ctx, db)
	if err != nil {
		t.Fatalf("first migrate: %v", err)
	}
	second, err := migrations.Up(ctx, db)
	if err != nil {
		t.Fatalf("second migrate: %v", err)
	}
	if first != 1 || second != first {
		t.Fatalf("unexpected schema versions: first=%d second=%d", first, second)
	}
}

func invoiceCodes(items []domain.Invoice) string {
	codes := make([]string, 0, len(items))
	for _, inv := range items {
		codes = append(codes, inv.Code)
	}
	return strings.Join(codes, ",")
}

func assertTableCount(t *testing.T, ctx context.Context, wdb *sql.DB, table string, want int) {
	t.Helper()
	var got int
	row := wdb.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+table)
	if err := row.Scan(&got); err != nil {
		t.Fatalf("count %s: %v", table, err)
	}
	if got != want {
		t.Fatalf("unexpected %s count: got %d want %d", table, got, want)
	}
}
