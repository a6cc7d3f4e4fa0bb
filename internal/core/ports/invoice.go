package ports

import (
	"context"

	"github.com/atvirokodosprendimai/invoices/internal/core/domain"
)

// InvoiceStore persists invoices; mutations write audit and outbox rows in the same transaction.
type InvoiceStore interface {
	UpsertWithEvents(ctx context.Context, inv domain.Invoice, meta domain.MutationMetadata) (domain.Invoice, error)
	DeleteWithEvents(ctx context.Context, tenantID, id string, meta domain.MutationMetadata) (bool, error)
	Get(ctx context.Context, tenantID, id string) (domain.Invoice, error)
	Search(ctx context.Context, query domain.InvoiceQuery) (domain.InvoicePage, error)
}

type AuditTrailRepository interface {
	List(ctx context.Context, filter domain.AuditFilter) ([]domain.AuditTrailEvent, error)
}

type OutboxRepository interface {
	FetchPending(ctx context.Context, limit int) ([]domain.OutboxEvent, error)
	MarkDispatched(ctx context.Context, id int64) error
	MarkFailed(ctx context.Context, id int64, attempts int, nextAttemptAt string, errMsg string) error
	MarkDead(ctx context.Context, id int64, attempts int, errMsg string) error
}

type JournalRepository interface {
	Append(ctx context.Context, entry domain.JournalEntry) (domain.JournalEntry, error)
	List(ctx context.Context, filter domain.JournalFilter) ([]domain.JournalEntry, error)
}
