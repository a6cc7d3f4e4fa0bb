package ports

import (
	"context"

	"github.com/atvirokodosprendimai/invoices/internal/core/domain"
)

// Confirmer presents a yes/no dialog. The answer is delivered out of band.
type Confirmer interface {
	RequestConfirmation(ctx context.Context, title, body string)
}

// MutationHandle tracks one submitted mutation. Done is closed exactly once, when the
// mutation settles; Mutation returns the descriptor as of the latest transition.
type MutationHandle interface {
	Done() <-chan struct{}
	Mutation() domain.Mutation
}

// DeleteMutator submits invoice deletions. SubmitDelete must not block on the outcome
// and must not call back into the caller synchronously.
type DeleteMutator interface {
	SubmitDelete(ctx context.Context, ref domain.InvoiceRef, label string) MutationHandle
}

type MutationJournal interface {
	RecordMutationResult(ctx context.Context, m domain.Mutation)
}

type Navigator interface {
	NavigateTo(routeKey string, ids []string, newTab bool) (domain.Navigation, error)
}

type Translator interface {
	Format(key string, values map[string]any) string
}
