package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/atvirokodosprendimai/invoices/internal/core/domain"
)

type deleterFunc func(ctx context.Context, tenantID, id string, meta domain.MutationMetadata) error

func (f deleterFunc) Delete(ctx context.Context, tenantID, id string, meta domain.MutationMetadata) error {
	return f(ctx, tenantID, id, meta)
}

func waitDone(t *testing.T, ch <-chan struct{}) {
	t.Helper()
	select {
	case <-ch:
	case <-time.After(2 * time.Second):
		t.Fatal("mutation did not settle")
	}
}

func TestMutationServiceSubmitDeleteSettlesSuccess(t *testing.T) {
	release := make(chan struct{})
	var gotMeta domain.MutationMetadata
	svc := NewMutationService(deleterFunc(func(_ context.Context, tenantID, id string, meta domain.MutationMetadata) error {
		<-release
		if tenantID != "tenant-a" || id != "inv-42" {
			t.Errorf("unexpected delete target %s/%s", tenantID, id)
		}
		gotMeta = meta
		return nil
	}), zerolog.Nop(), nil, time.Second)

	h := svc.For("tenant-a", "alice").SubmitDelete(context.Background(), domain.InvoiceRef{ID: "inv-42", Code: "INV-042"}, "Delete INV-042")

	lc := svc.Lifecycle()
	if !lc.Submitting || lc.InFlight != 1 {
		t.Fatalf("expected submitting lifecycle, got %+v", lc)
	}
	if lc.Last == nil || lc.Last.Status != domain.MutationReceived {
		t.Fatalf("expected received descriptor, got %+v", lc.Last)
	}

	close(release)
	waitDone(t, h.Done())
	svc.Wait()

	m := h.Mutation()
	if m.Status != domain.MutationSuccess || m.SettledAt == nil {
		t.Fatalf("unexpected settled mutation: %+v", m)
	}
	if m.Label != "Delete INV-042" || m.Actor != "alice" || m.Kind != domain.MutationKindInvoiceDelete {
		t.Fatalf("unexpected descriptor: %+v", m)
	}
	if gotMeta.IdempotencyKey != m.ClientMutationID || gotMeta.Actor != "alice" {
		t.Fatalf("unexpected metadata: %+v", gotMeta)
	}

	lc = svc.Lifecycle()
	if lc.Submitting || lc.InFlight != 0 {
		t.Fatalf("expected idle lifecycle, got %+v", lc)
	}
	if lc.Last == nil || lc.Last.ClientMutationID != m.ClientMutationID || lc.Last.Status != domain.MutationSuccess {
		t.Fatalf("unexpected last mutation: %+v", lc.Last)
	}
}

func TestMutationServiceSubmitDeleteSettlesError(t *testing.T) {
	svc := NewMutationService(deleterFunc(func(context.Context, string, string, domain.MutationMetadata) error {
		return domain.ErrInvoicePaid
	}), zerolog.Nop(), nil, time.Second)

	h := svc.For("tenant-a", "alice").SubmitDelete(context.Background(), domain.InvoiceRef{ID: "inv-1", Code: "INV-001"}, "Delete INV-001")
	waitDone(t, h.Done())

	m := h.Mutation()
	if m.Status != domain.MutationError || m.Error == "" {
		t.Fatalf("expected error mutation, got %+v", m)
	}
}

func TestMutationServiceIgnoresCallerCancellation(t *testing.T) {
	var sawCancel bool
	svc := NewMutationService(deleterFunc(func(ctx context.Context, _, _ string, _ domain.MutationMetadata) error {
		sawCancel = errors.Is(ctx.Err(), context.Canceled)
		return nil
	}), zerolog.Nop(), nil, time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	h := svc.For("tenant-a", "alice").SubmitDelete(ctx, domain.InvoiceRef{ID: "inv-1"}, "label")
	waitDone(t, h.Done())

	if sawCancel {
		t.Fatal("mutation context inherited the caller's cancellation")
	}
	if h.Mutation().Status != domain.MutationSuccess {
		t.Fatalf("unexpected status %s", h.Mutation().Status)
	}
}

func TestPendingMutationSettlesOnce(t *testing.T) {
	p := &PendingMutation{done: make(chan struct{}), m: domain.Mutation{Status: domain.MutationReceived}}
	first := p.settle(nil)
	second := p.settle(errors.New("late"))

	if first.Status != domain.MutationSuccess {
		t.Fatalf("unexpected first status %s", first.Status)
	}
	if second.Status != domain.MutationSuccess || second.Error != "" {
		t.Fatalf("second settle changed the descriptor: %+v", second)
	}
	waitDone(t, p.Done())
}
