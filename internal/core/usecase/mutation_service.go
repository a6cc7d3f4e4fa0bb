package usecase

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/atvirokodosprendimai/invoices/internal/core/domain"
	"github.com/atvirokodosprendimai/invoices/internal/core/ports"
	"github.com/atvirokodosprendimai/invoices/internal/metrics"
)

const defaultMutationTimeout = 30 * time.Second

type InvoiceDeleter interface {
	Delete(ctx context.Context, tenantID, id string, meta domain.MutationMetadata) error
}

// MutationService runs client mutations in the background and exposes the shared
// submitting flag. Every submission settles exactly once.
type MutationService struct {
	deleter InvoiceDeleter
	log     zerolog.Logger
	metrics *metrics.Metrics
	timeout time.Duration

	mu       sync.Mutex
	inFlight int
	last     *domain.Mutation
	wg       sync.WaitGroup
}

func NewMutationService(deleter InvoiceDeleter, log zerolog.Logger, m *metrics.Metrics, timeout time.Duration) *MutationService {
	if timeout <= 0 {
		timeout = defaultMutationTimeout
	}
	return &MutationService{deleter: deleter, log: log, metrics: m, timeout: timeout}
}

// For scopes submissions to a tenant and actor.
func (s *MutationService) For(tenantID, actor string) ports.DeleteMutator {
	return scopedMutator{svc: s, tenantID: tenantID, actor: actor}
}

func (s *MutationService) Lifecycle() domain.MutationLifecycle {
	s.mu.Lock()
	defer s.mu.Unlock()
	lc := domain.MutationLifecycle{Submitting: s.inFlight > 0, InFlight: s.inFlight}
	if s.last != nil {
		last := *s.last
		lc.Last = &last
	}
	return lc
}

// Wait blocks until every submitted mutation has settled.
func (s *MutationService) Wait() {
	s.wg.Wait()
}

func (s *MutationService) Close() error {
	s.Wait()
	return nil
}

func (s *MutationService) submitDelete(ctx context.Context, tenantID, actor string, ref domain.InvoiceRef, label string) *PendingMutation {
	p := &PendingMutation{
		done: make(chan struct{}),
		m: domain.Mutation{
			ClientMutationID: uuid.NewString(),
			TenantID:         tenantID,
			Actor:            actor,
			Kind:             domain.MutationKindInvoiceDelete,
			Label:            label,
			Entity:           ref,
			Status:           domain.MutationReceived,
			RequestedAt:      time.Now().UTC(),
		},
	}

	s.mu.Lock()
	s.inFlight++
	received := p.m
	s.last = &received
	s.wg.Add(1)
	s.mu.Unlock()
	s.metrics.MutationSubmitted(p.m.Kind)

	s.log.Debug().
		Str("client_mutation_id", p.m.ClientMutationID).
		Str("invoice_id", ref.ID).
		Str("label", label).
		Msg("mutation submitted")

	runCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.timeout)
	go func() {
		defer s.wg.Done()
		defer cancel()
		err := s.deleter.Delete(runCtx, tenantID, ref.ID, domain.MutationMetadata{
			Actor:          actor,
			Source:         "searcher",
			IdempotencyKey: p.m.ClientMutationID,
			CorrelationID:  p.m.ClientMutationID,
		})
		s.settle(p, err)
	}()

	return p
}

func (s *MutationService) settle(p *PendingMutation, err error) {
	settled := p.settle(err)

	s.mu.Lock()
	s.inFlight--
	s.last = &settled
	s.mu.Unlock()
	s.metrics.MutationSettled(settled.Kind, string(settled.Status))

	ev := s.log.Info()
	if err != nil {
		ev = s.log.Warn().Err(err)
	}
	ev.Str("client_mutation_id", settled.ClientMutationID).
		Str("invoice_id", settled.Entity.ID).
		Str("status", string(settled.Status)).
		Msg("mutation settled")
}

type scopedMutator struct {
	svc      *MutationService
	tenantID string
	actor    string
}

func (m scopedMutator) SubmitDelete(ctx context.Context, ref domain.InvoiceRef, label string) ports.MutationHandle {
	return m.svc.submitDelete(ctx, m.tenantID, m.actor, ref, label)
}

// PendingMutation is the completion signal for one submitted mutation.
type PendingMutation struct {
	done chan struct{}
	once sync.Once

	mu sync.Mutex
	m  domain.Mutation
}

func (p *PendingMutation) Done() <-chan struct{} {
	return p.done
}

func (p *PendingMutation) Mutation() domain.Mutation {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.m
}

func (p *PendingMutation) settle(err error) domain.Mutation {
	p.mu.Lock()
	if p.m.SettledAt != nil {
		settled := p.m
		p.mu.Unlock()
		return settled
	}
	now := time.Now().UTC()
	p.m.SettledAt = &now
	p.m.Status = domain.MutationSuccess
	if err != nil {
		p.m.Status = domain.MutationError
		p.m.Error = err.Error()
	}
	settled := p.m
	p.mu.Unlock()

	p.once.Do(func() { close(p.done) })
	return settled
}
