package usecase

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/atvirokodosprendimai/invoices/internal/core/domain"
	"github.com/atvirokodosprendimai/invoices/internal/core/ports"
	"github.com/atvirokodosprendimai/invoices/internal/metrics"
)

// JournalService records mutation outcomes for user-visible feedback.
type JournalService struct {
	repo    ports.JournalRepository
	log     zerolog.Logger
	metrics *metrics.Metrics
}

func NewJournalService(repo ports.JournalRepository, log zerolog.Logger, m *metrics.Metrics) *JournalService {
	return &JournalService{repo: repo, log: log, metrics: m}
}

// RecordMutationResult appends one journal entry. Failures are logged, never returned:
// the caller has nothing to recover.
func (s *JournalService) RecordMutationResult(ctx context.Context, m domain.Mutation) {
	entry := domain.JournalEntry{
		TenantID:         m.TenantID,
		Actor:            m.Actor,
		ClientMutationID: m.ClientMutationID,
		Kind:             m.Kind,
		Label:            m.Label,
		EntityID:         m.Entity.ID,
		Status:           m.Status,
		Error:            m.Error,
		RequestedAt:      m.RequestedAt,
		SettledAt:        m.SettledAt,
		JournalizedAt:    time.Now().UTC(),
	}

	saved, err := s.repo.Append(ctx, entry)
	if err != nil {
		s.log.Error().Err(err).Str("client_mutation_id", m.ClientMutationID).Msg("append journal entry")
		return
	}
	s.metrics.JournalEntry(string(m.Status))

	ev := s.log.Info()
	if m.Status == domain.MutationError {
		ev = s.log.Warn().Str("error", m.Error)
	}
	ev.Int64("journal_id", saved.ID).
		Str("tenant_id", m.TenantID).
		Str("client_mutation_id", m.ClientMutationID).
		Str("label", m.Label).
		Str("status", string(m.Status)).
		Msg("mutation journalized")
}

func (s *JournalService) List(ctx context.Context, filter domain.JournalFilter) ([]domain.JournalEntry, error) {
	if err := domain.ValidateKey(filter.TenantID); err != nil {
		return nil, err
	}
	switch filter.Status {
	case "", domain.MutationReceived, domain.MutationSuccess, domain.MutationError:
	default:
		return nil, domain.ErrInvalidFilter
	}
	if filter.Limit <= 0 {
		filter.Limit = 100
	}
	if filter.Limit > 1000 {
		filter.Limit = 1000
	}
	return s.repo.List(ctx, filter)
}
