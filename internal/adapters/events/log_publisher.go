package events

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/atvirokodosprendimai/invoices/internal/core/domain"
)

// LogPublisher writes outbox events to the log. Used when no webhook is configured.
type LogPublisher struct {
	log zerolog.Logger
}

func NewLogPublisher(log zerolog.Logger) *LogPublisher {
	return &LogPublisher{log: log}
}

func (p *LogPublisher) Publish(_ context.Context, topic string, event domain.EventEnvelope) error {
	p.log.Info().
		Str("topic", topic).
		Str("event_id", event.EventID).
		Str("event_type", event.EventType).
		Str("tenant_id", event.TenantID).
		Str("invoice_id", event.AggregateID).
		Int64("version", event.AggregateVersion).
		Msg("outbox publish")
	return nil
}
