package domain

import "time"

const MutationKindInvoiceDelete = "invoice.delete"

type MutationStatus string

const (
	MutationReceived MutationStatus = "received"
	MutationSuccess  MutationStatus = "success"
	MutationError    MutationStatus = "error"
)

// Mutation describes one client-initiated change and its outcome.
type Mutation struct {
	ClientMutationID string         `json:"client_mutation_id"`
	TenantID         string         `json:"tenant_id"`
	Actor            string         `json:"actor"`
	Kind             string         `json:"kind"`
	Label            string         `json:"label"`
	Entity           InvoiceRef     `json:"entity"`
	Status           MutationStatus `json:"status"`
	Error            string         `json:"error,omitempty"`
	RequestedAt      time.Time      `json:"requested_at"`
	SettledAt        *time.Time     `json:"settled_at,omitempty"`
}

func (m Mutation) Settled() bool {
	return m.Status == MutationSuccess || m.Status == MutationError
}

// MutationLifecycle is the shared in-flight view of the mutation service.
type MutationLifecycle struct {
	Submitting bool      `json:"submitting"`
	InFlight   int       `json:"in_flight"`
	Last       *Mutation `json:"last,omitempty"`
}

type MutationMetadata struct {
	Actor          string
	Source         string
	RequestID      string
	CorrelationID  string
	CausationID    string
	IdempotencyKey string
	OccurredAt     time.Time
}

func (m MutationMetadata) Normalize() MutationMetadata {
	if m.Actor == "" {
		m.Actor = "api"
	}
	if m.Source == "" {
		m.Source = "api"
	}
	if m.OccurredAt.IsZero() {
		m.OccurredAt = time.Now().UTC()
	}
	return m
}
