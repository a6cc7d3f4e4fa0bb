package domain

import "time"

type JournalEntry struct {
	ID               int64          `json:"id"`
	TenantID         string         `json:"tenant_id"`
	Actor            string         `json:"actor"`
	ClientMutationID string         `json:"client_mutation_id"`
	Kind             string         `json:"kind"`
	Label            string         `json:"label"`
	EntityID         string         `json:"entity_id"`
	Status           MutationStatus `json:"status"`
	Error            string         `json:"error,omitempty"`
	RequestedAt      time.Time      `json:"requested_at"`
	SettledAt        *time.Time     `json:"settled_at,omitempty"`
	JournalizedAt    time.Time      `json:"journalized_at"`
}

type JournalFilter struct {
	TenantID string
	Status   MutationStatus
	BeforeID int64
	Limit    int
}
