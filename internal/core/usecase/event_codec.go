package usecase

import (
	"encoding/json"
	"fmt"

	"github.com/atvirokodosprendimai/invoices/internal/core/domain"
)

type Upcaster interface {
	FromVersion() int
	ToVersion() int
	Upcast(payload json.RawMessage) (json.RawMessage, error)
}

// EventCodec walks an envelope's payload through upcasters until it reaches
// domain.CurrentEventSchemaVersion.
type EventCodec struct {
	upcasters map[int]Upcaster
}

func NewEventCodec(upcasters ...Upcaster) *EventCodec {
	m := make(map[int]Upcaster, len(upcasters))
	for _, up := range upcasters {
		m[up.FromVersion()] = up
	}
	return &EventCodec{upcasters: m}
}

// NewInvoiceEventCodec knows every upcaster for invoice event payloads.
func NewInvoiceEventCodec() *EventCodec {
	return NewEventCodec(StatusLabelUpcaster{})
}

func (c *EventCodec) Normalize(envelope domain.EventEnvelope) (domain.EventEnvelope, error) {
	v := envelope.SchemaVersion
	payload := envelope.Payload
	for v < domain.CurrentEventSchemaVersion {
		up, ok := c.upcasters[v]
		if !ok {
			return domain.EventEnvelope{}, fmt.Errorf("missing upcaster from version %d", v)
		}
		next, err := up.Upcast(payload)
		if err != nil {
			return domain.EventEnvelope{}, fmt.Errorf("upcast %d->%d: %w", up.FromVersion(), up.ToVersion(), err)
		}
		payload = next
		v = up.ToVersion()
	}

	envelope.SchemaVersion = v
	envelope.Payload = payload
	return envelope, nil
}

// StatusLabelUpcaster rewrites version 0 payloads, which carried the invoice status
// as a label ("paid"), to the numeric status codes of version 1.
type StatusLabelUpcaster struct{}

func (StatusLabelUpcaster) FromVersion() int { return 0 }
func (StatusLabelUpcaster) ToVersion() int   { return 1 }

func (StatusLabelUpcaster) Upcast(payload json.RawMessage) (json.RawMessage, error) {
	var doc map[string]json.RawMessage
	if err := json.Unmarshal(payload, &doc); err != nil {
		return nil, err
	}
	raw, ok := doc["status"]
	if !ok {
		return payload, nil
	}
	var label string
	if err := json.Unmarshal(raw, &label); err != nil {
		// already numeric
		return payload, nil
	}
	status, ok := domain.ParseInvoiceStatus(label)
	if !ok {
		return nil, fmt.Errorf("unknown invoice status %q", label)
	}
	doc["status"] = json.RawMessage(fmt.Sprintf("%d", int(status)))
	return json.Marshal(doc)
}
