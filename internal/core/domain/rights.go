package domain

import (
	"slices"
	"strconv"
	"strings"
)

type Right int

const (
	RightInvoiceSearch Right = 155101
	RightInvoiceCreate Right = 155102
	RightInvoiceUpdate Right = 155103
	RightInvoiceDelete Right = 155104
	RightInvoiceAmend  Right = 155109
)

// InvoiceRights are the rights an API key must hold at least one of to use the service.
var InvoiceRights = []Right{RightInvoiceSearch, RightInvoiceCreate, RightInvoiceUpdate, RightInvoiceDelete, RightInvoiceAmend}

// Permissions is the set of rights held by the caller.
type Permissions []Right

func (p Permissions) Has(r Right) bool {
	return slices.Contains(p, r)
}

func (p Permissions) HasAny(rights ...Right) bool {
	for _, r := range rights {
		if p.Has(r) {
			return true
		}
	}
	return false
}

// ParsePermissions reads a comma separated list of numeric rights.
func ParsePermissions(raw string) (Permissions, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	parts := strings.Split(raw, ",")
	out := make(Permissions, 0, len(parts))
	for _, part := range parts {
		n, err := strconv.Atoi(strings.TrimSpace(part))
		if err != nil {
			return nil, err
		}
		if !out.Has(Right(n)) {
			out = append(out, Right(n))
		}
	}
	return out, nil
}

func (p Permissions) String() string {
	parts := make([]string, 0, len(p))
	for _, r := range p {
		parts = append(parts, strconv.Itoa(int(r)))
	}
	return strings.Join(parts, ",")
}
