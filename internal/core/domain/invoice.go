package domain

import (
	"fmt"
	"strings"
	"time"
)

// InvoiceStatus mirrors the numeric status codes used by the invoice backend.
type InvoiceStatus int

const (
	StatusDraft InvoiceStatus = iota
	StatusValidated
	StatusPaid
	StatusCancelled
	StatusDeleted
	StatusSuspended
)

var invoiceStatusNames = map[InvoiceStatus]string{
	StatusDraft:     "draft",
	StatusValidated: "validated",
	StatusPaid:      "paid",
	StatusCancelled: "cancelled",
	StatusDeleted:   "deleted",
	StatusSuspended: "suspended",
}

// InvoiceStatuses lists every status in picker order.
func InvoiceStatuses() []InvoiceStatus {
	return []InvoiceStatus{StatusDraft, StatusValidated, StatusPaid, StatusCancelled, StatusDeleted, StatusSuspended}
}

func (s InvoiceStatus) Valid() bool {
	_, ok := invoiceStatusNames[s]
	return ok
}

func (s InvoiceStatus) String() string {
	if name, ok := invoiceStatusNames[s]; ok {
		return name
	}
	return fmt.Sprintf("status(%d)", int(s))
}

// ParseInvoiceStatus resolves a status name such as "paid".
func ParseInvoiceStatus(name string) (InvoiceStatus, bool) {
	name = strings.ToLower(strings.TrimSpace(name))
	for s, n := range invoiceStatusNames {
		if n == name {
			return s, true
		}
	}
	return 0, false
}

// Terminal reports whether an invoice in this status can no longer be deleted.
func (s InvoiceStatus) Terminal() bool {
	return s == StatusPaid
}

type Invoice struct {
	TenantID       string
	ID             string
	Code           string
	SubjectType    string
	SubjectName    string
	ThirdpartyType string
	ThirdpartyName string
	DateInvoice    *time.Time
	AmountTotal    float64
	Status         InvoiceStatus
	IsDeleted      bool
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Ref is the minimal reference used for confirmation messages and mutations.
func (i Invoice) Ref() InvoiceRef {
	return InvoiceRef{ID: i.ID, Code: i.Code}
}

func (i Invoice) Validate() error {
	if err := ValidateKey(i.TenantID); err != nil {
		return err
	}
	if err := ValidateKey(i.ID); err != nil {
		return err
	}
	if strings.TrimSpace(i.Code) == "" {
		return fmt.Errorf("%w: code is required", ErrInvalidInvoice)
	}
	if !i.Status.Valid() {
		return fmt.Errorf("%w: unknown status %d", ErrInvalidInvoice, int(i.Status))
	}
	if i.AmountTotal < 0 {
		return fmt.Errorf("%w: amount_total must not be negative", ErrInvalidInvoice)
	}
	return nil
}

// InvoiceRef identifies an invoice and carries its display code.
type InvoiceRef struct {
	ID   string `json:"id"`
	Code string `json:"code"`
}
