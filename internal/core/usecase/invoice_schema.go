package usecase

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	santhosh "github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/atvirokodosprendimai/invoices/internal/core/domain"
)

//go:embed schemas/invoice.json
var invoiceSchemaJSON []byte

// ErrSchemaViolation is returned when an invoice document does not conform to the
// invoice JSON schema. Errors holds one message per failing keyword.
type ErrSchemaViolation struct {
	Errors []string
}

func (e *ErrSchemaViolation) Error() string {
	return fmt.Sprintf("schema validation failed: %s", strings.Join(e.Errors, "; "))
}

// InvoiceDocument is the wire form of an invoice accepted by upserts and imports.
type InvoiceDocument struct {
	ID             string  `json:"id,omitempty"`
	Code           string  `json:"code"`
	SubjectType    string  `json:"subject_type,omitempty"`
	SubjectName    string  `json:"subject_name,omitempty"`
	ThirdpartyType string  `json:"thirdparty_type,omitempty"`
	ThirdpartyName string  `json:"thirdparty_name,omitempty"`
	DateInvoice    string  `json:"date_invoice,omitempty"`
	AmountTotal    float64 `json:"amount_total"`
	Status         int     `json:"status"`
}

// InvoiceSchema validates raw invoice documents before they reach the store.
type InvoiceSchema struct {
	schema *santhosh.Schema
}

func NewInvoiceSchema() (*InvoiceSchema, error) {
	compiled, err := compileSchema(invoiceSchemaJSON)
	if err != nil {
		return nil, fmt.Errorf("compile invoice schema: %w", err)
	}
	return &InvoiceSchema{schema: compiled}, nil
}

// Decode validates data against the schema and converts it into an invoice owned by tenantID.
func (s *InvoiceSchema) Decode(tenantID, id string, data json.RawMessage) (domain.Invoice, error) {
	if err := runValidation(s.schema, data); err != nil {
		return domain.Invoice{}, err
	}

	var doc InvoiceDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return domain.Invoice{}, fmt.Errorf("decode invoice: %w", err)
	}
	if id == "" {
		id = doc.ID
	}

	inv := domain.Invoice{
		TenantID:       tenantID,
		ID:             id,
		Code:           doc.Code,
		SubjectType:    doc.SubjectType,
		SubjectName:    doc.SubjectName,
		ThirdpartyType: doc.ThirdpartyType,
		ThirdpartyName: doc.ThirdpartyName,
		AmountTotal:    doc.AmountTotal,
		Status:         domain.InvoiceStatus(doc.Status),
	}
	if doc.DateInvoice != "" {
		date, err := time.Parse(time.DateOnly, doc.DateInvoice)
		if err != nil {
			return domain.Invoice{}, &ErrSchemaViolation{Errors: []string{"date_invoice: " + err.Error()}}
		}
		inv.DateInvoice = &date
	}
	return inv, nil
}

func compileSchema(schemaJSON []byte) (*santhosh.Schema, error) {
	compiler := santhosh.NewCompiler()
	compiler.Draft = santhosh.Draft7
	if err := compiler.AddResource("invoice.json", bytes.NewReader(schemaJSON)); err != nil {
		return nil, err
	}
	return compiler.Compile("invoice.json")
}

func runValidation(sch *santhosh.Schema, data json.RawMessage) error {
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return &ErrSchemaViolation{Errors: []string{"invalid json: " + err.Error()}}
	}
	if err := sch.Validate(v); err != nil {
		var ve *santhosh.ValidationError
		if errors.As(err, &ve) {
			return &ErrSchemaViolation{Errors: collectValidationErrors(ve)}
		}
		return &ErrSchemaViolation{Errors: []string{err.Error()}}
	}
	return nil
}

func collectValidationErrors(ve *santhosh.ValidationError) []string {
	var msgs []string
	for _, cause := range ve.Causes {
		msgs = append(msgs, collectValidationErrors(cause)...)
	}
	if len(ve.Causes) == 0 {
		msgs = append(msgs, ve.Error())
	}
	return msgs
}
