package domain

import (
	"slices"
	"strings"
	"time"
)

const (
	DefaultPageSize = 10
	DefaultOrderBy  = "code"
)

// RowsPerPageOptions are the page sizes a searcher may request.
var RowsPerPageOptions = []int{10, 20, 50, 100}

// SortableFields are the invoice columns a searcher can order by.
var SortableFields = []string{"subjectType", "thirdpartyType", "code", "dateInvoice", "amountTotal", "status"}

type InvoiceFilter struct {
	Code           string
	Status         *InvoiceStatus
	SubjectType    string
	ThirdpartyType string
	DateFrom       *time.Time
	DateTo         *time.Time
	AmountMin      *float64
	AmountMax      *float64
	IsDeleted      *bool
}

func (f InvoiceFilter) Validate() error {
	if f.Status != nil && !f.Status.Valid() {
		return ErrInvalidFilter
	}
	if f.DateFrom != nil && f.DateTo != nil && f.DateTo.Before(*f.DateFrom) {
		return ErrInvalidFilter
	}
	if f.AmountMin != nil && f.AmountMax != nil && *f.AmountMax < *f.AmountMin {
		return ErrInvalidFilter
	}
	return nil
}

// Sort orders by Field; a leading "-" in ParseSort selects descending order.
type Sort struct {
	Field string
	Desc  bool
}

func ParseSort(raw string) (Sort, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Sort{Field: DefaultOrderBy}, nil
	}
	s := Sort{Field: raw}
	if strings.HasPrefix(raw, "-") {
		s = Sort{Field: raw[1:], Desc: true}
	}
	if !slices.Contains(SortableFields, s.Field) {
		return Sort{}, ErrInvalidSort
	}
	return s, nil
}

func (s Sort) String() string {
	if s.Desc {
		return "-" + s.Field
	}
	return s.Field
}

type Page struct {
	Number int
	Size   int
}

func (p Page) Normalize() (Page, error) {
	if p.Number <= 0 {
		p.Number = 1
	}
	if p.Size == 0 {
		p.Size = DefaultPageSize
	}
	if !slices.Contains(RowsPerPageOptions, p.Size) {
		return Page{}, ErrInvalidPage
	}
	return p, nil
}

func (p Page) Offset() int {
	return (p.Number - 1) * p.Size
}

type InvoiceQuery struct {
	TenantID string
	Filter   InvoiceFilter
	Sort     Sort
	Page     Page
}

// WithDefaultFilters applies the searcher's default filter set: deleted invoices are hidden
// unless the caller asked for them explicitly.
func (q InvoiceQuery) WithDefaultFilters() InvoiceQuery {
	if q.Filter.IsDeleted == nil {
		notDeleted := false
		q.Filter.IsDeleted = &notDeleted
	}
	if q.Sort.Field == "" {
		q.Sort = Sort{Field: DefaultOrderBy}
	}
	return q
}

type PageInfo struct {
	Page            int  `json:"page"`
	PageSize        int  `json:"page_size"`
	HasNextPage     bool `json:"has_next_page"`
	HasPreviousPage bool `json:"has_previous_page"`
}

type InvoicePage struct {
	Items      []Invoice
	PageInfo   PageInfo
	TotalCount int64
}

func NewPageInfo(p Page, total int64) PageInfo {
	return PageInfo{
		Page:            p.Number,
		PageSize:        p.Size,
		HasNextPage:     int64(p.Offset()+p.Size) < total,
		HasPreviousPage: p.Number > 1,
	}
}
