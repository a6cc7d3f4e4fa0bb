package httpapi

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/atvirokodosprendimai/invoices/internal/core/domain"
)

type invoiceResponse struct {
	ID             string  `json:"id"`
	Code           string  `json:"code"`
	SubjectType    string  `json:"subject_type,omitempty"`
	SubjectName    string  `json:"subject_name,omitempty"`
	ThirdpartyType string  `json:"thirdparty_type,omitempty"`
	ThirdpartyName string  `json:"thirdparty_name,omitempty"`
	DateInvoice    string  `json:"date_invoice,omitempty"`
	AmountTotal    float64 `json:"amount_total"`
	Status         int     `json:"status"`
	IsDeleted      bool    `json:"is_deleted"`
	CreatedAt      string  `json:"created_at"`
	UpdatedAt      string  `json:"updated_at"`
}

func toInvoiceResponse(inv domain.Invoice) invoiceResponse {
	resp := invoiceResponse{
		ID:             inv.ID,
		Code:           inv.Code,
		SubjectType:    inv.SubjectType,
		SubjectName:    inv.SubjectName,
		ThirdpartyType: inv.ThirdpartyType,
		ThirdpartyName: inv.ThirdpartyName,
		AmountTotal:    inv.AmountTotal,
		Status:         int(inv.Status),
		IsDeleted:      inv.IsDeleted,
		CreatedAt:      inv.CreatedAt.UTC().Format(timeFormat),
		UpdatedAt:      inv.UpdatedAt.UTC().Format(timeFormat),
	}
	if inv.DateInvoice != nil {
		resp.DateInvoice = inv.DateInvoice.Format(time.DateOnly)
	}
	return resp
}

type searchParams struct {
	Page           int      `validate:"gte=0"`
	PageSize       int      `validate:"omitempty,oneof=10 20 50 100"`
	OrderBy        string   `validate:"omitempty,max=32"`
	Code           string   `validate:"max=64"`
	Status         *int     `validate:"omitempty,gte=0,lte=5"`
	SubjectType    string   `validate:"max=64"`
	ThirdpartyType string   `validate:"max=64"`
	DateFrom       string   `validate:"omitempty,datetime=2006-01-02"`
	DateTo         string   `validate:"omitempty,datetime=2006-01-02"`
	AmountMin      *float64 `validate:"omitempty,gte=0"`
	AmountMax      *float64 `validate:"omitempty,gte=0"`
	IsDeleted      *bool
}

// parseSearchQuery reads searcher query parameters into an invoice query for tenantID.
func (h *Handler) parseSearchQuery(w http.ResponseWriter, r *http.Request, tenantID string) (domain.InvoiceQuery, bool) {
	q := r.URL.Query()
	var p searchParams
	var ok bool
	if p.Page, ok = h.parseInt(w, q.Get("page"), "page"); !ok {
		return domain.InvoiceQuery{}, false
	}
	if p.PageSize, ok = h.parseInt(w, q.Get("pageSize"), "pageSize"); !ok {
		return domain.InvoiceQuery{}, false
	}
	p.OrderBy = q.Get("orderBy")
	p.Code = q.Get("code")
	p.SubjectType = q.Get("subjectType")
	p.ThirdpartyType = q.Get("thirdpartyType")
	p.DateFrom = q.Get("dateFrom")
	p.DateTo = q.Get("dateTo")
	if raw := q.Get("status"); raw != "" {
		n, ok := h.parseInt(w, raw, "status")
		if !ok {
			return domain.InvoiceQuery{}, false
		}
		p.Status = &n
	}
	for name, dst := range map[string]**float64{"amountMin": &p.AmountMin, "amountMax": &p.AmountMax} {
		raw := q.Get(name)
		if raw == "" {
			continue
		}
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			h.writeError(w, http.StatusBadRequest, name+" must be a number")
			return domain.InvoiceQuery{}, false
		}
		*dst = &v
	}
	if raw := q.Get("isDeleted"); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			h.writeError(w, http.StatusBadRequest, "isDeleted must be a boolean")
			return domain.InvoiceQuery{}, false
		}
		p.IsDeleted = &v
	}
	if !h.validStruct(w, p) {
		return domain.InvoiceQuery{}, false
	}

	sort, err := domain.ParseSort(p.OrderBy)
	if err != nil {
		h.handleDomainError(w, err)
		return domain.InvoiceQuery{}, false
	}

	query := domain.InvoiceQuery{
		TenantID: tenantID,
		Filter: domain.InvoiceFilter{
			Code:           p.Code,
			SubjectType:    p.SubjectType,
			ThirdpartyType: p.ThirdpartyType,
			AmountMin:      p.AmountMin,
			AmountMax:      p.AmountMax,
			IsDeleted:      p.IsDeleted,
		},
		Sort: sort,
		Page: domain.Page{Number: p.Page, Size: p.PageSize},
	}
	if p.Status != nil {
		status := domain.InvoiceStatus(*p.Status)
		query.Filter.Status = &status
	}
	if p.DateFrom != "" {
		from, _ := time.Parse(time.DateOnly, p.DateFrom)
		query.Filter.DateFrom = &from
	}
	if p.DateTo != "" {
		to, _ := time.Parse(time.DateOnly, p.DateTo)
		query.Filter.DateTo = &to
	}
	return query, true
}

func (h *Handler) requireRight(w http.ResponseWriter, r *http.Request, right domain.Right) (domain.Principal, bool) {
	key := principalFromContext(r.Context())
	if !key.Rights.Has(right) {
		h.handleDomainError(w, domain.ErrForbidden)
		return key, false
	}
	return key, true
}

func (h *Handler) searchInvoices(w http.ResponseWriter, r *http.Request) {
	key, ok := h.requireRight(w, r, domain.RightInvoiceSearch)
	if !ok {
		return
	}
	query, ok := h.parseSearchQuery(w, r, key.TenantID)
	if !ok {
		return
	}

	page, err := h.invoices.Search(r.Context(), query)
	if err != nil {
		h.handleDomainError(w, err)
		return
	}

	items := make([]invoiceResponse, 0, len(page.Items))
	for _, inv := range page.Items {
		items = append(items, toInvoiceResponse(inv))
	}
	h.writeJSON(w, http.StatusOK, map[string]any{
		"items":       items,
		"page_info":   page.PageInfo,
		"total_count": page.TotalCount,
	})
}

func (h *Handler) getInvoice(w http.ResponseWriter, r *http.Request) {
	key, ok := h.requireRight(w, r, domain.RightInvoiceSearch)
	if !ok {
		return
	}

	inv, err := h.invoices.Get(r.Context(), key.TenantID, chi.URLParam(r, "id"))
	if err != nil {
		h.handleDomainError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, toInvoiceResponse(inv))
}

func (h *Handler) upsertInvoice(w http.ResponseWriter, r *http.Request) {
	key := principalFromContext(r.Context())

	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBodySize)
	decoder := json.NewDecoder(r.Body)
	var data json.RawMessage
	if err := decoder.Decode(&data); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid json body")
		return
	}
	if err := ensureEOF(decoder); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid json body")
		return
	}

	inv, err := h.invoices.Upsert(r.Context(), key.TenantID, chi.URLParam(r, "id"), data, key.Rights, mutationMeta(r))
	if err != nil {
		h.handleDomainError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, toInvoiceResponse(inv))
}

func (h *Handler) invoiceHistory(w http.ResponseWriter, r *http.Request) {
	key, ok := h.requireRight(w, r, domain.RightInvoiceSearch)
	if !ok {
		return
	}
	q := r.URL.Query()
	limit, ok := h.parseInt(w, q.Get("limit"), "limit")
	if !ok {
		return
	}
	before, ok := h.parseInt64(w, q.Get("before"), "before")
	if !ok {
		return
	}

	events, err := h.invoices.History(r.Context(), domain.AuditFilter{
		TenantID:  key.TenantID,
		InvoiceID: chi.URLParam(r, "id"),
		Action:    q.Get("action"),
		BeforeID:  before,
		Limit:     limit,
	})
	if err != nil {
		h.handleDomainError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"items": events})
}
