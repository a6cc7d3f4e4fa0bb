package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	"github.com/atvirokodosprendimai/invoices/internal/core/domain"
	"github.com/atvirokodosprendimai/invoices/internal/core/usecase"
	"github.com/atvirokodosprendimai/invoices/internal/i18n"
	"github.com/atvirokodosprendimai/invoices/internal/metrics"
	"github.com/atvirokodosprendimai/invoices/internal/module"
	"github.com/atvirokodosprendimai/invoices/internal/searcher"
)

type ctxKey string

const (
	timeFormat             = "2006-01-02T15:04:05.999999999Z07:00"
	principalCtxKey ctxKey = "principal"
	maxJSONBodySize        = 1 << 20
)

type Services struct {
	Invoices  *usecase.InvoiceService
	Auth      *usecase.AuthService
	Journal   *usecase.JournalService
	Mutations *usecase.MutationService
	Sessions  *searcher.Registry
	Module    *module.Module
	Bundle    *i18n.Bundle
	Metrics   *metrics.Metrics
	Log       zerolog.Logger
}

type Handler struct {
	invoices  *usecase.InvoiceService
	auth      *usecase.AuthService
	journal   *usecase.JournalService
	mutations *usecase.MutationService
	sessions  *searcher.Registry
	module    *module.Module
	bundle    *i18n.Bundle
	metrics   *metrics.Metrics
	log       zerolog.Logger
	validate  *validator.Validate
}

func NewHandler(s Services) *Handler {
	return &Handler{
		invoices:  s.Invoices,
		auth:      s.Auth,
		journal:   s.Journal,
		mutations: s.Mutations,
		sessions:  s.Sessions,
		module:    s.Module,
		bundle:    s.Bundle,
		metrics:   s.Metrics,
		log:       s.Log,
		validate:  validator.New(validator.WithRequiredStructEnabled()),
	}
}

func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(h.accessLog)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", h.healthz)
	r.Get("/openapi.json", h.openapi)
	r.Method(http.MethodGet, "/metrics", h.metrics.Handler())

	r.Group(func(pr chi.Router) {
		pr.Use(h.requireAPIKey)
		pr.Get("/v1/module", h.getModule)
		pr.Get("/v1/translations/{lang}", h.getTranslations)

		pr.Get("/v1/invoices", h.searchInvoices)
		pr.Get("/v1/invoices/{id}", h.getInvoice)
		pr.Put("/v1/invoices/{id}", h.upsertInvoice)
		pr.Get("/v1/invoices/{id}/history", h.invoiceHistory)

		pr.Post("/v1/searchers", h.mountSearcher)
		pr.Delete("/v1/searchers/{sid}", h.unmountSearcher)
		pr.Get("/v1/searchers/{sid}/table", h.searcherTable)
		pr.Get("/v1/searchers/{sid}/state", h.searcherState)
		pr.Post("/v1/searchers/{sid}/rows/{id}/delete", h.requestRowDelete)
		pr.Post("/v1/searchers/{sid}/rows/{id}/open", h.openRow)
		pr.Get("/v1/searchers/{sid}/confirmation", h.getConfirmation)
		pr.Post("/v1/searchers/{sid}/confirmation", h.answerConfirmation)

		pr.Get("/v1/mutations/state", h.mutationState)
		pr.Get("/v1/journal", h.listJournal)
	})

	return r
}

func (h *Handler) accessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)

		ev := h.log.Debug()
		if ww.Status() >= http.StatusInternalServerError {
			ev = h.log.Error()
		}
		ev.Str("request_id", middleware.GetReqID(r.Context())).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Int("bytes", ww.BytesWritten()).
			Dur("duration", time.Since(start)).
			Msg("http request")
	})
}

func (h *Handler) healthz(w http.ResponseWriter, _ *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (h *Handler) openapi(w http.ResponseWriter, _ *http.Request) {
	h.writeJSON(w, http.StatusOK, openapiSpec())
}

func (h *Handler) requireAPIKey(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := strings.TrimSpace(r.Header.Get("X-API-Key"))
		if token == "" {
			auth := strings.TrimSpace(r.Header.Get("Authorization"))
			if strings.HasPrefix(strings.ToLower(auth), "bearer ") {
				token = strings.TrimSpace(auth[7:])
			}
		}

		principal, err := h.auth.Authenticate(r.Context(), token)
		if err != nil {
			if errors.Is(err, usecase.ErrUnauthorized) {
				h.writeError(w, http.StatusUnauthorized, "unauthorized")
				return
			}
			if errors.Is(err, usecase.ErrNoInvoiceRights) {
				h.writeError(w, http.StatusForbidden, err.Error())
				return
			}
			h.log.Error().Err(err).Msg("authenticate api key")
			h.writeError(w, http.StatusInternalServerError, "internal server error")
			return
		}

		ctx := context.WithValue(r.Context(), principalCtxKey, principal)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (h *Handler) getModule(w http.ResponseWriter, r *http.Request) {
	key := principalFromContext(r.Context())
	h.writeJSON(w, http.StatusOK, map[string]any{
		"name":   module.Name,
		"config": h.module.Config(),
		"menu":   h.module.MenuFor(key.Rights),
	})
}

func (h *Handler) getTranslations(w http.ResponseWriter, r *http.Request) {
	lang := chi.URLParam(r, "lang")
	tr := h.bundle.Translator(lang)
	h.writeJSON(w, http.StatusOK, map[string]any{
		"language": tr.Language(),
		"messages": h.bundle.Messages(tr.Language()),
	})
}

func (h *Handler) mutationState(w http.ResponseWriter, r *http.Request) {
	key := principalFromContext(r.Context())
	lc := h.mutations.Lifecycle()
	if lc.Last != nil && lc.Last.TenantID != key.TenantID {
		lc.Last = nil
	}
	h.writeJSON(w, http.StatusOK, lc)
}

type journalParams struct {
	Status   string `validate:"omitempty,oneof=received success error"`
	BeforeID int64  `validate:"gte=0"`
	Limit    int    `validate:"gte=0,lte=1000"`
}

func (h *Handler) listJournal(w http.ResponseWriter, r *http.Request) {
	key := principalFromContext(r.Context())
	if !key.Rights.Has(domain.RightInvoiceSearch) {
		h.handleDomainError(w, domain.ErrForbidden)
		return
	}

	q := r.URL.Query()
	var params journalParams
	var ok bool
	params.Status = q.Get("status")
	if params.BeforeID, ok = h.parseInt64(w, q.Get("before"), "before"); !ok {
		return
	}
	if params.Limit, ok = h.parseInt(w, q.Get("limit"), "limit"); !ok {
		return
	}
	if !h.validStruct(w, params) {
		return
	}

	entries, err := h.journal.List(r.Context(), domain.JournalFilter{
		TenantID: key.TenantID,
		Status:   domain.MutationStatus(params.Status),
		BeforeID: params.BeforeID,
		Limit:    params.Limit,
	})
	if err != nil {
		h.handleDomainError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"items": entries})
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, body any) {
	data, err := json.Marshal(body)
	if err != nil {
		h.log.Error().Err(err).Msg("encode json response")
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if _, err := w.Write(append(data, '\n')); err != nil {
		h.log.Debug().Err(err).Msg("write response")
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]any{"error": message})
}

func (h *Handler) handleDomainError(w http.ResponseWriter, err error) {
	var violation *usecase.ErrSchemaViolation
	switch {
	case errors.As(err, &violation):
		h.writeJSON(w, http.StatusUnprocessableEntity, map[string]any{"error": "schema validation failed", "details": violation.Errors})
	case errors.Is(err, domain.ErrInvalidKey),
		errors.Is(err, domain.ErrInvalidFilter),
		errors.Is(err, domain.ErrInvalidSort),
		errors.Is(err, domain.ErrInvalidPage),
		errors.Is(err, domain.ErrInvalidInvoice):
		h.writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, domain.ErrNotFound),
		errors.Is(err, searcher.ErrSessionNotFound),
		errors.Is(err, module.ErrUnknownRoute):
		h.writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, domain.ErrForbidden),
		errors.Is(err, searcher.ErrDeleteNotAllowed),
		errors.Is(err, searcher.ErrEditNotAllowed):
		h.writeError(w, http.StatusForbidden, err.Error())
	case errors.Is(err, domain.ErrInvoicePaid),
		errors.Is(err, searcher.ErrDeletionPending),
		errors.Is(err, usecase.ErrNoOpenConfirmation):
		h.writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, searcher.ErrClosed):
		h.writeError(w, http.StatusGone, err.Error())
	default:
		h.log.Error().Err(err).Msg("request failed")
		h.writeError(w, http.StatusInternalServerError, "internal server error")
	}
}

func (h *Handler) validStruct(w http.ResponseWriter, v any) bool {
	err := h.validate.Struct(v)
	if err == nil {
		return true
	}
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		details := make([]string, 0, len(verrs))
		for _, fe := range verrs {
			details = append(details, fe.Field()+": failed "+fe.Tag())
		}
		h.writeJSON(w, http.StatusBadRequest, map[string]any{"error": "invalid request", "details": details})
		return false
	}
	h.writeError(w, http.StatusBadRequest, err.Error())
	return false
}

func (h *Handler) decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBodySize)
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return h.validStruct(w, dst)
		}
		h.writeError(w, http.StatusBadRequest, "invalid json body")
		return false
	}
	if err := ensureEOF(decoder); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid json body")
		return false
	}
	return h.validStruct(w, dst)
}

func (h *Handler) parseInt(w http.ResponseWriter, raw, name string) (int, bool) {
	if raw == "" {
		return 0, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, name+" must be integer")
		return 0, false
	}
	return n, true
}

func (h *Handler) parseInt64(w http.ResponseWriter, raw, name string) (int64, bool) {
	if raw == "" {
		return 0, true
	}
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, name+" must be integer")
		return 0, false
	}
	return n, true
}

func ensureEOF(decoder *json.Decoder) error {
	var extra json.RawMessage
	if err := decoder.Decode(&extra); err != nil {
		if err == io.EOF {
			return nil
		}
		return err
	}
	return errors.New("extra json tokens")
}

func principalFromContext(ctx context.Context) domain.Principal {
	p, _ := ctx.Value(principalCtxKey).(domain.Principal)
	return p
}

func mutationMeta(r *http.Request) domain.MutationMetadata {
	return domain.MutationMetadata{
		Actor:          principalFromContext(r.Context()).Actor(),
		Source:         "http",
		RequestID:      middleware.GetReqID(r.Context()),
		IdempotencyKey: strings.TrimSpace(r.Header.Get("Idempotency-Key")),
	}
}

func openapiSpec() map[string]any {
	op := func(summary string) map[string]any { return map[string]any{"summary": summary} }
	return map[string]any{
		"openapi": "3.0.3",
		"info": map[string]any{
			"title":   "invoices",
			"version": "1.0.0",
		},
		"paths": map[string]any{
			"/v1/module":                           map[string]any{"get": op("Module registration and visible menu")},
			"/v1/translations/{lang}":              map[string]any{"get": op("Translation bundle")},
			"/v1/invoices":                         map[string]any{"get": op("Search invoices")},
			"/v1/invoices/{id}":                    map[string]any{"get": op("Get invoice"), "put": op("Create or replace invoice")},
			"/v1/invoices/{id}/history":            map[string]any{"get": op("Invoice audit trail")},
			"/v1/searchers":                        map[string]any{"post": op("Mount a searcher session")},
			"/v1/searchers/{sid}":                  map[string]any{"delete": op("Unmount a searcher session")},
			"/v1/searchers/{sid}/table":            map[string]any{"get": op("Render one page of the invoice table")},
			"/v1/searchers/{sid}/state":            map[string]any{"get": op("Delete workflow state")},
			"/v1/searchers/{sid}/rows/{id}/delete": map[string]any{"post": op("Request deletion of a row")},
			"/v1/searchers/{sid}/rows/{id}/open":   map[string]any{"post": op("Resolve the edit page of a row")},
			"/v1/searchers/{sid}/confirmation": map[string]any{
				"get":  op("Open confirmation dialog"),
				"post": op("Answer the confirmation dialog"),
			},
			"/v1/mutations/state": map[string]any{"get": op("Mutation lifecycle")},
			"/v1/journal":         map[string]any{"get": op("Mutation journal")},
		},
	}
}
