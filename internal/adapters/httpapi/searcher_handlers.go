package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/atvirokodosprendimai/invoices/internal/core/domain"
	"github.com/atvirokodosprendimai/invoices/internal/searcher"
)

type mountRequest struct {
	Languages []string `json:"languages" validate:"max=8,dive,min=2,max=64"`
}

type openRowRequest struct {
	NewTab bool `json:"new_tab"`
}

type answerRequest struct {
	Accepted *bool `json:"accepted" validate:"required"`
}

type searcherStateResponse struct {
	SessionID    string               `json:"session_id"`
	Language     string               `json:"language"`
	State        searcher.State       `json:"state"`
	Confirmation *domain.Confirmation `json:"confirmation,omitempty"`
}

func stateResponse(s *searcher.Session) searcherStateResponse {
	resp := searcherStateResponse{
		SessionID: s.ID,
		Language:  s.Translator.Language(),
		State:     s.Controller.State(),
	}
	if c, ok := s.Dialog.Current(); ok {
		resp.Confirmation = &c
	}
	return resp
}

func (h *Handler) mountSearcher(w http.ResponseWriter, r *http.Request) {
	caller := principalFromContext(r.Context())

	var req mountRequest
	if r.ContentLength != 0 && !h.decodeJSON(w, r, &req) {
		return
	}
	languages := req.Languages
	if len(languages) == 0 {
		if accept := r.Header.Get("Accept-Language"); accept != "" {
			languages = []string{accept}
		}
	}

	s, err := h.sessions.Mount(caller, languages...)
	if err != nil {
		h.handleDomainError(w, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, stateResponse(s))
}

func (h *Handler) session(w http.ResponseWriter, r *http.Request) (*searcher.Session, bool) {
	s, err := h.sessions.Get(principalFromContext(r.Context()), chi.URLParam(r, "sid"))
	if err != nil {
		h.handleDomainError(w, err)
		return nil, false
	}
	return s, true
}

func (h *Handler) unmountSearcher(w http.ResponseWriter, r *http.Request) {
	if err := h.sessions.Unmount(principalFromContext(r.Context()), chi.URLParam(r, "sid")); err != nil {
		h.handleDomainError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]bool{"unmounted": true})
}

func (h *Handler) searcherTable(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	query, ok := h.parseSearchQuery(w, r, s.TenantID)
	if !ok {
		return
	}

	page, err := h.invoices.Search(r.Context(), query)
	if err != nil {
		h.handleDomainError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, searcher.BuildTable(s.Controller, s.Translator, h.module, page))
}

func (h *Handler) searcherState(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	h.writeJSON(w, http.StatusOK, stateResponse(s))
}

// rowInvoice loads the row's invoice so delete and edit gates see the stored status.
func (h *Handler) rowInvoice(w http.ResponseWriter, r *http.Request, s *searcher.Session) (domain.Invoice, bool) {
	inv, err := h.invoices.Get(r.Context(), s.TenantID, chi.URLParam(r, "id"))
	if err != nil {
		h.handleDomainError(w, err)
		return domain.Invoice{}, false
	}
	if inv.IsDeleted {
		h.handleDomainError(w, domain.ErrNotFound)
		return domain.Invoice{}, false
	}
	return inv, true
}

func (h *Handler) requestRowDelete(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	inv, ok := h.rowInvoice(w, r, s)
	if !ok {
		return
	}

	if err := s.Controller.RequestDelete(r.Context(), inv); err != nil {
		h.handleDomainError(w, err)
		return
	}
	h.writeJSON(w, http.StatusAccepted, stateResponse(s))
}

func (h *Handler) openRow(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	var req openRowRequest
	if r.ContentLength != 0 && !h.decodeJSON(w, r, &req) {
		return
	}
	inv, ok := h.rowInvoice(w, r, s)
	if !ok {
		return
	}

	nav, err := s.Controller.OpenEdit(inv, req.NewTab)
	if err != nil {
		h.handleDomainError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, nav)
}

func (h *Handler) getConfirmation(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	c, open := s.Dialog.Current()
	if !open {
		h.writeError(w, http.StatusNotFound, "no open confirmation")
		return
	}
	h.writeJSON(w, http.StatusOK, c)
}

func (h *Handler) answerConfirmation(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	var req answerRequest
	if !h.decodeJSON(w, r, &req) {
		return
	}

	answered, err := s.Dialog.Answer(r.Context(), *req.Accepted)
	if err != nil {
		h.handleDomainError(w, err)
		return
	}
	resp := stateResponse(s)
	resp.Confirmation = &answered
	h.writeJSON(w, http.StatusOK, resp)
}
