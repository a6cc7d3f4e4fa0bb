package searcher

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"
	"github.com/rs/zerolog"

	"github.com/atvirokodosprendimai/invoices/internal/core/domain"
	"github.com/atvirokodosprendimai/invoices/internal/core/ports"
	"github.com/atvirokodosprendimai/invoices/internal/core/usecase"
	"github.com/atvirokodosprendimai/invoices/internal/i18n"
	"github.com/atvirokodosprendimai/invoices/internal/metrics"
)

const DefaultSessionTTL = 30 * time.Minute

var ErrSessionNotFound = errors.New("searcher session not found")

type MutatorFactory interface {
	For(tenantID, actor string) ports.DeleteMutator
}

// Session is one mounted searcher table. It belongs to the key that mounted it.
type Session struct {
	ID          string
	TenantID    string
	Actor       string
	Permissions domain.Permissions
	Owner       domain.Principal
	Controller  *Controller
	Dialog      *usecase.ConfirmationDialog
	Translator  *i18n.Translator
	MountedAt   time.Time
}

type RegistryConfig struct {
	Mutations MutatorFactory
	Journal   ports.MutationJournal
	Navigator ports.Navigator
	Bundle    *i18n.Bundle
	Metrics   *metrics.Metrics
	Log       zerolog.Logger
	TTL       time.Duration
}

// Registry holds mounted sessions. Idle sessions expire after the TTL and are closed
// on eviction.
type Registry struct {
	cfg   RegistryConfig
	items *cache.Cache
}

func NewRegistry(cfg RegistryConfig) *Registry {
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultSessionTTL
	}
	r := &Registry{cfg: cfg, items: cache.New(cfg.TTL, cfg.TTL/2)}
	r.items.OnEvicted(func(id string, v interface{}) {
		s, ok := v.(*Session)
		if !ok {
			return
		}
		_ = s.Controller.Close()
		r.cfg.Metrics.SessionUnmounted()
		r.cfg.Log.Debug().Str("session_id", id).Msg("searcher session closed")
	})
	return r
}

// Mount creates a session for a caller holding the search right.
func (r *Registry) Mount(caller domain.Principal, languages ...string) (*Session, error) {
	if err := domain.ValidateKey(caller.TenantID); err != nil {
		return nil, err
	}
	if caller.KeyID == "" {
		return nil, domain.ErrForbidden
	}
	if !caller.Rights.Has(domain.RightInvoiceSearch) {
		return nil, domain.ErrForbidden
	}
	tenantID, actor, perms := caller.TenantID, caller.Actor(), caller.Rights

	tr := r.cfg.Bundle.Translator(languages...)
	dialog := usecase.NewConfirmationDialog(r.cfg.Metrics)
	s := &Session{
		ID:          uuid.NewString(),
		TenantID:    tenantID,
		Actor:       actor,
		Permissions: perms,
		Owner:       caller,
		Dialog:      dialog,
		Translator:  tr,
		MountedAt:   time.Now().UTC(),
	}
	s.Controller = NewController(Options{
		Permissions: perms,
		Confirmer:   dialog,
		Mutator:     r.cfg.Mutations.For(tenantID, actor),
		Journal:     r.cfg.Journal,
		Navigator:   r.cfg.Navigator,
		Translator:  tr,
		Log:         r.cfg.Log.With().Str("tenant_id", tenantID).Str("actor", actor).Logger(),
	})
	dialog.Subscribe(func(ctx context.Context, answer domain.ConfirmationAnswer) {
		s.Controller.OnConfirmationAnswer(ctx, answer)
	})

	r.items.SetDefault(s.ID, s)
	r.cfg.Metrics.SessionMounted()
	r.cfg.Log.Debug().Str("session_id", s.ID).Str("tenant_id", tenantID).Str("language", tr.Language()).Msg("searcher session mounted")
	return s, nil
}

// Get returns the caller's session and extends its TTL. A session mounted by another
// key, even in the same tenant, is reported as not found.
func (r *Registry) Get(caller domain.Principal, id string) (*Session, error) {
	v, ok := r.items.Get(id)
	if !ok {
		return nil, ErrSessionNotFound
	}
	s := v.(*Session)
	if !s.Owner.Owns(caller) {
		return nil, ErrSessionNotFound
	}
	r.items.SetDefault(id, s)
	return s, nil
}

func (r *Registry) Unmount(caller domain.Principal, id string) error {
	if _, err := r.Get(caller, id); err != nil {
		return err
	}
	r.items.Delete(id)
	return nil
}

func (r *Registry) Len() int {
	return r.items.ItemCount()
}

// Close unmounts every session.
func (r *Registry) Close() error {
	for id := range r.items.Items() {
		r.items.Delete(id)
	}
	return nil
}
