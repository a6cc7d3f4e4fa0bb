package searcher

import (
	"context"
	"errors"
	"sync"

	"github.com/rs/zerolog"

	"github.com/atvirokodosprendimai/invoices/internal/core/domain"
	"github.com/atvirokodosprendimai/invoices/internal/core/ports"
)

const (
	msgConfirmTitle   = "invoice.delete.confirm.title"
	msgConfirmMessage = "invoice.delete.confirm.message"
	msgMutationLabel  = "invoice.delete.mutationLabel"

	routeInvoice = "invoice.route.invoice"
)

var (
	ErrDeletionPending  = errors.New("a deletion is already awaiting confirmation")
	ErrDeleteNotAllowed = errors.New("delete not allowed")
	ErrEditNotAllowed   = errors.New("edit not allowed")
	ErrClosed           = errors.New("controller closed")
)

type Phase string

const (
	PhaseIdle                 Phase = "idle"
	PhaseAwaitingConfirmation Phase = "awaiting_confirmation"
)

type State struct {
	Phase   Phase              `json:"phase"`
	Pending *domain.InvoiceRef `json:"pending,omitempty"`
	Locked  []string           `json:"locked"`
}

type Options struct {
	Permissions domain.Permissions
	Confirmer   ports.Confirmer
	Mutator     ports.DeleteMutator
	Journal     ports.MutationJournal
	Navigator   ports.Navigator
	Translator  ports.Translator
	Log         zerolog.Logger
}

// Controller drives row deletion for one mounted table: confirm, then mutate, then
// journal. Rows whose deletion was accepted stay locked for the controller's lifetime.
type Controller struct {
	perms      domain.Permissions
	confirmer  ports.Confirmer
	mutator    ports.DeleteMutator
	journal    ports.MutationJournal
	navigator  ports.Navigator
	translator ports.Translator
	log        zerolog.Logger

	mu      sync.Mutex
	pending *domain.InvoiceRef
	locked  map[string]struct{}
	order   []string
	closed  bool

	stop chan struct{}
	wg   sync.WaitGroup
}

func NewController(opts Options) *Controller {
	return &Controller{
		perms:      opts.Permissions,
		confirmer:  opts.Confirmer,
		mutator:    opts.Mutator,
		journal:    opts.Journal,
		navigator:  opts.Navigator,
		translator: opts.Translator,
		log:        opts.Log,
		locked:     make(map[string]struct{}),
		stop:       make(chan struct{}),
	}
}

// RequestDelete records inv as the pending deletion and opens the confirmation dialog.
// A second request while one is pending is rejected, never queued or overwritten.
func (c *Controller) RequestDelete(ctx context.Context, inv domain.Invoice) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	if c.pending != nil {
		c.mu.Unlock()
		return ErrDeletionPending
	}
	if !c.deleteAllowedLocked(inv) {
		c.mu.Unlock()
		return ErrDeleteNotAllowed
	}
	ref := inv.Ref()
	c.pending = &ref
	c.mu.Unlock()

	c.openConfirmation(ctx, ref)
	return nil
}

func (c *Controller) openConfirmation(ctx context.Context, ref domain.InvoiceRef) {
	title := c.translator.Format(msgConfirmTitle, map[string]any{"code": ref.Code})
	body := c.translator.Format(msgConfirmMessage, nil)
	c.log.Debug().Str("invoice_id", ref.ID).Msg("delete confirmation requested")
	c.confirmer.RequestConfirmation(ctx, title, body)
}

// OnConfirmationAnswer resolves the pending deletion. Pending answers and answers with
// nothing pending are ignored.
func (c *Controller) OnConfirmationAnswer(ctx context.Context, answer domain.ConfirmationAnswer) {
	if answer == domain.AnswerPending {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.pending == nil || c.closed {
		return
	}
	ref := *c.pending

	if answer == domain.AnswerAccepted {
		label := c.translator.Format(msgMutationLabel, map[string]any{"code": ref.Code})
		h := c.mutator.SubmitDelete(ctx, ref, label)
		if _, ok := c.locked[ref.ID]; !ok {
			c.locked[ref.ID] = struct{}{}
			c.order = append(c.order, ref.ID)
		}
		c.wg.Add(1)
		go c.awaitSettle(context.WithoutCancel(ctx), h)
		c.log.Info().Str("invoice_id", ref.ID).Str("label", label).Msg("delete dispatched")
	} else {
		c.log.Debug().Str("invoice_id", ref.ID).Msg("delete rejected")
	}
	c.pending = nil
}

func (c *Controller) awaitSettle(ctx context.Context, h ports.MutationHandle) {
	defer c.wg.Done()
	select {
	case <-h.Done():
	case <-c.stop:
		// A mutation that settled before the close is still journaled.
		select {
		case <-h.Done():
		default:
			return
		}
	}
	c.journal.RecordMutationResult(ctx, h.Mutation())
}

func (c *Controller) IsRowLocked(inv domain.Invoice) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lockedLocked(inv.ID)
}

// CanDelete reports whether the delete affordance is rendered at all.
func (c *Controller) CanDelete() bool {
	return c.perms.Has(domain.RightInvoiceDelete)
}

// IsDeleteAllowed reports whether the delete affordance is rendered and enabled.
func (c *Controller) IsDeleteAllowed(inv domain.Invoice) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.deleteAllowedLocked(inv)
}

func (c *Controller) IsEditAllowed(inv domain.Invoice) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.perms.Has(domain.RightInvoiceUpdate) && !c.lockedLocked(inv.ID)
}

// OpenEdit resolves the edit page of inv.
func (c *Controller) OpenEdit(inv domain.Invoice, newTab bool) (domain.Navigation, error) {
	if !c.IsEditAllowed(inv) {
		return domain.Navigation{}, ErrEditNotAllowed
	}
	return c.navigator.NavigateTo(routeInvoice, []string{inv.ID}, newTab)
}

func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	st := State{Phase: PhaseIdle, Locked: append([]string{}, c.order...)}
	if c.pending != nil {
		ref := *c.pending
		st.Phase = PhaseAwaitingConfirmation
		st.Pending = &ref
	}
	return st
}

// Close stops waiting on in-flight mutations. Mutations already settled are journaled
// before Close returns; those settling afterwards are not.
func (c *Controller) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.pending = nil
	close(c.stop)
	c.mu.Unlock()

	c.wg.Wait()
	return nil
}

func (c *Controller) deleteAllowedLocked(inv domain.Invoice) bool {
	return c.perms.Has(domain.RightInvoiceDelete) && !inv.Status.Terminal() && !c.lockedLocked(inv.ID)
}

func (c *Controller) lockedLocked(id string) bool {
	_, ok := c.locked[id]
	return ok
}
