package usecase

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"

	"github.com/atvirokodosprendimai/invoices/internal/core/domain"
	"github.com/atvirokodosprendimai/invoices/internal/metrics"
)

var ErrNoOpenConfirmation = errors.New("no open confirmation")

// ConfirmationDialog is the per-session confirmation primitive. It holds at most one
// open request and delivers each answer to the subscribed listener.
type ConfirmationDialog struct {
	metrics *metrics.Metrics

	mu       sync.Mutex
	current  *domain.Confirmation
	listener func(context.Context, domain.ConfirmationAnswer)
}

func NewConfirmationDialog(m *metrics.Metrics) *ConfirmationDialog {
	return &ConfirmationDialog{metrics: m}
}

// Subscribe sets the listener that receives answers.
func (d *ConfirmationDialog) Subscribe(fn func(context.Context, domain.ConfirmationAnswer)) {
	d.mu.Lock()
	d.listener = fn
	d.mu.Unlock()
}

func (d *ConfirmationDialog) RequestConfirmation(_ context.Context, title, body string) {
	d.mu.Lock()
	d.current = &domain.Confirmation{
		ID:     uuid.NewString(),
		Title:  title,
		Body:   body,
		Answer: domain.AnswerPending,
	}
	d.mu.Unlock()
}

// Current returns the open confirmation, if any.
func (d *ConfirmationDialog) Current() (domain.Confirmation, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.current == nil {
		return domain.Confirmation{}, false
	}
	return *d.current, true
}

// Answer closes the open confirmation and notifies the listener outside the lock.
func (d *ConfirmationDialog) Answer(ctx context.Context, accepted bool) (domain.Confirmation, error) {
	d.mu.Lock()
	if d.current == nil {
		d.mu.Unlock()
		return domain.Confirmation{}, ErrNoOpenConfirmation
	}
	answered := *d.current
	answered.Answer = domain.AnswerOf(accepted)
	d.current = nil
	listener := d.listener
	d.mu.Unlock()

	d.metrics.ConfirmationAnswered(answered.Answer.String())
	if listener != nil {
		listener(ctx, answered.Answer)
	}
	return answered, nil
}
