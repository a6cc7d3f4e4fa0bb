package usecase

import (
	"context"
	"errors"
	"testing"

	"github.com/atvirokodosprendimai/invoices/internal/core/domain"
)

func TestConfirmationDialogDeliversAnswer(t *testing.T) {
	d := NewConfirmationDialog(nil)
	var answers []domain.ConfirmationAnswer
	d.Subscribe(func(_ context.Context, a domain.ConfirmationAnswer) {
		answers = append(answers, a)
	})

	d.RequestConfirmation(context.Background(), "Delete INV-042?", "This cannot be undone.")
	current, ok := d.Current()
	if !ok || current.Title != "Delete INV-042?" || current.Answer != domain.AnswerPending {
		t.Fatalf("unexpected open confirmation: %+v ok=%v", current, ok)
	}

	answered, err := d.Answer(context.Background(), true)
	if err != nil {
		t.Fatalf("answer: %v", err)
	}
	if answered.Answer != domain.AnswerAccepted || answered.ID != current.ID {
		t.Fatalf("unexpected answered confirmation: %+v", answered)
	}
	if len(answers) != 1 || answers[0] != domain.AnswerAccepted {
		t.Fatalf("unexpected delivered answers: %v", answers)
	}
	if _, ok := d.Current(); ok {
		t.Fatal("dialog should be closed after an answer")
	}
}

func TestConfirmationDialogAnswerWithoutRequest(t *testing.T) {
	d := NewConfirmationDialog(nil)
	called := false
	d.Subscribe(func(context.Context, domain.ConfirmationAnswer) { called = true })

	if _, err := d.Answer(context.Background(), false); !errors.Is(err, ErrNoOpenConfirmation) {
		t.Fatalf("expected no open confirmation, got %v", err)
	}
	if called {
		t.Fatal("listener must not be called without an open confirmation")
	}
}
