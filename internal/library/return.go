package library

import (
	"context"
	"fmt"

	"github.com/italolelis/loan_downloader/internal/browser"
	"github.com/italolelis/loan_downloader/internal/logctx"
	"github.com/italolelis/loan_downloader/internal/notifier"
)

// Returner gives a borrowed title back through the content library.
type Returner struct {
	timings  Timings
	notifier notifier.Notifier
}

func NewReturner(timings Timings, n notifier.Notifier) *Returner {
	if n == nil {
		n = notifier.Noop{}
	}

	return &Returner{timings: timings, notifier: n}
}

// Return reports false without an error when the entity offers no return control.
func (r *Returner) Return(ctx context.Context, s browser.Session, entity Entity, title string) (bool, error) {
	logger := logctx.LoggerFromContext(ctx).With("title", title)

	label, ok, err := entity.Element.FindByText(ctx, selReturnLabel, returnLabelText)
	if err != nil {
		return false, err
	}

	if !ok {
		logger.Error("return control not found")
		r.notify(ctx, "ERROR: Failed to return book")

		return false, nil
	}

	button, err := label.Parent(ctx)
	if err != nil {
		return false, fmt.Errorf("failed to resolve return control: %w", err)
	}

	if err := button.Click(ctx); err != nil {
		return false, fmt.Errorf("failed to open return dialog: %w", err)
	}

	if err := pause(ctx, r.timings.Action); err != nil {
		return false, err
	}

	confirm, ok, err := entity.Element.Find(ctx, selReturnConfirm)
	if err != nil {
		return false, err
	}

	if !ok {
		return false, &MissingControlError{Control: "return confirmation", Title: title}
	}

	if err := confirm.Click(ctx); err != nil {
		return false, fmt.Errorf("failed to confirm return: %w", err)
	}

	if err := pause(ctx, r.timings.Action); err != nil {
		return false, err
	}

	if done, ok, err := s.Find(ctx, selNotificationDone); err != nil {
		return false, err
	} else if ok {
		if err := done.Click(ctx); err != nil {
			logger.Debug("failed to dismiss return notification", "err", err)
		}
	}

	if err := pause(ctx, r.timings.Menu); err != nil {
		return false, err
	}

	logger.Info("returned title")
	r.notify(ctx, "Returned "+title)

	return true, nil
}

func (r *Returner) notify(ctx context.Context, msg string) {
	if err := r.notifier.Notify(ctx, msg); err != nil {
		logctx.LoggerFromContext(ctx).Error("failed to send notification", "err", err)
	}
}
