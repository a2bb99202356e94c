// Package lifecycle runs the borrow-acquire-return cycle for library loans.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/italolelis/loan_downloader/internal/browser"
	"github.com/italolelis/loan_downloader/internal/library"
	"github.com/italolelis/loan_downloader/internal/loans"
	"github.com/italolelis/loan_downloader/internal/logctx"
	"github.com/italolelis/loan_downloader/internal/notifier"
	"github.com/italolelis/loan_downloader/internal/retention"
	"github.com/italolelis/loan_downloader/internal/storage"
	"github.com/italolelis/loan_downloader/internal/telemetry"
)

type Authenticator interface {
	Login(ctx context.Context, s browser.Session) error
}

type Downloader interface {
	Download(ctx context.Context, s browser.Session, entity library.Entity, title string) (string, error)
}

type Returner interface {
	Return(ctx context.Context, s browser.Session, entity library.Entity, title string) (bool, error)
}

// Catalog is the ebook catalog the downloaded files are imported into.
type Catalog interface {
	Import(ctx context.Context, path string) (int64, error)
	Convert(ctx context.Context, src, format string) (string, error)
	AddFormat(ctx context.Context, id int64, path string) error
	FormatPath(ctx context.Context, id int64, format string) (string, error)
}

type Mailer interface {
	Send(ctx context.Context, path, to string) error
}

// Dependencies are the collaborators of an Orchestrator. Mailer may be nil when no
// recipients are configured; Notifier and Telemetry may be nil.
type Dependencies struct {
	Repository    storage.Repository
	Loans         loans.Discoverer
	Browser       browser.Provider
	Authenticator Authenticator
	Downloader    Downloader
	Returner      Returner
	Catalog       Catalog
	Mailer        Mailer
	Notifier      notifier.Notifier
	Telemetry     *telemetry.Telemetry
	Now           func() time.Time
}

type Config struct {
	RunInterval      time.Duration
	ReturnAfter      time.Duration
	MinSimilarity    float64
	ConvertFormat    string
	RemoveDownloaded bool
	Recipients       map[string]string // name -> e-mail address
}

type Orchestrator struct {
	Dependencies
	cfg Config
}

func NewOrchestrator(deps Dependencies, cfg Config) *Orchestrator {
	if deps.Notifier == nil {
		deps.Notifier = notifier.Noop{}
	}

	if deps.Now == nil {
		deps.Now = time.Now
	}

	return &Orchestrator{Dependencies: deps, cfg: cfg}
}

// Run executes an iteration immediately and then one every RunInterval until ctx is done.
// The first error is reported to the notifier and returned.
func (o *Orchestrator) Run(ctx context.Context) error {
	logger := logctx.LoggerFromContext(ctx)

	for {
		if err := o.RunOnceReported(ctx); err != nil {
			return err
		}

		if ctx.Err() != nil {
			logger.Info("run loop shutdown", "reason", "context_cancelled")

			return nil
		}

		timer := time.NewTimer(o.cfg.RunInterval)

		select {
		case <-ctx.Done():
			timer.Stop()
			logger.Info("run loop shutdown", "reason", "context_cancelled")

			return nil
		case <-timer.C:
		}
	}
}

// RunOnceReported runs one iteration and sends a fatal error to the notifier as
// "ERROR: <err>" before returning it. Cancellation is not an error.
func (o *Orchestrator) RunOnceReported(ctx context.Context) error {
	logger := logctx.LoggerFromContext(ctx)

	err := o.RunOnce(ctx)
	if err == nil {
		return nil
	}

	if ctx.Err() != nil && errors.Is(err, ctx.Err()) {
		logger.Info("run interrupted", "reason", "context_cancelled")

		return nil
	}

	logger.Error("run failed", "err", err)
	o.notify(ctx, "ERROR: "+err.Error())

	return err
}

// RunOnce performs a single iteration: acquire every new loan, then return every title
// whose retention window elapsed.
func (o *Orchestrator) RunOnce(ctx context.Context) (err error) {
	ctx = logctx.WithRunID(ctx, uuid.NewString())
	logger := logctx.LoggerFromContext(ctx)
	start := time.Now()

	defer func() {
		if r := recover(); r != nil {
			logger.Error("run panic",
				"operation", "run_once",
				"panic", r,
				"stack", string(debug.Stack()))

			o.Telemetry.RecordSystemError("lifecycle", "panic")

			err = fmt.Errorf("run panicked: %v", r)
		}

		status := "success"
		if err != nil {
			status = "error"
		}

		o.Telemetry.RecordIteration(status)
		logger.Info("run finished", "status", status, "duration", time.Since(start).String())
	}()

	return o.Telemetry.InstrumentOperation(ctx, "run_once", "lifecycle", o.runOnce)
}

func (o *Orchestrator) runOnce(ctx context.Context) error {
	logger := logctx.LoggerFromContext(ctx)

	ledger, err := o.Repository.Load(ctx)
	if err != nil {
		return fmt.Errorf("failed to load ledger: %w", err)
	}

	current, err := o.Loans.Loans(ctx)
	if err != nil {
		return err
	}

	titles := ledger.NewTitles(current)

	logger.Info("checked loans", "loans", len(current), "new_titles", len(titles))

	for _, title := range titles {
		err := o.Telemetry.InstrumentTitle(ctx, "acquire", func(ctx context.Context) error {
			return o.acquire(ctx, ledger, title)
		})
		if err != nil {
			return err
		}
	}

	for _, rec := range retention.Due(ctx, ledger, o.cfg.ReturnAfter, o.Now()) {
		err := o.Telemetry.InstrumentTitle(ctx, "return", func(ctx context.Context) error {
			return o.giveBack(ctx, ledger, rec.Title)
		})
		if err != nil {
			return err
		}
	}

	return nil
}

// openLibrary opens a signed-in session. The caller owns closing it.
func (o *Orchestrator) openLibrary(ctx context.Context) (browser.Session, error) {
	s, err := o.Browser.Open(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to open browser session: %w", err)
	}

	if err := o.Telemetry.InstrumentLogin(ctx, func(ctx context.Context) error {
		return o.Authenticator.Login(ctx, s)
	}); err != nil {
		o.closeSession(ctx, s)

		return nil, err
	}

	return s, nil
}

func (o *Orchestrator) closeSession(ctx context.Context, s browser.Session) {
	if err := s.Close(); err != nil {
		logctx.LoggerFromContext(ctx).Warn("failed to close browser session", "err", err)
	}
}

func (o *Orchestrator) acquire(ctx context.Context, ledger storage.Ledger, title string) error {
	ctx, logger := logctx.With(ctx, "title", title)

	logger.Info("acquiring title")

	s, err := o.openLibrary(ctx)
	if err != nil {
		return err
	}
	defer o.closeSession(ctx, s)

	entity, ok, err := library.FindEntity(ctx, s, title, o.cfg.MinSimilarity)
	if err != nil {
		return err
	}

	if !ok {
		logger.Warn("could not find title in content library")
		o.notify(ctx, "could not find "+title)

		return nil
	}

	downloaded, err := o.Downloader.Download(ctx, s, entity, title)
	if err != nil {
		return err
	}

	id, err := o.Catalog.Import(ctx, downloaded)
	if err != nil {
		return err
	}

	converted, err := o.Catalog.Convert(ctx, downloaded, o.cfg.ConvertFormat)
	if err != nil {
		return err
	}

	if err := o.Catalog.AddFormat(ctx, id, converted); err != nil {
		return err
	}

	path, err := o.Catalog.FormatPath(ctx, id, o.cfg.ConvertFormat)
	if err != nil {
		return err
	}

	if err := ledger.Add(&storage.TitleRecord{
		Title:        title,
		DownloadedAt: o.Now(),
		FilePath:     path,
		CatalogID:    &id,
	}); err != nil {
		return err
	}

	if err := o.Repository.Save(ctx, ledger); err != nil {
		return fmt.Errorf("failed to save ledger: %w", err)
	}

	logger.Info("title acquired", "catalog_id", id, "file", path)

	if o.cfg.RemoveDownloaded {
		if err := retention.RemoveFiles(ctx, downloaded, converted); err != nil {
			logger.Warn("failed to remove downloaded files", "err", err)
		}
	}

	o.notify(ctx, "Downloaded "+title)
	o.deliver(ctx, title, path)

	return nil
}

// deliver mails path to every recipient. Failures are reported and do not stop the run.
func (o *Orchestrator) deliver(ctx context.Context, title, path string) {
	logger := logctx.LoggerFromContext(ctx)

	if o.Mailer == nil || len(o.cfg.Recipients) == 0 {
		return
	}

	names := make([]string, 0, len(o.cfg.Recipients))
	for name := range o.cfg.Recipients {
		names = append(names, name)
	}

	sort.Strings(names)

	for _, name := range names {
		if err := o.Mailer.Send(ctx, path, o.cfg.Recipients[name]); err != nil {
			logger.Error("failed to deliver title", "recipient", name, "err", err)
			o.notify(ctx, fmt.Sprintf("ERROR: failed to deliver %s to %s: %v", title, name, err))

			continue
		}

		logger.Info("delivered title", "recipient", name)
		o.notify(ctx, fmt.Sprintf("Delivered %s to %s", title, name))
	}
}

// giveBack returns title and marks it returned. The record is closed even when the library
// no longer lists the title or offers no return control.
func (o *Orchestrator) giveBack(ctx context.Context, ledger storage.Ledger, title string) error {
	ctx, logger := logctx.With(ctx, "title", title)

	logger.Info("returning title")

	s, err := o.openLibrary(ctx)
	if err != nil {
		return err
	}
	defer o.closeSession(ctx, s)

	entity, ok, err := library.FindEntity(ctx, s, title, o.cfg.MinSimilarity)
	if err != nil {
		return err
	}

	if ok {
		if _, err := o.Returner.Return(ctx, s, entity, title); err != nil {
			return err
		}
	} else {
		logger.Warn("could not find title in content library, it may have been returned already")
	}

	if err := ledger.MarkReturned(title, o.Now()); err != nil {
		return err
	}

	if err := o.Repository.Save(ctx, ledger); err != nil {
		return fmt.Errorf("failed to save ledger: %w", err)
	}

	return nil
}

func (o *Orchestrator) notify(ctx context.Context, msg string) {
	if err := o.Notifier.Notify(ctx, msg); err != nil {
		logctx.LoggerFromContext(ctx).Error("failed to send notification", "err", err)
	}
}
