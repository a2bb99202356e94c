package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/gofrs/flock"
	"github.com/italolelis/loan_downloader/internal/browser"
	"github.com/italolelis/loan_downloader/internal/calibre"
	"github.com/italolelis/loan_downloader/internal/cmdexec"
	"github.com/italolelis/loan_downloader/internal/config"
	"github.com/italolelis/loan_downloader/internal/credentials"
	"github.com/italolelis/loan_downloader/internal/http/rest"
	"github.com/italolelis/loan_downloader/internal/library"
	"github.com/italolelis/loan_downloader/internal/lifecycle"
	"github.com/italolelis/loan_downloader/internal/loans"
	"github.com/italolelis/loan_downloader/internal/logctx"
	"github.com/italolelis/loan_downloader/internal/notifier"
	"github.com/italolelis/loan_downloader/internal/storage"
	"github.com/italolelis/loan_downloader/internal/storage/jsonfile"
	"github.com/italolelis/loan_downloader/internal/storage/sqlite"
	"github.com/italolelis/loan_downloader/internal/telemetry"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/sync/errgroup"
)

var version = "dev"

func main() {
	if err := newRootCommand().ExecuteContext(context.Background()); err != nil {
		slog.Error("fatal error", "err", err)
		os.Exit(1)
	}
}

func newLogger(cfg *config.Config) *slog.Logger {
	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.SlogLevel()})

	return slog.New(logctx.NewTraceHandler(handler))
}

func run(ctx context.Context, cfg *config.Config, once bool) error {
	logger := logctx.LoggerFromContext(ctx)

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	// =========================================================================
	// Acquire Lock
	lock := flock.New(cfg.LockPath)

	locked, err := lock.TryLock()
	if err != nil {
		return fmt.Errorf("failed to acquire lock %s: %w", cfg.LockPath, err)
	}

	if !locked {
		return fmt.Errorf("another instance holds %s", cfg.LockPath)
	}
	defer lock.Unlock()

	// =========================================================================
	// Start Telemetry
	tel, err := telemetry.New(ctx, telemetry.Config{
		Enabled:        cfg.Telemetry.Enabled,
		ServiceName:    cfg.Telemetry.ServiceName,
		ServiceVersion: version,
		OTLPEndpoint:   cfg.Telemetry.OTLPEndpoint,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize telemetry: %w", err)
	}

	defer func() {
		if err := tel.Shutdown(context.Background()); err != nil {
			logger.Error("failed to shutdown telemetry", "err", err)
		}
	}()

	// =========================================================================
	// Start Ledger
	repo, closeRepo, err := buildRepository(cfg)
	if err != nil {
		return fmt.Errorf("failed to open ledger: %w", err)
	}
	defer closeRepo()

	ledger := storage.NewInstrumentedRepository(repo, tel)

	// =========================================================================
	// Start Collaborators
	notif := notifier.NewDiscordNotifier(cfg.DiscordWebhookURL)
	runner := cmdexec.NewInstrumentedRunner(cmdexec.ExecRunner{}, tel)
	timings := library.DefaultTimings()

	var mailer lifecycle.Mailer
	if len(cfg.DeliveryRecipients) > 0 {
		mailer = calibre.NewMailer(runner, cfg.Calibre.SMTPBin, calibre.SMTPConfig{
			Host:       cfg.SMTP.Host,
			Port:       cfg.SMTP.Port,
			Username:   cfg.SMTP.Username,
			Password:   cfg.SMTP.Password,
			Encryption: cfg.SMTP.Encryption,
			From:       cfg.SMTP.From,
		})
	}

	orch := lifecycle.NewOrchestrator(lifecycle.Dependencies{
		Repository: ledger,
		Loans: loans.NewOdmpyClient(runner, notif, cfg.Loans.ExportPath,
			loans.WithBinary(cfg.Loans.OdmpyBin),
			loans.WithFormat(cfg.Loans.Format),
		),
		Browser: browser.NewRodProvider(browser.RodConfig{
			BrowserPath:  cfg.Browser.Path,
			Headless:     cfg.Browser.Headless,
			DownloadsDir: cfg.DownloadsDir,
			CookiesPath:  cfg.CookiesPath,
			LibraryURL:   cfg.LibraryURL,
		}),
		Authenticator: library.NewAuthenticator(cfg.AccountEmail, credentials.Chain{
			credentials.Keyring{Service: cfg.CredentialsSvc},
			credentials.Static(cfg.AccountPass),
		}, cfg.LoginTimeout, timings),
		Downloader: library.NewDownloader(library.DownloadConfig{
			Dir:           cfg.DownloadsDir,
			Ext:           cfg.DownloadExt,
			PartialExt:    cfg.PartialExt,
			DeviceName:    cfg.DeviceName,
			RequireDevice: cfg.RequireDevice,
			LoanMarker:    cfg.LoanMarker,
			Timeout:       cfg.DownloadTimeout,
			Timings:       timings,
		}, notif),
		Returner: library.NewReturner(timings, notif),
		Catalog: calibre.NewClient(runner, cfg.Calibre.LibraryPath,
			calibre.WithCalibreDB(cfg.Calibre.DBBin),
			calibre.WithEbookConvert(cfg.Calibre.ConvertBin),
			calibre.WithOutputProfile(cfg.Calibre.OutputProfile),
		),
		Mailer:    mailer,
		Notifier:  notif,
		Telemetry: tel,
	}, lifecycle.Config{
		RunInterval:      cfg.RunInterval,
		ReturnAfter:      cfg.ReturnAfter,
		MinSimilarity:    cfg.MinSimilarity,
		ConvertFormat:    cfg.Calibre.ConvertFormat,
		RemoveDownloaded: cfg.RemoveDownloaded,
		Recipients:       cfg.DeliveryRecipients,
	})

	if once {
		return orch.RunOnceReported(ctx)
	}

	logger.Info("watching loans...",
		"run_interval", cfg.RunInterval.String(),
		"return_after", cfg.ReturnAfter.String(),
		"downloads_dir", cfg.DownloadsDir,
		"ledger_backend", cfg.Ledger.Backend,
	)

	// =========================================================================
	// Start Run Loop and API Service
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return orch.Run(gctx)
	})

	if cfg.Web.Enabled {
		server := setupServer(gctx, ledger, tel, cfg)

		g.Go(func() error {
			logger.Info("Initializing API support", "host", cfg.Web.BindAddress)

			if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("server error: %w", err)
			}

			return nil
		})

		g.Go(func() error {
			<-gctx.Done()

			logger.Info("start shutdown")

			// Give outstanding requests a deadline for completion.
			shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Web.ShutdownTimeout)
			defer cancel()

			if err := server.Shutdown(shutdownCtx); err != nil {
				logger.Error("failed to gracefully shutdown the server", "err", err)

				if err = server.Close(); err != nil {
					return fmt.Errorf("could not stop server gracefully: %w", err)
				}
			}

			return nil
		})
	}

	return g.Wait()
}

// buildRepository opens the configured ledger backend.
func buildRepository(cfg *config.Config) (storage.Repository, func(), error) {
	switch strings.ToLower(cfg.Ledger.Backend) {
	case "json":
		return jsonfile.NewRepository(cfg.Ledger.Path), func() {}, nil
	case "sqlite":
		db, err := sqlite.InitDB(cfg.DBPath)
		if err != nil {
			return nil, nil, err
		}

		return sqlite.NewTitleRepository(db), func() { db.Close() }, nil
	}

	return nil, nil, fmt.Errorf("invalid ledger backend: %s", cfg.Ledger.Backend)
}

// setupServer prepares the status API server.
func setupServer(ctx context.Context, ledger rest.LedgerReader, tel *telemetry.Telemetry, cfg *config.Config) *http.Server {
	h := rest.NewStatusHandler(cfg.Web.Username, cfg.Web.Password, ledger, tel)

	return &http.Server{
		Addr:         cfg.Web.BindAddress,
		ReadTimeout:  cfg.Web.ReadTimeout,
		WriteTimeout: cfg.Web.WriteTimeout,
		IdleTimeout:  cfg.Web.IdleTimeout,
		Handler:      otelhttp.NewHandler(h.Routes(), "status_api"),
		BaseContext: func(net.Listener) context.Context {
			return ctx
		},
	}
}
