// Package retention decides when borrowed titles are due back and cleans up the
// intermediate files an acquisition leaves behind.
package retention

import (
	"context"
	"errors"
	"os"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/italolelis/loan_downloader/internal/logctx"
	"github.com/italolelis/loan_downloader/internal/storage"
)

// ShouldReturn reports whether at least keepFor has elapsed since downloadedAt.
// The boundary is inclusive.
func ShouldReturn(downloadedAt time.Time, keepFor time.Duration, now time.Time) bool {
	return now.Sub(downloadedAt) >= keepFor
}

// Due returns the active records whose retention window has elapsed, oldest first.
func Due(ctx context.Context, ledger storage.Ledger, keepFor time.Duration, now time.Time) []*storage.TitleRecord {
	logger := logctx.LoggerFromContext(ctx)

	var due []*storage.TitleRecord

	for _, rec := range ledger.Active() {
		if !ShouldReturn(rec.DownloadedAt, keepFor, now) {
			logger.Debug("title not due yet",
				"title", rec.Title,
				"downloaded", humanize.RelTime(rec.DownloadedAt, now, "ago", "from now"),
			)

			continue
		}

		due = append(due, rec)
	}

	return due
}

// RemoveFiles deletes files produced while acquiring a title. Missing files are skipped.
func RemoveFiles(ctx context.Context, paths ...string) error {
	logger := logctx.LoggerFromContext(ctx)

	var errs []error

	for _, path := range paths {
		if path == "" {
			continue
		}

		if err := os.Remove(path); err != nil {
			if errors.Is(err, os.ErrNotExist) {
				continue
			}

			logger.Error("failed to delete file", "file", path, "err", err)

			errs = append(errs, err)

			continue
		}

		logger.Info("deleted file", "file", path)
	}

	return errors.Join(errs...)
}
