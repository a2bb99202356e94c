package library

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/italolelis/loan_downloader/internal/browser"
	"github.com/italolelis/loan_downloader/internal/logctx"
	"github.com/italolelis/loan_downloader/internal/notifier"
)

// DownloadConfig configures where and how a loan is fetched.
type DownloadConfig struct {
	Dir           string
	Ext           string // completed download extension, e.g. ".azw3"
	PartialExt    string // in-progress download extension, e.g. ".crdownload"
	DeviceName    string
	RequireDevice bool
	LoanMarker    string
	Timeout       time.Duration
	Timings       Timings
}

// Downloader fetches a borrowed title from the content library to the downloads directory.
type Downloader struct {
	cfg      DownloadConfig
	notifier notifier.Notifier
}

func NewDownloader(cfg DownloadConfig, n notifier.Notifier) *Downloader {
	if n == nil {
		n = notifier.Noop{}
	}

	return &Downloader{cfg: cfg, notifier: n}
}

// Download triggers "download & transfer via USB" for entity and returns the path of the
// single file it produced.
func (d *Downloader) Download(ctx context.Context, s browser.Session, entity Entity, title string) (string, error) {
	logger := logctx.LoggerFromContext(ctx).With("title", title)

	if err := d.checkLoan(ctx, entity, title); err != nil {
		return "", err
	}

	before, err := TakeSnapshot(d.cfg.Dir, d.cfg.Ext)
	if err != nil {
		return "", err
	}

	pending, err := CountFiles(d.cfg.Dir, d.cfg.PartialExt)
	if err != nil {
		return "", err
	}

	if err := d.trigger(ctx, s, entity, title); err != nil {
		return "", err
	}

	if err := d.waitForDownloads(ctx, title, pending); err != nil {
		return "", err
	}

	after, err := TakeSnapshot(d.cfg.Dir, d.cfg.Ext)
	if err != nil {
		return "", err
	}

	path, err := VerifyDownload(before, after, title)
	if err != nil {
		logger.Error("unexpected download result", "new_files", len(NewFiles(before, after)), "err", err)

		return "", err
	}

	if info, err := os.Stat(path); err == nil {
		logger.Info("downloaded title", "path", path, "size", humanize.Bytes(uint64(info.Size())))
	} else {
		logger.Info("downloaded title", "path", path)
	}

	return path, nil
}

func (d *Downloader) checkLoan(ctx context.Context, entity Entity, title string) error {
	rows, err := entity.Element.FindAll(ctx, selInformationRow)
	if err != nil {
		return err
	}

	if len(rows) < 2 {
		return &NotLoanError{Title: title}
	}

	text, err := rows[1].Text(ctx)
	if err != nil {
		return err
	}

	if !strings.Contains(text, d.cfg.LoanMarker) {
		return &NotLoanError{Title: title}
	}

	return nil
}

func (d *Downloader) trigger(ctx context.Context, s browser.Session, entity Entity, title string) error {
	more, ok, err := entity.Element.Find(ctx, selMoreActions)
	if err != nil {
		return err
	}

	if !ok {
		return &MissingControlError{Control: "more actions", Title: title}
	}

	if err := more.Click(ctx); err != nil {
		return fmt.Errorf("failed to open actions menu: %w", err)
	}

	if err := pause(ctx, d.cfg.Timings.Menu); err != nil {
		return err
	}

	if ok, err := has(ctx, s, selDownloadAction); err != nil {
		return err
	} else if !ok {
		return &MissingControlError{Control: "download and transfer", Title: title}
	}

	action, ok, err := entity.Element.Find(ctx, selDownloadAction)
	if err != nil {
		return err
	}

	if !ok {
		return &MissingControlError{Control: "download and transfer", Title: title}
	}

	if err := action.Click(ctx); err != nil {
		return fmt.Errorf("failed to select download: %w", err)
	}

	if err := pause(ctx, d.cfg.Timings.Action); err != nil {
		return err
	}

	if err := d.selectDevice(ctx, s, title); err != nil {
		return err
	}

	if err := pause(ctx, d.cfg.Timings.Action); err != nil {
		return err
	}

	confirm, ok, err := s.Find(ctx, selDownloadConfirm)
	if err != nil {
		return err
	}

	if !ok {
		return &MissingControlError{Control: "download confirmation", Title: title}
	}

	if err := confirm.Click(ctx); err != nil {
		return fmt.Errorf("failed to confirm download: %w", err)
	}

	return nil
}

// selectDevice ticks the first listed device whose name contains the configured device name.
func (d *Downloader) selectDevice(ctx context.Context, s browser.Session, title string) error {
	logger := logctx.LoggerFromContext(ctx)

	list, ok, err := s.Find(ctx, selDeviceList)
	if err != nil {
		return err
	}

	if !ok {
		return &MissingControlError{Control: "device list", Title: title}
	}

	items, err := list.FindAll(ctx, "li")
	if err != nil {
		return err
	}

	var available []string

	for _, item := range items {
		divs, err := item.FindAll(ctx, "div")
		if err != nil {
			return err
		}

		if len(divs) < 2 {
			continue
		}

		name, err := divs[1].Text(ctx)
		if err != nil {
			return err
		}

		name = strings.TrimSpace(name)
		available = append(available, name)

		if !strings.Contains(name, d.cfg.DeviceName) {
			continue
		}

		radio, ok, err := item.Find(ctx, "input")
		if err != nil {
			return err
		}

		if !ok {
			return &MissingControlError{Control: "device selector", Title: title}
		}

		if err := radio.Click(ctx); err != nil {
			return fmt.Errorf("failed to select device %q: %w", name, err)
		}

		logger.Debug("selected device", "device", name)

		return nil
	}

	devErr := &DeviceNotFoundError{Device: d.cfg.DeviceName, Available: available}
	if d.cfg.RequireDevice {
		return devErr
	}

	logger.Warn("no matching device, continuing with page default", "err", devErr)

	if err := d.notifier.Notify(ctx, "ERROR: "+devErr.Error()); err != nil {
		logger.Error("failed to send notification", "err", err)
	}

	return nil
}

// waitForDownloads blocks until the number of in-progress files drops back to pending.
func (d *Downloader) waitForDownloads(ctx context.Context, title string, pending int) error {
	logger := logctx.LoggerFromContext(ctx)

	if err := pause(ctx, d.cfg.Timings.Settle); err != nil {
		return err
	}

	deadline := time.Now().Add(d.cfg.Timeout)

	for {
		n, err := CountFiles(d.cfg.Dir, d.cfg.PartialExt)
		if err != nil {
			return err
		}

		if n <= pending {
			return nil
		}

		if d.cfg.Timeout > 0 && !time.Now().Before(deadline) {
			return &DownloadTimeoutError{Title: title, Timeout: d.cfg.Timeout}
		}

		logger.Debug("waiting for download", "in_progress", n)

		if err := pause(ctx, d.cfg.Timings.Poll); err != nil {
			return err
		}
	}
}
