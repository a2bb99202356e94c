// Package loans discovers the titles currently borrowed through Libby via the odmpy CLI.
package loans

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/italolelis/loan_downloader/internal/cmdexec"
	"github.com/italolelis/loan_downloader/internal/logctx"
	"github.com/italolelis/loan_downloader/internal/notifier"
)

// reauthMarker appears in odmpy output when the Libby setup code has expired.
const reauthMarker = "chip/sync"

// Discoverer lists the titles of current loans in discovery order.
type Discoverer interface {
	Loans(ctx context.Context) ([]string, error)
}

// LoanParseError is returned when the exported loan list cannot be read or decoded.
type LoanParseError struct {
	Path string
	Err  error
}

func (e *LoanParseError) Error() string {
	return fmt.Sprintf("failed to parse loans from %s: %v", e.Path, e.Err)
}

func (e *LoanParseError) Unwrap() error {
	return e.Err
}

type loan struct {
	Title     string `json:"title"`
	SortTitle string `json:"sortTitle"`
	Formats   []struct {
		ID string `json:"id"`
	} `json:"formats"`
}

func (l loan) hasFormat(id string) bool {
	for _, f := range l.Formats {
		if f.ID == id {
			return true
		}
	}

	return false
}

func (l loan) name() string {
	if l.Title != "" {
		return l.Title
	}

	return l.SortTitle
}

// Option configures the odmpy client.
type Option func(*OdmpyClient)

// WithBinary overrides the odmpy executable.
func WithBinary(binary string) Option {
	return func(c *OdmpyClient) {
		if binary != "" {
			c.binary = binary
		}
	}
}

// WithFormat sets the format id a loan must offer to be acquired.
func WithFormat(format string) Option {
	return func(c *OdmpyClient) {
		if format != "" {
			c.format = format
		}
	}
}

// OdmpyClient exports loans with `odmpy libby --ebooks --exportloans`.
type OdmpyClient struct {
	runner     cmdexec.Runner
	notifier   notifier.Notifier
	binary     string
	exportPath string
	format     string
}

func NewOdmpyClient(runner cmdexec.Runner, notif notifier.Notifier, exportPath string, opts ...Option) *OdmpyClient {
	c := &OdmpyClient{
		runner:     runner,
		notifier:   notif,
		binary:     "odmpy",
		exportPath: exportPath,
		format:     "ebook-kindle",
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// Loans returns the titles offering the configured format. A failing CLI yields an empty list;
// an expired Libby setup additionally resets odmpy and asks for a new code. Only an unreadable
// export is an error.
func (c *OdmpyClient) Loans(ctx context.Context) ([]string, error) {
	logger := logctx.LoggerFromContext(ctx)

	res, err := c.runner.Run(ctx, c.binary, "libby", "--ebooks", "--exportloans", c.exportPath)
	if err != nil {
		logger.Error("failed to export loans", "err", err)

		if strings.Contains(res.Combined(), reauthMarker) {
			c.reauthenticate(ctx)
		}

		return nil, nil
	}

	data, err := os.ReadFile(c.exportPath)
	if err != nil {
		return nil, &LoanParseError{Path: c.exportPath, Err: err}
	}

	titles, err := ParseLoans(data, c.format)
	if err != nil {
		return nil, &LoanParseError{Path: c.exportPath, Err: err}
	}

	logger.Info("loans discovered", "count", len(titles))

	return titles, nil
}

func (c *OdmpyClient) reauthenticate(ctx context.Context) {
	logger := logctx.LoggerFromContext(ctx)

	logger.Warn("libby authorisation expired, resetting odmpy")

	if _, err := c.runner.Run(ctx, c.binary, "libby", "--reset"); err != nil {
		logger.Error("failed to reset odmpy", "err", err)
	}

	if err := c.notifier.Notify(ctx, "new Libby code required"); err != nil {
		logger.Error("failed to send notification", "err", err)
	}

	if _, err := c.runner.Run(ctx, c.binary, "libby"); err != nil {
		logger.Error("odmpy setup did not complete", "err", err)
	}
}

// ParseLoans decodes an odmpy loan export and returns the titles offering format.
func ParseLoans(data []byte, format string) ([]string, error) {
	var loans []loan
	if err := json.Unmarshal(data, &loans); err != nil {
		return nil, err
	}

	var titles []string

	for _, l := range loans {
		if !l.hasFormat(format) {
			continue
		}

		if name := l.name(); name != "" {
			titles = append(titles, name)
		}
	}

	return titles, nil
}
