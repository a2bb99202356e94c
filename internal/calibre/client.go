// Package calibre drives the calibre command-line tools: calibredb for the catalog,
// ebook-convert for conversions and calibre-smtp for mail delivery.
package calibre

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/italolelis/loan_downloader/internal/cmdexec"
	"github.com/italolelis/loan_downloader/internal/logctx"
)

var bookIDPattern = regexp.MustCompile(`book ids?: (\d+)`)

// Option configures the client.
type Option func(*Client)

// WithCalibreDB overrides the calibredb executable.
func WithCalibreDB(binary string) Option {
	return func(c *Client) {
		if binary != "" {
			c.calibredb = binary
		}
	}
}

// WithEbookConvert overrides the ebook-convert executable.
func WithEbookConvert(binary string) Option {
	return func(c *Client) {
		if binary != "" {
			c.ebookConvert = binary
		}
	}
}

// WithOutputProfile sets the ebook-convert output profile.
func WithOutputProfile(profile string) Option {
	return func(c *Client) {
		if profile != "" {
			c.outputProfile = profile
		}
	}
}

// Client operates on a single calibre library.
type Client struct {
	runner        cmdexec.Runner
	library       string
	calibredb     string
	ebookConvert  string
	outputProfile string
}

func NewClient(runner cmdexec.Runner, libraryPath string, opts ...Option) *Client {
	c := &Client{
		runner:        runner,
		library:       libraryPath,
		calibredb:     "calibredb",
		ebookConvert:  "ebook-convert",
		outputProfile: "kindle_pw",
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// Import adds path to the library, overwriting an existing match, and returns the book id.
func (c *Client) Import(ctx context.Context, path string) (int64, error) {
	logger := logctx.LoggerFromContext(ctx)

	res, err := c.runner.Run(ctx, c.calibredb, "add", "--automerge=overwrite", path, "--with-library", c.library)
	if err != nil {
		return 0, &ImportError{Path: path, Output: res.Combined(), Err: err}
	}

	id, ok := ParseBookID(res.Stdout)
	if !ok {
		return 0, &ImportError{Path: path, Output: strings.TrimSpace(res.Combined())}
	}

	logger.Info("imported into library", "file", path, "catalog_id", id)

	return id, nil
}

// AddFormat attaches path as an additional format of book id.
func (c *Client) AddFormat(ctx context.Context, id int64, path string) error {
	if _, err := c.runner.Run(ctx, c.calibredb, "add_format", "--with-library", c.library, strconv.FormatInt(id, 10), path); err != nil {
		return &CommandError{Operation: "add_format", Err: err}
	}

	return nil
}

// Convert converts src to format next to it and returns the new path.
func (c *Client) Convert(ctx context.Context, src, format string) (string, error) {
	dst := SwapExt(src, format)

	if _, err := c.runner.Run(ctx, c.ebookConvert, src, dst, "--output-profile", c.outputProfile); err != nil {
		return "", &CommandError{Operation: "convert", Err: err}
	}

	return dst, nil
}

type listEntry struct {
	ID      int64    `json:"id"`
	Formats []string `json:"formats"`
}

// FormatPath returns the library path of book id's file in format.
func (c *Client) FormatPath(ctx context.Context, id int64, format string) (string, error) {
	res, err := c.runner.Run(ctx, c.calibredb,
		"list",
		"--with-library", c.library,
		"--search", fmt.Sprintf("id:%d", id),
		"--fields=formats",
		"--for-machine",
	)
	if err != nil {
		return "", &CommandError{Operation: "list", Err: err}
	}

	return parseFormatPath(res.Stdout, id, format)
}

func parseFormatPath(output string, id int64, format string) (string, error) {
	var entries []listEntry
	if err := json.Unmarshal([]byte(output), &entries); err != nil {
		return "", &CommandError{Operation: "list", Err: fmt.Errorf("unexpected output: %w", err)}
	}

	if len(entries) != 1 {
		return "", &MissingPathError{ID: id, Format: format, Reason: fmt.Sprintf("expected 1 entry, got %d", len(entries))}
	}

	want := "." + strings.TrimPrefix(strings.ToLower(format), ".")

	for _, p := range entries[0].Formats {
		if strings.ToLower(filepath.Ext(p)) == want {
			return p, nil
		}
	}

	return "", &MissingPathError{ID: id, Format: format, Reason: "format not in library"}
}

// ParseBookID extracts the id from calibredb add output ("Added book ids: 42").
func ParseBookID(output string) (int64, bool) {
	m := bookIDPattern.FindStringSubmatch(output)
	if m == nil {
		return 0, false
	}

	id, err := strconv.ParseInt(m[1], 10, 64)
	if err != nil {
		return 0, false
	}

	return id, true
}

// SwapExt replaces the extension of path with format.
func SwapExt(path, format string) string {
	return strings.TrimSuffix(path, filepath.Ext(path)) + "." + strings.TrimPrefix(format, ".")
}
