package browser

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"
	"github.com/italolelis/loan_downloader/internal/logctx"
)

// RodConfig configures the Chromium sessions.
type RodConfig struct {
	BrowserPath  string
	Headless     bool
	DownloadsDir string
	CookiesPath  string
	LibraryURL   string
	Width        int
	Height       int
}

// RodProvider launches a new Chromium process per session.
type RodProvider struct {
	cfg RodConfig
}

func NewRodProvider(cfg RodConfig) *RodProvider {
	if cfg.Width == 0 {
		cfg.Width = 1920
	}

	if cfg.Height == 0 {
		cfg.Height = 1080
	}

	return &RodProvider{cfg: cfg}
}

// Open launches the browser, restores cookies and navigates to the library page.
func (p *RodProvider) Open(ctx context.Context) (Session, error) {
	logger := logctx.LoggerFromContext(ctx)

	l := launcher.New().
		Context(ctx).
		Headless(p.cfg.Headless).
		Set("disable-blink-features", "AutomationControlled").
		Set("disable-dev-shm-usage").
		Set("no-sandbox").
		Set("window-size", fmt.Sprintf("%d,%d", p.cfg.Width, p.cfg.Height)).
		Set("lang", "en-US,en")

	if p.cfg.BrowserPath != "" {
		l = l.Bin(p.cfg.BrowserPath)
	}

	u, err := l.Launch()
	if err != nil {
		return nil, fmt.Errorf("failed to launch browser: %w", err)
	}

	b := rod.New().ControlURL(u)
	if err := b.Connect(); err != nil {
		l.Kill()
		l.Cleanup()

		return nil, fmt.Errorf("failed to connect to browser: %w", err)
	}

	s := &rodSession{launcher: l, browser: b}

	if err := s.setup(ctx, p.cfg); err != nil {
		if closeErr := s.Close(); closeErr != nil {
			logger.Debug("failed to close browser after setup error", "err", closeErr)
		}

		return nil, err
	}

	return s, nil
}

type rodSession struct {
	launcher *launcher.Launcher
	browser  *rod.Browser
	page     *rod.Page
}

func (s *rodSession) setup(ctx context.Context, cfg RodConfig) error {
	logger := logctx.LoggerFromContext(ctx)

	page, err := stealth.Page(s.browser)
	if err != nil {
		return fmt.Errorf("failed to create page: %w", err)
	}

	s.page = page

	if err := page.SetViewport(&proto.EmulationSetDeviceMetricsOverride{
		Width:  cfg.Width,
		Height: cfg.Height,
	}); err != nil {
		return fmt.Errorf("failed to set viewport: %w", err)
	}

	if cfg.DownloadsDir != "" {
		if err := (proto.BrowserSetDownloadBehavior{
			Behavior:     proto.BrowserSetDownloadBehaviorBehaviorAllow,
			DownloadPath: cfg.DownloadsDir,
		}).Call(s.browser); err != nil {
			return fmt.Errorf("failed to set download directory: %w", err)
		}
	}

	cookies, err := LoadCookies(cfg.CookiesPath)
	switch {
	case errors.Is(err, os.ErrNotExist):
		logger.Warn("no cookie jar, session starts signed out", "cookies_path", cfg.CookiesPath)
	case err != nil:
		return err
	default:
		if err := (proto.NetworkSetCookies{Cookies: cookies}).Call(page); err != nil {
			return fmt.Errorf("failed to restore cookies: %w", err)
		}

		logger.Debug("restored cookies", "count", len(cookies))
	}

	return s.Navigate(ctx, cfg.LibraryURL)
}

func (s *rodSession) Navigate(ctx context.Context, url string) error {
	page := s.page.Context(ctx)

	if err := page.Navigate(url); err != nil {
		return fmt.Errorf("failed to navigate to %s: %w", url, err)
	}

	if err := page.WaitLoad(); err != nil {
		return fmt.Errorf("failed to load %s: %w", url, err)
	}

	return nil
}

func (s *rodSession) WaitNavigation(ctx context.Context) func() error {
	wait := s.page.Context(ctx).WaitNavigation(proto.PageLifecycleEventNameNetworkAlmostIdle)

	return func() error {
		wait()

		return ctx.Err()
	}
}

func (s *rodSession) Find(ctx context.Context, selector string) (Element, bool, error) {
	ok, el, err := s.page.Context(ctx).Has(selector)
	if err != nil || !ok {
		return nil, false, err
	}

	return &rodElement{el: el}, true, nil
}

func (s *rodSession) FindAll(ctx context.Context, selector string) ([]Element, error) {
	els, err := s.page.Context(ctx).Elements(selector)
	if err != nil {
		return nil, err
	}

	return wrapElements(els), nil
}

func (s *rodSession) FindByText(ctx context.Context, selector, text string) (Element, bool, error) {
	return findByText(ctx, s, selector, text)
}

// Close shuts the browser down and removes its profile directory.
func (s *rodSession) Close() error {
	err := s.browser.Close()

	s.launcher.Kill()
	s.launcher.Cleanup()

	return err
}

type rodElement struct {
	el *rod.Element
}

func (e *rodElement) Find(ctx context.Context, selector string) (Element, bool, error) {
	ok, el, err := e.el.Context(ctx).Has(selector)
	if err != nil || !ok {
		return nil, false, err
	}

	return &rodElement{el: el}, true, nil
}

func (e *rodElement) FindAll(ctx context.Context, selector string) ([]Element, error) {
	els, err := e.el.Context(ctx).Elements(selector)
	if err != nil {
		return nil, err
	}

	return wrapElements(els), nil
}

func (e *rodElement) FindByText(ctx context.Context, selector, text string) (Element, bool, error) {
	return findByText(ctx, e, selector, text)
}

func (e *rodElement) Text(ctx context.Context) (string, error) {
	return e.el.Context(ctx).Text()
}

func (e *rodElement) Value(ctx context.Context) (string, error) {
	v, err := e.el.Context(ctx).Property("value")
	if err != nil {
		return "", err
	}

	if v.Nil() {
		return "", nil
	}

	return v.String(), nil
}

func (e *rodElement) Click(ctx context.Context) error {
	return e.el.Context(ctx).Click(proto.InputMouseButtonLeft, 1)
}

// Input selects the current value first so the typed text replaces it.
func (e *rodElement) Input(ctx context.Context, text string) error {
	el := e.el.Context(ctx)

	if err := el.SelectAllText(); err != nil {
		return fmt.Errorf("failed to clear input: %w", err)
	}

	return el.Input(text)
}

func (e *rodElement) Parent(ctx context.Context) (Element, error) {
	parent, err := e.el.Context(ctx).Parent()
	if err != nil {
		return nil, err
	}

	return &rodElement{el: parent}, nil
}

func wrapElements(els rod.Elements) []Element {
	out := make([]Element, 0, len(els))
	for _, el := range els {
		out = append(out, &rodElement{el: el})
	}

	return out
}

func findByText(ctx context.Context, f Finder, selector, text string) (Element, bool, error) {
	candidates, err := f.FindAll(ctx, selector)
	if err != nil {
		return nil, false, err
	}

	for _, c := range candidates {
		got, err := c.Text(ctx)
		if err != nil {
			return nil, false, err
		}

		if strings.Contains(got, text) {
			return c, true, nil
		}
	}

	return nil, false, nil
}
