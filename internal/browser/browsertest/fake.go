// Package browsertest provides an in-memory page tree implementing the browser interfaces.
package browsertest

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/italolelis/loan_downloader/internal/browser"
)

// Element is a fake page node. Children are indexed by the selector that finds them, so a
// selector only matches what was registered under it with Add.
type Element struct {
	mu       sync.Mutex
	text     string
	value    string
	children map[string][]*Element
	parent   *Element

	Clicks  int
	OnClick func()
	OnInput func(string)
}

// NewElement returns a node with the given visible text.
func NewElement(text string) *Element {
	return &Element{text: text, children: make(map[string][]*Element)}
}

// Add registers kids under selector and makes e their parent.
func (e *Element) Add(selector string, kids ...*Element) *Element {
	e.mu.Lock()
	defer e.mu.Unlock()

	for _, k := range kids {
		k.parent = e
	}

	e.children[selector] = append(e.children[selector], kids...)

	return e
}

// SetParent overrides the node returned by Parent.
func (e *Element) SetParent(p *Element) *Element {
	e.parent = p

	return e
}

// SetValue sets the form value without firing OnInput.
func (e *Element) SetValue(v string) *Element {
	e.value = v

	return e
}

func (e *Element) Find(_ context.Context, selector string) (browser.Element, bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	kids := e.children[selector]
	if len(kids) == 0 {
		return nil, false, nil
	}

	return kids[0], true, nil
}

func (e *Element) FindAll(_ context.Context, selector string) ([]browser.Element, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	out := make([]browser.Element, 0, len(e.children[selector]))
	for _, k := range e.children[selector] {
		out = append(out, k)
	}

	return out, nil
}

func (e *Element) FindByText(ctx context.Context, selector, text string) (browser.Element, bool, error) {
	all, err := e.FindAll(ctx, selector)
	if err != nil {
		return nil, false, err
	}

	for _, el := range all {
		got, _ := el.Text(ctx)
		if strings.Contains(got, text) {
			return el, true, nil
		}
	}

	return nil, false, nil
}

func (e *Element) Text(context.Context) (string, error) {
	return e.text, nil
}

func (e *Element) Value(context.Context) (string, error) {
	return e.value, nil
}

func (e *Element) Click(context.Context) error {
	e.Clicks++

	if e.OnClick != nil {
		e.OnClick()
	}

	return nil
}

func (e *Element) Input(_ context.Context, text string) error {
	e.value = text

	if e.OnInput != nil {
		e.OnInput(text)
	}

	return nil
}

func (e *Element) Parent(context.Context) (browser.Element, error) {
	if e.parent == nil {
		return nil, errors.New("element has no parent")
	}

	return e.parent, nil
}

// Session is a fake browser session whose current page can be swapped by click handlers.
type Session struct {
	mu          sync.Mutex
	page        *Element
	Navigations []string
	Closed      bool
}

// NewSession returns a session showing page.
func NewSession(page *Element) *Session {
	return &Session{page: page}
}

// Show replaces the current page.
func (s *Session) Show(page *Element) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.page = page
}

func (s *Session) current() *Element {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.page
}

func (s *Session) Find(ctx context.Context, selector string) (browser.Element, bool, error) {
	return s.current().Find(ctx, selector)
}

func (s *Session) FindAll(ctx context.Context, selector string) ([]browser.Element, error) {
	return s.current().FindAll(ctx, selector)
}

func (s *Session) FindByText(ctx context.Context, selector, text string) (browser.Element, bool, error) {
	return s.current().FindByText(ctx, selector, text)
}

func (s *Session) Navigate(_ context.Context, url string) error {
	s.Navigations = append(s.Navigations, url)

	return nil
}

func (s *Session) WaitNavigation(ctx context.Context) func() error {
	return func() error { return ctx.Err() }
}

func (s *Session) Close() error {
	s.Closed = true

	return nil
}

// Provider hands out sessions built by NewPage, one per Open call.
type Provider struct {
	NewPage func() *Element
	Opened  []*Session
	Err     error
}

func (p *Provider) Open(context.Context) (browser.Session, error) {
	if p.Err != nil {
		return nil, p.Err
	}

	s := NewSession(p.NewPage())
	p.Opened = append(p.Opened, s)

	return s, nil
}
