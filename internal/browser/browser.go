// Package browser defines the interactive page session the library automation drives and
// provides a Chromium implementation on top of rod.
package browser

import "context"

// Finder queries descendants without waiting for them to appear.
type Finder interface {
	// Find returns the first match, ok is false when nothing matches.
	Find(ctx context.Context, selector string) (el Element, ok bool, err error)
	// FindAll returns every match in document order.
	FindAll(ctx context.Context, selector string) ([]Element, error)
	// FindByText returns the first match whose visible text contains text.
	FindByText(ctx context.Context, selector, text string) (el Element, ok bool, err error)
}

// Element is a node of the rendered page.
type Element interface {
	Finder

	Text(ctx context.Context) (string, error)
	Value(ctx context.Context) (string, error)
	Click(ctx context.Context) error
	// Input replaces the element's value with text.
	Input(ctx context.Context, text string) error
	Parent(ctx context.Context) (Element, error)
}

// Session owns one browser process and one page.
type Session interface {
	Finder

	Navigate(ctx context.Context, url string) error
	// WaitNavigation arms a wait for the next navigation to settle. Call it before the action
	// that navigates, then call the returned function.
	WaitNavigation(ctx context.Context) func() error
	Close() error
}

// Provider opens a fresh session positioned on the content library page.
type Provider interface {
	Open(ctx context.Context) (Session, error)
}
