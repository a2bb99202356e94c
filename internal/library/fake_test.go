package library

import (
	"context"
	"sync"

	"github.com/italolelis/loan_downloader/internal/browser/browsertest"
)

type recordingNotifier struct {
	mu       sync.Mutex
	messages []string
}

func (n *recordingNotifier) Notify(_ context.Context, content string) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	n.messages = append(n.messages, content)

	return nil
}

func libraryPage() *browsertest.Element {
	return browsertest.NewElement("").
		Add(selEntityDetails, browsertest.NewElement("")).
		Add(selInformationRow, browsertest.NewElement(""))
}

func entityElement(title string) *browsertest.Element {
	return browsertest.NewElement("").Add(selEntityTitle, browsertest.NewElement("  "+title+"\n"))
}
