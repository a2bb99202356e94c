package library

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/italolelis/loan_downloader/internal/browser/browsertest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type downloadFixture struct {
	dir     string
	session *browsertest.Session
	entity  Entity
	radio   *browsertest.Element
	confirm *browsertest.Element
}

// newDownloadFixture builds a library page whose confirm button runs onConfirm.
func newDownloadFixture(t *testing.T, loanText string, devices ...string) *downloadFixture {
	t.Helper()

	f := &downloadFixture{dir: t.TempDir()}

	action := browsertest.NewElement("Download & transfer via USB")
	entityEl := entityElement("Book X").
		Add(selInformationRow, browsertest.NewElement("Book X"), browsertest.NewElement(loanText)).
		Add(selMoreActions, browsertest.NewElement("More actions")).
		Add(selDownloadAction, action)

	list := browsertest.NewElement("")
	for i, name := range devices {
		radio := browsertest.NewElement("")
		li := browsertest.NewElement("").
			Add("div", browsertest.NewElement(""), browsertest.NewElement(name)).
			Add("input", radio)
		list.Add("li", li)

		if i == 0 {
			f.radio = radio
		}
	}

	f.confirm = browsertest.NewElement("Download")

	page := libraryPage().
		Add(selEntity, entityEl).
		Add(selDownloadAction, action).
		Add(selDeviceList, list).
		Add(selDownloadConfirm, f.confirm)

	f.session = browsertest.NewSession(page)
	f.entity = Entity{Element: entityEl, Title: "Book X"}

	return f
}

func (f *downloadFixture) write(t *testing.T, name string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(f.dir, name), []byte("ebook"), 0o600))
}

func (f *downloadFixture) downloader(n *recordingNotifier, mutate ...func(*DownloadConfig)) *Downloader {
	cfg := DownloadConfig{
		Dir:           f.dir,
		Ext:           ".azw3",
		PartialExt:    ".crdownload",
		DeviceName:    "Paperwhite",
		RequireDevice: true,
		LoanMarker:    "is a Kindle digital library loan",
		Timeout:       time.Second,
		Timings:       Timings{Poll: time.Millisecond},
	}

	for _, m := range mutate {
		m(&cfg)
	}

	return NewDownloader(cfg, n)
}

const loanRow = "This title is a Kindle digital library loan"

func TestDownload_HappyPath(t *testing.T) {
	f := newDownloadFixture(t, loanRow, "Kindle Oasis", "Reader's Kindle Paperwhite")
	f.write(t, "Old.azw3")
	f.confirm.OnClick = func() { f.write(t, "BookX.azw3") }

	path, err := f.downloader(&recordingNotifier{}).Download(context.Background(), f.session, f.entity, "Book X")

	require.NoError(t, err)
	assert.Equal(t, filepath.Join(f.dir, "BookX.azw3"), path)
	assert.Equal(t, 1, f.confirm.Clicks)
}

func TestDownload_SelectsOnlyFirstMatchingDevice(t *testing.T) {
	f := newDownloadFixture(t, loanRow, "Kindle Paperwhite", "Kindle Paperwhite (2)")
	f.confirm.OnClick = func() { f.write(t, "BookX.azw3") }

	_, err := f.downloader(&recordingNotifier{}).Download(context.Background(), f.session, f.entity, "Book X")
	require.NoError(t, err)

	assert.Equal(t, 1, f.radio.Clicks)
}

func TestDownload_WaitsForPartialFiles(t *testing.T) {
	f := newDownloadFixture(t, loanRow, "Kindle Paperwhite")

	partial := filepath.Join(f.dir, "BookX.azw3.crdownload")
	f.confirm.OnClick = func() {
		require.NoError(t, os.WriteFile(partial, []byte("e"), 0o600))

		go func() {
			time.Sleep(20 * time.Millisecond)
			_ = os.Rename(partial, filepath.Join(f.dir, "BookX.azw3"))
		}()
	}

	path, err := f.downloader(&recordingNotifier{}).Download(context.Background(), f.session, f.entity, "Book X")

	require.NoError(t, err)
	assert.Equal(t, filepath.Join(f.dir, "BookX.azw3"), path)
}

func TestDownload_NotALoan(t *testing.T) {
	f := newDownloadFixture(t, "Purchased on March 1, 2024", "Kindle Paperwhite")

	_, err := f.downloader(&recordingNotifier{}).Download(context.Background(), f.session, f.entity, "Book X")

	var notLoan *NotLoanError
	require.ErrorAs(t, err, &notLoan)
	assert.Equal(t, 0, f.confirm.Clicks)
}

func TestDownload_MissingLoanRowIsNotALoan(t *testing.T) {
	f := newDownloadFixture(t, loanRow, "Kindle Paperwhite")
	f.entity.Element = entityElement("Book X").
		Add(selInformationRow, browsertest.NewElement("Book X")).
		Add(selMoreActions, browsertest.NewElement("More actions"))

	_, err := f.downloader(&recordingNotifier{}).Download(context.Background(), f.session, f.entity, "Book X")

	var notLoan *NotLoanError
	require.ErrorAs(t, err, &notLoan)
	assert.Equal(t, "Book X", notLoan.Title)
	assert.Equal(t, 0, f.confirm.Clicks)
}

func TestDownload_MissingMoreActions(t *testing.T) {
	f := newDownloadFixture(t, loanRow, "Kindle Paperwhite")
	f.entity.Element = entityElement("Book X").
		Add(selInformationRow, browsertest.NewElement(""), browsertest.NewElement(loanRow))

	_, err := f.downloader(&recordingNotifier{}).Download(context.Background(), f.session, f.entity, "Book X")

	var missing *MissingControlError
	require.ErrorAs(t, err, &missing)
	assert.Equal(t, "more actions", missing.Control)
}

func TestDownload_DeviceNotFound(t *testing.T) {
	f := newDownloadFixture(t, loanRow, "Kindle Oasis", "Kindle Scribe")

	_, err := f.downloader(&recordingNotifier{}).Download(context.Background(), f.session, f.entity, "Book X")

	var devErr *DeviceNotFoundError
	require.ErrorAs(t, err, &devErr)
	assert.Equal(t, []string{"Kindle Oasis", "Kindle Scribe"}, devErr.Available)
	assert.Equal(t, 0, f.confirm.Clicks)
}

func TestDownload_DeviceNotFoundTolerated(t *testing.T) {
	f := newDownloadFixture(t, loanRow, "Kindle Oasis")
	f.confirm.OnClick = func() { f.write(t, "BookX.azw3") }

	n := &recordingNotifier{}
	d := f.downloader(n, func(c *DownloadConfig) { c.RequireDevice = false })

	_, err := d.Download(context.Background(), f.session, f.entity, "Book X")

	require.NoError(t, err)
	require.Len(t, n.messages, 1)
	assert.Contains(t, n.messages[0], "Paperwhite")
}

func TestDownload_NothingDownloaded(t *testing.T) {
	f := newDownloadFixture(t, loanRow, "Kindle Paperwhite")

	_, err := f.downloader(&recordingNotifier{}).Download(context.Background(), f.session, f.entity, "Book X")

	var countErr *DownloadCountError
	require.ErrorAs(t, err, &countErr)
	assert.Equal(t, 0, countErr.Count)
}

func TestDownload_Timeout(t *testing.T) {
	f := newDownloadFixture(t, loanRow, "Kindle Paperwhite")
	f.confirm.OnClick = func() { f.write(t, "BookX.azw3.crdownload") }

	d := f.downloader(&recordingNotifier{}, func(c *DownloadConfig) { c.Timeout = 30 * time.Millisecond })

	_, err := d.Download(context.Background(), f.session, f.entity, "Book X")

	var timeoutErr *DownloadTimeoutError
	require.ErrorAs(t, err, &timeoutErr)
	assert.Equal(t, "Book X", timeoutErr.Title)
}

func TestDownload_PreexistingPartialsDoNotBlock(t *testing.T) {
	f := newDownloadFixture(t, loanRow, "Kindle Paperwhite")
	f.write(t, "stale.crdownload")
	f.confirm.OnClick = func() { f.write(t, "BookX.azw3") }

	d := f.downloader(&recordingNotifier{}, func(c *DownloadConfig) { c.Timeout = 30 * time.Millisecond })

	_, err := d.Download(context.Background(), f.session, f.entity, "Book X")
	require.NoError(t, err)
}
