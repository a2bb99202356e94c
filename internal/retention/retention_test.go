package retention

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/italolelis/loan_downloader/internal/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestShouldReturn(t *testing.T) {
	now := time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)
	keep := 48 * time.Hour

	tests := []struct {
		name         string
		downloadedAt time.Time
		want         bool
	}{
		{name: "49 hours ago", downloadedAt: now.Add(-49 * time.Hour), want: true},
		{name: "47 hours ago", downloadedAt: now.Add(-47 * time.Hour), want: false},
		{name: "exactly 48 hours ago", downloadedAt: now.Add(-48 * time.Hour), want: true},
		{name: "in the future", downloadedAt: now.Add(time.Hour), want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ShouldReturn(tt.downloadedAt, keep, now))
		})
	}
}

func TestDue(t *testing.T) {
	now := time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)
	returned := now.Add(-time.Hour)

	ledger := storage.Ledger{
		"Old":      {Title: "Old", DownloadedAt: now.Add(-72 * time.Hour)},
		"Boundary": {Title: "Boundary", DownloadedAt: now.Add(-48 * time.Hour)},
		"Fresh":    {Title: "Fresh", DownloadedAt: now.Add(-2 * time.Hour)},
		"Returned": {Title: "Returned", DownloadedAt: now.Add(-96 * time.Hour), ReturnedAt: &returned},
	}

	due := Due(context.Background(), ledger, 48*time.Hour, now)

	require.Len(t, due, 2)
	assert.Equal(t, "Old", due[0].Title)
	assert.Equal(t, "Boundary", due[1].Title)
}

func TestRemoveFiles(t *testing.T) {
	dir := t.TempDir()
	azw3 := filepath.Join(dir, "bookx.azw3")
	epub := filepath.Join(dir, "bookx.epub")

	require.NoError(t, os.WriteFile(azw3, []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(epub, []byte("x"), 0o644))

	require.NoError(t, RemoveFiles(context.Background(), azw3, epub, filepath.Join(dir, "missing.azw3"), ""))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}
