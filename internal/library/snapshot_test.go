package library

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func snap(paths ...string) Snapshot {
	s := Snapshot{}
	for _, p := range paths {
		s[p] = struct{}{}
	}

	return s
}

func TestVerifyDownload(t *testing.T) {
	got, err := VerifyDownload(snap("A"), snap("A", "B"), "Dune")
	require.NoError(t, err)
	assert.Equal(t, "B", got)

	_, err = VerifyDownload(snap("A"), snap("A"), "Dune")

	var countErr *DownloadCountError
	require.ErrorAs(t, err, &countErr)
	assert.Equal(t, 0, countErr.Count)
	assert.Contains(t, err.Error(), "failed to download")

	_, err = VerifyDownload(snap("A"), snap("A", "B", "C"), "Dune")
	require.ErrorAs(t, err, &countErr)
	assert.Equal(t, 2, countErr.Count)
	assert.Equal(t, []string{"B", "C"}, countErr.Files)
	assert.Contains(t, err.Error(), "downloaded too many books somehow")
}

func TestTakeSnapshot(t *testing.T) {
	dir := t.TempDir()

	for _, name := range []string{"a.azw3", "b.AZW3", "c.crdownload", "notes.txt"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("x"), 0o600))
	}

	require.NoError(t, os.Mkdir(filepath.Join(dir, "dir.azw3"), 0o700))

	got, err := TakeSnapshot(dir, ".azw3")
	require.NoError(t, err)
	assert.Equal(t, snap(filepath.Join(dir, "a.azw3"), filepath.Join(dir, "b.AZW3")), got)

	n, err := CountFiles(dir, ".crdownload")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestTakeSnapshot_MissingDir(t *testing.T) {
	_, err := TakeSnapshot(filepath.Join(t.TempDir(), "missing"), ".azw3")
	require.Error(t, err)
}
