package library

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// Snapshot is the set of file paths in a directory with a given extension.
type Snapshot map[string]struct{}

// TakeSnapshot lists the files in dir whose name ends in ext, ignoring case.
func TakeSnapshot(dir, ext string) (Snapshot, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", dir, err)
	}

	snap := make(Snapshot)

	for _, e := range entries {
		if e.IsDir() || !hasExt(e.Name(), ext) {
			continue
		}

		snap[filepath.Join(dir, e.Name())] = struct{}{}
	}

	return snap, nil
}

func hasExt(name, ext string) bool {
	return len(name) >= len(ext) && strings.EqualFold(name[len(name)-len(ext):], ext)
}

// CountFiles counts the files in dir whose name ends in ext.
func CountFiles(dir, ext string) (int, error) {
	snap, err := TakeSnapshot(dir, ext)
	if err != nil {
		return 0, err
	}

	return len(snap), nil
}

// NewFiles returns the sorted paths present in after but not in before.
func NewFiles(before, after Snapshot) []string {
	var added []string

	for p := range after {
		if _, ok := before[p]; !ok {
			added = append(added, p)
		}
	}

	sort.Strings(added)

	return added
}

// VerifyDownload returns the single file a download added, or a *DownloadCountError.
func VerifyDownload(before, after Snapshot, title string) (string, error) {
	added := NewFiles(before, after)
	if len(added) != 1 {
		return "", &DownloadCountError{Title: title, Count: len(added), Files: added}
	}

	return added[0], nil
}
