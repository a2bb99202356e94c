package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"
)

var (
	// ErrInvalidReturnTime is returned when a return timestamp is not after the download timestamp.
	ErrInvalidReturnTime = errors.New("returned_at must be after downloaded_at")
	// ErrAlreadyReturned is returned when marking a record that already carries returned_at.
	ErrAlreadyReturned = errors.New("title already returned")
	// ErrNotFound is returned when a title has no ledger entry.
	ErrNotFound = errors.New("title not found in ledger")
)

// TitleRecord is one ledger entry. A record without ReturnedAt is active.
type TitleRecord struct {
	Title        string     `json:"title"`
	DownloadedAt time.Time  `json:"downloaded_at"`
	FilePath     string     `json:"file_path"`
	CatalogID    *int64     `json:"catalog_id,omitempty"`
	ReturnedAt   *time.Time `json:"returned_at,omitempty"`
}

// UnmarshalJSON also accepts the legacy "id" key for the catalog id.
func (r *TitleRecord) UnmarshalJSON(data []byte) error {
	type plain TitleRecord

	aux := struct {
		*plain
		LegacyID *int64 `json:"id,omitempty"`
	}{plain: (*plain)(r)}

	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}

	if r.CatalogID == nil && aux.LegacyID != nil {
		r.CatalogID = aux.LegacyID
	}

	return nil
}

// Active reports whether the title is still on loan.
func (r *TitleRecord) Active() bool {
	return r.ReturnedAt == nil
}

// Ledger maps titles to their records.
type Ledger map[string]*TitleRecord

// NewTitles returns the loans with no ledger entry, in discovery order and without duplicates.
func (l Ledger) NewTitles(loans []string) []string {
	seen := make(map[string]struct{}, len(loans))

	var fresh []string

	for _, title := range loans {
		if _, ok := l[title]; ok {
			continue
		}

		if _, ok := seen[title]; ok {
			continue
		}

		seen[title] = struct{}{}
		fresh = append(fresh, title)
	}

	return fresh
}

// Add records a freshly acquired title. An existing entry is never overwritten.
func (l Ledger) Add(rec *TitleRecord) error {
	if _, ok := l[rec.Title]; ok {
		return fmt.Errorf("title %q already in ledger", rec.Title)
	}

	rec.DownloadedAt = normalizeTime(rec.DownloadedAt)
	l[rec.Title] = rec

	return nil
}

// MarkReturned sets returned_at for an active title.
func (l Ledger) MarkReturned(title string, at time.Time) error {
	rec, ok := l[title]
	if !ok {
		return ErrNotFound
	}

	if !rec.Active() {
		return ErrAlreadyReturned
	}

	at = normalizeTime(at)
	if !at.After(rec.DownloadedAt) {
		return ErrInvalidReturnTime
	}

	rec.ReturnedAt = &at

	return nil
}

// normalizeTime stores ledger timestamps in UTC with millisecond precision.
func normalizeTime(t time.Time) time.Time {
	return t.UTC().Truncate(time.Millisecond)
}

// Sorted returns the records ordered by download time, then title.
func (l Ledger) Sorted() []*TitleRecord {
	records := make([]*TitleRecord, 0, len(l))
	for _, rec := range l {
		records = append(records, rec)
	}

	sort.Slice(records, func(i, j int) bool {
		if !records[i].DownloadedAt.Equal(records[j].DownloadedAt) {
			return records[i].DownloadedAt.Before(records[j].DownloadedAt)
		}

		return records[i].Title < records[j].Title
	})

	return records
}

// Active returns the records without returned_at, in Sorted order.
func (l Ledger) Active() []*TitleRecord {
	var active []*TitleRecord

	for _, rec := range l.Sorted() {
		if rec.Active() {
			active = append(active, rec)
		}
	}

	return active
}

// Repository persists the whole ledger.
type Repository interface {
	Load(ctx context.Context) (Ledger, error)
	Save(ctx context.Context, ledger Ledger) error
}
