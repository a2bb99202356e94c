package storage

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLedger_NewTitles(t *testing.T) {
	ledger := Ledger{
		"Dune": {Title: "Dune", DownloadedAt: time.Now()},
	}

	got := ledger.NewTitles([]string{"Dune", "Emma", "Beloved", "Emma"})

	assert.Equal(t, []string{"Emma", "Beloved"}, got)
}

func TestLedger_NewTitlesIgnoresReturnedTitles(t *testing.T) {
	returned := time.Now()
	ledger := Ledger{
		"Dune": {Title: "Dune", DownloadedAt: returned.Add(-time.Hour), ReturnedAt: &returned},
	}

	assert.Empty(t, ledger.NewTitles([]string{"Dune"}))
}

func TestLedger_Add(t *testing.T) {
	ledger := Ledger{}
	rec := &TitleRecord{Title: "Dune", DownloadedAt: time.Now()}

	require.NoError(t, ledger.Add(rec))
	require.Error(t, ledger.Add(&TitleRecord{Title: "Dune"}))
	assert.Same(t, rec, ledger["Dune"])
}

func TestLedger_MarkReturned(t *testing.T) {
	downloaded := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name    string
		at      time.Time
		title   string
		wantErr error
	}{
		{name: "after download", title: "Dune", at: downloaded.Add(49 * time.Hour)},
		{name: "same instant", title: "Dune", at: downloaded, wantErr: ErrInvalidReturnTime},
		{name: "before download", title: "Dune", at: downloaded.Add(-time.Minute), wantErr: ErrInvalidReturnTime},
		{name: "unknown title", title: "Emma", at: downloaded.Add(time.Hour), wantErr: ErrNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ledger := Ledger{"Dune": {Title: "Dune", DownloadedAt: downloaded}}

			err := ledger.MarkReturned(tt.title, tt.at)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				assert.True(t, ledger["Dune"].Active())

				return
			}

			require.NoError(t, err)
			require.NotNil(t, ledger["Dune"].ReturnedAt)
			assert.True(t, ledger["Dune"].ReturnedAt.After(ledger["Dune"].DownloadedAt))
		})
	}
}

func TestLedger_MarkReturnedTwice(t *testing.T) {
	downloaded := time.Now().Add(-50 * time.Hour)
	ledger := Ledger{"Dune": {Title: "Dune", DownloadedAt: downloaded}}

	require.NoError(t, ledger.MarkReturned("Dune", time.Now()))
	require.ErrorIs(t, ledger.MarkReturned("Dune", time.Now()), ErrAlreadyReturned)
}

func TestLedger_ActiveOrdering(t *testing.T) {
	base := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	returned := base.Add(72 * time.Hour)

	ledger := Ledger{
		"Emma":    {Title: "Emma", DownloadedAt: base.Add(time.Hour)},
		"Beloved": {Title: "Beloved", DownloadedAt: base},
		"Dune":    {Title: "Dune", DownloadedAt: base, ReturnedAt: &returned},
		"Austen":  {Title: "Austen", DownloadedAt: base.Add(time.Hour)},
	}

	var titles []string
	for _, rec := range ledger.Active() {
		titles = append(titles, rec.Title)
	}

	assert.Equal(t, []string{"Beloved", "Austen", "Emma"}, titles)
	assert.Len(t, ledger.Sorted(), 4)
}

func TestTitleRecord_JSONOmitsAbsentOptionalFields(t *testing.T) {
	rec := TitleRecord{
		Title:        "Dune",
		DownloadedAt: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC),
		FilePath:     "/library/Dune.epub",
	}

	data, err := json.Marshal(rec)
	require.NoError(t, err)

	var raw map[string]any
	require.NoError(t, json.Unmarshal(data, &raw))
	assert.NotContains(t, raw, "catalog_id")
	assert.NotContains(t, raw, "returned_at")

	var back TitleRecord
	require.NoError(t, json.Unmarshal(data, &back))
	assert.Nil(t, back.CatalogID)
	assert.Nil(t, back.ReturnedAt)
	assert.True(t, rec.DownloadedAt.Equal(back.DownloadedAt))
}

func TestTitleRecord_UnmarshalLegacyID(t *testing.T) {
	data := []byte(`{"title":"Dune","downloaded_at":"2024-03-01T12:00:00.000Z","file_path":"/x.epub","id":42}`)

	var rec TitleRecord
	require.NoError(t, json.Unmarshal(data, &rec))

	require.NotNil(t, rec.CatalogID)
	assert.Equal(t, int64(42), *rec.CatalogID)
	assert.Equal(t, "Dune", rec.Title)
	assert.Equal(t, 2024, rec.DownloadedAt.Year())
}

func TestLedger_TimestampsStoredAsUTCMilliseconds(t *testing.T) {
	zone := time.FixedZone("CEST", 2*60*60)
	downloaded := time.Date(2026, 10, 19, 13, 4, 5, 123456789, zone)

	ledger := Ledger{}
	require.NoError(t, ledger.Add(&TitleRecord{Title: "Dune", DownloadedAt: downloaded, FilePath: "/x.epub"}))
	require.NoError(t, ledger.MarkReturned("Dune", downloaded.Add(48*time.Hour)))

	data, err := json.Marshal(ledger["Dune"])
	require.NoError(t, err)

	var raw map[string]any
	require.NoError(t, json.Unmarshal(data, &raw))
	assert.Equal(t, "2026-10-19T11:04:05.123Z", raw["downloaded_at"])
	assert.Equal(t, "2026-10-21T11:04:05.123Z", raw["returned_at"])
}

func TestLedger_MarkReturnedWithinSameMillisecond(t *testing.T) {
	downloaded := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	ledger := Ledger{}
	require.NoError(t, ledger.Add(&TitleRecord{Title: "Dune", DownloadedAt: downloaded}))

	err := ledger.MarkReturned("Dune", downloaded.Add(500*time.Microsecond))
	require.ErrorIs(t, err, ErrInvalidReturnTime)
}
