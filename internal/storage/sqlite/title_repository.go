package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/italolelis/loan_downloader/internal/storage"
)

// TitleRepository implements storage.Repository on a titles table.
type TitleRepository struct {
	db *sql.DB
}

func NewTitleRepository(dbConn *sql.DB) *TitleRepository {
	return &TitleRepository{db: dbConn}
}

func (r *TitleRepository) Load(ctx context.Context) (storage.Ledger, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT title, downloaded_at, file_path, catalog_id, returned_at FROM titles`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	ledger := storage.Ledger{}

	for rows.Next() {
		var (
			rec          storage.TitleRecord
			downloadedAt string
			catalogID    sql.NullInt64
			returnedAt   sql.NullString
		)

		if err := rows.Scan(&rec.Title, &downloadedAt, &rec.FilePath, &catalogID, &returnedAt); err != nil {
			return nil, err
		}

		rec.DownloadedAt, err = time.Parse(time.RFC3339Nano, downloadedAt)
		if err != nil {
			return nil, fmt.Errorf("invalid downloaded_at for %q: %w", rec.Title, err)
		}

		if catalogID.Valid {
			id := catalogID.Int64
			rec.CatalogID = &id
		}

		if returnedAt.Valid {
			at, err := time.Parse(time.RFC3339Nano, returnedAt.String)
			if err != nil {
				return nil, fmt.Errorf("invalid returned_at for %q: %w", rec.Title, err)
			}

			rec.ReturnedAt = &at
		}

		ledger[rec.Title] = &rec
	}

	return ledger, rows.Err()
}

// Save upserts every record in one transaction. Ledger entries are never deleted.
func (r *TitleRepository) Save(ctx context.Context, ledger storage.Ledger) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback() //nolint:errcheck

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO titles (title, downloaded_at, file_path, catalog_id, returned_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(title) DO UPDATE SET
			downloaded_at = excluded.downloaded_at,
			file_path = excluded.file_path,
			catalog_id = excluded.catalog_id,
			returned_at = excluded.returned_at
	`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, rec := range ledger.Sorted() {
		var catalogID sql.NullInt64
		if rec.CatalogID != nil {
			catalogID = sql.NullInt64{Int64: *rec.CatalogID, Valid: true}
		}

		var returnedAt sql.NullString
		if rec.ReturnedAt != nil {
			returnedAt = sql.NullString{String: rec.ReturnedAt.UTC().Format(time.RFC3339Nano), Valid: true}
		}

		if _, err := stmt.ExecContext(ctx,
			rec.Title,
			rec.DownloadedAt.UTC().Format(time.RFC3339Nano),
			rec.FilePath,
			catalogID,
			returnedAt,
		); err != nil {
			return fmt.Errorf("failed to save %q: %w", rec.Title, err)
		}
	}

	return tx.Commit()
}
