package storage

import (
	"context"

	"github.com/italolelis/loan_downloader/internal/telemetry"
)

// InstrumentedRepository wraps a Repository with telemetry.
type InstrumentedRepository struct {
	repo      Repository
	telemetry *telemetry.Telemetry
}

func NewInstrumentedRepository(repo Repository, tel *telemetry.Telemetry) *InstrumentedRepository {
	return &InstrumentedRepository{
		repo:      repo,
		telemetry: tel,
	}
}

func (r *InstrumentedRepository) Load(ctx context.Context) (Ledger, error) {
	var result Ledger

	err := r.telemetry.InstrumentLedgerOperation(ctx, "load", func(ctx context.Context) error {
		var err error

		result, err = r.repo.Load(ctx)

		return err
	})
	if err != nil {
		return nil, err
	}

	r.telemetry.RecordActiveLoans(len(result.Active()))

	return result, nil
}

func (r *InstrumentedRepository) Save(ctx context.Context, ledger Ledger) error {
	err := r.telemetry.InstrumentLedgerOperation(ctx, "save", func(ctx context.Context) error {
		return r.repo.Save(ctx, ledger)
	})
	if err != nil {
		return err
	}

	r.telemetry.RecordActiveLoans(len(ledger.Active()))

	return nil
}
