package service

import (
	"context"
	"errors"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

// txRunner abstracts repository.TxManager so services can be unit tested
// without a live database.
type txRunner interface {
	RunInTx(ctx context.Context, fn func(tx *sqlx.Tx) error) error
}

// Postgres error codes worth one more attempt: serialization failure and
// deadlock detected.
func isRetryableTxError(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "40001" || pqErr.Code == "40P01"
	}
	return false
}

// runEngineTx executes the transaction, retrying conflicts up to maxRetries
// times. Unbounded retry is deliberately avoided; persistent conflicts are
// surfaced to the caller.
func runEngineTx(ctx context.Context, runner txRunner, metrics *MetricsService, maxRetries int, fn func(tx *sqlx.Tx) error) error {
	if maxRetries < 0 {
		maxRetries = 0
	}
	var err error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if attempt > 0 && metrics != nil {
			metrics.CountTxRetry()
		}
		err = runner.RunInTx(ctx, fn)
		if err == nil || !isRetryableTxError(err) {
			return err
		}
	}
	return err
}
