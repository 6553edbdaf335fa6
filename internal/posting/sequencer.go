package posting

import (
	"context"
	"fmt"

	"github.com/cleared-dev/ledger/internal/store"
)

// NextNumber allocates max+1 as the transaction number inside the caller's
// unit of work. Max also covers numbers freed by deletes. Two units may compute
// the same number; the store's unique constraint rejects the loser and the
// engine retries.
func NextNumber(ctx context.Context, tx store.Tx) (int64, error) {
	max, err := tx.MaxTransactionNumber(ctx)
	if err != nil {
		return 0, fmt.Errorf("reading max transaction number: %w", err)
	}
	return max + 1, nil
}

func isNumberCollision(err error) bool {
	return store.IsConstraint(err, store.ConstraintTransactionNumber)
}
