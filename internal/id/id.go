package id

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/cleared-dev/ledger/internal/model"
)

// CodeStep is the gap left between consecutively allocated account codes.
const CodeStep = 10

// TransactionPrefix precedes a formatted transaction number.
const TransactionPrefix = "TXN-"

// CodeRange returns the inclusive code range reserved for an account type:
// 1000-1999 for assets, 2000-2999 for liabilities and so on.
func CodeRange(t model.AccountType) (lo, hi int, err error) {
	switch t {
	case model.AccountTypeAsset:
		return 1000, 1999, nil
	case model.AccountTypeLiability:
		return 2000, 2999, nil
	case model.AccountTypeCapital:
		return 3000, 3999, nil
	case model.AccountTypeRevenue:
		return 4000, 4999, nil
	case model.AccountTypeExpense:
		return 5000, 5999, nil
	}
	return 0, 0, fmt.Errorf("no code range for account type %q", t)
}

// NextAccountCode returns the code following maxInRange, the highest code
// already allocated within the type's range (0 when none). Codes are never
// reused: a gap left by a deactivated account stays a gap.
func NextAccountCode(t model.AccountType, maxInRange int) (int, error) {
	lo, hi, err := CodeRange(t)
	if err != nil {
		return 0, err
	}
	next := lo + CodeStep
	if maxInRange >= lo {
		next = maxInRange + CodeStep
	}
	if next > hi {
		return 0, fmt.Errorf("account code range %d-%d for %s is exhausted", lo, hi, t)
	}
	return next, nil
}

// TypeForCode reports which account type owns a code.
func TypeForCode(code int) (model.AccountType, bool) {
	for _, t := range model.AccountTypes {
		lo, hi, _ := CodeRange(t)
		if code >= lo && code <= hi {
			return t, true
		}
	}
	return "", false
}

// FormatTransactionNumber returns a display number like "TXN-000042".
func FormatTransactionNumber(n int64) string {
	return fmt.Sprintf("%s%06d", TransactionPrefix, n)
}

// ParseTransactionNumber accepts "TXN-000042" or a bare "42".
func ParseTransactionNumber(s string) (int64, error) {
	raw := strings.TrimPrefix(strings.TrimSpace(s), TransactionPrefix)
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid transaction number %q: %w", s, err)
	}
	if n <= 0 {
		return 0, fmt.Errorf("invalid transaction number %q: must be positive", s)
	}
	return n, nil
}
