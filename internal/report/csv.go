package report

import (
	"encoding/csv"
	"fmt"
	"io"
	"strings"

	"github.com/cleared-dev/ledger/internal/id"
	"github.com/cleared-dev/ledger/internal/model"
)

// LedgerHeader is the CSV header written by WriteLedgerCSV.
const LedgerHeader = "date,transaction_number,description,reference,debit,credit,balance_effect,running_balance"

// WriteLedgerCSV writes the opening balance, every ledger line and the closing
// balance. Amounts are fixed to 2 decimal places.
func WriteLedgerCSV(w io.Writer, l Ledger) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(strings.Split(LedgerHeader, ",")); err != nil {
		return fmt.Errorf("writing header: %w", err)
	}

	start := ""
	if l.Period != nil {
		start = l.Period.Start
	}
	if err := cw.Write([]string{start, "", "Opening balance", "", "", "", "", l.OpeningBalance.StringFixed(2)}); err != nil {
		return fmt.Errorf("writing opening balance: %w", err)
	}

	for i, line := range l.Lines {
		row := []string{
			model.FormatDate(line.Date),
			id.FormatTransactionNumber(line.TransactionNumber),
			line.Description,
			line.Reference,
			blankZero(line.Debit.StringFixed(2)),
			blankZero(line.Credit.StringFixed(2)),
			line.BalanceEffect.StringFixed(2),
			line.RunningBalance.StringFixed(2),
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("writing line %d: %w", i+1, err)
		}
	}

	end := ""
	if l.Period != nil {
		end = l.Period.End
	}
	if err := cw.Write([]string{end, "", "Closing balance", "", "", "", "", l.ClosingBalance.StringFixed(2)}); err != nil {
		return fmt.Errorf("writing closing balance: %w", err)
	}
	cw.Flush()
	return cw.Error()
}

func blankZero(s string) string {
	if s == "0.00" {
		return ""
	}
	return s
}

