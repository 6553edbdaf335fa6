package commands

import (
	"fmt"
	"io"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/cleared-dev/ledger/internal/id"
	"github.com/cleared-dev/ledger/internal/model"
	"github.com/cleared-dev/ledger/internal/report"
	"github.com/cleared-dev/ledger/internal/store"
)

func (c *cli) newReportCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "report",
		Aliases: []string{"reports"},
		Short:   "Financial statements and integrity checks",
	}
	cmd.AddCommand(
		c.newBalanceSheetCommand(),
		c.newIncomeStatementCommand(),
		c.newLedgerCommand(),
		c.newEquationCommand(),
		c.newVerifyCommand(),
	)
	return cmd
}

func periodFlags(cmd *cobra.Command, start, end *string) {
	cmd.Flags().StringVar(start, "start", "", "first date, inclusive (DD/MM/YYYY)")
	cmd.Flags().StringVar(end, "end", "", "last date, inclusive (DD/MM/YYYY)")
}

func writeGroup(tw io.Writer, title string, lines []report.AccountBalance) {
	fmt.Fprintf(tw, "%s\t\t\n", title)
	for _, l := range lines {
		fmt.Fprintf(tw, "  %d\t%s\t%s\n", l.Code, l.Name, money(l.Balance))
	}
}

func (c *cli) newBalanceSheetCommand() *cobra.Command {
	var start, end string
	cmd := &cobra.Command{
		Use:   "balance-sheet",
		Short: "Assets, liabilities and capital",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := model.ParseDateRange(start, end)
			if err != nil {
				return err
			}
			a, err := c.open(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			var bs report.BalanceSheet
			if r.IsZero() {
				bs, err = a.reports.BalanceSheet(cmd.Context())
			} else {
				bs, err = a.reports.BalanceSheetForPeriod(cmd.Context(), r)
			}
			if err != nil {
				return err
			}
			if c.jsonOut {
				return c.printJSON(cmd, bs)
			}

			tw := table(cmd.OutOrStdout())
			writeGroup(tw, "ASSETS", bs.Assets)
			fmt.Fprintf(tw, "Total assets\t\t%s\n", money(bs.TotalAssets))
			writeGroup(tw, "LIABILITIES", bs.Liabilities)
			fmt.Fprintf(tw, "Total liabilities\t\t%s\n", money(bs.TotalLiabilities))
			writeGroup(tw, "CAPITAL", bs.Capital)
			fmt.Fprintf(tw, "  \tNet income\t%s\n", money(bs.NetIncome))
			fmt.Fprintf(tw, "Total capital\t\t%s\n", money(bs.TotalCapital.Add(bs.NetIncome)))
			fmt.Fprintf(tw, "Total liabilities and capital\t\t%s\n", money(bs.TotalLiabilitiesAndCapital))
			fmt.Fprintf(tw, "Balanced\t\t%t\n", bs.Balanced)
			return tw.Flush()
		},
	}
	periodFlags(cmd, &start, &end)
	return cmd
}

func (c *cli) newIncomeStatementCommand() *cobra.Command {
	var start, end string
	cmd := &cobra.Command{
		Use:   "income-statement",
		Short: "Revenue, expenses and net income",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := model.ParseDateRange(start, end)
			if err != nil {
				return err
			}
			a, err := c.open(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			var is report.IncomeStatement
			if r.IsZero() {
				is, err = a.reports.IncomeStatement(cmd.Context())
			} else {
				is, err = a.reports.IncomeStatementForPeriod(cmd.Context(), r)
			}
			if err != nil {
				return err
			}
			if c.jsonOut {
				return c.printJSON(cmd, is)
			}

			tw := table(cmd.OutOrStdout())
			writeGroup(tw, "REVENUE", is.Revenue)
			fmt.Fprintf(tw, "Total revenue\t\t%s\n", money(is.TotalRevenue))
			writeGroup(tw, "EXPENSES", is.Expenses)
			fmt.Fprintf(tw, "Total expenses\t\t%s\n", money(is.TotalExpenses))
			fmt.Fprintf(tw, "Net income\t\t%s\n", money(is.NetIncome))
			return tw.Flush()
		},
	}
	periodFlags(cmd, &start, &end)
	return cmd
}

func (c *cli) newLedgerCommand() *cobra.Command {
	var start, end string
	var asCSV bool
	cmd := &cobra.Command{
		Use:   "ledger <account-code>",
		Short: "Running-balance history of one account",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			code, err := strconv.Atoi(args[0])
			if err != nil {
				return fmt.Errorf("invalid account code %q", args[0])
			}
			r, err := model.ParseDateRange(start, end)
			if err != nil {
				return err
			}
			a, err := c.open(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			accountID, err := accountIDForCode(cmd, a, code)
			if err != nil {
				return err
			}
			l, err := a.reports.AccountLedger(cmd.Context(), accountID, r)
			if err != nil {
				return err
			}
			switch {
			case c.jsonOut:
				return c.printJSON(cmd, l)
			case asCSV:
				return report.WriteLedgerCSV(cmd.OutOrStdout(), l)
			}

			tw := table(cmd.OutOrStdout())
			fmt.Fprintf(tw, "%d %s (%s normal)\t\t\t\t\t\n", l.Account.Code, l.Account.Name, l.Account.NormalBalance)
			fmt.Fprintln(tw, "DATE\tNUMBER\tDESCRIPTION\tDEBIT\tCREDIT\tBALANCE")
			fmt.Fprintf(tw, "\t\tOpening balance\t\t\t%s\n", money(l.OpeningBalance))
			for _, line := range l.Lines {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
					model.FormatDate(line.Date), id.FormatTransactionNumber(line.TransactionNumber), line.Description,
					money(line.Debit), money(line.Credit), money(line.RunningBalance))
			}
			fmt.Fprintf(tw, "\t\tClosing balance\t%s\t%s\t%s\n", money(l.Summary.TotalDebits), money(l.Summary.TotalCredits), money(l.ClosingBalance))
			return tw.Flush()
		},
	}
	periodFlags(cmd, &start, &end)
	cmd.Flags().BoolVar(&asCSV, "csv", false, "write CSV instead of a table")
	return cmd
}

// accountIDForCode looks a code up among all accounts, inactive ones included.
func accountIDForCode(cmd *cobra.Command, a *app, code int) (int64, error) {
	list, err := a.accounts.List(cmd.Context(), store.AccountFilter{})
	if err != nil {
		return 0, err
	}
	for _, acct := range list {
		if acct.Code == code {
			return acct.ID, nil
		}
	}
	return 0, &model.NotFoundError{Entity: "account code", ID: code}
}

func (c *cli) newEquationCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "equation",
		Short: "Check assets = liabilities + capital + net income",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := c.open(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			eq, err := a.reports.CheckEquation(cmd.Context())
			if err != nil {
				return err
			}
			if c.jsonOut {
				if err := c.printJSON(cmd, eq); err != nil {
					return err
				}
			} else {
				fmt.Fprintf(cmd.OutOrStdout(), "Assets %s = Liabilities %s + Capital %s + Net income %s (difference %s)\n",
					money(eq.TotalAssets), money(eq.TotalLiabilities), money(eq.TotalCapital), money(eq.NetIncome), money(eq.Difference))
			}
			if !eq.Balanced {
				return fmt.Errorf("accounting equation does not balance (difference %s)", money(eq.Difference))
			}
			return nil
		},
	}
}

func (c *cli) newVerifyCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "verify",
		Short: "Recompute every balance from the journal and report drift",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := c.open(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			v, err := a.reports.VerifyBalances(cmd.Context())
			if err != nil {
				return err
			}
			if c.jsonOut {
				if err := c.printJSON(cmd, v); err != nil {
					return err
				}
			} else {
				for _, d := range v.Drifts {
					fmt.Fprintf(cmd.OutOrStdout(), "%d %s: stored %s, journal %s\n", d.Code, d.Name, money(d.Cached), money(d.Computed))
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Checked %d accounts, %d drifted\n", v.AccountsChecked, len(v.Drifts))
			}
			if !v.OK {
				return fmt.Errorf("%d account balances drifted from the journal", len(v.Drifts))
			}
			return nil
		},
	}
}
