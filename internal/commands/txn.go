package commands

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/cleared-dev/ledger/internal/id"
	"github.com/cleared-dev/ledger/internal/journal"
	"github.com/cleared-dev/ledger/internal/model"
	"github.com/cleared-dev/ledger/internal/store"
)

func (c *cli) newTxnCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "txn",
		Aliases: []string{"transaction", "transactions"},
		Short:   "Post, edit and inspect journal transactions",
	}
	cmd.AddCommand(
		c.newTxnPostCommand(),
		c.newTxnEditCommand(),
		c.newTxnUpdateCommand(),
		c.newTxnDeleteCommand(),
		c.newTxnShowCommand(),
		c.newTxnListCommand(),
		c.newTxnImportCommand(),
		c.newTxnImportBankCommand(),
		c.newTxnExportCommand(),
		c.newTxnResequenceCommand(),
	)
	return cmd
}

// draftFlags are shared by post and edit.
type draftFlags struct {
	date        string
	description string
	reference   string
	entries     []string
}

func (f *draftFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.date, "date", "", "transaction date, DD/MM/YYYY (required)")
	cmd.Flags().StringVar(&f.description, "description", "", "description (required)")
	cmd.Flags().StringVar(&f.reference, "reference", "", "external reference")
	cmd.Flags().StringArrayVarP(&f.entries, "entry", "e", nil, "journal entry as CODE:debit|credit:AMOUNT (repeatable, at least two)")
	_ = cmd.MarkFlagRequired("date")
	_ = cmd.MarkFlagRequired("entry")
}

func (f *draftFlags) draft(resolve journal.CodeResolver) (model.Draft, error) {
	d := model.Draft{Date: f.date, Description: f.description, Reference: f.reference}
	for _, raw := range f.entries {
		e, err := parseEntry(raw, resolve)
		if err != nil {
			return model.Draft{}, err
		}
		d.Entries = append(d.Entries, e)
	}
	return d, nil
}

// parseEntry reads CODE:SIDE:AMOUNT.
func parseEntry(raw string, resolve journal.CodeResolver) (model.EntryDraft, error) {
	parts := strings.Split(raw, ":")
	if len(parts) != 3 {
		return model.EntryDraft{}, fmt.Errorf("entry %q: want CODE:debit|credit:AMOUNT", raw)
	}
	code, err := strconv.Atoi(strings.TrimSpace(parts[0]))
	if err != nil {
		return model.EntryDraft{}, fmt.Errorf("entry %q: invalid account code", raw)
	}
	accountID, ok := resolve(code)
	if !ok {
		return model.EntryDraft{}, &model.NotFoundError{Entity: "account code", ID: code}
	}
	side, err := model.ParseEntryType(strings.TrimSpace(parts[1]))
	if err != nil {
		return model.EntryDraft{}, fmt.Errorf("entry %q: %w", raw, err)
	}
	amount, err := decimal.NewFromString(strings.TrimSpace(parts[2]))
	if err != nil {
		return model.EntryDraft{}, fmt.Errorf("entry %q: invalid amount", raw)
	}
	return model.EntryDraft{AccountID: accountID, Amount: amount, EntryType: side}, nil
}

func (c *cli) printResult(cmd *cobra.Command, verb string, res model.PostingResult) error {
	if c.jsonOut {
		return c.printJSON(cmd, res)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s %s (id %d): debits %s, credits %s\n",
		verb, id.FormatTransactionNumber(res.TransactionNumber), res.TransactionID, money(res.TotalDebits), money(res.TotalCredits))
	return nil
}

func (c *cli) newTxnPostCommand() *cobra.Command {
	var f draftFlags
	cmd := &cobra.Command{
		Use:   "post",
		Short: "Post a balanced transaction",
		Example: `  ledger txn post --date 15/01/2024 --description "Owner investment" \
    -e 1010:debit:1000.00 -e 3010:credit:1000.00`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := c.open(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			resolve, err := a.accounts.CodeResolver(cmd.Context())
			if err != nil {
				return err
			}
			d, err := f.draft(resolve)
			if err != nil {
				return err
			}
			res, err := a.engine.CreatePosting(cmd.Context(), d)
			if err != nil {
				return err
			}
			return c.printResult(cmd, "Posted", res)
		},
	}
	f.register(cmd)
	return cmd
}

func (c *cli) newTxnEditCommand() *cobra.Command {
	var f draftFlags
	cmd := &cobra.Command{
		Use:   "edit <id>",
		Short: "Replace a transaction's header and entries",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			txnID, err := parseID(args[0])
			if err != nil {
				return err
			}
			a, err := c.open(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			resolve, err := a.accounts.CodeResolver(cmd.Context())
			if err != nil {
				return err
			}
			d, err := f.draft(resolve)
			if err != nil {
				return err
			}
			res, err := a.engine.EditPosting(cmd.Context(), txnID, d)
			if err != nil {
				return err
			}
			return c.printResult(cmd, "Edited", res)
		},
	}
	f.register(cmd)
	return cmd
}

func (c *cli) newTxnUpdateCommand() *cobra.Command {
	var date, description, reference string
	cmd := &cobra.Command{
		Use:   "update <id>",
		Short: "Change a transaction's date, description or reference",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			txnID, err := parseID(args[0])
			if err != nil {
				return err
			}
			a, err := c.open(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			cur, err := a.engine.GetTransaction(cmd.Context(), txnID)
			if err != nil {
				return err
			}
			m := model.Metadata{Date: model.FormatDate(cur.Date), Description: cur.Description, Reference: cur.Reference}
			flags := cmd.Flags()
			if flags.Changed("date") {
				m.Date = date
			}
			if flags.Changed("description") {
				m.Description = description
			}
			if flags.Changed("reference") {
				m.Reference = reference
			}

			t, err := a.engine.UpdateMetadata(cmd.Context(), txnID, m)
			if err != nil {
				return err
			}
			if c.jsonOut {
				return c.printJSON(cmd, t)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Updated %s\n", id.FormatTransactionNumber(t.TransactionNumber))
			return nil
		},
	}
	cmd.Flags().StringVar(&date, "date", "", "new date, DD/MM/YYYY")
	cmd.Flags().StringVar(&description, "description", "", "new description")
	cmd.Flags().StringVar(&reference, "reference", "", "new reference")
	return cmd
}

func (c *cli) newTxnDeleteCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a transaction and reverse its balance effects",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			txnID, err := parseID(args[0])
			if err != nil {
				return err
			}
			a, err := c.open(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			if err := a.engine.DeletePosting(cmd.Context(), txnID); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted transaction %d\n", txnID)
			return nil
		},
	}
}

func (c *cli) newTxnShowCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Show a transaction with its entries",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			txnID, err := parseID(args[0])
			if err != nil {
				return err
			}
			a, err := c.open(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			t, err := a.engine.GetTransaction(cmd.Context(), txnID)
			if err != nil {
				return err
			}
			if c.jsonOut {
				return c.printJSON(cmd, t)
			}
			codes, err := a.accounts.Codes(cmd.Context())
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s  %s  %s", id.FormatTransactionNumber(t.TransactionNumber), model.FormatDate(t.Date), t.Description)
			if t.Reference != "" {
				fmt.Fprintf(out, "  [%s]", t.Reference)
			}
			fmt.Fprintln(out)
			tw := table(out)
			fmt.Fprintln(tw, "ACCOUNT\tDEBIT\tCREDIT")
			for _, e := range t.Entries {
				debit, credit := money(e.Amount), ""
				if e.EntryType == model.Credit {
					debit, credit = "", money(e.Amount)
				}
				fmt.Fprintf(tw, "%d\t%s\t%s\n", codes[e.AccountID], debit, credit)
			}
			debits, credits := t.Totals()
			fmt.Fprintf(tw, "TOTAL\t%s\t%s\n", money(debits), money(credits))
			return tw.Flush()
		},
	}
}

func (c *cli) newTxnListCommand() *cobra.Command {
	var start, end string
	var limit, offset int
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List transactions by date",
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

			txns, err := a.engine.ListTransactions(cmd.Context(), store.TransactionFilter{Range: r, Limit: limit, Offset: offset})
			if err != nil {
				return err
			}
			if c.jsonOut {
				return c.printJSON(cmd, txns)
			}
			tw := table(cmd.OutOrStdout())
			fmt.Fprintln(tw, "ID\tNUMBER\tDATE\tDESCRIPTION\tREFERENCE\tAMOUNT")
			for _, t := range txns {
				debits, _ := t.Totals()
				fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\t%s\n", t.ID, id.FormatTransactionNumber(t.TransactionNumber), model.FormatDate(t.Date), t.Description, t.Reference, money(debits))
			}
			return tw.Flush()
		},
	}
	cmd.Flags().StringVar(&start, "start", "", "first date, inclusive")
	cmd.Flags().StringVar(&end, "end", "", "last date, inclusive")
	cmd.Flags().IntVar(&limit, "limit", 0, "maximum rows; 0 for all")
	cmd.Flags().IntVar(&offset, "offset", 0, "rows to skip")
	return cmd
}

func (c *cli) newTxnImportCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "import <file.csv>",
		Short: "Post every transaction in a journal CSV",
		Long: "Rows are grouped by ref into drafts and each draft is posted on its own.\n" +
			"A rejected draft does not stop the others.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := c.open(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			resolve, err := a.accounts.CodeResolver(cmd.Context())
			if err != nil {
				return err
			}
			f, err := os.Open(args[0])
			if err != nil {
				return fmt.Errorf("opening journal: %w", err)
			}
			defer f.Close()
			drafts, err := journal.ReadDrafts(f, resolve)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			failed := 0
			for _, imp := range drafts {
				res, err := a.engine.CreatePosting(cmd.Context(), imp.Draft)
				if err != nil {
					failed++
					fmt.Fprintf(out, "ref %s (row %d): %v\n", imp.Ref, imp.Row, err)
					continue
				}
				fmt.Fprintf(out, "ref %s: posted %s\n", imp.Ref, id.FormatTransactionNumber(res.TransactionNumber))
			}
			if failed > 0 {
				return fmt.Errorf("%d of %d transactions rejected", failed, len(drafts))
			}
			fmt.Fprintf(out, "Imported %d transactions\n", len(drafts))
			return nil
		},
	}
}

func (c *cli) newTxnExportCommand() *cobra.Command {
	var start, end string
	cmd := &cobra.Command{
		Use:   "export [file.csv]",
		Short: "Write the journal as CSV",
		Args:  cobra.MaximumNArgs(1),
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

			txns, err := a.engine.ListTransactions(cmd.Context(), store.TransactionFilter{Range: r})
			if err != nil {
				return err
			}
			codes, err := a.accounts.Codes(cmd.Context())
			if err != nil {
				return err
			}
			path := ""
			if len(args) > 0 {
				path = args[0]
			}
			w, closeFn, err := output(cmd, path)
			if err != nil {
				return err
			}
			if err := journal.WriteTransactions(w, txns, codes); err != nil {
				_ = closeFn()
				return err
			}
			return closeFn()
		},
	}
	cmd.Flags().StringVar(&start, "start", "", "first date, inclusive")
	cmd.Flags().StringVar(&end, "end", "", "last date, inclusive")
	return cmd
}

func (c *cli) newTxnResequenceCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "resequence",
		Short: "Renumber all transactions 1..N in creation order",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := c.open(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			n, err := a.engine.Resequence(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Resequenced %d transactions\n", n)
			return nil
		},
	}
}
