package commands

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/cleared-dev/ledger/internal/id"
	"github.com/cleared-dev/ledger/internal/importer"
	"github.com/cleared-dev/ledger/internal/model"
)

func (c *cli) newTxnImportBankCommand() *cobra.Command {
	var format string
	var bankCode, offsetCode int

	cmd := &cobra.Command{
		Use:   "import-bank [statement.csv]",
		Short: "Post every line of a bank statement",
		Long: "Each statement line becomes a two-entry transaction between the bank account\n" +
			"and the offset account. Without a file, every CSV in the project's import/\n" +
			"directory is posted and moved to import/processed/ once all its lines succeed.",
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			parser := importer.DefaultRegistry().Get(format)
			if parser == nil {
				return fmt.Errorf("unknown statement format %q", format)
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
			bank, ok := resolve(bankCode)
			if !ok {
				return &model.NotFoundError{Entity: "account code", ID: bankCode}
			}
			offset, ok := resolve(offsetCode)
			if !ok {
				return &model.NotFoundError{Entity: "account code", ID: offsetCode}
			}

			post := func(path string) (int, error) {
				f, err := os.Open(path)
				if err != nil {
					return 0, fmt.Errorf("opening statement: %w", err)
				}
				defer f.Close()
				return postStatement(cmd, a, parser, f, bank, offset)
			}

			if len(args) == 1 {
				failed, err := post(args[0])
				if err != nil {
					return err
				}
				if failed > 0 {
					return fmt.Errorf("%d statement lines rejected", failed)
				}
				return nil
			}

			projectDir := filepath.Dir(c.configPath)
			files, err := importer.Scan(projectDir)
			if err != nil {
				return err
			}
			if len(files) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No statements to import")
				return nil
			}
			total := 0
			for _, fi := range files {
				fmt.Fprintf(cmd.OutOrStdout(), "%s:\n", fi.Name)
				failed, err := post(fi.Path)
				if err != nil {
					return fmt.Errorf("%s: %w", fi.Name, err)
				}
				total += failed
				if failed == 0 {
					if err := importer.MarkProcessed(projectDir, fi.Name); err != nil {
						return err
					}
				}
			}
			if total > 0 {
				return fmt.Errorf("%d statement lines rejected", total)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&format, "format", "chase", "statement format")
	cmd.Flags().IntVar(&bankCode, "bank", 1020, "account code of the bank account")
	cmd.Flags().IntVar(&offsetCode, "offset", 5990, "account code that takes the other side")
	return cmd
}

// postStatement posts each line independently and returns how many failed.
func postStatement(cmd *cobra.Command, a *app, parser importer.Parser, r io.Reader, bank, offset int64) (int, error) {
	lines, err := parser.Parse(r)
	if err != nil {
		return 0, err
	}
	out := cmd.OutOrStdout()
	failed := 0
	for _, d := range importer.Drafts(lines, bank, offset) {
		res, err := a.engine.CreatePosting(cmd.Context(), d)
		if err != nil {
			failed++
			fmt.Fprintf(out, "  %s %s: %v\n", d.Date, d.Reference, err)
			continue
		}
		fmt.Fprintf(out, "  %s %s: posted %s\n", d.Date, d.Reference, id.FormatTransactionNumber(res.TransactionNumber))
	}
	return failed, nil
}
