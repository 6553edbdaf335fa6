package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/cleared-dev/ledger/internal/accounts"
	"github.com/cleared-dev/ledger/internal/model"
	"github.com/cleared-dev/ledger/internal/store"
)

func (c *cli) newAccountsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "accounts",
		Aliases: []string{"account"},
		Short:   "Manage the chart of accounts",
	}
	cmd.AddCommand(
		c.newAccountsListCommand(),
		c.newAccountsCreateCommand(),
		c.newAccountsUpdateCommand(),
		c.newAccountsDeactivateCommand(),
		c.newAccountsSeedCommand(),
		c.newAccountsImportCommand(),
		c.newAccountsExportCommand(),
	)
	return cmd
}

func (c *cli) newAccountsListCommand() *cobra.Command {
	var typ string
	var activeOnly bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List accounts with their balances",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var f store.AccountFilter
			if typ != "" {
				t, err := model.ParseAccountType(typ)
				if err != nil {
					return err
				}
				f.Type = t
			}
			f.ActiveOnly = activeOnly

			a, err := c.open(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			list, err := a.accounts.List(cmd.Context(), f)
			if err != nil {
				return err
			}
			if c.jsonOut {
				return c.printJSON(cmd, list)
			}
			tw := table(cmd.OutOrStdout())
			fmt.Fprintln(tw, "ID\tCODE\tNAME\tTYPE\tNORMAL\tBALANCE\tACTIVE")
			for _, acct := range list {
				fmt.Fprintf(tw, "%d\t%d\t%s\t%s\t%s\t%s\t%t\n", acct.ID, acct.Code, acct.Name, acct.Type, acct.NormalBalance, money(acct.Balance), acct.IsActive)
			}
			return tw.Flush()
		},
	}
	cmd.Flags().StringVar(&typ, "type", "", "only accounts of this type")
	cmd.Flags().BoolVar(&activeOnly, "active", false, "only active accounts")
	return cmd
}

func (c *cli) newAccountsCreateCommand() *cobra.Command {
	var na accounts.NewAccount
	var typ, normal string

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create an account",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			na.Type = model.AccountType(typ)
			na.NormalBalance = model.EntryType(normal)

			a, err := c.open(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			acct, err := a.accounts.Create(cmd.Context(), na)
			if err != nil {
				return err
			}
			if c.jsonOut {
				return c.printJSON(cmd, acct)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Created account %d %s (id %d)\n", acct.Code, acct.Name, acct.ID)
			return nil
		},
	}
	cmd.Flags().StringVar(&na.Name, "name", "", "account name (required)")
	cmd.Flags().StringVar(&typ, "type", "", "asset, liability, capital, revenue or expense (required)")
	cmd.Flags().IntVar(&na.Code, "code", 0, "account code; allocated from the type's range when omitted")
	cmd.Flags().StringVar(&na.Subtype, "subtype", "", "free-form subtype")
	cmd.Flags().StringVar(&normal, "normal", "", "normal balance (debit or credit); defaults from the type")
	_ = cmd.MarkFlagRequired("name")
	_ = cmd.MarkFlagRequired("type")
	return cmd
}

func (c *cli) newAccountsUpdateCommand() *cobra.Command {
	var name, typ, subtype, normal string

	cmd := &cobra.Command{
		Use:   "update <id>",
		Short: "Edit an account that has no journal entries",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			var ch accounts.Changes
			flags := cmd.Flags()
			if flags.Changed("name") {
				ch.Name = &name
			}
			if flags.Changed("type") {
				t := model.AccountType(typ)
				ch.Type = &t
			}
			if flags.Changed("subtype") {
				ch.Subtype = &subtype
			}
			if flags.Changed("normal") {
				n := model.EntryType(normal)
				ch.NormalBalance = &n
			}

			a, err := c.open(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			acct, err := a.accounts.Update(cmd.Context(), id, ch)
			if err != nil {
				return err
			}
			if c.jsonOut {
				return c.printJSON(cmd, acct)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Updated account %d %s\n", acct.Code, acct.Name)
			return nil
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "new name")
	cmd.Flags().StringVar(&typ, "type", "", "new type; reallocates the code")
	cmd.Flags().StringVar(&subtype, "subtype", "", "new subtype")
	cmd.Flags().StringVar(&normal, "normal", "", "new normal balance")
	return cmd
}

func (c *cli) newAccountsDeactivateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "deactivate <id>",
		Short: "Deactivate an account that has no journal entries",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			a, err := c.open(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			if err := a.accounts.Deactivate(cmd.Context(), id); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Deactivated account %d\n", id)
			return nil
		},
	}
}

func (c *cli) newAccountsSeedCommand() *cobra.Command {
	var entityType string

	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Create the default chart of accounts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := c.open(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			if entityType == "" {
				entityType = a.cfg.Business.EntityType
			}
			n, err := a.accounts.Seed(cmd.Context(), accounts.DefaultChart(entityType))
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Created %d accounts\n", n)
			return nil
		},
	}
	cmd.Flags().StringVar(&entityType, "entity-type", "", "entity type; defaults to business.entity_type")
	return cmd
}

func (c *cli) newAccountsImportCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "import <file.csv>",
		Short: "Create the accounts in a chart-of-accounts CSV whose codes are free",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(args[0])
			if err != nil {
				return fmt.Errorf("opening chart: %w", err)
			}
			defer f.Close()
			chart, err := accounts.ReadAccounts(f)
			if err != nil {
				return err
			}

			a, err := c.open(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			n, err := a.accounts.Seed(cmd.Context(), chart)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Imported %d of %d accounts\n", n, len(chart))
			return nil
		},
	}
}

func (c *cli) newAccountsExportCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "export [file.csv]",
		Short: "Write the chart of accounts with balances as CSV",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := c.open(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			list, err := a.accounts.List(cmd.Context(), store.AccountFilter{})
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
			if err := accounts.WriteAccounts(w, list); err != nil {
				_ = closeFn()
				return err
			}
			return closeFn()
		},
	}
}
