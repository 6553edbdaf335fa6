package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/cleared-dev/ledger/internal/buildinfo"
	"github.com/cleared-dev/ledger/internal/config"
	"github.com/cleared-dev/ledger/internal/store"
)

// StoreOpener connects the journal store named by cfg.
type StoreOpener func(ctx context.Context, cfg *config.Config, log *zap.Logger) (store.Store, error)

// Options customizes the command tree. Zero values are usable.
type Options struct {
	OpenStore StoreOpener
}

type cli struct {
	configPath string
	jsonOut    bool
	openStore  StoreOpener
}

// NewRootCommand creates the root CLI command with all subcommands registered.
func NewRootCommand() *cobra.Command {
	return newRootCommand(Options{})
}

func newRootCommand(opts Options) *cobra.Command {
	c := &cli{openStore: opts.OpenStore}
	if c.openStore == nil {
		c.openStore = openStore
	}

	rootCmd := &cobra.Command{
		Use:     "ledger",
		Short:   "Double-entry ledger posting and reporting",
		Version: fmt.Sprintf("%s (commit: %s, built: %s)", buildinfo.Version, buildinfo.Commit, buildinfo.Date),
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
		SilenceUsage: true,
	}
	rootCmd.PersistentFlags().StringVarP(&c.configPath, "config", "c", config.FileName, "path to ledger.yaml")
	rootCmd.PersistentFlags().BoolVar(&c.jsonOut, "json", false, "print results as JSON")

	rootCmd.AddCommand(
		newInitCommand(),
		c.newMigrateCommand(),
		c.newAccountsCommand(),
		c.newTxnCommand(),
		c.newReportCommand(),
		c.newServeCommand(),
	)

	return rootCmd
}
