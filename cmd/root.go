// Package cmd defines the reviewpipe command tree.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/AbderraoufBou14/trustpilot-sentiment-data-pipeline/internal/app"
)

var (
	cfgFile string
	pipe    *app.App
)

var rootCmd = &cobra.Command{
	Use:   "reviewpipe",
	Short: "Review scraping and loading pipeline",
	Long: `reviewpipe collects customer reviews from a public listing,
normalizes them into canonical records with content-derived identities,
and loads them into a document store and a search index.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
		if cmd.Name() == "help" || cmd.Name() == "completion" {
			return nil
		}
		var err error
		pipe, err = app.New(cfgFile)
		return err
	},
	PersistentPostRun: func(_ *cobra.Command, _ []string) {
		if pipe != nil {
			pipe.Close()
		}
	},
}

// Execute runs the command tree and exits non-zero on failure.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (e.g. config.yaml)")
}
