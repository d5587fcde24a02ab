package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var loadCmd = &cobra.Command{
	Use:   "load <batch.ndjson> [more.ndjson...]",
	Short: "Load NDJSON batches into the document store and search index",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ldr, err := pipe.Loader(cmd.Context())
		if err != nil {
			return err
		}

		var failed error
		for _, path := range args {
			result, err := ldr.LoadFile(cmd.Context(), path)
			if err != nil {
				return fmt.Errorf("load %s: %w", path, err)
			}
			pipe.Logger.Info("batch loaded",
				zap.String("path", path),
				zap.Int("records", result.Records),
				zap.Int("skipped_lines", result.SkippedLines),
				zap.Int("docstore_inserted", result.DocStore.Count),
				zap.Int("search_indexed", result.Search.Count),
			)
			if result.DocStore.Err != nil {
				failed = errors.Join(failed, fmt.Errorf("%s: %w", path, result.DocStore.Err))
			}
			if result.Search.Err != nil {
				failed = errors.Join(failed, fmt.Errorf("%s: %w", path, result.Search.Err))
			}
		}
		return failed
	},
}

func init() {
	rootCmd.AddCommand(loadCmd)
}
