package cmd

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var scrapeCmd = &cobra.Command{
	Use:   "scrape",
	Short: "Collect raw review pages into today's JSON artifact",
	RunE: func(cmd *cobra.Command, _ []string) error {
		driver, err := pipe.ScrapeDriver()
		if err != nil {
			return err
		}
		result, err := driver.Run(cmd.Context())
		if err != nil {
			return err
		}
		if result.Skipped {
			pipe.Logger.Info("scrape skipped, artifact already present",
				zap.String("artifact", result.ArtifactPath))
			return nil
		}
		pipe.Logger.Info("scrape complete",
			zap.Int("reviews", result.Stats.Reviews),
			zap.String("artifact", result.ArtifactPath),
		)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(scrapeCmd)
}
