package cmd

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/AbderraoufBou14/trustpilot-sentiment-data-pipeline/internal/loader"
	"github.com/AbderraoufBou14/trustpilot-sentiment-data-pipeline/internal/publisher"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the full pipeline: scrape, transform, load",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		startedAt := time.Now().UTC()
		pipe.StartOps()

		driver, err := pipe.ScrapeDriver()
		if err != nil {
			return err
		}
		scraped, err := driver.Run(ctx)
		if err != nil {
			return err
		}

		event := publisher.RunEvent{
			RunID:          scraped.Stats.RunID,
			StartedAt:      startedAt,
			PagesAttempted: scraped.Stats.PagesAttempted,
			PagesSucceeded: scraped.Stats.PagesSucceeded,
			ReviewsScraped: scraped.Stats.Reviews,
		}

		if archiver, err := pipe.Archiver(ctx); err != nil {
			pipe.Logger.Warn("archive unavailable", zap.Error(err))
		} else if archiver != nil {
			uri, err := archiver.ArchiveFile(ctx, scraped.ArtifactPath)
			if err != nil {
				pipe.Logger.Warn("archiving raw artifact failed", zap.Error(err))
			} else {
				event.ArtifactURI = uri
				pipe.Logger.Info("raw artifact archived", zap.String("uri", uri))
			}
		}

		batches, err := pipe.Transformer().Transform(scraped.ArtifactPath)
		if err != nil {
			return err
		}

		ldr, err := pipe.Loader(ctx)
		if err != nil {
			return err
		}

		var failed error
		for _, path := range batches {
			result, err := ldr.LoadFile(ctx, path)
			if err != nil {
				return fmt.Errorf("load %s: %w", path, err)
			}
			mergeLoadResult(&event, result)
			if result.DocStore.Err != nil {
				failed = errors.Join(failed, result.DocStore.Err)
			}
			if result.Search.Err != nil {
				failed = errors.Join(failed, result.Search.Err)
			}
		}

		event.FinishedAt = time.Now().UTC()
		publishRunEvent(cmd, event)

		pipe.Logger.Info("pipeline run complete",
			zap.String("run_id", event.RunID),
			zap.Int("reviews_scraped", event.ReviewsScraped),
			zap.Int("docs_inserted", event.DocsInserted),
			zap.Int("docs_indexed", event.DocsIndexed),
			zap.Int("index_failures", event.IndexFailures),
		)
		return failed
	},
}

func mergeLoadResult(event *publisher.RunEvent, result loader.Result) {
	event.DocsInserted += result.DocStore.Count
	event.DocsIndexed += result.Search.Count
	event.IndexFailures += result.SearchReport.Failed
	if result.DocStore.Err != nil {
		event.DocStoreError = result.DocStore.Err.Error()
	}
	if result.Search.Err != nil {
		event.SearchError = result.Search.Err.Error()
	}
}

func publishRunEvent(cmd *cobra.Command, event publisher.RunEvent) {
	pub, err := pipe.Publisher(cmd.Context())
	if err != nil {
		pipe.Logger.Warn("event publisher unavailable", zap.Error(err))
		return
	}
	if pub == nil {
		return
	}
	if err := pub.PublishRun(cmd.Context(), event); err != nil {
		pipe.Logger.Warn("publishing run event failed", zap.Error(err))
	}
}

func init() {
	rootCmd.AddCommand(runCmd)
}
