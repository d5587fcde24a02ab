// Package scrape drives pagination over a review listing and accumulates
// the raw batch for one pipeline run.
package scrape

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/AbderraoufBou14/trustpilot-sentiment-data-pipeline/internal/fetch"
	uuidgen "github.com/AbderraoufBou14/trustpilot-sentiment-data-pipeline/internal/id/uuid"
	"github.com/AbderraoufBou14/trustpilot-sentiment-data-pipeline/internal/metrics"
	"github.com/AbderraoufBou14/trustpilot-sentiment-data-pipeline/internal/review"
)

// Fetcher is the slice of the fetch client the driver needs.
type Fetcher interface {
	Fetch(ctx context.Context, baseURL string, page int) (fetch.Response, error)
	PoliteDelay(ctx context.Context) error
}

// Extractor parses one page body into raw reviews, reporting how many
// review cards the page carried.
type Extractor interface {
	Reviews(body []byte) ([]review.RawReview, int, error)
}

// Config controls one collection run.
type Config struct {
	BaseURL  string
	MaxPages int
	RawDir   string
}

// Result is the outcome of one collection run.
type Result struct {
	Reviews      []review.RawReview
	Stats        review.RunStats
	ArtifactPath string
	Skipped      bool
}

// Driver walks pages 1..MaxPages sequentially, handing each body to the
// extractor, until a page carries no review cards or the page budget is
// spent.
type Driver struct {
	fetcher   Fetcher
	extractor Extractor
	cfg       Config
	logger    *zap.Logger
	now       func() time.Time
	newRunID  func() string
}

// Option customizes a Driver.
type Option func(*Driver)

// WithNow overrides the driver clock (used in tests and by the scheduler
// to pin a run date).
func WithNow(now func() time.Time) Option {
	return func(d *Driver) { d.now = now }
}

// WithRunID overrides run ID generation.
func WithRunID(gen func() string) Option {
	return func(d *Driver) { d.newRunID = gen }
}

// New constructs a Driver.
func New(fetcher Fetcher, extractor Extractor, cfg Config, logger *zap.Logger, opts ...Option) (*Driver, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("scrape.base_url is required")
	}
	if cfg.MaxPages <= 0 {
		return nil, fmt.Errorf("scrape.max_pages must be > 0")
	}
	metrics.Init()
	d := &Driver{
		fetcher:   fetcher,
		extractor: extractor,
		cfg:       cfg,
		logger:    logger,
		now:       time.Now,
		newRunID:  defaultRunID,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d, nil
}

// ArtifactPath is where the raw batch for the given day lands.
func (d *Driver) ArtifactPath() string {
	day := d.now().UTC().Format("2006-01-02")
	return filepath.Join(d.cfg.RawDir, fmt.Sprintf("reviews_%s.json", day))
}

// Run executes the pagination loop and writes the raw JSON artifact.
// A page-level failure (network error, HTTP >= 400 after the client's own
// retries) skips that page and continues; only context cancellation or an
// artifact write failure aborts the run. If today's artifact already
// exists and is non-empty the run is skipped, making re-triggers cheap.
func (d *Driver) Run(ctx context.Context) (Result, error) {
	artifact := d.ArtifactPath()
	if info, err := os.Stat(artifact); err == nil && info.Size() > 0 {
		d.logger.Info("raw artifact already present, skipping scrape",
			zap.String("path", artifact),
		)
		return Result{ArtifactPath: artifact, Skipped: true}, nil
	}

	stats := review.RunStats{RunID: d.newRunID()}
	start := d.now()
	var batch []review.RawReview

	for page := 1; page <= d.cfg.MaxPages; page++ {
		stats.PagesAttempted = page

		resp, err := d.fetcher.Fetch(ctx, d.cfg.BaseURL, page)
		if err != nil {
			if ctx.Err() != nil {
				return Result{}, fmt.Errorf("collection canceled: %w", ctx.Err())
			}
			d.logger.Error("page fetch failed",
				zap.String("run_id", stats.RunID),
				zap.Int("page", page),
				zap.Error(err),
			)
			d.delay(ctx)
			continue
		}
		metrics.ObservePage(resp.StatusCode)

		if resp.StatusCode >= 400 {
			d.logger.Error("page returned error status",
				zap.String("run_id", stats.RunID),
				zap.Int("page", page),
				zap.Int("status", resp.StatusCode),
			)
			d.delay(ctx)
			continue
		}

		pageReviews, matched, err := d.extractor.Reviews(resp.Body)
		if err != nil {
			d.logger.Error("page extraction failed",
				zap.String("run_id", stats.RunID),
				zap.Int("page", page),
				zap.Error(err),
			)
			d.delay(ctx)
			continue
		}
		if matched == 0 {
			d.logger.Info("no review cards found, end of pagination",
				zap.String("run_id", stats.RunID),
				zap.Int("page", page),
			)
			break
		}
		if len(pageReviews) == 0 {
			// Cards were present but none survived extraction; the listing
			// has not ended, so keep paginating.
			d.logger.Warn("page yielded no usable reviews",
				zap.String("run_id", stats.RunID),
				zap.Int("page", page),
				zap.Int("cards", matched),
			)
			d.delay(ctx)
			continue
		}

		batch = append(batch, pageReviews...)
		stats.PagesSucceeded++
		metrics.ObserveReviews("extracted", len(pageReviews))
		d.logger.Info("page collected",
			zap.String("run_id", stats.RunID),
			zap.Int("page", page),
			zap.Int("reviews", len(pageReviews)),
			zap.Int("total", len(batch)),
		)

		if page < d.cfg.MaxPages {
			d.delay(ctx)
		}
	}

	stats.Reviews = len(batch)
	stats.Elapsed = d.now().Sub(start)

	if err := writeArtifact(artifact, batch); err != nil {
		return Result{}, err
	}

	d.logger.Info("collection finished",
		zap.String("run_id", stats.RunID),
		zap.Int("pages_succeeded", stats.PagesSucceeded),
		zap.Int("pages_max", d.cfg.MaxPages),
		zap.Int("reviews", stats.Reviews),
		zap.Duration("elapsed", stats.Elapsed),
		zap.String("artifact", artifact),
	)
	metrics.ObserveStageDuration("scrape", stats.Elapsed)

	return Result{Reviews: batch, Stats: stats, ArtifactPath: artifact}, nil
}

func (d *Driver) delay(ctx context.Context) {
	start := d.now()
	if err := d.fetcher.PoliteDelay(ctx); err != nil {
		return
	}
	metrics.ObservePageDelay(d.now().Sub(start))
}

// writeArtifact persists the raw batch as one pretty-printed UTF-8 JSON
// array per run, the hand-off format into the normalize stage.
func writeArtifact(path string, batch []review.RawReview) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create raw dir: %w", err)
	}
	if batch == nil {
		batch = []review.RawReview{}
	}
	data, err := json.MarshalIndent(batch, "", "    ")
	if err != nil {
		return fmt.Errorf("marshal raw batch: %w", err)
	}
	if err := os.WriteFile(path, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("write raw artifact: %w", err)
	}
	return nil
}

func defaultRunID() string {
	id, err := uuidgen.New().NewID()
	if err != nil {
		return time.Now().UTC().Format("20060102T150405Z")
	}
	return id
}
