// Package app wires configuration into pipeline components and owns
// their lifecycles.
package app

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/storage"
	"go.uber.org/zap"

	"github.com/AbderraoufBou14/trustpilot-sentiment-data-pipeline/internal/archive/gcs"
	"github.com/AbderraoufBou14/trustpilot-sentiment-data-pipeline/internal/config"
	"github.com/AbderraoufBou14/trustpilot-sentiment-data-pipeline/internal/docstore"
	"github.com/AbderraoufBou14/trustpilot-sentiment-data-pipeline/internal/extract"
	"github.com/AbderraoufBou14/trustpilot-sentiment-data-pipeline/internal/fetch"
	"github.com/AbderraoufBou14/trustpilot-sentiment-data-pipeline/internal/loader"
	"github.com/AbderraoufBou14/trustpilot-sentiment-data-pipeline/internal/logging"
	"github.com/AbderraoufBou14/trustpilot-sentiment-data-pipeline/internal/normalize"
	"github.com/AbderraoufBou14/trustpilot-sentiment-data-pipeline/internal/ops"
	"github.com/AbderraoufBou14/trustpilot-sentiment-data-pipeline/internal/publisher"
	pubsubpub "github.com/AbderraoufBou14/trustpilot-sentiment-data-pipeline/internal/publisher/pubsub"
	"github.com/AbderraoufBou14/trustpilot-sentiment-data-pipeline/internal/scrape"
	"github.com/AbderraoufBou14/trustpilot-sentiment-data-pipeline/internal/searchindex"
)

// App holds the configured components of one pipeline process. Sinks and
// external clients are created on first use so that scrape-only runs do
// not require store credentials.
type App struct {
	Config config.Config
	Logger *zap.Logger

	docs      *docstore.Store
	index     *searchindex.Index
	archiver  *gcs.Archiver
	gcsClient *storage.Client
	publisher publisher.Publisher
	opsServer *ops.Server
}

// New loads configuration and builds the logger.
func New(configPath string) (*App, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	logger, err := logging.New(cfg.Logging.Development)
	if err != nil {
		return nil, fmt.Errorf("build logger: %w", err)
	}
	return &App{Config: cfg, Logger: logger}, nil
}

// ScrapeDriver builds the scrape side of the pipeline: fetch client,
// extractor and the pagination driver.
func (a *App) ScrapeDriver() (*scrape.Driver, error) {
	minDelay, maxDelay := a.Config.Scrape.DelayWindow()
	client := fetch.New(fetch.Config{
		UserAgent:          a.Config.Scrape.UserAgent,
		AcceptLanguage:     a.Config.Scrape.AcceptLanguage,
		Timeout:            a.Config.HTTP.Timeout(),
		MaxAttempts:        a.Config.HTTP.MaxAttempts,
		BackoffBase:        a.Config.HTTP.BackoffBase(),
		RetryAfterFallback: a.Config.HTTP.RetryAfterFallback(),
		MinDelay:           minDelay,
		MaxDelay:           maxDelay,
	}, a.Logger)

	return scrape.New(client, extract.New(a.Logger), scrape.Config{
		BaseURL:  a.Config.Scrape.BaseURL,
		MaxPages: a.Config.Scrape.MaxPages,
		RawDir:   a.Config.Data.RawDir,
	}, a.Logger)
}

// Transformer builds the raw-to-canonical normalizer.
func (a *App) Transformer() *normalize.Transformer {
	return normalize.NewTransformer(a.Config.Data.CleanDir, a.Logger)
}

// DocStore returns the Postgres sink, connecting on first call.
func (a *App) DocStore(ctx context.Context) (*docstore.Store, error) {
	if a.docs != nil {
		return a.docs, nil
	}
	store, err := docstore.New(ctx, docstore.Config{
		DSN:       a.Config.DocStore.DSN,
		Table:     a.Config.DocStore.Table,
		ChunkSize: a.Config.DocStore.ChunkSize,
		MaxConns:  a.Config.DocStore.MaxConns,
	}, a.Logger)
	if err != nil {
		return nil, err
	}
	a.docs = store
	return a.docs, nil
}

// SearchIndex returns the Elasticsearch sink, connecting on first call.
func (a *App) SearchIndex() (*searchindex.Index, error) {
	if a.index != nil {
		return a.index, nil
	}
	cfg := searchindex.Config{
		Addresses:      a.Config.Search.Addresses,
		Index:          a.Config.Search.Index,
		ChunkSize:      a.Config.Search.ChunkSize,
		RequestTimeout: time.Duration(a.Config.Search.TimeoutSeconds) * time.Second,
		Username:       a.Config.Search.Username,
		Password:       a.Config.Search.Password,
		APIKey:         a.Config.Search.APIKey,
	}
	client, err := searchindex.NewClient(cfg)
	if err != nil {
		return nil, err
	}
	index, err := searchindex.New(client, cfg, a.Logger)
	if err != nil {
		return nil, err
	}
	a.index = index
	return a.index, nil
}

// Loader builds the dual-sink loader over both connected sinks.
func (a *App) Loader(ctx context.Context) (*loader.Loader, error) {
	docs, err := a.DocStore(ctx)
	if err != nil {
		return nil, err
	}
	index, err := a.SearchIndex()
	if err != nil {
		return nil, err
	}
	return loader.New(docs, index, a.Logger)
}

// Archiver returns the GCS archiver, or nil when no bucket is configured.
func (a *App) Archiver(ctx context.Context) (*gcs.Archiver, error) {
	if a.Config.Archive.Bucket == "" {
		return nil, nil
	}
	if a.archiver != nil {
		return a.archiver, nil
	}
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("create storage client: %w", err)
	}
	archiver, err := gcs.New(client, gcs.Config{
		Bucket: a.Config.Archive.Bucket,
		Prefix: a.Config.Archive.Prefix,
	})
	if err != nil {
		closeErr := client.Close()
		if closeErr != nil {
			a.Logger.Warn("closing storage client", zap.Error(closeErr))
		}
		return nil, err
	}
	a.gcsClient = client
	a.archiver = archiver
	return a.archiver, nil
}

// Publisher returns the run-event publisher, or nil when no topic is
// configured.
func (a *App) Publisher(ctx context.Context) (publisher.Publisher, error) {
	if a.Config.Events.ProjectID == "" || a.Config.Events.Topic == "" {
		return nil, nil
	}
	if a.publisher != nil {
		return a.publisher, nil
	}
	pub, err := pubsubpub.New(ctx, a.Config.Events.ProjectID, a.Config.Events.Topic, a.Logger)
	if err != nil {
		return nil, err
	}
	a.publisher = pub
	return a.publisher, nil
}

// StartOps serves health and metrics when an address is configured.
func (a *App) StartOps() {
	if a.Config.Metrics.Addr == "" {
		return
	}
	a.opsServer = ops.New(a.Config.Metrics.Addr, a.Logger)
	a.opsServer.Start()
}

// Close releases every component that was actually created.
func (a *App) Close() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if a.opsServer != nil {
		if err := a.opsServer.Shutdown(ctx); err != nil {
			a.Logger.Warn("shutting down ops server", zap.Error(err))
		}
	}
	if a.docs != nil {
		a.docs.Close()
	}
	if a.publisher != nil {
		if err := a.publisher.Close(); err != nil {
			a.Logger.Warn("closing publisher", zap.Error(err))
		}
	}
	if a.gcsClient != nil {
		if err := a.gcsClient.Close(); err != nil {
			a.Logger.Warn("closing storage client", zap.Error(err))
		}
	}
	_ = a.Logger.Sync()
}
