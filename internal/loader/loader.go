// Package loader reads normalized NDJSON batches and writes them to the
// document store and the search index.
package loader

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"

	"go.uber.org/zap"

	"github.com/AbderraoufBou14/trustpilot-sentiment-data-pipeline/internal/metrics"
	"github.com/AbderraoufBou14/trustpilot-sentiment-data-pipeline/internal/review"
	"github.com/AbderraoufBou14/trustpilot-sentiment-data-pipeline/internal/searchindex"
)

// DocStore is the document-store write path.
type DocStore interface {
	EnsureSchema(ctx context.Context) error
	InsertBatch(ctx context.Context, batch []review.Review) (int, error)
}

// SearchIndex is the search-index write path.
type SearchIndex interface {
	EnsureIndex(ctx context.Context) error
	IndexBatch(ctx context.Context, batch []review.Review) (searchindex.Report, error)
}

// SinkResult is the outcome of one sink path.
type SinkResult struct {
	Count int
	Err   error
}

// Result summarizes one dual-sink load.
type Result struct {
	Records      int
	SkippedLines int
	DocStore     SinkResult
	Search       SinkResult
	SearchReport searchindex.Report
}

// Loader fans one batch out to both sinks. The two write paths share no
// mutable state and run concurrently; a failure in one never cancels the
// other, and the load is finished only when both have reported.
type Loader struct {
	docs   DocStore
	index  SearchIndex
	logger *zap.Logger
}

// New constructs a Loader. Both sinks are required; a missing sink is a
// configuration fault surfaced before any load starts.
func New(docs DocStore, index SearchIndex, logger *zap.Logger) (*Loader, error) {
	if docs == nil {
		return nil, fmt.Errorf("document store is required")
	}
	if index == nil {
		return nil, fmt.Errorf("search index is required")
	}
	metrics.Init()
	return &Loader{docs: docs, index: index, logger: logger}, nil
}

// LoadFile reads one NDJSON file and loads it into both sinks.
func (l *Loader) LoadFile(ctx context.Context, path string) (Result, error) {
	batch, skipped, err := l.readNDJSON(path)
	if err != nil {
		return Result{}, err
	}
	result := l.Load(ctx, batch)
	result.SkippedLines = skipped
	return result, nil
}

// Load writes the batch to both sinks concurrently and reports per sink.
func (l *Loader) Load(ctx context.Context, batch []review.Review) Result {
	result := Result{Records: len(batch)}

	var wg sync.WaitGroup
	wg.Add(2)

	go func() {
		defer wg.Done()
		result.DocStore = l.loadDocStore(ctx, batch)
	}()
	go func() {
		defer wg.Done()
		result.Search, result.SearchReport = l.loadSearchIndex(ctx, batch)
	}()
	wg.Wait()

	l.logger.Info("dual-sink load finished",
		zap.Int("records", result.Records),
		zap.Int("docstore_inserted", result.DocStore.Count),
		zap.Int("search_indexed", result.Search.Count),
		zap.Int("search_failed", result.SearchReport.Failed),
		zap.Int("search_missing_id", result.SearchReport.MissingID),
	)
	return result
}

func (l *Loader) loadDocStore(ctx context.Context, batch []review.Review) SinkResult {
	if err := l.docs.EnsureSchema(ctx); err != nil {
		return SinkResult{Err: fmt.Errorf("docstore: %w", err)}
	}
	count, err := l.docs.InsertBatch(ctx, batch)
	if err != nil {
		return SinkResult{Count: count, Err: fmt.Errorf("docstore: %w", err)}
	}
	return SinkResult{Count: count}
}

func (l *Loader) loadSearchIndex(ctx context.Context, batch []review.Review) (SinkResult, searchindex.Report) {
	if err := l.index.EnsureIndex(ctx); err != nil {
		return SinkResult{Err: fmt.Errorf("search: %w", err)}, searchindex.Report{}
	}
	report, err := l.index.IndexBatch(ctx, batch)
	if err != nil {
		return SinkResult{Count: report.Indexed, Err: fmt.Errorf("search: %w", err)}, report
	}
	return SinkResult{Count: report.Indexed}, report
}

// readNDJSON parses the batch line by line, with no upper bound on line
// length. A malformed line is counted and skipped with a warning; it must
// never abort the batch.
func (l *Loader) readNDJSON(path string) ([]review.Review, int, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, 0, fmt.Errorf("open ndjson: %w", err)
	}
	defer f.Close()

	var (
		batch   []review.Review
		skipped int
	)
	reader := bufio.NewReader(f)
	for lineNo := 1; ; lineNo++ {
		line, readErr := reader.ReadBytes('\n')
		if readErr != nil && !errors.Is(readErr, io.EOF) {
			return nil, skipped, fmt.Errorf("read ndjson: %w", readErr)
		}
		if trimmed := bytes.TrimSpace(line); len(trimmed) > 0 {
			var r review.Review
			if err := json.Unmarshal(trimmed, &r); err != nil {
				skipped++
				l.logger.Warn("skipping malformed ndjson line",
					zap.String("path", path),
					zap.Int("line", lineNo),
					zap.Error(err),
				)
			} else {
				batch = append(batch, r)
			}
		}
		if readErr != nil {
			return batch, skipped, nil
		}
	}
}
