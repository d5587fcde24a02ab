// Package publisher emits run-summary events after a pipeline run.
package publisher

import (
	"context"
	"time"
)

// RunEvent is the payload published once per finished pipeline run.
type RunEvent struct {
	RunID          string    `json:"run_id"`
	StartedAt      time.Time `json:"started_at"`
	FinishedAt     time.Time `json:"finished_at"`
	PagesAttempted int       `json:"pages_attempted"`
	PagesSucceeded int       `json:"pages_succeeded"`
	ReviewsScraped int       `json:"reviews_scraped"`
	DocsInserted   int       `json:"docs_inserted"`
	DocsIndexed    int       `json:"docs_indexed"`
	IndexFailures  int       `json:"index_failures"`
	ArtifactURI    string    `json:"artifact_uri,omitempty"`
	DocStoreError  string    `json:"docstore_error,omitempty"`
	SearchError    string    `json:"search_error,omitempty"`
}

// Publisher delivers run events to interested consumers.
type Publisher interface {
	PublishRun(ctx context.Context, event RunEvent) error
	Close() error
}
