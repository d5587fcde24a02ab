// Package searchindex provides the Elasticsearch path of the dual-sink
// loader: mapping bootstrap and chunked bulk index-by-id upserts.
package searchindex

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"time"

	es "github.com/elastic/go-elasticsearch/v8"
	"go.uber.org/zap"

	"github.com/AbderraoufBou14/trustpilot-sentiment-data-pipeline/internal/metrics"
	"github.com/AbderraoufBou14/trustpilot-sentiment-data-pipeline/internal/review"
)

// Config controls the Elasticsearch client and bulk write behavior.
type Config struct {
	Addresses      []string
	Index          string
	ChunkSize      int
	RequestTimeout time.Duration
	Username       string
	Password       string
	APIKey         string
}

// NewClient creates an Elasticsearch client and verifies connectivity.
func NewClient(cfg Config) (*es.Client, error) {
	if len(cfg.Addresses) == 0 {
		return nil, fmt.Errorf("search.addresses is required")
	}
	clientCfg := es.Config{Addresses: cfg.Addresses}
	if cfg.APIKey != "" {
		clientCfg.APIKey = cfg.APIKey
	} else if cfg.Username != "" && cfg.Password != "" {
		clientCfg.Username = cfg.Username
		clientCfg.Password = cfg.Password
	}

	client, err := es.NewClient(clientCfg)
	if err != nil {
		return nil, fmt.Errorf("create elasticsearch client: %w", err)
	}

	res, err := client.Ping()
	if err != nil {
		return nil, fmt.Errorf("ping elasticsearch: %w", err)
	}
	defer res.Body.Close()
	if res.IsError() {
		return nil, fmt.Errorf("error pinging elasticsearch: %s", res.String())
	}
	return client, nil
}

// Index writes canonical review documents into one Elasticsearch index.
// Index-by-id gives upsert semantics: the same id overwrites the prior
// document, making re-runs idempotent.
type Index struct {
	client  *es.Client
	name    string
	chunk   int
	timeout time.Duration
	logger  *zap.Logger
}

// Report summarizes one bulk load.
type Report struct {
	Indexed   int
	Failed    int
	MissingID int
	TopErrors []ErrorCount
}

// ErrorCount is one entry of the failure-reason histogram.
type ErrorCount struct {
	Reason string
	Count  int
}

// New builds an Index over an existing client.
func New(client *es.Client, cfg Config, logger *zap.Logger) (*Index, error) {
	if client == nil {
		return nil, fmt.Errorf("elasticsearch client is required")
	}
	name := cfg.Index
	if name == "" {
		name = "avis"
	}
	chunk := cfg.ChunkSize
	if chunk <= 0 {
		chunk = 500
	}
	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	metrics.Init()
	return &Index{
		client:  client,
		name:    name,
		chunk:   chunk,
		timeout: timeout,
		logger:  logger,
	}, nil
}

// EnsureIndex creates the index with its mapping if it does not exist yet.
func (x *Index) EnsureIndex(ctx context.Context) error {
	res, err := x.client.Indices.Exists(
		[]string{x.name},
		x.client.Indices.Exists.WithContext(ctx),
	)
	if err != nil {
		return fmt.Errorf("check index %s: %w", x.name, err)
	}
	defer res.Body.Close()

	switch res.StatusCode {
	case http.StatusOK:
		return nil
	case http.StatusNotFound:
		// fall through to create
	default:
		return fmt.Errorf("check index %s: %s", x.name, res.String())
	}

	createRes, err := x.client.Indices.Create(
		x.name,
		x.client.Indices.Create.WithContext(ctx),
		x.client.Indices.Create.WithBody(strings.NewReader(indexMapping)),
	)
	if err != nil {
		return fmt.Errorf("create index %s: %w", x.name, err)
	}
	defer createRes.Body.Close()
	if createRes.IsError() {
		return fmt.Errorf("create index %s: %s", x.name, createRes.String())
	}
	x.logger.Info("created search index", zap.String("index", x.name))
	return nil
}

// IndexBatch bulk-indexes the batch in fixed-size chunks with
// refresh=wait_for, so a caller observing completion can immediately
// query the new documents. Per-document failures are collected into a
// reason histogram, never raised; records without an id are counted and
// skipped before submission.
func (x *Index) IndexBatch(ctx context.Context, batch []review.Review) (Report, error) {
	report := Report{}
	reasons := map[string]int{}
	missingLogged := 0

	usable := make([]review.Review, 0, len(batch))
	for i := range batch {
		if batch[i].ID == "" {
			report.MissingID++
			missingLogged++
			if missingLogged <= 5 {
				x.logger.Warn("review missing id, skipping", zap.Int("position", i))
			} else if missingLogged == 6 {
				x.logger.Warn("more reviews missing id, suppressing similar logs")
			}
			continue
		}
		usable = append(usable, batch[i])
	}

	for start := 0; start < len(usable); start += x.chunk {
		end := min(start+x.chunk, len(usable))
		if err := x.bulkChunk(ctx, usable[start:end], &report, reasons); err != nil {
			return report, err
		}
	}

	report.TopErrors = topReasons(reasons, 10)
	for _, e := range report.TopErrors {
		x.logger.Warn("bulk index failures",
			zap.String("reason", e.Reason),
			zap.Int("count", e.Count),
		)
	}
	metrics.ObserveSinkDocs("search", "indexed", report.Indexed)
	metrics.ObserveSinkDocs("search", "failed", report.Failed)
	return report, nil
}

func (x *Index) bulkChunk(ctx context.Context, chunk []review.Review, report *Report, reasons map[string]int) error {
	var buf bytes.Buffer
	for i := range chunk {
		meta := map[string]any{
			"index": map[string]any{
				"_index": x.name,
				"_id":    chunk[i].ID,
			},
		}
		if err := json.NewEncoder(&buf).Encode(meta); err != nil {
			return fmt.Errorf("encode bulk meta: %w", err)
		}
		src, err := sourceDoc(chunk[i])
		if err != nil {
			return err
		}
		buf.Write(src)
		buf.WriteByte('\n')
	}

	res, err := x.client.Bulk(
		bytes.NewReader(buf.Bytes()),
		x.client.Bulk.WithContext(ctx),
		x.client.Bulk.WithRefresh("wait_for"),
		x.client.Bulk.WithTimeout(x.timeout),
	)
	if err != nil {
		return fmt.Errorf("bulk index: %w", err)
	}
	defer res.Body.Close()
	if res.IsError() {
		return fmt.Errorf("bulk index: %s", res.String())
	}

	var bulkRes bulkResponse
	if err := json.NewDecoder(res.Body).Decode(&bulkRes); err != nil {
		return fmt.Errorf("decode bulk response: %w", err)
	}

	for _, item := range bulkRes.Items {
		op := item.Index
		if op == nil {
			continue
		}
		if op.Status < 300 {
			report.Indexed++
			continue
		}
		report.Failed++
		reasons[op.Error.String()]++
	}
	return nil
}

// sourceDoc strips the _id from the document body; the identity travels
// in the bulk action metadata only.
func sourceDoc(r review.Review) ([]byte, error) {
	raw, err := json.Marshal(r)
	if err != nil {
		return nil, fmt.Errorf("marshal review %s: %w", r.ID, err)
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("reshape review %s: %w", r.ID, err)
	}
	delete(m, "_id")
	return json.Marshal(m)
}

type bulkResponse struct {
	Errors bool `json:"errors"`
	Items  []struct {
		Index *bulkItem `json:"index"`
	} `json:"items"`
}

type bulkItem struct {
	ID     string    `json:"_id"`
	Status int       `json:"status"`
	Error  bulkError `json:"error"`
}

type bulkError struct {
	Type     string `json:"type"`
	Reason   string `json:"reason"`
	CausedBy struct {
		Reason string `json:"reason"`
	} `json:"caused_by"`
}

func (e bulkError) String() string {
	if e.Type == "" && e.Reason == "" {
		return "unknown"
	}
	s := e.Type + " | " + e.Reason
	if e.CausedBy.Reason != "" {
		s += " | " + e.CausedBy.Reason
	}
	return s
}

func topReasons(reasons map[string]int, n int) []ErrorCount {
	out := make([]ErrorCount, 0, len(reasons))
	for reason, count := range reasons {
		out = append(out, ErrorCount{Reason: reason, Count: count})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Reason < out[j].Reason
	})
	if len(out) > n {
		out = out[:n]
	}
	return out
}
