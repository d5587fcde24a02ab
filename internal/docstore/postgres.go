// Package docstore provides the Postgres-backed document store path of the
// dual-sink loader.
package docstore

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/AbderraoufBou14/trustpilot-sentiment-data-pipeline/internal/metrics"
	"github.com/AbderraoufBou14/trustpilot-sentiment-data-pipeline/internal/review"
)

var validTableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// Config controls the Postgres connection pool and write chunking.
type Config struct {
	DSN             string
	Table           string
	ChunkSize       int
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

type pgxPool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults
	Close()
}

// Store writes canonical review documents into Postgres. The id column
// carries a unique constraint, so re-running the same batch rejects
// unchanged records as duplicates instead of corrupting data.
type Store struct {
	pool   pgxPool
	table  string
	chunk  int
	logger *zap.Logger
}

// New creates a Postgres-backed Store using the provided config.
func New(ctx context.Context, cfg Config, logger *zap.Logger) (*Store, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("docstore.dsn is required")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return NewWithPool(pool, cfg, logger)
}

// NewWithPool constructs a Store from an existing pool (primarily for
// testing).
func NewWithPool(pool pgxPool, cfg Config, logger *zap.Logger) (*Store, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	table := cfg.Table
	if table == "" {
		table = "avis"
	}
	if !validTableName.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}
	chunk := cfg.ChunkSize
	if chunk <= 0 {
		chunk = 1000
	}
	metrics.Init()
	return &Store{pool: pool, table: table, chunk: chunk, logger: logger}, nil
}

// Close releases the underlying pool resources.
func (s *Store) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// EnsureSchema creates the review table on first use.
func (s *Store) EnsureSchema(ctx context.Context) error {
	query := fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %s (
	id TEXT PRIMARY KEY,
	titre_avis TEXT NOT NULL,
	contenu_texte TEXT NOT NULL,
	nombre_etoile INTEGER,
	date_avis TIMESTAMPTZ,
	pays TEXT,
	langue TEXT,
	reponse_entreprise BOOLEAN NOT NULL,
	texte_entreprise TEXT,
	date_reponse_entreprise TIMESTAMPTZ,
	doc JSONB NOT NULL,
	inserted_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
)`, s.table)
	if _, err := s.pool.Exec(ctx, query); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}

// InsertBatch bulk-inserts the batch in fixed-size chunks. Duplicate ids
// are rejected by the unique constraint (ON CONFLICT DO NOTHING), so
// re-running the same batch is idempotent. A chunk whose batch errors is
// replayed row by row so one bad document cannot sink its neighbors;
// residual row errors are logged and suppressed. The returned count
// reflects only rows actually accepted.
func (s *Store) InsertBatch(ctx context.Context, batch []review.Review) (int, error) {
	if s == nil || s.pool == nil {
		return 0, fmt.Errorf("document store is not configured")
	}

	inserted := 0
	for start := 0; start < len(batch); start += s.chunk {
		end := min(start+s.chunk, len(batch))
		n, err := s.insertChunk(ctx, batch[start:end])
		inserted += n
		if err != nil {
			if ctx.Err() != nil {
				return inserted, fmt.Errorf("insert batch canceled: %w", ctx.Err())
			}
			s.logger.Warn("rows rejected in chunk, continuing",
				zap.Int("chunk_start", start),
				zap.Int("chunk_rows", end-start),
				zap.Error(err),
			)
		}
	}
	metrics.ObserveSinkDocs("docstore", "inserted", inserted)
	metrics.ObserveSinkDocs("docstore", "rejected", len(batch)-inserted)
	return inserted, nil
}

func (s *Store) insertChunk(ctx context.Context, chunk []review.Review) (int, error) {
	query := fmt.Sprintf(`
INSERT INTO %s (
	id,
	titre_avis,
	contenu_texte,
	nombre_etoile,
	date_avis,
	pays,
	langue,
	reponse_entreprise,
	texte_entreprise,
	date_reponse_entreprise,
	doc
) VALUES (
	$1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11
) ON CONFLICT (id) DO NOTHING`, s.table)

	docs := make([][]byte, len(chunk))
	b := &pgx.Batch{}
	for i := range chunk {
		doc, err := json.Marshal(chunk[i])
		if err != nil {
			return 0, fmt.Errorf("marshal review %s: %w", chunk[i].ID, err)
		}
		docs[i] = doc
		b.Queue(query, rowArgs(chunk[i], doc)...)
	}

	br := s.pool.SendBatch(ctx, b)
	inserted := 0
	var batchErr error
	for i := 0; i < b.Len(); i++ {
		tag, err := br.Exec()
		if err != nil {
			if batchErr == nil {
				batchErr = err
			}
			continue
		}
		inserted += int(tag.RowsAffected())
	}
	if err := br.Close(); err != nil && batchErr == nil {
		batchErr = err
	}
	if batchErr == nil {
		return inserted, nil
	}
	if ctx.Err() != nil {
		return 0, batchErr
	}

	// The batch runs in one implicit transaction: a failing row rolls back
	// the whole chunk, so any count collected above is void. Replay the
	// chunk row by row so one bad document only costs itself.
	return s.insertRows(ctx, query, chunk, docs, batchErr)
}

func (s *Store) insertRows(ctx context.Context, query string, chunk []review.Review, docs [][]byte, cause error) (int, error) {
	s.logger.Warn("chunk insert rolled back, replaying row by row",
		zap.Int("rows", len(chunk)),
		zap.Error(cause),
	)

	inserted := 0
	var firstErr error
	for i := range chunk {
		if ctx.Err() != nil {
			return inserted, fmt.Errorf("row replay canceled: %w", ctx.Err())
		}
		tag, err := s.pool.Exec(ctx, query, rowArgs(chunk[i], docs[i])...)
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		inserted += int(tag.RowsAffected())
	}
	return inserted, firstErr
}

func rowArgs(r review.Review, doc []byte) []any {
	return []any{
		r.ID,
		r.Title,
		r.Body,
		r.Rating,
		parseTimestamp(r.SubmittedAt),
		r.Country,
		r.Language,
		r.HasCompanyResponse,
		r.CompanyResponseText,
		parseTimestamp(r.CompanyResponseAt),
		doc,
	}
}

// timestampLayouts covers the datetime shapes seen on review pages.
var timestampLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02",
}

// parseTimestamp converts an ISO-8601 string to a native timestamp where
// parseable; unparsable values map to NULL in the typed column while the
// original string survives inside the JSONB document.
func parseTimestamp(s *string) *time.Time {
	if s == nil || *s == "" {
		return nil
	}
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, *s); err == nil {
			utc := t.UTC()
			return &utc
		}
	}
	return nil
}
