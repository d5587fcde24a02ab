package docstore

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/AbderraoufBou14/trustpilot-sentiment-data-pipeline/internal/review"
)

func newMockStore(t *testing.T, cfg Config) (*Store, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)

	store, err := NewWithPool(mock, cfg, zap.NewNop())
	require.NoError(t, err)
	return store, mock
}

// anyRowArgs matches the 11 insert parameters without constraining them;
// pgxmock treats an expectation without WithArgs as "expects no arguments".
func anyRowArgs() []any {
	args := make([]any, 11)
	for i := range args {
		args[i] = pgxmock.AnyArg()
	}
	return args
}

func sampleReviews(n int) []review.Review {
	out := make([]review.Review, n)
	for i := range out {
		out[i] = review.Review{
			ID:    fmt.Sprintf("id%07d", i),
			Title: fmt.Sprintf("titre %d", i),
			Body:  fmt.Sprintf("contenu %d", i),
		}
	}
	return out
}

func TestNewWithPoolValidation(t *testing.T) {
	_, err := NewWithPool(nil, Config{}, zap.NewNop())
	assert.Error(t, err)

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	_, err = NewWithPool(mock, Config{Table: "avis; DROP TABLE avis"}, zap.NewNop())
	assert.Error(t, err)
}

func TestEnsureSchema(t *testing.T) {
	store, mock := newMockStore(t, Config{Table: "avis"})
	mock.ExpectExec("CREATE TABLE IF NOT EXISTS avis").
		WillReturnResult(pgxmock.NewResult("CREATE TABLE", 0))

	require.NoError(t, store.EnsureSchema(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInsertBatchChunksAndCounts(t *testing.T) {
	store, mock := newMockStore(t, Config{Table: "avis", ChunkSize: 2})

	// First chunk: one row inserted, one rejected as a duplicate.
	first := mock.ExpectBatch()
	first.ExpectExec("INSERT INTO avis").WithArgs(anyRowArgs()...).WillReturnResult(pgxmock.NewResult("INSERT", 1))
	first.ExpectExec("INSERT INTO avis").WithArgs(anyRowArgs()...).WillReturnResult(pgxmock.NewResult("INSERT", 0))

	second := mock.ExpectBatch()
	second.ExpectExec("INSERT INTO avis").WithArgs(anyRowArgs()...).WillReturnResult(pgxmock.NewResult("INSERT", 1))

	inserted, err := store.InsertBatch(context.Background(), sampleReviews(3))
	require.NoError(t, err)
	assert.Equal(t, 2, inserted)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInsertBatchReplaysFailedChunkRowByRow(t *testing.T) {
	store, mock := newMockStore(t, Config{Table: "avis", ChunkSize: 2})

	// The first chunk's batch aborts: its implicit transaction rolls back
	// every row, including the one that had already been accepted.
	failing := mock.ExpectBatch()
	failing.ExpectExec("INSERT INTO avis").WithArgs(anyRowArgs()...).WillReturnResult(pgxmock.NewResult("INSERT", 1))
	failing.ExpectExec("INSERT INTO avis").WithArgs(anyRowArgs()...).WillReturnError(fmt.Errorf("invalid byte sequence"))

	// Row-by-row replay of the aborted chunk: the good row lands, the bad
	// one only costs itself.
	mock.ExpectExec("INSERT INTO avis").WithArgs(anyRowArgs()...).WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec("INSERT INTO avis").WithArgs(anyRowArgs()...).WillReturnError(fmt.Errorf("invalid byte sequence"))

	healthy := mock.ExpectBatch()
	healthy.ExpectExec("INSERT INTO avis").WithArgs(anyRowArgs()...).WillReturnResult(pgxmock.NewResult("INSERT", 1))

	inserted, err := store.InsertBatch(context.Background(), sampleReviews(3))
	require.NoError(t, err)
	// The rolled-back in-batch success is not counted; only the replayed
	// row and the healthy chunk are.
	assert.Equal(t, 2, inserted)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInsertBatchEmpty(t *testing.T) {
	store, _ := newMockStore(t, Config{Table: "avis"})
	inserted, err := store.InsertBatch(context.Background(), nil)
	require.NoError(t, err)
	assert.Zero(t, inserted)
}

func TestParseTimestamp(t *testing.T) {
	iso := "2024-03-01T10:00:00.000Z"
	ts := parseTimestamp(&iso)
	require.NotNil(t, ts)
	assert.Equal(t, time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC), *ts)

	day := "2024-03-01"
	ts = parseTimestamp(&day)
	require.NotNil(t, ts)
	assert.Equal(t, time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC), *ts)

	garbage := "hier"
	assert.Nil(t, parseTimestamp(&garbage))
	assert.Nil(t, parseTimestamp(nil))
}
