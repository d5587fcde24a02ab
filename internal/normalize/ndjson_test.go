package normalize

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/AbderraoufBou14/trustpilot-sentiment-data-pipeline/internal/review"
)

func writeRawArtifact(t *testing.T, dir, name string, raws []review.RawReview) string {
	t.Helper()
	data, err := json.Marshal(raws)
	require.NoError(t, err)
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, data, 0o644))
	return path
}

func readNDJSONLines(t *testing.T, path string) []review.Review {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	var out []review.Review
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var r review.Review
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &r))
		out = append(out, r)
	}
	require.NoError(t, scanner.Err())
	return out
}

func TestTransformFile(t *testing.T) {
	rawDir := t.TempDir()
	cleanDir := t.TempDir()
	rating := 5
	raws := []review.RawReview{
		{
			Title:           ptr("Excellent"),
			Body:            ptr("Rien à redire."),
			Rating:          &rating,
			SubmittedAt:     ptr("2024-06-01T09:00:00.000Z"),
			CompanyResponse: review.StringFlag("oui"),
		},
		{CompanyResponse: review.StringFlag("non")},
	}
	in := writeRawArtifact(t, rawDir, "reviews_2024-06-01.json", raws)

	tr := NewTransformer(cleanDir, zap.NewNop())
	outputs, err := tr.Transform(in)
	require.NoError(t, err)
	require.Len(t, outputs, 1)
	assert.Equal(t, filepath.Join(cleanDir, "reviews_2024-06-01.ndjson"), outputs[0])

	reviews := readNDJSONLines(t, outputs[0])
	require.Len(t, reviews, 2)
	assert.Equal(t, "Excellent", reviews[0].Title)
	assert.True(t, reviews[0].HasCompanyResponse)
	assert.Len(t, reviews[0].ID, 10)
	// Sparse records still get a full identity.
	assert.Equal(t, "", reviews[1].Title)
	assert.Len(t, reviews[1].ID, 10)
}

func TestTransformDirectory(t *testing.T) {
	rawDir := t.TempDir()
	cleanDir := t.TempDir()
	writeRawArtifact(t, rawDir, "reviews_2024-06-01.json", []review.RawReview{{Title: ptr("a")}})
	writeRawArtifact(t, rawDir, "reviews_2024-06-02.json", []review.RawReview{{Title: ptr("b")}})
	// Files outside the artifact naming scheme are ignored.
	require.NoError(t, os.WriteFile(filepath.Join(rawDir, "notes.json"), []byte("{}"), 0o644))

	tr := NewTransformer(cleanDir, zap.NewNop())
	outputs, err := tr.Transform(rawDir)
	require.NoError(t, err)
	assert.Len(t, outputs, 2)
}

func TestTransformMissingInput(t *testing.T) {
	tr := NewTransformer(t.TempDir(), zap.NewNop())
	_, err := tr.Transform(filepath.Join(t.TempDir(), "absent.json"))
	assert.Error(t, err)
}

func TestTransformEmptyDirectory(t *testing.T) {
	tr := NewTransformer(t.TempDir(), zap.NewNop())
	_, err := tr.Transform(t.TempDir())
	assert.Error(t, err)
}

func TestTransformIdempotentIDs(t *testing.T) {
	rawDir := t.TempDir()
	raws := []review.RawReview{{
		Title:       ptr("Stable"),
		Body:        ptr("Toujours le même id."),
		SubmittedAt: ptr("2024-06-01T09:00:00.000Z"),
	}}
	in := writeRawArtifact(t, rawDir, "reviews_2024-06-01.json", raws)

	first := NewTransformer(t.TempDir(), zap.NewNop())
	second := NewTransformer(t.TempDir(), zap.NewNop())

	out1, err := first.Transform(in)
	require.NoError(t, err)
	out2, err := second.Transform(in)
	require.NoError(t, err)

	assert.Equal(t, readNDJSONLines(t, out1[0])[0].ID, readNDJSONLines(t, out2[0])[0].ID)
}
