package scrape

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/AbderraoufBou14/trustpilot-sentiment-data-pipeline/internal/fetch"
	"github.com/AbderraoufBou14/trustpilot-sentiment-data-pipeline/internal/review"
)

// fakeFetcher serves canned page outcomes keyed by page number.
type fakeFetcher struct {
	pages map[int]fetch.Response
	errs  map[int]error
}

func (f *fakeFetcher) Fetch(_ context.Context, _ string, page int) (fetch.Response, error) {
	if err, ok := f.errs[page]; ok {
		return fetch.Response{}, err
	}
	if resp, ok := f.pages[page]; ok {
		return resp, nil
	}
	return fetch.Response{StatusCode: 200, Body: []byte("0")}, nil
}

func (f *fakeFetcher) PoliteDelay(context.Context) error { return nil }

// countExtractor reads the page body as "matched" or "matched:extracted"
// review counts.
type countExtractor struct{}

func (countExtractor) Reviews(body []byte) ([]review.RawReview, int, error) {
	matchedPart, extractedPart, split := strings.Cut(string(body), ":")
	matched, err := strconv.Atoi(matchedPart)
	if err != nil {
		return nil, 0, err
	}
	extracted := matched
	if split {
		extracted, err = strconv.Atoi(extractedPart)
		if err != nil {
			return nil, 0, err
		}
	}
	title := "avis"
	out := make([]review.RawReview, extracted)
	for i := range out {
		out[i] = review.RawReview{Title: &title}
	}
	return out, matched, nil
}

func okPage(reviews int) fetch.Response {
	return fetch.Response{StatusCode: 200, Body: []byte(strconv.Itoa(reviews))}
}

func newTestDriver(t *testing.T, fetcher Fetcher, maxPages int) (*Driver, string) {
	t.Helper()
	dir := t.TempDir()
	d, err := New(fetcher, countExtractor{}, Config{
		BaseURL:  "https://example.com/review/acme",
		MaxPages: maxPages,
		RawDir:   dir,
	}, zap.NewNop(),
		WithNow(func() time.Time { return time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC) }),
		WithRunID(func() string { return "test-run" }),
	)
	require.NoError(t, err)
	return d, dir
}

func TestRunStopsOnEmptyPage(t *testing.T) {
	fetcher := &fakeFetcher{pages: map[int]fetch.Response{
		1: okPage(3),
		2: okPage(2),
		3: okPage(0),
	}}
	d, dir := newTestDriver(t, fetcher, 10)

	result, err := d.Run(context.Background())
	require.NoError(t, err)

	assert.False(t, result.Skipped)
	assert.Equal(t, 5, result.Stats.Reviews)
	assert.Equal(t, 2, result.Stats.PagesSucceeded)
	assert.Equal(t, 3, result.Stats.PagesAttempted)
	assert.Equal(t, filepath.Join(dir, "reviews_2024-03-01.json"), result.ArtifactPath)

	data, err := os.ReadFile(result.ArtifactPath)
	require.NoError(t, err)
	var batch []review.RawReview
	require.NoError(t, json.Unmarshal(data, &batch))
	assert.Len(t, batch, 5)
}

func TestRunContinuesPastFailedPage(t *testing.T) {
	fetcher := &fakeFetcher{
		pages: map[int]fetch.Response{
			1: okPage(2),
			3: okPage(1),
		},
		errs: map[int]error{2: fmt.Errorf("connection reset")},
	}
	d, _ := newTestDriver(t, fetcher, 3)

	result, err := d.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, result.Stats.Reviews)
	assert.Equal(t, 2, result.Stats.PagesSucceeded)
	assert.Equal(t, 3, result.Stats.PagesAttempted)
}

func TestRunContinuesWhenAllCardsUnusable(t *testing.T) {
	// Page 2 carries review cards but none survive extraction; pagination
	// must keep going rather than treat it as the end of the listing.
	fetcher := &fakeFetcher{pages: map[int]fetch.Response{
		1: okPage(2),
		2: {StatusCode: 200, Body: []byte("3:0")},
		3: okPage(1),
	}}
	d, _ := newTestDriver(t, fetcher, 3)

	result, err := d.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, result.Stats.Reviews)
	assert.Equal(t, 2, result.Stats.PagesSucceeded)
	assert.Equal(t, 3, result.Stats.PagesAttempted)
}

func TestRunSkipsErrorStatusPage(t *testing.T) {
	fetcher := &fakeFetcher{pages: map[int]fetch.Response{
		1: okPage(2),
		2: {StatusCode: 500, Body: []byte("boom")},
		3: okPage(2),
	}}
	d, _ := newTestDriver(t, fetcher, 3)

	result, err := d.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 4, result.Stats.Reviews)
	assert.Equal(t, 2, result.Stats.PagesSucceeded)
}

func TestRunSkipsWhenArtifactExists(t *testing.T) {
	fetcher := &fakeFetcher{pages: map[int]fetch.Response{1: okPage(3)}}
	d, dir := newTestDriver(t, fetcher, 10)

	existing := filepath.Join(dir, "reviews_2024-03-01.json")
	require.NoError(t, os.WriteFile(existing, []byte("[]\n"), 0o644))

	result, err := d.Run(context.Background())
	require.NoError(t, err)
	assert.True(t, result.Skipped)
	assert.Equal(t, existing, result.ArtifactPath)
	assert.Empty(t, result.Reviews)
}

func TestRunCanceled(t *testing.T) {
	fetcher := &fakeFetcher{errs: map[int]error{1: context.Canceled}}
	d, _ := newTestDriver(t, fetcher, 3)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := d.Run(ctx)
	assert.Error(t, err)
}

func TestNewValidation(t *testing.T) {
	_, err := New(&fakeFetcher{}, countExtractor{}, Config{MaxPages: 3}, zap.NewNop())
	assert.Error(t, err)

	_, err = New(&fakeFetcher{}, countExtractor{}, Config{BaseURL: "https://example.com"}, zap.NewNop())
	assert.Error(t, err)
}
