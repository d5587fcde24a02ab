package normalize

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/AbderraoufBou14/trustpilot-sentiment-data-pipeline/internal/metrics"
	"github.com/AbderraoufBou14/trustpilot-sentiment-data-pipeline/internal/review"
)

// Transformer converts raw JSON batch artifacts into NDJSON files, the
// hand-off format into the dual-sink loader.
type Transformer struct {
	outDir string
	logger *zap.Logger
}

// NewTransformer builds a Transformer writing into outDir.
func NewTransformer(outDir string, logger *zap.Logger) *Transformer {
	metrics.Init()
	return &Transformer{outDir: outDir, logger: logger}
}

// Transform accepts a raw artifact file or a directory of them (matching
// reviews_*.json) and writes one .ndjson per input file. Returns the
// paths written.
func (t *Transformer) Transform(path string) ([]string, error) {
	inputs, err := resolveInputs(path)
	if err != nil {
		return nil, err
	}

	outPaths := make([]string, 0, len(inputs))
	for _, in := range inputs {
		out, count, err := t.transformFile(in)
		if err != nil {
			return outPaths, err
		}
		t.logger.Info("normalized raw artifact",
			zap.String("input", in),
			zap.String("output", out),
			zap.Int("reviews", count),
		)
		metrics.ObserveReviews("normalized", count)
		outPaths = append(outPaths, out)
	}
	return outPaths, nil
}

func (t *Transformer) transformFile(path string) (string, int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", 0, fmt.Errorf("read raw artifact: %w", err)
	}
	var raws []review.RawReview
	if err := json.Unmarshal(data, &raws); err != nil {
		return "", 0, fmt.Errorf("decode raw artifact %s: %w", path, err)
	}

	base := strings.TrimSuffix(filepath.Base(path), ".json")
	outPath := filepath.Join(t.outDir, base+".ndjson")

	normalized := make([]review.Review, 0, len(raws))
	for _, raw := range raws {
		normalized = append(normalized, Review(raw))
	}
	if err := WriteNDJSON(outPath, normalized); err != nil {
		return "", 0, err
	}
	return outPath, len(normalized), nil
}

// WriteNDJSON writes one compact JSON object per line.
func WriteNDJSON(path string, reviews []review.Review) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create clean dir: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create ndjson file: %w", err)
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	enc := json.NewEncoder(w)
	for _, r := range reviews {
		if err := enc.Encode(r); err != nil {
			return fmt.Errorf("encode review %s: %w", r.ID, err)
		}
	}
	if err := w.Flush(); err != nil {
		return fmt.Errorf("flush ndjson file: %w", err)
	}
	return nil
}

func resolveInputs(path string) ([]string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("stat input path: %w", err)
	}
	if !info.IsDir() {
		return []string{path}, nil
	}
	matches, err := filepath.Glob(filepath.Join(path, "reviews_*.json"))
	if err != nil {
		return nil, fmt.Errorf("glob raw dir: %w", err)
	}
	if len(matches) == 0 {
		return nil, fmt.Errorf("no raw artifacts found in %s", path)
	}
	return matches, nil
}
