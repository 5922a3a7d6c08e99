package reporting

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"github.com/tidwall/sjson"
)

// ModeSummary describes how one execution mode ended.
type ModeSummary struct {
	Mode    string
	Outcome string
	Units   int
	Failed  int
}

// RunInfo is the run level metadata shown alongside the collected reports.
type RunInfo struct {
	RunID       string
	BuildName   string
	BuildNumber string
	Status      string
	Modes       []ModeSummary
	Duration    time.Duration
}

// Report is the aggregate written by Generate.
type Report struct {
	RunInfo
	Generated time.Time
	*Collection
}

// Generate collects every report under root and writes the HTML overview
// and summary.json next to them.
func Generate(ctx context.Context, logger log.Logger, root string, info RunInfo) (*Report, error) {
	collection, err := Collect(ctx, logger, root, 0)
	if err != nil {
		return nil, err
	}
	report := &Report{RunInfo: info, Generated: time.Now().UTC(), Collection: collection}

	if err := WriteSummaryJSON(filepath.Join(root, SummaryFileName), report); err != nil {
		return nil, err
	}
	if err := WriteHTML(filepath.Join(root, OverviewFileName), report); err != nil {
		return nil, err
	}
	passed, failed, skipped := collection.Totals()
	logger.Info("Generated aggregate report", "dir", root, "features", len(collection.Features),
		"passed", passed, "failed", failed, "skipped", skipped, "malformed", len(collection.Malformed))
	return report, nil
}

// SummaryJSON renders the report as a JSON document.
func SummaryJSON(r *Report) ([]byte, error) {
	passed, failed, skipped := r.Totals()
	doc := []byte(`{}`)

	set := func(path string, value any) error {
		var err error
		doc, err = sjson.SetBytes(doc, path, value)
		if err != nil {
			return fmt.Errorf("failed to set %s: %w", path, err)
		}
		return nil
	}

	fields := []struct {
		path  string
		value any
	}{
		{"run.id", r.RunID},
		{"run.status", r.Status},
		{"run.duration_ms", r.Duration.Milliseconds()},
		{"build.name", r.BuildName},
		{"build.number", r.BuildNumber},
		{"generated", r.Generated.Format(time.RFC3339)},
		{"totals.features", len(r.Features)},
		{"totals.passed", passed},
		{"totals.failed", failed},
		{"totals.skipped", skipped},
		{"modes", []any{}},
		{"features", []any{}},
		{"malformed", append([]string{}, r.Malformed...)},
	}
	for _, f := range fields {
		if err := set(f.path, f.value); err != nil {
			return nil, err
		}
	}

	for _, m := range r.Modes {
		entry := map[string]any{
			"mode":    m.Mode,
			"outcome": m.Outcome,
			"units":   m.Units,
			"failed":  m.Failed,
		}
		if err := set("modes.-1", entry); err != nil {
			return nil, err
		}
	}
	for _, f := range r.Features {
		entry := map[string]any{
			"name":        f.Name,
			"uri":         f.URI,
			"report":      f.Report,
			"status":      f.Status(),
			"passed":      f.Passed,
			"failed":      f.Failed,
			"skipped":     f.Skipped,
			"duration_ms": f.Duration.Milliseconds(),
		}
		if err := set("features.-1", entry); err != nil {
			return nil, err
		}
	}
	return doc, nil
}

// WriteSummaryJSON writes SummaryJSON to path.
func WriteSummaryJSON(path string, r *Report) error {
	data, err := SummaryJSON(r)
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write summary %s: %w", path, err)
	}
	return nil
}
