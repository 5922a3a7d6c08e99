// Package reporting aggregates the cucumber JSON reports written by a run
// into an HTML overview and a machine readable summary.
package reporting

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"github.com/tidwall/gjson"
	"golang.org/x/sync/errgroup"

	"github.com/ethereum-optimism/infra/op-cuke/featurelist"
)

const (
	SummaryFileName  = "summary.json"
	OverviewFileName = "overview.html"

	defaultScanConcurrency = 8
)

// Status values used in summaries.
const (
	StatusPassed  = "passed"
	StatusFailed  = "failed"
	StatusSkipped = "skipped"
)

// ScenarioSummary is one scenario found in a report.
type ScenarioSummary struct {
	Name     string
	Line     int64
	Status   string
	Duration time.Duration
}

// FeatureSummary is one feature found in a report file. A report file may
// contain several features.
type FeatureSummary struct {
	Name      string
	URI       string
	Report    string
	Scenarios []ScenarioSummary
	Passed    int
	Failed    int
	Skipped   int
	Duration  time.Duration
}

// Status is failed if any scenario failed, skipped if nothing ran.
func (f FeatureSummary) Status() string {
	switch {
	case f.Failed > 0:
		return StatusFailed
	case f.Passed > 0:
		return StatusPassed
	default:
		return StatusSkipped
	}
}

// Collection is everything found under a report tree.
type Collection struct {
	Features  []FeatureSummary
	Malformed []string
}

// Totals sums scenario counts over every feature.
func (c *Collection) Totals() (passed, failed, skipped int) {
	for _, f := range c.Features {
		passed += f.Passed
		failed += f.Failed
		skipped += f.Skipped
	}
	return passed, failed, skipped
}

// Collect parses every JSON report under root. Files that are empty,
// truncated or not cucumber reports are listed in Malformed and otherwise
// ignored.
func Collect(ctx context.Context, logger log.Logger, root string, concurrency int) (*Collection, error) {
	files, err := featurelist.Files(root, ".json")
	if err != nil {
		return nil, fmt.Errorf("failed to list reports: %w", err)
	}
	if concurrency <= 0 {
		concurrency = defaultScanConcurrency
	}

	var (
		mu         sync.Mutex
		collection Collection
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)
	for _, file := range files {
		if filepath.Base(file) == SummaryFileName {
			continue
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			data, err := os.ReadFile(file)
			if err != nil {
				return fmt.Errorf("failed to read report %s: %w", file, err)
			}
			features, ok := parseReport(file, data)

			mu.Lock()
			defer mu.Unlock()
			if !ok {
				logger.Warn("Skipping malformed report", "file", file)
				collection.Malformed = append(collection.Malformed, file)
				return nil
			}
			collection.Features = append(collection.Features, features...)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	sort.Slice(collection.Features, func(i, j int) bool {
		if collection.Features[i].Report != collection.Features[j].Report {
			return collection.Features[i].Report < collection.Features[j].Report
		}
		return collection.Features[i].URI < collection.Features[j].URI
	})
	sort.Strings(collection.Malformed)
	return &collection, nil
}

func parseReport(file string, data []byte) ([]FeatureSummary, bool) {
	if !gjson.ValidBytes(data) {
		return nil, false
	}
	doc := gjson.ParseBytes(data)
	if !doc.IsArray() {
		return nil, false
	}

	var out []FeatureSummary
	for _, f := range doc.Array() {
		if !f.IsObject() {
			return nil, false
		}
		fs := FeatureSummary{
			Name:   f.Get("name").String(),
			URI:    f.Get("uri").String(),
			Report: file,
		}
		for _, el := range f.Get("elements").Array() {
			if el.Get("type").String() == "background" {
				continue
			}
			sc := ScenarioSummary{
				Name:   el.Get("name").String(),
				Line:   el.Get("line").Int(),
				Status: scenarioStatus(el),
			}
			for _, d := range el.Get("steps.#.result.duration").Array() {
				sc.Duration += time.Duration(d.Int())
			}
			switch sc.Status {
			case StatusPassed:
				fs.Passed++
			case StatusFailed:
				fs.Failed++
			default:
				fs.Skipped++
			}
			fs.Duration += sc.Duration
			fs.Scenarios = append(fs.Scenarios, sc)
		}
		out = append(out, fs)
	}
	return out, true
}

// scenarioStatus folds step results: any failure fails the scenario, any
// step that did not pass makes it skipped.
func scenarioStatus(el gjson.Result) string {
	steps := el.Get("steps.#.result.status").Array()
	if len(steps) == 0 {
		return StatusSkipped
	}
	status := StatusPassed
	for _, s := range steps {
		switch s.String() {
		case StatusPassed:
		case StatusFailed:
			return StatusFailed
		default:
			status = StatusSkipped
		}
	}
	return status
}
