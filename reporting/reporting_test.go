package reporting

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
)

const passingReport = `[
  {
    "uri": "features/accounts.feature",
    "name": "Accounts",
    "elements": [
      {"type": "background", "name": "", "steps": [{"result": {"status": "passed"}}]},
      {"type": "scenario", "name": "list", "line": 5, "steps": [
        {"result": {"status": "passed", "duration": 1000000}},
        {"result": {"status": "passed", "duration": 2000000}}
      ]}
    ]
  }
]`

const failingReport = `[
  {
    "uri": "features/orders.feature",
    "name": "Orders",
    "elements": [
      {"type": "scenario", "name": "create", "line": 3, "steps": [
        {"result": {"status": "passed"}},
        {"result": {"status": "failed", "error_message": "boom"}},
        {"result": {"status": "skipped"}}
      ]},
      {"type": "scenario", "name": "pending", "line": 9, "steps": [
        {"result": {"status": "undefined"}}
      ]}
    ]
  },
  {
    "uri": "features/refunds.feature",
    "name": "Refunds",
    "elements": []
  }
]`

func writeReport(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
}

func reportTree(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	writeReport(t, filepath.Join(root, "api", "accounts.json"), passingReport)
	writeReport(t, filepath.Join(root, "ui", "all.json"), failingReport)
	writeReport(t, filepath.Join(root, "ui", "truncated.json"), `[{"name": "Half`)
	writeReport(t, filepath.Join(root, "ui", "empty.json"), ``)
	writeReport(t, filepath.Join(root, "ui", "object.json"), `{"name": "not a list"}`)
	writeReport(t, filepath.Join(root, "api", "accounts.xml"), `<testsuite/>`)
	writeReport(t, filepath.Join(root, SummaryFileName), `{"stale": true}`)
	return root
}

func discard() log.Logger {
	return log.NewLogger(log.DiscardHandler())
}

func TestCollect(t *testing.T) {
	root := reportTree(t)

	c, err := Collect(context.Background(), discard(), root, 2)
	require.NoError(t, err)

	require.Len(t, c.Features, 3)
	assert.Equal(t, "Accounts", c.Features[0].Name)
	assert.Equal(t, 1, c.Features[0].Passed)
	assert.Equal(t, 3*time.Millisecond, c.Features[0].Duration)
	assert.Equal(t, StatusPassed, c.Features[0].Status())

	assert.Equal(t, "Orders", c.Features[1].Name)
	assert.Equal(t, 1, c.Features[1].Failed)
	assert.Equal(t, 1, c.Features[1].Skipped)
	assert.Equal(t, StatusFailed, c.Features[1].Status())

	assert.Equal(t, "Refunds", c.Features[2].Name)
	assert.Equal(t, StatusSkipped, c.Features[2].Status())

	assert.Len(t, c.Malformed, 3)
	for _, m := range c.Malformed {
		assert.Contains(t, []string{"truncated.json", "empty.json", "object.json"}, filepath.Base(m))
	}

	passed, failed, skipped := c.Totals()
	assert.Equal(t, 1, passed)
	assert.Equal(t, 1, failed)
	assert.Equal(t, 1, skipped)
}

func TestCollectMissingRoot(t *testing.T) {
	_, err := Collect(context.Background(), discard(), filepath.Join(t.TempDir(), "nope"), 0)
	require.Error(t, err)
}

func TestGenerate(t *testing.T) {
	root := reportTree(t)
	info := RunInfo{
		RunID:       "run-1",
		BuildName:   "nightly",
		BuildNumber: "42",
		Status:      "fail",
		Duration:    90 * time.Second,
		Modes: []ModeSummary{
			{Mode: "API_FEATURE_PARALLEL", Outcome: "some_failed", Units: 2, Failed: 1},
		},
	}

	report, err := Generate(context.Background(), discard(), root, info)
	require.NoError(t, err)
	assert.Len(t, report.Features, 3)

	data, err := os.ReadFile(filepath.Join(root, SummaryFileName))
	require.NoError(t, err)
	doc := gjson.ParseBytes(data)
	assert.Equal(t, "run-1", doc.Get("run.id").String())
	assert.Equal(t, "fail", doc.Get("run.status").String())
	assert.Equal(t, int64(90000), doc.Get("run.duration_ms").Int())
	assert.Equal(t, "nightly", doc.Get("build.name").String())
	assert.Equal(t, "42", doc.Get("build.number").String())
	assert.Equal(t, int64(3), doc.Get("totals.features").Int())
	assert.Equal(t, int64(1), doc.Get("totals.failed").Int())
	assert.Equal(t, "some_failed", doc.Get("modes.0.outcome").String())
	assert.Equal(t, "Orders", doc.Get("features.1.name").String())
	assert.Equal(t, "failed", doc.Get("features.1.status").String())
	assert.Equal(t, int64(3), doc.Get("malformed.#").Int())

	html, err := os.ReadFile(filepath.Join(root, OverviewFileName))
	require.NoError(t, err)
	assert.Contains(t, string(html), "nightly #42")
	assert.Contains(t, string(html), "API_FEATURE_PARALLEL")
	assert.Contains(t, string(html), "Unreadable reports")
	assert.Contains(t, string(html), `<tr class="failed">`)
}

func TestSummaryJSONEmpty(t *testing.T) {
	data, err := SummaryJSON(&Report{Collection: &Collection{}})
	require.NoError(t, err)
	doc := gjson.ParseBytes(data)
	assert.True(t, doc.Get("features").IsArray())
	assert.Equal(t, int64(0), doc.Get("features.#").Int())
	assert.Equal(t, int64(0), doc.Get("malformed.#").Int())
}

func TestRenderHTMLNoFeatures(t *testing.T) {
	data, err := RenderHTML(&Report{Collection: &Collection{}})
	require.NoError(t, err)
	assert.Contains(t, string(data), "No reports found.")
	assert.Contains(t, string(data), "<h1>Cucumber</h1>")
}
