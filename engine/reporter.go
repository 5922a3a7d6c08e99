package engine

import (
	"encoding/json"
	"encoding/xml"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/ethereum-optimism/infra/op-cuke/feature"
)

// FileReporter writes a cucumber JSON report and, when junitPath is set, a
// JUnit XML report for a single feature.
type FileReporter struct {
	jsonPath  string
	junitPath string

	mu       sync.Mutex
	feature  *feature.Feature
	results  []ScenarioResult
	finished bool
}

var _ Reporter = (*FileReporter)(nil)

// NewFileReporter returns a reporter writing to the given paths.
func NewFileReporter(jsonPath, junitPath string) *FileReporter {
	return &FileReporter{jsonPath: jsonPath, junitPath: junitPath}
}

// JSONPath is the cucumber JSON destination.
func (r *FileReporter) JSONPath() string { return r.jsonPath }

// JUnitPath is the JUnit XML destination, possibly empty.
func (r *FileReporter) JUnitPath() string { return r.junitPath }

func (r *FileReporter) Begin(f *feature.Feature) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.feature = f
}

func (r *FileReporter) Record(result ScenarioResult) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.results = append(r.results, result)
}

// Results returns a copy of everything recorded so far.
func (r *FileReporter) Results() []ScenarioResult {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]ScenarioResult(nil), r.results...)
}

func (r *FileReporter) Finish() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.finished {
		return errors.New("reporter already finished")
	}
	r.finished = true
	if r.feature == nil {
		return errors.New("reporter finished without a feature")
	}

	if err := writeFile(r.jsonPath, func() ([]byte, error) {
		return json.MarshalIndent([]cukeFeature{toCukeFeature(r.feature, r.results)}, "", "  ")
	}); err != nil {
		return err
	}
	if r.junitPath == "" {
		return nil
	}
	return writeFile(r.junitPath, func() ([]byte, error) {
		data, err := xml.MarshalIndent(toJUnitSuite(r.feature, r.results), "", "  ")
		if err != nil {
			return nil, err
		}
		return append([]byte(xml.Header), data...), nil
	})
}

func writeFile(path string, encode func() ([]byte, error)) error {
	data, err := encode()
	if err != nil {
		return fmt.Errorf("failed to encode report %s: %w", path, err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create report directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write report %s: %w", path, err)
	}
	return nil
}

// cucumber JSON report layout

type cukeTag struct {
	Name string `json:"name"`
}

type cukeResult struct {
	Status       Status `json:"status"`
	Duration     int64  `json:"duration,omitempty"`
	ErrorMessage string `json:"error_message,omitempty"`
}

type cukeStep struct {
	Keyword string     `json:"keyword"`
	Name    string     `json:"name"`
	Line    int64      `json:"line"`
	Result  cukeResult `json:"result"`
}

type cukeElement struct {
	ID      string     `json:"id"`
	Keyword string     `json:"keyword"`
	Name    string     `json:"name"`
	Line    int64      `json:"line"`
	Type    string     `json:"type"`
	Tags    []cukeTag  `json:"tags,omitempty"`
	Steps   []cukeStep `json:"steps"`
}

type cukeFeature struct {
	URI      string        `json:"uri"`
	ID       string        `json:"id"`
	Keyword  string        `json:"keyword"`
	Name     string        `json:"name"`
	Tags     []cukeTag     `json:"tags,omitempty"`
	Elements []cukeElement `json:"elements"`
}

func toCukeTags(names []string) []cukeTag {
	if len(names) == 0 {
		return nil
	}
	tags := make([]cukeTag, 0, len(names))
	for _, n := range names {
		tags = append(tags, cukeTag{Name: n})
	}
	return tags
}

func slugID(s string) string {
	return strings.ToLower(strings.Join(strings.Fields(s), "-"))
}

func toCukeFeature(f *feature.Feature, results []ScenarioResult) cukeFeature {
	out := cukeFeature{
		URI:      f.Path,
		ID:       slugID(f.Name()),
		Keyword:  "Feature",
		Name:     f.Name(),
		Tags:     toCukeTags(f.Tags()),
		Elements: make([]cukeElement, 0, len(results)),
	}
	for _, res := range results {
		out.Elements = append(out.Elements, cukeElement{
			ID:      out.ID + ";" + slugID(res.Scenario.Name),
			Keyword: strings.TrimSpace(res.Scenario.Keyword),
			Name:    res.Scenario.Name,
			Line:    res.Scenario.Line,
			Type:    "scenario",
			Tags:    toCukeTags(res.Scenario.Tags),
			Steps:   toCukeSteps(res),
		})
	}
	return out
}

// toCukeSteps spreads a scenario outcome over its steps: a failure lands on
// the first step and the remaining steps are skipped.
func toCukeSteps(res ScenarioResult) []cukeStep {
	steps := make([]cukeStep, 0, len(res.Scenario.Steps))
	n := int64(len(res.Scenario.Steps))
	for i, st := range res.Scenario.Steps {
		result := cukeResult{Status: res.Status}
		switch res.Status {
		case StatusPassed:
			result.Duration = res.Duration.Nanoseconds() / n
		case StatusFailed:
			if i == 0 {
				result.Duration = res.Duration.Nanoseconds()
				result.ErrorMessage = res.Message
			} else {
				result.Status = StatusSkipped
			}
		}
		steps = append(steps, cukeStep{
			Keyword: st.Keyword,
			Name:    st.Text,
			Line:    st.Line,
			Result:  result,
		})
	}
	return steps
}

// JUnit XML report layout

type junitFailure struct {
	Message string `xml:"message,attr"`
	Text    string `xml:",chardata"`
}

type junitSkipped struct{}

type junitTestCase struct {
	Name      string        `xml:"name,attr"`
	ClassName string        `xml:"classname,attr"`
	Time      string        `xml:"time,attr"`
	Failure   *junitFailure `xml:"failure,omitempty"`
	Skipped   *junitSkipped `xml:"skipped,omitempty"`
}

type junitTestSuite struct {
	XMLName   xml.Name        `xml:"testsuite"`
	Name      string          `xml:"name,attr"`
	Tests     int             `xml:"tests,attr"`
	Failures  int             `xml:"failures,attr"`
	Skipped   int             `xml:"skipped,attr"`
	Time      string          `xml:"time,attr"`
	TestCases []junitTestCase `xml:"testcase"`
}

func toJUnitSuite(f *feature.Feature, results []ScenarioResult) junitTestSuite {
	suite := junitTestSuite{
		Name:      f.Name(),
		Tests:     len(results),
		TestCases: make([]junitTestCase, 0, len(results)),
	}
	var total float64
	for _, res := range results {
		secs := res.Duration.Seconds()
		total += secs
		tc := junitTestCase{
			Name:      res.Scenario.Name,
			ClassName: f.Path,
			Time:      fmt.Sprintf("%.3f", secs),
		}
		switch res.Status {
		case StatusFailed:
			suite.Failures++
			tc.Failure = &junitFailure{Message: res.Message, Text: res.Message}
		case StatusSkipped:
			suite.Skipped++
			tc.Skipped = &junitSkipped{}
		}
		suite.TestCases = append(suite.TestCases, tc)
	}
	suite.Time = fmt.Sprintf("%.3f", total)
	return suite
}
