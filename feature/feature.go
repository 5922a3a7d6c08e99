// Package feature loads Gherkin feature files and prunes their scenarios by
// tag before they are handed to an engine.
package feature

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	gherkin "github.com/cucumber/gherkin/go/v26"
	messages "github.com/cucumber/messages/go/v21"
)

// Feature is a parsed feature file. The underlying document is mutated in
// place by FilterByTags.
type Feature struct {
	Path     string
	Document *messages.GherkinDocument
}

// Scenario is a flattened view of one executable scenario.
type Scenario struct {
	Name    string
	Keyword string
	Line    int64
	Rule    string
	Tags    []string
	Steps   []Step
}

// Step is one step line of a scenario.
type Step struct {
	Keyword string
	Text    string
	Line    int64
}

// Load reads and parses the feature file at path.
func Load(path string) (*Feature, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open feature %s: %w", path, err)
	}
	defer f.Close()
	return Parse(path, f)
}

// Parse parses a feature from r. The path is only recorded, not opened.
func Parse(path string, r io.Reader) (*Feature, error) {
	doc, err := gherkin.ParseGherkinDocument(r, (&messages.Incrementing{}).NewId)
	if err != nil {
		return nil, fmt.Errorf("failed to parse feature %s: %w", path, err)
	}
	doc.Uri = path
	return &Feature{Path: path, Document: doc}, nil
}

// Name returns the feature title, or the file name when the file has no
// Feature keyword.
func (f *Feature) Name() string {
	if f.Document != nil && f.Document.Feature != nil && f.Document.Feature.Name != "" {
		return f.Document.Feature.Name
	}
	return filepath.Base(f.Path)
}

// Tags returns the feature-level tag names.
func (f *Feature) Tags() []string {
	if f.Document == nil || f.Document.Feature == nil {
		return nil
	}
	return tagNames(f.Document.Feature.Tags)
}

// Scenarios returns every scenario of the feature, including those nested in
// rules, in file order.
func (f *Feature) Scenarios() []Scenario {
	if f.Document == nil || f.Document.Feature == nil {
		return nil
	}
	var out []Scenario
	for _, child := range f.Document.Feature.Children {
		switch {
		case child.Scenario != nil:
			out = append(out, newScenario(child.Scenario, ""))
		case child.Rule != nil:
			for _, rc := range child.Rule.Children {
				if rc.Scenario != nil {
					out = append(out, newScenario(rc.Scenario, child.Rule.Name))
				}
			}
		}
	}
	return out
}

// ScenarioLines returns the line numbers of every remaining scenario, the form
// engines accept as "path:line:line" selectors.
func (f *Feature) ScenarioLines() []int64 {
	scenarios := f.Scenarios()
	lines := make([]int64, 0, len(scenarios))
	for _, s := range scenarios {
		lines = append(lines, s.Line)
	}
	return lines
}

// HasScenarios reports whether at least one scenario is left.
func (f *Feature) HasScenarios() bool {
	return len(f.Scenarios()) > 0
}

func newScenario(s *messages.Scenario, rule string) Scenario {
	var line int64
	if s.Location != nil {
		line = s.Location.Line
	}
	return Scenario{
		Name:    s.Name,
		Keyword: s.Keyword,
		Line:    line,
		Rule:    rule,
		Tags:    tagNames(s.Tags),
		Steps:   newSteps(s.Steps),
	}
}

func newSteps(steps []*messages.Step) []Step {
	out := make([]Step, 0, len(steps))
	for _, st := range steps {
		var line int64
		if st.Location != nil {
			line = st.Location.Line
		}
		out = append(out, Step{Keyword: st.Keyword, Text: st.Text, Line: line})
	}
	return out
}

func tagNames(tags []*messages.Tag) []string {
	names := make([]string, 0, len(tags))
	for _, t := range tags {
		names = append(names, t.Name)
	}
	return names
}
