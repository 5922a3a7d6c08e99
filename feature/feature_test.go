package feature

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const smokeRegression = `Feature: Accounts

  Background:
    * url 'http://localhost'

  @smoke
  Scenario: list accounts
    Given path 'accounts'

  @regression
  Scenario: delete account
    Given path 'accounts/1'
`

const featureTagged = `@smoke
Feature: Payments

  Scenario: pay
    Given path 'pay'

  @slow
  Scenario: refund
    Given path 'refund'
`

const withRules = `Feature: Orders

  Rule: creation
    @smoke
    Scenario: create order
      Given path 'orders'

    Scenario: create draft
      Given path 'drafts'

  @nightly
  Rule: cleanup
    Scenario: purge
      Given path 'purge'
`

func parse(t *testing.T, content string) *Feature {
	t.Helper()
	f, err := Parse("test.feature", strings.NewReader(content))
	require.NoError(t, err)
	return f
}

func scenarioNames(f *Feature) []string {
	var names []string
	for _, s := range f.Scenarios() {
		names = append(names, s.Name)
	}
	return names
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "accounts.feature")
	require.NoError(t, os.WriteFile(path, []byte(smokeRegression), 0644))

	f, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "Accounts", f.Name())
	assert.Equal(t, path, f.Path)
	require.Len(t, f.Scenarios(), 2)
	assert.Equal(t, []string{"@smoke"}, f.Scenarios()[0].Tags)
	assert.Equal(t, int64(7), f.Scenarios()[0].Line)
	require.Len(t, f.Scenarios()[0].Steps, 1)
	assert.Equal(t, "path 'accounts'", f.Scenarios()[0].Steps[0].Text)
	assert.Equal(t, int64(8), f.Scenarios()[0].Steps[0].Line)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.feature"))
	require.Error(t, err)
}

func TestParseInvalidFeature(t *testing.T) {
	// a step before the Feature line is rejected by the parser
	_, err := Parse("bad.feature", strings.NewReader("Given x\nFeature: a\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bad.feature")
}

func TestFilterByTagsKeepsMatchingScenario(t *testing.T) {
	f := parse(t, smokeRegression)

	FilterByTags(f, []string{"@smoke"})

	assert.Equal(t, []string{"list accounts"}, scenarioNames(f))
	// Background survives filtering
	require.NotNil(t, f.Document.Feature.Children[0].Background)
}

func TestFilterByTagsNoneSentinel(t *testing.T) {
	f := parse(t, smokeRegression)

	FilterByTags(f, []string{"none"})
	assert.Len(t, f.Scenarios(), 2)

	FilterByTags(f, []string{"@smoke", "NONE"})
	assert.Len(t, f.Scenarios(), 2)
}

func TestFilterByTagsEmptySet(t *testing.T) {
	f := parse(t, smokeRegression)

	FilterByTags(f, nil)
	assert.Len(t, f.Scenarios(), 2)

	FilterByTags(f, []string{"", "  "})
	assert.Len(t, f.Scenarios(), 2)
}

func TestFilterByTagsFeatureLevelTag(t *testing.T) {
	f := parse(t, featureTagged)

	FilterByTags(f, []string{"@smoke"})
	assert.Equal(t, []string{"pay", "refund"}, scenarioNames(f))
}

func TestFilterByTagsNoMatchRemovesEverything(t *testing.T) {
	f := parse(t, smokeRegression)

	FilterByTags(f, []string{"@missing"})
	assert.False(t, f.HasScenarios())
	assert.Empty(t, f.ScenarioLines())
}

func TestFilterByTagsExactMatchOnly(t *testing.T) {
	f := parse(t, smokeRegression)

	FilterByTags(f, []string{"smoke"})
	assert.False(t, f.HasScenarios(), "tags are compared verbatim, including the @ prefix")
}

func TestFilterByTagsRules(t *testing.T) {
	f := parse(t, withRules)

	FilterByTags(f, []string{"@smoke", "@nightly"})
	assert.Equal(t, []string{"create order", "purge"}, scenarioNames(f))
	assert.Equal(t, "creation", f.Scenarios()[0].Rule)

	g := parse(t, withRules)
	FilterByTags(g, []string{"@smoke"})
	assert.Equal(t, []string{"create order"}, scenarioNames(g))
	assert.Len(t, g.Document.Feature.Children, 1, "empty rule is dropped")
}

func TestEmptyDocument(t *testing.T) {
	f := parse(t, "# nothing here\n")
	assert.Empty(t, f.Scenarios())
	assert.Empty(t, f.Tags())
	assert.Equal(t, "test.feature", f.Name())
	FilterByTags(f, []string{"@smoke"})
}

func TestTagSet(t *testing.T) {
	assert.Nil(t, TagSet(nil))
	assert.Nil(t, TagSet([]string{"@a", "none"}))
	assert.Equal(t, map[string]struct{}{"@a": {}, "@b": {}}, TagSet([]string{" @a", "@b", ""}))
}
