package types

import (
	"fmt"
	"strings"
)

// ExecutionMode names a strategy for running features: which engine, what
// granularity (feature or tag) and whether units run one at a time.
type ExecutionMode string

const (
	ApiTagParallel       ExecutionMode = "API_TAG_PARALLEL"
	ApiFeatureSequential ExecutionMode = "API_FEATURE_SEQUENTIAL"
	ApiFeatureParallel   ExecutionMode = "API_FEATURE_PARALLEL"
	UiTagParallel        ExecutionMode = "UI_TAG_PARALLEL"
	UiFeatureParallel    ExecutionMode = "UI_FEATURE_PARALLEL"
	UiFeatureSequential  ExecutionMode = "UI_FEATURE_SEQUENTIAL"
)

// AllExecutionModes lists every supported mode in declaration order.
var AllExecutionModes = []ExecutionMode{
	ApiTagParallel,
	ApiFeatureSequential,
	ApiFeatureParallel,
	UiTagParallel,
	UiFeatureParallel,
	UiFeatureSequential,
}

// Engine selects one of the two execution backends.
type Engine string

const (
	EngineUI  Engine = "ui"
	EngineAPI Engine = "api"
)

func (e Engine) String() string {
	return string(e)
}

// ParseExecutionMode accepts both the upper snake case spelling used in
// configuration files ("API_TAG_PARALLEL") and the camel case spelling
// ("ApiTagParallel"). Matching ignores case, '_' and '-'.
func ParseExecutionMode(s string) (ExecutionMode, error) {
	key := normalizeModeName(s)
	for _, m := range AllExecutionModes {
		if normalizeModeName(string(m)) == key {
			return m, nil
		}
	}
	return "", fmt.Errorf("unknown execution mode %q", s)
}

func normalizeModeName(s string) string {
	s = strings.TrimSpace(s)
	s = strings.ReplaceAll(s, "_", "")
	s = strings.ReplaceAll(s, "-", "")
	return strings.ToLower(s)
}

// IsValid reports whether m is one of the declared modes.
func (m ExecutionMode) IsValid() bool {
	for _, known := range AllExecutionModes {
		if m == known {
			return true
		}
	}
	return false
}

// Engine returns the backend a mode dispatches to.
func (m ExecutionMode) Engine() Engine {
	switch m {
	case ApiTagParallel, ApiFeatureSequential, ApiFeatureParallel:
		return EngineAPI
	default:
		return EngineUI
	}
}

// IsSequential reports whether units of the mode are awaited one by one.
func (m ExecutionMode) IsSequential() bool {
	return m == ApiFeatureSequential || m == UiFeatureSequential
}

// FiltersTags reports whether the mode selects scenarios by tag.
func (m ExecutionMode) FiltersTags() bool {
	return m == ApiTagParallel || m == UiTagParallel
}

// Slug is a lower case, file-name friendly form of the mode.
func (m ExecutionMode) Slug() string {
	return strings.ToLower(string(m))
}

func (m ExecutionMode) String() string {
	return string(m)
}
