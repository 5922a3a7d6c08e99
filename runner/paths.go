package runner

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/ethereum-optimism/infra/op-cuke/types"
)

const (
	ReportsDirName = "cucumber-reports"
	LogsDirName    = "logs"

	// timestampLayout keeps discriminators sortable and free of ':' so they
	// are valid file names everywhere.
	timestampLayout = "20060102T150405.000000000"
)

var unsafeNameChars = regexp.MustCompile(`[^a-zA-Z0-9._-]+`)

// Layout describes where a run writes its reports and unit logs.
type Layout struct {
	Root string
}

// NewLayout roots the report tree under outputDir.
func NewLayout(outputDir string) Layout {
	return Layout{Root: filepath.Join(outputDir, ReportsDirName)}
}

// EngineDir returns the report directory for the given engine.
func (l Layout) EngineDir(e types.Engine) string {
	return filepath.Join(l.Root, e.String())
}

// LogDir returns the directory holding per-unit logs.
func (l Layout) LogDir() string {
	return filepath.Join(l.Root, LogsDirName)
}

// Ensure creates every directory of the layout.
func (l Layout) Ensure() error {
	for _, dir := range []string{l.EngineDir(types.EngineAPI), l.EngineDir(types.EngineUI), l.LogDir()} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create report directory %s: %w", dir, err)
		}
	}
	return nil
}

// UnitPaths holds the output locations of one execution unit.
type UnitPaths struct {
	Discriminator string
	Report        string
	JUnit         string
	Log           string
}

// PathAllocator hands out report locations that are unique for the
// lifetime of the allocator, even when two units are created within the
// same clock tick.
type PathAllocator struct {
	layout Layout
	now    func() time.Time

	mu   sync.Mutex
	used map[string]int
}

func NewPathAllocator(layout Layout) *PathAllocator {
	return &PathAllocator{
		layout: layout,
		now:    time.Now,
		used:   make(map[string]int),
	}
}

// Allocate builds the paths for a unit of the given mode. label names the
// work item (feature file, tag or "all").
func (a *PathAllocator) Allocate(mode types.ExecutionMode, label string) UnitPaths {
	base := fmt.Sprintf("%s-%s-%s", sanitizeName(label), mode.Slug(), a.now().UTC().Format(timestampLayout))

	a.mu.Lock()
	n := a.used[base] + 1
	a.used[base] = n
	a.mu.Unlock()

	disc := base
	if n > 1 {
		disc = fmt.Sprintf("%s-%d", base, n)
	}

	dir := a.layout.EngineDir(mode.Engine())
	paths := UnitPaths{
		Discriminator: disc,
		Report:        filepath.Join(dir, disc+".json"),
		Log:           filepath.Join(a.layout.LogDir(), disc+".log"),
	}
	if mode.Engine() == types.EngineAPI {
		paths.JUnit = filepath.Join(dir, disc+".xml")
	}
	return paths
}

// featureLabel turns a feature path into a short label.
func featureLabel(path string) string {
	return strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
}

func sanitizeName(s string) string {
	s = strings.TrimLeft(strings.TrimSpace(s), "@")
	s = unsafeNameChars.ReplaceAllString(s, "_")
	s = strings.Trim(s, "_.")
	if s == "" {
		return "unit"
	}
	return s
}
