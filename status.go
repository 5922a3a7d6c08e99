package cuke

import (
	"strings"
	"sync"
	"time"

	"github.com/ethereum-optimism/infra/op-cuke/runner"
	"github.com/ethereum-optimism/infra/op-cuke/types"
)

// UnitStatus is the JSON view of one settled unit.
type UnitStatus struct {
	ID         string `json:"id"`
	State      string `json:"state"`
	Code       int    `json:"code"`
	Report     string `json:"report"`
	Log        string `json:"log"`
	DurationMs int64  `json:"duration_ms"`
}

// ModeStatus is the JSON view of one processed mode.
type ModeStatus struct {
	Mode       string       `json:"mode"`
	Outcome    string       `json:"outcome"`
	Units      int          `json:"units"`
	Failed     int          `json:"failed"`
	DurationMs int64        `json:"duration_ms"`
	Results    []UnitStatus `json:"results,omitempty"`
}

// RunStatus is the JSON view of the whole run served on /status.
type RunStatus struct {
	RunID   string       `json:"run_id"`
	Status  string       `json:"status"`
	Started time.Time    `json:"started"`
	Modes   []ModeStatus `json:"modes"`
	Pending []string     `json:"pending"`
}

// progress tracks modes as the orchestrator finishes them.
type progress struct {
	mu      sync.Mutex
	runID   string
	planned []types.ExecutionMode
	started time.Time
	status  string
	modes   []runner.ModeResult
}

func newProgress(runID string, planned []types.ExecutionMode) *progress {
	return &progress{runID: runID, planned: planned, status: "pending"}
}

func (p *progress) start() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.started = time.Now()
	p.status = "running"
}

func (p *progress) record(m runner.ModeResult) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.modes = append(p.modes, m)
}

func (p *progress) finish(status types.RunStatus) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.status = string(status)
}

func (p *progress) snapshot() RunStatus {
	p.mu.Lock()
	defer p.mu.Unlock()
	s := RunStatus{
		RunID:   p.runID,
		Status:  p.status,
		Started: p.started,
		Modes:   make([]ModeStatus, 0, len(p.modes)),
		Pending: []string{},
	}
	for _, m := range p.modes {
		s.Modes = append(s.Modes, modeStatus(m, false))
	}
	for _, m := range p.planned[len(p.modes):] {
		s.Pending = append(s.Pending, m.String())
	}
	return s
}

// mode looks a processed mode up by any accepted spelling of its name.
func (p *progress) mode(name string) (ModeStatus, bool) {
	want, err := types.ParseExecutionMode(name)
	if err != nil {
		return ModeStatus{}, false
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, m := range p.modes {
		if m.Mode == want {
			return modeStatus(m, true), true
		}
	}
	return ModeStatus{}, false
}

func modeStatus(m runner.ModeResult, withUnits bool) ModeStatus {
	s := ModeStatus{
		Mode:       m.Mode.String(),
		Outcome:    string(m.Result.Outcome),
		Units:      len(m.Result.Units),
		Failed:     m.Result.Failed(),
		DurationMs: m.Result.Duration.Milliseconds(),
	}
	if withUnits {
		for _, u := range m.Result.Units {
			s.Results = append(s.Results, UnitStatus{
				ID:         u.ID,
				State:      strings.ToLower(u.State.String()),
				Code:       int(u.Code),
				Report:     u.Report,
				Log:        u.Log,
				DurationMs: u.Duration.Milliseconds(),
			})
		}
	}
	return s
}
