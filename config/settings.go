package config

import (
	"errors"
	"fmt"

	"github.com/ethereum-optimism/infra/op-cuke/types"
)

// Configuration keys read by the orchestrator.
const (
	KeyParallelMode       = "parallelmode"
	KeyAPIFeatureFilePath = "apifeaturefilepath"
	KeyFeatureFilePath    = "featurefilepath"
	KeyTagsToRun          = "tagstorun"
	KeyGluedPackages      = "gluedpackages"
	KeyGenerateReport     = "generatereport"
	KeyBuildName          = "buildname"
	KeyBuildNumber        = "buildnumber"
)

// Settings is the typed view of the keys the orchestrator consumes.
type Settings struct {
	Modes          []types.ExecutionMode
	APIFeaturePath string
	FeaturePath    string
	Tags           []string
	GluePackages   []string
	GenerateReport bool
	BuildName      string
	BuildNumber    string
}

// Settings decodes and validates the orchestrator settings.
func (p *Provider) Settings() (*Settings, error) {
	names := p.Strings(KeyParallelMode)
	if len(names) == 0 {
		return nil, errors.New("no execution modes configured (" + KeyParallelMode + ")")
	}

	modes := make([]types.ExecutionMode, 0, len(names))
	for _, name := range names {
		mode, err := types.ParseExecutionMode(name)
		if err != nil {
			return nil, fmt.Errorf("invalid %s: %w", KeyParallelMode, err)
		}
		modes = append(modes, mode)
	}

	generate, _, err := p.Bool(KeyGenerateReport)
	if err != nil {
		return nil, err
	}

	s := &Settings{
		Modes:          modes,
		APIFeaturePath: p.String(KeyAPIFeatureFilePath),
		FeaturePath:    p.String(KeyFeatureFilePath),
		Tags:           p.Strings(KeyTagsToRun),
		GluePackages:   p.Strings(KeyGluedPackages),
		GenerateReport: generate,
		BuildName:      p.String(KeyBuildName),
		BuildNumber:    p.String(KeyBuildNumber),
	}

	for _, m := range s.Modes {
		if m.Engine() == types.EngineAPI && s.APIFeaturePath == "" {
			return nil, fmt.Errorf("mode %s requires %s", m, KeyAPIFeatureFilePath)
		}
		if m.Engine() == types.EngineUI && s.FeaturePath == "" {
			return nil, fmt.Errorf("mode %s requires %s", m, KeyFeatureFilePath)
		}
	}

	return s, nil
}
