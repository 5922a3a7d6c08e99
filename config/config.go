// Package config provides the read-only key/value configuration consumed by
// the scheduler. Values come from property, YAML and TOML files merged in
// order, with explicit overrides (flags, environment) applied last.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/ethereum/go-ethereum/log"
	"github.com/magiconair/properties"
	"gopkg.in/yaml.v3"
)

// Provider is an immutable, merged view of every configuration source.
// Keys are case-insensitive.
type Provider struct {
	values  map[string]any
	sources []string
}

// Load merges the given files in order and then applies overrides. Files
// that do not exist are logged and skipped; files that exist but cannot be
// parsed are an error.
func Load(logger log.Logger, files []string, overrides map[string]any) (*Provider, error) {
	if logger == nil {
		logger = log.New()
	}
	p := &Provider{values: make(map[string]any)}

	for _, file := range files {
		values, err := readFile(file)
		if errors.Is(err, fs.ErrNotExist) {
			logger.Error("Configuration file not found", "file", file)
			continue
		}
		if err != nil {
			return nil, err
		}
		p.merge(values)
		p.sources = append(p.sources, file)
		logger.Debug("Loaded configuration file", "file", file, "keys", len(values))
	}

	if len(overrides) > 0 {
		p.merge(overrides)
		p.sources = append(p.sources, "overrides")
	}

	return p, nil
}

// FromMap builds a provider from literal values, mostly useful in tests.
func FromMap(values map[string]any) *Provider {
	p := &Provider{values: make(map[string]any)}
	p.merge(values)
	return p
}

func (p *Provider) merge(values map[string]any) {
	for k, v := range values {
		p.values[normalizeKey(k)] = v
	}
}

// Sources lists the files (and "overrides") that contributed values.
func (p *Provider) Sources() []string {
	return append([]string(nil), p.sources...)
}

// Keys returns every known key in sorted order.
func (p *Provider) Keys() []string {
	keys := make([]string, 0, len(p.values))
	for k := range p.values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Lookup returns the raw value stored for key.
func (p *Provider) Lookup(key string) (any, bool) {
	v, ok := p.values[normalizeKey(key)]
	return v, ok
}

// String returns the value for key rendered as a string, or "" when unset.
func (p *Provider) String(key string) string {
	v, ok := p.Lookup(key)
	if !ok || v == nil {
		return ""
	}
	return strings.TrimSpace(fmt.Sprint(v))
}

// Strings returns a list value. Native lists are used as-is; scalar values
// are split on commas, which is how list properties are written.
func (p *Provider) Strings(key string) []string {
	v, ok := p.Lookup(key)
	if !ok || v == nil {
		return nil
	}

	var out []string
	switch val := v.(type) {
	case []string:
		for _, s := range val {
			out = appendTrimmed(out, s)
		}
	case []any:
		for _, item := range val {
			out = appendTrimmed(out, fmt.Sprint(item))
		}
	default:
		for _, s := range strings.Split(fmt.Sprint(val), ",") {
			out = appendTrimmed(out, s)
		}
	}
	return out
}

// Bool parses a boolean value. An unset key is reported with ok=false.
func (p *Provider) Bool(key string) (value bool, ok bool, err error) {
	v, found := p.Lookup(key)
	if !found || v == nil {
		return false, false, nil
	}
	if b, isBool := v.(bool); isBool {
		return b, true, nil
	}
	b, err := strconv.ParseBool(strings.TrimSpace(fmt.Sprint(v)))
	if err != nil {
		return false, true, fmt.Errorf("invalid boolean for %s: %w", key, err)
	}
	return b, true, nil
}

func appendTrimmed(out []string, s string) []string {
	s = strings.TrimSpace(s)
	if s == "" {
		return out
	}
	return append(out, s)
}

func normalizeKey(k string) string {
	return strings.ToLower(strings.TrimSpace(k))
}

func readFile(path string) (map[string]any, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, err
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", path, err)
		}
		var raw map[string]any
		if err := yaml.Unmarshal(data, &raw); err != nil {
			return nil, fmt.Errorf("failed to parse YAML config %s: %w", path, err)
		}
		return flatten("", raw), nil
	case ".toml":
		var raw map[string]any
		if _, err := toml.DecodeFile(path, &raw); err != nil {
			return nil, fmt.Errorf("failed to parse TOML config %s: %w", path, err)
		}
		return flatten("", raw), nil
	default:
		props, err := properties.LoadFile(path, properties.UTF8)
		if err != nil {
			return nil, fmt.Errorf("failed to parse properties config %s: %w", path, err)
		}
		values := make(map[string]any, props.Len())
		for _, k := range props.Keys() {
			v, _ := props.Get(k)
			values[k] = v
		}
		return values, nil
	}
}

// flatten turns nested tables into dotted keys so that every format ends up
// with the same flat key space as a properties file.
func flatten(prefix string, in map[string]any) map[string]any {
	out := make(map[string]any, len(in))
	for k, v := range in {
		key := k
		if prefix != "" {
			key = prefix + "." + k
		}
		if nested, ok := v.(map[string]any); ok {
			for nk, nv := range flatten(key, nested) {
				out[nk] = nv
			}
			continue
		}
		out[key] = v
	}
	return out
}
