package feature

import (
	"strings"

	messages "github.com/cucumber/messages/go/v21"

	"github.com/ethereum-optimism/infra/op-cuke/types"
)

// FilterByTags removes, in place, every scenario whose own tags and whose
// enclosing feature and rule tags do not intersect tags. Matching is exact
// string equality; boolean tag expressions are not evaluated. An empty tag set
// or one containing the "none" sentinel leaves the feature untouched.
// Backgrounds are kept, rules left without scenarios are dropped.
func FilterByTags(f *Feature, tags []string) {
	if f == nil || f.Document == nil || f.Document.Feature == nil {
		return
	}
	wanted := TagSet(tags)
	if len(wanted) == 0 {
		return
	}

	feat := f.Document.Feature
	if intersects(feat.Tags, wanted) {
		return
	}

	kept := feat.Children[:0]
	for _, child := range feat.Children {
		switch {
		case child.Scenario != nil:
			if intersects(child.Scenario.Tags, wanted) {
				kept = append(kept, child)
			}
		case child.Rule != nil:
			if filterRule(child.Rule, wanted) {
				kept = append(kept, child)
			}
		default:
			kept = append(kept, child)
		}
	}
	feat.Children = kept
}

// TagSet builds the lookup set for a configured tag list. It returns nil when
// filtering is disabled: the list is empty or mentions the "none" sentinel.
func TagSet(tags []string) map[string]struct{} {
	set := make(map[string]struct{}, len(tags))
	for _, t := range tags {
		t = strings.TrimSpace(t)
		if t == "" {
			continue
		}
		if IsNone(t) {
			return nil
		}
		set[t] = struct{}{}
	}
	if len(set) == 0 {
		return nil
	}
	return set
}

// IsNone reports whether a configured value is the "none" sentinel.
func IsNone(v string) bool {
	return strings.EqualFold(strings.TrimSpace(v), types.NoneSentinel)
}

func filterRule(rule *messages.Rule, wanted map[string]struct{}) bool {
	if intersects(rule.Tags, wanted) {
		return true
	}
	scenarios := 0
	kept := rule.Children[:0]
	for _, rc := range rule.Children {
		if rc.Scenario == nil {
			kept = append(kept, rc)
			continue
		}
		if intersects(rc.Scenario.Tags, wanted) {
			kept = append(kept, rc)
			scenarios++
		}
	}
	rule.Children = kept
	return scenarios > 0
}

func intersects(tags []*messages.Tag, wanted map[string]struct{}) bool {
	for _, t := range tags {
		if _, ok := wanted[t.Name]; ok {
			return true
		}
	}
	return false
}
