package draft

import (
	"encoding/json"
	"fmt"
)

// Featured rule kinds and rule values.
const (
	FeaturedKindCharacter = "character"
	FeaturedKindAccessory = "accessory"

	RuleNone       = "none"
	RuleGlobalBan  = "globalBan"
	RuleGlobalPick = "globalPick"
)

// FeaturedRule is a per-session override restricting or forcing a character
// or accessory globally.
type FeaturedRule struct {
	Kind       string   `json:"kind"`
	Code       string   `json:"code,omitempty"` // character rules
	ID         string   `json:"id,omitempty"`   // accessory rules
	Rule       string   `json:"rule"`
	CustomCost *float64 `json:"customCost,omitempty"`
}

// SanitizeFeatured parses an owner-supplied featured list. Unknown fields
// are discarded, unknown rule values coerce to none, and accessory
// globalPick is rejected outright.
func SanitizeFeatured(raw json.RawMessage) ([]FeaturedRule, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}
	var rules []FeaturedRule
	if err := json.Unmarshal(raw, &rules); err != nil {
		return nil, fmt.Errorf("decode featured list: %w", err)
	}
	out := make([]FeaturedRule, 0, len(rules))
	for i, r := range rules {
		switch r.Kind {
		case FeaturedKindCharacter:
			if r.Code == "" {
				return nil, fmt.Errorf("featured[%d]: character rule without code", i)
			}
		case FeaturedKindAccessory:
			if r.ID == "" {
				return nil, fmt.Errorf("featured[%d]: accessory rule without id", i)
			}
			if r.Rule == RuleGlobalPick {
				return nil, fmt.Errorf("featured[%d]: accessory globalPick is not allowed", i)
			}
		default:
			return nil, fmt.Errorf("featured[%d]: unknown kind %q", i, r.Kind)
		}
		switch r.Rule {
		case RuleNone, RuleGlobalBan, RuleGlobalPick:
		default:
			r.Rule = RuleNone
		}
		out = append(out, r)
	}
	return out, nil
}

// RuleSet is the reducer-facing view of a featured list.
type RuleSet struct {
	CharacterGlobalBan  map[string]bool
	CharacterGlobalPick map[string]bool
	AccessoryGlobalBan  map[string]bool
}

// BuildRuleSet indexes a featured list for the reducer.
func BuildRuleSet(rules []FeaturedRule) RuleSet {
	rs := RuleSet{
		CharacterGlobalBan:  map[string]bool{},
		CharacterGlobalPick: map[string]bool{},
		AccessoryGlobalBan:  map[string]bool{},
	}
	for _, r := range rules {
		switch {
		case r.Kind == FeaturedKindCharacter && r.Rule == RuleGlobalBan:
			rs.CharacterGlobalBan[r.Code] = true
		case r.Kind == FeaturedKindCharacter && r.Rule == RuleGlobalPick:
			rs.CharacterGlobalPick[r.Code] = true
		case r.Kind == FeaturedKindAccessory && r.Rule == RuleGlobalBan:
			rs.AccessoryGlobalBan[r.ID] = true
		}
	}
	return rs
}
