// Package draft implements the authoritative draft state machine: the
// persisted State Document, the action reducer, featured-rule enforcement
// and the countdown timer engine.
//
// Everything in this package is pure: the reducer is deterministic up to the
// wall-clock input that drives timer accrual, and nothing here touches the
// database or the network.
package draft

import (
	"encoding/json"
	"fmt"
)

// Side identifies which team a turn token or player token belongs to.
type Side string

const (
	SideBlue Side = "B"
	SideRed  Side = "R"
	// SideNone marks a turn token that names no side. Such tokens reject
	// every side-dependent action and never run the clock.
	SideNone Side = ""
)

// SideOfToken derives the side from a turn token's first character.
// Comparison is case-sensitive.
func SideOfToken(tok string) Side {
	if len(tok) == 0 {
		return SideNone
	}
	switch tok[0] {
	case 'B':
		return SideBlue
	case 'R':
		return SideRed
	}
	return SideNone
}

// IsBanToken reports whether a turn token denotes a ban slot.
// The sentinels are exactly "BB" and "RR".
func IsBanToken(tok string) bool {
	return tok == "BB" || tok == "RR"
}

// Slot is the value written into picks[i]: a character plus accessory and
// upgrades for picks, a character with placeholder upgrades for bans.
//
// Persisted slots may carry legacy field names (mindscape for eidolon,
// wengineId for accessoryId, phase for superimpose) and display-only fields
// this package does not know. Unmarshaling folds the aliases into the modern
// fields and keeps everything else opaque; marshaling re-emits both spellings
// so normalization is idempotent.
type Slot struct {
	CharacterCode string
	Eidolon       int
	AccessoryID   string
	Superimpose   int

	extra map[string]json.RawMessage
}

// slot field names, modern and legacy.
const (
	slotKeyCharacter   = "characterCode"
	slotKeyEidolon     = "eidolon"
	slotKeyMindscape   = "mindscape"
	slotKeyAccessory   = "accessoryId"
	slotKeyWengine     = "wengineId"
	slotKeySuperimpose = "superimpose"
	slotKeyPhase       = "phase"
)

// UnmarshalJSON decodes a slot, accepting legacy aliases and preserving
// unknown fields.
func (sl *Slot) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("decode slot: %w", err)
	}

	sl.Eidolon = 0
	sl.Superimpose = 1
	sl.AccessoryID = ""
	sl.extra = nil

	take := func(key string, dst interface{}) error {
		v, ok := raw[key]
		if !ok {
			return nil
		}
		delete(raw, key)
		if string(v) == "null" {
			return nil
		}
		return json.Unmarshal(v, dst)
	}

	if err := take(slotKeyCharacter, &sl.CharacterCode); err != nil {
		return fmt.Errorf("slot characterCode: %w", err)
	}
	// Legacy alias first so the modern field wins when both are present.
	if err := take(slotKeyMindscape, &sl.Eidolon); err != nil {
		return fmt.Errorf("slot mindscape: %w", err)
	}
	if v, ok := raw[slotKeyEidolon]; ok {
		delete(raw, slotKeyEidolon)
		if string(v) != "null" {
			if err := json.Unmarshal(v, &sl.Eidolon); err != nil {
				return fmt.Errorf("slot eidolon: %w", err)
			}
		}
	}
	if err := take(slotKeyWengine, &sl.AccessoryID); err != nil {
		return fmt.Errorf("slot wengineId: %w", err)
	}
	if v, ok := raw[slotKeyAccessory]; ok {
		delete(raw, slotKeyAccessory)
		if string(v) != "null" {
			if err := json.Unmarshal(v, &sl.AccessoryID); err != nil {
				return fmt.Errorf("slot accessoryId: %w", err)
			}
		}
	}
	if err := take(slotKeyPhase, &sl.Superimpose); err != nil {
		return fmt.Errorf("slot phase: %w", err)
	}
	if v, ok := raw[slotKeySuperimpose]; ok {
		delete(raw, slotKeySuperimpose)
		if string(v) != "null" {
			if err := json.Unmarshal(v, &sl.Superimpose); err != nil {
				return fmt.Errorf("slot superimpose: %w", err)
			}
		}
	}

	if len(raw) > 0 {
		sl.extra = raw
	}
	return nil
}

// MarshalJSON emits the slot with both modern and legacy field names plus
// any preserved opaque fields.
func (sl Slot) MarshalJSON() ([]byte, error) {
	out := make(map[string]interface{}, len(sl.extra)+7)
	for k, v := range sl.extra {
		out[k] = v
	}
	out[slotKeyCharacter] = sl.CharacterCode
	out[slotKeyEidolon] = sl.Eidolon
	out[slotKeyMindscape] = sl.Eidolon
	out[slotKeyAccessory] = sl.AccessoryID
	out[slotKeyWengine] = sl.AccessoryID
	out[slotKeySuperimpose] = sl.Superimpose
	out[slotKeyPhase] = sl.Superimpose
	return json.Marshal(out)
}

// SideValues holds one number per side.
type SideValues struct {
	B float64 `json:"B"`
	R float64 `json:"R"`
}

// Get returns the value for a side (zero for SideNone).
func (v SideValues) Get(s Side) float64 {
	switch s {
	case SideBlue:
		return v.B
	case SideRed:
		return v.R
	}
	return 0
}

// Set writes the value for a side; SideNone is ignored.
func (v *SideValues) Set(s Side, val float64) {
	switch s {
	case SideBlue:
		v.B = val
	case SideRed:
		v.R = val
	}
}

// SideFlags holds one boolean per side.
type SideFlags struct {
	B bool `json:"B"`
	R bool `json:"R"`
}

// Get returns the flag for a side (false for SideNone).
func (f SideFlags) Get(s Side) bool {
	switch s {
	case SideBlue:
		return f.B
	case SideRed:
		return f.R
	}
	return false
}

// Set writes the flag for a side; SideNone is ignored.
func (f *SideFlags) Set(s Side, val bool) {
	switch s {
	case SideBlue:
		f.B = val
	case SideRed:
		f.R = val
	}
}

// State is the document the reducer operates on. The persisted JSON may
// carry fields the reducer does not know (legacy aliases, display-only
// scores); those survive a decode/encode round trip untouched.
type State struct {
	DraftSequence []string
	CurrentTurn   int
	Picks         []*Slot // nil entry = empty slot

	// Display-only; opaque to the reducer.
	BlueScores json.RawMessage
	RedScores  json.RawMessage

	BlueLocked bool
	RedLocked  bool

	// Timer fields. Materialized by EnsureTimer when absent.
	TimerEnabled   bool
	ReserveSeconds float64
	ReserveLeft    SideValues
	GraceLeft      float64
	Paused         SideFlags
	TimerUpdatedAt int64 // unix milliseconds of the last burn checkpoint

	timerSeen bool
	extra     map[string]json.RawMessage
}

var stateKnownKeys = []string{
	"draftSequence", "currentTurn", "picks", "blueScores", "redScores",
	"blueLocked", "redLocked", "timerEnabled", "reserveSeconds",
	"reserveLeft", "graceLeft", "paused", "timerUpdatedAt",
}

// UnmarshalJSON decodes a state document, preserving unknown fields.
func (s *State) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("decode state: %w", err)
	}

	*s = State{}

	field := func(key string, dst interface{}) error {
		v, ok := raw[key]
		if !ok || string(v) == "null" {
			return nil
		}
		if err := json.Unmarshal(v, dst); err != nil {
			return fmt.Errorf("state %s: %w", key, err)
		}
		return nil
	}

	if err := field("draftSequence", &s.DraftSequence); err != nil {
		return err
	}
	if err := field("currentTurn", &s.CurrentTurn); err != nil {
		return err
	}
	if err := field("picks", &s.Picks); err != nil {
		return err
	}
	if v, ok := raw["blueScores"]; ok {
		s.BlueScores = v
	}
	if v, ok := raw["redScores"]; ok {
		s.RedScores = v
	}
	if err := field("blueLocked", &s.BlueLocked); err != nil {
		return err
	}
	if err := field("redLocked", &s.RedLocked); err != nil {
		return err
	}

	if _, ok := raw["timerEnabled"]; ok {
		s.timerSeen = true
	}
	if err := field("timerEnabled", &s.TimerEnabled); err != nil {
		return err
	}
	if err := field("reserveSeconds", &s.ReserveSeconds); err != nil {
		return err
	}
	if err := field("reserveLeft", &s.ReserveLeft); err != nil {
		return err
	}
	s.GraceLeft = GraceSeconds
	if err := field("graceLeft", &s.GraceLeft); err != nil {
		return err
	}
	if err := field("paused", &s.Paused); err != nil {
		return err
	}
	if err := field("timerUpdatedAt", &s.TimerUpdatedAt); err != nil {
		return err
	}

	for _, k := range stateKnownKeys {
		delete(raw, k)
	}
	if len(raw) > 0 {
		s.extra = raw
	}
	return nil
}

// MarshalJSON emits the state document including preserved opaque fields.
func (s State) MarshalJSON() ([]byte, error) {
	out := make(map[string]interface{}, len(s.extra)+13)
	for k, v := range s.extra {
		out[k] = v
	}
	out["draftSequence"] = s.DraftSequence
	out["currentTurn"] = s.CurrentTurn
	picks := s.Picks
	if picks == nil {
		picks = []*Slot{}
	}
	out["picks"] = picks
	if s.BlueScores != nil {
		out["blueScores"] = s.BlueScores
	}
	if s.RedScores != nil {
		out["redScores"] = s.RedScores
	}
	out["blueLocked"] = s.BlueLocked
	out["redLocked"] = s.RedLocked
	out["timerEnabled"] = s.TimerEnabled
	out["reserveSeconds"] = s.ReserveSeconds
	out["reserveLeft"] = s.ReserveLeft
	out["graceLeft"] = s.GraceLeft
	out["paused"] = s.Paused
	out["timerUpdatedAt"] = s.TimerUpdatedAt
	return json.Marshal(out)
}

// Clone returns a deep copy via a JSON round trip.
func (s *State) Clone() (*State, error) {
	data, err := json.Marshal(s)
	if err != nil {
		return nil, err
	}
	var out State
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// LockedFor reports whether a side has locked in.
func (s *State) LockedFor(side Side) bool {
	switch side {
	case SideBlue:
		return s.BlueLocked
	case SideRed:
		return s.RedLocked
	}
	return false
}

func (s *State) setLocked(side Side) {
	switch side {
	case SideBlue:
		s.BlueLocked = true
	case SideRed:
		s.RedLocked = true
	}
}

// PickComplete reports whether every turn in the sequence has been taken.
func (s *State) PickComplete() bool {
	return s.CurrentTurn >= len(s.DraftSequence)
}

// Validate checks the structural shape of a state document and normalizes
// the picks slice to the sequence length when it is absent.
func (s *State) Validate() error {
	if len(s.DraftSequence) == 0 {
		return fmt.Errorf("draftSequence must be non-empty")
	}
	if s.CurrentTurn < 0 || s.CurrentTurn > len(s.DraftSequence) {
		return fmt.Errorf("currentTurn %d out of range [0,%d]", s.CurrentTurn, len(s.DraftSequence))
	}
	if s.Picks == nil {
		s.Picks = make([]*Slot, len(s.DraftSequence))
	}
	if len(s.Picks) != len(s.DraftSequence) {
		return fmt.Errorf("picks length %d != draftSequence length %d", len(s.Picks), len(s.DraftSequence))
	}
	if s.ReserveSeconds < 0 || s.GraceLeft < 0 || s.ReserveLeft.B < 0 || s.ReserveLeft.R < 0 {
		return fmt.Errorf("timer values must be non-negative")
	}
	return nil
}
