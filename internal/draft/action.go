package draft

import "encoding/json"

// Op names a player operation. Legacy op names (setMindscape, setWengine)
// are folded into the modern ones at parse time.
type Op string

const (
	OpPick           Op = "pick"
	OpBan            Op = "ban"
	OpSetEidolon     Op = "setEidolon"
	OpSetSuperimpose Op = "setSuperimpose"
	OpSetAccessory   Op = "setAccessory"
	OpSetLock        Op = "setLock"
	OpUndoLast       Op = "undoLast"
)

// Envelope is the wire shape of an action request. Pointer fields
// distinguish "absent" from zero values; legacy aliases are accepted.
type Envelope struct {
	Op          string `json:"op"`
	PlayerToken string `json:"pt"`

	Index         *int    `json:"index,omitempty"`
	CharacterCode *string `json:"characterCode,omitempty"`
	Eidolon       *int    `json:"eidolon,omitempty"`
	Mindscape     *int    `json:"mindscape,omitempty"` // legacy alias of eidolon
	Superimpose   *int    `json:"superimpose,omitempty"`
	Phase         *int    `json:"phase,omitempty"` // legacy alias of superimpose
	AccessoryID   *string `json:"accessoryId,omitempty"`
	WengineID     *string `json:"wengineId,omitempty"` // legacy alias of accessoryId
	Locked        *bool   `json:"locked,omitempty"`
}

// Action is the closed sum the reducer branches on. Exactly the fields the
// parsed op requires are meaningful; the reducer never sees weak types.
type Action struct {
	Op Op

	Index    int
	HasIndex bool

	CharacterCode string

	Eidolon     int
	Superimpose int

	// AccessoryID is nil to clear the slot accessory, non-nil to set it.
	AccessoryID *string

	Locked bool
}

// ParseEnvelope decodes and normalizes a raw action body.
func ParseEnvelope(body []byte) (Envelope, *Rejection) {
	var env Envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return Envelope{}, reject(RejectInvalidArgument)
	}
	return env, nil
}

// ParseAction validates an envelope into an Action, folding legacy aliases.
func ParseAction(env Envelope) (Action, *Rejection) {
	op := Op(env.Op)
	switch env.Op {
	case "setMindscape":
		op = OpSetEidolon
	case "setWengine":
		op = OpSetAccessory
	}

	act := Action{Op: op}
	if env.Index != nil {
		act.Index = *env.Index
		act.HasIndex = true
	}

	switch op {
	case OpPick, OpBan:
		if !act.HasIndex || act.Index < 0 || env.CharacterCode == nil || *env.CharacterCode == "" {
			return Action{}, reject(RejectInvalidArgument)
		}
		act.CharacterCode = *env.CharacterCode

	case OpSetEidolon:
		v := env.Eidolon
		if v == nil {
			v = env.Mindscape
		}
		if !act.HasIndex || act.Index < 0 || v == nil {
			return Action{}, reject(RejectInvalidArgument)
		}
		act.Eidolon = clampInt(*v, 0, 6)

	case OpSetSuperimpose:
		v := env.Superimpose
		if v == nil {
			v = env.Phase
		}
		if !act.HasIndex || act.Index < 0 || v == nil {
			return Action{}, reject(RejectInvalidArgument)
		}
		act.Superimpose = clampInt(*v, 1, 5)

	case OpSetAccessory:
		if !act.HasIndex || act.Index < 0 {
			return Action{}, reject(RejectInvalidArgument)
		}
		id := env.AccessoryID
		if id == nil {
			id = env.WengineID
		}
		if id != nil && *id == "" {
			id = nil // empty string clears, same as null
		}
		act.AccessoryID = id

	case OpSetLock:
		// Unlock is never accepted via the action protocol.
		if env.Locked == nil || !*env.Locked {
			return Action{}, reject(RejectInvalidArgument)
		}
		act.Locked = true

	case OpUndoLast:
		if act.HasIndex && act.Index < 0 {
			return Action{}, reject(RejectInvalidArgument)
		}

	default:
		return Action{}, reject(RejectInvalidArgument)
	}

	return act, nil
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
