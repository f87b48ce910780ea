package draft

// Apply runs one player action against the state in place and returns nil on
// success or a tagged rejection. Callers must have burned the timer to the
// same nowMs before applying, and must discard the state object entirely when
// a rejection comes back — nothing partially applied is distinguishable from
// the burn itself.
func Apply(s *State, side Side, act Action, rules RuleSet, nowMs int64) *Rejection {
	switch act.Op {
	case OpPick:
		return applyPick(s, side, act, rules, nowMs)
	case OpBan:
		return applyBan(s, side, act, rules, nowMs)
	case OpSetEidolon, OpSetSuperimpose, OpSetAccessory:
		return applySlotEdit(s, side, act, rules)
	case OpSetLock:
		return applySetLock(s, side)
	case OpUndoLast:
		return applyUndoLast(s, side, act, nowMs)
	}
	return reject(RejectInvalidArgument)
}

func applyPick(s *State, side Side, act Action, rules RuleSet, nowMs int64) *Rejection {
	if s.LockedFor(side) {
		return reject(RejectSideLocked)
	}
	if s.PickComplete() {
		return reject(RejectDraftComplete)
	}
	if act.Index != s.CurrentTurn {
		return reject(RejectWrongTurn)
	}
	tok := s.DraftSequence[act.Index]
	if IsBanToken(tok) {
		return reject(RejectIsABanSlot)
	}
	if SideOfToken(tok) != side || side == SideNone {
		return reject(RejectWrongSide)
	}
	if rules.CharacterGlobalBan[act.CharacterCode] {
		return reject(RejectGloballyBanned)
	}
	// Duplicate detection counts only this side's prior pick slots; bans
	// never contribute.
	for i, slot := range s.Picks {
		if slot == nil || IsBanToken(s.DraftSequence[i]) {
			continue
		}
		if SideOfToken(s.DraftSequence[i]) == side && slot.CharacterCode == act.CharacterCode {
			return reject(RejectAlreadyPickedThisSide)
		}
	}

	s.Picks[act.Index] = &Slot{
		CharacterCode: act.CharacterCode,
		Eidolon:       0,
		AccessoryID:   "",
		Superimpose:   1,
	}
	s.CurrentTurn++
	s.resetGrace(nowMs)
	return nil
}

func applyBan(s *State, side Side, act Action, rules RuleSet, nowMs int64) *Rejection {
	if s.LockedFor(side) {
		return reject(RejectSideLocked)
	}
	if s.PickComplete() {
		return reject(RejectDraftComplete)
	}
	if act.Index != s.CurrentTurn {
		return reject(RejectWrongTurn)
	}
	tok := s.DraftSequence[act.Index]
	if !IsBanToken(tok) {
		return reject(RejectNotABanSlot)
	}
	if SideOfToken(tok) != side || side == SideNone {
		return reject(RejectWrongSide)
	}
	if rules.CharacterGlobalPick[act.CharacterCode] {
		return reject(RejectGloballyPickLocked)
	}

	// Ban records share the slot shape; upgrades are placeholders.
	s.Picks[act.Index] = &Slot{
		CharacterCode: act.CharacterCode,
		Eidolon:       0,
		AccessoryID:   "",
		Superimpose:   1,
	}
	s.CurrentTurn++
	s.resetGrace(nowMs)
	return nil
}

// applySlotEdit handles setEidolon, setSuperimpose and setAccessory. These
// may target any non-ban slot the requester owns, including slots before
// currentTurn, and never advance the turn.
func applySlotEdit(s *State, side Side, act Action, rules RuleSet) *Rejection {
	if s.LockedFor(side) {
		return reject(RejectSideLocked)
	}
	if act.Index < 0 || act.Index >= len(s.DraftSequence) {
		return reject(RejectInvalidArgument)
	}
	slot := s.Picks[act.Index]
	if slot == nil {
		return reject(RejectEmptySlot)
	}
	tok := s.DraftSequence[act.Index]
	if SideOfToken(tok) != side || side == SideNone {
		return reject(RejectWrongSide)
	}
	if IsBanToken(tok) {
		return reject(RejectIsABanSlot)
	}

	switch act.Op {
	case OpSetEidolon:
		slot.Eidolon = clampInt(act.Eidolon, 0, 6)
	case OpSetSuperimpose:
		slot.Superimpose = clampInt(act.Superimpose, 1, 5)
	case OpSetAccessory:
		if act.AccessoryID == nil {
			slot.AccessoryID = ""
		} else {
			if rules.AccessoryGlobalBan[*act.AccessoryID] {
				return reject(RejectGloballyBanned)
			}
			slot.AccessoryID = *act.AccessoryID
		}
	}
	return nil
}

func applySetLock(s *State, side Side) *Rejection {
	if !s.PickComplete() {
		return reject(RejectWrongTurn)
	}
	if side != SideBlue && side != SideRed {
		return reject(RejectWrongSide)
	}
	// Repeated locks are a no-op success; the lock is monotonic.
	s.setLocked(side)
	return nil
}

func applyUndoLast(s *State, side Side, act Action, nowMs int64) *Rejection {
	if s.LockedFor(side) {
		return reject(RejectSideLocked)
	}
	lastIdx := s.CurrentTurn - 1
	if lastIdx < 0 {
		return reject(RejectNothingToUndo)
	}
	if act.HasIndex && act.Index != lastIdx {
		return reject(RejectWrongTurn)
	}
	tok := s.DraftSequence[lastIdx]
	if SideOfToken(tok) != side || side == SideNone {
		return reject(RejectWrongSide)
	}
	if s.Picks[lastIdx] == nil {
		return reject(RejectEmptySlot)
	}

	s.Picks[lastIdx] = nil
	s.CurrentTurn = lastIdx
	s.resetGrace(nowMs)
	return nil
}
