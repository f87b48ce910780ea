package draft

// GraceSeconds is the per-turn free-time window preceding reserve
// consumption. Reset on every turn change.
const GraceSeconds = 30.0

// EnsureTimer materializes default timer fields on documents that predate
// the timer or were created with it disabled.
func (s *State) EnsureTimer(nowMs int64) {
	if s.timerSeen {
		return
	}
	s.timerSeen = true
	s.TimerEnabled = false
	s.ReserveSeconds = 0
	s.ReserveLeft = SideValues{}
	s.GraceLeft = GraceSeconds
	s.Paused = SideFlags{}
	s.TimerUpdatedAt = nowMs
}

// SeedTimer initializes timer fields at session creation.
func (s *State) SeedTimer(enabled bool, reserveSeconds float64, nowMs int64) {
	s.timerSeen = true
	s.TimerEnabled = enabled
	if reserveSeconds < 0 {
		reserveSeconds = 0
	}
	s.ReserveSeconds = reserveSeconds
	s.ReserveLeft = SideValues{B: reserveSeconds, R: reserveSeconds}
	s.GraceLeft = GraceSeconds
	s.Paused = SideFlags{}
	s.TimerUpdatedAt = nowMs
}

// BurnTo debits elapsed wall-clock time since the last checkpoint: grace
// first, then the active side's reserve, floored at zero. The clock does not
// run when the draft is pick-complete, the active side is paused, the slot
// is the side's first ban, or the turn token names no side.
func (s *State) BurnTo(nowMs int64) {
	s.EnsureTimer(nowMs)
	if !s.TimerEnabled {
		return
	}
	if s.CurrentTurn >= len(s.DraftSequence) {
		s.TimerUpdatedAt = nowMs
		return
	}
	tok := s.DraftSequence[s.CurrentTurn]
	s.burnAs(SideOfToken(tok), IsFirstBanSlot(s.CurrentTurn, s.DraftSequence), nowMs)
}

// BurnFor applies the pre-action burn for act. An undoLast charges the
// elapsed interval to the side whose slot is rewound rather than the side
// whose turn nominally runs; every other op burns against the current turn.
func (s *State) BurnFor(act Action, nowMs int64) {
	if act.Op != OpUndoLast {
		s.BurnTo(nowMs)
		return
	}
	s.EnsureTimer(nowMs)
	if !s.TimerEnabled {
		return
	}
	lastIdx := s.CurrentTurn - 1
	if lastIdx < 0 || lastIdx >= len(s.DraftSequence) {
		s.BurnTo(nowMs)
		return
	}
	tok := s.DraftSequence[lastIdx]
	s.burnAs(SideOfToken(tok), IsFirstBanSlot(lastIdx, s.DraftSequence), nowMs)
}

func (s *State) burnAs(side Side, frozen bool, nowMs int64) {
	dt := float64(nowMs-s.TimerUpdatedAt) / 1000.0
	if dt < 0 {
		dt = 0
	}
	if side == SideNone || s.Paused.Get(side) || frozen {
		s.TimerUpdatedAt = nowMs
		return
	}

	if dt <= s.GraceLeft {
		s.GraceLeft -= dt
	} else {
		dt -= s.GraceLeft
		s.GraceLeft = 0
		left := s.ReserveLeft.Get(side) - dt
		if left < 0 {
			left = 0
		}
		s.ReserveLeft.Set(side, left)
	}
	s.TimerUpdatedAt = nowMs
}

// IsFirstBanSlot reports whether the slot at idx is the first ban slot
// belonging to its side: a ban token with no earlier occurrence of the same
// token. Such slots are frozen — no clock runs for them.
func IsFirstBanSlot(idx int, seq []string) bool {
	if idx < 0 || idx >= len(seq) || !IsBanToken(seq[idx]) {
		return false
	}
	for i := 0; i < idx; i++ {
		if seq[i] == seq[idx] {
			return false
		}
	}
	return true
}

// resetGrace re-arms the per-turn grace window after a turn boundary. The
// burn for the turn just concluded must already have been applied.
func (s *State) resetGrace(nowMs int64) {
	s.GraceLeft = GraceSeconds
	s.TimerUpdatedAt = nowMs
}
