package draft

// RejectReason is the closed taxonomy of reducer rejections. The transport
// surfaces these verbatim as short strings.
type RejectReason string

const (
	RejectInvalidArgument       RejectReason = "invalid-argument"
	RejectWrongTurn             RejectReason = "wrong-turn"
	RejectWrongSide             RejectReason = "wrong-side"
	RejectSideLocked            RejectReason = "side-locked"
	RejectGloballyBanned        RejectReason = "globally-banned"
	RejectGloballyPickLocked    RejectReason = "globally-pick-locked"
	RejectAlreadyPickedThisSide RejectReason = "already-picked-this-side"
	RejectNotABanSlot           RejectReason = "not-a-ban-slot"
	RejectIsABanSlot            RejectReason = "is-a-ban-slot"
	RejectEmptySlot             RejectReason = "empty-slot"
	RejectNothingToUndo         RejectReason = "nothing-to-undo"
	RejectDraftComplete         RejectReason = "draft-complete"
	RejectDraftAlreadyCompleted RejectReason = "draft-already-completed"
)

// Rejection is the reducer's only failure value. It is a tagged result, not
// a programmer error: the reducer never panics and never wraps it.
type Rejection struct {
	Reason RejectReason
}

func (r *Rejection) Error() string { return string(r.Reason) }

func reject(reason RejectReason) *Rejection {
	return &Rejection{Reason: reason}
}
