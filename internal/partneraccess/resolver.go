package partneraccess

// Resolution is the outcome of resolving a user's partner accesses.
type Resolution struct {
	// HasRemaining is true when some therapy-enabled access still has
	// bookable sessions.
	HasRemaining bool
	// Selected points at the input element used to personalize the page,
	// or is nil.
	Selected *PartnerAccess
}

// Outcome labels a resolution for metrics and logs.
func (r Resolution) Outcome() string {
	switch {
	case r.HasRemaining && r.Selected != nil:
		return "remaining"
	case r.HasRemaining:
		return "remaining_unnamed"
	case r.Selected != nil:
		return "redeemed"
	default:
		return "none"
	}
}

// Resolve picks the partner access relevant to the booking page.
//
// The first therapy access with sessions remaining wins. Without one, the
// last therapy access with redeemed sessions is used, as input order is
// oldest redemption first. A selection whose partner has no name is dropped,
// leaving HasRemaining untouched. Resolve never mutates accesses.
func Resolve(accesses []*PartnerAccess) Resolution {
	var res Resolution

	for _, pa := range accesses {
		if pa.hasRemaining() {
			res.HasRemaining = true
			res.Selected = pa
			break
		}
	}

	if !res.HasRemaining {
		for _, pa := range accesses {
			if pa.hasRedeemed() {
				res.Selected = pa
			}
		}
	}

	if _, ok := res.Selected.PartnerName(); !ok {
		res.Selected = nil
	}
	return res
}

// IndexOf returns the position of the selected access in accesses, or -1.
func (r Resolution) IndexOf(accesses []*PartnerAccess) int {
	if r.Selected == nil {
		return -1
	}
	for i, pa := range accesses {
		if pa == r.Selected {
			return i
		}
	}
	return -1
}
