package governance

import "github.com/snowledge-labs/snowledge-api/src/api/types"

// Reason explains why Decide produced its verdict. It is a closed set so
// callers can switch over it exhaustively.
type Reason uint8

const (
	NoMajority Reason = iota
	EnoughApprovals
	EnoughRejections
	AllVotedNoMajority
)

func (r Reason) String() string {
	switch r {
	case EnoughApprovals:
		return "ENOUGH_APPROVALS"
	case EnoughRejections:
		return "ENOUGH_REJECTIONS"
	case AllVotedNoMajority:
		return "ALL_VOTED_NO_MAJORITY"
	default:
		return "NO_MAJORITY"
	}
}

// Tally is the grouped ballot count for one proposal, always recomputed
// from the ballot table, never maintained incrementally.
type Tally struct {
	Approved int
	Rejected int
}

func (t Tally) Total() int { return t.Approved + t.Rejected }

// Decision is the outcome of evaluating the resolution rule.
type Decision struct {
	Verdict  string // PENDING, APPROVED or REJECTED
	Reason   Reason
	Required int
}

// Resolved reports whether the decision ends the voting period.
func (d Decision) Resolved() bool { return d.Verdict != types.ProposalPending }

// Decide applies the strict-majority rule to a tally over eligible voters.
//
// The threshold is one more than half for an even electorate (so a 50/50
// split cannot resolve) and the rounded-up half for an odd one. If every
// eligible voter has cast a ballot and neither side reached the threshold,
// the proposal resolves by plain comparison, with ties going to REJECTED.
//
// With eligible == 0 the threshold is 1 and the all-voted branch fires on
// an empty tally, rejecting immediately. That matches the behavior this
// rule was ported from; see DESIGN.md before changing it.
func Decide(t Tally, eligible int) Decision {
	required := (eligible + 1) / 2
	if eligible%2 == 0 {
		required = eligible/2 + 1
	}

	d := Decision{Verdict: types.ProposalPending, Required: required}
	switch {
	case t.Approved >= required:
		d.Verdict = types.ProposalApproved
		d.Reason = EnoughApprovals
	case t.Rejected >= required:
		d.Verdict = types.ProposalRejected
		d.Reason = EnoughRejections
	case t.Total() == eligible:
		d.Reason = AllVotedNoMajority
		if t.Approved > t.Rejected {
			d.Verdict = types.ProposalApproved
		} else {
			d.Verdict = types.ProposalRejected
		}
	default:
		d.Reason = NoMajority
	}
	return d
}
