package governance

import (
	"context"
	"fmt"
	"log"

	"github.com/snowledge-labs/snowledge-api/src/api/types"
)

// maxStorageRetries bounds the optimistic retry on ballot writes and
// status transitions before ErrStorage is surfaced.
const maxStorageRetries = 3

// BallotStore persists one ballot per (proposal, voter) pair.
type BallotStore interface {
	// UpsertBallot records the voter's choice, overwriting any prior
	// ballot for the same (proposal, voter) key.
	UpsertBallot(ctx context.Context, proposalID, voterID uint64, choice string) (types.ProposalVote, error)
	// CountByChoice recomputes the tally from the current ballots.
	CountByChoice(ctx context.Context, proposalID uint64) (Tally, error)
}

// ProposalStore reads proposals and performs the guarded status flip.
type ProposalStore interface {
	// Find returns the proposal if it exists in the stated community,
	// ErrProposalNotFound otherwise.
	Find(ctx context.Context, communityID, proposalID uint64) (types.Proposal, error)
	// AddContributor adds the voter to the possible-contributor set,
	// ErrAlreadyContributor on a duplicate opt-in.
	AddContributor(ctx context.Context, proposalID, userID uint64) error
	// Transition sets the status to verdict only if it is still PENDING
	// and reports whether this call performed the flip.
	Transition(ctx context.Context, proposalID uint64, verdict string) (bool, error)
}

// EligibilityProvider answers who may vote on a proposal. The proposal's
// author is excluded by definition.
type EligibilityProvider interface {
	EligibleVoterCount(ctx context.Context, communityID, proposalID uint64) (int, error)
	IsEligibleVoter(ctx context.Context, communityID, proposalID, userID uint64) (bool, error)
	EligibleVoterIDs(ctx context.Context, communityID, proposalID uint64) ([]uint64, error)
}

// Notifier receives per-vote and terminal resolution events. It is
// fire-and-forget: implementations must not block the vote path and must
// swallow their own failures.
type Notifier interface {
	NotifyVote(ctx context.Context, n VoteNotice)
	NotifyResolution(ctx context.Context, n ResolutionNotice)
}

// VoteNotice describes a single ballot just cast, addressed to the
// proposal's author.
type VoteNotice struct {
	AuthorID      uint64
	CommunityID   uint64
	ProposalID    uint64
	ProposalTitle string
	Choice        string
}

// ResolutionNotice describes a terminal transition, addressed to every
// eligible voter plus the author.
type ResolutionNotice struct {
	Recipients    []uint64
	CommunityID   uint64
	ProposalID    uint64
	ProposalTitle string
	Verdict       string
}

// VoteRequest is one vote submission entering the resolver.
type VoteRequest struct {
	CommunityID      uint64
	ProposalID       uint64
	VoterID          uint64
	Choice           string
	WantToContribute bool
}

// VoteResult is what the caller gets back after a successful submission:
// the proposal as it stands (possibly just resolved) and the current
// tally.
type VoteResult struct {
	Proposal types.Proposal
	Tally    Tally
	Decision Decision
}

// Resolver orchestrates vote recording and proposal resolution. All
// writes for one proposal run under that proposal's lock; the terminal
// status flip is additionally guarded by a conditional update so it
// happens exactly once even outside this process's lock.
type Resolver struct {
	ballots     BallotStore
	proposals   ProposalStore
	eligibility EligibilityProvider
	notifier    Notifier
	locks       *proposalLocks
}

func NewResolver(ballots BallotStore, proposals ProposalStore, eligibility EligibilityProvider, notifier Notifier) *Resolver {
	return &Resolver{
		ballots:     ballots,
		proposals:   proposals,
		eligibility: eligibility,
		notifier:    notifier,
		locks:       newProposalLocks(),
	}
}

// SubmitVote records the ballot, recomputes the tally and, when the rule
// yields a verdict on a still-pending proposal, performs the one-time
// transition and emits the terminal notification.
func (r *Resolver) SubmitVote(ctx context.Context, req VoteRequest) (VoteResult, error) {
	if req.Choice != types.VoteApproved && req.Choice != types.VoteRejected {
		return VoteResult{}, ErrInvalidChoice
	}

	release := r.locks.Acquire(req.ProposalID)
	defer release()

	proposal, err := r.proposals.Find(ctx, req.CommunityID, req.ProposalID)
	if err != nil {
		return VoteResult{}, err
	}

	eligible, err := r.eligibility.IsEligibleVoter(ctx, req.CommunityID, req.ProposalID, req.VoterID)
	if err != nil {
		return VoteResult{}, fmt.Errorf("eligibility check: %w", err)
	}
	if !eligible {
		return VoteResult{}, ErrNotEligible
	}

	if err := r.upsertWithRetry(ctx, req); err != nil {
		return VoteResult{}, err
	}

	if req.WantToContribute {
		if err := r.proposals.AddContributor(ctx, req.ProposalID, req.VoterID); err != nil {
			// The ballot above stays recorded; only the opt-in fails.
			return VoteResult{}, err
		}
	}

	tally, err := r.ballots.CountByChoice(ctx, req.ProposalID)
	if err != nil {
		return VoteResult{}, fmt.Errorf("count ballots: %w", err)
	}

	voterCount, err := r.eligibility.EligibleVoterCount(ctx, req.CommunityID, req.ProposalID)
	if err != nil {
		return VoteResult{}, fmt.Errorf("eligible voter count: %w", err)
	}

	decision := Decide(tally, voterCount)

	if decision.Resolved() && proposal.Status == types.ProposalPending {
		flipped, err := r.transitionWithRetry(ctx, req.ProposalID, decision.Verdict)
		if err != nil {
			return VoteResult{}, err
		}
		if flipped {
			proposal.Status = decision.Verdict
			recipients, err := r.eligibility.EligibleVoterIDs(ctx, req.CommunityID, req.ProposalID)
			if err != nil {
				log.Printf("governance: resolution recipients for proposal %d: %v", req.ProposalID, err)
			}
			r.notifier.NotifyResolution(ctx, ResolutionNotice{
				Recipients:    append(recipients, proposal.AuthorID),
				CommunityID:   req.CommunityID,
				ProposalID:    req.ProposalID,
				ProposalTitle: proposal.Title,
				Verdict:       decision.Verdict,
			})
		} else {
			// Another resolver won the flip; reflect the stored status.
			proposal, err = r.proposals.Find(ctx, req.CommunityID, req.ProposalID)
			if err != nil {
				return VoteResult{}, err
			}
		}
	} else if !decision.Resolved() && proposal.Status == types.ProposalPending {
		r.notifier.NotifyVote(ctx, VoteNotice{
			AuthorID:      proposal.AuthorID,
			CommunityID:   req.CommunityID,
			ProposalID:    req.ProposalID,
			ProposalTitle: proposal.Title,
			Choice:        req.Choice,
		})
	}

	return VoteResult{Proposal: proposal, Tally: tally, Decision: decision}, nil
}

func (r *Resolver) upsertWithRetry(ctx context.Context, req VoteRequest) error {
	var err error
	for attempt := 0; attempt < maxStorageRetries; attempt++ {
		if _, err = r.ballots.UpsertBallot(ctx, req.ProposalID, req.VoterID, req.Choice); err == nil {
			return nil
		}
		log.Printf("governance: upsert ballot proposal=%d voter=%d attempt=%d: %v", req.ProposalID, req.VoterID, attempt+1, err)
	}
	return fmt.Errorf("%w: upsert ballot: %v", ErrStorage, err)
}

func (r *Resolver) transitionWithRetry(ctx context.Context, proposalID uint64, verdict string) (bool, error) {
	var err error
	for attempt := 0; attempt < maxStorageRetries; attempt++ {
		var flipped bool
		if flipped, err = r.proposals.Transition(ctx, proposalID, verdict); err == nil {
			return flipped, nil
		}
		log.Printf("governance: transition proposal=%d attempt=%d: %v", proposalID, attempt+1, err)
	}
	return false, fmt.Errorf("%w: transition: %v", ErrStorage, err)
}
