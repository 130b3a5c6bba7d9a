package governance

import "errors"

var (
	// ErrInvalidChoice indicates a vote choice outside APPROVED/REJECTED
	ErrInvalidChoice = errors.New("invalid vote choice")

	// ErrProposalNotFound indicates the proposal does not exist in the
	// stated community
	ErrProposalNotFound = errors.New("proposal not found")

	// ErrNotEligible indicates the voter is not an eligible voter for the
	// proposal (not a member, or the proposal's author)
	ErrNotEligible = errors.New("voter is not eligible")

	// ErrAlreadyContributor indicates a duplicate possible-contributor
	// opt-in
	ErrAlreadyContributor = errors.New("already registered as possible contributor")

	// ErrStorage indicates a persistence failure that survived the
	// bounded retry
	ErrStorage = errors.New("transient storage failure")
)
