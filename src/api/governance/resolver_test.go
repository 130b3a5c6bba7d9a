package governance

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/snowledge-labs/snowledge-api/src/api/types"
)

// fakeStore keeps ballots and the proposal in memory behind a mutex so it
// can back the concurrency tests. It implements BallotStore,
// ProposalStore and EligibilityProvider the same way the MySQL Store
// does, including the conditional transition.
type fakeStore struct {
	mu           sync.Mutex
	proposal     types.Proposal
	members      map[uint64]bool // community members, author included
	ballots      map[uint64]string
	contributors map[uint64]bool
	transitions  int

	upsertFailures int // fail this many upserts before succeeding
}

func newFakeStore(authorID uint64, memberIDs ...uint64) *fakeStore {
	members := map[uint64]bool{authorID: true}
	for _, id := range memberIDs {
		members[id] = true
	}
	return &fakeStore{
		proposal: types.Proposal{
			ID:          10,
			CommunityID: 1,
			AuthorID:    authorID,
			Title:       "Intro to TypeScript",
			Status:      types.ProposalPending,
		},
		members:      members,
		ballots:      make(map[uint64]string),
		contributors: make(map[uint64]bool),
	}
}

func (f *fakeStore) UpsertBallot(_ context.Context, proposalID, voterID uint64, choice string) (types.ProposalVote, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.upsertFailures > 0 {
		f.upsertFailures--
		return types.ProposalVote{}, errors.New("deadlock found when trying to get lock")
	}
	f.ballots[voterID] = choice
	return types.ProposalVote{ProposalID: proposalID, VoterID: voterID, Choice: choice}, nil
}

func (f *fakeStore) CountByChoice(_ context.Context, proposalID uint64) (Tally, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if proposalID != f.proposal.ID {
		return Tally{}, ErrProposalNotFound
	}
	var t Tally
	for _, choice := range f.ballots {
		if choice == types.VoteApproved {
			t.Approved++
		} else {
			t.Rejected++
		}
	}
	return t, nil
}

func (f *fakeStore) Find(_ context.Context, communityID, proposalID uint64) (types.Proposal, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if proposalID != f.proposal.ID || communityID != f.proposal.CommunityID {
		return types.Proposal{}, ErrProposalNotFound
	}
	return f.proposal, nil
}

func (f *fakeStore) AddContributor(_ context.Context, proposalID, userID uint64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.contributors[userID] {
		return ErrAlreadyContributor
	}
	f.contributors[userID] = true
	return nil
}

func (f *fakeStore) Transition(_ context.Context, proposalID uint64, verdict string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.proposal.Status != types.ProposalPending {
		return false, nil
	}
	f.proposal.Status = verdict
	f.transitions++
	return true, nil
}

func (f *fakeStore) EligibleVoterCount(_ context.Context, _, _ uint64) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.members) - 1, nil // minus the author
}

func (f *fakeStore) IsEligibleVoter(_ context.Context, _, _ uint64, userID uint64) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return userID != f.proposal.AuthorID && f.members[userID], nil
}

func (f *fakeStore) EligibleVoterIDs(_ context.Context, _, _ uint64) ([]uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var ids []uint64
	for id := range f.members {
		if id != f.proposal.AuthorID {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

type fakeNotifier struct {
	mu          sync.Mutex
	votes       []VoteNotice
	resolutions []ResolutionNotice
}

func (f *fakeNotifier) NotifyVote(_ context.Context, n VoteNotice) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.votes = append(f.votes, n)
}

func (f *fakeNotifier) NotifyResolution(_ context.Context, n ResolutionNotice) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.resolutions = append(f.resolutions, n)
}

func submit(t *testing.T, r *Resolver, voterID uint64, choice string) VoteResult {
	t.Helper()
	res, err := r.SubmitVote(context.Background(), VoteRequest{
		CommunityID: 1,
		ProposalID:  10,
		VoterID:     voterID,
		Choice:      choice,
	})
	require.NoError(t, err)
	return res
}

func TestSubmitVoteInvalidChoice(t *testing.T) {
	store := newFakeStore(1, 2, 3)
	r := NewResolver(store, store, store, &fakeNotifier{})

	_, err := r.SubmitVote(context.Background(), VoteRequest{
		CommunityID: 1, ProposalID: 10, VoterID: 2, Choice: "MAYBE",
	})
	assert.ErrorIs(t, err, ErrInvalidChoice)
}

func TestSubmitVoteUnknownProposal(t *testing.T) {
	store := newFakeStore(1, 2, 3)
	r := NewResolver(store, store, store, &fakeNotifier{})

	_, err := r.SubmitVote(context.Background(), VoteRequest{
		CommunityID: 99, ProposalID: 10, VoterID: 2, Choice: types.VoteApproved,
	})
	assert.ErrorIs(t, err, ErrProposalNotFound)
}

func TestSubmitVoteNotEligible(t *testing.T) {
	store := newFakeStore(1, 2, 3)
	r := NewResolver(store, store, store, &fakeNotifier{})

	// Not a community member.
	_, err := r.SubmitVote(context.Background(), VoteRequest{
		CommunityID: 1, ProposalID: 10, VoterID: 42, Choice: types.VoteApproved,
	})
	assert.ErrorIs(t, err, ErrNotEligible)

	// The author may not vote on their own proposal.
	_, err = r.SubmitVote(context.Background(), VoteRequest{
		CommunityID: 1, ProposalID: 10, VoterID: 1, Choice: types.VoteApproved,
	})
	assert.ErrorIs(t, err, ErrNotEligible)
}

func TestSubmitVoteRevoteOverwrites(t *testing.T) {
	store := newFakeStore(1, 2, 3, 4, 5, 6)
	r := NewResolver(store, store, store, &fakeNotifier{})

	res := submit(t, r, 2, types.VoteApproved)
	assert.Equal(t, Tally{Approved: 1}, res.Tally)

	res = submit(t, r, 2, types.VoteRejected)
	assert.Equal(t, Tally{Rejected: 1}, res.Tally)
	assert.Len(t, store.ballots, 1)
	assert.Equal(t, types.VoteRejected, store.ballots[2])
}

func TestSubmitVoteDuplicateContributor(t *testing.T) {
	store := newFakeStore(1, 2, 3, 4, 5, 6)
	r := NewResolver(store, store, store, &fakeNotifier{})

	_, err := r.SubmitVote(context.Background(), VoteRequest{
		CommunityID: 1, ProposalID: 10, VoterID: 2,
		Choice: types.VoteApproved, WantToContribute: true,
	})
	require.NoError(t, err)

	_, err = r.SubmitVote(context.Background(), VoteRequest{
		CommunityID: 1, ProposalID: 10, VoterID: 2,
		Choice: types.VoteApproved, WantToContribute: true,
	})
	assert.ErrorIs(t, err, ErrAlreadyContributor)

	// The re-vote itself stayed recorded.
	assert.Len(t, store.ballots, 1)
}

func TestSubmitVoteResolutionScenario(t *testing.T) {
	// Five eligible voters (2..6), author 1, required = 3.
	store := newFakeStore(1, 2, 3, 4, 5, 6)
	notifier := &fakeNotifier{}
	r := NewResolver(store, store, store, notifier)

	res := submit(t, r, 2, types.VoteApproved)
	assert.Equal(t, types.ProposalPending, res.Proposal.Status)

	res = submit(t, r, 3, types.VoteApproved)
	assert.Equal(t, types.ProposalPending, res.Proposal.Status)

	res = submit(t, r, 4, types.VoteRejected)
	assert.Equal(t, types.ProposalPending, res.Proposal.Status)
	assert.Len(t, notifier.votes, 3)

	// Third approval crosses the threshold.
	res = submit(t, r, 5, types.VoteApproved)
	assert.Equal(t, types.ProposalApproved, res.Proposal.Status)
	assert.Equal(t, Tally{Approved: 3, Rejected: 1}, res.Tally)
	assert.Equal(t, EnoughApprovals, res.Decision.Reason)

	require.Len(t, notifier.resolutions, 1)
	assert.Equal(t, types.ProposalApproved, notifier.resolutions[0].Verdict)
	// Every eligible voter plus the author hears about the resolution.
	assert.ElementsMatch(t, []uint64{1, 2, 3, 4, 5, 6}, notifier.resolutions[0].Recipients)

	// A late vote is accepted but changes nothing further.
	res = submit(t, r, 6, types.VoteApproved)
	assert.Equal(t, types.ProposalApproved, res.Proposal.Status)
	assert.Equal(t, 1, store.transitions)
	assert.Len(t, notifier.resolutions, 1)
	assert.Len(t, notifier.votes, 3)
}

func TestSubmitVoteExactlyOnceTransition(t *testing.T) {
	// Four eligible voters (2..5), required = 3. Two approvals are
	// already in; every concurrent submission below can independently
	// push the tally past the threshold.
	store := newFakeStore(1, 2, 3, 4, 5)
	store.ballots[2] = types.VoteApproved
	store.ballots[3] = types.VoteApproved
	notifier := &fakeNotifier{}
	r := NewResolver(store, store, store, notifier)

	var wg sync.WaitGroup
	for _, voter := range []uint64{2, 3, 4, 5} {
		wg.Add(1)
		go func(v uint64) {
			defer wg.Done()
			_, err := r.SubmitVote(context.Background(), VoteRequest{
				CommunityID: 1, ProposalID: 10, VoterID: v, Choice: types.VoteApproved,
			})
			assert.NoError(t, err)
		}(voter)
	}
	wg.Wait()

	assert.Equal(t, types.ProposalApproved, store.proposal.Status)
	assert.Equal(t, 1, store.transitions)
	assert.Len(t, notifier.resolutions, 1)
}

func TestSubmitVoteRetriesTransientFailures(t *testing.T) {
	store := newFakeStore(1, 2, 3, 4, 5, 6)
	store.upsertFailures = 2
	r := NewResolver(store, store, store, &fakeNotifier{})

	res := submit(t, r, 2, types.VoteApproved)
	assert.Equal(t, Tally{Approved: 1}, res.Tally)
}

func TestSubmitVoteSurfacesStorageFailure(t *testing.T) {
	store := newFakeStore(1, 2, 3, 4, 5, 6)
	store.upsertFailures = maxStorageRetries
	r := NewResolver(store, store, store, &fakeNotifier{})

	_, err := r.SubmitVote(context.Background(), VoteRequest{
		CommunityID: 1, ProposalID: 10, VoterID: 2, Choice: types.VoteApproved,
	})
	assert.ErrorIs(t, err, ErrStorage)
}

func TestProposalLocksSerializeAndDrain(t *testing.T) {
	locks := newProposalLocks()

	var counter int
	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			release := locks.Acquire(7)
			counter++
			release()
		}()
	}
	wg.Wait()

	assert.Equal(t, 32, counter)
	locks.mu.Lock()
	assert.Empty(t, locks.locks)
	locks.mu.Unlock()
}
