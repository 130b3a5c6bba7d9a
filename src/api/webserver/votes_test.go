package webserver

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/snowledge-labs/snowledge-api/src/api/governance"
	"github.com/snowledge-labs/snowledge-api/src/api/types"
)

// testStore backs the vote handler tests without a database. Author is
// user 1, members 1..4, proposal 10 in community 1.
type testStore struct {
	mu       sync.Mutex
	proposal types.Proposal
	ballots  map[uint64]string
}

func newTestStore() *testStore {
	return &testStore{
		proposal: types.Proposal{
			ID:          10,
			CommunityID: 1,
			AuthorID:    1,
			Title:       "Docker deployment guide",
			Status:      types.ProposalPending,
		},
		ballots: make(map[uint64]string),
	}
}

func (s *testStore) UpsertBallot(_ context.Context, proposalID, voterID uint64, choice string) (types.ProposalVote, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ballots[voterID] = choice
	return types.ProposalVote{ProposalID: proposalID, VoterID: voterID, Choice: choice}, nil
}

func (s *testStore) CountByChoice(_ context.Context, proposalID uint64) (governance.Tally, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if proposalID != s.proposal.ID {
		return governance.Tally{}, governance.ErrProposalNotFound
	}
	var t governance.Tally
	for _, choice := range s.ballots {
		if choice == types.VoteApproved {
			t.Approved++
		} else {
			t.Rejected++
		}
	}
	return t, nil
}

func (s *testStore) Find(_ context.Context, communityID, proposalID uint64) (types.Proposal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if proposalID != s.proposal.ID || communityID != s.proposal.CommunityID {
		return types.Proposal{}, governance.ErrProposalNotFound
	}
	return s.proposal, nil
}

func (s *testStore) AddContributor(_ context.Context, _, _ uint64) error { return nil }

func (s *testStore) Transition(_ context.Context, _ uint64, verdict string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.proposal.Status != types.ProposalPending {
		return false, nil
	}
	s.proposal.Status = verdict
	return true, nil
}

func (s *testStore) EligibleVoterCount(_ context.Context, _, _ uint64) (int, error) {
	return 3, nil // members 2..4
}

func (s *testStore) IsEligibleVoter(_ context.Context, _, _ uint64, userID uint64) (bool, error) {
	return userID >= 2 && userID <= 4, nil
}

func (s *testStore) EligibleVoterIDs(_ context.Context, _, _ uint64) ([]uint64, error) {
	return []uint64{2, 3, 4}, nil
}

type noopNotifier struct{}

func (noopNotifier) NotifyVote(context.Context, governance.VoteNotice)             {}
func (noopNotifier) NotifyResolution(context.Context, governance.ResolutionNotice) {}

func newVoteRouter(store *testStore, uid uint64) *gin.Engine {
	gin.SetMode(gin.TestMode)
	resolver := governance.NewResolver(store, store, store, noopNotifier{})
	voteH := NewVotes(resolver, store)

	r := gin.New()
	r.Use(func(c *gin.Context) { c.Set("uid", uid) })
	r.POST("/v1/communities/:id/proposals/:pid/vote", voteH.Cast)
	r.GET("/v1/communities/:id/proposals/:pid/votes", voteH.Summary)
	return r
}

func castVote(t *testing.T, r *gin.Engine, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestCastVote(t *testing.T) {
	r := newVoteRouter(newTestStore(), 2)

	w := castVote(t, r, "/v1/communities/1/proposals/10/vote", `{"choice":"APPROVED"}`)
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Success  bool `json:"success"`
		Proposal struct {
			Status string `json:"status"`
			Votes  struct {
				Approve int `json:"approve"`
				Reject  int `json:"reject"`
			} `json:"votes"`
		} `json:"proposal"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.True(t, resp.Success)
	assert.Equal(t, "pending", resp.Proposal.Status)
	assert.Equal(t, 1, resp.Proposal.Votes.Approve)
	assert.Equal(t, 0, resp.Proposal.Votes.Reject)
}

func TestCastVoteResolves(t *testing.T) {
	store := newTestStore()
	// Eligible 3, required 2. Seed one approval so the vote landing
	// through the handler crosses the threshold.
	store.ballots[3] = types.VoteApproved

	r := newVoteRouter(store, 2)
	w := castVote(t, r, "/v1/communities/1/proposals/10/vote", `{"choice":"APPROVED"}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"status":"approved"`)
	assert.Equal(t, types.ProposalApproved, store.proposal.Status)
}

func TestCastVoteErrors(t *testing.T) {
	tests := []struct {
		name   string
		uid    uint64
		path   string
		body   string
		status int
	}{
		{"invalid choice", 2, "/v1/communities/1/proposals/10/vote", `{"choice":"MAYBE"}`, http.StatusBadRequest},
		{"missing choice", 2, "/v1/communities/1/proposals/10/vote", `{}`, http.StatusBadRequest},
		{"unknown proposal", 2, "/v1/communities/1/proposals/99/vote", `{"choice":"APPROVED"}`, http.StatusNotFound},
		{"community mismatch", 2, "/v1/communities/9/proposals/10/vote", `{"choice":"APPROVED"}`, http.StatusNotFound},
		{"author voting own proposal", 1, "/v1/communities/1/proposals/10/vote", `{"choice":"APPROVED"}`, http.StatusForbidden},
		{"non-member", 42, "/v1/communities/1/proposals/10/vote", `{"choice":"APPROVED"}`, http.StatusForbidden},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := newVoteRouter(newTestStore(), tt.uid)
			w := castVote(t, r, tt.path, tt.body)
			assert.Equal(t, tt.status, w.Code)
		})
	}
}

func TestVoteSummary(t *testing.T) {
	store := newTestStore()
	store.ballots[2] = types.VoteApproved
	store.ballots[3] = types.VoteRejected

	r := newVoteRouter(store, 4)
	req := httptest.NewRequest(http.MethodGet, "/v1/communities/1/proposals/10/votes", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	var resp map[string]int
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, 1, resp["approve"])
	assert.Equal(t, 1, resp["reject"])
	assert.Equal(t, 2, resp["total"])
}

func TestVoteSummaryUnknownProposal(t *testing.T) {
	r := newVoteRouter(newTestStore(), 2)
	req := httptest.NewRequest(http.MethodGet, "/v1/communities/1/proposals/99/votes", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusNotFound, w.Code)
}
