package webserver

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/snowledge-labs/snowledge-api/src/api/governance"
	"github.com/snowledge-labs/snowledge-api/src/api/types"
)

// ProposalReader is the read-only slice of the governance store the
// handlers need. *governance.Store satisfies it.
type ProposalReader interface {
	Find(ctx context.Context, communityID, proposalID uint64) (types.Proposal, error)
	CountByChoice(ctx context.Context, proposalID uint64) (governance.Tally, error)
}

type Votes struct {
	resolver *governance.Resolver
	store    ProposalReader
}

func NewVotes(resolver *governance.Resolver, store ProposalReader) Votes {
	return Votes{resolver: resolver, store: store}
}

// Cast records one member's ballot and returns the proposal status and
// tally as they stand after the vote, whether or not it resolved the
// proposal.
func (v Votes) Cast(c *gin.Context) {
	communityID, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"err": "invalid community id"})
		return
	}
	proposalID, err := strconv.ParseUint(c.Param("pid"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"err": "invalid proposal id"})
		return
	}

	var req struct {
		Choice           string `json:"choice" binding:"required"`
		WantToContribute bool   `json:"wantToContribute"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"err": err.Error()})
		return
	}

	res, err := v.resolver.SubmitVote(c.Request.Context(), governance.VoteRequest{
		CommunityID:      communityID,
		ProposalID:       proposalID,
		VoterID:          userID(c),
		Choice:           req.Choice,
		WantToContribute: req.WantToContribute,
	})
	if err != nil {
		switch {
		case errors.Is(err, governance.ErrInvalidChoice):
			c.JSON(http.StatusBadRequest, gin.H{"err": "invalid vote. accepted values: APPROVED, REJECTED"})
		case errors.Is(err, governance.ErrProposalNotFound):
			c.JSON(http.StatusNotFound, gin.H{"err": "proposal not found"})
		case errors.Is(err, governance.ErrNotEligible):
			c.JSON(http.StatusForbidden, gin.H{"err": "only community members can vote on proposals"})
		case errors.Is(err, governance.ErrAlreadyContributor):
			c.JSON(http.StatusBadRequest, gin.H{"err": "already registered as a possible contributor"})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"err": "failed to record vote"})
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"proposal": gin.H{
			"id":     res.Proposal.ID,
			"status": strings.ToLower(res.Proposal.Status),
			"votes": gin.H{
				"approve": res.Tally.Approved,
				"reject":  res.Tally.Rejected,
			},
		},
	})
}

func (v Votes) Summary(c *gin.Context) {
	communityID, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"err": "invalid community id"})
		return
	}
	proposalID, err := strconv.ParseUint(c.Param("pid"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"err": "invalid proposal id"})
		return
	}

	if _, err := v.store.Find(c.Request.Context(), communityID, proposalID); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"err": "proposal not found"})
		return
	}

	tally, err := v.store.CountByChoice(c.Request.Context(), proposalID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"err": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"approve": tally.Approved,
		"reject":  tally.Rejected,
		"total":   tally.Total(),
	})
}
