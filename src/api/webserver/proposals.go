package webserver

import (
	"html"
	"net/http"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/gin-gonic/gin"
	"github.com/microcosm-cc/bluemonday"
	"gorm.io/gorm"

	"github.com/snowledge-labs/snowledge-api/src/api/governance"
	"github.com/snowledge-labs/snowledge-api/src/api/types"
)

type Proposals struct {
	db        *gorm.DB
	store     ProposalReader
	sanitizer *bluemonday.Policy
}

func NewProposals(db *gorm.DB, store ProposalReader) Proposals {
	// Strict policy over user markdown, same allowances as rendered by
	// the frontend editor.
	sanitizer := bluemonday.StrictPolicy()
	sanitizer.AllowElements("p", "br", "strong", "em", "code", "pre", "blockquote")
	sanitizer.AllowElements("ul", "ol", "li")
	sanitizer.AllowElements("h1", "h2", "h3", "h4", "h5", "h6")
	sanitizer.AllowAttrs("href").OnElements("a")
	sanitizer.RequireParseableURLs(true)
	sanitizer.AddTargetBlankToFullyQualifiedLinks(true)
	sanitizer.RequireNoFollowOnLinks(true)

	return Proposals{db: db, store: store, sanitizer: sanitizer}
}

func (h Proposals) Create(c *gin.Context) {
	communityID, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"err": "invalid community id"})
		return
	}

	var req struct {
		Title       string `json:"title" binding:"required,min=3,max=255"`
		Description string `json:"description" binding:"required,min=1,max=10000"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"err": err.Error()})
		return
	}

	uid := userID(c)
	if !isMember(h.db, communityID, uid) {
		c.JSON(http.StatusForbidden, gin.H{"err": "only members can propose topics"})
		return
	}

	title := html.EscapeString(strings.TrimSpace(req.Title))
	description := h.sanitizer.Sanitize(req.Description)
	if !utf8.ValidString(title) || !utf8.ValidString(description) {
		c.JSON(http.StatusBadRequest, gin.H{"err": "invalid characters in input"})
		return
	}
	if len(description) < 1 || len(description) > 10000 {
		c.JSON(http.StatusBadRequest, gin.H{"err": "description must be between 1 and 10000 characters"})
		return
	}

	proposal := types.Proposal{
		CommunityID: communityID,
		AuthorID:    uid,
		Title:       title,
		Description: description,
		Status:      types.ProposalPending,
		CreatedAt:   time.Now(),
		UpdatedAt:   time.Now(),
	}
	if err := h.db.Create(&proposal).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"err": err.Error()})
		return
	}

	c.JSON(http.StatusCreated, proposalJSON(proposal, governance.Tally{}))
}

func (h Proposals) List(c *gin.Context) {
	communityID, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"err": "invalid community id"})
		return
	}

	if !isMember(h.db, communityID, userID(c)) {
		c.JSON(http.StatusForbidden, gin.H{"err": "only members can view proposals"})
		return
	}

	var proposals []types.Proposal
	h.db.Where("community_id = ?", communityID).Order("created_at desc").Find(&proposals)

	out := make([]gin.H, 0, len(proposals))
	for _, p := range proposals {
		tally, err := h.store.CountByChoice(c.Request.Context(), p.ID)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"err": err.Error()})
			return
		}
		out = append(out, proposalJSON(p, tally))
	}

	c.JSON(http.StatusOK, gin.H{"proposals": out})
}

func (h Proposals) Get(c *gin.Context) {
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

	if !isMember(h.db, communityID, userID(c)) {
		c.JSON(http.StatusForbidden, gin.H{"err": "only members can view proposals"})
		return
	}

	proposal, err := h.store.Find(c.Request.Context(), communityID, proposalID)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"err": "proposal not found"})
		return
	}

	tally, err := h.store.CountByChoice(c.Request.Context(), proposalID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"err": err.Error()})
		return
	}

	var contributors []uint64
	h.db.Model(&types.ProposalContributor{}).Where("proposal_id = ?", proposalID).Pluck("user_id", &contributors)

	body := proposalJSON(proposal, tally)
	body["description"] = proposal.Description
	body["possibleContributors"] = contributors
	c.JSON(http.StatusOK, body)
}

func proposalJSON(p types.Proposal, tally governance.Tally) gin.H {
	return gin.H{
		"id":        p.ID,
		"title":     p.Title,
		"authorId":  p.AuthorID,
		"status":    strings.ToLower(p.Status),
		"createdAt": p.CreatedAt,
		"votes": gin.H{
			"approve": tally.Approved,
			"reject":  tally.Rejected,
		},
	}
}
