package webserver

import (
	"errors"
	"net/http"
	"regexp"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/snowledge-labs/snowledge-api/src/api/types"
)

var slugRegexp = regexp.MustCompile(`^[a-z0-9]+(?:-[a-z0-9]+)*$`)

type Communities struct{ db *gorm.DB }

func NewCommunities(db *gorm.DB) Communities { return Communities{db: db} }

func (h Communities) Create(c *gin.Context) {
	var req struct {
		Name             string `json:"name" binding:"required,min=2,max=128"`
		Slug             string `json:"slug" binding:"required,min=2,max=128"`
		DiscordChannelID string `json:"discordChannelId" binding:"max=64"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"err": err.Error()})
		return
	}

	if !slugRegexp.MatchString(req.Slug) {
		c.JSON(http.StatusBadRequest, gin.H{"err": "invalid slug format"})
		return
	}

	uid := userID(c)

	var existing types.Community
	if err := h.db.First(&existing, "slug = ?", req.Slug).Error; err == nil {
		c.JSON(http.StatusBadRequest, gin.H{"err": "slug already taken"})
		return
	}

	community := types.Community{
		Name:             req.Name,
		Slug:             req.Slug,
		CreatorID:        uid,
		DiscordChannelID: req.DiscordChannelID,
		CreatedAt:        time.Now(),
	}
	if err := h.db.Create(&community).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"err": err.Error()})
		return
	}

	// The creator is a member like everyone else, so their own proposals
	// count them out but others' proposals count them in.
	_ = h.db.Create(&types.CommunityMember{
		CommunityID: community.ID,
		UserID:      uid,
		Role:        "creator",
		CreatedAt:   time.Now(),
	}).Error

	c.JSON(http.StatusCreated, gin.H{"id": community.ID, "slug": community.Slug})
}

func (h Communities) Join(c *gin.Context) {
	communityID, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"err": "invalid community id"})
		return
	}
	uid := userID(c)

	var community types.Community
	if err := h.db.First(&community, "id = ?", communityID).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"err": "community not found"})
		return
	}

	var member types.CommunityMember
	err = h.db.First(&member, "community_id = ? AND user_id = ?", communityID, uid).Error
	if err == nil {
		c.JSON(http.StatusBadRequest, gin.H{"err": "already a member"})
		return
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		c.JSON(http.StatusInternalServerError, gin.H{"err": err.Error()})
		return
	}

	if err := h.db.Create(&types.CommunityMember{
		CommunityID: communityID,
		UserID:      uid,
		Role:        "learner",
		CreatedAt:   time.Now(),
	}).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"err": err.Error()})
		return
	}

	c.Status(http.StatusCreated)
}

func (h Communities) Members(c *gin.Context) {
	communityID, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"err": "invalid community id"})
		return
	}

	if !isMember(h.db, communityID, userID(c)) {
		c.JSON(http.StatusForbidden, gin.H{"err": "only members can view the member list"})
		return
	}

	type memberRow struct {
		UserID   uint64 `json:"userId"`
		FullName string `json:"fullName"`
		Role     string `json:"role"`
	}
	var rows []memberRow
	h.db.Table("community_members").
		Select("community_members.user_id, users.full_name, community_members.role").
		Joins("JOIN users ON users.id = community_members.user_id").
		Where("community_members.community_id = ?", communityID).
		Scan(&rows)

	c.JSON(http.StatusOK, gin.H{"members": rows})
}

func isMember(db *gorm.DB, communityID, userID uint64) bool {
	var member types.CommunityMember
	return db.First(&member, "community_id = ? AND user_id = ?", communityID, userID).Error == nil
}
