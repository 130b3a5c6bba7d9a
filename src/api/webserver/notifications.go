package webserver

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/snowledge-labs/snowledge-api/src/api/types"
)

type Notifications struct{ db *gorm.DB }

func NewNotifications(db *gorm.DB) Notifications { return Notifications{db: db} }

func (h Notifications) List(c *gin.Context) {
	uid := userID(c)

	var rows []types.Notification
	h.db.Where("user_id = ?", uid).Order("created_at desc").Limit(50).Find(&rows)

	var unread int64
	h.db.Model(&types.Notification{}).Where("user_id = ? AND read_at IS NULL", uid).Count(&unread)

	c.JSON(http.StatusOK, gin.H{"notifications": rows, "unread": unread})
}

func (h Notifications) MarkRead(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"err": "invalid notification id"})
		return
	}
	uid := userID(c)

	res := h.db.Model(&types.Notification{}).
		Where("id = ? AND user_id = ? AND read_at IS NULL", id, uid).
		Update("read_at", time.Now())
	if res.Error != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"err": res.Error.Error()})
		return
	}
	if res.RowsAffected == 0 {
		c.JSON(http.StatusNotFound, gin.H{"err": "notification not found"})
		return
	}

	c.Status(http.StatusNoContent)
}
