package notify

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"github.com/snowledge-labs/snowledge-api/src/api/data"
	"github.com/snowledge-labs/snowledge-api/src/api/governance"
	"github.com/snowledge-labs/snowledge-api/src/api/types"
)

// Service implements governance.Notifier. It writes notification inbox
// rows and publishes an event on the Redis stream for the Discord bot.
// Dispatch runs on its own goroutine detached from the request context:
// a failed notification is logged and dropped, never bubbled back into
// the vote path.
type Service struct {
	db  *gorm.DB
	rdb *redis.Client
}

func NewService(db *gorm.DB, rdb *redis.Client) *Service {
	return &Service{db: db, rdb: rdb}
}

func (s *Service) NotifyVote(_ context.Context, n governance.VoteNotice) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		community := s.communityName(ctx, n.CommunityID)

		notifType := types.NotifVoteApproved
		title := "You received a positive vote"
		word := "positive"
		if n.Choice == types.VoteRejected {
			notifType = types.NotifVoteRejected
			title = "You received a negative vote"
			word = "negative"
		}

		row := types.Notification{
			UserID:    n.AuthorID,
			Type:      notifType,
			Title:     title,
			Message:   fmt.Sprintf("Your proposal %q received a %s vote in the community %q", n.ProposalTitle, word, community),
			Link:      fmt.Sprintf("/community/%d?tab=voting", n.CommunityID),
			CreatedAt: time.Now(),
		}
		if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
			log.Printf("notify: vote notification for user %d: %v", n.AuthorID, err)
		}

		s.publish(ctx, map[string]interface{}{
			"event":        "vote",
			"id":           uuid.NewString(),
			"community_id": n.CommunityID,
			"proposal_id":  n.ProposalID,
			"title":        n.ProposalTitle,
			"choice":       n.Choice,
			"time":         time.Now().Unix(),
		})
	}()
}

func (s *Service) NotifyResolution(_ context.Context, n governance.ResolutionNotice) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		community := s.communityName(ctx, n.CommunityID)

		notifType := types.NotifProposalApproved
		title := "Proposal approved"
		verb := "approved"
		if n.Verdict == types.ProposalRejected {
			notifType = types.NotifProposalRejected
			title = "Proposal rejected"
			verb = "rejected"
		}
		message := fmt.Sprintf("The proposal %q was %s by the community %q", n.ProposalTitle, verb, community)

		rows := make([]types.Notification, 0, len(n.Recipients))
		for _, userID := range n.Recipients {
			rows = append(rows, types.Notification{
				UserID:    userID,
				Type:      notifType,
				Title:     title,
				Message:   message,
				Link:      fmt.Sprintf("/community/%d", n.CommunityID),
				CreatedAt: time.Now(),
			})
		}
		if len(rows) > 0 {
			if err := s.db.WithContext(ctx).Create(&rows).Error; err != nil {
				log.Printf("notify: resolution notifications for proposal %d: %v", n.ProposalID, err)
			}
		}

		s.publish(ctx, map[string]interface{}{
			"event":        "resolution",
			"id":           uuid.NewString(),
			"community_id": n.CommunityID,
			"proposal_id":  n.ProposalID,
			"title":        n.ProposalTitle,
			"verdict":      n.Verdict,
			"time":         time.Now().Unix(),
		})
	}()
}

func (s *Service) publish(ctx context.Context, payload map[string]interface{}) {
	if s.rdb == nil {
		return
	}
	if err := data.PublishNotification(ctx, s.rdb, payload); err != nil {
		log.Printf("notify: publish to stream: %v", err)
	}
}

func (s *Service) communityName(ctx context.Context, communityID uint64) string {
	var c types.Community
	if err := s.db.WithContext(ctx).Select("name").First(&c, "id = ?", communityID).Error; err != nil {
		log.Printf("notify: community %d name: %v", communityID, err)
		return ""
	}
	return c.Name
}
