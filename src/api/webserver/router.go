package webserver

import (
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"github.com/snowledge-labs/snowledge-api/src/api/config"
	"github.com/snowledge-labs/snowledge-api/src/api/governance"
	"github.com/snowledge-labs/snowledge-api/src/api/notify"
)

func attachRoutes(r *gin.Engine, cfg config.Config, db *gorm.DB, rdb *redis.Client) {
	r.Use(cors.New(cors.Config{
		AllowOrigins:     []string{cfg.FrontendURL},
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
	}))

	store := governance.NewStore(db)
	resolver := governance.NewResolver(store, store, store, notify.NewService(db, rdb))

	authH := NewAuth(db, []byte(cfg.JWTSecret))
	communityH := NewCommunities(db)
	proposalH := NewProposals(db, store)
	voteH := NewVotes(resolver, store)
	notifH := NewNotifications(db)

	limiter := NewRateLimiter(cfg.RateLimit, time.Minute)

	v1 := r.Group("/v1")
	{
		v1.POST("/auth/register", authH.Register)
		v1.POST("/auth/login", authH.Login)

		secured := v1.Use(JWTMiddleware([]byte(cfg.JWTSecret)), RateLimitMiddleware(limiter))
		secured.POST("/communities", communityH.Create)
		secured.POST("/communities/:id/join", communityH.Join)
		secured.GET("/communities/:id/members", communityH.Members)

		secured.POST("/communities/:id/proposals", proposalH.Create)
		secured.GET("/communities/:id/proposals", proposalH.List)
		secured.GET("/communities/:id/proposals/:pid", proposalH.Get)

		secured.POST("/communities/:id/proposals/:pid/vote", voteH.Cast)
		secured.GET("/communities/:id/proposals/:pid/votes", voteH.Summary)

		secured.GET("/notifications", notifH.List)
		secured.POST("/notifications/:id/read", notifH.MarkRead)
	}
}
