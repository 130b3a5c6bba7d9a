package data

import (
	"context"
	"log"

	"github.com/redis/go-redis/v9"
)

// StreamNotifications carries notification events from the API to the
// Discord bot and any other consumers.
const StreamNotifications = "snowledge.notifications"

func MustRedis(url string) *redis.Client {
	opt, err := redis.ParseURL(url)
	if err != nil {
		log.Fatalf("redis: %v", err)
	}
	return redis.NewClient(opt)
}

func PublishNotification(ctx context.Context, rdb *redis.Client, payload map[string]interface{}) error {
	_, err := rdb.XAdd(ctx, &redis.XAddArgs{
		Stream: StreamNotifications,
		Values: payload,
	}).Result()
	return err
}
