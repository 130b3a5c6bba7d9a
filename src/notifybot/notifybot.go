package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"github.com/snowledge-labs/snowledge-api/src/api/data"
	"github.com/snowledge-labs/snowledge-api/src/api/types"
)

// NotifyBot mirrors API notification events into each community's
// Discord channel. It tails the Redis notification stream; community
// channel ids live in the communities table.
type NotifyBot struct {
	session *discordgo.Session
	db      *gorm.DB
	rdb     *redis.Client
}

func NewNotifyBot(token string, db *gorm.DB, rdb *redis.Client) (*NotifyBot, error) {
	dg, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, err
	}
	dg.Identify.Intents = discordgo.IntentsGuilds | discordgo.IntentsGuildMessages

	bot := &NotifyBot{session: dg, db: db, rdb: rdb}
	dg.AddHandler(bot.handleReady)
	return bot, nil
}

func (b *NotifyBot) Start(ctx context.Context) error {
	if err := b.session.Open(); err != nil {
		return err
	}
	go b.consumeStream(ctx)
	return nil
}

func (b *NotifyBot) Stop() error {
	return b.session.Close()
}

func (b *NotifyBot) handleReady(s *discordgo.Session, event *discordgo.Ready) {
	log.Printf("Notify bot logged in as %s", event.User.Username)
}

func (b *NotifyBot) consumeStream(ctx context.Context) {
	lastID := "$"
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		streams, err := b.rdb.XRead(ctx, &redis.XReadArgs{
			Streams: []string{data.StreamNotifications, lastID},
			Block:   5 * time.Second,
			Count:   16,
		}).Result()
		if err == redis.Nil {
			continue
		}
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			log.Printf("Error reading notification stream: %v", err)
			time.Sleep(2 * time.Second)
			continue
		}

		for _, stream := range streams {
			for _, msg := range stream.Messages {
				lastID = msg.ID
				if err := b.handleEvent(msg.Values); err != nil {
					log.Printf("Error handling notification event %s: %v", msg.ID, err)
				}
			}
		}
	}
}

func (b *NotifyBot) handleEvent(values map[string]interface{}) error {
	event := str(values["event"])
	communityID, _ := strconv.ParseUint(str(values["community_id"]), 10, 64)
	title := str(values["title"])

	var community types.Community
	if err := b.db.First(&community, "id = ?", communityID).Error; err != nil {
		return fmt.Errorf("community %d: %w", communityID, err)
	}
	if community.DiscordChannelID == "" {
		return nil // nothing to mirror
	}

	var embed *discordgo.MessageEmbed
	switch event {
	case "resolution":
		verdict := str(values["verdict"])
		color := 0x00ff00
		heading := "Proposal approved"
		if verdict == types.ProposalRejected {
			color = 0xff0000
			heading = "Proposal rejected"
		}
		embed = &discordgo.MessageEmbed{
			Title:       heading,
			Description: fmt.Sprintf("The proposal **%s** was resolved by the community vote.", title),
			Color:       color,
			Footer: &discordgo.MessageEmbedFooter{
				Text: fmt.Sprintf("Community %s", community.Name),
			},
			Timestamp: time.Now().Format(time.RFC3339),
		}
	case "vote":
		choice := str(values["choice"])
		word := "positive"
		if choice == types.VoteRejected {
			word = "negative"
		}
		embed = &discordgo.MessageEmbed{
			Title:       "New vote",
			Description: fmt.Sprintf("The proposal **%s** received a %s vote.", title, word),
			Color:       0x0099ff,
			Footer: &discordgo.MessageEmbedFooter{
				Text: fmt.Sprintf("Community %s", community.Name),
			},
			Timestamp: time.Now().Format(time.RFC3339),
		}
	default:
		return nil
	}

	_, err := b.session.ChannelMessageSendEmbed(community.DiscordChannelID, embed)
	return err
}

func str(v interface{}) string {
	s, _ := v.(string)
	return s
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func main() {
	dsn := getenv("MYSQL_DSN", "snowledge:snowledge@tcp(localhost:3306)/snowledge")
	redisURL := getenv("REDIS_URL", "redis://localhost:6379/0")

	db := data.MustMySQL(dsn)

	if err := data.LoadSettings(db); err != nil {
		log.Printf("Failed to load settings: %v", err)
	}

	token := data.GetSetting("discord_token")
	if token == "" {
		token = os.Getenv("DISCORD_TOKEN")
		if token == "" {
			log.Fatal("DISCORD_TOKEN not set in database or environment")
		}
	}

	rdb := data.MustRedis(redisURL)

	ctx, cancel := context.WithCancel(context.Background())

	bot, err := NewNotifyBot(token, db, rdb)
	if err != nil {
		log.Fatalf("Failed to create bot: %v", err)
	}
	if err := bot.Start(ctx); err != nil {
		log.Fatalf("Failed to start bot: %v", err)
	}

	log.Println("Notify bot is running. Press CTRL-C to exit.")

	sc := make(chan os.Signal, 1)
	signal.Notify(sc, syscall.SIGINT, syscall.SIGTERM, os.Interrupt)
	<-sc

	cancel()
	bot.Stop()
	log.Println("Notify bot stopped gracefully")
}
