package msgindex

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/whisper/modbot/internal/transport"
)

const (
	// MessagePrefix is the Redis key prefix for indexed messages:
	//
	//	Key:   msg:<guild>:<channel>:<message>
	//	Value: hash of author_id, author_name, channel_name, content
	MessagePrefix = "msg:"

	// DefaultTTL bounds how long a message stays reportable.
	DefaultTTL = 7 * 24 * time.Hour
)

// Redis indexes messages as hashes with a TTL so the index can be shared
// between restarts and bot replicas.
type Redis struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedis creates a Redis-backed index. A non-positive ttl uses DefaultTTL.
func NewRedis(client *redis.Client, ttl time.Duration) *Redis {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Redis{client: client, ttl: ttl}
}

func messageKey(ref transport.MessageRef) string {
	return MessagePrefix + ref.GuildID + ":" + ref.ChannelID + ":" + ref.MessageID
}

// Record stores msg and refreshes its TTL.
func (r *Redis) Record(ctx context.Context, msg transport.Message) error {
	key := messageKey(msg.Ref)

	pipe := r.client.Pipeline()
	pipe.HSet(ctx, key, map[string]interface{}{
		"author_id":    msg.Author.ID,
		"author_name":  msg.Author.Name,
		"channel_name": msg.ChannelName,
		"content":      msg.Content,
	})
	pipe.Expire(ctx, key, r.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("msgindex: record %s: %w", msg.Ref, err)
	}
	return nil
}

// Forget deletes ref from the index.
func (r *Redis) Forget(ctx context.Context, ref transport.MessageRef) error {
	if err := r.client.Del(ctx, messageKey(ref)).Err(); err != nil {
		return fmt.Errorf("msgindex: forget %s: %w", ref, err)
	}
	return nil
}

// Resolve loads ref. Returns nil if not found.
func (r *Redis) Resolve(ctx context.Context, ref transport.MessageRef) (*transport.Message, error) {
	result, err := r.client.HGetAll(ctx, messageKey(ref)).Result()
	if err != nil {
		return nil, fmt.Errorf("msgindex: resolve %s: %w", ref, err)
	}
	if len(result) == 0 {
		return nil, nil
	}

	return &transport.Message{
		Ref:         ref,
		ChannelName: result["channel_name"],
		Author: transport.User{
			ID:   result["author_id"],
			Name: result["author_name"],
		},
		Content: result["content"],
	}, nil
}
