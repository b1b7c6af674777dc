package chat

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"github.com/redis/go-redis/v9"
)

// redisKey returns the Redis key for one chat scope of a room.
func redisKey(roomID, scope string) string {
	return "room:" + roomID + ":chat:" + scope
}

// RedisStore keeps chat history in Redis using a list per room scope.
// Keys are deleted when the room is disposed, so history has the same
// lifetime as with MemoryStore; Redis is an operational backend, not a
// durability layer.
type RedisStore struct {
	client redis.Cmdable
}

// NewRedisStore creates a RedisStore on the given client.
func NewRedisStore(client redis.Cmdable) *RedisStore {
	return &RedisStore{client: client}
}

// Append adds a message to the scope's list in Redis.
func (s *RedisStore) Append(roomID, scope string, msg *Message) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	data, err := json.Marshal(msg)
	if err != nil {
		log.Printf("chat: failed to marshal message: %v", err)
		return
	}
	if err := s.client.RPush(ctx, redisKey(roomID, scope), data).Err(); err != nil {
		log.Printf("chat: failed to append message: %v", err)
	}
}

// All returns every message in the scope, oldest first.
func (s *RedisStore) All(roomID, scope string) []*Message {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	vals, err := s.client.LRange(ctx, redisKey(roomID, scope), 0, -1).Result()
	if err != nil {
		log.Printf("chat: failed to read messages: %v", err)
		return nil
	}
	if len(vals) == 0 {
		return nil
	}

	msgs := make([]*Message, 0, len(vals))
	for _, v := range vals {
		var m Message
		if err := json.Unmarshal([]byte(v), &m); err != nil {
			continue
		}
		msgs = append(msgs, &m)
	}
	return msgs
}

// Count returns the number of messages in the scope.
func (s *RedisStore) Count(roomID, scope string) int {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	n, err := s.client.LLen(ctx, redisKey(roomID, scope)).Result()
	if err != nil {
		log.Printf("chat: failed to count messages: %v", err)
		return 0
	}
	return int(n)
}

// DeleteRoom removes every chat key belonging to the room.
func (s *RedisStore) DeleteRoom(roomID string) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	keys, err := s.client.Keys(ctx, "room:"+roomID+":chat:*").Result()
	if err != nil {
		log.Printf("chat: failed to list room keys: %v", err)
		return
	}
	if len(keys) == 0 {
		return
	}
	if err := s.client.Del(ctx, keys...).Err(); err != nil {
		log.Printf("chat: failed to delete room chat: %v", err)
	}
}
