package journal

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"github.com/redis/go-redis/v9"
)

// opTimeout bounds every Redis round trip; the journal is best-effort and
// must never stall a game operation.
const opTimeout = 2 * time.Second

func redisKey(roomCode string) string {
	return "room:" + roomCode + ":journal"
}

// RedisStore keeps each room's journal in a Redis list, so several server
// restarts (or an operator's tooling) can still read recent room history.
type RedisStore struct {
	client  redis.Cmdable
	maxSize int64
}

// NewRedisStore creates a RedisStore retaining up to maxSize entries per room.
func NewRedisStore(client redis.Cmdable, maxSize int) *RedisStore {
	return &RedisStore{client: client, maxSize: int64(maxSize)}
}

// Append pushes an entry onto the room's list, trimming to the cap.
func (s *RedisStore) Append(e *Entry) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	data, err := json.Marshal(e)
	if err != nil {
		log.Printf("journal: failed to marshal entry: %v", err)
		return
	}

	key := redisKey(e.RoomCode)
	pipe := s.client.Pipeline()
	pipe.RPush(ctx, key, data)
	pipe.LTrim(ctx, key, -s.maxSize, -1)
	if _, err := pipe.Exec(ctx); err != nil {
		log.Printf("journal: failed to append entry: %v", err)
	}
}

func (s *RedisStore) load(ctx context.Context, roomCode string, start int64) []*Entry {
	vals, err := s.client.LRange(ctx, redisKey(roomCode), start, -1).Result()
	if err != nil {
		log.Printf("journal: failed to read entries: %v", err)
		return nil
	}
	if len(vals) == 0 {
		return nil
	}

	entries := make([]*Entry, 0, len(vals))
	for _, v := range vals {
		var e Entry
		if err := json.Unmarshal([]byte(v), &e); err != nil {
			continue
		}
		entries = append(entries, &e)
	}
	return entries
}

// Recent returns up to the last n entries for a room, oldest first.
func (s *RedisStore) Recent(roomCode string, n int) []*Entry {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()
	return s.load(ctx, roomCode, int64(-n))
}

// After returns all entries recorded after the one with the given ID.
func (s *RedisStore) After(roomCode, afterID string) []*Entry {
	if afterID == "" {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	entries := s.load(ctx, roomCode, 0)
	for i, e := range entries {
		if e.ID == afterID {
			result := make([]*Entry, len(entries)-i-1)
			copy(result, entries[i+1:])
			return result
		}
	}
	return nil
}

// DeleteRoom drops a room's history.
func (s *RedisStore) DeleteRoom(roomCode string) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	if err := s.client.Del(ctx, redisKey(roomCode)).Err(); err != nil {
		log.Printf("journal: failed to delete room history: %v", err)
	}
}

// Count returns the number of retained entries for a room.
func (s *RedisStore) Count(roomCode string) int {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	n, err := s.client.LLen(ctx, redisKey(roomCode)).Result()
	if err != nil {
		log.Printf("journal: failed to count entries: %v", err)
		return 0
	}
	return int(n)
}
