package journal

import (
	"fmt"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

var _ Store = (*RedisStore)(nil)
var _ Store = (*MemoryStore)(nil)

func newRedisStore(t *testing.T, maxSize int) *RedisStore {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewRedisStore(client, maxSize)
}

func TestRedisStoreAppendRecent(t *testing.T) {
	s := newRedisStore(t, 10)
	s.Append(entry("AAAA", "1", "lobby"))
	s.Append(entry("AAAA", "2", "votes"))
	s.Append(entry("AAAA", "3", "lobby"))

	got := s.Recent("AAAA", 2)
	if len(got) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(got))
	}
	if got[0].ID != "2" || got[1].ID != "3" {
		t.Errorf("expected oldest-first tail, got %s then %s", got[0].ID, got[1].ID)
	}
	if got[0].Type != "votes" {
		t.Errorf("expected type round-tripped, got %q", got[0].Type)
	}
}

func TestRedisStoreTrimsToCap(t *testing.T) {
	s := newRedisStore(t, 3)
	for i := 1; i <= 5; i++ {
		s.Append(entry("AAAA", fmt.Sprintf("%d", i), "votes"))
	}

	if s.Count("AAAA") != 3 {
		t.Fatalf("expected 3 retained, got %d", s.Count("AAAA"))
	}
	got := s.Recent("AAAA", 10)
	if got[0].ID != "3" || got[2].ID != "5" {
		t.Errorf("expected ids 3..5, got %s..%s", got[0].ID, got[2].ID)
	}
}

func TestRedisStoreAfter(t *testing.T) {
	s := newRedisStore(t, 10)
	s.Append(entry("AAAA", "1", "lobby"))
	s.Append(entry("AAAA", "2", "votes"))
	s.Append(entry("AAAA", "3", "lobby"))

	got := s.After("AAAA", "1")
	if len(got) != 2 || got[0].ID != "2" || got[1].ID != "3" {
		t.Errorf("unexpected entries after 1: %v", got)
	}
	if got := s.After("AAAA", ""); got != nil {
		t.Errorf("expected nil for empty id, got %v", got)
	}
}

func TestRedisStoreDeleteRoom(t *testing.T) {
	s := newRedisStore(t, 10)
	s.Append(entry("AAAA", "1", "lobby"))
	s.Append(entry("BBBB", "2", "lobby"))

	s.DeleteRoom("AAAA")
	if s.Count("AAAA") != 0 {
		t.Errorf("expected 0 after delete, got %d", s.Count("AAAA"))
	}
	if s.Count("BBBB") != 1 {
		t.Errorf("other rooms must be untouched, got %d", s.Count("BBBB"))
	}
}
