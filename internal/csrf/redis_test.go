package csrf

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/hitoshi/storefront/internal/kvstore"
	"github.com/redis/go-redis/v9"
)

func newRedisStore(t *testing.T) (*Store, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewStore(kvstore.NewRedisTable[string](client, "storefront:csrf:", nil), time.Hour), mr
}

func TestRedisStore_SecondIssueInvalidatesFirst(t *testing.T) {
	s, _ := newRedisStore(t)
	ctx := context.Background()

	first, err := s.Issue(ctx, "session-1")
	if err != nil {
		t.Fatalf("Issue error: %v", err)
	}
	second, err := s.Issue(ctx, "session-1")
	if err != nil {
		t.Fatalf("Issue error: %v", err)
	}

	if s.Verify(ctx, "session-1", first) {
		t.Error("first token should be invalid after reissue")
	}
	if !s.Verify(ctx, "session-1", second) {
		t.Error("second token should be valid")
	}
	if tok, ok := s.Peek(ctx, "session-1"); !ok || tok != second {
		t.Errorf("Peek = (%q, %v), want the second token", tok, ok)
	}
}

func TestRedisStore_TokenExpiresWithTTL(t *testing.T) {
	s, mr := newRedisStore(t)
	ctx := context.Background()

	tok, _ := s.Issue(ctx, "session-1")
	mr.FastForward(time.Hour)

	if s.Verify(ctx, "session-1", tok) {
		t.Error("token should expire with the store TTL")
	}
}

// 同一セッションへの同時発行がいずれも成功し、最後に保存された1つだけが有効であること
func TestRedisStore_ConcurrentIssue(t *testing.T) {
	s, _ := newRedisStore(t)
	ctx := context.Background()

	const n = 30
	var (
		wg     sync.WaitGroup
		mu     sync.Mutex
		tokens []string
		errs   int
	)
	wg.Add(n)
	for i := 0; i < n; i++ {
		go func() {
			defer wg.Done()
			tok, err := s.Issue(ctx, "session-1")
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				errs++
				return
			}
			tokens = append(tokens, tok)
		}()
	}
	wg.Wait()

	if errs != 0 {
		t.Errorf("errors = %d, want 0", errs)
	}
	valid := 0
	for _, tok := range tokens {
		if s.Verify(ctx, "session-1", tok) {
			valid++
		}
	}
	if valid != 1 {
		t.Errorf("valid tokens = %d, want 1", valid)
	}
}
