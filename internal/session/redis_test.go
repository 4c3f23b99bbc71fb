package session

import (
	"context"
	"errors"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/ovleluv/AIContract-STT/internal/contract"
)

// newTestRedis returns a RedisStore against CONTRACTD_TEST_REDIS_URL with a
// unique key prefix, or skips the test.
func newTestRedis(t *testing.T, ttl time.Duration) *RedisStore {
	t.Helper()
	url := os.Getenv("CONTRACTD_TEST_REDIS_URL")
	if url == "" {
		t.Skip("CONTRACTD_TEST_REDIS_URL not set")
	}
	s, err := NewRedisStore(url, ttl, WithKeyPrefix("contractd-test:"+uuid.NewString()+":"))
	if err != nil {
		t.Fatalf("NewRedisStore: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	if err := s.Ping(context.Background()); err != nil {
		t.Skipf("redis unreachable: %v", err)
	}
	return s
}

func TestNewRedisStore_BadURL(t *testing.T) {
	t.Parallel()
	if _, err := NewRedisStore("not a url", 0); err == nil {
		t.Error("expected error for malformed url")
	}
}

// scriptedRedis answers commands in-process so store logic can be tested
// without a server. Commands it does not script fail.
type scriptedRedis struct {
	mu    sync.Mutex
	calls map[string]int
	reply func(cmd redis.Cmder) error
}

func (h *scriptedRedis) DialHook(next redis.DialHook) redis.DialHook { return next }

func (h *scriptedRedis) ProcessHook(redis.ProcessHook) redis.ProcessHook {
	return func(_ context.Context, cmd redis.Cmder) error {
		h.mu.Lock()
		h.calls[cmd.Name()]++
		h.mu.Unlock()
		err := h.reply(cmd)
		cmd.SetErr(err)
		return err
	}
}

func (h *scriptedRedis) ProcessPipelineHook(next redis.ProcessPipelineHook) redis.ProcessPipelineHook {
	return next
}

func (h *scriptedRedis) count(name string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.calls[name]
}

func newScriptedStore(t *testing.T, reply func(cmd redis.Cmder) error) (*RedisStore, *scriptedRedis) {
	t.Helper()
	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1"})
	t.Cleanup(func() { _ = client.Close() })
	h := &scriptedRedis{calls: map[string]int{}, reply: reply}
	client.AddHook(h)
	return NewRedisStoreFromClient(client, time.Minute), h
}

func TestRedisStore_PinLanguageBoundsExpiryRetries(t *testing.T) {
	t.Parallel()

	// Another writer always holds the key at SETNX time, and it has always
	// expired by the GET.
	s, h := newScriptedStore(t, func(cmd redis.Cmder) error {
		switch c := cmd.(type) {
		case *redis.BoolCmd:
			c.SetVal(false)
			return nil
		case *redis.StringCmd:
			return redis.Nil
		}
		return errors.New("unexpected command " + cmd.Name())
	})

	if _, err := s.PinLanguage(context.Background(), "s1", "ko"); err == nil {
		t.Fatal("expected error after repeated expiry")
	}
	if n := h.count("get"); n != pinAttempts {
		t.Errorf("GET calls = %d, want %d", n, pinAttempts)
	}
}

func TestRedisStore_PinLanguageSurvivesExpireFailure(t *testing.T) {
	t.Parallel()

	s, h := newScriptedStore(t, func(cmd redis.Cmder) error {
		switch c := cmd.(type) {
		case *redis.BoolCmd:
			if c.Name() == "expire" {
				return errors.New("READONLY You can't write against a read only replica.")
			}
			c.SetVal(false)
			return nil
		case *redis.StringCmd:
			c.SetVal("en")
			return nil
		}
		return errors.New("unexpected command " + cmd.Name())
	})

	got, err := s.PinLanguage(context.Background(), "s1", "ko")
	if err != nil || got != "en" {
		t.Fatalf("PinLanguage = %q, %v; want the existing pin", got, err)
	}
	if n := h.count("expire"); n != 1 {
		t.Errorf("EXPIRE calls = %d, want 1", n)
	}
}

func TestRedisStore_PinLanguageIsSetOnce(t *testing.T) {
	s := newTestRedis(t, time.Minute)
	ctx := context.Background()

	if _, err := s.Language(ctx, "s1"); !errors.Is(err, contract.ErrSessionLanguageMissing) {
		t.Fatalf("err = %v, want ErrSessionLanguageMissing", err)
	}
	if got, _ := s.PinLanguage(ctx, "s1", "ko"); got != "ko" {
		t.Fatalf("first pin = %q", got)
	}
	if got, _ := s.PinLanguage(ctx, "s1", "en"); got != "ko" {
		t.Fatalf("second pin = %q, want ko", got)
	}
}

func TestRedisStore_Load(t *testing.T) {
	s := newTestRedis(t, time.Minute)
	ctx := context.Background()

	_, _ = s.PinLanguage(ctx, "s1", "es")
	if err := s.SetActiveType(ctx, "s1", "Complaint"); err != nil {
		t.Fatalf("SetActiveType: %v", err)
	}
	sess, err := s.Load(ctx, "s1")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	want := contract.Session{ID: "s1", Language: "es", ActiveType: "Complaint"}
	if sess != want {
		t.Errorf("Load = %+v, want %+v", sess, want)
	}

	empty, err := s.Load(ctx, "other")
	if err != nil || empty.Language != "" || empty.ActiveType != "" {
		t.Errorf("Load(other) = %+v, %v", empty, err)
	}
}
