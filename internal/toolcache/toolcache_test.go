package toolcache

import (
	"context"
	"testing"
	"time"

	"github.com/tidemark/tidemark/internal/log"
	"github.com/tidemark/tidemark/internal/testutil"
)

func TestNewRequiresClient(t *testing.T) {
	if _, err := New(nil, log.NewNop()); err == nil {
		t.Error("expected error for nil client")
	}
}

func TestCacheKey(t *testing.T) {
	if got := cacheKey("hts", "8471.30:us-cn"); got != "tool:hts:8471.30:us-cn" {
		t.Errorf("cacheKey = %q", got)
	}
}

func TestGetSetRoundTrip(t *testing.T) {
	client := testutil.SetupTestRedis(t)
	c, err := New(client, log.NewNop())
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()

	data := map[string]any{"risk_level": "low", "status": "clear"}
	if err := c.Set(ctx, "hts", "PROD-1", data, time.Minute); err != nil {
		t.Fatal(err)
	}

	got, ok, err := c.Get(ctx, "hts", "PROD-1")
	if err != nil {
		t.Fatal(err)
	}
	if !ok {
		t.Fatal("expected cache hit")
	}
	if got["risk_level"] != "low" || got["status"] != "clear" {
		t.Errorf("data = %v", got)
	}
}

func TestGetMissIsNotAnError(t *testing.T) {
	client := testutil.SetupTestRedis(t)
	c, err := New(client, log.NewNop())
	if err != nil {
		t.Fatal(err)
	}

	_, ok, err := c.Get(context.Background(), "hts", "absent")
	if err != nil {
		t.Fatal(err)
	}
	if ok {
		t.Error("expected miss")
	}
}

func TestCorruptEntryTreatedAsMiss(t *testing.T) {
	client := testutil.SetupTestRedis(t)
	c, err := New(client, log.NewNop())
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()

	if err := client.Set(ctx, cacheKey("hts", "PROD-1"), "not json", time.Minute).Err(); err != nil {
		t.Fatal(err)
	}

	_, ok, err := c.Get(ctx, "hts", "PROD-1")
	if err != nil {
		t.Fatal(err)
	}
	if ok {
		t.Error("corrupt entry should read as a miss")
	}
}

func TestTTLExpiry(t *testing.T) {
	client := testutil.SetupTestRedis(t)
	c, err := New(client, log.NewNop())
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()

	if err := c.Set(ctx, "hts", "PROD-1", map[string]any{"a": "b"}, 100*time.Millisecond); err != nil {
		t.Fatal(err)
	}
	time.Sleep(300 * time.Millisecond)

	_, ok, err := c.Get(ctx, "hts", "PROD-1")
	if err != nil {
		t.Fatal(err)
	}
	if ok {
		t.Error("entry should have expired")
	}
}

func TestHealth(t *testing.T) {
	client := testutil.SetupTestRedis(t)
	c, err := New(client, log.NewNop())
	if err != nil {
		t.Fatal(err)
	}
	if err := c.Health(context.Background()); err != nil {
		t.Errorf("Health() = %v", err)
	}
}
