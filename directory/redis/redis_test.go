//go:build integration

package redis_test

import (
	"context"
	"os"
	"sync"
	"testing"

	goredis "github.com/redis/go-redis/v9"

	"github.com/edukia/chatrelay"
	dirredis "github.com/edukia/chatrelay/directory/redis"
)

func newTestClient(t *testing.T) *goredis.Client {
	t.Helper()
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		addr = "localhost:6379"
	}
	client := goredis.NewClient(&goredis.Options{Addr: addr})
	ctx := context.Background()
	if err := client.Ping(ctx).Err(); err != nil {
		t.Fatalf("redis not available at %s: %v", addr, err)
	}
	t.Cleanup(func() { client.Close() })
	return client
}

func newTestDirectory(t *testing.T, client *goredis.Client) *dirredis.Directory {
	t.Helper()
	// Use a unique prefix per test to avoid collisions.
	prefix := "test:" + t.Name() + ":"
	d := dirredis.New(client, dirredis.WithKeyPrefix(prefix))
	t.Cleanup(func() {
		ctx := context.Background()
		iter := client.Scan(ctx, 0, prefix+"*", 0).Iterator()
		for iter.Next(ctx) {
			client.Del(ctx, iter.Val())
		}
	})
	return d
}

func TestUnknownTarget_Unlimited(t *testing.T) {
	d := newTestDirectory(t, newTestClient(t))
	ctx := context.Background()

	quota, err := d.GetQuota(ctx, chatrelay.QuotaTarget{UserID: "u-1"})
	if err != nil {
		t.Fatal(err)
	}
	if quota.UsageLimit != nil {
		t.Fatalf("expected unlimited, got limit %d", *quota.UsageLimit)
	}
	if quota.UsageCount != 0 {
		t.Fatalf("expected zero usage, got %d", quota.UsageCount)
	}
}

func TestIncrementAndLimit(t *testing.T) {
	d := newTestDirectory(t, newTestClient(t))
	ctx := context.Background()
	target := chatrelay.QuotaTarget{UserID: "u-1", CourseID: "c-1"}

	if err := d.SetLimit(ctx, target, 100); err != nil {
		t.Fatal(err)
	}
	if err := d.IncrementUsage(ctx, target, 100, "k1"); err != nil {
		t.Fatal(err)
	}

	quota, err := d.GetQuota(ctx, target)
	if err != nil {
		t.Fatal(err)
	}
	if !quota.Exceeded() {
		t.Fatalf("expected exceeded, got count=%d limit=%v", quota.UsageCount, quota.UsageLimit)
	}
}

func TestIdempotentIncrement(t *testing.T) {
	d := newTestDirectory(t, newTestClient(t))
	ctx := context.Background()
	target := chatrelay.QuotaTarget{UserID: "u-1"}

	for i := 0; i < 3; i++ {
		if err := d.IncrementUsage(ctx, target, 40, "same-key"); err != nil {
			t.Fatal(err)
		}
	}

	quota, err := d.GetQuota(ctx, target)
	if err != nil {
		t.Fatal(err)
	}
	if quota.UsageCount != 40 {
		t.Fatalf("expected 40 after idempotent retries, got %d", quota.UsageCount)
	}
}

func TestConcurrentIncrements(t *testing.T) {
	d := newTestDirectory(t, newTestClient(t))
	ctx := context.Background()
	target := chatrelay.QuotaTarget{UserID: "u-1"}

	const workers = 10
	const delta = 7

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := d.IncrementUsage(ctx, target, delta, ""); err != nil {
				t.Error(err)
			}
		}()
	}
	wg.Wait()

	quota, err := d.GetQuota(ctx, target)
	if err != nil {
		t.Fatal(err)
	}
	if quota.UsageCount != workers*delta {
		t.Fatalf("expected %d, got %d", workers*delta, quota.UsageCount)
	}
}

func TestResetUsage(t *testing.T) {
	d := newTestDirectory(t, newTestClient(t))
	ctx := context.Background()
	target := chatrelay.QuotaTarget{UserID: "u-1"}

	if err := d.IncrementUsage(ctx, target, 500, ""); err != nil {
		t.Fatal(err)
	}
	if err := d.ResetUsage(ctx, target); err != nil {
		t.Fatal(err)
	}

	quota, err := d.GetQuota(ctx, target)
	if err != nil {
		t.Fatal(err)
	}
	if quota.UsageCount != 0 {
		t.Fatalf("expected zero after reset, got %d", quota.UsageCount)
	}
}
