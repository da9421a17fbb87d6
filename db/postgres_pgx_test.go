//go:build integration

package db

import (
	"context"
	"testing"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	ctesting "compliance.evalgo.org/containers/testing"
	"compliance.evalgo.org/entities"
)

// TestPostgresDBRunCacheEntryRoundTrip exercises GetRunCacheEntry and
// PutRunCacheEntry against a real Postgres, confirming the
// runcache.PostgresCache contract: a miss returns hit=false, a write is
// visible to a subsequent read, and a repeated write for the same key is a
// no-op rather than an error.
func TestPostgresDBRunCacheEntryRoundTrip(t *testing.T) {
	ctx := context.Background()

	connStr, cleanup, err := ctesting.SetupPostgres(ctx, t, nil)
	if err != nil {
		t.Fatalf("start postgres container: %v", err)
	}
	defer cleanup()

	gdb, err := gorm.Open(postgres.Open(connStr), &gorm.Config{})
	if err != nil {
		t.Fatalf("connect via gorm: %v", err)
	}
	if err := gdb.AutoMigrate(&entities.RunCacheEntry{}); err != nil {
		t.Fatalf("migrate run_cache_entries: %v", err)
	}

	pg, err := NewPostgresDB(connStr)
	if err != nil {
		t.Fatalf("open pgx pool: %v", err)
	}
	defer pg.Close()

	_, hit, err := pg.GetRunCacheEntry(ctx, "tenant-a", "hash-1")
	if err != nil {
		t.Fatalf("get on empty cache: %v", err)
	}
	if hit {
		t.Fatal("expected no entry for an unpopulated cache")
	}

	if err := pg.PutRunCacheEntry(ctx, "tenant-a", "hash-1", `{"status":"completed"}`); err != nil {
		t.Fatalf("put run cache entry: %v", err)
	}

	output, hit, err := pg.GetRunCacheEntry(ctx, "tenant-a", "hash-1")
	if err != nil {
		t.Fatalf("get after put: %v", err)
	}
	if !hit || output != `{"status":"completed"}` {
		t.Fatalf("expected cached output to round-trip, got hit=%v output=%q", hit, output)
	}

	if err := pg.PutRunCacheEntry(ctx, "tenant-a", "hash-1", `{"status":"ignored"}`); err != nil {
		t.Fatalf("repeated put should be a no-op, not an error: %v", err)
	}
	output, _, _ = pg.GetRunCacheEntry(ctx, "tenant-a", "hash-1")
	if output != `{"status":"completed"}` {
		t.Fatalf("expected repeated write to leave the original value untouched, got %q", output)
	}

	_, hit, _ = pg.GetRunCacheEntry(ctx, "tenant-b", "hash-1")
	if hit {
		t.Fatal("expected cache entries to be scoped per tenant")
	}
}
