// Package runcache implements the Run Hash + Cache component (spec §4.9):
// a deterministic hash of everything that determines a run's output, used
// as the key for a get-or-compute cache so two runs with identical inputs
// produce byte-identical output without recomputation.
//
// Postgres (RunCacheEntry, via the caller's *db.PostgresDB) is the system
// of record: uniqueness of (tenant_id, run_hash) is enforced there. The
// Redis layer in front of it is a read-through accelerant only — losing it
// never changes correctness, only how often Postgres is hit for a
// repeatedly-replayed run_hash.
package runcache

import (
	"context"
	"fmt"
	"time"

	"compliance.evalgo.org/canonical"
)

// Input is the full set of fields the run hash is computed over. Per
// spec §4.9 this deliberately excludes every wall-clock field: two runs
// started minutes apart with identical Input values must hash identically.
type Input struct {
	TenantID           string            `json:"tenant_id"`
	DocumentHashes     []string          `json:"document_hashes"`
	CompanyProfile     map[string]interface{} `json:"company_profile"`
	MaterialityInputs  map[string]bool   `json:"materiality_inputs"`
	BundleVersion      string            `json:"bundle_version"`
	RetrievalParams    map[string]interface{} `json:"retrieval_params"`
	PromptHash         string            `json:"prompt_hash"`
	CompilerMode       string            `json:"compiler_mode"`
	RegistryChecksums  []string          `json:"registry_checksums"`
}

// Hash computes the run_hash: SHA-256 over the canonical JSON of in,
// after sorting DocumentHashes and RegistryChecksums so caller-supplied
// ordering never affects the hash.
func Hash(in Input) (string, error) {
	sorted := in
	sorted.DocumentHashes = sortedCopy(in.DocumentHashes)
	sorted.RegistryChecksums = sortedCopy(in.RegistryChecksums)
	if sorted.CompilerMode == "" {
		sorted.CompilerMode = "legacy"
	}
	return canonical.SHA256Hex(sorted)
}

func sortedCopy(in []string) []string {
	out := make([]string, len(in))
	copy(out, in)
	for i := 1; i < len(out); i++ {
		for j := i; j > 0 && out[j-1] > out[j]; j-- {
			out[j-1], out[j] = out[j], out[j-1]
		}
	}
	return out
}

// Store is the runcache persistence façade: Postgres as the system of
// record, with optional Redis read-through and an optional bbolt
// offline-replay backend.
type Store struct {
	pg      PostgresCache
	redis   *redisLayer
	offline *offlineDB
}

// PostgresCache is the subset of *db.PostgresDB runcache needs, kept as an
// interface so this package doesn't import the db package directly and
// can be exercised against a fake in unit tests.
type PostgresCache interface {
	GetRunCacheEntry(ctx context.Context, tenantID, runHash string) (string, bool, error)
	PutRunCacheEntry(ctx context.Context, tenantID, runHash, outputJSON string) error
}

// NewStore builds a Store. redisURL and offlinePath are both optional; an
// empty string disables that layer.
func NewStore(pg PostgresCache, redisURL, offlinePath string) (*Store, error) {
	s := &Store{pg: pg}
	if redisURL != "" {
		layer, err := newRedisLayer(redisURL)
		if err != nil {
			return nil, err
		}
		s.redis = layer
	}
	if offlinePath != "" {
		odb, err := openOffline(offlinePath)
		if err != nil {
			return nil, err
		}
		if err := odb.CreateBucket(offlineBucket); err != nil {
			return nil, err
		}
		s.offline = odb
	}
	return s, nil
}

const offlineBucket = "run_cache_entries"
const redisCacheTTL = 24 * time.Hour

// GetOrCompute implements the get_or_compute contract: if an entry already
// exists for (tenantID, runHash), its output is returned with hit=true and
// compute is never called. Otherwise compute runs, its result is persisted
// (Postgres first, then best-effort Redis), and hit=false is returned.
func (s *Store) GetOrCompute(ctx context.Context, tenantID, runHash string, compute func() (string, error)) (output string, hit bool, err error) {
	if s.redis != nil {
		if cached, ok, rerr := s.redis.getCachedOutput(ctx, tenantID, runHash); rerr == nil && ok {
			return string(cached), true, nil
		}
	}

	existing, ok, err := s.pg.GetRunCacheEntry(ctx, tenantID, runHash)
	if err != nil {
		return "", false, fmt.Errorf("runcache: read postgres cache: %w", err)
	}
	if ok {
		if s.redis != nil {
			_ = s.redis.setCachedOutput(ctx, tenantID, runHash, []byte(existing), redisCacheTTL)
		}
		return existing, true, nil
	}

	output, err = compute()
	if err != nil {
		return "", false, err
	}

	if err := s.pg.PutRunCacheEntry(ctx, tenantID, runHash, output); err != nil {
		return "", false, fmt.Errorf("runcache: store postgres cache: %w", err)
	}
	if s.redis != nil {
		_ = s.redis.setCachedOutput(ctx, tenantID, runHash, []byte(output), redisCacheTTL)
	}
	return output, false, nil
}

// AcquireRunLock and ReleaseRunLock implement a distributed single-flight
// lock keyed by tenant and run. runworker does not call them: a worker
// picks up a run through Manager.Claim's queued→running transition. When
// Redis is not configured, every acquisition trivially succeeds.
func (s *Store) AcquireRunLock(ctx context.Context, tenantID string, runID uint, ttl time.Duration) (bool, error) {
	if s.redis == nil {
		return true, nil
	}
	return s.redis.AcquireLock(ctx, lockKey(tenantID, runID), ttl)
}

func (s *Store) ReleaseRunLock(ctx context.Context, tenantID string, runID uint) error {
	if s.redis == nil {
		return nil
	}
	return s.redis.ReleaseLock(ctx, lockKey(tenantID, runID))
}

func lockKey(tenantID string, runID uint) string {
	return fmt.Sprintf("%s:%d", tenantID, runID)
}

// ExportOffline copies a (tenantID, runHash) entry's cached output into the
// bbolt offline-replay store, for later read-only access by complyctl when
// neither Postgres nor Redis is reachable.
func (s *Store) ExportOffline(tenantID, runHash, outputJSON string) error {
	if s.offline == nil {
		return fmt.Errorf("runcache: offline store not configured")
	}
	return s.offline.PutJSON(offlineBucket, offlineKey(tenantID, runHash), outputJSON)
}

// ReplayOffline reads a previously exported entry back out of the bbolt
// offline-replay store.
func (s *Store) ReplayOffline(tenantID, runHash string) (string, error) {
	if s.offline == nil {
		return "", fmt.Errorf("runcache: offline store not configured")
	}
	var out string
	if err := s.offline.GetJSON(offlineBucket, offlineKey(tenantID, runHash), &out); err != nil {
		return "", fmt.Errorf("runcache: replay offline entry: %w", err)
	}
	return out, nil
}

// ListOffline returns every (tenantID:runHash) key recorded in the offline
// replay store, for complyctl's offline inspection command.
func (s *Store) ListOffline() ([]string, error) {
	if s.offline == nil {
		return nil, fmt.Errorf("runcache: offline store not configured")
	}
	return s.offline.List(offlineBucket)
}

func offlineKey(tenantID, runHash string) string {
	return tenantID + ":" + runHash
}
