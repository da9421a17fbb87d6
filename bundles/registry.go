package bundles

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"gorm.io/gorm"

	"compliance.evalgo.org/canonical"
	"compliance.evalgo.org/entities"
)

// SyncMode controls how Registry.SyncFromFilesystem reconciles a directory
// of bundle files against what is already registered.
type SyncMode string

const (
	// SyncModeMerge upserts every bundle found on disk but leaves bundles
	// absent from the directory untouched.
	SyncModeMerge SyncMode = "merge"
	// SyncModeSync upserts every bundle found on disk and additionally
	// deactivates any registered bundle whose bundle_id is absent.
	SyncModeSync SyncMode = "sync"
)

// Bundle is the in-memory, validated representation of one registered
// RegulatoryBundle payload.
type Bundle struct {
	BundleID     string          `json:"bundle_id"`
	Version      string          `json:"version"`
	Jurisdiction string          `json:"jurisdiction"`
	Regime       string          `json:"regime"`
	Obligations  []Obligation    `json:"obligations"`
	Overlays     []Overlay       `json:"overlays,omitempty"`
}

// Obligation is one disclosure obligation within a Bundle.
type Obligation struct {
	ObligationID      string    `json:"obligation_id"`
	Title             string    `json:"title"`
	StandardReference string    `json:"standard_reference"`
	Elements          []Element `json:"elements"`
}

// Element is one datapoint-bearing element of an Obligation, gated by zero
// or more phase-in rules.
type Element struct {
	ElementID     string      `json:"element_id"`
	Label         string      `json:"label"`
	Required      bool        `json:"required"`
	PhaseInRules  []PhaseRule `json:"phase_in_rules,omitempty"`
}

// PhaseRule is one condition an Element's phase_in_rules entry expresses,
// compiled to an exprsafe expression by ruleExpression.
type PhaseRule struct {
	Key      string      `json:"key"`
	Operator string      `json:"operator"`
	Value    interface{} `json:"value"`
}

// Overlay conditionally disables, modifies, or adds obligations for a set
// of jurisdictions, applied in registration order during compilation.
type Overlay struct {
	Jurisdictions      []string     `json:"jurisdictions"`
	ObligationsDisable []string     `json:"obligations_disable,omitempty"`
	ObligationsModify  []ModifyPatch `json:"obligations_modify,omitempty"`
	ObligationsAdd     []Obligation `json:"obligations_add,omitempty"`
}

// ModifyPatch patches an existing obligation's disclosure/standard
// reference fields in place.
type ModifyPatch struct {
	ObligationID      string  `json:"obligation_id"`
	Title             *string `json:"title,omitempty"`
	StandardReference *string `json:"standard_reference,omitempty"`
}

// Registry is the file-backed bundle store, its shape (mutex-guarded map,
// atomic rewrite) grounded on the teacher's registry/registry.go
// (Registry/Service pattern). Unlike the teacher's single JSON-LD file,
// every successful Upsert also mirrors the bundle into the
// RegulatoryBundle table so sync_from_filesystem survives process
// restart across multiple control-plane replicas.
type Registry struct {
	dirPath string
	db      *gorm.DB

	mu      sync.RWMutex
	bundles map[string]*Bundle // keyed by bundle_id
}

// NewRegistry creates a Registry rooted at dirPath, mirroring upserts into
// db. dirPath need not exist yet; it is created by SyncFromFilesystem's
// caller, not by the registry itself.
func NewRegistry(dirPath string, db *gorm.DB) *Registry {
	return &Registry{
		dirPath: dirPath,
		db:      db,
		bundles: make(map[string]*Bundle),
	}
}

// Checksum returns the content hash a Bundle is stored and compared under.
func Checksum(b Bundle) (string, error) {
	return canonical.SHA256Hex(b)
}

// Upsert registers b idempotently: if a bundle with the same (bundle_id,
// version, checksum) is already registered, Upsert is a no-op and returns
// false; otherwise it writes the new payload and returns true.
func (r *Registry) Upsert(b Bundle) (changed bool, err error) {
	checksum, err := Checksum(b)
	if err != nil {
		return false, fmt.Errorf("bundles: checksum bundle %s: %w", b.BundleID, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.bundles[b.BundleID]; ok {
		existingChecksum, _ := Checksum(*existing)
		if existing.Version == b.Version && existingChecksum == checksum {
			return false, nil
		}
	}

	payload, err := json.Marshal(b)
	if err != nil {
		return false, fmt.Errorf("bundles: marshal bundle %s: %w", b.BundleID, err)
	}

	record := entities.RegulatoryBundle{
		BundleID:     b.BundleID,
		Version:      b.Version,
		Jurisdiction: b.Jurisdiction,
		Regime:       b.Regime,
		Checksum:     checksum,
		PayloadJSON:  string(payload),
	}
	if err := r.db.Where("bundle_id = ? AND version = ?", b.BundleID, b.Version).
		Assign(record).FirstOrCreate(&record).Error; err != nil {
		return false, fmt.Errorf("bundles: persist bundle %s: %w", b.BundleID, err)
	}

	cp := b
	r.bundles[b.BundleID] = &cp
	return true, nil
}

// Get returns a registered bundle by ID, loading from Postgres on a
// cold-cache miss (e.g. after process restart).
func (r *Registry) Get(bundleID string) (*Bundle, error) {
	r.mu.RLock()
	b, ok := r.bundles[bundleID]
	r.mu.RUnlock()
	if ok {
		return b, nil
	}

	var record entities.RegulatoryBundle
	if err := r.db.Where("bundle_id = ?", bundleID).
		Order("updated_at desc").First(&record).Error; err != nil {
		return nil, fmt.Errorf("bundles: bundle not found: %s: %w", bundleID, err)
	}

	var loaded Bundle
	if err := json.Unmarshal([]byte(record.PayloadJSON), &loaded); err != nil {
		return nil, fmt.Errorf("bundles: decode persisted bundle %s: %w", bundleID, err)
	}

	r.mu.Lock()
	r.bundles[bundleID] = &loaded
	r.mu.Unlock()
	return &loaded, nil
}

// List returns every bundle currently registered in-process, sorted by
// bundle_id for deterministic iteration.
func (r *Registry) List() []*Bundle {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Bundle, 0, len(r.bundles))
	for _, b := range r.bundles {
		out = append(out, b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].BundleID < out[j].BundleID })
	return out
}

// SyncFromFilesystem walks root in sorted filename order, upserting each
// JSON bundle file found. In SyncModeSync, any bundle currently
// registered but absent from root is deactivated (removed from the
// in-process registry; its RegulatoryBundle row is left for audit but no
// longer resolvable via Get until re-synced).
func (r *Registry) SyncFromFilesystem(root string, mode SyncMode) (upserted, deactivated int, err error) {
	entries, err := os.ReadDir(root)
	if err != nil {
		return 0, 0, fmt.Errorf("bundles: read bundle directory %s: %w", root, err)
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() && filepath.Ext(e.Name()) == ".json" {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	seen := map[string]struct{}{}
	for _, name := range names {
		data, err := os.ReadFile(filepath.Join(root, name))
		if err != nil {
			return upserted, deactivated, fmt.Errorf("bundles: read bundle file %s: %w", name, err)
		}
		var b Bundle
		if err := json.Unmarshal(data, &b); err != nil {
			return upserted, deactivated, fmt.Errorf("bundles: parse bundle file %s: %w", name, err)
		}
		changed, err := r.Upsert(b)
		if err != nil {
			return upserted, deactivated, err
		}
		if changed {
			upserted++
		}
		seen[b.BundleID] = struct{}{}
	}

	if mode == SyncModeSync {
		r.mu.Lock()
		for id := range r.bundles {
			if _, ok := seen[id]; !ok {
				delete(r.bundles, id)
				deactivated++
			}
		}
		r.mu.Unlock()
	}

	return upserted, deactivated, nil
}
