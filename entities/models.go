// Package entities defines the relational data model for the run engine:
// tenant-scoped companies and documents, bundle/regulatory definitions,
// runs and their assessments, and the cache/manifest/snapshot rows that
// make a run's output reproducible and exportable. Field names and table
// shapes are ported directly from the original implementation's SQLAlchemy
// models; persistence is via GORM (gorm.io/gorm), following the teacher's
// db/postgres.go convention of one struct per table with explicit
// gorm tags rather than relying on field-name inference.
package entities

import "time"

// Company is a tenant-scoped client company whose disclosures are being
// assessed.
type Company struct {
	ID             uint   `gorm:"primaryKey"`
	TenantID       string `gorm:"column:tenant_id;default:default;index:idx_company_tenant"`
	Name           string `gorm:"column:name"`
	Employees      *int   `gorm:"column:employees"`
	Turnover       *float64 `gorm:"column:turnover"`
	ListedStatus   *bool  `gorm:"column:listed_status"`
	ReportingYear  *int   `gorm:"column:reporting_year"`
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

func (Company) TableName() string { return "companies" }

// Document is one ingested disclosure document belonging to a Company.
type Document struct {
	ID       uint   `gorm:"primaryKey"`
	TenantID string `gorm:"column:tenant_id;default:default;index:idx_document_tenant"`
	CompanyID uint  `gorm:"column:company_id;index"`
	Title    string `gorm:"column:title"`
	CreatedAt time.Time
}

func (Document) TableName() string { return "documents" }

// DocumentFile is the content-addressed file backing a Document: its
// SHA-256 hash, the object-store URI it lives at, and the parser version
// pinned at ingestion time.
type DocumentFile struct {
	ID            uint   `gorm:"primaryKey"`
	DocumentID    uint   `gorm:"column:document_id;index"`
	SHA256Hash    string `gorm:"column:sha256_hash;uniqueIndex"`
	StorageURI    string `gorm:"column:storage_uri"`
	ParserVersion string `gorm:"column:parser_version"`
	CreatedAt     time.Time
}

func (DocumentFile) TableName() string { return "document_files" }

// DocumentPage is one extracted page of a DocumentFile.
type DocumentPage struct {
	ID             uint   `gorm:"primaryKey"`
	DocumentFileID uint   `gorm:"column:document_file_id;index"`
	PageNumber     int    `gorm:"column:page_number"`
	Text           string `gorm:"column:text"`
}

func (DocumentPage) TableName() string { return "document_pages" }

// Chunk is one sliding-window slice of a DocumentPage's text.
type Chunk struct {
	ID          uint   `gorm:"primaryKey"`
	DocumentID  uint   `gorm:"column:document_id;index"`
	ChunkID     string `gorm:"column:chunk_id;uniqueIndex"`
	PageNumber  int    `gorm:"column:page_number"`
	StartOffset int    `gorm:"column:start_offset"`
	EndOffset   int    `gorm:"column:end_offset"`
	Text        string `gorm:"column:text"`
	// ContentTSV is a tsvector column for Text. Nothing in this module
	// populates it (no trigger or to_tsvector call). It is never read by the
	// retrieval engine's scoring path (see retrieval package doc comment);
	// it exists solely as the queryable lexical index the data model names.
	ContentTSV string `gorm:"column:content_tsv;type:tsvector"`
}

func (Chunk) TableName() string { return "chunks" }

// Embedding is a named model's dense vector for a Chunk.
type Embedding struct {
	ID        uint      `gorm:"primaryKey"`
	ChunkID   uint       `gorm:"column:chunk_id;index"`
	ModelName string     `gorm:"column:model_name;index"`
	Vector    []float64  `gorm:"column:vector;type:double precision[]"`
}

func (Embedding) TableName() string { return "embeddings" }

// RequirementBundle is a versioned legacy (compiler_mode=legacy) bundle of
// datapoint requirements for a jurisdiction/regime.
type RequirementBundle struct {
	ID      uint   `gorm:"primaryKey"`
	BundleID string `gorm:"column:bundle_id;index:idx_bundle_version,unique"`
	Version  string `gorm:"column:version;index:idx_bundle_version,unique"`
}

func (RequirementBundle) TableName() string { return "requirement_bundles" }

// DatapointDefinition is one datapoint a RequirementBundle may require.
type DatapointDefinition struct {
	ID                   uint   `gorm:"primaryKey"`
	RequirementBundleID  uint   `gorm:"column:requirement_bundle_id;index"`
	DatapointKey         string `gorm:"column:datapoint_key;index"`
	Title                string `gorm:"column:title"`
	DisclosureReference  string `gorm:"column:disclosure_reference"`
	DatapointType        string `gorm:"column:datapoint_type"` // "narrative" | "metric"
	MaterialityTopic     string `gorm:"column:materiality_topic;default:general"`
}

func (DatapointDefinition) TableName() string { return "datapoint_definitions" }

// ApplicabilityRule gates a datapoint's inclusion on a CompanyProfile
// expression, evaluated by the legacy applicability engine.
type ApplicabilityRule struct {
	ID           uint   `gorm:"primaryKey"`
	BundleID     string `gorm:"column:bundle_id;index"`
	RuleID       string `gorm:"column:rule_id"`
	DatapointKey string `gorm:"column:datapoint_key"`
	Expression   string `gorm:"column:expression"`
}

func (ApplicabilityRule) TableName() string { return "applicability_rules" }

// RegulatoryBundle is a versioned, checksummed registry-mode bundle
// (obligations + overlays), as produced by Bundle Registry sync.
type RegulatoryBundle struct {
	ID         uint   `gorm:"primaryKey"`
	BundleID   string `gorm:"column:bundle_id;index:idx_reg_bundle_version,unique"`
	Version    string `gorm:"column:version;index:idx_reg_bundle_version,unique"`
	Jurisdiction string `gorm:"column:jurisdiction"`
	Regime     string `gorm:"column:regime"`
	Checksum   string `gorm:"column:checksum"`
	PayloadJSON string `gorm:"column:payload_json;type:text"`
	UpdatedAt  time.Time
}

func (RegulatoryBundle) TableName() string { return "regulatory_bundles" }

// Run is one assessment run for a Company against a bundle.
type Run struct {
	ID             uint   `gorm:"primaryKey"`
	TenantID       string `gorm:"column:tenant_id;default:default;index"`
	CompanyID      uint   `gorm:"column:company_id;index"`
	BundleID       string `gorm:"column:bundle_id"`
	BundleVersion  string `gorm:"column:bundle_version"`
	CompilerMode   string `gorm:"column:compiler_mode;default:legacy"`
	Status         string `gorm:"column:status;default:queued"`
	RunHash        string `gorm:"column:run_hash;index"`
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

func (Run) TableName() string { return "runs" }

// RunEvent is an append-only entry in a Run's lifecycle event stream,
// always written in the same transaction as the Run.Status change it
// describes.
type RunEvent struct {
	ID        uint      `gorm:"primaryKey"`
	RunID     uint      `gorm:"column:run_id;index"`
	EventType string    `gorm:"column:event_type"`
	Payload   string    `gorm:"column:payload;type:text"`
	CreatedAt time.Time
}

func (RunEvent) TableName() string { return "run_events" }

// RunMateriality overrides a materiality topic's inclusion for one run.
type RunMateriality struct {
	ID       uint   `gorm:"primaryKey"`
	RunID    uint   `gorm:"column:run_id;index"`
	Topic    string `gorm:"column:topic"`
	Material bool   `gorm:"column:material"`
}

func (RunMateriality) TableName() string { return "run_materiality" }

// DatapointAssessment is one datapoint's extracted-and-verified status for
// a Run.
type DatapointAssessment struct {
	ID                uint   `gorm:"primaryKey"`
	RunID             uint   `gorm:"column:run_id;index"`
	DatapointKey      string `gorm:"column:datapoint_key;index"`
	Status            string `gorm:"column:status"`
	Value             *string `gorm:"column:value"`
	EvidenceChunkIDs  string `gorm:"column:evidence_chunk_ids;type:text"` // canonical JSON array
	Rationale         string `gorm:"column:rationale;type:text"`
	ModelName         string `gorm:"column:model_name"`
	PromptHash        string `gorm:"column:prompt_hash"`
	RetrievalParams   string `gorm:"column:retrieval_params;type:text"`
	VerificationStatus string `gorm:"column:verification_status"`
	FailureReasonCode string `gorm:"column:failure_reason_code"`
	MetricPayload     string `gorm:"column:metric_payload;type:text"`
}

func (DatapointAssessment) TableName() string { return "datapoint_assessments" }

// RunCacheEntry caches a run's full output keyed by (tenant_id, run_hash).
type RunCacheEntry struct {
	ID         uint   `gorm:"primaryKey"`
	TenantID   string `gorm:"column:tenant_id;index:idx_cache_tenant_hash,unique"`
	RunHash    string `gorm:"column:run_hash;index:idx_cache_tenant_hash,unique"`
	OutputJSON string `gorm:"column:output_json;type:text"`
	CreatedAt  time.Time
}

func (RunCacheEntry) TableName() string { return "run_cache_entries" }

// RunInputSnapshot is the pre-extraction canonical payload recorded for a
// Run (required datapoint universe, discovery candidates, retrieval
// smoke-test outcome, etc.).
type RunInputSnapshot struct {
	ID            uint   `gorm:"primaryKey"`
	RunID         uint   `gorm:"column:run_id;uniqueIndex"`
	TenantID      string `gorm:"column:tenant_id"`
	PayloadJSON   string `gorm:"column:payload_json;type:text"`
	CreatedAt     time.Time
}

func (RunInputSnapshot) TableName() string { return "run_input_snapshots" }

// RunManifest is the post-extraction manifest recorded for a Run.
type RunManifest struct {
	ID                         uint   `gorm:"primaryKey"`
	RunID                      uint   `gorm:"column:run_id;index:idx_manifest_run_tenant,unique"`
	TenantID                   string `gorm:"column:tenant_id;index:idx_manifest_run_tenant,unique"`
	DocumentHashesJSON         string `gorm:"column:document_hashes_json;type:text"`
	PromptHash                 string `gorm:"column:prompt_hash"`
	RetrievalParamsJSON        string `gorm:"column:retrieval_params_json;type:text"`
	RegulatoryPlanID           *uint  `gorm:"column:regulatory_plan_id"`
	RegulatoryRegistryVersion  *string `gorm:"column:regulatory_registry_version"`
	RegulatoryCompilerVersion  *string `gorm:"column:regulatory_compiler_version"`
	RegulatoryPlanJSON         *string `gorm:"column:regulatory_plan_json;type:text"`
	RegulatoryPlanHash         *string `gorm:"column:regulatory_plan_hash"`
	ReportTemplateVersion      *string `gorm:"column:report_template_version"`
	GitSHA                     *string `gorm:"column:git_sha"`
	UpdatedAt                  time.Time
}

func (RunManifest) TableName() string { return "run_manifests" }

// CompiledPlan is a registry-mode compiled regulatory plan for a Run.
type CompiledPlan struct {
	ID           uint   `gorm:"primaryKey"`
	RunID        uint   `gorm:"column:run_id;index"`
	BundleID     string `gorm:"column:bundle_id"`
	Version      string `gorm:"column:version"`
	Jurisdiction string `gorm:"column:jurisdiction"`
	Regime       string `gorm:"column:regime"`
	PlanHash     string `gorm:"column:plan_hash"`
}

func (CompiledPlan) TableName() string { return "compiled_plans" }

// CompiledObligation is one obligation surviving compilation for a
// CompiledPlan.
type CompiledObligation struct {
	ID                uint   `gorm:"primaryKey"`
	CompiledPlanID    uint   `gorm:"column:compiled_plan_id;index"`
	ObligationID      string `gorm:"column:obligation_id"`
	Title             string `gorm:"column:title"`
	StandardReference string `gorm:"column:standard_reference"`
	ElementsJSON      string `gorm:"column:elements_json;type:text"`
}

func (CompiledObligation) TableName() string { return "compiled_obligations" }

// ObligationCoverage records, per Run, which CompiledObligations were
// satisfied by the resulting DatapointAssessments.
type ObligationCoverage struct {
	ID           uint   `gorm:"primaryKey"`
	RunID        uint   `gorm:"column:run_id;index"`
	ObligationID string `gorm:"column:obligation_id"`
	Covered      bool   `gorm:"column:covered"`
}

func (ObligationCoverage) TableName() string { return "obligation_coverage" }

// RunRegistryArtifact stores a canonical-JSON artifact produced only when
// Run.CompilerMode == "registry" (e.g. the compiled plan payload, or
// obligation coverage), alongside its checksum. Supplemented from the
// original implementation (see DESIGN.md); the table is migrated, but
// nothing in this module reads or writes it.
type RunRegistryArtifact struct {
	ID          uint   `gorm:"primaryKey"`
	RunID       uint   `gorm:"column:run_id;index"`
	TenantID    string `gorm:"column:tenant_id"`
	ArtifactKey string `gorm:"column:artifact_key"`
	PayloadJSON string `gorm:"column:payload_json;type:text"`
	Checksum    string `gorm:"column:checksum"`
}

func (RunRegistryArtifact) TableName() string { return "run_registry_artifacts" }

// DocumentDiscoveryCandidate is a read-only record of a candidate document
// surfaced by the out-of-scope discovery subsystem. The table is
// migrated, but nothing in this module reads or writes it, and the Run
// Input Snapshot does not include discovery candidates.
type DocumentDiscoveryCandidate struct {
	ID        uint    `gorm:"primaryKey"`
	CompanyID uint    `gorm:"column:company_id;index"`
	TenantID  string  `gorm:"column:tenant_id"`
	SourceURL string  `gorm:"column:source_url"`
	Title     string  `gorm:"column:title"`
	Score     float64 `gorm:"column:score"`
	Accepted  bool    `gorm:"column:accepted"`
	Reason    string  `gorm:"column:reason"`
}

func (DocumentDiscoveryCandidate) TableName() string { return "document_discovery_candidates" }

// All returns every entity type for migration registration
// (db.AutoMigrate(entities.All()...)).
func All() []interface{} {
	return []interface{}{
		&Company{}, &Document{}, &DocumentFile{}, &DocumentPage{},
		&Chunk{}, &Embedding{},
		&RequirementBundle{}, &DatapointDefinition{}, &ApplicabilityRule{},
		&RegulatoryBundle{},
		&Run{}, &RunEvent{}, &RunMateriality{},
		&DatapointAssessment{},
		&RunCacheEntry{}, &RunInputSnapshot{}, &RunManifest{},
		&CompiledPlan{}, &CompiledObligation{}, &ObligationCoverage{},
		&RunRegistryArtifact{}, &DocumentDiscoveryCandidate{},
	}
}
