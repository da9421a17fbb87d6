// Package pipeline orchestrates, per datapoint, the retrieve → extract →
// verify chain that produces a Run's DatapointAssessment rows (spec
// §4.10). Grounded on original_source/apps/api/app/services/pipeline.py's
// run_datapoint_pipeline: the query string is the datapoint's title plus
// its disclosure reference, retrieval recall feeds extraction, and
// extraction feeds verification before anything is persisted.
package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"gorm.io/gorm"

	"compliance.evalgo.org/entities"
	"compliance.evalgo.org/lmclient"
	"compliance.evalgo.org/retrieval"
	"compliance.evalgo.org/verify"
)

// Datapoint is the subset of a DatapointDefinition the pipeline needs to
// assess it.
type Datapoint struct {
	Key                 string
	Title               string
	DisclosureReference string
	DatapointType        string // "narrative" | "metric"
	RequiresBaseline     bool
}

// Extractor is satisfied by *lmclient.Client.
type Extractor interface {
	ModelName() string
	Extract(ctx context.Context, datapointKey string, contextChunks []string) (lmclient.ExtractionResult, error)
}

// Retriever is satisfied by *retrieval.Engine.
type Retriever interface {
	Query(ctx context.Context, tenantID string, companyID uint, queryText string, queryEmbedding []float64, modelName string, topK int, relaxCompany bool) ([]retrieval.ScoredChunk, error)
}

// Pipeline wires one Retriever and one Extractor together against a
// Postgres-backed entities store.
type Pipeline struct {
	db        *gorm.DB
	retriever Retriever
	extractor Extractor
	params    retrieval.Params
}

// New builds a Pipeline.
func New(db *gorm.DB, retriever Retriever, extractor Extractor, params retrieval.Params) *Pipeline {
	return &Pipeline{db: db, retriever: retriever, extractor: extractor, params: params}
}

// AssessmentRecord is one fully-verified datapoint outcome, ready to be
// persisted as an entities.DatapointAssessment.
type AssessmentRecord struct {
	DatapointKey        string
	Status              string
	Value               *string
	EvidenceChunkIDs     []string
	Rationale            string
	ModelName            string
	PromptHash           string
	RetrievalParamsJSON  string
	VerificationStatus   string
	FailureReasonCode    string
	MetricPayloadJSON    string
}

// queryText builds the datapoint's retrieval query: its title joined with
// its disclosure reference, exactly as the original implementation does.
func queryText(dp Datapoint) string {
	if dp.DisclosureReference == "" {
		return dp.Title
	}
	return dp.Title + " " + dp.DisclosureReference
}

// AssessDatapoint retrieves evidence for dp, runs extraction against it,
// verifies the result, and returns the fully-formed AssessmentRecord. It
// performs no persistence; callers own the transaction (see runworker).
func (p *Pipeline) AssessDatapoint(ctx context.Context, tenantID string, companyID uint, dp Datapoint, queryEmbedding []float64) (AssessmentRecord, error) {
	scored, err := p.retriever.Query(ctx, tenantID, companyID, queryText(dp), queryEmbedding, p.params.ModelName, p.params.TopK, p.params.RelaxedCompany)
	if err != nil {
		return AssessmentRecord{}, fmt.Errorf("retrieval for datapoint %s: %w", dp.Key, err)
	}

	chunkTextByID := make(map[string]string, len(scored))
	contextChunks := make([]string, 0, len(scored))
	chunkIDOrder := make([]string, 0, len(scored))
	for _, sc := range scored {
		chunkTextByID[sc.Chunk.ChunkID] = sc.Chunk.Text
		contextChunks = append(contextChunks, sc.Chunk.Text)
		chunkIDOrder = append(chunkIDOrder, sc.Chunk.ChunkID)
	}

	extraction, err := p.extractor.Extract(ctx, dp.Key, contextChunks)
	if err != nil {
		return AssessmentRecord{}, fmt.Errorf("extraction for datapoint %s: %w", dp.Key, err)
	}

	prompt := lmclient.BuildPrompt(dp.Key, contextChunks)
	promptHash, err := lmclient.PromptHash(prompt)
	if err != nil {
		return AssessmentRecord{}, fmt.Errorf("prompt_hash for datapoint %s: %w", dp.Key, err)
	}

	// Evidence chunk IDs cited by the extraction must be a subset of the
	// retrieved set for the verifier's CHUNK_NOT_FOUND check to be
	// meaningful; unretrieved citations are intentionally left in
	// evidenceChunkIDs so verify.VerifyAssessment can flag them.
	evidenceChunkIDs := extraction.EvidenceChunkIDs
	if evidenceChunkIDs == nil {
		evidenceChunkIDs = []string{}
	}

	verified := verify.VerifyAssessment(verify.Input{
		Status:           verify.Status(extraction.Status),
		Value:            derefString(extraction.Value),
		EvidenceChunkIDs: evidenceChunkIDs,
		Rationale:        extraction.Rationale,
		ChunkTextByID:    chunkTextByID,
		DatapointType:    dp.DatapointType,
		RequiresBaseline: dp.RequiresBaseline,
	})

	retrievalParams := retrievalParamsPayload(p.params, chunkIDOrder)
	retrievalParamsJSON, err := json.Marshal(retrievalParams)
	if err != nil {
		return AssessmentRecord{}, fmt.Errorf("marshal retrieval_params for datapoint %s: %w", dp.Key, err)
	}

	var metricPayloadJSON string
	if verified.MetricPayload != nil {
		raw, err := json.Marshal(verified.MetricPayload)
		if err != nil {
			return AssessmentRecord{}, fmt.Errorf("marshal metric_payload for datapoint %s: %w", dp.Key, err)
		}
		metricPayloadJSON = string(raw)
	}

	return AssessmentRecord{
		DatapointKey:        dp.Key,
		Status:              string(verified.Status),
		Value:               extraction.Value,
		EvidenceChunkIDs:     evidenceChunkIDs,
		Rationale:            verified.Rationale,
		ModelName:            p.extractor.ModelName(),
		PromptHash:           promptHash,
		RetrievalParamsJSON:  string(retrievalParamsJSON),
		VerificationStatus:   verified.VerificationStatus,
		FailureReasonCode:    verified.FailureReasonCode,
		MetricPayloadJSON:    metricPayloadJSON,
	}, nil
}

// AssessRun runs AssessDatapoint for every datapoint in datapoints, in
// datapoint-key order, and returns the full set of AssessmentRecords. A
// run's assessments must be replaced atomically (deleted then reinserted)
// by the caller for idempotent retries (spec §4.10).
func (p *Pipeline) AssessRun(ctx context.Context, tenantID string, companyID uint, datapoints []Datapoint, embeddingByQuery map[string][]float64) ([]AssessmentRecord, error) {
	ordered := make([]Datapoint, len(datapoints))
	copy(ordered, datapoints)
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].Key < ordered[j].Key })

	records := make([]AssessmentRecord, 0, len(ordered))
	for _, dp := range ordered {
		record, err := p.AssessDatapoint(ctx, tenantID, companyID, dp, embeddingByQuery[queryText(dp)])
		if err != nil {
			return nil, err
		}
		records = append(records, record)
	}
	return records, nil
}

// ReplaceAssessments deletes every existing DatapointAssessment for runID
// and inserts records in their place inside a single transaction, giving
// run retries idempotent (not additive) semantics.
func ReplaceAssessments(db *gorm.DB, runID uint, records []AssessmentRecord) error {
	return db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("run_id = ?", runID).Delete(&entities.DatapointAssessment{}).Error; err != nil {
			return fmt.Errorf("delete existing assessments for run %d: %w", runID, err)
		}
		for _, record := range records {
			evidenceJSON, err := json.Marshal(record.EvidenceChunkIDs)
			if err != nil {
				return fmt.Errorf("marshal evidence_chunk_ids for datapoint %s: %w", record.DatapointKey, err)
			}
			row := entities.DatapointAssessment{
				RunID:               runID,
				DatapointKey:        record.DatapointKey,
				Status:              record.Status,
				Value:               record.Value,
				EvidenceChunkIDs:    string(evidenceJSON),
				Rationale:           record.Rationale,
				ModelName:           record.ModelName,
				PromptHash:          record.PromptHash,
				RetrievalParams:     record.RetrievalParamsJSON,
				VerificationStatus:  record.VerificationStatus,
				FailureReasonCode:   record.FailureReasonCode,
				MetricPayload:       record.MetricPayloadJSON,
			}
			if err := tx.Create(&row).Error; err != nil {
				return fmt.Errorf("insert assessment for datapoint %s: %w", record.DatapointKey, err)
			}
		}
		return nil
	})
}

func derefString(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func retrievalParamsPayload(params retrieval.Params, chunkIDOrder []string) map[string]interface{} {
	return map[string]interface{}{
		"policy_version":          params.PolicyVersion,
		"top_k":                   params.TopK,
		"lexical_weight":          params.LexicalWeight,
		"vector_weight":           params.VectorWeight,
		"model_name":              params.ModelName,
		"relaxed_company_filter":  params.RelaxedCompany,
		"retrieved_chunk_ids":     chunkIDOrder,
	}
}
