// Package qualitygate evaluates a completed run's metrics against a
// configured threshold set to pick its terminal status (spec §4.11).
// Direct translation of
// original_source/apps/api/app/services/run_quality_gate.py: pipeline
// failures take precedence over evidence failures. Evaluate produces no
// warning codes, so it never returns StatusCompletedWithWarnings.
package qualitygate

import (
	"fmt"
	"sort"
)

// Terminal run statuses (spec.md §4.2 run lifecycle).
const (
	StatusCompleted             = "completed"
	StatusCompletedWithWarnings = "completed_with_warnings"
	StatusDegradedNoEvidence    = "degraded_no_evidence"
	StatusFailedPipeline        = "failed_pipeline"
)

// Config is the quality gate's threshold set, read once at startup from
// environment configuration (spec §6).
type Config struct {
	MinDocsDiscovered                      int
	MinDocsIngested                        int
	MinChunksIndexed                       int
	MaxChunkNotFoundRate                   float64
	MinEvidenceHits                        int
	MinEvidenceHitsPerSection              int
	FailOnRequiredNarrativeChunkNotFound   bool
	PipelineFailureStatus                  string
	EvidenceFailureStatus                  string
}

// DefaultConfig returns conservative defaults matching the original
// implementation's production thresholds.
func DefaultConfig() Config {
	return Config{
		MinDocsDiscovered:                    1,
		MinDocsIngested:                      1,
		MinChunksIndexed:                     1,
		MaxChunkNotFoundRate:                 0.2,
		MinEvidenceHits:                      1,
		MinEvidenceHitsPerSection:            1,
		FailOnRequiredNarrativeChunkNotFound: false,
		PipelineFailureStatus:                StatusFailedPipeline,
		EvidenceFailureStatus:                StatusDegradedNoEvidence,
	}
}

// Metrics is the full set of run-level measurements the gate evaluates.
type Metrics struct {
	DocsDiscovered                      int
	DocsIngested                        int
	ChunksIndexed                       int
	RequiredNarrativeSectionCount       int
	RequiredNarrativeChunkNotFoundCount int
	ChunkNotFoundCount                  int
	AssessmentCount                     int
	EvidenceHitsTotal                   int
	MinEvidenceHitsInRequiredSection    int
}

// Decision is the quality gate's verdict: the run's final terminal
// status, whether it passed, and the sorted failure/warning codes that
// produced the decision.
type Decision struct {
	FinalStatus string
	Passed      bool
	Failures    []string
	Warnings    []string
}

func chunkNotFoundRate(m Metrics) float64 {
	if m.AssessmentCount <= 0 {
		return 0
	}
	return float64(m.ChunkNotFoundCount) / float64(m.AssessmentCount)
}

// Evaluate applies config's thresholds to metrics and returns the
// resulting Decision.
func Evaluate(config Config, metrics Metrics) Decision {
	var pipelineFailures, evidenceFailures []string

	if metrics.DocsDiscovered < config.MinDocsDiscovered {
		pipelineFailures = append(pipelineFailures, fmt.Sprintf("docs_discovered_below_min:%d<%d", metrics.DocsDiscovered, config.MinDocsDiscovered))
	}
	if metrics.DocsIngested < config.MinDocsIngested {
		pipelineFailures = append(pipelineFailures, fmt.Sprintf("docs_ingested_below_min:%d<%d", metrics.DocsIngested, config.MinDocsIngested))
	}
	if metrics.ChunksIndexed < config.MinChunksIndexed {
		pipelineFailures = append(pipelineFailures, fmt.Sprintf("chunks_indexed_below_min:%d<%d", metrics.ChunksIndexed, config.MinChunksIndexed))
	}

	rate := chunkNotFoundRate(metrics)
	if rate > config.MaxChunkNotFoundRate {
		evidenceFailures = append(evidenceFailures, fmt.Sprintf("chunk_not_found_rate_above_max:%.6f>%.6f", rate, config.MaxChunkNotFoundRate))
	}
	if config.FailOnRequiredNarrativeChunkNotFound && metrics.RequiredNarrativeChunkNotFoundCount > 0 {
		evidenceFailures = append(evidenceFailures, fmt.Sprintf("required_narrative_chunk_not_found:%d", metrics.RequiredNarrativeChunkNotFoundCount))
	}
	if metrics.EvidenceHitsTotal < config.MinEvidenceHits {
		evidenceFailures = append(evidenceFailures, fmt.Sprintf("evidence_hits_below_min:%d<%d", metrics.EvidenceHitsTotal, config.MinEvidenceHits))
	}
	if metrics.RequiredNarrativeSectionCount > 0 && metrics.MinEvidenceHitsInRequiredSection < config.MinEvidenceHitsPerSection {
		evidenceFailures = append(evidenceFailures, fmt.Sprintf("required_section_evidence_hits_below_min:%d<%d", metrics.MinEvidenceHitsInRequiredSection, config.MinEvidenceHitsPerSection))
	}

	if len(pipelineFailures) > 0 {
		sort.Strings(pipelineFailures)
		return Decision{
			FinalStatus: config.PipelineFailureStatus,
			Passed:      false,
			Failures:    pipelineFailures,
			Warnings:    []string{},
		}
	}

	if len(evidenceFailures) > 0 {
		sort.Strings(evidenceFailures)
		return Decision{
			FinalStatus: config.EvidenceFailureStatus,
			Passed:      false,
			Failures:    evidenceFailures,
			Warnings:    []string{},
		}
	}

	return Decision{
		FinalStatus: StatusCompleted,
		Passed:      true,
		Failures:    []string{},
		Warnings:    []string{},
	}
}
