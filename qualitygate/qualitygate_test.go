package qualitygate

import "testing"

func baseMetrics() Metrics {
	return Metrics{
		DocsDiscovered:                   2,
		DocsIngested:                     2,
		ChunksIndexed:                    10,
		RequiredNarrativeSectionCount:    1,
		ChunkNotFoundCount:               0,
		AssessmentCount:                  10,
		EvidenceHitsTotal:                5,
		MinEvidenceHitsInRequiredSection: 2,
	}
}

func TestEvaluatePipelineFailureTakesPrecedenceOverEvidenceFailure(t *testing.T) {
	metrics := baseMetrics()
	metrics.DocsDiscovered = 0
	metrics.EvidenceHitsTotal = 0 // would also fail the evidence gate

	decision := Evaluate(DefaultConfig(), metrics)
	if decision.FinalStatus != StatusFailedPipeline {
		t.Fatalf("expected pipeline failure to win, got %v", decision.FinalStatus)
	}
	if decision.Passed {
		t.Fatal("expected Passed=false")
	}
	if len(decision.Failures) != 1 || decision.Failures[0] != "docs_discovered_below_min:0<1" {
		t.Fatalf("unexpected failures: %v", decision.Failures)
	}
}

func TestEvaluateEvidenceFailureWhenPipelineClean(t *testing.T) {
	metrics := baseMetrics()
	metrics.EvidenceHitsTotal = 0

	decision := Evaluate(DefaultConfig(), metrics)
	if decision.FinalStatus != StatusDegradedNoEvidence {
		t.Fatalf("expected degraded_no_evidence, got %v", decision.FinalStatus)
	}
	if decision.Passed {
		t.Fatal("expected Passed=false")
	}
}

func TestEvaluateChunkNotFoundRateAboveMax(t *testing.T) {
	metrics := baseMetrics()
	metrics.ChunkNotFoundCount = 5 // 5/10 = 0.5 > default max 0.2

	decision := Evaluate(DefaultConfig(), metrics)
	if decision.FinalStatus != StatusDegradedNoEvidence {
		t.Fatalf("expected degraded_no_evidence from chunk_not_found_rate, got %v", decision.FinalStatus)
	}
}

func TestEvaluateCompletedWhenAllThresholdsMet(t *testing.T) {
	decision := Evaluate(DefaultConfig(), baseMetrics())
	if decision.FinalStatus != StatusCompleted || !decision.Passed {
		t.Fatalf("expected clean completed, got %+v", decision)
	}
	if len(decision.Failures) != 0 || len(decision.Warnings) != 0 {
		t.Fatalf("expected no failures/warnings, got %+v", decision)
	}
}

func TestEvaluateRequiredNarrativeChunkNotFoundWhenConfigured(t *testing.T) {
	config := DefaultConfig()
	config.FailOnRequiredNarrativeChunkNotFound = true
	metrics := baseMetrics()
	metrics.RequiredNarrativeChunkNotFoundCount = 1

	decision := Evaluate(config, metrics)
	if decision.FinalStatus != StatusDegradedNoEvidence {
		t.Fatalf("expected degraded_no_evidence, got %v", decision.FinalStatus)
	}
}

func TestEvaluateRequiredNarrativeChunkNotFoundIgnoredWhenNotConfigured(t *testing.T) {
	config := DefaultConfig()
	config.FailOnRequiredNarrativeChunkNotFound = false
	metrics := baseMetrics()
	metrics.RequiredNarrativeChunkNotFoundCount = 1

	decision := Evaluate(config, metrics)
	if decision.FinalStatus != StatusCompleted {
		t.Fatalf("expected completed since the check is disabled, got %v", decision.FinalStatus)
	}
}

func TestChunkNotFoundRateZeroWhenNoAssessments(t *testing.T) {
	metrics := Metrics{AssessmentCount: 0, ChunkNotFoundCount: 0}
	if rate := chunkNotFoundRate(metrics); rate != 0 {
		t.Fatalf("expected 0 rate with zero assessments, got %v", rate)
	}
}

func TestEvaluateRequiredSectionEvidenceHitsBelowMin(t *testing.T) {
	metrics := baseMetrics()
	metrics.MinEvidenceHitsInRequiredSection = 0

	decision := Evaluate(DefaultConfig(), metrics)
	if decision.FinalStatus != StatusDegradedNoEvidence {
		t.Fatalf("expected degraded_no_evidence, got %v", decision.FinalStatus)
	}
}

func TestEvaluateRequiredSectionCheckSkippedWhenNoRequiredSections(t *testing.T) {
	metrics := baseMetrics()
	metrics.RequiredNarrativeSectionCount = 0
	metrics.MinEvidenceHitsInRequiredSection = 0

	decision := Evaluate(DefaultConfig(), metrics)
	if decision.FinalStatus != StatusCompleted {
		t.Fatalf("expected completed since there are no required sections to check, got %v", decision.FinalStatus)
	}
}

func TestEvaluateMultiplePipelineFailuresSortedAndAllReported(t *testing.T) {
	metrics := baseMetrics()
	metrics.DocsDiscovered = 0
	metrics.ChunksIndexed = 0

	decision := Evaluate(DefaultConfig(), metrics)
	if len(decision.Failures) != 2 {
		t.Fatalf("expected both pipeline failures reported, got %v", decision.Failures)
	}
	if decision.Failures[0] >= decision.Failures[1] {
		t.Fatalf("expected failures sorted, got %v", decision.Failures)
	}
}
