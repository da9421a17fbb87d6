package verify

import "testing"

func TestVerifyAssessmentPassesThroughNonPresentPartial(t *testing.T) {
	result := VerifyAssessment(Input{Status: StatusAbsent, Rationale: "no data found"})
	if result.Status != StatusAbsent || result.VerificationStatus != "pass" {
		t.Fatalf("expected pass-through for Absent status, got %+v", result)
	}
}

func TestVerifyAssessmentMissingEvidenceDowngradesToAbsent(t *testing.T) {
	result := VerifyAssessment(Input{Status: StatusPresent, Value: "100 tCO2e", Rationale: "found"})
	if result.Status != StatusAbsent {
		t.Fatalf("expected downgrade to Absent, got %v", result.Status)
	}
	if result.FailureReasonCode != ReasonChunkNotFound {
		t.Fatalf("expected CHUNK_NOT_FOUND, got %v", result.FailureReasonCode)
	}
}

func TestVerifyAssessmentCitedChunkNotInRetrievalSet(t *testing.T) {
	result := VerifyAssessment(Input{
		Status:           StatusPresent,
		Value:            "100 tCO2e",
		EvidenceChunkIDs: []string{"c-missing"},
		Rationale:        "found",
		ChunkTextByID:    map[string]string{"c1": "scope 1 emissions were 100 tCO2e in 2023"},
	})
	if result.Status != StatusAbsent || result.FailureReasonCode != ReasonChunkNotFound {
		t.Fatalf("expected CHUNK_NOT_FOUND downgrade to Absent, got %+v", result)
	}
}

func TestVerifyAssessmentEmptyChunkText(t *testing.T) {
	result := VerifyAssessment(Input{
		Status:           StatusPresent,
		Value:            "100 tCO2e",
		EvidenceChunkIDs: []string{"c1"},
		Rationale:        "found",
		ChunkTextByID:    map[string]string{"c1": "   "},
	})
	if result.Status != StatusAbsent || result.FailureReasonCode != ReasonEmptyChunk {
		t.Fatalf("expected EMPTY_CHUNK downgrade to Absent, got %+v", result)
	}
}

func TestVerifyAssessmentNumericMismatchDowngradesOneStep(t *testing.T) {
	result := VerifyAssessment(Input{
		Status:           StatusPresent,
		Value:            "150 tCO2e",
		EvidenceChunkIDs: []string{"c1"},
		Rationale:        "found",
		ChunkTextByID:    map[string]string{"c1": "scope 1 emissions were 100 tCO2e in 2023"},
	})
	if result.Status != StatusPartial {
		t.Fatalf("expected one-step downgrade to Partial, not straight to Absent, got %v", result.Status)
	}
	if result.FailureReasonCode != ReasonNumericMismatch {
		t.Fatalf("expected NUMERIC_MISMATCH, got %v", result.FailureReasonCode)
	}
}

func TestVerifyAssessmentPartialNumericMismatchDowngradesToAbsent(t *testing.T) {
	result := VerifyAssessment(Input{
		Status:           StatusPartial,
		Value:            "150 tCO2e",
		EvidenceChunkIDs: []string{"c1"},
		Rationale:        "found",
		ChunkTextByID:    map[string]string{"c1": "scope 1 emissions were 100 tCO2e in 2023"},
	})
	if result.Status != StatusAbsent {
		t.Fatalf("expected Partial to downgrade to Absent on a second failure, got %v", result.Status)
	}
}

func TestVerifyAssessmentPassesWhenValueMatchesEvidence(t *testing.T) {
	result := VerifyAssessment(Input{
		Status:           StatusPresent,
		Value:            "100 tCO2e in 2023",
		EvidenceChunkIDs: []string{"c1"},
		Rationale:        "found",
		ChunkTextByID:    map[string]string{"c1": "scope 1 emissions were 100 tCO2e in 2023"},
	})
	if result.Status != StatusPresent {
		t.Fatalf("expected Present to survive when value matches evidence, got %v", result.Status)
	}
	if result.VerificationStatus != "pass" {
		t.Fatalf("expected pass, got %v", result.VerificationStatus)
	}
}

func TestVerifyAssessmentYearNotFoundInEvidence(t *testing.T) {
	result := VerifyAssessment(Input{
		Status:           StatusPresent,
		Value:            "100 tCO2e in 2024",
		EvidenceChunkIDs: []string{"c1"},
		Rationale:        "found",
		ChunkTextByID:    map[string]string{"c1": "scope 1 emissions were 100 tCO2e in 2023"},
	})
	if result.Status != StatusPartial || result.FailureReasonCode != ReasonNumericMismatch {
		t.Fatalf("expected year mismatch downgrade to Partial, got %+v", result)
	}
}

func TestVerifyAssessmentCommaDecimalNormalized(t *testing.T) {
	result := VerifyAssessment(Input{
		Status:           StatusPresent,
		Value:            "100,5 tCO2e",
		EvidenceChunkIDs: []string{"c1"},
		Rationale:        "found",
		ChunkTextByID:    map[string]string{"c1": "emissions were 100.5 tCO2e"},
	})
	if result.Status != StatusPresent {
		t.Fatalf("expected comma/dot normalization to let this pass, got %v: %v", result.Status, result.Rationale)
	}
}

func TestVerifyAssessmentMetricRequiresValueUnitYear(t *testing.T) {
	result := VerifyAssessment(Input{
		Status:           StatusPresent,
		Value:            "narrative with no numbers",
		EvidenceChunkIDs: []string{"c1"},
		Rationale:        "found",
		ChunkTextByID:    map[string]string{"c1": "narrative with no numbers"},
		DatapointType:    "metric",
	})
	if result.MetricPayload != nil {
		t.Fatalf("expected no metric payload when value/unit/year are missing, got %+v", result.MetricPayload)
	}
	if result.FailureReasonCode != ReasonNumericMismatch {
		t.Fatalf("expected NUMERIC_MISMATCH for missing metric fields, got %v", result.FailureReasonCode)
	}
}

func TestVerifyAssessmentMetricBuildsPayload(t *testing.T) {
	result := VerifyAssessment(Input{
		Status:           StatusPresent,
		Value:            "100 tCO2e in 2023",
		EvidenceChunkIDs: []string{"c1"},
		Rationale:        "found",
		ChunkTextByID:    map[string]string{"c1": "scope 1 emissions were 100 tCO2e in 2023"},
		DatapointType:    "metric",
	})
	if result.MetricPayload == nil {
		t.Fatal("expected a metric payload")
	}
	if result.MetricPayload.Value != 100 || result.MetricPayload.Unit != "tco2e" || result.MetricPayload.Year != 2023 {
		t.Fatalf("unexpected metric payload: %+v", result.MetricPayload)
	}
}

func TestVerifyAssessmentMetricBaselineMissing(t *testing.T) {
	result := VerifyAssessment(Input{
		Status:           StatusPresent,
		Value:            "20% reduction, 100 tCO2e in 2023",
		EvidenceChunkIDs: []string{"c1"},
		Rationale:        "found",
		ChunkTextByID:    map[string]string{"c1": "20% reduction, 100 tCO2e in 2023"},
		DatapointType:    "metric",
	})
	if result.FailureReasonCode != ReasonBaselineMissing {
		t.Fatalf("expected BASELINE_MISSING when only one year/number pair is present, got %v", result.FailureReasonCode)
	}
}

func TestVerifyAssessmentMetricBaselinePresent(t *testing.T) {
	result := VerifyAssessment(Input{
		Status: StatusPresent,
		Value:  "20% reduction: 100 tCO2e in 2023, baseline 125 tCO2e in 2019",
		EvidenceChunkIDs: []string{"c1"},
		Rationale:        "found",
		ChunkTextByID: map[string]string{
			"c1": "20% reduction: 100 tCO2e in 2023, baseline 125 tCO2e in 2019",
		},
		DatapointType: "metric",
	})
	if result.MetricPayload == nil || result.MetricPayload.BaselineYear == nil {
		t.Fatalf("expected baseline fields populated, got %+v", result.MetricPayload)
	}
}

func TestExtractYearsExcludesLongerDigitRuns(t *testing.T) {
	years := extractYears("reference 12023456 but also 2023 alone")
	if len(years) != 1 || years[0] != "2023" {
		t.Fatalf("expected only the isolated year 2023, got %v", years)
	}
}

func TestExtractUnitsDeduplicatesAndDetectsPercent(t *testing.T) {
	units := extractUnits("100 tCO2e, 50% reduction, more TCO2E again")
	if len(units) != 2 {
		t.Fatalf("expected 2 unique units (tco2e, %%), got %v", units)
	}
}
