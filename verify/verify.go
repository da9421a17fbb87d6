// Package verify implements the post-extraction verifier (spec §4.8):
// deterministic cross-checks of an LM extraction's declared value against
// the concatenated text of its cited evidence chunks, with a one-step
// Present → Partial → Absent downgrade on failure.
//
// Number/year/unit extraction is grounded on
// original_source/apps/api/app/services/verification.py. Go's regexp
// (RE2) cannot express Python's `(?<!\d)`/`(?!\d)` year-boundary
// lookaround, so extractYears re-expresses the same constraint as an
// explicit check of the runes immediately surrounding each candidate
// match — a run of more than four digits never yields a year, matching
// the original's behavior.
package verify

import (
	"regexp"
	"sort"
	"strconv"
	"strings"
)

// Status mirrors lmclient.Status's three verifiable values; kept as a
// separate string type so this package has no compile-time dependency on
// lmclient.
type Status string

const (
	StatusPresent Status = "Present"
	StatusPartial Status = "Partial"
	StatusAbsent  Status = "Absent"
)

// Failure reason codes, spec §4.8.
const (
	ReasonChunkNotFound    = "CHUNK_NOT_FOUND"
	ReasonEmptyChunk       = "EMPTY_CHUNK"
	ReasonNumericMismatch  = "NUMERIC_MISMATCH"
	ReasonBaselineMissing  = "BASELINE_MISSING"
)

// MetricPayload is the structured numeric/unit/year triple recorded for
// datapoint_type == "metric" assessments, with an optional baseline pair.
type MetricPayload struct {
	Value          float64  `json:"value"`
	Unit           string   `json:"unit"`
	Year           int      `json:"year"`
	SourceChunkID  string   `json:"source_chunk_id,omitempty"`
	BaselineYear   *int     `json:"baseline_year,omitempty"`
	BaselineValue  *float64 `json:"baseline_value,omitempty"`
}

// Result is the verifier's output: the (possibly downgraded) status, its
// updated rationale, and a pass/failed verification_status with an
// optional failure_reason_code and (for metrics) a MetricPayload.
type Result struct {
	Status             Status
	Rationale          string
	VerificationStatus string
	FailureReasonCode  string
	NumericMatchesFound []string
	MetricPayload      *MetricPayload
}

// Input is everything VerifyAssessment needs about one extraction result
// plus the retrieval context it must be checked against.
type Input struct {
	Status            Status
	Value             string
	EvidenceChunkIDs  []string
	Rationale         string
	ChunkTextByID     map[string]string
	DatapointType     string // "narrative" | "metric"
	RequiresBaseline  bool
}

var (
	numberPattern = regexp.MustCompile(`-?\d+(?:[.,]\d+)?`)
	yearCandidatePattern = regexp.MustCompile(`(?:19|20)\d{2}`)
	unitPattern   = regexp.MustCompile(`(?i)\b(?:tco2e|co2e|kg|tonnes?|tons?|mwh|kwh|gwh|eur|usd)\b`)
)

func extractNumbers(text string) []string {
	matches := numberPattern.FindAllString(text, -1)
	out := make([]string, len(matches))
	for i, m := range matches {
		out[i] = strings.ReplaceAll(m, ",", ".")
	}
	return out
}

// extractYears returns every 4-digit 19xx/20xx run in text that is not
// part of a longer run of digits, i.e. neither immediately preceded nor
// followed by another digit.
func extractYears(text string) []string {
	var years []string
	for _, loc := range yearCandidatePattern.FindAllStringIndex(text, -1) {
		start, end := loc[0], loc[1]
		if start > 0 && isDigitByte(text[start-1]) {
			continue
		}
		if end < len(text) && isDigitByte(text[end]) {
			continue
		}
		years = append(years, text[start:end])
	}
	return years
}

func isDigitByte(b byte) bool { return b >= '0' && b <= '9' }

func extractUnits(text string) []string {
	var units []string
	seen := map[string]bool{}
	if strings.Contains(text, "%") {
		units = append(units, "%")
		seen["%"] = true
	}
	for _, m := range unitPattern.FindAllString(text, -1) {
		token := strings.ToLower(m)
		if !seen[token] {
			seen[token] = true
			units = append(units, token)
		}
	}
	return units
}

// downgrade implements the single-step Present → Partial → Absent
// transition required by spec.md §4.8 (a deliberate divergence from the
// original Python verifier, which jumps straight to Absent on any
// mismatch).
func downgrade(status Status) Status {
	switch status {
	case StatusPresent:
		return StatusPartial
	case StatusPartial:
		return StatusAbsent
	default:
		return status
	}
}

func enforceEvidenceGating(status Status, evidenceChunkIDs []string) Status {
	if (status == StatusPresent || status == StatusPartial) && len(evidenceChunkIDs) == 0 {
		return StatusAbsent
	}
	return status
}

// VerifyAssessment cross-checks in against its cited evidence, returning
// the (possibly downgraded) Result. Statuses outside {Present, Partial}
// pass through untouched, per spec.md §4.8 ("Operates only on
// Present/Partial results").
func VerifyAssessment(in Input) Result {
	if in.Status != StatusPresent && in.Status != StatusPartial {
		return Result{
			Status:             in.Status,
			Rationale:          in.Rationale,
			VerificationStatus: "pass",
		}
	}

	if len(in.EvidenceChunkIDs) == 0 {
		return Result{
			Status:             StatusAbsent,
			Rationale:          in.Rationale + " Evidence gating downgraded: missing evidence_chunk_ids.",
			VerificationStatus: "failed",
			FailureReasonCode:  ReasonChunkNotFound,
		}
	}

	var missing []string
	for _, id := range in.EvidenceChunkIDs {
		if _, ok := in.ChunkTextByID[id]; !ok {
			missing = append(missing, id)
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return Result{
			Status:             StatusAbsent,
			Rationale:          in.Rationale + " Verification downgraded: missing cited chunk(s): " + strings.Join(missing, ",") + ".",
			VerificationStatus: "failed",
			FailureReasonCode:  ReasonChunkNotFound,
		}
	}

	var citedParts []string
	for _, id := range in.EvidenceChunkIDs {
		citedParts = append(citedParts, in.ChunkTextByID[id])
	}
	citedText := strings.Join(citedParts, " ")
	if strings.TrimSpace(citedText) == "" {
		return Result{
			Status:             StatusAbsent,
			Rationale:          in.Rationale + " Verification downgraded: cited chunks empty.",
			VerificationStatus: "failed",
			FailureReasonCode:  ReasonEmptyChunk,
		}
	}

	citedTextLower := strings.ToLower(citedText)
	citedTextNormalized := strings.ReplaceAll(citedText, ",", ".")

	years := extractYears(in.Value)
	yearSet := map[string]bool{}
	for _, y := range years {
		yearSet[y] = true
	}

	var failures []string
	var failureReasonCode string
	var numericMatches []string

	for _, number := range extractNumbers(in.Value) {
		if yearSet[number] {
			continue
		}
		if strings.Contains(citedTextNormalized, number) {
			numericMatches = append(numericMatches, number)
			continue
		}
		failures = append(failures, "numeric value not found in evidence: "+number)
		failureReasonCode = ReasonNumericMismatch
	}

	for _, year := range years {
		if !strings.Contains(citedText, year) {
			failures = append(failures, "year not found in evidence: "+year)
			failureReasonCode = ReasonNumericMismatch
		}
	}

	for _, unit := range extractUnits(in.Value) {
		if !strings.Contains(citedTextLower, unit) {
			failures = append(failures, "unit not found in evidence: "+unit)
			failureReasonCode = ReasonNumericMismatch
		}
	}

	var metricPayload *MetricPayload
	if in.DatapointType == "metric" {
		numbers := extractNumbers(in.Value)
		units := extractUnits(in.Value)
		metricYears := extractYears(in.Value)
		if len(numbers) == 0 || len(units) == 0 || len(metricYears) == 0 {
			failures = append(failures, "metric payload missing value/unit/year")
			if failureReasonCode == "" {
				failureReasonCode = ReasonNumericMismatch
			}
		} else {
			value, _ := strconv.ParseFloat(numbers[0], 64)
			year, _ := strconv.Atoi(metricYears[0])
			var sourceChunkID string
			if len(in.EvidenceChunkIDs) > 0 {
				sourceChunkID = in.EvidenceChunkIDs[0]
			}
			metricPayload = &MetricPayload{
				Value:         value,
				Unit:          units[0],
				Year:          year,
				SourceChunkID: sourceChunkID,
			}
			if strings.Contains(in.Value, "%") || in.RequiresBaseline {
				if len(metricYears) < 2 || len(numbers) < 2 {
					failures = append(failures, "metric baseline missing")
					failureReasonCode = ReasonBaselineMissing
				} else {
					baselineYear, _ := strconv.Atoi(metricYears[1])
					baselineValue, _ := strconv.ParseFloat(numbers[1], 64)
					metricPayload.BaselineYear = &baselineYear
					metricPayload.BaselineValue = &baselineValue
				}
			}
		}
	}

	downgradedStatus := in.Status
	updatedRationale := in.Rationale
	if len(failures) > 0 {
		downgradedStatus = downgrade(in.Status)
		updatedRationale = in.Rationale + " Verification downgraded: " + strings.Join(dedupSorted(failures), "; ") + "."
	}

	enforcedStatus := enforceEvidenceGating(downgradedStatus, in.EvidenceChunkIDs)
	if enforcedStatus != downgradedStatus {
		updatedRationale += " Evidence gating downgraded: missing evidence_chunk_ids."
	}

	verificationStatus := "pass"
	if len(failures) > 0 {
		verificationStatus = "failed"
	}

	return Result{
		Status:              enforcedStatus,
		Rationale:           updatedRationale,
		VerificationStatus:  verificationStatus,
		FailureReasonCode:   failureReasonCode,
		NumericMatchesFound: dedupSorted(numericMatches),
		MetricPayload:       metricPayload,
	}
}

func dedupSorted(items []string) []string {
	seen := map[string]struct{}{}
	var out []string
	for _, item := range items {
		if _, ok := seen[item]; ok {
			continue
		}
		seen[item] = struct{}{}
		out = append(out, item)
	}
	sort.Strings(out)
	return out
}
