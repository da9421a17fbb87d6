// Package faultkind centralizes the kind → retryability → terminal-status
// mapping used across runworker (the run.execution.failed event's
// failure_category/retryable fields) and controlplane (409 response
// bodies), so both share one classification instead of duplicating it.
// Grounded on original_source's _classify_failure.
package faultkind

import (
	"errors"

	"compliance.evalgo.org/lmclient"
)

// Kind is the error taxonomy spec.md §7 names.
type Kind string

const (
	KindValidation            Kind = "validation"
	KindIntegrity             Kind = "integrity"
	KindProviderTransient     Kind = "provider_transient"
	KindProviderRequestInvalid Kind = "provider_request_invalid"
	KindSchemaParseError      Kind = "schema_parse_error"
	KindSchemaValidationError Kind = "schema_validation_error"
	KindQualityGateFailure    Kind = "quality_gate_failure"
	KindUnknown               Kind = "unknown"
)

// Classification is the fully-resolved verdict for one failure: its kind,
// whether retrying the same run is expected to help, and the terminal run
// status it should produce if it is not retried.
type Classification struct {
	Kind         Kind
	Retryable    bool
	FinalStatus  string
}

// terminal run statuses, duplicated here (not imported from runworker) to
// avoid a runworker<->faultkind import cycle; runworker imports this
// package, not the reverse.
const (
	statusFailedPipeline     = "failed_pipeline"
	statusDegradedNoEvidence = "degraded_no_evidence"
)

// Classify inspects err and returns its Classification. Errors from
// lmclient are recognized by type; anything else defaults to
// KindIntegrity (non-retryable, failed_pipeline) since an unrecognized
// error during run execution indicates a bug or environment fault rather
// than a transient condition worth retrying blindly.
func Classify(err error) Classification {
	if err == nil {
		return Classification{Kind: KindUnknown, Retryable: false, FinalStatus: ""}
	}

	var providerErr *lmclient.ErrProviderFailed
	if errors.As(err, &providerErr) {
		return Classification{Kind: KindProviderTransient, Retryable: true, FinalStatus: statusDegradedNoEvidence}
	}

	var parseErr *lmclient.ErrSchemaParse
	if errors.As(err, &parseErr) {
		return Classification{Kind: KindSchemaParseError, Retryable: true, FinalStatus: statusDegradedNoEvidence}
	}

	var validationErr *lmclient.ErrSchemaValidation
	if errors.As(err, &validationErr) {
		return Classification{Kind: KindSchemaValidationError, Retryable: false, FinalStatus: statusDegradedNoEvidence}
	}

	return Classification{Kind: KindIntegrity, Retryable: false, FinalStatus: statusFailedPipeline}
}

// ClassifyProviderRequestInvalid marks a known-bad outbound request (e.g.
// a malformed schema sent to the LM provider) as non-retryable regardless
// of the underlying transport error, since retrying an invalid request
// produces the same failure every time.
func ClassifyProviderRequestInvalid() Classification {
	return Classification{Kind: KindProviderRequestInvalid, Retryable: false, FinalStatus: statusDegradedNoEvidence}
}

// ClassifyQualityGateFailure wraps a qualitygate.Decision's non-pass
// outcome into a Classification; quality-gate failures are never
// retryable by rerunning the same inputs, since the run hash would be
// identical and the cache would simply return the same failing output.
func ClassifyQualityGateFailure(finalStatus string) Classification {
	return Classification{Kind: KindQualityGateFailure, Retryable: false, FinalStatus: finalStatus}
}

// ClassifyValidation marks a request-validation failure (bad input before
// any run work begins) as non-retryable with no terminal run status,
// since the run was never created.
func ClassifyValidation() Classification {
	return Classification{Kind: KindValidation, Retryable: false, FinalStatus: ""}
}
