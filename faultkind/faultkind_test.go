package faultkind

import (
	"errors"
	"testing"

	"compliance.evalgo.org/lmclient"
)

func TestClassifyProviderFailedIsRetryable(t *testing.T) {
	c := Classify(&lmclient.ErrProviderFailed{Detail: "timeout"})
	if c.Kind != KindProviderTransient || !c.Retryable {
		t.Fatalf("expected retryable provider_transient, got %+v", c)
	}
}

func TestClassifySchemaValidationIsNotRetryable(t *testing.T) {
	c := Classify(&lmclient.ErrSchemaValidation{Detail: "missing evidence"})
	if c.Kind != KindSchemaValidationError || c.Retryable {
		t.Fatalf("expected non-retryable schema_validation_error, got %+v", c)
	}
}

func TestClassifyUnknownErrorDefaultsToIntegrityFailedPipeline(t *testing.T) {
	c := Classify(errors.New("boom"))
	if c.Kind != KindIntegrity || c.FinalStatus != statusFailedPipeline {
		t.Fatalf("expected integrity/failed_pipeline default, got %+v", c)
	}
}

func TestClassifyNilErrorIsUnknown(t *testing.T) {
	c := Classify(nil)
	if c.Kind != KindUnknown {
		t.Fatalf("expected unknown for nil error, got %+v", c)
	}
}
