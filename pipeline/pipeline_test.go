package pipeline

import (
	"context"
	"testing"

	"compliance.evalgo.org/entities"
	"compliance.evalgo.org/lmclient"
	"compliance.evalgo.org/retrieval"
)

type fakeRetriever struct {
	chunks []retrieval.ScoredChunk
}

func (f *fakeRetriever) Query(ctx context.Context, tenantID string, companyID uint, queryText string, queryEmbedding []float64, modelName string, topK int, relaxCompany bool) ([]retrieval.ScoredChunk, error) {
	return f.chunks, nil
}

type fakeExtractor struct {
	result lmclient.ExtractionResult
}

func (f *fakeExtractor) ModelName() string { return "fake-model" }

func (f *fakeExtractor) Extract(ctx context.Context, datapointKey string, contextChunks []string) (lmclient.ExtractionResult, error) {
	return f.result, nil
}

func TestQueryTextJoinsTitleAndDisclosureReference(t *testing.T) {
	got := queryText(Datapoint{Title: "Scope 1 emissions", DisclosureReference: "ESRS E1-6"})
	if got != "Scope 1 emissions ESRS E1-6" {
		t.Fatalf("unexpected query text: %q", got)
	}
}

func TestQueryTextFallsBackToTitleOnly(t *testing.T) {
	got := queryText(Datapoint{Title: "Scope 1 emissions"})
	if got != "Scope 1 emissions" {
		t.Fatalf("unexpected query text: %q", got)
	}
}

func value(s string) *string { return &s }

func TestAssessDatapointVerifiesAgainstRetrievedEvidence(t *testing.T) {
	chunk := entities.Chunk{ChunkID: "c1", Text: "scope 1 emissions were 100 tCO2e in 2023"}
	retriever := &fakeRetriever{chunks: []retrieval.ScoredChunk{{Chunk: chunk, Combined: 0.9}}}
	extractor := &fakeExtractor{result: lmclient.ExtractionResult{
		Status:           lmclient.StatusPresent,
		Value:            value("100 tCO2e in 2023"),
		EvidenceChunkIDs: []string{"c1"},
		Rationale:        "found in chunk c1",
	}}

	p := New(nil, retriever, extractor, retrieval.DefaultParams(5, "test-embed"))
	record, err := p.AssessDatapoint(context.Background(), "tenant-a", 1, Datapoint{
		Key: "ghg.scope1", Title: "Scope 1 emissions", DisclosureReference: "ESRS E1-6",
	}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if record.Status != "Present" {
		t.Fatalf("expected Present to survive verification, got %v", record.Status)
	}
	if record.PromptHash == "" {
		t.Fatal("expected a non-empty prompt_hash")
	}
	if record.ModelName != "fake-model" {
		t.Fatalf("expected model name propagated, got %v", record.ModelName)
	}
}

func TestAssessDatapointDowngradesOnNumericMismatch(t *testing.T) {
	chunk := entities.Chunk{ChunkID: "c1", Text: "scope 1 emissions were 100 tCO2e in 2023"}
	retriever := &fakeRetriever{chunks: []retrieval.ScoredChunk{{Chunk: chunk, Combined: 0.9}}}
	extractor := &fakeExtractor{result: lmclient.ExtractionResult{
		Status:           lmclient.StatusPresent,
		Value:            value("150 tCO2e in 2023"),
		EvidenceChunkIDs: []string{"c1"},
		Rationale:        "found in chunk c1",
	}}

	p := New(nil, retriever, extractor, retrieval.DefaultParams(5, "test-embed"))
	record, err := p.AssessDatapoint(context.Background(), "tenant-a", 1, Datapoint{
		Key: "ghg.scope1", Title: "Scope 1 emissions",
	}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if record.Status != "Partial" {
		t.Fatalf("expected one-step downgrade to Partial, got %v", record.Status)
	}
	if record.FailureReasonCode != "NUMERIC_MISMATCH" {
		t.Fatalf("unexpected failure reason code: %v", record.FailureReasonCode)
	}
}

func TestAssessRunOrdersByDatapointKey(t *testing.T) {
	retriever := &fakeRetriever{}
	extractor := &fakeExtractor{result: lmclient.ExtractionResult{
		Status:    lmclient.StatusAbsent,
		Rationale: "no evidence retrieved",
	}}
	p := New(nil, retriever, extractor, retrieval.DefaultParams(5, "test-embed"))

	records, err := p.AssessRun(context.Background(), "tenant-a", 1, []Datapoint{
		{Key: "z.last", Title: "Z"},
		{Key: "a.first", Title: "A"},
	}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(records) != 2 || records[0].DatapointKey != "a.first" || records[1].DatapointKey != "z.last" {
		t.Fatalf("expected records ordered by datapoint key, got %+v", records)
	}
}
