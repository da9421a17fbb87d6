package exportpack

import (
	"archive/zip"
	"bytes"
	"testing"
)

func sampleInput() Input {
	return Input{
		RunID:      1,
		RunHash:    "deadbeef",
		PromptHash: "cafef00d",
		Assessments: []AssessmentRow{
			{DatapointKey: "ghg.scope1", Status: "Present", VerificationStatus: "pass"},
		},
		Evidence: []EvidenceRow{
			{DatapointKey: "ghg.scope1", EvidenceChunkIDs: []string{"c1"}, Rationale: "found"},
		},
		Documents: []SourceDocument{
			{SHA256Hash: "bbb", Content: []byte("doc b")},
			{SHA256Hash: "aaa", Content: []byte("doc a")},
		},
	}
}

func TestBuildIsByteIdenticalAcrossRepeatedCalls(t *testing.T) {
	first, err := Build(sampleInput())
	if err != nil {
		t.Fatal(err)
	}
	second, err := Build(sampleInput())
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(first, second) {
		t.Fatal("expected byte-identical zip output for identical input")
	}
}

func TestBuildWritesDocumentsSortedBySHA256ThenJSONLThenManifestLast(t *testing.T) {
	data, err := Build(sampleInput())
	if err != nil {
		t.Fatal(err)
	}
	reader, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		t.Fatal(err)
	}

	var names []string
	for _, f := range reader.File {
		names = append(names, f.Name)
	}

	expected := []string{"documents/aaa.bin", "documents/bbb.bin", "assessments.jsonl", "evidence.jsonl", "manifest.json"}
	if len(names) != len(expected) {
		t.Fatalf("expected %d entries, got %v", len(expected), names)
	}
	for i, name := range expected {
		if names[i] != name {
			t.Fatalf("expected entry %d to be %s, got %s", i, name, names[i])
		}
	}
}

func TestBuildUsesFixedTimestampAndStoredMethod(t *testing.T) {
	data, err := Build(sampleInput())
	if err != nil {
		t.Fatal(err)
	}
	reader, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		t.Fatal(err)
	}
	for _, f := range reader.File {
		if f.Method != zip.Store {
			t.Fatalf("expected ZIP_STORED for %s, got method %d", f.Name, f.Method)
		}
		if !f.Modified.Equal(fixedModTime) {
			t.Fatalf("expected fixed mod time for %s, got %v", f.Name, f.Modified)
		}
	}
}

func TestBuildManifestListsEveryOtherEntry(t *testing.T) {
	data, err := Build(sampleInput())
	if err != nil {
		t.Fatal(err)
	}
	reader, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		t.Fatal(err)
	}
	for _, f := range reader.File {
		if f.Name != "manifest.json" {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			t.Fatal(err)
		}
		defer rc.Close()
		buf := new(bytes.Buffer)
		if _, err := buf.ReadFrom(rc); err != nil {
			t.Fatal(err)
		}
		if buf.Len() == 0 {
			t.Fatal("expected non-empty manifest.json")
		}
		return
	}
	t.Fatal("manifest.json entry not found")
}
