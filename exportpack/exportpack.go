// Package exportpack builds a run's byte-identical evidence pack (spec
// §4.13): a ZIP containing assessments.jsonl, evidence.jsonl, one
// documents/<sha256>.bin per cited source document, and a manifest.json
// listing every entry's path and checksum. Every entry uses a fixed
// 1980-01-01 timestamp and ZIP_STORED (no compression), so exporting the
// same run twice produces byte-identical output — archive/zip is used
// directly since it already exposes exact control over both the modified
// time and the storage method the determinism contract requires; no
// ecosystem archive library in the example corpus improves on that for
// this job (see DESIGN.md).
package exportpack

import (
	"archive/zip"
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"time"
)

// fixedModTime is the constant timestamp every ZIP entry is stamped with,
// so two exports of the same run hash to identical bytes regardless of
// when the export ran.
var fixedModTime = time.Date(1980, time.January, 1, 0, 0, 0, 0, time.UTC)

// AssessmentRow is one line of assessments.jsonl.
type AssessmentRow struct {
	DatapointKey       string `json:"datapoint_key"`
	Status             string `json:"status"`
	Value              *string `json:"value,omitempty"`
	VerificationStatus string `json:"verification_status"`
	FailureReasonCode  string `json:"failure_reason_code,omitempty"`
}

// EvidenceRow is one line of evidence.jsonl.
type EvidenceRow struct {
	DatapointKey     string   `json:"datapoint_key"`
	EvidenceChunkIDs []string `json:"evidence_chunk_ids"`
	Rationale        string   `json:"rationale"`
}

// SourceDocument is one document whose content bytes are embedded into
// the pack under documents/<sha256>.bin.
type SourceDocument struct {
	SHA256Hash string
	Content    []byte
}

// ManifestEntry is one row of manifest.json's pack_files list.
type ManifestEntry struct {
	Path   string `json:"path"`
	SHA256 string `json:"sha256"`
}

// Manifest is the top-level manifest.json payload.
type Manifest struct {
	RunID              uint            `json:"run_id"`
	RunHash            string          `json:"run_hash"`
	DocumentHashes     []string        `json:"document_hashes"`
	PromptHash         string          `json:"prompt_hash"`
	RegulatoryPlanHash *string         `json:"regulatory_plan_hash,omitempty"`
	GitSHA             *string         `json:"git_sha,omitempty"`
	PackFiles          []ManifestEntry `json:"pack_files"`
}

// Input is everything Build needs to assemble one run's evidence pack.
type Input struct {
	RunID              uint
	RunHash            string
	PromptHash         string
	RegulatoryPlanHash *string
	GitSHA             *string
	Assessments        []AssessmentRow
	Evidence           []EvidenceRow
	Documents          []SourceDocument
}

// Build assembles in's evidence pack and returns the finished ZIP bytes.
// Entries are written in a fixed order: documents/* first (sorted by
// sha256), then assessments.jsonl, evidence.jsonl, manifest.json last
// (manifest.json must be written last since its pack_files list covers
// every other entry). This order is not ASCII path order
// (assessments.jsonl sorts before documents/), and pack_files lists the
// entries in the same write order, not sorted by path.
func Build(in Input) ([]byte, error) {
	documents := make([]SourceDocument, len(in.Documents))
	copy(documents, in.Documents)
	sort.Slice(documents, func(i, j int) bool { return documents[i].SHA256Hash < documents[j].SHA256Hash })

	var buf bytes.Buffer
	writer := zip.NewWriter(&buf)

	var manifestEntries []ManifestEntry
	var documentHashes []string

	for _, doc := range documents {
		path := "documents/" + doc.SHA256Hash + ".bin"
		if err := writeEntry(writer, path, doc.Content); err != nil {
			return nil, err
		}
		manifestEntries = append(manifestEntries, ManifestEntry{Path: path, SHA256: doc.SHA256Hash})
		documentHashes = append(documentHashes, doc.SHA256Hash)
	}

	assessmentsJSONL, err := toJSONL(in.Assessments)
	if err != nil {
		return nil, fmt.Errorf("encode assessments.jsonl: %w", err)
	}
	if err := writeEntry(writer, "assessments.jsonl", assessmentsJSONL); err != nil {
		return nil, err
	}
	manifestEntries = append(manifestEntries, ManifestEntry{Path: "assessments.jsonl", SHA256: sha256Hex(assessmentsJSONL)})

	evidenceJSONL, err := toJSONL(in.Evidence)
	if err != nil {
		return nil, fmt.Errorf("encode evidence.jsonl: %w", err)
	}
	if err := writeEntry(writer, "evidence.jsonl", evidenceJSONL); err != nil {
		return nil, err
	}
	manifestEntries = append(manifestEntries, ManifestEntry{Path: "evidence.jsonl", SHA256: sha256Hex(evidenceJSONL)})

	sort.Strings(documentHashes)
	manifest := Manifest{
		RunID:              in.RunID,
		RunHash:            in.RunHash,
		DocumentHashes:     documentHashes,
		PromptHash:         in.PromptHash,
		RegulatoryPlanHash: in.RegulatoryPlanHash,
		GitSHA:             in.GitSHA,
		PackFiles:          manifestEntries,
	}
	manifestJSON, err := json.MarshalIndent(manifest, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode manifest.json: %w", err)
	}
	if err := writeEntry(writer, "manifest.json", manifestJSON); err != nil {
		return nil, err
	}

	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("close zip writer: %w", err)
	}
	return buf.Bytes(), nil
}

func writeEntry(writer *zip.Writer, path string, content []byte) error {
	header := &zip.FileHeader{
		Name:     path,
		Method:   zip.Store,
		Modified: fixedModTime,
	}
	entryWriter, err := writer.CreateHeader(header)
	if err != nil {
		return fmt.Errorf("create zip entry %s: %w", path, err)
	}
	if _, err := io.Copy(entryWriter, bytes.NewReader(content)); err != nil {
		return fmt.Errorf("write zip entry %s: %w", path, err)
	}
	return nil
}

func toJSONL[T any](rows []T) ([]byte, error) {
	var buf bytes.Buffer
	for _, row := range rows {
		encoded, err := json.Marshal(row)
		if err != nil {
			return nil, err
		}
		buf.Write(encoded)
		buf.WriteByte('\n')
	}
	return buf.Bytes(), nil
}

func sha256Hex(content []byte) string {
	sum := sha256.Sum256(content)
	return hex.EncodeToString(sum[:])
}
