// Package chunk implements the deterministic sliding-window chunker: every
// page's text is split into fixed-size, overlapping windows whose IDs are
// stable hashes of their position, so re-chunking identical input always
// reproduces identical chunk IDs.
package chunk

import (
	"fmt"

	"compliance.evalgo.org/canonical"
)

// Default window parameters, matching the reference implementation this
// engine was distilled from.
const (
	DefaultSize    = 800
	DefaultOverlap = 100

	defaultTenantID = "default"
)

// Chunk is one sliding-window slice of a page's text.
type Chunk struct {
	ChunkID     string
	PageNumber  int
	StartOffset int
	EndOffset   int
	Text        string
}

// Chunker splits page text into Chunks under a fixed size/overlap policy.
// The interface shape (a single Split entry point over one page's runes)
// mirrors how this engine's retrieval and verification layers consume
// chunked text uniformly regardless of chunking strategy.
type Chunker interface {
	Split(tenantID, documentHash string, pageNumber int, text string) ([]Chunk, error)
}

// SlidingWindow is the Chunker spec.md mandates: rune-offset windows of
// Size runes with Overlap runes of overlap between consecutive windows.
type SlidingWindow struct {
	Size    int
	Overlap int
}

// NewSlidingWindow returns a SlidingWindow configured with the default
// size/overlap, matching DEFAULT_CHUNK_SIZE/DEFAULT_CHUNK_OVERLAP.
func NewSlidingWindow() SlidingWindow {
	return SlidingWindow{Size: DefaultSize, Overlap: DefaultOverlap}
}

// Split builds the chunk sequence for one page of text.
//
// chunk_id seeding (§4.4): the hash input is
// "<document_hash>:<tenant_id>:<page_number>:<start>:<end>" for every
// tenant EXCEPT the literal "default" tenant, whose chunk IDs omit the
// tenant segment entirely ("<document_hash>:<page_number>:<start>:<end>")
// for backward compatibility with runs ingested before tenant scoping
// existed. This asymmetry is deliberate and must not be "fixed" — moving
// the default tenant onto the tenant-qualified seed would silently
// change every historical chunk_id for pre-multi-tenant data.
func (s SlidingWindow) Split(tenantID, documentHash string, pageNumber int, text string) ([]Chunk, error) {
	if s.Size <= 0 {
		return nil, fmt.Errorf("chunk: size must be positive, got %d", s.Size)
	}
	if s.Overlap < 0 || s.Overlap >= s.Size {
		return nil, fmt.Errorf("chunk: overlap must satisfy 0 <= overlap < size, got %d", s.Overlap)
	}

	runes := []rune(text)
	if len(runes) == 0 {
		id := chunkID(tenantID, documentHash, pageNumber, 0, 0)
		return []Chunk{{ChunkID: id, PageNumber: pageNumber, StartOffset: 0, EndOffset: 0, Text: ""}}, nil
	}

	step := s.Size - s.Overlap
	var out []Chunk
	start := 0
	for {
		end := start + s.Size
		if end > len(runes) {
			end = len(runes)
		}
		out = append(out, Chunk{
			ChunkID:     chunkID(tenantID, documentHash, pageNumber, start, end),
			PageNumber:  pageNumber,
			StartOffset: start,
			EndOffset:   end,
			Text:        string(runes[start:end]),
		})
		if end == len(runes) {
			break
		}
		start += step
	}
	return out, nil
}

func chunkID(tenantID, documentHash string, pageNumber, start, end int) string {
	var seed string
	if tenantID == defaultTenantID {
		seed = fmt.Sprintf("%s:%d:%d:%d", documentHash, pageNumber, start, end)
	} else {
		seed = fmt.Sprintf("%s:%s:%d:%d:%d", documentHash, tenantID, pageNumber, start, end)
	}
	return canonical.SHA256HexString(seed)
}
