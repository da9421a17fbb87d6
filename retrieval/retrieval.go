// Package retrieval implements the hybrid lexical+vector retrieval policy
// engine (spec §4.6): given a query and a tenant/company scope, it scores
// candidate chunks by a fixed 0.6/0.4 blend of lexical term-overlap and
// vector cosine similarity, orders them deterministically, and truncates
// to top_k.
//
// Chunk.ContentTSV (see entities.Chunk) exists purely as the queryable
// lexical index the original data model names; this package never reads
// it and never issues a Postgres tsvector/tsquery — the lexical score is
// always computed in Go from the already-loaded chunk text, so scoring
// stays exactly reproducible across Postgres versions/configurations.
package retrieval

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"

	"gorm.io/gorm"

	"compliance.evalgo.org/entities"
)

// PolicyVersion is the fixed identifier for this scoring formula, recorded
// in retrieval_params so a run's cache key changes if the formula ever
// does.
const PolicyVersion = "hybrid-v1"

const (
	lexicalWeight = 0.6
	vectorWeight  = 0.4
)

// Params is the retrieval configuration recorded verbatim into a run's
// retrieval_params (and therefore folded into the run hash).
type Params struct {
	PolicyVersion  string `json:"policy_version"`
	TopK           int    `json:"top_k"`
	LexicalWeight  float64 `json:"lexical_weight"`
	VectorWeight   float64 `json:"vector_weight"`
	ModelName      string  `json:"model_name,omitempty"`
	RelaxedCompany bool    `json:"relaxed_company_filter,omitempty"`
}

// DefaultParams returns the fixed hybrid-v1 parameterization for topK and
// the embedding model modelName.
func DefaultParams(topK int, modelName string) Params {
	return Params{
		PolicyVersion: PolicyVersion,
		TopK:          topK,
		LexicalWeight: lexicalWeight,
		VectorWeight:  vectorWeight,
		ModelName:     modelName,
	}
}

// ScoredChunk is one candidate chunk with its component and combined
// scores, rounded to 8 decimal places per spec.md §4.6 so floating point
// jitter cannot reorder results.
type ScoredChunk struct {
	Chunk    entities.Chunk
	Lexical  float64
	Vector   float64
	Combined float64
}

// Diagnostic is emitted by the smoke-test variant (spec.md §4.6) when the
// strict tenant+company filter yields nothing but the relaxed tenant-only
// filter would not.
const DiagnosticFilterTooStrict = "FILTER_TOO_STRICT"

// Engine executes retrieval queries against Postgres via GORM.
type Engine struct {
	db *gorm.DB
}

// New builds an Engine.
func New(db *gorm.DB) *Engine {
	return &Engine{db: db}
}

// Query runs one hybrid retrieval query: candidate chunks are every Chunk
// whose Document belongs to tenantID and, unless relaxCompany is true,
// whose Document.CompanyID equals companyID. Scores are rounded to 8
// decimal places before ordering by (-combined, chunk_id).
func (e *Engine) Query(ctx context.Context, tenantID string, companyID uint, queryText string, queryEmbedding []float64, modelName string, topK int, relaxCompany bool) ([]ScoredChunk, error) {
	var documentIDs []uint
	q := e.db.WithContext(ctx).Model(&entities.Document{}).Where("tenant_id = ?", tenantID)
	if !relaxCompany {
		q = q.Where("company_id = ?", companyID)
	}
	if err := q.Pluck("id", &documentIDs).Error; err != nil {
		return nil, fmt.Errorf("retrieval: load document scope: %w", err)
	}
	if len(documentIDs) == 0 {
		return nil, nil
	}

	var chunks []entities.Chunk
	if err := e.db.WithContext(ctx).Where("document_id IN ?", documentIDs).
		Order("chunk_id").Find(&chunks).Error; err != nil {
		return nil, fmt.Errorf("retrieval: load candidate chunks: %w", err)
	}

	embeddingByChunkID := map[uint][]float64{}
	if modelName != "" && len(chunks) > 0 {
		chunkIDs := make([]uint, len(chunks))
		for i, c := range chunks {
			chunkIDs[i] = c.ID
		}
		var embeddings []entities.Embedding
		if err := e.db.WithContext(ctx).Where("chunk_id IN ? AND model_name = ?", chunkIDs, modelName).
			Find(&embeddings).Error; err != nil {
			return nil, fmt.Errorf("retrieval: load embeddings: %w", err)
		}
		for _, emb := range embeddings {
			embeddingByChunkID[emb.ChunkID] = emb.Vector
		}
	}

	queryTerms := tokenize(queryText)

	scored := make([]ScoredChunk, 0, len(chunks))
	for _, chunk := range chunks {
		lexical := lexicalScore(queryTerms, chunk.Text)
		vector := cosineSimilarity(queryEmbedding, embeddingByChunkID[chunk.ID])
		combined := round8(lexicalWeight*lexical + vectorWeight*vector)
		scored = append(scored, ScoredChunk{
			Chunk:    chunk,
			Lexical:  round8(lexical),
			Vector:   round8(vector),
			Combined: combined,
		})
	}

	sort.Slice(scored, func(i, j int) bool {
		if scored[i].Combined != scored[j].Combined {
			return scored[i].Combined > scored[j].Combined
		}
		return scored[i].Chunk.ChunkID < scored[j].Chunk.ChunkID
	})

	if topK > 0 && len(scored) > topK {
		scored = scored[:topK]
	}
	return scored, nil
}

// SmokeTest runs the strict (tenant+company) query and, if it returns no
// candidates while the relaxed (tenant-only) query would, reports the
// FILTER_TOO_STRICT diagnostic (spec.md §4.6).
func (e *Engine) SmokeTest(ctx context.Context, tenantID string, companyID uint) (diagnostic string, shouldRelax bool, err error) {
	strict, err := e.Query(ctx, tenantID, companyID, "", nil, "", 1, false)
	if err != nil {
		return "", false, err
	}
	if len(strict) > 0 {
		return "", false, nil
	}
	relaxed, err := e.Query(ctx, tenantID, companyID, "", nil, "", 1, true)
	if err != nil {
		return "", false, err
	}
	if len(relaxed) > 0 {
		return DiagnosticFilterTooStrict, true, nil
	}
	return "", false, nil
}

func tokenize(text string) []string {
	return strings.Fields(strings.ToLower(text))
}

// lexicalScore is |{lowered query terms found in lowered chunk text}| /
// |query terms|, counting every occurrence in queryTerms (not deduplicated)
// to match the original implementation's sum(1 for term in query_terms ...).
func lexicalScore(queryTerms []string, chunkText string) float64 {
	if len(queryTerms) == 0 {
		return 0
	}
	lowered := strings.ToLower(chunkText)
	hits := 0
	for _, term := range queryTerms {
		if strings.Contains(lowered, term) {
			hits++
		}
	}
	return float64(hits) / float64(len(queryTerms))
}

// cosineSimilarity returns 0 if either vector is missing/empty or either
// norm is 0, per spec.md §4.6.
func cosineSimilarity(a, b []float64) float64 {
	if len(a) == 0 || len(b) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += a[i] * b[i]
		normA += a[i] * a[i]
		normB += b[i] * b[i]
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

func round8(v float64) float64 {
	const factor = 1e8
	return math.Round(v*factor) / factor
}
