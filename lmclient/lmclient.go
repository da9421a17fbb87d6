// Package lmclient implements the schema-enforced LM extraction client
// (spec §4.7): pure, hashed prompt construction; a transport that tries
// an OpenAI-compatible `/responses` endpoint then falls back to
// `/chat/completions` (or the reverse when configured); robust recovery
// of the first JSON object in a free-form text payload; and evidence
// gating on the resulting ExtractionResult.
package lmclient

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"compliance.evalgo.org/canonical"
)

// Status is the extraction outcome for one datapoint.
type Status string

const (
	StatusPresent Status = "Present"
	StatusPartial Status = "Partial"
	StatusAbsent  Status = "Absent"
	StatusNA      Status = "NA"
)

// ExtractionResult is the fixed schema every transport response must
// validate against (spec §4.7).
type ExtractionResult struct {
	Status           Status   `json:"status"`
	Value            *string  `json:"value,omitempty"`
	EvidenceChunkIDs []string `json:"evidence_chunk_ids"`
	Rationale        string   `json:"rationale"`
}

// ErrProviderFailed wraps a transport-level failure (network, non-2xx).
type ErrProviderFailed struct{ Detail string }

func (e *ErrProviderFailed) Error() string { return "llm_provider_error: " + e.Detail }

// ErrSchemaParse wraps a failure to recover a JSON object from the
// provider's raw text payload.
type ErrSchemaParse struct{ Detail string }

func (e *ErrSchemaParse) Error() string { return "llm_schema_parse_error: " + e.Detail }

// ErrSchemaValidation wraps a failure to validate the recovered JSON
// object against ExtractionResult's schema (including evidence gating).
type ErrSchemaValidation struct{ Detail string }

func (e *ErrSchemaValidation) Error() string { return "llm_schema_validation_error: " + e.Detail }

// validate applies the schema's evidence-gating invariant: Present/Partial
// statuses must carry at least one evidence chunk ID.
func (r ExtractionResult) validate() error {
	switch r.Status {
	case StatusPresent, StatusPartial, StatusAbsent, StatusNA:
	default:
		return fmt.Errorf("unknown status %q", r.Status)
	}
	if r.Rationale == "" {
		return fmt.Errorf("rationale must not be empty")
	}
	if (r.Status == StatusPresent || r.Status == StatusPartial) && len(r.EvidenceChunkIDs) == 0 {
		return fmt.Errorf("status %s requires evidence_chunk_ids", r.Status)
	}
	return nil
}

// Transport is the OpenAI-compatible contract a provider backend
// implements: given a prompt and the fixed JSON schema, return the raw
// decoded response payload (shape varies by endpoint; ExtractJSONText
// normalizes it).
type Transport interface {
	CreateResponse(ctx context.Context, model, inputText string, temperature float64, jsonSchema map[string]interface{}) (map[string]interface{}, error)
}

// Client is the deterministic, schema-enforced extraction client.
type Client struct {
	transport Transport
	model     string
}

// New builds a Client bound to transport and model.
func New(transport Transport, model string) *Client {
	return &Client{transport: transport, model: model}
}

// ModelName returns the model identifier this client was built with, for
// recording in DatapointAssessment.ModelName.
func (c *Client) ModelName() string { return c.model }

// BuildPrompt constructs the extraction prompt deterministically: the
// same datapointKey and contextChunks always produce byte-identical
// output, so prompt_hash is stable across runs and replays.
func BuildPrompt(datapointKey string, contextChunks []string) string {
	chunksText := strings.Join(contextChunks, "\n\n")
	return fmt.Sprintf("Assess datapoint %s. Return JSON only matching schema.\nContext chunks:\n%s", datapointKey, chunksText)
}

// PromptHash hashes a prompt for recording in DatapointAssessment.PromptHash
// and folding into the run hash.
func PromptHash(prompt string) (string, error) {
	return canonical.SHA256HexString(prompt)
}

// Extract runs one extraction for datapointKey against contextChunks,
// using a pinned temperature of 0.0 so output depends only on the prompt.
func (c *Client) Extract(ctx context.Context, datapointKey string, contextChunks []string) (ExtractionResult, error) {
	prompt := BuildPrompt(datapointKey, contextChunks)

	payload, err := c.transport.CreateResponse(ctx, c.model, prompt, 0.0, extractionJSONSchema)
	if err != nil {
		return ExtractionResult{}, &ErrProviderFailed{Detail: err.Error()}
	}

	parsed, err := ExtractJSONText(payload)
	if err != nil {
		return ExtractionResult{}, &ErrSchemaParse{Detail: err.Error()}
	}

	var result ExtractionResult
	data, err := json.Marshal(parsed)
	if err != nil {
		return ExtractionResult{}, &ErrSchemaValidation{Detail: err.Error()}
	}
	if err := json.Unmarshal(data, &result); err != nil {
		return ExtractionResult{}, &ErrSchemaValidation{Detail: err.Error()}
	}
	if result.EvidenceChunkIDs == nil {
		result.EvidenceChunkIDs = []string{}
	}
	if err := result.validate(); err != nil {
		return ExtractionResult{}, &ErrSchemaValidation{Detail: err.Error()}
	}
	return result, nil
}

// extractionJSONSchema is sent to the provider as the `/responses`
// text.format.schema; the /chat/completions leg sends no schema.
var extractionJSONSchema = map[string]interface{}{
	"type": "object",
	"properties": map[string]interface{}{
		"status":             map[string]interface{}{"type": "string", "enum": []string{"Present", "Partial", "Absent", "NA"}},
		"value":              map[string]interface{}{"type": []string{"string", "null"}},
		"evidence_chunk_ids": map[string]interface{}{"type": "array", "items": map[string]interface{}{"type": "string"}},
		"rationale":          map[string]interface{}{"type": "string"},
	},
	"required": []string{"status", "rationale"},
}

var fencedJSONPattern = regexp.MustCompile(`(?s)` + "```" + `(?:json)?\s*(\{.*\})\s*` + "```")

// jsonFromText recovers the first JSON object embedded in text, trying
// (in order): a raw parse, a fenced ```json block, and the outermost
// {...} window — exactly the three strategies of the original
// implementation's _json_from_text.
func jsonFromText(text string) (map[string]interface{}, error) {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return nil, fmt.Errorf("empty text payload")
	}

	var direct map[string]interface{}
	if err := json.Unmarshal([]byte(trimmed), &direct); err == nil {
		return direct, nil
	}

	if m := fencedJSONPattern.FindStringSubmatch(trimmed); m != nil {
		var fenced map[string]interface{}
		if err := json.Unmarshal([]byte(m[1]), &fenced); err == nil {
			return fenced, nil
		}
	}

	first := strings.Index(trimmed, "{")
	last := strings.LastIndex(trimmed, "}")
	if first != -1 && last != -1 && first < last {
		var windowed map[string]interface{}
		if err := json.Unmarshal([]byte(trimmed[first:last+1]), &windowed); err == nil {
			return windowed, nil
		}
	}

	return nil, fmt.Errorf("text payload does not contain a JSON object")
}

// coerceContentText normalizes the several shapes an OpenAI-compatible
// response's "content"/"text" field can take (plain string, list of
// typed parts, or a single typed part) into plain text.
func coerceContentText(value interface{}) string {
	switch v := value.(type) {
	case string:
		return v
	case []interface{}:
		var parts []string
		for _, item := range v {
			m, ok := item.(map[string]interface{})
			if !ok {
				continue
			}
			parts = append(parts, coerceContentText(m["text"]))
			if s, ok := m["content"].(string); ok {
				parts = append(parts, s)
			}
		}
		return strings.Join(parts, "")
	case map[string]interface{}:
		if s, ok := v["value"].(string); ok {
			return s
		}
		if t, ok := v["text"]; ok {
			if s, ok := t.(string); ok {
				return s
			}
			return coerceContentText(t)
		}
		if s, ok := v["content"].(string); ok {
			return s
		}
	}
	return ""
}

// ExtractJSONText normalizes the several response-payload shapes a
// provider may return (plain output_text, `/responses` output items,
// native `/chat/completions` choices) down to the recovered JSON object.
func ExtractJSONText(payload map[string]interface{}) (map[string]interface{}, error) {
	if text, ok := payload["output_text"].(string); ok {
		return jsonFromText(text)
	}

	if output, ok := payload["output"].([]interface{}); ok {
		for _, raw := range output {
			item, ok := raw.(map[string]interface{})
			if !ok {
				continue
			}
			if item["type"] == "output_text" {
				text := coerceContentText(item["text"])
				if strings.TrimSpace(text) != "" {
					return jsonFromText(text)
				}
			}
			if item["type"] != "message" {
				continue
			}
			content, _ := item["content"].([]interface{})
			for _, rawContent := range content {
				contentItem, ok := rawContent.(map[string]interface{})
				if !ok {
					continue
				}
				text := coerceContentText(contentItem)
				contentType, _ := contentItem["type"].(string)
				if (contentType == "output_text" || contentType == "text") && strings.TrimSpace(text) != "" {
					return jsonFromText(text)
				}
			}
		}
	}

	if choices, ok := payload["choices"].([]interface{}); ok && len(choices) > 0 {
		choice, _ := choices[0].(map[string]interface{})
		message, _ := choice["message"].(map[string]interface{})
		if parsed, ok := message["parsed"].(map[string]interface{}); ok {
			return parsed, nil
		}
		content := coerceContentText(message["content"])
		if strings.TrimSpace(content) != "" {
			return jsonFromText(content)
		}
	}

	return nil, fmt.Errorf("no JSON extraction payload found in provider response")
}
