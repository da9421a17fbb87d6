package lmclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
)

// EndpointOrder controls whether OpenAICompatibleTransport tries the
// `/responses` leg or the `/chat/completions` leg first.
type EndpointOrder int

const (
	// ResponsesFirst tries `/responses` then falls back to
	// `/chat/completions`, the default per spec.md §4.7.
	ResponsesFirst EndpointOrder = iota
	// ChatCompletionsFirst reverses the order, set via
	// LM_PREFER_CHAT_COMPLETIONS.
	ChatCompletionsFirst
)

// OpenAICompatibleTransport speaks to any OpenAI-compatible provider. The
// `/chat/completions` leg goes through github.com/openai/openai-go/v3,
// already a dependency for exactly this kind of call; the `/responses`
// leg is a thin hand-rolled net/http client (grounded on
// blib-picoclaw/pkg/rag/embedder.go's raw-HTTP provider style) because
// openai-go/v3 does not expose the legacy-shaped `/responses` variant the
// original implementation's transport negotiates.
type OpenAICompatibleTransport struct {
	baseURL string
	apiKey  string
	order   EndpointOrder

	httpClient *http.Client
	sdkClient  openai.Client
}

// NewOpenAICompatibleTransport builds a transport against baseURL (an
// OpenAI-compatible API root, no trailing slash required) using apiKey.
func NewOpenAICompatibleTransport(baseURL, apiKey string, order EndpointOrder) *OpenAICompatibleTransport {
	baseURL = strings.TrimRight(baseURL, "/")
	return &OpenAICompatibleTransport{
		baseURL:    baseURL,
		apiKey:     apiKey,
		order:      order,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		sdkClient: openai.NewClient(
			option.WithAPIKey(apiKey),
			option.WithBaseURL(baseURL),
		),
	}
}

// CreateResponse tries the endpoint named first by t.order, falling back
// to the other on any failure, exactly as the original implementation's
// create_response does — preserving both legs' errors in the final
// failure message.
func (t *OpenAICompatibleTransport) CreateResponse(ctx context.Context, model, inputText string, temperature float64, jsonSchema map[string]interface{}) (map[string]interface{}, error) {
	legs := []struct {
		name string
		call func() (map[string]interface{}, error)
	}{
		{"responses", func() (map[string]interface{}, error) {
			return t.requestResponses(ctx, model, inputText, temperature, jsonSchema)
		}},
		{"chat", func() (map[string]interface{}, error) {
			return t.requestChatCompletions(ctx, model, inputText, temperature, jsonSchema)
		}},
	}
	if t.order == ChatCompletionsFirst {
		legs[0], legs[1] = legs[1], legs[0]
	}

	errs := map[string]string{}
	for _, leg := range legs {
		payload, err := leg.call()
		if err == nil {
			return payload, nil
		}
		errs[leg.name] = err.Error()
	}

	responsesErr, ok := errs["responses"]
	if !ok {
		responsesErr = "not attempted"
	}
	chatErr, ok := errs["chat"]
	if !ok {
		chatErr = "not attempted"
	}
	return nil, fmt.Errorf("LLM request failed: /responses %s; /chat/completions %s", responsesErr, chatErr)
}

type responsesRequest struct {
	Model       string      `json:"model"`
	Input       string      `json:"input"`
	Temperature float64     `json:"temperature"`
	Text        responsesTextFormat `json:"text"`
}

type responsesTextFormat struct {
	Format responsesJSONSchemaFormat `json:"format"`
}

type responsesJSONSchemaFormat struct {
	Type   string                 `json:"type"`
	Name   string                 `json:"name"`
	Schema map[string]interface{} `json:"schema"`
}

func (t *OpenAICompatibleTransport) requestResponses(ctx context.Context, model, inputText string, temperature float64, jsonSchema map[string]interface{}) (map[string]interface{}, error) {
	body, err := json.Marshal(responsesRequest{
		Model:       model,
		Input:       inputText,
		Temperature: temperature,
		Text: responsesTextFormat{Format: responsesJSONSchemaFormat{
			Type:   "json_schema",
			Name:   "extraction_result",
			Schema: jsonSchema,
		}},
	})
	if err != nil {
		return nil, fmt.Errorf("marshal /responses request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.baseURL+"/responses", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build /responses request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+t.apiKey)

	resp, err := t.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("/responses request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read /responses body: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("/responses returned status %d: %s", resp.StatusCode, string(respBody))
	}

	var payload map[string]interface{}
	if err := json.Unmarshal(respBody, &payload); err != nil {
		return nil, fmt.Errorf("decode /responses body: %w", err)
	}
	return payload, nil
}

// requestChatCompletions drives the /chat/completions leg through the
// openai-go/v3 SDK client, then re-shapes its response into the same
// generic map[string]interface{} envelope as requestResponses so
// ExtractJSONText never needs to know which leg answered.
func (t *OpenAICompatibleTransport) requestChatCompletions(ctx context.Context, model, inputText string, temperature float64, jsonSchema map[string]interface{}) (map[string]interface{}, error) {
	completion, err := t.sdkClient.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: model,
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.UserMessage(inputText),
		},
		Temperature: openai.Float(temperature),
	})
	if err != nil {
		return nil, fmt.Errorf("/chat/completions request: %w", err)
	}
	if len(completion.Choices) == 0 {
		return nil, fmt.Errorf("/chat/completions returned no choices")
	}

	return map[string]interface{}{
		"choices": []interface{}{
			map[string]interface{}{
				"message": map[string]interface{}{
					"content": completion.Choices[0].Message.Content,
				},
			},
		},
	}, nil
}

// DeterministicFallbackTransport is a zero-network Transport that always
// returns a fixed Absent payload, adapted from the original
// implementation's _DeterministicAbsentTransport. Only this package's
// tests construct it: the golden test uses its own fixed transport, and
// cmd/complyengine always builds an OpenAICompatibleTransport.
type DeterministicFallbackTransport struct {
	Rationale string
}

// CreateResponse ignores its arguments and returns a fixed Absent result.
func (d *DeterministicFallbackTransport) CreateResponse(ctx context.Context, model, inputText string, temperature float64, jsonSchema map[string]interface{}) (map[string]interface{}, error) {
	rationale := d.Rationale
	if rationale == "" {
		rationale = "deterministic_fallback: no LM provider configured"
	}
	return map[string]interface{}{
		"output_text": fmt.Sprintf(`{"status":"Absent","evidence_chunk_ids":[],"rationale":%q}`, rationale),
	}, nil
}
