package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"gazeta/internal/config"
)

// ExtractRequest asks the model for a JSON object extracted from
// gazette text according to a task prompt.
type ExtractRequest struct {
	System  string
	Prompt  string
	Text    string
	Model   string
	Timeout time.Duration
}

// ExtractResult is the structured output from the LLM.
type ExtractResult struct {
	Fields map[string]any
}

// Client is the abstraction used by the AI-assisted analyzers.
type Client interface {
	ExtractJSON(ctx context.Context, req ExtractRequest) (ExtractResult, error)
}

// NewClientFromConfig constructs a Client for the configured
// OpenAI-compatible endpoint.
func NewClientFromConfig(cfg *config.Config) (Client, error) {
	openaiCfg := cfg.LLM.OpenAI
	if openaiCfg.APIKey == "" || openaiCfg.Model == "" {
		return nil, errors.New("llm provider is not fully configured")
	}
	return &openAIClient{
		apiKey:  openaiCfg.APIKey,
		baseURL: openaiCfg.BaseURL,
		model:   openaiCfg.Model,
		http:    &http.Client{Timeout: 30 * time.Second},
	}, nil
}

// parseJSONFields attempts to parse a JSON object from the given
// content. It first tries the whole string, and if that fails, it
// extracts the first {...} block.
func parseJSONFields(content string) (map[string]any, error) {
	var fields map[string]any
	if err := json.Unmarshal([]byte(content), &fields); err == nil {
		return fields, nil
	}

	start := strings.Index(content, "{")
	end := strings.LastIndex(content, "}")
	if start == -1 || end <= start {
		return nil, errors.New("no JSON object found in content")
	}

	snippet := content[start : end+1]
	if err := json.Unmarshal([]byte(snippet), &fields); err != nil {
		return nil, err
	}

	return fields, nil
}

type openAIClient struct {
	apiKey  string
	baseURL string
	model   string
	http    *http.Client
}

// openAIChatRequest is a minimal representation of the Chat Completions API.
type openAIChatRequest struct {
	Model          string                `json:"model"`
	Messages       []openAIChatMessage   `json:"messages"`
	Temperature    float64               `json:"temperature"`
	ResponseFormat *openAIResponseFormat `json:"response_format,omitempty"`
}

type openAIResponseFormat struct {
	Type string `json:"type"`
}

type openAIChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type openAIChatResponse struct {
	Choices []struct {
		Message openAIChatMessage `json:"message"`
	} `json:"choices"`
}

func (c *openAIClient) ExtractJSON(ctx context.Context, req ExtractRequest) (ExtractResult, error) {
	system := req.System
	if system == "" {
		system = "You are a JSON-only extractor. Respond with a single JSON object and no extra text."
	}

	llmModel := c.model
	if req.Model != "" {
		llmModel = req.Model
	}

	body := openAIChatRequest{
		Model: llmModel,
		Messages: []openAIChatMessage{
			{Role: "system", Content: system},
			{Role: "user", Content: req.Prompt + "\n\n" + req.Text},
		},
		Temperature:    0.0,
		ResponseFormat: &openAIResponseFormat{Type: "json_object"},
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return ExtractResult{}, err
	}

	endpoint := c.baseURL
	if endpoint == "" {
		endpoint = "https://api.openai.com/v1"
	}
	endpoint = endpoint + "/chat/completions"

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return ExtractResult{}, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

	if req.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, req.Timeout)
		defer cancel()
		httpReq = httpReq.WithContext(ctx)
	}

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return ExtractResult{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return ExtractResult{}, fmt.Errorf("chat completion failed with status %d", resp.StatusCode)
	}

	var parsed openAIChatResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return ExtractResult{}, err
	}
	if len(parsed.Choices) == 0 {
		return ExtractResult{}, errors.New("chat completion returned no choices")
	}

	fields, err := parseJSONFields(parsed.Choices[0].Message.Content)
	if err != nil {
		return ExtractResult{}, fmt.Errorf("parse model output: %w", err)
	}

	return ExtractResult{Fields: fields}, nil
}
