// Package ocr is the HTTP client for the OCR provider. The provider
// extracts text from a gazette PDF by URL; documented extraction
// failures come back inside the outcome, never as a Go error.
// Transport problems are real errors and the caller retries the
// message.
package ocr

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"gazeta/internal/config"
	"gazeta/internal/model"
)

// Provider processes one PDF URL into an OcrOutcome.
type Provider interface {
	Process(ctx context.Context, pdfURL string, metadata map[string]string) (model.OcrOutcome, error)
}

// Client talks to a Mistral-OCR-compatible document API.
type Client struct {
	baseURL string
	apiKey  string
	model   string
	http    *http.Client
}

// NewClient builds a Client from config.
func NewClient(cfg config.OCRConfig) *Client {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = "https://api.mistral.ai"
	}
	ocrModel := cfg.Model
	if ocrModel == "" {
		ocrModel = "mistral-ocr-latest"
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  cfg.APIKey,
		model:   ocrModel,
		http:    &http.Client{Timeout: time.Duration(cfg.TimeoutSec) * time.Second},
	}
}

type ocrRequest struct {
	Model    string      `json:"model"`
	Document ocrDocument `json:"document"`
}

type ocrDocument struct {
	Type        string `json:"type"`
	DocumentURL string `json:"document_url"`
}

type ocrResponse struct {
	Pages []struct {
		Index    int    `json:"index"`
		Markdown string `json:"markdown"`
	} `json:"pages"`
	ObjectKey string `json:"object_key,omitempty"`
}

type ocrAPIError struct {
	Message string `json:"message"`
	Type    string `json:"type"`
}

// Process runs OCR on one PDF. HTTP error statuses are mapped to
// failure outcomes with provider error codes; only request transport
// problems return a Go error.
func (c *Client) Process(ctx context.Context, pdfURL string, metadata map[string]string) (model.OcrOutcome, error) {
	started := time.Now()

	payload, err := json.Marshal(ocrRequest{
		Model:    c.model,
		Document: ocrDocument{Type: "document_url", DocumentURL: pdfURL},
	})
	if err != nil {
		return model.OcrOutcome{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/ocr", bytes.NewReader(payload))
	if err != nil {
		return model.OcrOutcome{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return model.OcrOutcome{}, fmt.Errorf("ocr provider request: %w", err)
	}
	defer resp.Body.Close()

	elapsed := time.Since(started).Milliseconds()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var apiErr ocrAPIError
		_ = json.NewDecoder(resp.Body).Decode(&apiErr)
		return model.OcrOutcome{
			Status:           model.OcrJobFailure,
			ProcessingTimeMs: elapsed,
			Error: &model.OcrError{
				Code:    failureCode(resp.StatusCode),
				Message: fmt.Sprintf("ocr provider returned status %d", resp.StatusCode),
				Details: apiErr.Message,
			},
		}, nil
	}

	var parsed ocrResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return model.OcrOutcome{
			Status:           model.OcrJobFailure,
			ProcessingTimeMs: elapsed,
			Error: &model.OcrError{
				Code:    "OCR_BAD_RESPONSE",
				Message: "ocr provider returned unparseable body",
				Details: err.Error(),
			},
		}, nil
	}

	var text strings.Builder
	for i, page := range parsed.Pages {
		if i > 0 {
			text.WriteString("\n\n")
		}
		text.WriteString(page.Markdown)
	}

	extracted := strings.TrimSpace(text.String())
	if extracted == "" {
		return model.OcrOutcome{
			Status:           model.OcrJobFailure,
			PagesProcessed:   len(parsed.Pages),
			ProcessingTimeMs: elapsed,
			PDFObjectKey:     parsed.ObjectKey,
			Error: &model.OcrError{
				Code:    "OCR_EMPTY_TEXT",
				Message: "ocr succeeded but produced no text",
			},
		}, nil
	}

	return model.OcrOutcome{
		Status:           model.OcrJobSuccess,
		ExtractedText:    extracted,
		PagesProcessed:   len(parsed.Pages),
		ProcessingTimeMs: elapsed,
		PDFObjectKey:     parsed.ObjectKey,
	}, nil
}

func failureCode(status int) string {
	switch {
	case status == http.StatusTooManyRequests:
		return "OCR_RATE_LIMITED"
	case status >= 500:
		return "OCR_PROVIDER_ERROR"
	case status == http.StatusUnprocessableEntity:
		return "OCR_UNPROCESSABLE_DOCUMENT"
	default:
		return "OCR_REQUEST_REJECTED"
	}
}
