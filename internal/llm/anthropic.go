package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"

	"github.com/walksalot/docpipe/internal/errkind"
)

const (
	anthropicMessagesURL = "https://api.anthropic.com/v1/messages"
	anthropicFilesURL    = "https://api.anthropic.com/v1/files"
)

// AnthropicProvider implements Provider via direct HTTP against the
// Anthropic Messages and Files APIs — there is no Anthropic Go SDK in the
// dependency graph, so requests are built with net/http and encoding/json.
type AnthropicProvider struct {
	apiKey string
	model  string
	client *http.Client
}

func NewAnthropicProvider(apiKey, model string) *AnthropicProvider {
	return &AnthropicProvider{apiKey: apiKey, model: model, client: &http.Client{}}
}

func (p *AnthropicProvider) Name() string { return "anthropic" }

func (p *AnthropicProvider) Upload(ctx context.Context, content []byte, filename string, purpose UploadPurpose) (string, error) {
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	part, err := writer.CreateFormFile("file", filename)
	if err != nil {
		return "", fmt.Errorf("anthropic: building upload form: %w", err)
	}
	if _, err := part.Write(content); err != nil {
		return "", fmt.Errorf("anthropic: writing upload body: %w", err)
	}
	if err := writer.Close(); err != nil {
		return "", fmt.Errorf("anthropic: closing upload form: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, anthropicFilesURL, &body)
	if err != nil {
		return "", fmt.Errorf("anthropic: building upload request: %w", err)
	}
	p.setHeaders(req, writer.FormDataContentType())

	resp, err := p.client.Do(req)
	if err != nil {
		return "", errkind.Wrap(errkind.Transient, err, "anthropic upload request failed")
	}
	defer resp.Body.Close()

	var result struct {
		ID    string          `json:"id"`
		Error *anthropicError `json:"error,omitempty"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("anthropic: decoding upload response: %w", err)
	}
	if result.Error != nil {
		return "", classifyAnthropicStatus(resp.StatusCode, fmt.Errorf("anthropic upload error: %s", result.Error.Message))
	}
	return result.ID, nil
}

func (p *AnthropicProvider) DeleteFile(ctx context.Context, fileID string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, anthropicFilesURL+"/"+fileID, nil)
	if err != nil {
		return fmt.Errorf("anthropic: building delete request: %w", err)
	}
	p.setHeaders(req, "")

	resp, err := p.client.Do(req)
	if err != nil {
		return errkind.Wrap(errkind.Transient, err, "anthropic delete request failed")
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return classifyAnthropicStatus(resp.StatusCode, fmt.Errorf("anthropic delete returned %d", resp.StatusCode))
	}
	return nil
}

type anthropicRequest struct {
	Model     string             `json:"model"`
	MaxTokens int                `json:"max_tokens"`
	System    string             `json:"system,omitempty"`
	Messages  []anthropicMessage `json:"messages"`
}

type anthropicMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type anthropicResponse struct {
	Content    []anthropicContent `json:"content"`
	Model      string             `json:"model"`
	StopReason string             `json:"stop_reason"`
	Usage      anthropicUsage     `json:"usage"`
	Error      *anthropicError    `json:"error,omitempty"`
}

type anthropicContent struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type anthropicUsage struct {
	InputTokens              int `json:"input_tokens"`
	OutputTokens             int `json:"output_tokens"`
	CacheReadInputTokens     int `json:"cache_read_input_tokens"`
}

type anthropicError struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

func (p *AnthropicProvider) Extract(ctx context.Context, req ExtractionRequest) (*ExtractionResponse, error) {
	model := req.Model
	if model == "" {
		model = p.model
	}

	// Anthropic has no dedicated system+developer split; fold developer
	// (which carries the pinned JSON schema, per the structured-output
	// contract) into the system prompt, keeping both byte-identical across
	// calls as the prompt-caching requirement demands.
	system := req.System
	if req.Developer != "" {
		system += "\n\n" + req.Developer
	}

	userContent := req.User
	if req.FileID != "" {
		userContent = fmt.Sprintf("[attached file: %s]\n\n%s", req.FileID, req.User)
	}

	apiReq := anthropicRequest{
		Model:     model,
		MaxTokens: 4096,
		System:    system,
		Messages:  []anthropicMessage{{Role: "user", Content: userContent}},
	}

	body, err := json.Marshal(apiReq)
	if err != nil {
		return nil, fmt.Errorf("anthropic: marshaling request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, anthropicMessagesURL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("anthropic: building request: %w", err)
	}
	p.setHeaders(httpReq, "application/json")

	httpResp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, errkind.Wrap(errkind.Transient, err, "anthropic request failed")
	}
	defer httpResp.Body.Close()

	respBody, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, fmt.Errorf("anthropic: reading response: %w", err)
	}

	var apiResp anthropicResponse
	if err := json.Unmarshal(respBody, &apiResp); err != nil {
		return nil, fmt.Errorf("anthropic: unmarshaling response: %w", err)
	}
	if apiResp.Error != nil {
		return nil, classifyAnthropicStatus(httpResp.StatusCode, fmt.Errorf("anthropic error (%s): %s", apiResp.Error.Type, apiResp.Error.Message))
	}
	if httpResp.StatusCode >= 400 {
		return nil, classifyAnthropicStatus(httpResp.StatusCode, fmt.Errorf("anthropic returned status %d", httpResp.StatusCode))
	}

	var text string
	for _, block := range apiResp.Content {
		if block.Type == "text" {
			text += block.Text
		}
	}

	return &ExtractionResponse{
		Text: text,
		Usage: Usage{
			PromptTokens: apiResp.Usage.InputTokens,
			OutputTokens: apiResp.Usage.OutputTokens,
			CachedTokens: apiResp.Usage.CacheReadInputTokens,
		},
		Raw: respBody,
	}, nil
}

func (p *AnthropicProvider) setHeaders(req *http.Request, contentType string) {
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	req.Header.Set("x-api-key", p.apiKey)
	req.Header.Set("anthropic-version", "2023-06-01")
}

func classifyAnthropicStatus(status int, err error) error {
	switch {
	case status == 429:
		return errkind.Wrap(errkind.Transient, err, "rate limited")
	case status >= 500:
		return errkind.Wrap(errkind.Transient, err, "server error")
	case status >= 400:
		return errkind.Wrap(errkind.Permanent, err, "client error")
	default:
		return errkind.Wrap(errkind.Internal, err, "unexpected anthropic status")
	}
}
