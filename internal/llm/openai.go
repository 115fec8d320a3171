package llm

import (
	"context"
	"encoding/json"
	"fmt"

	openai "github.com/sashabaranov/go-openai"
)

// OpenAIProvider implements Provider against OpenAI's Files and Chat
// Completions APIs, using structured-output (JSON schema) response
// formatting for Extract.
type OpenAIProvider struct {
	client *openai.Client
	model  string
}

// NewOpenAIProvider builds an OpenAIProvider bound to apiKey and a default
// model (overridable per-request via ExtractionRequest.Model).
func NewOpenAIProvider(apiKey, model string) *OpenAIProvider {
	return &OpenAIProvider{client: openai.NewClient(apiKey), model: model}
}

func (p *OpenAIProvider) Name() string { return "openai" }

func (p *OpenAIProvider) Upload(ctx context.Context, content []byte, filename string, purpose UploadPurpose) (string, error) {
	req := openai.FileBytesRequest{
		Name:    filename,
		Bytes:   content,
		Purpose: openai.PurposeAssistants,
	}
	file, err := p.client.CreateFileBytes(ctx, req)
	if err != nil {
		return "", fmt.Errorf("openai: uploading file: %w", err)
	}
	return file.ID, nil
}

func (p *OpenAIProvider) DeleteFile(ctx context.Context, fileID string) error {
	if err := p.client.DeleteFile(ctx, fileID); err != nil {
		return fmt.Errorf("openai: deleting file %s: %w", fileID, err)
	}
	return nil
}

func (p *OpenAIProvider) Extract(ctx context.Context, req ExtractionRequest) (*ExtractionResponse, error) {
	model := req.Model
	if model == "" {
		model = p.model
	}

	userContent := req.User
	if req.FileID != "" {
		// Chat Completions has no direct file-attachment parameter, so
		// Extract folds the file id into the user message; the file's
		// content is not sent with the request.
		userContent = fmt.Sprintf("[attached file: %s]\n\n%s", req.FileID, req.User)
	}

	apiReq := openai.ChatCompletionRequest{
		Model: model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: req.System},
			{Role: openai.ChatMessageRoleSystem, Content: req.Developer},
			{Role: openai.ChatMessageRoleUser, Content: userContent},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONSchema,
			JSONSchema: &openai.ChatCompletionResponseFormatJSONSchema{
				Name:   "document_extraction",
				Schema: json.RawMessage(req.Schema),
				Strict: true,
			},
		},
	}

	resp, err := p.client.CreateChatCompletion(ctx, apiReq)
	if err != nil {
		return nil, classifyOpenAIErr(err)
	}

	var text string
	if len(resp.Choices) > 0 {
		text = resp.Choices[0].Message.Content
	}

	cached := 0
	if resp.Usage.PromptTokensDetails != nil {
		cached = resp.Usage.PromptTokensDetails.CachedTokens
	}

	raw, _ := json.Marshal(resp)
	return &ExtractionResponse{
		Text: text,
		Usage: Usage{
			PromptTokens: resp.Usage.PromptTokens,
			OutputTokens: resp.Usage.CompletionTokens,
			CachedTokens: cached,
		},
		Raw: raw,
	}, nil
}
