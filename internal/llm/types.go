package llm

import "context"

// Role mirrors the three-role prompt the structured-output request builder
// sends: system and developer messages are required to be byte-identical
// across calls for provider-side prompt caching; user carries per-document
// content.
type Role string

const (
	RoleSystem    Role = "system"
	RoleDeveloper Role = "developer"
	RoleUser      Role = "user"
)

// Message is one role/content pair.
type Message struct {
	Role    Role
	Content string
}

// UploadPurpose tags why a file was uploaded. Providers do not forward it:
// OpenAIProvider always uploads with the "assistants" purpose.
type UploadPurpose string

const PurposeExtraction UploadPurpose = "extraction"

// Usage is the token accounting returned alongside an extraction.
type Usage struct {
	PromptTokens     int
	OutputTokens     int
	CachedTokens     int
}

// ExtractionRequest is Client.ExtractMetadata's call shape.
type ExtractionRequest struct {
	Model     string
	System    string // byte-identical across calls
	Developer string // byte-identical across calls
	User      string // per-document
	FileID    string
	Schema    []byte // JSON Schema bytes, from extraction.JSONSchema()
}

// ExtractionResponse is the parsed structured-output result.
type ExtractionResponse struct {
	Text  string // the structured-output JSON text
	Usage Usage
	Raw   []byte // the full provider response, opaque
}

// Provider is the per-vendor backend the Client wraps with retry and a
// circuit breaker. Implementations: OpenAIProvider (go-openai), Anthropic
// Provider (raw HTTP, no SDK in the dependency graph).
type Provider interface {
	Name() string
	Upload(ctx context.Context, content []byte, filename string, purpose UploadPurpose) (fileID string, err error)
	DeleteFile(ctx context.Context, fileID string) error
	Extract(ctx context.Context, req ExtractionRequest) (*ExtractionResponse, error)
}
