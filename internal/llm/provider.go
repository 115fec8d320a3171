package llm

import "fmt"

// NewProvider builds a Provider for providerType ("openai" or "anthropic")
// bound to apiKey and model. The LLM_MODEL allow-list check happens in
// internal/config, not here — by the time a caller reaches NewProvider, the
// model has already been validated against the enumerated allow-list.
func NewProvider(providerType, apiKey, model string) (Provider, error) {
	switch providerType {
	case "openai":
		return NewOpenAIProvider(apiKey, model), nil
	case "anthropic":
		return NewAnthropicProvider(apiKey, model), nil
	default:
		return nil, fmt.Errorf("llm: unsupported provider type %q", providerType)
	}
}
