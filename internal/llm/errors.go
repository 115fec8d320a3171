package llm

import (
	"errors"

	openai "github.com/sashabaranov/go-openai"

	"github.com/walksalot/docpipe/internal/errkind"
)

// classifyOpenAIErr tags a go-openai error with a taxonomy kind based on
// its HTTP status, falling back to message-substring classification for
// transport-level errors with no status code.
func classifyOpenAIErr(err error) error {
	if err == nil {
		return nil
	}
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.HTTPStatusCode == 429:
			return errkind.Wrap(errkind.Transient, err, "rate limited")
		case apiErr.HTTPStatusCode >= 500:
			return errkind.Wrap(errkind.Transient, err, "server error")
		case apiErr.HTTPStatusCode >= 400:
			return errkind.Wrap(errkind.Permanent, err, "client error")
		}
	}
	if kind := errkind.ClassifyMessage(err.Error()); kind != "" {
		return errkind.Wrap(kind, err, "openai call failed")
	}
	return errkind.Wrap(errkind.Internal, err, "openai call failed")
}
