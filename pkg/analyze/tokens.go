package analyze

import (
	"fmt"

	"github.com/tiktoken-go/tokenizer"

	"github.com/auditkit/site-auditor/pkg/utils"
)

// TokenCounter counts LLM tokens in product copy. A Codec is safe for
// concurrent use, so one counter serves every analysis worker.
type TokenCounter struct {
	codec tokenizer.Codec
}

// NewTokenCounter loads the named encoding. Common encodings: "cl100k_base"
// (default), "o200k_base", "p50k_base", "r50k_base".
func NewTokenCounter(encoding string) (*TokenCounter, error) {
	var enc tokenizer.Encoding
	switch encoding {
	case "", "cl100k_base":
		enc = tokenizer.Cl100kBase
	case "o200k_base":
		enc = tokenizer.O200kBase
	case "p50k_base":
		enc = tokenizer.P50kBase
	case "p50k_edit":
		enc = tokenizer.P50kEdit
	case "r50k_base":
		enc = tokenizer.R50kBase
	default:
		return nil, fmt.Errorf("%w: unknown tokenizer encoding %q", utils.ErrConfigValidation, encoding)
	}
	codec, err := tokenizer.Get(enc)
	if err != nil {
		return nil, fmt.Errorf("%w: loading tokenizer %s: %w", utils.ErrConfigValidation, encoding, err)
	}
	return &TokenCounter{codec: codec}, nil
}

// Count returns the token count of text, or -1 when the counter is nil or
// encoding fails, so callers can tell "unavailable" from zero.
func (t *TokenCounter) Count(text string) int {
	if t == nil || t.codec == nil {
		return -1
	}
	ids, _, err := t.codec.Encode(text)
	if err != nil {
		return -1
	}
	return len(ids)
}
