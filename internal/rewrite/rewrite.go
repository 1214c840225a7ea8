// Package rewrite provides the LLM backends that paraphrase template questions.
package rewrite

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/soaringjerry/Sigmo/internal/questionnaire"
)

const (
	ProviderNone   = "none"
	ProviderOpenAI = "openai"
	ProviderGemini = "gemini"
)

type Options struct {
	Provider string
	APIKey   string
	BaseURL  string
	Model    string
	Timeout  time.Duration
}

// Named is implemented by rewriters that can describe themselves in logs.
type Named interface {
	Name() string
}

// New builds the rewriter for opts.Provider. The none provider returns a nil
// rewriter, which leaves the generator on template text.
func New(ctx context.Context, opts Options) (questionnaire.Rewriter, error) {
	switch strings.ToLower(strings.TrimSpace(opts.Provider)) {
	case "", ProviderNone:
		return nil, nil
	case ProviderOpenAI:
		r, err := NewOpenAIRewriter(opts, nil)
		if err != nil {
			return nil, err
		}
		return r, nil
	case ProviderGemini:
		r, err := NewGeminiRewriter(ctx, opts)
		if err != nil {
			return nil, err
		}
		return r, nil
	default:
		return nil, fmt.Errorf("unknown rewrite provider %q", opts.Provider)
	}
}
