package rewrite

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"google.golang.org/genai"

	"github.com/soaringjerry/Sigmo/internal/questionnaire"
)

// GeminiRewriter uses the Gemini API through the genai SDK.
type GeminiRewriter struct {
	client  *genai.Client
	model   string
	timeout time.Duration
}

func NewGeminiRewriter(ctx context.Context, opts Options) (*GeminiRewriter, error) {
	if strings.TrimSpace(opts.APIKey) == "" {
		return nil, errors.New("gemini rewriter: api key required")
	}
	model := opts.Model
	if strings.TrimSpace(model) == "" {
		model = "gemini-2.0-flash"
	}
	cfg := &genai.ClientConfig{
		APIKey:  opts.APIKey,
		Backend: genai.BackendGeminiAPI,
	}
	if opts.BaseURL != "" {
		cfg.HTTPOptions = genai.HTTPOptions{BaseURL: opts.BaseURL}
	}
	client, err := genai.NewClient(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create GenAI client: %w", err)
	}
	return &GeminiRewriter{client: client, model: model, timeout: opts.Timeout}, nil
}

func (r *GeminiRewriter) Rewrite(ctx context.Context, req questionnaire.RewriteRequest) ([]questionnaire.Question, error) {
	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}
	contents := []*genai.Content{
		genai.NewContentFromText(userPrompt(req), genai.RoleUser),
	}
	result, err := r.client.Models.GenerateContent(ctx, r.model, contents, &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(systemPrompt(), genai.RoleUser),
		Temperature:       genai.Ptr[float32](0.5),
		ResponseMIMEType:  "application/json",
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUpstream, err)
	}
	text := result.Text()
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("%w: empty candidate", ErrInvalidResponse)
	}
	return parseQuestions(text, req.Questions)
}

func (r *GeminiRewriter) Name() string { return "genai:" + r.model }
