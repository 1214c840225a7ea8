package rewrite

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/soaringjerry/Sigmo/internal/questionnaire"
)

// ErrUpstream wraps transport and non-2xx failures from a model provider.
var ErrUpstream = errors.New("rewrite provider error")

type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// OpenAIRewriter talks to any OpenAI-compatible chat completions endpoint.
type OpenAIRewriter struct {
	client  HTTPClient
	apiKey  string
	url     string
	model   string
	timeout time.Duration
}

func NewOpenAIRewriter(opts Options, client HTTPClient) (*OpenAIRewriter, error) {
	if strings.TrimSpace(opts.APIKey) == "" {
		return nil, errors.New("openai rewriter: api key required")
	}
	if client == nil {
		client = http.DefaultClient
	}
	model := opts.Model
	if strings.TrimSpace(model) == "" {
		model = "gpt-4o-mini"
	}
	return &OpenAIRewriter{
		client:  client,
		apiKey:  opts.APIKey,
		url:     normalizeOpenAIEndpoint(opts.BaseURL),
		model:   model,
		timeout: opts.Timeout,
	}, nil
}

func (r *OpenAIRewriter) Rewrite(ctx context.Context, req questionnaire.RewriteRequest) ([]questionnaire.Question, error) {
	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}
	payload := map[string]any{
		"model":       r.model,
		"temperature": 0.5,
		"messages": []map[string]string{
			{"role": "system", "content": systemPrompt()},
			{"role": "user", "content": userPrompt(req)},
		},
		"response_format": map[string]string{"type": "json_object"},
	}
	pb, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, r.url, bytes.NewReader(pb))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+r.apiKey)
	resp, err := r.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUpstream, err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("%w: status %d: %s", ErrUpstream, resp.StatusCode, strings.TrimSpace(string(b)))
	}
	var cc struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&cc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidResponse, err)
	}
	if len(cc.Choices) == 0 {
		return nil, fmt.Errorf("%w: no choices", ErrInvalidResponse)
	}
	return parseQuestions(cc.Choices[0].Message.Content, req.Questions)
}

func (r *OpenAIRewriter) Name() string { return "openai:" + r.model }

func normalizeOpenAIEndpoint(base string) string {
	endpoint := strings.TrimRight(strings.TrimSpace(base), "/")
	if endpoint == "" {
		endpoint = "https://api.openai.com"
	}
	switch {
	case strings.HasSuffix(endpoint, "/chat/completions"):
		return endpoint
	case strings.HasSuffix(endpoint, "/v1"):
		return endpoint + "/chat/completions"
	default:
		return endpoint + "/v1/chat/completions"
	}
}
