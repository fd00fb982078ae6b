package llm

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/arnavshah/referee-assigner-go/pkg/config"
)

// OpenAIClient ranks candidates through an OpenAI-compatible chat completions API.
// Retries are left to the caller so a single call maps to a single request
type OpenAIClient struct {
	client openai.Client
	cfg    config.LLM
}

// NewOpenAIClient returns a client for the configured provider, or ErrLLMNotConfigured
func NewOpenAIClient(cfg config.LLM) (*OpenAIClient, error) {
	if !cfg.Configured() {
		return nil, config.ErrLLMNotConfigured
	}
	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithMaxRetries(0),
		option.WithRequestTimeout(cfg.Timeout.Std()),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	return &OpenAIClient{client: openai.NewClient(opts...), cfg: cfg}, nil
}

// Rank sends one ranking request and parses the answer
func (c *OpenAIClient) Rank(ctx context.Context, req RankRequest) (RankResponse, error) {
	prompt, err := BuildPrompt(req)
	if err != nil {
		return RankResponse{}, err
	}
	model := req.Model
	if model == "" {
		model = c.cfg.Model
	}
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = c.cfg.MaxTokens
	}

	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout.Std())
	defer cancel()

	completion, err := c.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: openai.ChatModel(model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(systemPrompt),
			openai.UserMessage(prompt),
		},
		Temperature:         openai.Float(req.Temperature),
		MaxCompletionTokens: openai.Int(int64(maxTokens)),
	})
	if err != nil {
		return RankResponse{}, classify(err)
	}
	if len(completion.Choices) == 0 {
		return RankResponse{}, fmt.Errorf("%w: empty choices", ErrMalformed)
	}

	resp, err := ParseRanking(completion.Choices[0].Message.Content, req.Candidates)
	if err != nil {
		return RankResponse{}, err
	}
	resp.Model = completion.Model
	return resp, nil
}

// classify maps provider and transport errors onto the package sentinels
func classify(err error) error {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.StatusCode == http.StatusTooManyRequests:
			return fmt.Errorf("%w: %v", ErrRateLimited, err)
		case apiErr.StatusCode == http.StatusRequestTimeout || apiErr.StatusCode == http.StatusGatewayTimeout:
			return fmt.Errorf("%w: %v", ErrTimeout, err)
		case apiErr.StatusCode >= 500:
			return fmt.Errorf("%w: %v", ErrUnavailable, err)
		default:
			return fmt.Errorf("llm request rejected (%d): %w", apiErr.StatusCode, err)
		}
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	}
	if strings.Contains(strings.ToLower(err.Error()), "timeout") {
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	}
	return fmt.Errorf("%w: %v", ErrUnavailable, err)
}
