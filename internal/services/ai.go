package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// ErrAIRateLimited is returned when the call limiter refuses a request.
var ErrAIRateLimited = errors.New("ai call limit reached")

// OpenAIConfig configures an OpenAI-compatible backend.
type OpenAIConfig struct {
	APIKey     string
	BaseURL    string
	Model      string
	Timeout    time.Duration
	MaxRetries int
	Limiter    *CallLimiter
	Logger     *log.Logger
}

// OpenAIChat implements AIChat against any OpenAI-compatible endpoint.
type OpenAIChat struct {
	client  openai.Client
	model   string
	timeout time.Duration
	enabled bool
	limiter *CallLimiter
	log     *log.Logger
	now     func() time.Time
}

func NewOpenAIChat(cfg OpenAIConfig) *OpenAIChat {
	c := &OpenAIChat{
		model:   cfg.Model,
		timeout: cfg.Timeout,
		enabled: cfg.APIKey != "",
		limiter: cfg.Limiter,
		log:     cfg.Logger,
		now:     time.Now,
	}
	if !c.enabled {
		c.log.Warn("AI backend disabled: API key not set")
		return c
	}

	options := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithMaxRetries(cfg.MaxRetries),
	}
	if cfg.BaseURL != "" {
		options = append(options, option.WithBaseURL(cfg.BaseURL))
	}
	c.client = openai.NewClient(options...)
	c.log.Info("AI backend initialized", "model", cfg.Model, "base_url", cfg.BaseURL)
	return c
}

func (c *OpenAIChat) Available() bool {
	return c.enabled
}

func (c *OpenAIChat) Chat(ctx context.Context, req ChatRequest) (string, error) {
	if !c.enabled {
		return "", ErrAIUnavailable
	}
	if !c.limiter.Reserve(c.now()) {
		return "", ErrAIRateLimited
	}
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	messages := []openai.ChatCompletionMessageParamUnion{}
	if req.System != "" {
		messages = append(messages, openai.SystemMessage(req.System))
	}
	messages = append(messages, openai.UserMessage(req.User))

	params := openai.ChatCompletionNewParams{
		Model:    openai.ChatModel(c.model),
		Messages: messages,
	}
	if req.Temperature > 0 {
		params.Temperature = openai.Float(req.Temperature)
	}
	if req.MaxTokens > 0 {
		params.MaxTokens = openai.Int(int64(req.MaxTokens))
	}
	if req.TopP > 0 {
		params.TopP = openai.Float(req.TopP)
	}

	start := c.now()
	completion, err := c.client.Chat.Completions.New(ctx, params)
	if err != nil {
		c.log.Error("AI request failed", "err", err)
		return "", fmt.Errorf("ai request failed: %w", err)
	}

	if len(completion.Choices) == 0 {
		return "", errors.New("no response choices returned")
	}
	content := strings.TrimSpace(completion.Choices[0].Message.Content)
	if content == "" {
		return "", errors.New("empty response content")
	}

	c.log.Debug("AI response received", "length", len(content), "took", c.now().Sub(start))
	return content, nil
}
