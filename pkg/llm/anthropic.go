package llm

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/cenkalti/backoff/v4"
)

const (
	defaultMaxTokens   = 4096
	maxTransientRetry  = 30 * time.Second
	initialRetryWindow = 500 * time.Millisecond
)

// AnthropicClient implements Service using the Anthropic API.
type AnthropicClient struct {
	client    anthropic.Client
	model     anthropic.Model
	maxTokens int64
	log       *slog.Logger
}

// NewAnthropicClient creates a new Anthropic-based LLM client. API credentials
// are read from the environment by the SDK.
func NewAnthropicClient(model anthropic.Model, maxTokens int64, log *slog.Logger) *AnthropicClient {
	if maxTokens == 0 {
		maxTokens = defaultMaxTokens
	}
	return &AnthropicClient{
		client:    anthropic.NewClient(),
		model:     model,
		maxTokens: maxTokens,
		log:       log,
	}
}

// Complete sends a prompt to Claude and returns the response text.
// Transient API failures (rate limits, overload) are retried with
// exponential backoff inside a bounded window.
func (c *AnthropicClient) Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	var text string

	operation := func() error {
		start := time.Now()
		msg, err := c.client.Messages.New(ctx, anthropic.MessageNewParams{
			Model:     c.model,
			MaxTokens: c.maxTokens,
			System: []anthropic.TextBlockParam{
				{Type: "text", Text: systemPrompt},
			},
			Messages: []anthropic.MessageParam{
				anthropic.NewUserMessage(anthropic.NewTextBlock(userPrompt)),
			},
		})
		if err != nil {
			if isTransient(err) {
				if c.log != nil {
					c.log.Warn("anthropic call failed, retrying", "duration", time.Since(start), "error", err)
				}
				return err
			}
			return backoff.Permanent(err)
		}

		if c.log != nil {
			c.log.Debug("anthropic call completed", "duration", time.Since(start), "stopReason", msg.StopReason)
		}

		for _, block := range msg.Content {
			if block.Type == "text" {
				text = block.Text
				return nil
			}
		}
		return backoff.Permanent(fmt.Errorf("no text content in response"))
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = initialRetryWindow
	bo.MaxElapsedTime = maxTransientRetry

	if err := backoff.Retry(operation, backoff.WithContext(bo, ctx)); err != nil {
		return "", fmt.Errorf("anthropic API error: %w", err)
	}
	return text, nil
}

// isTransient reports whether an API error is worth retrying.
func isTransient(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "429") ||
		strings.Contains(msg, "overloaded") ||
		strings.Contains(msg, "rate limit") ||
		strings.Contains(msg, "529") ||
		strings.Contains(msg, "timeout")
}
