// Package llm provides the language-model client used for query
// classification, plan building, SQL generation and narrative prose.
package llm

import "context"

// Service is the interface for interacting with an LLM. All calls are
// fallible and potentially slow; callers parse responses defensively.
type Service interface {
	// Complete sends a prompt and returns the response text.
	Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}

// Message represents a message in conversation history.
type Message struct {
	Role    string // "user" or "assistant"
	Content string
}
