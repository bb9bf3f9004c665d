package types

import (
	"encoding/json"
	"fmt"
	"strings"
)

// ChatCompletionRequest is an OpenAI-compatible chat completion request.
type ChatCompletionRequest struct {
	Model     string        `json:"model"`
	Messages  []ChatMessage `json:"messages"`
	Stream    bool          `json:"stream,omitempty"`
	MaxTokens int           `json:"max_tokens,omitempty"`
	User      string        `json:"user,omitempty"`
}

// ChatMessage is one conversation turn.
type ChatMessage struct {
	Role    string         `json:"role"`
	Content MessageContent `json:"content"`
}

// MessageContent accepts either a plain string or an ordered array of text
// fragments ({"type":"text","text":...} objects or bare strings).
type MessageContent struct {
	parts []string
}

// Text returns the content flattened to a single string in fragment order.
func (c MessageContent) Text() string { return strings.Join(c.parts, "") }

// NewMessageContent builds content from already-flattened text. Test helper
// and convenience for non-HTTP callers.
func NewMessageContent(text string) MessageContent {
	return MessageContent{parts: []string{text}}
}

func (c *MessageContent) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		c.parts = []string{s}
		return nil
	}
	var raw []json.RawMessage
	if err := json.Unmarshal(b, &raw); err != nil {
		return fmt.Errorf("content must be a string or an array")
	}
	parts := make([]string, 0, len(raw))
	for _, item := range raw {
		var s string
		if err := json.Unmarshal(item, &s); err == nil {
			parts = append(parts, s)
			continue
		}
		var frag struct {
			Type string `json:"type"`
			Text string `json:"text"`
		}
		if err := json.Unmarshal(item, &frag); err != nil {
			return fmt.Errorf("unsupported content fragment: %s", string(item))
		}
		parts = append(parts, frag.Text)
	}
	c.parts = parts
	return nil
}

func (c MessageContent) MarshalJSON() ([]byte, error) {
	return json.Marshal(c.Text())
}

// ChatCompletionResponse is the non-streaming response body.
type ChatCompletionResponse struct {
	ID      string       `json:"id"`
	Object  string       `json:"object"`
	Created int64        `json:"created"`
	Model   string       `json:"model"`
	Choices []ChatChoice `json:"choices"`
}

// ChatCompletionChunk is one streamed SSE chunk.
type ChatCompletionChunk struct {
	ID      string       `json:"id"`
	Object  string       `json:"object"`
	Created int64        `json:"created"`
	Model   string       `json:"model"`
	Choices []ChatChoice `json:"choices"`
}

// ChatChoice carries either a full message or a streaming delta.
type ChatChoice struct {
	Index        int        `json:"index"`
	Message      *ChatDelta `json:"message,omitempty"`
	Delta        *ChatDelta `json:"delta,omitempty"`
	FinishReason *string    `json:"finish_reason"`
}

// ChatDelta is the message fragment inside a choice.
type ChatDelta struct {
	Role    string `json:"role,omitempty"`
	Content string `json:"content,omitempty"`
}

// TranscriptionResponse is the body returned by the transcription endpoint.
type TranscriptionResponse struct {
	Text string `json:"text"`
}
