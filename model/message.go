// Package model defines the provider-agnostic types shared across the
// chat core.
//
// Raider talks to multiple LLM vendors (OpenAI, Anthropic, DeepSeek,
// Ollama) through a common Provider interface. The orchestrator, the
// registry, and the storage layer only ever see the types in this
// package; vendor wire formats never leak past the provider adapters.
//
// The Provider interface and StreamHandle live here (not in the provider
// package) to avoid import cycles: adapters import model, and the chat
// orchestrator can consume Provider without importing any adapter.
package model

import "time"

// Message roles. A conversation's message list, when non-empty, starts
// with exactly one system message followed by alternating user/assistant
// turns. The system message is stripped before persisting and rebuilt by
// the prompt composer on every turn.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// ContentBlock kinds.
const (
	BlockText  = "text"
	BlockImage = "image"
)

// ContentBlock is one element of a multimodal message body.
// Kind is either BlockText (Text set) or BlockImage (Data + MimeType set,
// Data holding the base64 payload).
type ContentBlock struct {
	Kind     string `json:"kind"`
	Text     string `json:"text,omitempty"`
	Data     string `json:"data,omitempty"`
	MimeType string `json:"mimeType,omitempty"`
}

// Message is a single conversation turn.
//
// Content holds plain text; Blocks is set instead when the message is
// multimodal (text plus images). DisplayContent carries the raw user
// input for UI rendering when Content contains a rendered prompt
// template. The in-progress assistant message is a sentinel with
// IsLoading=true, empty content and a unique TerminateString that the
// transport echoes back to mark stream completion.
type Message struct {
	ID              string         `json:"id"`
	Role            string         `json:"role"`
	Content         string         `json:"content,omitempty"`
	Blocks          []ContentBlock `json:"blocks,omitempty"`
	DisplayContent  string         `json:"displayContent,omitempty"`
	IsLoading       bool           `json:"isLoading,omitempty"`
	HighlightedText string         `json:"highlightedText,omitempty"`
	HighlightID     string         `json:"highlightId,omitempty"`
	TerminateString string         `json:"terminateString,omitempty"`
}

// Multimodal reports whether the message carries content blocks rather
// than plain text.
func (m Message) Multimodal() bool {
	return len(m.Blocks) > 0
}

// HasImages reports whether any block is an image block.
func (m Message) HasImages() bool {
	for _, b := range m.Blocks {
		if b.Kind == BlockImage {
			return true
		}
	}
	return false
}

// TextContent flattens the message body to plain text. For multimodal
// messages the text blocks are concatenated and image blocks skipped.
func (m Message) TextContent() string {
	if !m.Multimodal() {
		return m.Content
	}
	var out string
	for _, b := range m.Blocks {
		if b.Kind == BlockText {
			out += b.Text
		}
	}
	return out
}

// TokenTotals is the per-conversation token accounting folded in after
// each completed turn.
type TokenTotals struct {
	Prompt      int `json:"prompt"`
	CachedInput int `json:"cachedInput"`
	Completion  int `json:"completion"`
}

// ConversationMetadata records which model and vendor produced the
// conversation's assistant turns.
type ConversationMetadata struct {
	ModelName string `json:"modelName"`
	Provider  string `json:"provider"`
}

// Conversation is one chat thread attached to a document. Many
// conversations may exist per document, keyed by ID. Persisted message
// lists never include the system message.
type Conversation struct {
	ID        string               `json:"id"`
	Messages  []Message            `json:"messages"`
	Timestamp time.Time            `json:"timestamp"`
	Tokens    *TokenTotals         `json:"tokens,omitempty"`
	TotalCost float64              `json:"totalCost,omitempty"`
	Metadata  ConversationMetadata `json:"metadata"`
}

// Clone returns a deep copy of the conversation. The orchestrator hands
// clones to callers so the streaming goroutine can keep mutating its own
// copy safely.
func (c *Conversation) Clone() *Conversation {
	out := *c
	out.Messages = make([]Message, len(c.Messages))
	copy(out.Messages, c.Messages)
	for i := range out.Messages {
		if len(out.Messages[i].Blocks) > 0 {
			blocks := make([]ContentBlock, len(out.Messages[i].Blocks))
			copy(blocks, out.Messages[i].Blocks)
			out.Messages[i].Blocks = blocks
		}
	}
	if c.Tokens != nil {
		t := *c.Tokens
		out.Tokens = &t
	}
	return &out
}
