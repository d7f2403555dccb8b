package model

// DocumentKey identifies a document in storage. Documents opened from
// disk are keyed by path; URL documents by the fetched address.
type DocumentKey struct {
	Path  string `json:"path"`
	IsURL bool   `json:"isUrl"`
	Name  string `json:"name"`
}

// ImageAttachment is an image the user attached to a chat turn, as
// delivered by the UI (base64 data URL).
type ImageAttachment struct {
	ID      string `json:"id"`
	Base64  string `json:"base64"`
	Loading bool   `json:"loading"`
}

// ChatRequest is the single canonical request shape consumed by the
// orchestrator. Optional context fields are zero-valued when absent; the
// prompt composer is the one place that interprets which combination of
// fields is present.
type ChatRequest struct {
	// ConversationID is empty on the first turn; the orchestrator then
	// creates a new conversation.
	ConversationID string `json:"conversationId,omitempty"`

	UserInput string `json:"userInput"`

	HighlightedText string `json:"highlightedText,omitempty"`
	HighlightID     string `json:"highlightId,omitempty"`
	HighlightedPage int    `json:"highlightedPageNumber,omitempty"`

	Document DocumentKey `json:"documentRef"`

	// FullText, PageText and TokenLength come from the file-ingestion
	// collaborator's extraction pass and are immutable per document.
	FullText    string         `json:"fullText,omitempty"`
	PageText    map[int]string `json:"pageText,omitempty"`
	TokenLength int            `json:"tokenLength,omitempty"`

	// ProviderID overrides the registry's active provider when set.
	ProviderID string `json:"providerId,omitempty"`

	Images []ImageAttachment `json:"images,omitempty"`
}
