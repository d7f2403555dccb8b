package storage

import (
	"strings"

	"raider/model"
)

// MessageMatch is one search hit within a document's conversation
// history.
type MessageMatch struct {
	ConversationID string
	MessageIndex   int
	Role           string
	Content        string
	Preview        string
}

// SearchConversations scans every conversation of a document for a
// case-insensitive substring match. System messages are never persisted
// and loading sentinels carry no content, so plain message bodies are
// all that needs scanning.
func (s *Store) SearchConversations(key model.DocumentKey, query string) ([]MessageMatch, error) {
	if query == "" {
		return []MessageMatch{}, nil
	}

	conversations, err := s.Conversations(key)
	if err != nil {
		return nil, err
	}

	queryLower := strings.ToLower(query)
	var matches []MessageMatch

	for _, conv := range conversations {
		for i, msg := range conv.Messages {
			content := msg.TextContent()
			if !strings.Contains(strings.ToLower(content), queryLower) {
				continue
			}

			preview := content
			if len(preview) > 100 {
				preview = preview[:100] + "..."
			}

			matches = append(matches, MessageMatch{
				ConversationID: conv.ID,
				MessageIndex:   i,
				Role:           msg.Role,
				Content:        content,
				Preview:        preview,
			})
		}
	}

	return matches, nil
}
