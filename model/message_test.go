package model

import "testing"

func TestTextContent(t *testing.T) {
	plain := Message{Role: RoleUser, Content: "hello"}
	if got := plain.TextContent(); got != "hello" {
		t.Errorf("TextContent = %q", got)
	}

	multi := Message{
		Role: RoleUser,
		Blocks: []ContentBlock{
			{Kind: BlockText, Text: "see "},
			{Kind: BlockImage, Data: "AAAA", MimeType: "image/png"},
			{Kind: BlockText, Text: "this"},
		},
	}
	if got := multi.TextContent(); got != "see this" {
		t.Errorf("TextContent = %q, image blocks must be skipped", got)
	}
	if !multi.Multimodal() || !multi.HasImages() {
		t.Error("multimodal detection failed")
	}
	if plain.Multimodal() || plain.HasImages() {
		t.Error("plain message misdetected as multimodal")
	}
}

func TestConversationClone(t *testing.T) {
	original := &Conversation{
		ID: "c1",
		Messages: []Message{
			{ID: "m1", Role: RoleUser, Content: "hi", Blocks: []ContentBlock{{Kind: BlockText, Text: "hi"}}},
		},
		Tokens: &TokenTotals{Prompt: 10},
	}

	clone := original.Clone()
	clone.Messages[0].Content = "changed"
	clone.Messages[0].Blocks[0].Text = "changed"
	clone.Tokens.Prompt = 999
	clone.Messages = append(clone.Messages, Message{ID: "m2"})

	if original.Messages[0].Content != "hi" {
		t.Error("clone shares message backing array")
	}
	if original.Messages[0].Blocks[0].Text != "hi" {
		t.Error("clone shares block backing array")
	}
	if original.Tokens.Prompt != 10 {
		t.Error("clone shares token struct")
	}
	if len(original.Messages) != 1 {
		t.Error("clone append leaked into original")
	}
}
