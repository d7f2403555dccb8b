package prompt

import "fmt"

// Template ids. The composer picks one system/user pair per branch.
const (
	TemplateSysWithHighlight     = "sys-with-highlight"
	TemplateUserWithHighlight    = "user-with-highlight"
	TemplateSysWithoutHighlight  = "sys-without-highlight"
	TemplateUserWithoutHighlight = "user-without-highlight"
	TemplateBasicSys             = "basic-sys"
	TemplateBasicUser            = "basic-user"
)

// Placeholders substituted during rendering.
const (
	PlaceholderFileText        = "{fileText}"
	PlaceholderUserInput       = "{userInput}"
	PlaceholderHighlightedText = "{highlightedText}"
)

// TemplateStore supplies template bodies. Bodies are configuration, not
// code: the composer never fetches them itself.
type TemplateStore interface {
	Template(id string) (string, error)
}

// StaticTemplates is a TemplateStore backed by an in-memory map.
type StaticTemplates map[string]string

func (s StaticTemplates) Template(id string) (string, error) {
	body, ok := s[id]
	if !ok {
		return "", fmt.Errorf("unknown template: %s", id)
	}
	return body, nil
}

// Defaults returns the built-in template bodies.
func Defaults() StaticTemplates {
	return StaticTemplates{
		TemplateSysWithHighlight: `You are a reading assistant embedded in a PDF reader. The user has a document open and has highlighted a passage they want to discuss.

Document text:
---
{fileText}
---

Answer questions about the highlighted passage using the document for context. Quote the document where it supports your answer. If the document does not contain the answer, say so.`,

		TemplateUserWithHighlight: `Highlighted passage:
"""
{highlightedText}
"""

Question: {userInput}`,

		TemplateSysWithoutHighlight: `You are a reading assistant embedded in a PDF reader. The user has a document open and is asking questions about it.

Document text:
---
{fileText}
---

Answer using the document. Quote it where relevant. If the document does not contain the answer, say so.`,

		TemplateUserWithoutHighlight: `Question about the document: {userInput}`,

		TemplateBasicSys: `You are a helpful assistant inside a PDF reader. No document context is available for this question; answer from general knowledge.`,

		TemplateBasicUser: `{userInput}`,
	}
}
