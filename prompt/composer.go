// Package prompt renders the system/user message pair for a chat turn.
//
// Selection is total and mutually exclusive over the presence of a
// highlight and of document text; within the document branches a
// size-aware sub-policy decides between inlining the full text and
// assembling a bounded page window.
package prompt

import (
	"sort"
	"strings"
)

// Context-window sizing. Documents at or above InlineTokenLimit tokens
// are never inlined whole; the composer sends the first LeadPageCount
// pages plus HighlightWindowRadius pages on each side of the highlighted
// page instead.
const (
	InlineTokenLimit      = 50_000
	LeadPageCount         = 10
	HighlightWindowRadius = 5
)

// Branch identifies which template pair fired.
type Branch string

const (
	BranchHighlightDocument Branch = "highlight+document"
	BranchDocumentOnly      Branch = "document-only"
	BranchBasic             Branch = "basic"
)

// Context carries everything the composer may consult. UserInput is
// required; the rest is optional document/highlight context.
type Context struct {
	UserInput       string
	HighlightedText string
	FullText        string
	TokenLength     int
	PageText        map[int]string
	HighlightedPage int
}

// Result is the rendered prompt pair. Both strings are trimmed.
type Result struct {
	SystemPrompt string
	UserPrompt   string
	Branch       Branch
}

// Composer renders prompts from an injected template store. Compose is
// pure: same inputs, same outputs.
type Composer struct {
	templates TemplateStore
}

func NewComposer(templates TemplateStore) *Composer {
	return &Composer{templates: templates}
}

// Compose selects a template pair (first match wins) and renders it.
//
//  1. highlight and document text both present → highlight+document pair
//  2. document text present, no highlight → document-only pair
//  3. neither → basic Q&A pair
func (c *Composer) Compose(ctx Context) (Result, error) {
	userInput := strings.TrimSpace(ctx.UserInput)

	switch {
	case ctx.HighlightedText != "" && ctx.FullText != "":
		sys, err := c.render(TemplateSysWithHighlight, map[string]string{
			PlaceholderFileText: c.documentText(ctx),
		})
		if err != nil {
			return Result{}, err
		}
		user, err := c.render(TemplateUserWithHighlight, map[string]string{
			PlaceholderUserInput:       userInput,
			PlaceholderHighlightedText: ctx.HighlightedText,
		})
		if err != nil {
			return Result{}, err
		}
		return Result{SystemPrompt: sys, UserPrompt: user, Branch: BranchHighlightDocument}, nil

	case ctx.FullText != "":
		sys, err := c.render(TemplateSysWithoutHighlight, map[string]string{
			PlaceholderFileText: c.documentText(ctx),
		})
		if err != nil {
			return Result{}, err
		}
		user, err := c.render(TemplateUserWithoutHighlight, map[string]string{
			PlaceholderUserInput: userInput,
		})
		if err != nil {
			return Result{}, err
		}
		return Result{SystemPrompt: sys, UserPrompt: user, Branch: BranchDocumentOnly}, nil

	default:
		sys, err := c.render(TemplateBasicSys, nil)
		if err != nil {
			return Result{}, err
		}
		user, err := c.render(TemplateBasicUser, map[string]string{
			PlaceholderUserInput: userInput,
		})
		if err != nil {
			return Result{}, err
		}
		return Result{SystemPrompt: sys, UserPrompt: user, Branch: BranchBasic}, nil
	}
}

func (c *Composer) render(id string, subs map[string]string) (string, error) {
	body, err := c.templates.Template(id)
	if err != nil {
		return "", err
	}
	for placeholder, value := range subs {
		body = strings.ReplaceAll(body, placeholder, value)
	}
	return strings.TrimSpace(body), nil
}

// documentText returns the document context to inline: the full text for
// documents under InlineTokenLimit, otherwise the bounded page window.
func (c *Composer) documentText(ctx Context) string {
	if ctx.TokenLength < InlineTokenLimit {
		return ctx.FullText
	}
	return windowedText(ctx.PageText, ctx.HighlightedPage)
}

// windowedText assembles the bounded context for oversized documents:
// pages 1..LeadPageCount, then the highlighted page with
// HighlightWindowRadius pages on each side. Missing pages are skipped,
// overlaps deduplicated, pages joined by newlines in ascending order.
func windowedText(pages map[int]string, highlightedPage int) string {
	if len(pages) == 0 {
		return ""
	}

	include := make(map[int]bool)
	for p := 1; p <= LeadPageCount; p++ {
		include[p] = true
	}
	if highlightedPage > 0 {
		for p := highlightedPage - HighlightWindowRadius; p <= highlightedPage+HighlightWindowRadius; p++ {
			include[p] = true
		}
	}

	var order []int
	for p := range include {
		if _, ok := pages[p]; ok {
			order = append(order, p)
		}
	}
	sort.Ints(order)

	parts := make([]string, 0, len(order))
	for _, p := range order {
		parts = append(parts, pages[p])
	}
	return strings.Join(parts, "\n")
}
