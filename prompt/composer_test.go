package prompt

import (
	"fmt"
	"strings"
	"testing"
)

func TestComposeBranchSelection(t *testing.T) {
	tests := []struct {
		name       string
		ctx        Context
		wantBranch Branch
	}{
		{
			name: "highlight and document",
			ctx: Context{
				UserInput:       "what does this mean?",
				HighlightedText: "the mitochondria",
				FullText:        "cell biology text",
			},
			wantBranch: BranchHighlightDocument,
		},
		{
			name: "document only",
			ctx: Context{
				UserInput: "summarize this",
				FullText:  "cell biology text",
			},
			wantBranch: BranchDocumentOnly,
		},
		{
			name: "highlight without document falls through to basic",
			ctx: Context{
				UserInput:       "what does this mean?",
				HighlightedText: "orphaned highlight",
			},
			wantBranch: BranchBasic,
		},
		{
			name:       "neither",
			ctx:        Context{UserInput: "what is Go?"},
			wantBranch: BranchBasic,
		},
	}

	composer := NewComposer(Defaults())
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := composer.Compose(tt.ctx)
			if err != nil {
				t.Fatalf("Compose: %v", err)
			}
			if result.Branch != tt.wantBranch {
				t.Errorf("branch = %s, want %s", result.Branch, tt.wantBranch)
			}
			if !strings.Contains(result.UserPrompt, strings.TrimSpace(tt.ctx.UserInput)) {
				t.Errorf("user prompt missing input: %q", result.UserPrompt)
			}
		})
	}
}

func TestComposeSubstitutions(t *testing.T) {
	composer := NewComposer(Defaults())

	result, err := composer.Compose(Context{
		UserInput:       "explain",
		HighlightedText: "UNIQUE-HIGHLIGHT",
		FullText:        "UNIQUE-DOCUMENT",
		TokenLength:     100,
	})
	if err != nil {
		t.Fatalf("Compose: %v", err)
	}

	if !strings.Contains(result.SystemPrompt, "UNIQUE-DOCUMENT") {
		t.Error("system prompt missing document text")
	}
	if !strings.Contains(result.UserPrompt, "UNIQUE-HIGHLIGHT") {
		t.Error("user prompt missing highlighted text")
	}
	if strings.Contains(result.SystemPrompt, "{fileText}") ||
		strings.Contains(result.UserPrompt, "{userInput}") ||
		strings.Contains(result.UserPrompt, "{highlightedText}") {
		t.Error("unsubstituted placeholder left in output")
	}
}

func TestInlineThresholdBoundary(t *testing.T) {
	composer := NewComposer(Defaults())
	pages := map[int]string{1: "PAGE-ONE"}

	// One token under the limit inlines the full text.
	result, err := composer.Compose(Context{
		UserInput:   "q",
		FullText:    "FULL-TEXT-BODY",
		TokenLength: InlineTokenLimit - 1,
		PageText:    pages,
	})
	if err != nil {
		t.Fatalf("Compose: %v", err)
	}
	if !strings.Contains(result.SystemPrompt, "FULL-TEXT-BODY") {
		t.Error("document under the limit should be inlined whole")
	}

	// At the limit the page window is used instead.
	result, err = composer.Compose(Context{
		UserInput:   "q",
		FullText:    "FULL-TEXT-BODY",
		TokenLength: InlineTokenLimit,
		PageText:    pages,
	})
	if err != nil {
		t.Fatalf("Compose: %v", err)
	}
	if strings.Contains(result.SystemPrompt, "FULL-TEXT-BODY") {
		t.Error("document at the limit must not be inlined whole")
	}
	if !strings.Contains(result.SystemPrompt, "PAGE-ONE") {
		t.Error("page window missing from system prompt")
	}
}

func TestWindowedTextPageSelection(t *testing.T) {
	pages := make(map[int]string)
	for p := 1; p <= 60; p++ {
		pages[p] = fmt.Sprintf("PAGE-%02d", p)
	}

	composer := NewComposer(Defaults())
	result, err := composer.Compose(Context{
		UserInput:       "q",
		HighlightedText: "something on page 40",
		FullText:        "huge",
		TokenLength:     InlineTokenLimit,
		PageText:        pages,
		HighlightedPage: 40,
	})
	if err != nil {
		t.Fatalf("Compose: %v", err)
	}

	// Lead pages 1-10 and highlight window 35-45.
	for p := 1; p <= 10; p++ {
		if !strings.Contains(result.SystemPrompt, fmt.Sprintf("PAGE-%02d", p)) {
			t.Errorf("lead page %d missing", p)
		}
	}
	for p := 35; p <= 45; p++ {
		if !strings.Contains(result.SystemPrompt, fmt.Sprintf("PAGE-%02d", p)) {
			t.Errorf("window page %d missing", p)
		}
	}
	for _, p := range []int{11, 34, 46, 60} {
		if strings.Contains(result.SystemPrompt, fmt.Sprintf("PAGE-%02d", p)) {
			t.Errorf("page %d should be excluded", p)
		}
	}

	// Ascending order: page 9 before 10, 10 before 35.
	i9 := strings.Index(result.SystemPrompt, "PAGE-09")
	i10 := strings.Index(result.SystemPrompt, "PAGE-10")
	i35 := strings.Index(result.SystemPrompt, "PAGE-35")
	if !(i9 < i10 && i10 < i35) {
		t.Errorf("pages out of order: 9@%d 10@%d 35@%d", i9, i10, i35)
	}
}

func TestWindowedTextOverlapDeduplicated(t *testing.T) {
	// Highlight on page 8: window 3-13 overlaps lead 1-10.
	pages := make(map[int]string)
	for p := 1; p <= 20; p++ {
		pages[p] = fmt.Sprintf("PAGE-%02d", p)
	}

	composer := NewComposer(Defaults())
	result, err := composer.Compose(Context{
		UserInput:       "q",
		HighlightedText: "x",
		FullText:        "huge",
		TokenLength:     InlineTokenLimit,
		PageText:        pages,
		HighlightedPage: 8,
	})
	if err != nil {
		t.Fatalf("Compose: %v", err)
	}

	if n := strings.Count(result.SystemPrompt, "PAGE-08"); n != 1 {
		t.Errorf("page 8 appears %d times, want 1", n)
	}
}

func TestWindowedTextMissingPagesSkipped(t *testing.T) {
	// Sparse extraction: only a few pages have text.
	pages := map[int]string{2: "PAGE-02", 7: "PAGE-07"}

	composer := NewComposer(Defaults())
	result, err := composer.Compose(Context{
		UserInput:   "q",
		FullText:    "huge",
		TokenLength: InlineTokenLimit,
		PageText:    pages,
	})
	if err != nil {
		t.Fatalf("Compose: %v", err)
	}

	if !strings.Contains(result.SystemPrompt, "PAGE-02") || !strings.Contains(result.SystemPrompt, "PAGE-07") {
		t.Error("present pages missing from window")
	}
}

func TestComposeUnknownTemplate(t *testing.T) {
	composer := NewComposer(StaticTemplates{})
	if _, err := composer.Compose(Context{UserInput: "q"}); err == nil {
		t.Error("expected error for missing template")
	}
}
