package provider

import (
	"context"
	"errors"
	"io"
	"strings"

	"raider/model"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/packages/ssestream"

	"raider/config"
)

// classifyStreamErr maps a mid-stream read failure onto the error
// taxonomy. Cancellation is a graceful stop, a timeout or dead
// connection escalates to ProviderError, and a benign re-read of an
// exhausted stream recovers as no error at all.
func classifyStreamErr(providerID string, err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, io.EOF):
		return nil
	case errors.Is(err, context.Canceled):
		return nil
	case errors.Is(err, context.DeadlineExceeded):
		return &model.ProviderError{Provider: providerID, Err: err}
	case strings.Contains(err.Error(), "consumed stream"):
		// Re-reading an already-drained SSE body is not a real fault.
		return &model.StreamReadError{Provider: providerID, Err: err}
	default:
		return &model.ProviderError{Provider: providerID, Err: err}
	}
}

// ctxStopErr maps a context stop observed between pulls onto the stream
// contract: cancellation drains as a graceful done, an expired deadline
// fails the turn like any other vendor fault.
func ctxStopErr(providerID string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return &model.ProviderError{Provider: providerID, Err: err}
	}
	return nil
}

// sseHandle adapts an openai-go SSE stream (used by both the OpenAI and
// DeepSeek adapters) to the pull-based StreamHandle contract: one vendor
// event per Next call, idempotent after done.
type sseHandle struct {
	providerID string
	stream     *ssestream.Stream[openai.ChatCompletionChunk]
	done       bool

	// estimateUsage drives the char/4 approximation for vendors that
	// omit usage in-stream. The prompt estimate is attached to the first
	// chunk only so the accumulator sums correctly.
	estimateUsage  bool
	promptEstimate int
	sentPrompt     bool
}

func (h *sseHandle) Next(ctx context.Context) (model.StreamChunk, bool, error) {
	if h.done {
		return model.StreamChunk{}, true, nil
	}
	if err := ctx.Err(); err != nil {
		h.done = true
		return model.StreamChunk{}, true, ctxStopErr(h.providerID, err)
	}

	if !h.stream.Next() {
		h.done = true
		if err := classifyStreamErr(h.providerID, h.stream.Err()); err != nil {
			var readErr *model.StreamReadError
			if errors.As(err, &readErr) {
				// Recoverable: surface one empty non-terminal chunk; the
				// done flag is already set so the following pull ends the
				// stream cleanly.
				if config.Debug && config.DebugLog != nil {
					config.DebugLog.Printf("[%s] recovered benign stream re-read: %v", h.providerID, readErr.Err)
				}
				return model.StreamChunk{}, false, nil
			}
			return model.StreamChunk{}, true, err
		}
		return model.StreamChunk{}, true, nil
	}

	raw := h.stream.Current()

	var chunk model.StreamChunk
	if len(raw.Choices) > 0 {
		chunk.Content = raw.Choices[0].Delta.Content
	}

	if h.estimateUsage {
		chunk.Usage.CompletionTokens = EstimateTokens(chunk.Content)
		if !h.sentPrompt {
			chunk.Usage.PromptTokens = h.promptEstimate
			h.sentPrompt = true
		}
	} else {
		// With stream_options.include_usage the usage arrives on a single
		// trailing chunk; everything else reports zeros.
		chunk.Usage.PromptTokens = int(raw.Usage.PromptTokens)
		chunk.Usage.CompletionTokens = int(raw.Usage.CompletionTokens)
		chunk.Usage.CachedTokens = int(raw.Usage.PromptTokensDetails.CachedTokens)
	}

	return chunk, false, nil
}
