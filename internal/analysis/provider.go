package analysis

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/wordclip/wordclip/internal/logger"
)

// Provider is the upstream generative-AI collaborator. Implementations
// stream incremental output through onChunk in arrival order.
type Provider interface {
	StreamAnalysis(ctx context.Context, req Request, onChunk func(text string)) error
}

// upstreamTimeout is the hard bound on one upstream call including
// retries within a single attempt.
const upstreamTimeout = 10 * time.Minute

// retryBackoffs schedules up to three retries on transient upstream
// conditions. Client errors (400/401) are never retried.
var retryBackoffs = []time.Duration{1 * time.Second, 2 * time.Second, 4 * time.Second}

// OpenAIProvider streams sentence analyses from an OpenAI-compatible
// chat completions endpoint.
type OpenAIProvider struct {
	client openai.Client
	model  string
	logger *logger.Logger
}

// NewOpenAIProvider creates the upstream adapter. baseURL may be empty
// to use the default endpoint.
func NewOpenAIProvider(apiKey, baseURL, model string, log *logger.Logger) *OpenAIProvider {
	opts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	return &OpenAIProvider{
		client: openai.NewClient(opts...),
		model:  model,
		logger: log.WithComponent("analysis-provider"),
	}
}

// StreamAnalysis runs the upstream call with retry on transient errors.
// Chunks from a failed attempt are not replayed; retries only happen
// before the first chunk arrives, so subscribers never see duplicates.
func (p *OpenAIProvider) StreamAnalysis(ctx context.Context, req Request, onChunk func(string)) error {
	ctx, cancel := context.WithTimeout(ctx, upstreamTimeout)
	defer cancel()

	prompt := buildPrompt(req)

	var lastErr error
	for attempt := 0; attempt <= len(retryBackoffs); attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(retryBackoffs[attempt-1]):
			case <-ctx.Done():
				return ctx.Err()
			}
			p.logger.Warn("retrying upstream analysis call",
				slog.Int("attempt", attempt),
				slog.String("error", lastErr.Error()))
		}

		delivered, err := p.streamOnce(ctx, prompt, onChunk)
		if err == nil {
			return nil
		}
		lastErr = err

		// Once output has been delivered, a retry would duplicate
		// chunks for subscribers; surface the failure instead.
		if delivered {
			return err
		}
		if !isTransient(err) {
			return err
		}
	}

	return lastErr
}

func (p *OpenAIProvider) streamOnce(ctx context.Context, prompt string, onChunk func(string)) (delivered bool, err error) {
	stream := p.client.Chat.Completions.NewStreaming(ctx, openai.ChatCompletionNewParams{
		Model: openai.ChatModel(p.model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(systemPrompt),
			openai.UserMessage(prompt),
		},
	})
	defer stream.Close()

	for stream.Next() {
		chunk := stream.Current()
		if len(chunk.Choices) == 0 {
			continue
		}
		if delta := chunk.Choices[0].Delta.Content; delta != "" {
			delivered = true
			onChunk(delta)
		}
	}

	if err := stream.Err(); err != nil {
		return delivered, fmt.Errorf("upstream stream failed: %w", err)
	}
	return delivered, nil
}

// isTransient classifies retryable upstream failures: rate limits,
// server errors, timeouts, and any error that is not an API status
// error (such as a network failure). Every other API status is not
// retried; 400/401 mean a misconfigured request or credentials.
func isTransient(err error) bool {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.StatusCode == 429:
			return true
		case apiErr.StatusCode >= 500:
			return true
		case apiErr.StatusCode == 400 || apiErr.StatusCode == 401:
			return false
		}
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	return true
}

const systemPrompt = `You are a language tutor. Analyze the given sentence for a learner. ` +
	`Respond with a single JSON object with the fields: fullTranslation, ` +
	`literalTranslation, grammarAnalysis, breakdown (array of {word, translation, explanation}), ` +
	`idioms (array of {idiom, meaning, explanation}), and optional difficultyNotes. ` +
	`Respond with JSON only, no prose.`

func buildPrompt(req Request) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Sentence (%s): %s\n", req.TargetLanguage, req.Sentence)
	fmt.Fprintf(&b, "Target word: %s\n", req.TargetWord)
	fmt.Fprintf(&b, "Explain in: %s", req.NativeLanguage)
	if req.ContextBefore != "" {
		fmt.Fprintf(&b, "\nContext before: %s", req.ContextBefore)
	}
	if req.ContextAfter != "" {
		fmt.Fprintf(&b, "\nContext after: %s", req.ContextAfter)
	}
	return b.String()
}
