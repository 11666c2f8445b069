package openai

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"net"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"

	"github.com/gamesight/visualqa/internal/domain/vision"
	"github.com/gamesight/visualqa/internal/infra/ai/prompt"
)

const maxTokens = 1024

// Adapter wraps one OpenAI-compatible vision endpoint behind the
// vision.Adapter port. Safe for concurrent use.
type Adapter struct {
	client *openai.Client
	name   string
	model  string

	timeout        time.Duration
	promptUSDPer1K float64
	outputUSDPer1K float64
}

// Options carries per-provider wiring.
type Options struct {
	Name           string
	APIKey         string
	BaseURL        string // empty = api.openai.com
	Model          string
	Timeout        time.Duration
	PromptUSDPer1K float64
	OutputUSDPer1K float64
}

func NewAdapter(opts Options) *Adapter {
	cfg := openai.DefaultConfig(opts.APIKey)
	if opts.BaseURL != "" {
		cfg.BaseURL = opts.BaseURL
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Adapter{
		client:         openai.NewClientWithConfig(cfg),
		name:           opts.Name,
		model:          opts.Model,
		timeout:        timeout,
		promptUSDPer1K: opts.PromptUSDPer1K,
		outputUSDPer1K: opts.OutputUSDPer1K,
	}
}

func (a *Adapter) Name() string { return a.name }

// Analyze sends the screenshot for a verdict. One retry with backoff and
// jitter on transient errors only; explicit model-side rejections are not
// retried. The returned result always carries the call status so the
// consensus layer can record non-responders.
func (a *Adapter) Analyze(ctx context.Context, in vision.CaptureInput) (vision.ModelAnalysisResult, error) {
	start := time.Now()
	res := vision.ModelAnalysisResult{
		CaptureID: in.CaptureID,
		ModelName: a.name,
		Category:  vision.CategoryOther,
	}

	var lastErr error
	for attempt := 0; attempt <= 1; attempt++ {
		if attempt > 0 {
			// exponential backoff with jitter
			backoff := time.Duration(500*(1<<attempt))*time.Millisecond +
				time.Duration(rand.Int63n(int64(250*time.Millisecond)))
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				res.Status = vision.CallTimeout
				res.LatencyMS = time.Since(start).Milliseconds()
				return res, fmt.Errorf("%w: %s", vision.ErrModelTimeout, a.name)
			}
		}

		verdict, cost, err := a.call(ctx, in)
		if err == nil {
			res.Detected = verdict.Detected
			res.Confidence = verdict.Confidence
			res.Category = vision.ValidCategory(verdict.Category)
			res.ReasoningText = verdict.Reasoning
			res.CostUSD = cost
			res.LatencyMS = time.Since(start).Milliseconds()
			res.Status = vision.CallOK
			return res, nil
		}
		lastErr = err
		if !transient(err) {
			break
		}
	}

	res.LatencyMS = time.Since(start).Milliseconds()
	if errors.Is(lastErr, context.DeadlineExceeded) {
		res.Status = vision.CallTimeout
		return res, fmt.Errorf("%w: %s", vision.ErrModelTimeout, a.name)
	}
	res.Status = vision.CallError
	var apiErr *openai.APIError
	if errors.As(lastErr, &apiErr) {
		switch {
		case apiErr.HTTPStatusCode == 429:
			return res, fmt.Errorf("%w: %s: %v", vision.ErrQuotaExceeded, a.name, lastErr)
		case apiErr.HTTPStatusCode >= 400 && apiErr.HTTPStatusCode < 500:
			return res, fmt.Errorf("%w: %s: %v", vision.ErrModelRejected, a.name, lastErr)
		}
	}
	return res, fmt.Errorf("model %s: %w", a.name, lastErr)
}

func (a *Adapter) call(ctx context.Context, in vision.CaptureInput) (prompt.Verdict, float64, error) {
	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	req := openai.ChatCompletionRequest{
		Model: a.model,
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: prompt.GetSystemPrompt()},
			{
				Role: openai.ChatMessageRoleUser,
				MultiContent: []openai.ChatMessagePart{
					{
						Type: openai.ChatMessagePartTypeText,
						Text: prompt.GetUserPrompt(in.GameTitle, in.Telemetry),
					},
					{
						Type: openai.ChatMessagePartTypeImageURL,
						ImageURL: &openai.ChatMessageImageURL{
							URL:    in.ScreenshotURL,
							Detail: openai.ImageURLDetailAuto,
						},
					},
				},
			},
		},
	}
	// For reasoning models (o1/o3/o4/gpt-5*) use MaxCompletionTokens instead of MaxTokens
	if strings.HasPrefix(a.model, "o1") || strings.HasPrefix(a.model, "o3") || strings.HasPrefix(a.model, "o4") || strings.HasPrefix(a.model, "gpt-5") {
		req.MaxCompletionTokens = maxTokens
	} else {
		req.MaxTokens = maxTokens
	}

	resp, err := a.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return prompt.Verdict{}, 0, err
	}
	if len(resp.Choices) == 0 {
		return prompt.Verdict{}, 0, fmt.Errorf("%w: empty response", vision.ErrModelUnavailable)
	}

	verdict, err := prompt.ParseVerdict(resp.Choices[0].Message.Content)
	if err != nil {
		return prompt.Verdict{}, 0, err
	}
	cost := float64(resp.Usage.PromptTokens)/1000*a.promptUSDPer1K +
		float64(resp.Usage.CompletionTokens)/1000*a.outputUSDPer1K
	return verdict, cost, nil
}

// transient reports whether the error is a network/provider hiccup worth
// one retry. Explicit 4xx rejections are final.
func transient(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.HTTPStatusCode == 429 || apiErr.HTTPStatusCode >= 500
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	// Request-level transport failures arrive as generic errors.
	var reqErr *openai.RequestError
	return errors.As(err, &reqErr)
}
