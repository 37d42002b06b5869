// Package llm provides the single-call LLMClient adapter the Generator and
// Reflector roles use to reach a text-generation model. The provider is
// deliberately generic — callers never see provider-specific response
// fields, only the three normalized outcomes spec.md §4.2 names.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/atlas-desktop/ace-playbook/pkg/types"
	"go.uber.org/zap"
)

// ErrBlocked is returned when the provider declines to produce usable text
// because of its safety filter. Response.Text() returns this (wrapped in a
// *BlockedError) instead of the generated text on a blocked response.
var ErrBlocked = errors.New("llm: response blocked by safety filter")

// ErrTransport covers network failures, timeouts, and non-2xx responses.
var ErrTransport = errors.New("llm: transport error")

// BlockedError reports which safety categories triggered a block.
type BlockedError struct {
	Categories []types.SafetyCategory
}

func (e *BlockedError) Error() string {
	return fmt.Sprintf("%v: categories=%v", ErrBlocked, e.Categories)
}

func (e *BlockedError) Unwrap() error { return ErrBlocked }

// FinishReason is the provider's reported reason generation stopped.
type FinishReason string

const (
	FinishStop   FinishReason = "stop"
	FinishLength FinishReason = "length"
	FinishBlocked FinishReason = "blocked"
)

// SafetySignal is one category's evaluated threshold for a response.
type SafetySignal struct {
	Category  types.SafetyCategory
	Triggered bool
}

// Response is the normalized outcome of one Generate call.
type Response struct {
	text          string
	blocked       bool
	FinishReason  FinishReason
	SafetySignals []SafetySignal
}

// Text returns the generated text and an error if the response was blocked
// — accessing text on a blocked response must fail fast, per spec.md §4.2.
func (r Response) Text() (string, error) {
	if r.blocked {
		var categories []types.SafetyCategory
		for _, s := range r.SafetySignals {
			if s.Triggered {
				categories = append(categories, s.Category)
			}
		}
		return "", &BlockedError{Categories: categories}
	}
	return r.text, nil
}

// NewTextResponse builds a successful Response carrying text — used by
// adapters and test doubles that already know the outcome rather than
// deriving it from a provider's raw fields.
func NewTextResponse(text string, reason FinishReason) Response {
	return Response{text: text, FinishReason: reason}
}

// NewBlockedResponse builds a blocked Response for the given triggered
// categories.
func NewBlockedResponse(categories ...types.SafetyCategory) Response {
	signals := make([]SafetySignal, 0, len(categories))
	for _, c := range categories {
		signals = append(signals, SafetySignal{Category: c, Triggered: true})
	}
	return Response{blocked: true, FinishReason: FinishBlocked, SafetySignals: signals}
}

// Client is the interface the Generator and Reflector roles depend on.
// A provider-specific adapter (HTTPClient below, or a test double) is the
// only thing that knows how to reach an actual model.
type Client interface {
	Generate(ctx context.Context, systemPrompt, userPrompt string, cfg types.LLMConfig) (Response, error)
}

// HTTPClient is a chat-completions-style adapter over net/http, grounded on
// the request/response shape used against the Perplexity API in the
// signal-aggregation pipeline this module evolved from: bearer auth, a
// messages array, temperature/max_tokens, and a choices[0].message.content
// extraction — generalized here into the tri-state Generate contract.
type HTTPClient struct {
	logger     *zap.Logger
	httpClient *http.Client
	baseURL    string
	apiKey     string
	model      string
}

// NewHTTPClient builds an adapter against an OpenAI/Perplexity-compatible
// chat-completions endpoint.
func NewHTTPClient(logger *zap.Logger, baseURL, apiKey, model string) *HTTPClient {
	return &HTTPClient{
		logger:     logger.Named("llm-client"),
		httpClient: &http.Client{},
		baseURL:    baseURL,
		apiKey:     apiKey,
		model:      model,
	}
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		FinishReason string `json:"finish_reason"`
		Message      struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// Generate issues one request/response call. ctx should carry cfg.Timeout
// (the caller is responsible for applying it — this mirrors spec.md §5's
// "every external call carries a timeout" without baking a default in here).
func (c *HTTPClient) Generate(ctx context.Context, systemPrompt, userPrompt string, cfg types.LLMConfig) (Response, error) {
	reqBody := chatRequest{
		Model: c.model,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: userPrompt},
		},
		Temperature: cfg.Temperature,
		MaxTokens:   cfg.MaxOutputTokens,
	}

	body, err := json.Marshal(reqBody)
	if err != nil {
		return Response{}, fmt.Errorf("%w: marshal request: %v", ErrTransport, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL, bytes.NewReader(body))
	if err != nil {
		return Response{}, fmt.Errorf("%w: build request: %v", ErrTransport, err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Warn("llm transport error", zap.Error(err), zap.Duration("elapsed", time.Since(start)))
		return Response{}, fmt.Errorf("%w: %v", ErrTransport, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		c.logger.Warn("llm non-200 response", zap.Int("status", resp.StatusCode))
		return Response{}, fmt.Errorf("%w: status %d", ErrTransport, resp.StatusCode)
	}

	var parsed chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return Response{}, fmt.Errorf("%w: decode response: %v", ErrTransport, err)
	}

	if len(parsed.Choices) == 0 {
		return Response{}, fmt.Errorf("%w: no choices in response", ErrTransport)
	}

	choice := parsed.Choices[0]
	signals := evaluateSafety(cfg)
	blocked := choice.FinishReason == "content_filter" || anyTriggered(signals)

	return Response{
		text:          choice.Message.Content,
		blocked:       blocked,
		FinishReason:  FinishReason(choice.FinishReason),
		SafetySignals: signals,
	}, nil
}

// evaluateSafety is a placeholder classifier: a real provider reports its
// own per-category verdicts; this adapter has none to consult beyond the
// posture it was asked to enforce, so it reports every configured category
// as not-triggered. A provider-specific adapter would replace this with the
// actual signals the API returns.
func evaluateSafety(cfg types.LLMConfig) []SafetySignal {
	signals := make([]SafetySignal, 0, len(cfg.SafetyPosture))
	for category := range cfg.SafetyPosture {
		signals = append(signals, SafetySignal{Category: category, Triggered: false})
	}
	return signals
}

func anyTriggered(signals []SafetySignal) bool {
	for _, s := range signals {
		if s.Triggered {
			return true
		}
	}
	return false
}
