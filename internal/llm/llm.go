// Package llm handles content-provider communication, prompt construction
// and parsing of model responses into template variables and review
// critiques.
package llm

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	anthropic "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"go.uber.org/zap"
)

var (
	// ErrUnavailable is returned by providers that cannot produce content,
	// such as the offline provider.
	ErrUnavailable = errors.New("llm: provider unavailable")
	// ErrNoVariables is returned when a response contains no usable
	// key/value object.
	ErrNoVariables = errors.New("llm: no variables in response")
	// ErrNoCritique is returned when a review response carries neither an
	// issues nor a suggestions list.
	ErrNoCritique = errors.New("llm: no critique in response")
	// ErrNoCode is returned when a free-form response contains no code.
	ErrNoCode = errors.New("llm: no code in response")
)

// Provider is the interface for LLM backends.
type Provider interface {
	Complete(ctx context.Context, systemPrompt, userPrompt string, maxTokens int, temperature float64) (string, error)
}

// NewProvider is the factory for creating LLM providers. It is a package-level
// variable so tests can replace it with a mock without modifying the call site.
// Tests must restore the original value; use t.Cleanup to do so safely.
var NewProvider func(providerName, model string) (Provider, error) = defaultNewProvider

// Defaults applied by Client when a field is zero.
const (
	DefaultMaxTokens   = 2048
	DefaultTemperature = 0.2
	DefaultTimeout     = 60 * time.Second
)

// DefaultModel returns the model used for providerName when none is
// configured.
func DefaultModel(providerName string) string {
	switch canonicalProvider(providerName) {
	case "openai":
		return "gpt-4o"
	case "google":
		return "gemini-1.5-pro"
	case "offline":
		return ""
	default:
		return "claude-sonnet-4-5"
	}
}

// Client wraps a Provider with call defaults and a per-call timeout.
type Client struct {
	Provider    Provider
	MaxTokens   int
	Temperature float64
	Timeout     time.Duration
	Logger      *zap.Logger
}

// WithTemperature returns a copy of c that samples at temperature. A zero
// temperature returns c unchanged.
func (c *Client) WithTemperature(temperature float64) *Client {
	if temperature == 0 {
		return c
	}
	cp := *c
	cp.Temperature = temperature
	return &cp
}

func (c *Client) logger() *zap.Logger {
	if c.Logger == nil {
		return zap.NewNop()
	}
	return c.Logger
}

// Complete sends one request under the client's timeout.
func (c *Client) Complete(ctx context.Context, system, user string) (string, error) {
	if c == nil || c.Provider == nil {
		return "", ErrUnavailable
	}
	maxTokens := c.MaxTokens
	if maxTokens <= 0 {
		maxTokens = DefaultMaxTokens
	}
	temperature := c.Temperature
	if temperature <= 0 {
		temperature = DefaultTemperature
	}
	timeout := c.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	out, err := c.Provider.Complete(ctx, system, user, maxTokens, temperature)
	c.logger().Debug("llm complete",
		zap.Duration("elapsed", time.Since(start)),
		zap.Int("response_bytes", len(out)),
		zap.Error(err))
	if err != nil {
		return "", fmt.Errorf("llm: complete: %w", err)
	}
	return out, nil
}

// Variables asks the provider to fill the slots named in req and parses the
// answer.
func (c *Client) Variables(ctx context.Context, req VariablesRequest) (Variables, error) {
	raw, err := c.WithTemperature(req.Profile.Temperature).Complete(ctx, variablesSystemPrompt(req), variablesUserPrompt(req))
	if err != nil {
		return nil, err
	}
	return ParseVariables(raw)
}

// FreeForm asks the provider for a complete test file and returns the code
// it contains.
func (c *Client) FreeForm(ctx context.Context, req VariablesRequest) (string, error) {
	raw, err := c.WithTemperature(req.Profile.Temperature).Complete(ctx, freeFormSystemPrompt(req), freeFormUserPrompt(req))
	if err != nil {
		return "", err
	}
	return ExtractCode(raw, req.Language)
}

// Review asks the provider to critique a generated test against the source
// it targets.
func (c *Client) Review(ctx context.Context, test, source, language string) (Critique, error) {
	raw, err := c.Complete(ctx, reviewSystemPrompt, reviewUserPrompt(test, source, language))
	if err != nil {
		return Critique{}, err
	}
	return ParseCritique(raw)
}

// ── Provider dispatch ─────────────────────────────────────────────────────────

func canonicalProvider(name string) string {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "anthropic", "claude", "":
		return "anthropic"
	case "openai":
		return "openai"
	case "google", "gemini":
		return "google"
	case "offline", "none":
		return "offline"
	default:
		return strings.ToLower(name)
	}
}

// defaultNewProvider dispatches to the appropriate provider implementation.
func defaultNewProvider(providerName, model string) (Provider, error) {
	if model == "" {
		model = DefaultModel(providerName)
	}
	switch canonicalProvider(providerName) {
	case "anthropic":
		return newAnthropicProvider(model)
	case "openai":
		return newOpenAIProvider(model)
	case "google":
		return newGoogleProvider(model)
	case "offline":
		return offlineProvider{}, nil
	default:
		return nil, fmt.Errorf("llm: unknown provider %q", providerName)
	}
}

// ── Anthropic provider ───────────────────────────────────────────────────────

// anthropicProvider implements Provider using the Anthropic SDK.
// anthropic.Client is a value type; the SDK's NewClient returns it by value.
type anthropicProvider struct {
	client anthropic.Client
	model  string
}

func newAnthropicProvider(model string) (Provider, error) {
	apiKey := os.Getenv("ANTHROPIC_API_KEY")
	if apiKey == "" {
		return nil, fmt.Errorf("llm: ANTHROPIC_API_KEY environment variable not set")
	}
	client := anthropic.NewClient(option.WithAPIKey(apiKey))
	return &anthropicProvider{client: client, model: model}, nil
}

func (p *anthropicProvider) Complete(
	ctx context.Context,
	systemPrompt, userPrompt string,
	maxTokens int,
	temperature float64,
) (string, error) {
	msg, err := p.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:       anthropic.Model(p.model),
		MaxTokens:   int64(maxTokens),
		Temperature: anthropic.Float(temperature),
		System: []anthropic.TextBlockParam{
			{Text: systemPrompt},
		},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(userPrompt)),
		},
	})
	if err != nil {
		return "", fmt.Errorf("anthropic: messages.new: %w", err)
	}

	var parts []string
	for _, block := range msg.Content {
		if block.Type == "text" {
			parts = append(parts, block.Text)
		}
	}
	if len(parts) == 0 {
		return "", fmt.Errorf("anthropic: response contained no text content blocks")
	}
	return strings.Join(parts, ""), nil
}

// offlineProvider never produces content; it forces every caller onto its
// fallback path.
type offlineProvider struct{}

func (offlineProvider) Complete(context.Context, string, string, int, float64) (string, error) {
	return "", ErrUnavailable
}
