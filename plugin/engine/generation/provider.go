package generation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"

	"github.com/subpilot/subpilot/plugin/engine/timeout"
	engineerrors "github.com/subpilot/subpilot/internal/errors"
)

// Config holds the generation provider configuration.
type Config struct {
	BaseURL    string
	APIKey     string
	ChatModel  string
	MaxRetries int
	Timeout    time.Duration
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		BaseURL:    "https://api.openai.com/v1",
		APIKey:     "",
		ChatModel:  "gpt-4o-mini",
		MaxRetries: timeout.MaxGenerationRetries,
		Timeout:    timeout.GenerationTimeout,
	}
}

// Provider generates content through an OpenAI-compatible chat endpoint.
type Provider struct {
	client *openai.Client
	config *Config
}

// NewProvider creates a generation provider.
func NewProvider(cfg *Config) (*Provider, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = timeout.MaxGenerationRetries
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = timeout.GenerationTimeout
	}
	if cfg.ChatModel == "" {
		cfg.ChatModel = "gpt-4o-mini"
	}

	clientConfig := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientConfig.BaseURL = cfg.BaseURL
	}

	return &Provider{
		client: openai.NewClientWithConfig(clientConfig),
		config: cfg,
	}, nil
}

// Generate drafts subject and body for the request. A deadline overrun maps
// to a generation-timeout error so callers can distinguish it from provider
// failure.
func (p *Provider) Generate(ctx context.Context, req *Request) (*Content, error) {
	ctx, cancel := context.WithTimeout(ctx, p.config.Timeout)
	defer cancel()

	var raw string
	err := p.doWithRetry(ctx, func() error {
		resp, err := p.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
			Model: p.config.ChatModel,
			Messages: []openai.ChatCompletionMessage{
				{Role: openai.ChatMessageRoleSystem, Content: systemPrompt(req)},
				{Role: openai.ChatMessageRoleUser, Content: userPrompt(req)},
			},
		})
		if err != nil {
			return err
		}
		if len(resp.Choices) == 0 {
			return fmt.Errorf("empty chat response")
		}
		raw = resp.Choices[0].Message.Content
		return nil
	})
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, engineerrors.GenerationTimeout(err)
		}
		return nil, engineerrors.GenerationFailed("chat completion failed", err)
	}

	return parseContent(raw), nil
}

// systemPrompt frames the model as the brand's lifecycle copywriter.
func systemPrompt(req *Request) string {
	var b strings.Builder
	b.WriteString("You write short subscription lifecycle emails. ")
	b.WriteString("Reply with a subject on the first line prefixed 'Subject: ', then a blank line, then the markdown body.")
	if req.Brand != nil {
		if req.Brand.BrandName != "" {
			b.WriteString(" Brand: " + req.Brand.BrandName + ".")
		}
		if req.Brand.Tone != "" {
			b.WriteString(" Tone: " + req.Brand.Tone + ".")
		}
		if req.Brand.Signature != "" {
			b.WriteString(" Sign off with: " + req.Brand.Signature + ".")
		}
	}
	return b.String()
}

// userPrompt renders the decision and subscriber context.
func userPrompt(req *Request) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Agent: %s. Trigger: %s. Action: %s (strategy %s).\n",
		req.AgentType, req.Trigger, req.Action.ActionType, req.Action.Strategy)
	if req.SubscriberName != "" {
		fmt.Fprintf(&b, "Subscriber: %s.\n", req.SubscriberName)
	}
	if req.Plan != "" {
		fmt.Fprintf(&b, "Plan: %s.\n", req.Plan)
	}
	if req.MonthlyRevenueCents > 0 {
		fmt.Fprintf(&b, "Monthly revenue: $%.2f.\n", float64(req.MonthlyRevenueCents)/100.0)
	}
	d := req.Action.Details
	if d.DiscountPercent > 0 {
		fmt.Fprintf(&b, "Offer: %.0f%% off for %d months.\n", d.DiscountPercent, d.DiscountMonths)
	}
	if d.PauseDays > 0 {
		fmt.Fprintf(&b, "Offer: pause the subscription for %d days.\n", d.PauseDays)
	}
	if d.ExtensionDays > 0 {
		fmt.Fprintf(&b, "Offer: extend the trial by %d days.\n", d.ExtensionDays)
	}
	if d.Tone != "" {
		fmt.Fprintf(&b, "Tone: %s.\n", d.Tone)
	}
	if req.CustomNote != "" {
		fmt.Fprintf(&b, "Include this note: %s\n", req.CustomNote)
	}
	if req.MemorySummary != "" {
		b.WriteString("Subscriber context:\n" + req.MemorySummary + "\n")
	}
	return b.String()
}

// parseContent splits the model reply into subject and body.
func parseContent(raw string) *Content {
	content := &Content{}
	lines := strings.SplitN(strings.TrimSpace(raw), "\n", 2)
	if strings.HasPrefix(lines[0], "Subject:") {
		content.Subject = strings.TrimSpace(strings.TrimPrefix(lines[0], "Subject:"))
		if len(lines) > 1 {
			content.Body = strings.TrimSpace(lines[1])
		}
	} else {
		content.Body = strings.TrimSpace(raw)
	}
	return content
}

// doWithRetry executes a function with exponential backoff retry.
func (p *Provider) doWithRetry(ctx context.Context, fn func() error) error {
	var lastErr error
	for attempt := 0; attempt < p.config.MaxRetries; attempt++ {
		if err := fn(); err == nil {
			return nil
		} else {
			lastErr = err
			if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
				return err
			}
			if attempt < p.config.MaxRetries-1 {
				waitTime := time.Duration(math.Pow(2, float64(attempt))) * time.Second
				slog.Debug("generation request failed, retrying",
					"attempt", attempt+1,
					"wait_time", waitTime,
					"error", err)
				select {
				case <-time.After(waitTime):
				case <-ctx.Done():
					return ctx.Err()
				}
			}
		}
	}
	return lastErr
}

// Ensure Provider implements Generator.
var _ Generator = (*Provider)(nil)
