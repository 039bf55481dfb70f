package summary

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"text/template"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

// USD per million tokens, claude-sonnet-4-5 list prices.
const (
	inputPricePerMillion  = 3.00
	outputPricePerMillion = 15.00
)

const systemPrompt = `You are an expert content analyst specialising in YouTube video summarization. Your audience is a content creator who wants to quickly understand what their peers and competitors are publishing so they can identify trends, gaps, and opportunities.

When summarising, follow these rules:
1. Be concise and factual. Do not add opinions or value judgements.
2. Organise your output exactly as specified in the user message.
3. For auto-generated transcripts the input may lack punctuation or contain filler words. Focus on substance, not surface-level errors.
4. For metadata-only summaries clearly note the summary is limited and derived from the title and description, not the full video.
5. Keep the total response under 600 words.`

var userPrompt = template.Must(template.New("user").Parse(`Please summarise the following YouTube video.

**Channel:** {{.SourceName}}
**Title:** {{.Title}}
**Source:** {{.Label}}

<transcript>
{{.Text}}
</transcript>

Produce your summary in exactly this format (use these Markdown headings):

## Overview
(2-3 sentences covering what the video is about)

## Key Points
(3-7 bullet points with the most important ideas, findings, or arguments)

## Notable Quotes or Claims
(1-3 direct quotes or strong claims from the transcript, or "None identified" if the source is metadata-only)

## Takeaways for Content Creators
(2-4 bullet points: trends observed, topics gaining traction, or gaps a creator could address)

## Tags
(5-10 single-word or short-phrase topic tags, comma-separated)
`))

var tierLabels = map[int]string{
	1: "Full transcript (manual captions)",
	2: "Full transcript (auto-generated via Whisper)",
	3: "Metadata only (title + description), transcript unavailable",
}

const generatedCaptionsLabel = "Full transcript (auto-generated captions)"

// TierLabel describes where the text handed to the model came from.
func TierLabel(tier int) string {
	if label, ok := tierLabels[tier]; ok {
		return label
	}
	return fmt.Sprintf("Tier %d", tier)
}

type Request struct {
	ItemID     string
	SourceName string
	Title      string
	Text       string
	Tier       int

	// GeneratedCaptions is set when tier-1 text came from auto-generated captions.
	GeneratedCaptions bool
}

func (r Request) sourceLabel() string {
	if r.Tier == 1 && r.GeneratedCaptions {
		return generatedCaptionsLabel
	}
	return TierLabel(r.Tier)
}

type Result struct {
	Text         string
	InputTokens  int64
	OutputTokens int64
}

// EstimatedCost is an upper bound; cached system-prompt reads are billed lower.
func (r Result) EstimatedCost() float64 {
	return float64(r.InputTokens)/1_000_000*inputPricePerMillion +
		float64(r.OutputTokens)/1_000_000*outputPricePerMillion
}

type Generator struct {
	client    anthropic.Client
	model     string
	maxTokens int64
}

// NewGenerator creates a Claude-backed generator. Extra request options
// (base URL, retries, HTTP client) are passed through to the SDK client.
func NewGenerator(apiKey, model string, maxTokens int, opts ...option.RequestOption) (*Generator, error) {
	if apiKey == "" {
		return nil, errors.New("anthropic API key is required")
	}
	if maxTokens <= 0 {
		maxTokens = 1024
	}

	opts = append([]option.RequestOption{option.WithAPIKey(apiKey)}, opts...)
	return &Generator{
		client:    anthropic.NewClient(opts...),
		model:     model,
		maxTokens: int64(maxTokens),
	}, nil
}

func (g *Generator) Model() string {
	return g.model
}

// Generate asks the model for a structured summary. Failures are returned
// as-is; retries are left to the SDK client.
func (g *Generator) Generate(ctx context.Context, req Request) (Result, error) {
	prompt, err := buildPrompt(req)
	if err != nil {
		return Result{}, err
	}

	slog.Debug("Requesting summary", "item_id", req.ItemID, "tier", req.Tier, "chars", len(req.Text))

	resp, err := g.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(g.model),
		MaxTokens: g.maxTokens,
		System: []anthropic.TextBlockParam{{
			Text:         systemPrompt,
			CacheControl: anthropic.NewCacheControlEphemeralParam(),
		}},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	})
	if err != nil {
		return Result{}, fmt.Errorf("anthropic API call failed: %w", err)
	}

	var text strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}
	if strings.TrimSpace(text.String()) == "" {
		return Result{}, errors.New("anthropic API returned no text content")
	}

	res := Result{
		Text:         text.String(),
		InputTokens:  resp.Usage.InputTokens,
		OutputTokens: resp.Usage.OutputTokens,
	}

	slog.Info("Summary generated",
		"item_id", req.ItemID,
		"input_tokens", res.InputTokens,
		"output_tokens", res.OutputTokens,
		"estimated_cost_usd", fmt.Sprintf("%.4f", res.EstimatedCost()))

	return res, nil
}

func buildPrompt(req Request) (string, error) {
	var buf bytes.Buffer
	err := userPrompt.Execute(&buf, struct {
		Request
		Label string
	}{req, req.sourceLabel()})
	if err != nil {
		return "", fmt.Errorf("failed to render prompt: %w", err)
	}
	return buf.String(), nil
}
