// Package llm implements collaborators backed by the Anthropic Messages
// API: a question planner and a reranker
package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/wilson-pinto/medical-agent-poc/internal/collab"
	"github.com/wilson-pinto/medical-agent-poc/internal/metrics"
	"github.com/wilson-pinto/medical-agent-poc/pkg/api"
	"github.com/wilson-pinto/medical-agent-poc/pkg/log"
)

type (
	// Client sends single-turn prompts to a Claude model
	Client struct {
		client    anthropic.Client
		model     anthropic.Model
		maxTokens int64
	}

	// Planner phrases follow-up questions for missing documentation
	Planner struct {
		llm *Client
	}

	// Reranker asks the model to pick the best fitting service code
	Reranker struct {
		llm *Client
	}
)

const (
	plannerSystem = "You assist clinicians with billing documentation. " +
		"Write one short, polite question per service code asking for " +
		"the missing details. Reply with the questions only."

	rerankSystem = "You are a medical coding assistant. Given a clinical " +
		"note and candidate service codes, reply with the single code " +
		"that best fits the note and nothing else."
)

var (
	ErrNoText        = errors.New("model returned no text")
	ErrUnknownChoice = errors.New("model chose a code not offered")
)

var (
	_ collab.QuestionPlanner = (*Planner)(nil)
	_ collab.Reranker        = (*Reranker)(nil)
)

// New creates a Client. The API key is read from the environment by the
// SDK unless supplied in opts
func New(model string, maxTokens int64, opts ...option.RequestOption) *Client {
	return &Client{
		client:    anthropic.NewClient(opts...),
		model:     anthropic.Model(model),
		maxTokens: maxTokens,
	}
}

// NewPlanner creates a QuestionPlanner over a Client
func NewPlanner(c *Client) *Planner {
	return &Planner{llm: c}
}

// NewReranker creates a Reranker over a Client
func NewReranker(c *Client) *Reranker {
	return &Reranker{llm: c}
}

// Complete sends a prompt and returns the first text block of the reply
func (c *Client) Complete(
	ctx context.Context, op, system, prompt string,
) (string, error) {
	start := time.Now()
	msg, err := c.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     c.model,
		MaxTokens: c.maxTokens,
		System: []anthropic.TextBlockParam{
			{Type: "text", Text: system},
		},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	})
	dur := time.Since(start)
	metrics.ObserveLLMRequest(op, dur, err)
	if err != nil {
		slog.Warn("Model request failed",
			slog.String("op", op),
			log.Duration(dur),
			log.Error(err))
		return "", fmt.Errorf("%w: %w", collab.ErrUnavailable, err)
	}

	slog.Debug("Model request completed",
		slog.String("op", op),
		log.Duration(dur),
		slog.Int64("input_tokens", msg.Usage.InputTokens),
		slog.Int64("output_tokens", msg.Usage.OutputTokens))

	for _, block := range msg.Content {
		if block.Type == "text" {
			if text := strings.TrimSpace(block.Text); text != "" {
				return text, nil
			}
		}
	}
	return "", ErrNoText
}

// Plan asks the model to phrase the outstanding fields as questions
func (p *Planner) Plan(
	ctx context.Context, text string, items []api.PredictionItem,
) (string, error) {
	var b strings.Builder
	b.WriteString("Clinical note:\n")
	b.WriteString(text)
	b.WriteString("\n\nMissing details:\n")
	for _, item := range items {
		if missing := item.Unanswered(); len(missing) > 0 {
			fmt.Fprintf(&b, "- %s: %s\n",
				item.Identifier, strings.Join(missing, ", "))
		}
	}
	return p.llm.Complete(ctx, "plan", plannerSystem, b.String())
}

// Rerank asks the model to choose among candidates. A reply naming a code
// that was not offered is rejected
func (r *Reranker) Rerank(
	ctx context.Context, text string, candidates []collab.Candidate,
) (collab.Candidate, error) {
	if len(candidates) == 0 {
		return collab.Candidate{}, collab.ErrNoCandidates
	}

	var b strings.Builder
	b.WriteString("Clinical note:\n")
	b.WriteString(text)
	b.WriteString("\n\nCandidate codes:\n")
	for _, c := range candidates {
		fmt.Fprintf(&b, "- %s: %s\n", c.Identifier, c.Description)
	}

	reply, err := r.llm.Complete(ctx, "rerank", rerankSystem, b.String())
	if err != nil {
		return collab.Candidate{}, err
	}
	choice := strings.Trim(strings.Fields(reply)[0], ".,:;\"'`")
	for _, c := range candidates {
		if strings.EqualFold(c.Identifier, choice) {
			return c, nil
		}
	}
	return collab.Candidate{}, fmt.Errorf("%w: %q", ErrUnknownChoice, choice)
}
