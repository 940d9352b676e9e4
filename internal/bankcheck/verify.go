package bankcheck

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/anthropics/anthropic-sdk-go/packages/param"
	"github.com/permitprep/backend/internal/models"
	"github.com/permitprep/backend/internal/worker"
)

// DefaultVerificationModel is used when no model is configured.
const DefaultVerificationModel = "claude-sonnet-4-5-20250929"

// LLMClient is the narrow surface the verifier needs from a model provider.
type LLMClient interface {
	Generate(ctx context.Context, systemPrompt string, userPrompt string) (*LLMResponse, error)
}

type LLMResponse struct {
	Content      string
	PromptTokens int
	OutputTokens int
}

// ── APIClient (Anthropic SDK) ─────────────────────────────

type APIClient struct {
	client  *anthropic.Client
	model   string
	retries int
}

func NewAPIClient(apiKey, model string) *APIClient {
	if model == "" {
		model = DefaultVerificationModel
	}
	client := anthropic.NewClient(option.WithAPIKey(apiKey))
	return &APIClient{client: &client, model: model, retries: 2}
}

func (c *APIClient) Generate(ctx context.Context, systemPrompt string, userPrompt string) (*LLMResponse, error) {
	params := anthropic.MessageNewParams{
		Model:       anthropic.Model(c.model),
		MaxTokens:   1024,
		Temperature: param.NewOpt(0.0),
		System: []anthropic.TextBlockParam{
			{Text: systemPrompt},
		},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(userPrompt)),
		},
	}

	message, err := c.callWithRetry(ctx, params)
	if err != nil {
		return nil, err
	}

	var responseText string
	for _, block := range message.Content {
		if block.Type == "text" {
			responseText = block.Text
			break
		}
	}
	if responseText == "" {
		return nil, errors.New("no text content in API response")
	}

	return &LLMResponse{
		Content:      responseText,
		PromptTokens: int(message.Usage.InputTokens),
		OutputTokens: int(message.Usage.OutputTokens),
	}, nil
}

func (c *APIClient) callWithRetry(ctx context.Context, params anthropic.MessageNewParams) (*anthropic.Message, error) {
	var lastErr error
	for attempt := 0; attempt < c.retries; attempt++ {
		if attempt > 0 {
			wait := time.Duration(1<<uint(attempt)) * time.Second
			log.Printf("[bankcheck] retrying Anthropic call in %v (attempt %d)", wait, attempt+1)
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(wait):
			}
		}

		message, err := c.client.Messages.New(ctx, params)
		if err == nil {
			return message, nil
		}
		lastErr = err
		log.Printf("[bankcheck] Anthropic attempt %d failed: %v", attempt+1, err)
	}
	return nil, fmt.Errorf("anthropic API failed after retries: %w", lastErr)
}

// ── Verifier ──────────────────────────────────────────────

// Verifier asks a model to answer each question blind and flags any
// question where the model disagrees with the keyed answer.
type Verifier struct {
	llm     LLMClient
	workers int
}

func NewVerifier(llm LLMClient, workers int) *Verifier {
	if workers < 1 {
		workers = 1
	}
	return &Verifier{llm: llm, workers: workers}
}

type verdict struct {
	SelectedAnswer string `json:"selected_answer"`
	Confidence     string `json:"confidence"`
	Reasoning      string `json:"reasoning"`

	err error
}

// Verify returns answer-verification issues. Questions the model could not
// be asked are logged and skipped rather than failed.
func (v *Verifier) Verify(ctx context.Context, qs []models.Question) []Issue {
	pool := worker.NewPool[verdict](v.workers, v.workers)

	go func() {
		defer pool.Close()
		for _, q := range qs {
			pool.Submit(q.ID, func() verdict { return v.ask(ctx, q) })
		}
	}()

	results := make(map[string]verdict, len(qs))
	for r := range pool.Results() {
		results[r.JobID] = r.Output
	}

	// Report in input order so output is stable across runs.
	var issues []Issue
	for _, q := range qs {
		res, ok := results[q.ID]
		if !ok {
			continue
		}
		if res.err != nil {
			log.Printf("WARN: verification failed for %s: %v", q.ID, res.err)
			continue
		}
		switch {
		case res.SelectedAnswer != q.CorrectAnswer:
			issues = append(issues, Issue{QuestionID: q.ID, Field: "correct_answer", Message: fmt.Sprintf(
				"model chose %s, key says %s: %s", res.SelectedAnswer, q.CorrectAnswer, res.Reasoning)})
		case res.Confidence == "low":
			issues = append(issues, Issue{QuestionID: q.ID, Field: "correct_answer", Message: fmt.Sprintf(
				"model agreed with low confidence: %s", res.Reasoning)})
		}
	}
	return issues
}

func (v *Verifier) ask(ctx context.Context, q models.Question) verdict {
	resp, err := v.llm.Generate(ctx, verificationSystemPrompt, buildVerificationPrompt(q))
	if err != nil {
		return verdict{err: fmt.Errorf("verification call: %w", err)}
	}

	var out verdict
	if err := json.Unmarshal([]byte(stripCodeFences(resp.Content)), &out); err != nil {
		return verdict{err: fmt.Errorf("parse verification response: %w", err)}
	}
	out.SelectedAnswer = strings.ToUpper(strings.TrimSpace(out.SelectedAnswer))
	out.Confidence = strings.ToLower(strings.TrimSpace(out.Confidence))
	return out
}

const verificationSystemPrompt = `You are a driving examiner reviewing a practice question for a driver's license knowledge test. Decide which option is correct under standard US traffic law for the stated jurisdiction. Think through each option before answering. Respond with JSON only.`

func buildVerificationPrompt(q models.Question) string {
	var sb strings.Builder

	fmt.Fprintf(&sb, "JURISDICTION: %s\n\n", q.Jurisdiction)
	sb.WriteString("QUESTION:\n")
	sb.WriteString(q.Prompt)
	sb.WriteString("\n\nOPTIONS:\n")
	for _, o := range q.Options {
		fmt.Fprintf(&sb, "(%s) %s\n", o.Letter, o.Text)
	}

	sb.WriteString(`
Select the BEST answer. Respond with JSON only:
{
  "selected_answer": "B",
  "confidence": "high",
  "reasoning": "One or two sentences on why this option is correct and the others are not."
}`)

	return sb.String()
}

func stripCodeFences(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "```json") {
		s = strings.TrimSpace(strings.TrimPrefix(s, "```json"))
	} else if strings.HasPrefix(s, "```") {
		s = strings.TrimSpace(strings.TrimPrefix(s, "```"))
	}
	if strings.HasSuffix(s, "```") {
		s = strings.TrimSpace(strings.TrimSuffix(s, "```"))
	}
	return s
}
