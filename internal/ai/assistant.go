package ai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/teemow/inboxtriage/internal/logging"
	"github.com/teemow/inboxtriage/internal/triage"
)

const (
	summaryBodyLimit    = 1500
	categoryBodyLimit   = 1000
	fallbackSummaryWord = 40
	analysisEmailLimit  = 30
)

// Fallback overall summaries used when batch analysis fails.
const (
	SummaryQuotaExceeded = "AI service unavailable (quota exceeded). Showing raw emails."
	SummaryUnavailable   = "Could not generate summary due to temporary AI service error."
	SummaryNoEmails      = "No emails to analyze."
)

// Assistant runs the auxiliary AI steps of a triage run: summaries,
// categories and batch priorities. Every method degrades to a
// deterministic fallback when the completer fails.
type Assistant struct {
	completer Completer
	model     string
	logger    *slog.Logger
}

// NewAssistant creates an Assistant. An empty model selects DefaultModel.
func NewAssistant(completer Completer, model string, logger *slog.Logger) *Assistant {
	if model == "" {
		model = DefaultModel
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Assistant{
		completer: completer,
		model:     model,
		logger:    logging.WithService(logger, "ai"),
	}
}

// Summarize returns a one sentence summary of the email. On failure it
// falls back to the first 40 words of the body. An empty body yields the
// subject.
func (a *Assistant) Summarize(ctx context.Context, subject, body string) string {
	if strings.TrimSpace(body) == "" {
		return subject
	}

	prompt := fmt.Sprintf("Summarize this email in 1 concise sentence (max 20 words):\n\nSubject: %s\nBody: %s",
		subject, truncate(body, summaryBodyLimit))

	out, err := a.completer.Complete(ctx, Request{
		Model:       a.model,
		Prompt:      prompt,
		MaxTokens:   60,
		Temperature: 0.3,
	})
	if err != nil || out == "" {
		a.logger.Debug("summary fallback", logging.Err(err))
		return FallbackSummary(body)
	}
	return out
}

// FallbackSummary returns the first 40 words of body, with "..." appended
// when the body was longer.
func FallbackSummary(body string) string {
	words := strings.Fields(body)
	if len(words) <= fallbackSummaryWord {
		return strings.Join(words, " ")
	}
	return strings.Join(words[:fallbackSummaryWord], " ") + "..."
}

// Categorize assigns a category, trying sender based rules before asking
// the model. Unknown or failed answers become Personal.
func (a *Assistant) Categorize(ctx context.Context, subject, body, sender string) string {
	if c := InferCategoryFromSender(sender); c != "" {
		return c
	}

	prompt := fmt.Sprintf(`Analyze the email and assign the MOST appropriate category.

You MUST choose from these categories ONLY:
- %s

Email details:
Sender: %s
Subject: %s
Body: %s

Return JSON in this exact format:
{"category": "CategoryName"}`,
		strings.Join(categoryChoices(), "\n- "), sender, subject, truncate(body, categoryBodyLimit))

	out, err := a.completer.Complete(ctx, Request{
		Model:     a.model,
		Prompt:    prompt,
		MaxTokens: 150,
	})
	if err != nil {
		a.logger.Debug("category fallback", logging.Err(err))
		return triage.CategoryPersonal
	}

	var parsed struct {
		Category string `json:"category"`
	}
	if err := json.Unmarshal([]byte(StripCodeFence(out)), &parsed); err != nil {
		return triage.CategoryPersonal
	}
	return normalizeCategory(parsed.Category)
}

// categoryChoices is the list offered to the model. Offers and promotions
// are presented as one choice.
func categoryChoices() []string {
	out := make([]string, 0, len(triage.Categories))
	for _, c := range triage.Categories {
		if c == triage.CategoryPromotions {
			c = "Offers/Promotions"
		}
		out = append(out, c)
	}
	return out
}

func normalizeCategory(c string) string {
	c = strings.TrimSpace(c)
	if strings.EqualFold(c, "Offers/Promotions") {
		return triage.CategoryPromotions
	}
	for _, known := range triage.Categories {
		if strings.EqualFold(c, known) {
			return known
		}
	}
	if strings.EqualFold(c, triage.CategoryOffers) {
		return triage.CategoryOffers
	}
	return triage.CategoryPersonal
}

// InferCategoryFromSender classifies well known sender addresses without
// calling the model. It returns "" when no rule applies.
func InferCategoryFromSender(sender string) string {
	s := strings.ToLower(sender)
	switch {
	case s == "":
		return ""
	case strings.Contains(s, "vit.edu"):
		return triage.CategoryCollege
	case strings.Contains(s, "bank") || strings.Contains(s, "hdfc") || strings.Contains(s, "sbi"):
		return triage.CategoryBankFinance
	case strings.Contains(s, "no-reply") || strings.Contains(s, "newsletter"):
		return triage.CategorySubscriptions
	case strings.Contains(s, "security"):
		return triage.CategorySecurityAlert
	}
	return ""
}

// Digest is the compact form of an email sent for batch analysis.
type Digest struct {
	From    string
	Subject string
	Summary string
}

// SubjectPriority is the model's priority for one subject.
type SubjectPriority struct {
	Subject  string          `json:"subject"`
	Priority triage.Priority `json:"priority"`
}

// Analysis is the result of AnalyzePriorities.
type Analysis struct {
	OverallSummary string            `json:"overall_summary"`
	Priorities     []SubjectPriority `json:"priorities"`
}

// PriorityFor returns the priority the model gave to subject.
func (an Analysis) PriorityFor(subject string) (triage.Priority, bool) {
	for _, p := range an.Priorities {
		if p.Subject == subject {
			return p.Priority, true
		}
	}
	return "", false
}

// HasHigh reports whether any email was rated High.
func (an Analysis) HasHigh() bool {
	for _, p := range an.Priorities {
		if p.Priority == triage.PriorityHigh {
			return true
		}
	}
	return false
}

// AnalyzePriorities asks the model for an overall summary and a priority
// per email. Only the first 30 digests are sent. On failure the returned
// Analysis has no priorities and a fallback summary, and the error says
// why.
func (a *Assistant) AnalyzePriorities(ctx context.Context, digests []Digest) (Analysis, error) {
	if len(digests) == 0 {
		return Analysis{OverallSummary: SummaryNoEmails, Priorities: []SubjectPriority{}}, nil
	}
	if len(digests) > analysisEmailLimit {
		digests = digests[:analysisEmailLimit]
	}

	var b strings.Builder
	for i, d := range digests {
		if i > 0 {
			b.WriteString("\n")
		}
		fmt.Fprintf(&b, "From: %s\nSubject: %s\nSummary: %s", d.From, d.Subject, d.Summary)
	}

	prompt := `You are an intelligent email assistant. You MUST return a VALID JSON ONLY.

Based on these emails, produce:
1. A detailed overall summary.
2. Priority for each email: High / Medium / Low.

Return JSON in this EXACT format:
{
  "overall_summary": "summary text",
  "priorities": [
    {"subject": "subject text", "priority": "High"}
  ]
}

Emails:
` + b.String()

	out, err := a.completer.Complete(ctx, Request{
		Model:       a.model,
		Prompt:      prompt,
		MaxTokens:   1200,
		Temperature: 0.2,
	})
	if err != nil {
		return fallbackAnalysis(err), err
	}

	var raw struct {
		OverallSummary string `json:"overall_summary"`
		Priorities     []struct {
			Subject  string `json:"subject"`
			Priority string `json:"priority"`
		} `json:"priorities"`
	}
	if err := json.Unmarshal([]byte(StripCodeFence(out)), &raw); err != nil {
		err = fmt.Errorf("decode analysis: %w", err)
		return fallbackAnalysis(err), err
	}

	an := Analysis{OverallSummary: raw.OverallSummary, Priorities: []SubjectPriority{}}
	for _, p := range raw.Priorities {
		// Labels outside High/Medium/Low are dropped.
		if prio, ok := triage.ParsePriority(p.Priority); ok {
			an.Priorities = append(an.Priorities, SubjectPriority{Subject: p.Subject, Priority: prio})
		}
	}
	return an, nil
}

func fallbackAnalysis(err error) Analysis {
	summary := SummaryUnavailable
	if errors.Is(err, ErrQuotaExceeded) {
		summary = SummaryQuotaExceeded
	}
	return Analysis{OverallSummary: summary, Priorities: []SubjectPriority{}}
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
