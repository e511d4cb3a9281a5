package ai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

const replyBodyLimit = 2000

// DefaultTone is used when DraftReply is called without a tone.
const DefaultTone = "professional"

// Fallback reply bodies used when drafting fails.
const (
	ReplyQuotaExceeded = "AI quota exceeded. Please check billing or try again later."
	ReplyUnavailable   = "Could not generate reply."
)

// Reply is a drafted answer to an email. It is never sent.
type Reply struct {
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

// DraftReply asks the model for a reply in the given tone. On failure the
// returned Reply carries "Re: <subject>" and a fallback body, and the
// error says why.
func (a *Assistant) DraftReply(ctx context.Context, subject, body, sender, category, tone string) (Reply, error) {
	if strings.TrimSpace(tone) == "" {
		tone = DefaultTone
	}

	prompt := fmt.Sprintf(`You are an intelligent email assistant. Write a reply to this email.

Sender: %s
Subject: %s
Category: %s

Email Body:
%s

Tone required: %s

Instructions:
1. Return VALID JSON ONLY.
2. Do NOT add placeholders like [Your Name]. End with "Best regards," when no name is known.
3. The JSON must have two fields: "subject" (e.g. Re: ...) and "body" (the email content).

Example JSON:
{"subject": "Re: Meeting", "body": "Hi there,\n\nI would love to attend.\n\nBest regards,\n"}`,
		sender, subject, category, truncate(body, replyBodyLimit), tone)

	out, err := a.completer.Complete(ctx, Request{
		Model:       a.model,
		Prompt:      prompt,
		MaxTokens:   500,
		Temperature: 0.4,
	})
	if err != nil {
		return fallbackReply(subject, err), err
	}

	var r Reply
	if err := json.Unmarshal([]byte(StripCodeFence(out)), &r); err != nil {
		err = fmt.Errorf("decode reply: %w", err)
		return fallbackReply(subject, err), err
	}
	if strings.TrimSpace(r.Body) == "" {
		err := errors.New("decode reply: empty body")
		return fallbackReply(subject, err), err
	}
	if strings.TrimSpace(r.Subject) == "" {
		r.Subject = replySubject(subject)
	}
	return r, nil
}

func fallbackReply(subject string, err error) Reply {
	body := ReplyUnavailable
	if errors.Is(err, ErrQuotaExceeded) {
		body = ReplyQuotaExceeded
	}
	return Reply{Subject: replySubject(subject), Body: body}
}

// replySubject prefixes subject with "Re: " unless it already has it.
func replySubject(subject string) string {
	if strings.HasPrefix(strings.ToLower(strings.TrimSpace(subject)), "re:") {
		return subject
	}
	return "Re: " + subject
}
