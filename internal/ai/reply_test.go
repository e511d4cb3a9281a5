package ai

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDraftReply(t *testing.T) {
	var got Request
	a := NewAssistant(CompleterFunc(func(_ context.Context, req Request) (string, error) {
		got = req
		return "```json\n{\"subject\": \"Re: Offsite\", \"body\": \"Hi Jane,\\n\\nCount me in.\\n\\nBest regards,\"}\n```", nil
	}), "", nil)

	r, err := a.DraftReply(context.Background(), "Offsite", "Are you joining the offsite?", "jane@example.com", "Work", "friendly")
	require.NoError(t, err)
	assert.Equal(t, "Re: Offsite", r.Subject)
	assert.Contains(t, r.Body, "Count me in.")

	assert.Contains(t, got.Prompt, "Tone required: friendly")
	assert.Contains(t, got.Prompt, "Category: Work")
	assert.Equal(t, 500, got.MaxTokens)
}

func TestDraftReply_DefaultsToneAndSubject(t *testing.T) {
	var prompt string
	a := NewAssistant(CompleterFunc(func(_ context.Context, req Request) (string, error) {
		prompt = req.Prompt
		return `{"subject": "", "body": "Thanks, noted."}`, nil
	}), "", nil)

	r, err := a.DraftReply(context.Background(), "Invoice #123", strings.Repeat("x", 3000), "billing@example.com", "Work", "")
	require.NoError(t, err)
	assert.Equal(t, "Re: Invoice #123", r.Subject)
	assert.Contains(t, prompt, "Tone required: "+DefaultTone)
	assert.NotContains(t, prompt, strings.Repeat("x", replyBodyLimit+1))
}

func TestDraftReply_Fallbacks(t *testing.T) {
	tests := []struct {
		name string
		out  string
		err  error
		body string
	}{
		{"quota", "", fmt.Errorf("completion: %w", ErrQuotaExceeded), ReplyQuotaExceeded},
		{"rate limit", "", ErrRateLimited, ReplyUnavailable},
		{"invalid json", "Sure, here is a reply.", nil, ReplyUnavailable},
		{"empty body", `{"subject": "Re: x", "body": " "}`, nil, ReplyUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := NewAssistant(reply(tt.out, tt.err), "", nil)
			r, err := a.DraftReply(context.Background(), "Re: Budget", "body", "a@b.c", "Work", "formal")
			assert.Error(t, err)
			assert.Equal(t, "Re: Budget", r.Subject)
			assert.Equal(t, tt.body, r.Body)
		})
	}
}
