package server

import (
	"context"

	"github.com/teemow/inboxtriage/internal/ai"
)

type nopAssistant struct{}

func (nopAssistant) Summarize(context.Context, string, string) string { return "" }

func (nopAssistant) Categorize(context.Context, string, string, string) string { return "" }

func (nopAssistant) AnalyzePriorities(context.Context, []ai.Digest) (ai.Analysis, error) {
	return ai.Analysis{}, nil
}
