package extract

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/teemow/inboxtriage/internal/ai"
)

// Task is one task as reported by the model, before deadline
// normalization.
type Task struct {
	TaskText string  `json:"task_text"`
	Deadline *string `json:"deadline"`
}

// Success is a well-formed model answer.
type Success struct {
	HasTasks bool   `json:"has_tasks"`
	Tasks    []Task `json:"tasks"`
}

// Failure describes why a model answer could not be used.
type Failure struct {
	Kind   ErrorKind
	Reason string
}

// Response is the decoded model answer. Exactly one of Success and Failure
// is set.
type Response struct {
	Success *Success
	Failure *Failure
}

// ParseResponse decodes the raw model output. Markdown code fences are
// stripped first. Text that is not JSON yields a KindParseError failure;
// JSON missing has_tasks or tasks, or with the wrong shape, yields
// KindMalformedResponse.
func ParseResponse(raw string) Response {
	cleaned := ai.StripCodeFence(raw)
	if cleaned == "" {
		return failure(KindParseError, "empty response")
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal([]byte(cleaned), &fields); err != nil {
		var anyValue any
		if json.Unmarshal([]byte(cleaned), &anyValue) == nil {
			return failure(KindMalformedResponse, "response is not a JSON object")
		}
		return failure(KindParseError, err.Error())
	}

	for _, key := range []string{"has_tasks", "tasks"} {
		v, ok := fields[key]
		if !ok {
			return failure(KindMalformedResponse, fmt.Sprintf("missing %q", key))
		}
		// Decoding null into a bool or slice succeeds silently.
		if bytes.Equal(bytes.TrimSpace(v), []byte("null")) {
			return failure(KindMalformedResponse, fmt.Sprintf("%q is null", key))
		}
	}

	var s Success
	if err := json.Unmarshal(fields["has_tasks"], &s.HasTasks); err != nil {
		return failure(KindMalformedResponse, "has_tasks is not a boolean")
	}
	if err := json.Unmarshal(fields["tasks"], &s.Tasks); err != nil {
		return failure(KindMalformedResponse, "tasks is not a list of tasks")
	}
	if s.Tasks == nil {
		s.Tasks = []Task{}
	}
	return Response{Success: &s}
}

func failure(kind ErrorKind, reason string) Response {
	return Response{Failure: &Failure{Kind: kind, Reason: reason}}
}
