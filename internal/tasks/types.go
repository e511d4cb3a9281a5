package tasks

import (
	"fmt"
	"time"

	tasks "google.golang.org/api/tasks/v1"

	"github.com/teemow/inboxtriage/internal/triage"
)

// Status values of a Google task.
const (
	StatusNeedsAction = "needsAction"
	StatusCompleted   = "completed"
)

// TaskList represents a Google Tasks task list
type TaskList struct {
	ID      string
	Title   string
	Updated time.Time
}

// Task represents a Google Tasks task
type Task struct {
	ID     string
	Title  string
	Notes  string
	Status string
	Due    time.Time
	Links  []Link
}

// Link represents a related link in a task
type Link struct {
	Type        string
	Description string
	Link        string
}

// TaskInput is the input for creating a task.
type TaskInput struct {
	Title string
	Notes string
	Due   time.Time
}

// GmailMessageURL returns the web link of a Gmail message.
func GmailMessageURL(messageID string) string {
	return "https://mail.google.com/mail/u/0/#all/" + messageID
}

// InputFromExtracted builds the task to create for an extracted task. The
// notes point back at the source email.
func InputFromExtracted(t triage.ExtractedTask, subject string) TaskInput {
	in := TaskInput{Title: t.TaskText}
	if t.SourceEmailID != "" {
		if subject != "" {
			in.Notes = fmt.Sprintf("From email %q\n%s", subject, GmailMessageURL(t.SourceEmailID))
		} else {
			in.Notes = GmailMessageURL(t.SourceEmailID)
		}
	}
	if t.Deadline != nil {
		in.Due = *t.Deadline
	}
	return in
}

func (in TaskInput) toAPI() *tasks.Task {
	t := &tasks.Task{
		Title:  in.Title,
		Notes:  in.Notes,
		Status: StatusNeedsAction,
	}
	// The API keeps only the date part of Due.
	if !in.Due.IsZero() {
		t.Due = in.Due.UTC().Format(time.RFC3339)
	}
	return t
}

// toTaskList converts a Google Tasks TaskList to our TaskList type
func toTaskList(tl *tasks.TaskList) TaskList {
	if tl == nil {
		return TaskList{}
	}

	result := TaskList{
		ID:    tl.Id,
		Title: tl.Title,
	}
	if tl.Updated != "" {
		if t, err := time.Parse(time.RFC3339, tl.Updated); err == nil {
			result.Updated = t
		}
	}
	return result
}

// toTask converts a Google Tasks Task to our Task type
func toTask(t *tasks.Task) Task {
	if t == nil {
		return Task{}
	}

	result := Task{
		ID:     t.Id,
		Title:  t.Title,
		Notes:  t.Notes,
		Status: t.Status,
	}
	if t.Due != "" {
		if due, err := time.Parse(time.RFC3339, t.Due); err == nil {
			result.Due = due
		}
	}
	for _, link := range t.Links {
		result.Links = append(result.Links, Link{
			Type:        link.Type,
			Description: link.Description,
			Link:        link.Link,
		})
	}
	return result
}
