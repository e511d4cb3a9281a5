package tasks

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/teemow/inboxtriage/internal/logging"
	"github.com/teemow/inboxtriage/internal/store"
	"github.com/teemow/inboxtriage/internal/triage"
)

// DefaultListTitle is the task list extracted tasks are exported to.
const DefaultListTitle = "Inbox Tasks"

// TaskStore is the part of the store the exporter needs.
type TaskStore interface {
	TasksForUser(ctx context.Context, userEmail string, pendingOnly bool) ([]store.StoredTask, error)
	MarkTaskExported(ctx context.Context, taskID int64, remoteID string) error
	GetEmail(ctx context.Context, id string) (triage.EmailRecord, error)
}

// ExportResult counts the outcome of one export.
type ExportResult struct {
	Exported int `json:"exported"`
	Failed   int `json:"failed"`
}

// Exporter pushes stored tasks that have not been exported yet to Google
// Tasks and records their remote IDs.
type Exporter struct {
	client    *Client
	store     TaskStore
	listTitle string
	logger    *slog.Logger
}

// NewExporter creates an exporter writing to the list titled listTitle, or
// DefaultListTitle if empty.
func NewExporter(client *Client, st TaskStore, listTitle string, logger *slog.Logger) *Exporter {
	if listTitle == "" {
		listTitle = DefaultListTitle
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Exporter{
		client:    client,
		store:     st,
		listTitle: listTitle,
		logger:    logging.WithService(logger, "tasks"),
	}
}

// Export exports the pending tasks of userEmail. A task that fails to
// export is counted and left pending for the next run.
func (e *Exporter) Export(ctx context.Context, userEmail string) (ExportResult, error) {
	var result ExportResult

	pending, err := e.store.TasksForUser(ctx, userEmail, true)
	if err != nil {
		return result, err
	}
	if len(pending) == 0 {
		return result, nil
	}

	listID, err := e.client.EnsureTaskList(ctx, e.listTitle)
	if err != nil {
		return result, err
	}

	subjects := map[string]string{}
	for _, t := range pending {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		subject, ok := subjects[t.SourceEmailID]
		if !ok {
			if email, err := e.store.GetEmail(ctx, t.SourceEmailID); err == nil {
				subject = email.Subject
			}
			subjects[t.SourceEmailID] = subject
		}

		created, err := e.client.CreateTask(ctx, listID, InputFromExtracted(t.ExtractedTask, subject))
		if err == nil {
			err = e.store.MarkTaskExported(ctx, t.ID, created.ID)
		}
		if err != nil {
			result.Failed++
			e.logger.Warn("task export failed",
				logging.UserHash(userEmail),
				logging.EmailID(t.SourceEmailID),
				logging.Err(err))
			continue
		}
		result.Exported++
	}

	e.logger.Info("tasks exported",
		logging.UserHash(userEmail),
		slog.Int("exported", result.Exported),
		slog.Int("failed", result.Failed))

	if result.Exported == 0 && result.Failed > 0 {
		return result, fmt.Errorf("all %d task exports failed", result.Failed)
	}
	return result, nil
}
