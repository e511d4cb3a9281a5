package tasks

import (
	"context"
	"fmt"
	"time"

	"google.golang.org/api/option"
	tasks "google.golang.org/api/tasks/v1"

	"github.com/teemow/inboxtriage/internal/google"
	"github.com/teemow/inboxtriage/internal/instrumentation"
)

// Client wraps the Google Tasks service
type Client struct {
	svc     *tasks.Service
	account string
	metrics *instrumentation.Metrics
}

// NewClientForAccount creates a Tasks client authorized with the stored
// token of account.
func NewClientForAccount(ctx context.Context, account string) (*Client, error) {
	client, err := google.GetHTTPClientForAccount(ctx, account)
	if err != nil {
		return nil, fmt.Errorf("no valid Google OAuth token found for account %s: %w", account, err)
	}

	svc, err := tasks.NewService(ctx, option.WithHTTPClient(client))
	if err != nil {
		return nil, fmt.Errorf("failed to create Tasks service: %w", err)
	}
	return NewClientWithService(svc, account), nil
}

// NewClientWithService wraps an existing Tasks service.
func NewClientWithService(svc *tasks.Service, account string) *Client {
	return &Client{svc: svc, account: account}
}

// WithMetrics sets the recorder for API call metrics and returns c.
func (c *Client) WithMetrics(m *instrumentation.Metrics) *Client {
	c.metrics = m
	return c
}

// Account returns the account name this client is associated with
func (c *Client) Account() string {
	return c.account
}

func (c *Client) record(ctx context.Context, operation string, start time.Time, err error) {
	status := instrumentation.StatusSuccess
	if err != nil {
		status = instrumentation.StatusError
	}
	c.metrics.RecordGoogleAPIOperation(ctx, instrumentation.ServiceTasks, operation, status, time.Since(start))
}

// ListTaskLists lists all task lists for the authenticated user
func (c *Client) ListTaskLists(ctx context.Context) ([]TaskList, error) {
	ctx, span := instrumentation.StartGoogleAPISpan(ctx, instrumentation.ServiceTasks, instrumentation.OperationList)
	defer span.End()
	start := time.Now()

	var taskLists []TaskList
	err := c.svc.Tasklists.List().Context(ctx).Pages(ctx, func(page *tasks.TaskLists) error {
		for _, tl := range page.Items {
			taskLists = append(taskLists, toTaskList(tl))
		}
		return nil
	})
	c.record(ctx, instrumentation.OperationList, start, err)
	if err != nil {
		err = fmt.Errorf("failed to list task lists: %w", err)
		instrumentation.SetSpanError(span, err)
		return nil, err
	}
	instrumentation.SetSpanSuccess(span)
	return taskLists, nil
}

// EnsureTaskList returns the ID of the task list titled title, creating it
// if it does not exist.
func (c *Client) EnsureTaskList(ctx context.Context, title string) (string, error) {
	lists, err := c.ListTaskLists(ctx)
	if err != nil {
		return "", err
	}
	for _, tl := range lists {
		if tl.Title == title {
			return tl.ID, nil
		}
	}

	ctx, span := instrumentation.StartGoogleAPISpan(ctx, instrumentation.ServiceTasks, instrumentation.OperationCreate)
	defer span.End()
	start := time.Now()

	created, err := c.svc.Tasklists.Insert(&tasks.TaskList{Title: title}).Context(ctx).Do()
	c.record(ctx, instrumentation.OperationCreate, start, err)
	if err != nil {
		err = fmt.Errorf("failed to create task list: %w", err)
		instrumentation.SetSpanError(span, err)
		return "", err
	}
	instrumentation.SetSpanSuccess(span)
	return created.Id, nil
}

// CreateTask creates a new task
func (c *Client) CreateTask(ctx context.Context, taskListID string, input TaskInput) (*Task, error) {
	if input.Title == "" {
		return nil, fmt.Errorf("task title is required")
	}

	ctx, span := instrumentation.StartGoogleAPISpan(ctx, instrumentation.ServiceTasks, instrumentation.OperationCreate)
	defer span.End()
	start := time.Now()

	created, err := c.svc.Tasks.Insert(taskListID, input.toAPI()).Context(ctx).Do()
	c.record(ctx, instrumentation.OperationCreate, start, err)
	if err != nil {
		err = fmt.Errorf("failed to create task: %w", err)
		instrumentation.SetSpanError(span, err)
		return nil, err
	}
	instrumentation.SetSpanSuccess(span)

	result := toTask(created)
	return &result, nil
}
