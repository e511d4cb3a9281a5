package gmail

import (
	"context"
	"fmt"
	"time"

	gmail "google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"

	"github.com/teemow/inboxtriage/internal/google"
	"github.com/teemow/inboxtriage/internal/instrumentation"
	"github.com/teemow/inboxtriage/internal/triage"
)

const (
	// DefaultWindow is how far back FetchRecent looks.
	DefaultWindow = 24 * time.Hour

	// DefaultMaxMessages caps how many messages one fetch returns.
	DefaultMaxMessages = 100

	maxPageSize = 100
)

// Client reads messages from one Gmail mailbox.
type Client struct {
	svc     *gmail.UsersService
	account string
	metrics *instrumentation.Metrics
}

// NewClientForAccount creates a client authorized with the stored token of
// account.
func NewClientForAccount(ctx context.Context, account string) (*Client, error) {
	httpClient, err := google.GetHTTPClientForAccount(ctx, account)
	if err != nil {
		return nil, fmt.Errorf("no valid Google OAuth token found for account %s: %w", account, err)
	}

	svc, err := gmail.NewService(ctx, option.WithHTTPClient(httpClient))
	if err != nil {
		return nil, fmt.Errorf("failed to create Gmail service: %w", err)
	}
	return NewClientWithService(svc, account), nil
}

// NewClientWithService wraps an existing Gmail service.
func NewClientWithService(svc *gmail.Service, account string) *Client {
	return &Client{svc: svc.Users, account: account}
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

// RecentQuery returns a Gmail search query for messages received after
// now minus window.
func RecentQuery(now time.Time, window time.Duration) string {
	return fmt.Sprintf("after:%d", now.Add(-window).Unix())
}

// ListMessageIDs lists the IDs of messages matching q, newest first,
// fetching up to maxResults across pages.
func (c *Client) ListMessageIDs(ctx context.Context, q string, maxResults int64) ([]string, error) {
	ctx, span := instrumentation.StartGoogleAPISpan(ctx, instrumentation.ServiceGmail, instrumentation.OperationList)
	defer span.End()
	start := time.Now()

	ids, err := c.listMessageIDs(ctx, q, maxResults)

	status := instrumentation.StatusSuccess
	if err != nil {
		status = instrumentation.StatusError
		instrumentation.SetSpanError(span, err)
	} else {
		instrumentation.SetSpanSuccess(span)
	}
	c.metrics.RecordGoogleAPIOperation(ctx, instrumentation.ServiceGmail, instrumentation.OperationList, status, time.Since(start))
	return ids, err
}

func (c *Client) listMessageIDs(ctx context.Context, q string, maxResults int64) ([]string, error) {
	var ids []string
	pageToken := ""

	for {
		remaining := maxResults - int64(len(ids))
		if remaining <= 0 {
			break
		}
		pageSize := remaining
		if pageSize > maxPageSize {
			pageSize = maxPageSize
		}

		req := c.svc.Messages.List("me").Q(q).MaxResults(pageSize).Context(ctx)
		if pageToken != "" {
			req = req.PageToken(pageToken)
		}
		res, err := req.Do()
		if err != nil {
			return nil, fmt.Errorf("failed to list messages: %w", err)
		}

		for _, m := range res.Messages {
			ids = append(ids, m.Id)
		}

		if res.NextPageToken == "" {
			break
		}
		pageToken = res.NextPageToken
	}

	if int64(len(ids)) > maxResults {
		ids = ids[:maxResults]
	}
	return ids, nil
}

// GetMessage retrieves a message in full format.
func (c *Client) GetMessage(ctx context.Context, messageID string) (*gmail.Message, error) {
	ctx, span := instrumentation.StartGoogleAPISpan(ctx, instrumentation.ServiceGmail, instrumentation.OperationGet)
	defer span.End()
	start := time.Now()

	msg, err := c.svc.Messages.Get("me", messageID).Format("full").Context(ctx).Do()

	status := instrumentation.StatusSuccess
	if err != nil {
		status = instrumentation.StatusError
		err = fmt.Errorf("failed to get message %s: %w", messageID, err)
		instrumentation.SetSpanError(span, err)
	} else {
		instrumentation.SetSpanSuccess(span)
	}
	c.metrics.RecordGoogleAPIOperation(ctx, instrumentation.ServiceGmail, instrumentation.OperationGet, status, time.Since(start))
	return msg, err
}

// FetchRecent returns the messages of the last window as email records
// owned by userEmail. skip, if non-nil, is consulted before a message is
// downloaded; messages it reports true for are left out.
//
// A message that fails to download is reported through the returned
// error slice and does not stop the fetch.
func (c *Client) FetchRecent(ctx context.Context, userEmail string, window time.Duration, maxResults int64, skip func(id string) bool) ([]triage.EmailRecord, []error, error) {
	if window <= 0 {
		window = DefaultWindow
	}
	if maxResults <= 0 {
		maxResults = DefaultMaxMessages
	}

	ids, err := c.ListMessageIDs(ctx, RecentQuery(time.Now(), window), maxResults)
	if err != nil {
		return nil, nil, err
	}

	var (
		records []triage.EmailRecord
		errs    []error
	)
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return records, errs, err
		}
		if skip != nil && skip(id) {
			continue
		}
		msg, err := c.GetMessage(ctx, id)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		records = append(records, ToEmailRecord(msg, userEmail))
	}
	return records, errs, nil
}
