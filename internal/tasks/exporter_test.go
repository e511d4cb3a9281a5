package tasks

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"google.golang.org/api/option"
	tasks "google.golang.org/api/tasks/v1"

	"github.com/teemow/inboxtriage/internal/store"
	"github.com/teemow/inboxtriage/internal/triage"
)

// fakeTasksAPI implements the task list and task insert endpoints.
type fakeTasksAPI struct {
	mu      sync.Mutex
	lists   []*tasks.TaskList
	created []*tasks.Task
	failOn  string
}

func (f *fakeTasksAPI) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	w.Header().Set("Content-Type", "application/json")

	switch {
	case r.URL.Path == "/tasks/v1/users/@me/lists" && r.Method == http.MethodGet:
		_ = json.NewEncoder(w).Encode(tasks.TaskLists{Items: f.lists})

	case r.URL.Path == "/tasks/v1/users/@me/lists" && r.Method == http.MethodPost:
		var tl tasks.TaskList
		_ = json.NewDecoder(r.Body).Decode(&tl)
		tl.Id = fmt.Sprintf("list-%d", len(f.lists)+1)
		f.lists = append(f.lists, &tl)
		_ = json.NewEncoder(w).Encode(tl)

	case strings.HasPrefix(r.URL.Path, "/tasks/v1/lists/") && r.Method == http.MethodPost:
		var task tasks.Task
		_ = json.NewDecoder(r.Body).Decode(&task)
		if f.failOn != "" && task.Title == f.failOn {
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"error":{"code":400,"message":"bad task"}}`))
			return
		}
		task.Id = fmt.Sprintf("task-%d", len(f.created)+1)
		f.created = append(f.created, &task)
		_ = json.NewEncoder(w).Encode(task)

	default:
		http.NotFound(w, r)
	}
}

func newTestClient(t *testing.T, api *fakeTasksAPI) *Client {
	t.Helper()
	srv := httptest.NewServer(api)
	t.Cleanup(srv.Close)

	svc, err := tasks.NewService(context.Background(),
		option.WithHTTPClient(srv.Client()),
		option.WithEndpoint(srv.URL+"/"),
	)
	if err != nil {
		t.Fatal(err)
	}
	return NewClientWithService(svc, "work")
}

func seedStore(t *testing.T, tasksToSave ...triage.ExtractedTask) *store.Store {
	t.Helper()
	ctx := context.Background()

	st, err := store.Open(ctx, ":memory:")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = st.Close() })

	err = st.SaveEmail(ctx, triage.EmailRecord{
		ID:         "m1",
		UserEmail:  "jane@example.com",
		Sender:     "billing@vendor.com",
		Subject:    "Invoice due",
		ReceivedAt: time.Now(),
	})
	if err != nil {
		t.Fatal(err)
	}
	if err := st.SaveTasks(ctx, "jane@example.com", tasksToSave); err != nil {
		t.Fatal(err)
	}
	return st
}

func TestExporter_Export(t *testing.T) {
	ctx := context.Background()
	deadline := time.Date(2025, time.March, 11, 17, 0, 0, 0, time.UTC)
	st := seedStore(t,
		triage.ExtractedTask{TaskText: "Pay invoice", Deadline: &deadline, SourceEmailID: "m1"},
		triage.ExtractedTask{TaskText: "File receipt", SourceEmailID: "m1"},
	)

	api := &fakeTasksAPI{}
	exporter := NewExporter(newTestClient(t, api), st, "", nil)

	result, err := exporter.Export(ctx, "jane@example.com")
	if err != nil {
		t.Fatalf("Export() error = %v", err)
	}
	if result.Exported != 2 || result.Failed != 0 {
		t.Errorf("Export() = %+v, want 2 exported", result)
	}

	if len(api.lists) != 1 || api.lists[0].Title != DefaultListTitle {
		t.Fatalf("expected the %q list to be created, got %+v", DefaultListTitle, api.lists)
	}
	if len(api.created) != 2 {
		t.Fatalf("expected 2 created tasks, got %d", len(api.created))
	}
	if api.created[0].Due != "2025-03-11T17:00:00Z" {
		t.Errorf("due = %q", api.created[0].Due)
	}
	if !strings.Contains(api.created[0].Notes, "Invoice due") {
		t.Errorf("notes = %q, want the email subject", api.created[0].Notes)
	}

	pending, err := st.TasksForUser(ctx, "jane@example.com", true)
	if err != nil {
		t.Fatal(err)
	}
	if len(pending) != 0 {
		t.Errorf("expected no pending tasks after export, got %d", len(pending))
	}

	// A second export has nothing to do.
	result, err = exporter.Export(ctx, "jane@example.com")
	if err != nil {
		t.Fatalf("second Export() error = %v", err)
	}
	if result.Exported != 0 || len(api.created) != 2 {
		t.Errorf("second export should be a no-op, got %+v", result)
	}
}

func TestExporter_ReusesExistingList(t *testing.T) {
	st := seedStore(t, triage.ExtractedTask{TaskText: "Pay invoice", SourceEmailID: "m1"})
	api := &fakeTasksAPI{lists: []*tasks.TaskList{{Id: "existing", Title: "Triage"}}}

	exporter := NewExporter(newTestClient(t, api), st, "Triage", nil)
	if _, err := exporter.Export(context.Background(), "jane@example.com"); err != nil {
		t.Fatal(err)
	}
	if len(api.lists) != 1 {
		t.Errorf("expected the existing list to be reused, got %d lists", len(api.lists))
	}
}

func TestExporter_PartialFailureStaysPending(t *testing.T) {
	ctx := context.Background()
	st := seedStore(t,
		triage.ExtractedTask{TaskText: "Pay invoice", SourceEmailID: "m1"},
		triage.ExtractedTask{TaskText: "Broken", SourceEmailID: "m1"},
	)
	api := &fakeTasksAPI{failOn: "Broken"}

	result, err := NewExporter(newTestClient(t, api), st, "", nil).Export(ctx, "jane@example.com")
	if err != nil {
		t.Fatalf("Export() error = %v", err)
	}
	if result.Exported != 1 || result.Failed != 1 {
		t.Errorf("Export() = %+v, want 1 exported and 1 failed", result)
	}

	pending, err := st.TasksForUser(ctx, "jane@example.com", true)
	if err != nil {
		t.Fatal(err)
	}
	if len(pending) != 1 || pending[0].TaskText != "Broken" {
		t.Errorf("expected the failed task to stay pending, got %+v", pending)
	}
}

func TestExporter_AllFailed(t *testing.T) {
	st := seedStore(t, triage.ExtractedTask{TaskText: "Broken", SourceEmailID: "m1"})
	api := &fakeTasksAPI{failOn: "Broken"}

	_, err := NewExporter(newTestClient(t, api), st, "", nil).Export(context.Background(), "jane@example.com")
	if err == nil {
		t.Error("expected an error when every export fails")
	}
}
