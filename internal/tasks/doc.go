// Package tasks exports extracted tasks to Google Tasks.
//
// The Client covers the few Tasks API calls the exporter needs: listing
// task lists, creating a list and inserting a task. The Exporter reads
// pending tasks from the store, creates one Google task per extracted
// task with its deadline as the due date and a link back to the email,
// and records the remote task ID so a task is exported once.
//
// Example usage:
//
//	client, err := tasks.NewClientForAccount(ctx, "work")
//	if err != nil {
//	    return err
//	}
//	exporter := tasks.NewExporter(client, st, "", logger)
//	result, err := exporter.Export(ctx, "jane@example.com")
package tasks
