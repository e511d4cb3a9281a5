// Package gmail fetches recent messages from a Gmail mailbox and turns them
// into triage.EmailRecord values.
//
// Access is read-only. Bodies are flattened to plain text: text/plain
// parts are kept, text/html parts are converted with html2text, and
// attachments are skipped.
//
// Example usage:
//
//	client, err := gmail.NewClientForAccount(ctx, "work")
//	if err != nil {
//	    return err
//	}
//	emails, failed, err := client.FetchRecent(ctx, "jane@example.com", gmail.DefaultWindow, 100, nil)
package gmail
