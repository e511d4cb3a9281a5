package google

import (
	gmail "google.golang.org/api/gmail/v1"
	tasks "google.golang.org/api/tasks/v1"
)

// DefaultOAuthScopes are requested for every account: read-only mail
// access for triage and Tasks access for exporting extracted tasks.
var DefaultOAuthScopes = []string{
	"openid",
	"https://www.googleapis.com/auth/userinfo.email",
	gmail.GmailReadonlyScope,
	tasks.TasksScope,
}
