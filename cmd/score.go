package cmd

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/teemow/inboxtriage/internal/config"
	"github.com/teemow/inboxtriage/internal/extract"
	"github.com/teemow/inboxtriage/internal/priority"
	"github.com/teemow/inboxtriage/internal/similarity"
	"github.com/teemow/inboxtriage/internal/threading"
	"github.com/teemow/inboxtriage/internal/triage"
)

func newScoreCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "score",
		Short: "Run a single triage step from the shell",
		Long: `Run one of the deterministic triage steps on the given input and print
the result as JSON. No mail is fetched and nothing is stored.`,
	}

	cmd.AddCommand(newScoreSimilarityCmd())
	cmd.AddCommand(newScorePrefilterCmd())
	cmd.AddCommand(newScorePriorityCmd())
	return cmd
}

func newScoreSimilarityCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "similarity <subject-a> <subject-b>",
		Short: "Score how similar two subjects are (0-100)",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			score := similarity.Score(args[0], args[1])
			return writeJSON(cmd.OutOrStdout(), map[string]any{
				"score":        score,
				"threshold":    threading.DefaultThreshold,
				"would_thread": score > threading.DefaultThreshold,
			})
		},
	}
}

func newScorePrefilterCmd() *cobra.Command {
	var (
		subject  string
		body     string
		category string
		prio     string
	)

	cmd := &cobra.Command{
		Use:   "prefilter",
		Short: "Check whether an email would be sent to task extraction",
		RunE: func(cmd *cobra.Command, args []string) error {
			var p *triage.Priority
			if prio != "" {
				parsed, ok := triage.ParsePriority(prio)
				if !ok {
					return fmt.Errorf("invalid priority %q: must be High, Medium or Low", prio)
				}
				p = &parsed
			}
			ok, reason := extract.Prefilter(subject, body, category, p)
			return writeJSON(cmd.OutOrStdout(), map[string]any{
				"should_extract": ok,
				"reason":         reason,
			})
		},
	}

	cmd.Flags().StringVar(&subject, "subject", "", "Email subject")
	cmd.Flags().StringVar(&body, "body", "", "Email body")
	cmd.Flags().StringVar(&category, "category", "", "Email category, e.g. Work or Promotions")
	cmd.Flags().StringVar(&prio, "priority", "", "Final priority: High, Medium or Low")
	return cmd
}

func newScorePriorityCmd() *cobra.Command {
	var (
		profilePath string
		user        string
		sender      string
		subject     string
		body        string
		aiPriority  string
		interests   string
	)

	cmd := &cobra.Command{
		Use:   "priority",
		Short: "Resolve the final priority of an email",
		Long: `Resolve the final priority from the AI suggestion, the user's sender
rules and interests. Rules and interests come from the triage profile entry
of --user; --interests (a JSON array) replaces the profile's interests.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ai := triage.PriorityMedium
			if aiPriority != "" {
				parsed, ok := triage.ParsePriority(aiPriority)
				if !ok {
					return fmt.Errorf("invalid AI priority %q: must be High, Medium or Low", aiPriority)
				}
				ai = parsed
			}

			profile, err := config.LoadProfile(profilePath)
			if err != nil {
				return err
			}
			u := profile.User(user)
			pref := u.Preference()
			if cmd.Flags().Changed("interests") {
				pref.Interests = priority.ParseInterests(interests)
			}

			res := priority.Resolve(sender, subject, body, ai, pref, u.SenderRules)
			return writeJSON(cmd.OutOrStdout(), map[string]any{
				"priority":   res.Priority,
				"stage":      res.Stage,
				"rule":       res.Rule,
				"interest":   res.Interest,
				"auto_reply": priority.AutoReplyRule(sender, u.SenderRules),
			})
		},
	}

	cmd.Flags().StringVar(&profilePath, "profile", config.DefaultProfilePath, "Triage profile YAML file")
	cmd.Flags().StringVar(&user, "user", "", "Mailbox owner whose rules apply")
	cmd.Flags().StringVar(&sender, "sender", "", "Sender address")
	cmd.Flags().StringVar(&subject, "subject", "", "Email subject")
	cmd.Flags().StringVar(&body, "body", "", "Email body")
	cmd.Flags().StringVar(&aiPriority, "ai-priority", "", "Priority suggested by the model (default: Medium)")
	cmd.Flags().StringVar(&interests, "interests", "", `Interests as a JSON array, e.g. '["kubernetes","hiring"]'`)
	return cmd
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
