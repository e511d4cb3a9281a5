package threading

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"io"
	"strings"

	"github.com/teemow/inboxtriage/internal/similarity"
	"github.com/teemow/inboxtriage/internal/triage"
)

const (
	// DefaultThreshold is the similarity an earlier subject must strictly
	// exceed for a new email to join its thread.
	DefaultThreshold = 85.0

	// IDPrefix starts every minted thread ID.
	IDPrefix = "smart-"

	idBytes = 4
)

// ScoreFunc scores the similarity of two subjects in [0, 100].
type ScoreFunc func(a, b string) float64

// Assignment is the outcome of assigning one email to a thread.
type Assignment struct {
	ThreadID string
	// Joined is true when the email matched an earlier thread.
	Joined bool
	// MatchedEmailID is the earlier email with the best score, if any.
	MatchedEmailID string
	Score          float64
}

// Assigner groups emails into smart threads by subject similarity.
// An Assigner holds no per-user state and is safe for concurrent use
// as long as its random source is.
type Assigner struct {
	threshold float64
	score     ScoreFunc
	random    io.Reader
}

// Option configures an Assigner.
type Option func(*Assigner)

// WithThreshold overrides DefaultThreshold.
func WithThreshold(threshold float64) Option {
	return func(a *Assigner) {
		a.threshold = threshold
	}
}

// WithRandom sets the source used to mint thread IDs.
func WithRandom(r io.Reader) Option {
	return func(a *Assigner) {
		a.random = r
	}
}

// WithScoreFunc replaces the subject scorer.
func WithScoreFunc(fn ScoreFunc) Option {
	return func(a *Assigner) {
		a.score = fn
	}
}

// NewAssigner creates an Assigner using similarity.Score and crypto/rand.
func NewAssigner(opts ...Option) *Assigner {
	a := &Assigner{
		threshold: DefaultThreshold,
		score:     similarity.Score,
		random:    rand.Reader,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Assign picks the thread for an email with the given subject.
//
// Only history entries owned by userEmail are considered; entries with an
// empty UserEmail are assumed to belong to the caller. An empty userEmail
// only sees those unowned entries. Every candidate is
// scored; the strictly highest score above the threshold wins and ties keep
// the earliest entry. When nothing qualifies a new ID is minted.
func (a *Assigner) Assign(userEmail, subject string, history []triage.EmailRecord) (Assignment, error) {
	best := Assignment{}
	for _, prior := range history {
		if !sameUser(userEmail, prior.UserEmail) || prior.SmartThreadID == "" {
			continue
		}
		s := a.score(subject, prior.Subject)
		if s > a.threshold && s > best.Score {
			best = Assignment{
				ThreadID:       prior.SmartThreadID,
				Joined:         true,
				MatchedEmailID: prior.ID,
				Score:          s,
			}
		}
	}
	if best.Joined {
		return best, nil
	}

	id, err := a.NewThreadID()
	if err != nil {
		return Assignment{}, err
	}
	return Assignment{ThreadID: id}, nil
}

// AssignBatch assigns a thread to every email in order. Each assigned email
// is appended to the working history, so later emails in the batch can join
// threads started earlier in the same batch. Earlier assignments are never
// revisited. The returned slice is parallel to emails.
func (a *Assigner) AssignBatch(userEmail string, emails, history []triage.EmailRecord) ([]Assignment, error) {
	working := make([]triage.EmailRecord, len(history), len(history)+len(emails))
	copy(working, history)

	out := make([]Assignment, 0, len(emails))
	for _, e := range emails {
		asg, err := a.Assign(userEmail, e.Subject, working)
		if err != nil {
			return out, fmt.Errorf("assign thread for email %s: %w", e.ID, err)
		}
		out = append(out, asg)

		e.SmartThreadID = asg.ThreadID
		if e.UserEmail == "" {
			e.UserEmail = userEmail
		}
		working = append(working, e)
	}
	return out, nil
}

// NewThreadID mints "smart-" followed by 8 hex characters.
// IDs carry 32 bits of entropy; collisions are possible but unlikely.
func (a *Assigner) NewThreadID() (string, error) {
	buf := make([]byte, idBytes)
	if _, err := io.ReadFull(a.random, buf); err != nil {
		return "", fmt.Errorf("failed to mint thread id: %w", err)
	}
	return IDPrefix + hex.EncodeToString(buf), nil
}

// IsThreadID reports whether id has the shape of a minted thread ID.
func IsThreadID(id string) bool {
	if !strings.HasPrefix(id, IDPrefix) {
		return false
	}
	rest := id[len(IDPrefix):]
	if len(rest) != hex.EncodedLen(idBytes) {
		return false
	}
	_, err := hex.DecodeString(rest)
	return err == nil
}

func sameUser(userEmail, owner string) bool {
	if owner == "" {
		return true
	}
	if userEmail == "" {
		return false
	}
	return strings.EqualFold(userEmail, owner)
}
