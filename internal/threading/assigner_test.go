package threading

import (
	"bytes"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teemow/inboxtriage/internal/triage"
)

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) { return 0, errors.New("entropy exhausted") }

func TestAssign_JoinsSimilarThread(t *testing.T) {
	a := NewAssigner()
	history := []triage.EmailRecord{
		{ID: "m1", UserEmail: "me@example.com", Subject: "Invoice #123", SmartThreadID: "smart-0000aaaa"},
	}

	got, err := a.Assign("me@example.com", "Re: Invoice #123", history)
	require.NoError(t, err)
	assert.True(t, got.Joined)
	assert.Equal(t, "smart-0000aaaa", got.ThreadID)
	assert.Equal(t, "m1", got.MatchedEmailID)
}

func TestAssign_BelowThresholdMintsNewID(t *testing.T) {
	a := NewAssigner()
	history := []triage.EmailRecord{
		{ID: "m1", Subject: "Invoice #123", SmartThreadID: "smart-0000aaaa"},
	}

	// Scores about 71, under the threshold.
	got, err := a.Assign("", "Invoice #123 Reminder", history)
	require.NoError(t, err)
	assert.False(t, got.Joined)
	assert.NotEqual(t, "smart-0000aaaa", got.ThreadID)
	assert.True(t, IsThreadID(got.ThreadID))
}

func TestAssign_FreshIDsDiffer(t *testing.T) {
	a := NewAssigner()

	first, err := a.Assign("me@example.com", "Totally unrelated topic", nil)
	require.NoError(t, err)
	second, err := a.Assign("me@example.com", "Totally unrelated topic", nil)
	require.NoError(t, err)

	assert.True(t, IsThreadID(first.ThreadID))
	assert.True(t, IsThreadID(second.ThreadID))
	assert.NotEqual(t, first.ThreadID, second.ThreadID)
}

func TestAssign_DeterministicRandom(t *testing.T) {
	a := NewAssigner(WithRandom(bytes.NewReader([]byte{0xde, 0xad, 0xbe, 0xef})))
	got, err := a.Assign("", "Hello there friend", nil)
	require.NoError(t, err)
	assert.Equal(t, "smart-deadbeef", got.ThreadID)
}

func TestAssign_StrictThreshold(t *testing.T) {
	score := func(a, b string) float64 { return 85 }
	a := NewAssigner(WithScoreFunc(score), WithRandom(bytes.NewReader([]byte{1, 2, 3, 4})))

	got, err := a.Assign("", "anything", []triage.EmailRecord{{ID: "m1", Subject: "x", SmartThreadID: "smart-11111111"}})
	require.NoError(t, err)
	assert.False(t, got.Joined)
	assert.Equal(t, "smart-01020304", got.ThreadID)
}

func TestAssign_HighestScoreWinsTiesKeepFirst(t *testing.T) {
	scores := map[string]float64{"a": 90, "b": 95, "c": 95, "d": 88}
	score := func(_, prior string) float64 { return scores[prior] }
	a := NewAssigner(WithScoreFunc(score))

	history := []triage.EmailRecord{
		{ID: "1", Subject: "a", SmartThreadID: "smart-aaaaaaaa"},
		{ID: "2", Subject: "b", SmartThreadID: "smart-bbbbbbbb"},
		{ID: "3", Subject: "c", SmartThreadID: "smart-cccccccc"},
		{ID: "4", Subject: "d", SmartThreadID: "smart-dddddddd"},
	}

	got, err := a.Assign("", "new", history)
	require.NoError(t, err)
	assert.Equal(t, "smart-bbbbbbbb", got.ThreadID)
	assert.Equal(t, "2", got.MatchedEmailID)
	assert.Equal(t, 95.0, got.Score)
}

func TestAssign_IgnoresOtherUsers(t *testing.T) {
	a := NewAssigner()
	history := []triage.EmailRecord{
		{ID: "m1", UserEmail: "someone@else.com", Subject: "Invoice #123", SmartThreadID: "smart-0000aaaa"},
	}

	got, err := a.Assign("me@example.com", "Invoice #123", history)
	require.NoError(t, err)
	assert.False(t, got.Joined)
}

func TestAssign_EmptyCallerSkipsOwnedHistory(t *testing.T) {
	a := NewAssigner()
	history := []triage.EmailRecord{
		{ID: "m1", UserEmail: "other@example.com", Subject: "Invoice #123", SmartThreadID: "smart-0000aaaa"},
		{ID: "m2", Subject: "Budget review", SmartThreadID: "smart-0000bbbb"},
	}

	got, err := a.Assign("", "Invoice #123", history)
	require.NoError(t, err)
	assert.False(t, got.Joined)

	got, err = a.Assign("", "Budget review", history)
	require.NoError(t, err)
	assert.True(t, got.Joined)
	assert.Equal(t, "smart-0000bbbb", got.ThreadID)
}

func TestAssign_RandomFailure(t *testing.T) {
	a := NewAssigner(WithRandom(failingReader{}))
	_, err := a.Assign("", "Weekly planning", nil)
	assert.Error(t, err)
}

func TestAssignBatch_LaterEmailsJoinEarlierOnes(t *testing.T) {
	a := NewAssigner()
	emails := []triage.EmailRecord{
		{ID: "n1", Subject: "Quarterly budget review"},
		{ID: "n2", Subject: "Team offsite logistics"},
		{ID: "n3", Subject: "RE: Quarterly budget review"},
	}

	got, err := a.AssignBatch("me@example.com", emails, nil)
	require.NoError(t, err)
	require.Len(t, got, 3)

	assert.False(t, got[0].Joined)
	assert.False(t, got[1].Joined)
	assert.True(t, got[2].Joined)
	assert.Equal(t, got[0].ThreadID, got[2].ThreadID)
	assert.Equal(t, "n1", got[2].MatchedEmailID)
	assert.NotEqual(t, got[0].ThreadID, got[1].ThreadID)

	// Inputs are left untouched.
	assert.Empty(t, emails[0].SmartThreadID)
}

func TestIsThreadID(t *testing.T) {
	assert.True(t, IsThreadID("smart-0a1b2c3d"))
	assert.False(t, IsThreadID("smart-xyz"))
	assert.False(t, IsThreadID("thread-0a1b2c3d"))
	assert.False(t, IsThreadID("smart-0a1b2c3g"))
}
