package priority

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teemow/inboxtriage/internal/triage"
)

func testRules() []triage.SenderRule {
	return []triage.SenderRule{
		{SenderPattern: "boss@company.com", ForcePriority: triage.PriorityHigh.Ptr()},
		{SenderPattern: "newsletter@spam.com", ForcePriority: triage.PriorityLow.Ptr(), AutoReply: true},
	}
}

func testPref() *triage.UserPreference {
	return &triage.UserPreference{
		Interests:   []string{"Python", "Startup", "Meeting"},
		PrimaryRole: "Engineer",
	}
}

func TestResolve(t *testing.T) {
	tests := []struct {
		name      string
		sender    string
		subject   string
		body      string
		ai        triage.Priority
		pref      *triage.UserPreference
		rules     []triage.SenderRule
		want      triage.Priority
		wantStage Stage
	}{
		{
			name:      "sender rule forces high",
			sender:    "boss@company.com",
			subject:   "Hello",
			body:      "Body",
			ai:        triage.PriorityLow,
			pref:      testPref(),
			rules:     testRules(),
			want:      triage.PriorityHigh,
			wantStage: StageSenderRule,
		},
		{
			name:      "sender rule wins over interests",
			sender:    "The Boss <BOSS@company.com>",
			subject:   "Python startup meeting",
			ai:        triage.PriorityLow,
			pref:      testPref(),
			rules:     testRules(),
			want:      triage.PriorityHigh,
			wantStage: StageSenderRule,
		},
		{
			name:      "interest boosts low to medium",
			sender:    "stranger@example.com",
			subject:   "Python Meetup",
			body:      "Lets talk code",
			ai:        triage.PriorityLow,
			pref:      testPref(),
			rules:     testRules(),
			want:      triage.PriorityMedium,
			wantStage: StageInterest,
		},
		{
			name:      "interest boosts medium to high",
			sender:    "stranger@example.com",
			subject:   "Urgent Startup idea",
			body:      "Lets talk business",
			ai:        triage.PriorityMedium,
			pref:      testPref(),
			rules:     testRules(),
			want:      triage.PriorityHigh,
			wantStage: StageInterest,
		},
		{
			name:      "high stays high",
			sender:    "stranger@example.com",
			subject:   "Python",
			ai:        triage.PriorityHigh,
			pref:      testPref(),
			want:      triage.PriorityHigh,
			wantStage: StageInterest,
		},
		{
			name:      "several interests boost once",
			sender:    "stranger@example.com",
			subject:   "Python startup meeting",
			body:      "python python",
			ai:        triage.PriorityLow,
			pref:      testPref(),
			want:      triage.PriorityMedium,
			wantStage: StageInterest,
		},
		{
			name:      "interest found in body",
			sender:    "stranger@example.com",
			subject:   "Hi",
			body:      "The quarterly MEETING moved",
			ai:        triage.PriorityLow,
			pref:      testPref(),
			want:      triage.PriorityMedium,
			wantStage: StageInterest,
		},
		{
			name:      "no match falls back",
			sender:    "random@example.com",
			subject:   "Lunch?",
			body:      "Pizza time",
			ai:        triage.PriorityLow,
			pref:      testPref(),
			rules:     testRules(),
			want:      triage.PriorityLow,
			wantStage: StageAI,
		},
		{
			name:      "nil preference falls back",
			sender:    "random@example.com",
			subject:   "Python",
			ai:        triage.PriorityMedium,
			want:      triage.PriorityMedium,
			wantStage: StageAI,
		},
		{
			name:   "rule without forced priority is skipped",
			sender: "auto@replies.com",
			ai:     triage.PriorityMedium,
			rules: []triage.SenderRule{
				{SenderPattern: "auto@replies.com", AutoReply: true},
				{SenderPattern: "replies.com", ForcePriority: triage.PriorityLow.Ptr()},
			},
			want:      triage.PriorityLow,
			wantStage: StageSenderRule,
		},
		{
			name:      "empty interests are ignored",
			sender:    "random@example.com",
			subject:   "Anything",
			ai:        triage.PriorityLow,
			pref:      &triage.UserPreference{Interests: []string{"", "  "}},
			want:      triage.PriorityLow,
			wantStage: StageAI,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Resolve(tt.sender, tt.subject, tt.body, tt.ai, tt.pref, tt.rules)
			assert.Equal(t, tt.want, got.Priority)
			assert.Equal(t, tt.wantStage, got.Stage)
		})
	}
}

func TestResolve_ReportsMatchedRuleAndInterest(t *testing.T) {
	got := Resolve("boss@company.com", "", "", triage.PriorityLow, nil, testRules())
	require.NotNil(t, got.Rule)
	assert.Equal(t, "boss@company.com", got.Rule.SenderPattern)

	got = Resolve("x@example.com", "startup pitch", "", triage.PriorityLow, testPref(), nil)
	assert.Equal(t, "Startup", got.Interest)
}

func TestAutoReplyRule(t *testing.T) {
	rule := AutoReplyRule("newsletter@spam.com", testRules())
	require.NotNil(t, rule)
	assert.True(t, rule.AutoReply)
	assert.Equal(t, "newsletter@spam.com", rule.SenderPattern)

	assert.Nil(t, AutoReplyRule("boss@company.com", testRules()))
	assert.Nil(t, AutoReplyRule("", testRules()))
}

func TestParseInterests(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want []string
	}{
		{"array", `["Python", "Startup"]`, []string{"Python", "Startup"}},
		{"empty string", "", []string{}},
		{"null", "null", []string{}},
		{"malformed", `["Python"`, []string{}},
		{"wrong type", `{"a": 1}`, []string{}},
		{"mixed types", `["a", 2]`, []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseInterests(tt.raw))
		})
	}
}

func TestResolve_MalformedInterestsDegrade(t *testing.T) {
	pref := &triage.UserPreference{Interests: ParseInterests("not json")}
	got := Resolve("a@b.com", "python", "", triage.PriorityLow, pref, nil)
	assert.Equal(t, triage.PriorityLow, got.Priority)
	assert.Equal(t, StageAI, got.Stage)
}
