package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/teemow/inboxtriage/internal/triage"
)

// Profile holds the per-user triage settings.
//
//	users:
//	  - email: jane@example.com
//	    account: work
//	    primary_role: engineer
//	    interests: [kubernetes, hiring]
//	    sender_rules:
//	      - sender_pattern: boss@example.com
//	        force_priority: High
//	      - sender_pattern: newsletter
//	        force_priority: Low
//	        auto_reply: true
//	        reply_text: Thanks, I'll read it later.
type Profile struct {
	Users []UserProfile `json:"users" yaml:"users"`
}

// UserProfile is the triage configuration of one mailbox owner.
type UserProfile struct {
	Email string `json:"email" yaml:"email"`

	// Account is the name of the stored Google token. Defaults to
	// "default".
	Account string `json:"account,omitempty" yaml:"account,omitempty"`

	PrimaryRole string              `json:"primary_role,omitempty" yaml:"primary_role,omitempty"`
	Interests   []string            `json:"interests,omitempty" yaml:"interests,omitempty"`
	SenderRules []triage.SenderRule `json:"sender_rules,omitempty" yaml:"sender_rules,omitempty"`
}

// Preference returns the user's interests as a UserPreference.
func (u UserProfile) Preference() *triage.UserPreference {
	return &triage.UserPreference{
		Interests:   append([]string(nil), u.Interests...),
		PrimaryRole: u.PrimaryRole,
	}
}

// LoadProfile reads a profile file. A missing file yields an empty
// profile.
func LoadProfile(path string) (*Profile, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return &Profile{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read profile: %w", err)
	}
	return ParseProfile(data)
}

// ParseProfile decodes and validates a YAML profile. Unknown keys are
// rejected.
func ParseProfile(data []byte) (*Profile, error) {
	p := &Profile{}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(p); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("failed to parse profile: %w", err)
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return p, nil
}

// Validate checks that every user has a unique email and that every
// sender rule has a pattern.
func (p *Profile) Validate() error {
	seen := map[string]bool{}
	for i, u := range p.Users {
		email := strings.ToLower(strings.TrimSpace(u.Email))
		if email == "" {
			return fmt.Errorf("user %d: email is required", i)
		}
		if seen[email] {
			return fmt.Errorf("user %s: listed more than once", u.Email)
		}
		seen[email] = true

		for j, r := range u.SenderRules {
			if strings.TrimSpace(r.SenderPattern) == "" {
				return fmt.Errorf("user %s: sender rule %d has no sender_pattern", u.Email, j)
			}
		}
	}
	return nil
}

// User returns the profile of email, matched case-insensitively. Unknown
// users get an empty profile on the default account.
func (p *Profile) User(email string) UserProfile {
	for _, u := range p.Users {
		if strings.EqualFold(strings.TrimSpace(u.Email), strings.TrimSpace(email)) {
			if u.Account == "" {
				u.Account = "default"
			}
			return u
		}
	}
	return UserProfile{Email: email, Account: "default"}
}
