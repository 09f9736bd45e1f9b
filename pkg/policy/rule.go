package policy

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/parentline/guardian/pkg/session"
)

// Action is what a matched guardrail does to the turn.
type Action string

const (
	ActionAllow            Action = "allow"
	ActionBlock            Action = "block"
	ActionRedirect         Action = "redirect"
	ActionEscalate         Action = "escalate"
	ActionAllowWithWarning Action = "allow-with-warning"
)

// Trigger is the declarative condition of a rule. Every configured clause
// must hold for the rule to fire; an empty trigger is a load error.
type Trigger struct {
	// MinCrisisScore fires when the combined crisis score is at or above it.
	MinCrisisScore *float64 `yaml:"min_crisis_score,omitempty"`
	// MinDistress / MaxDistress bound the distress score (inclusive).
	MinDistress *float64 `yaml:"min_distress,omitempty"`
	MaxDistress *float64 `yaml:"max_distress,omitempty"`
	// Keywords match against the scrubbed text with the given operator.
	Keywords      []string `yaml:"keywords,omitempty"`
	Operator      string   `yaml:"operator,omitempty"` // AND, OR (default), NOR
	CaseSensitive bool     `yaml:"case_sensitive,omitempty"`
	// States restricts the rule to specific current states.
	States []session.State `yaml:"states,omitempty"`
}

// Rule is one declarative guardrail. Rule sets are data, never code: they
// are reviewed and hot-reloaded as YAML, ordered by priority (lower value
// first) then declaration order, first match wins.
type Rule struct {
	ID       string  `yaml:"id"`
	Priority int     `yaml:"priority"`
	Action   Action  `yaml:"action"`
	Trigger  Trigger `yaml:"trigger"`
	// RedirectState is required for redirect rules.
	RedirectState session.State `yaml:"redirect_state,omitempty"`
	// Reply is the canned safe-redirect text for block rules.
	Reply string `yaml:"reply,omitempty"`
	// Warning is the annotation attached by allow-with-warning rules.
	Warning string `yaml:"warning,omitempty"`

	// compiled keyword matchers, built at load time so evaluation stays
	// pure and allocation-free.
	keywordRes []*regexp.Regexp
}

var validStates = map[session.State]bool{
	session.StateEmotionCheck:       true,
	session.StateCrisisIntervention: true,
	session.StateHighDistress:       true,
	session.StateModerateSupport:    true,
	session.StateCasualChat:         true,
	session.StateLetterWriting:      true,
	session.StateGoalTracking:       true,
	session.StateTechniqueSelection: true,
	session.StateTechniqueExecution: true,
}

func (r *Rule) compile() error {
	if r.ID == "" {
		return fmt.Errorf("rule without id")
	}
	switch r.Action {
	case ActionAllow, ActionBlock, ActionRedirect, ActionEscalate, ActionAllowWithWarning:
	default:
		return fmt.Errorf("rule %q: unknown action %q", r.ID, r.Action)
	}
	if r.Action == ActionRedirect {
		if !validStates[r.RedirectState] {
			return fmt.Errorf("rule %q: redirect requires a valid redirect_state, got %q", r.ID, r.RedirectState)
		}
	}

	t := &r.Trigger
	if t.MinCrisisScore == nil && t.MinDistress == nil && t.MaxDistress == nil &&
		len(t.Keywords) == 0 && len(t.States) == 0 {
		return fmt.Errorf("rule %q: empty trigger", r.ID)
	}
	switch strings.ToUpper(t.Operator) {
	case "", "OR", "AND", "NOR":
	default:
		return fmt.Errorf("rule %q: unsupported keyword operator %q", r.ID, t.Operator)
	}
	for _, st := range t.States {
		if !validStates[st] {
			return fmt.Errorf("rule %q: unknown state %q in trigger", r.ID, st)
		}
	}

	r.keywordRes = r.keywordRes[:0]
	for _, kw := range t.Keywords {
		pattern := `(?:^|[^\p{L}])` + regexp.QuoteMeta(kw) + `(?:$|[^\p{L}])`
		if !t.CaseSensitive {
			pattern = `(?i)` + pattern
		}
		re, err := regexp.Compile(pattern)
		if err != nil {
			return fmt.Errorf("rule %q: keyword %q: %w", r.ID, kw, err)
		}
		r.keywordRes = append(r.keywordRes, re)
	}
	return nil
}

// RuleSet is the ordered, validated rule list for one therapy phase.
type RuleSet struct {
	Phase session.TherapyPhase
	Rules []Rule
}
