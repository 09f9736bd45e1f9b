package policy

import (
	"sort"
	"strings"

	"github.com/parentline/guardian/pkg/session"
)

// EvalInput is everything a rule may reference. Guard evaluation is a pure
// function of this input plus the rule set: identical inputs always yield
// identical decisions, which keeps the safety logic auditable and
// replayable.
type EvalInput struct {
	ScrubbedText  string
	CrisisScore   float64
	DistressScore float64
	CurrentState  session.State
	Phase         session.TherapyPhase
}

// Decision is the guard's verdict for one message.
type Decision struct {
	Action        Action
	MatchedRuleID string
	RedirectState session.State
	Reply         string
	Warning       string
}

// Evaluate iterates the phase's rules in priority order (lower value first,
// declaration order breaking ties) and returns the first match. No match
// means allow.
func Evaluate(rs *RuleSet, in EvalInput) Decision {
	if rs == nil {
		return Decision{Action: ActionAllow}
	}
	for i := range rs.Rules {
		r := &rs.Rules[i]
		if triggerSatisfied(r, in) {
			return Decision{
				Action:        r.Action,
				MatchedRuleID: r.ID,
				RedirectState: r.RedirectState,
				Reply:         r.Reply,
				Warning:       r.Warning,
			}
		}
	}
	return Decision{Action: ActionAllow}
}

// triggerSatisfied requires every configured clause to hold.
func triggerSatisfied(r *Rule, in EvalInput) bool {
	t := &r.Trigger

	if t.MinCrisisScore != nil && in.CrisisScore < *t.MinCrisisScore {
		return false
	}
	if t.MinDistress != nil && in.DistressScore < *t.MinDistress {
		return false
	}
	if t.MaxDistress != nil && in.DistressScore > *t.MaxDistress {
		return false
	}
	if len(t.States) > 0 && !containsState(t.States, in.CurrentState) {
		return false
	}
	if len(r.keywordRes) > 0 && !keywordsSatisfied(r, in.ScrubbedText) {
		return false
	}
	return true
}

func keywordsSatisfied(r *Rule, text string) bool {
	switch strings.ToUpper(r.Trigger.Operator) {
	case "AND":
		for _, re := range r.keywordRes {
			if !re.MatchString(text) {
				return false
			}
		}
		return true
	case "NOR":
		for _, re := range r.keywordRes {
			if re.MatchString(text) {
				return false
			}
		}
		return true
	default: // OR
		for _, re := range r.keywordRes {
			if re.MatchString(text) {
				return true
			}
		}
		return false
	}
}

func containsState(states []session.State, s session.State) bool {
	for _, st := range states {
		if st == s {
			return true
		}
	}
	return false
}

// sortRules orders by priority then declaration order. Stable so equal
// priorities keep file order, which is what makes evaluation deterministic.
func sortRules(rules []Rule) {
	sort.SliceStable(rules, func(i, j int) bool {
		return rules[i].Priority < rules[j].Priority
	})
}
