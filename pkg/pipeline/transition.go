package pipeline

import (
	"github.com/parentline/guardian/pkg/policy"
	"github.com/parentline/guardian/pkg/session"
)

// TurnEvent is everything the transition function may consult. NextState is
// a pure function of (state, event); it performs no I/O and reads no
// globals, so every routing decision is unit-testable and replayable.
type TurnEvent struct {
	CrisisScore     float64
	CrisisThreshold float64
	PolicyAction    policy.Action
	PolicyRedirect  session.State
	// EmotionalScore is the stability score (1 - distress), 0..1.
	EmotionalScore float64
	Intent         Intent
}

// Distress routing thresholds on the stability score.
const (
	highDistressBelow    = 0.3
	moderateSupportBelow = 0.6
)

// NextState resolves the next session state. Priority order, first
// applicable wins:
//
//  1. crisis score at/above threshold, or an escalate guardrail, forces
//     CRISIS_INTERVENTION; nothing can suppress this transition;
//  2. block keeps the current state, redirect jumps to the rule's target;
//  3. an explicit user intent overrides score-based routing;
//  4. otherwise route by emotional score thresholds.
func NextState(current session.State, ev TurnEvent) session.State {
	if current.Terminal() {
		return current
	}

	if ev.CrisisScore >= ev.CrisisThreshold || ev.PolicyAction == policy.ActionEscalate {
		return session.StateCrisisIntervention
	}

	switch ev.PolicyAction {
	case policy.ActionBlock:
		// Content discarded; the session stays where it was.
		return current
	case policy.ActionRedirect:
		return ev.PolicyRedirect
	}

	switch ev.Intent {
	case IntentWriteLetter:
		return session.StateLetterWriting
	case IntentTrackGoal:
		return session.StateGoalTracking
	case IntentTechnique:
		return session.StateTechniqueSelection
	case IntentEndSession:
		return session.StateEndSession
	}

	switch {
	case ev.EmotionalScore < highDistressBelow:
		return session.StateHighDistress
	case ev.EmotionalScore < moderateSupportBelow:
		return session.StateModerateSupport
	default:
		return session.StateCasualChat
	}
}
