package pipeline

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/parentline/guardian/pkg/policy"
	"github.com/parentline/guardian/pkg/session"
)

func TestNextState_CrisisOverridesEverything(t *testing.T) {
	tests := []struct {
		name string
		ev   TurnEvent
	}{
		{
			name: "crisis score at threshold",
			ev:   TurnEvent{CrisisScore: 0.7, CrisisThreshold: 0.7, EmotionalScore: 0.9},
		},
		{
			name: "crisis score above threshold with letter intent",
			ev:   TurnEvent{CrisisScore: 0.95, CrisisThreshold: 0.7, EmotionalScore: 0.9, Intent: IntentWriteLetter},
		},
		{
			name: "escalate action with low crisis score",
			ev:   TurnEvent{CrisisScore: 0.1, CrisisThreshold: 0.7, PolicyAction: policy.ActionEscalate, EmotionalScore: 0.9},
		},
		{
			name: "crisis wins over block",
			ev:   TurnEvent{CrisisScore: 0.8, CrisisThreshold: 0.7, PolicyAction: policy.ActionBlock},
		},
		{
			name: "crisis wins over end-session intent",
			ev:   TurnEvent{CrisisScore: 0.8, CrisisThreshold: 0.7, Intent: IntentEndSession},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := NextState(session.StateCasualChat, tt.ev)
			assert.Equal(t, session.StateCrisisIntervention, got)
		})
	}
}

func TestNextState_PolicyActions(t *testing.T) {
	// Block keeps the current state.
	got := NextState(session.StateModerateSupport, TurnEvent{
		CrisisThreshold: 0.7,
		PolicyAction:    policy.ActionBlock,
		EmotionalScore:  0.9,
	})
	assert.Equal(t, session.StateModerateSupport, got)

	// Redirect jumps to the rule's target and suppresses intent overrides.
	got = NextState(session.StateCasualChat, TurnEvent{
		CrisisThreshold: 0.7,
		PolicyAction:    policy.ActionRedirect,
		PolicyRedirect:  session.StateModerateSupport,
		Intent:          IntentWriteLetter,
		EmotionalScore:  0.9,
	})
	assert.Equal(t, session.StateModerateSupport, got)
}

func TestNextState_EmotionalScoreRouting(t *testing.T) {
	tests := []struct {
		score float64
		want  session.State
	}{
		{0.0, session.StateHighDistress},
		{0.25, session.StateHighDistress},
		{0.29, session.StateHighDistress},
		{0.3, session.StateModerateSupport},
		{0.45, session.StateModerateSupport},
		{0.59, session.StateModerateSupport},
		{0.6, session.StateCasualChat},
		{1.0, session.StateCasualChat},
	}

	for _, tt := range tests {
		got := NextState(session.StateEmotionCheck, TurnEvent{
			CrisisThreshold: 0.7,
			EmotionalScore:  tt.score,
		})
		assert.Equal(t, tt.want, got, "emotionalScore=%v", tt.score)
	}
}

func TestNextState_IntentOverrides(t *testing.T) {
	tests := []struct {
		intent Intent
		want   session.State
	}{
		{IntentWriteLetter, session.StateLetterWriting},
		{IntentTrackGoal, session.StateGoalTracking},
		{IntentTechnique, session.StateTechniqueSelection},
		{IntentEndSession, session.StateEndSession},
	}

	for _, tt := range tests {
		// Intent beats score-based routing when nothing above it fired.
		got := NextState(session.StateModerateSupport, TurnEvent{
			CrisisThreshold: 0.7,
			EmotionalScore:  0.2,
			Intent:          tt.intent,
		})
		assert.Equal(t, tt.want, got, "intent=%s", tt.intent)
	}
}

func TestNextState_TerminalStateStays(t *testing.T) {
	got := NextState(session.StateEndSession, TurnEvent{
		CrisisScore:     0.9,
		CrisisThreshold: 0.7,
	})
	assert.Equal(t, session.StateEndSession, got)
}

func TestPhaseForState_PureMapping(t *testing.T) {
	tests := []struct {
		state session.State
		want  session.TherapyPhase
	}{
		{session.StateCrisisIntervention, session.PhaseCrisis},
		{session.StateHighDistress, session.PhaseCrisis},
		{session.StateModerateSupport, session.PhaseUnderstanding},
		{session.StateLetterWriting, session.PhaseAction},
		{session.StateGoalTracking, session.PhaseAction},
		{session.StateTechniqueSelection, session.PhaseAction},
		{session.StateTechniqueExecution, session.PhaseAction},
		{session.StateCasualChat, session.PhaseSustainability},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, session.PhaseForState(tt.state), "state=%s", tt.state)
	}
}

func TestDetectIntent(t *testing.T) {
	tests := []struct {
		text string
		want Intent
	}{
		{"I want to write a letter to my daughter", IntentWriteLetter},
		{"Я хочу написать письмо сыну", IntentWriteLetter},
		{"can we review my goals", IntentTrackGoal},
		{"хочу поставить цель на неделю", IntentTrackGoal},
		{"can I try a technique for calming down", IntentTechnique},
		{"хочу попробовать упражнение", IntentTechnique},
		{"let's end the session", IntentEndSession},
		{"заверши сессию, пожалуйста", IntentEndSession},
		{"my letter carrier lost a package", IntentNone},
		{"we talked about goalkeepers", IntentNone},
		{"just a normal message", IntentNone},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, DetectIntent(tt.text), "text=%q", tt.text)
	}
}
