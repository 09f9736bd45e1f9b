package session

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"time"
)

// ErrNotFound is returned when no session exists for the given ID.
var ErrNotFound = errors.New("session not found")

// ErrSessionEnded is returned when a turn arrives for a terminal or archived session.
var ErrSessionEnded = errors.New("session has ended")

// State is the session state machine state.
type State string

const (
	StateStart              State = "START"
	StateEmotionCheck       State = "EMOTION_CHECK"
	StateCrisisIntervention State = "CRISIS_INTERVENTION"
	StateHighDistress       State = "HIGH_DISTRESS"
	StateModerateSupport    State = "MODERATE_SUPPORT"
	StateCasualChat         State = "CASUAL_CHAT"
	StateLetterWriting      State = "LETTER_WRITING"
	StateGoalTracking       State = "GOAL_TRACKING"
	StateTechniqueSelection State = "TECHNIQUE_SELECTION"
	StateTechniqueExecution State = "TECHNIQUE_EXECUTION"
	StateEndSession         State = "END_SESSION"
)

// Terminal reports whether no further message processing may occur.
func (s State) Terminal() bool { return s == StateEndSession }

// TherapyPhase is the coarse lifecycle stage derived from state.
type TherapyPhase string

const (
	PhaseCrisis         TherapyPhase = "CRISIS"
	PhaseUnderstanding  TherapyPhase = "UNDERSTANDING"
	PhaseAction         TherapyPhase = "ACTION"
	PhaseSustainability TherapyPhase = "SUSTAINABILITY"
)

// PhaseForState derives the therapy phase from the current state. Phase is
// never set independently; keeping this a pure function of state is what
// rules out phase/state desynchronization.
func PhaseForState(s State) TherapyPhase {
	switch s {
	case StateCrisisIntervention, StateHighDistress:
		return PhaseCrisis
	case StateModerateSupport, StateEmotionCheck, StateStart:
		return PhaseUnderstanding
	case StateLetterWriting, StateGoalTracking, StateTechniqueSelection, StateTechniqueExecution:
		return PhaseAction
	case StateCasualChat, StateEndSession:
		return PhaseSustainability
	default:
		return PhaseUnderstanding
	}
}

// Session is one user conversation thread. Mutated exclusively by the
// orchestrator, under the per-session lock.
type Session struct {
	ID           string       `json:"id"`
	UserID       string       `json:"user_id"`
	CurrentState State        `json:"current_state"`
	TherapyPhase TherapyPhase `json:"therapy_phase"`

	// EmotionalScore is 0..1, higher = more stable (inverse of distress).
	EmotionalScore float64           `json:"emotional_score"`
	CrisisLevel    float64           `json:"crisis_level"`
	LastActivityAt time.Time         `json:"last_activity_at"`
	ContextBag     map[string]string `json:"context_bag,omitempty"`
	Archived       bool              `json:"archived"`

	// Revision increments on every save; used by tests and the replay tool
	// to observe write ordering.
	Revision int64 `json:"revision"`
}

// NewSession creates a fresh session in the initial state.
func NewSession(id, userID string, now time.Time) *Session {
	return &Session{
		ID:             id,
		UserID:         userID,
		CurrentState:   StateStart,
		TherapyPhase:   PhaseForState(StateStart),
		EmotionalScore: 0.5,
		LastActivityAt: now,
		ContextBag:     map[string]string{},
	}
}

// Message is the persisted record of one turn. Raw text never appears here:
// only the scrubbed text and a one-way content hash survive the turn.
type Message struct {
	ID               string    `json:"id"`
	SessionID        string    `json:"session_id"`
	ScrubbedText     string    `json:"scrubbed_text"`
	ContentHash      string    `json:"content_hash"`
	DetectedEmotion  string    `json:"detected_emotion"`
	CrisisScore      float64   `json:"crisis_score"`
	AppliedPolicyIDs []string  `json:"applied_policy_ids,omitempty"`
	ResultingState   State     `json:"resulting_state"`
	Timestamp        time.Time `json:"timestamp"`
}

// ContentHash returns the hex SHA-256 of the raw text. One-way: used for
// deduplication and audit correlation, never reconstructible to content.
func ContentHash(rawText string) string {
	sum := sha256.Sum256([]byte(rawText))
	return hex.EncodeToString(sum[:])
}
