package dispatch

import (
	"context"
	"strings"
	"time"

	"github.com/parentline/guardian/pkg/observability/logging"
	"github.com/parentline/guardian/pkg/pii"
	"github.com/parentline/guardian/pkg/session"
)

// ContentProducer generates the therapeutic response body. The core treats
// it as an opaque text producer behind a timeout contract; prompt content
// lives with the excluded technique/content layer.
type ContentProducer interface {
	Generate(ctx context.Context, systemPrompt, userText string) (string, error)
}

// Bundle carries the resolved turn results into dispatch. Text fields hold
// scrubbed content only.
type Bundle struct {
	ResultingState       session.State
	ScrubbedText         string
	ContentHash          string
	PrimaryEmotion       string
	DistressScore        float64
	CrisisScore          float64
	RecommendedTechnique string
	// OverrideText short-circuits generation (canned block replies).
	OverrideText string
	// Warning is attached by allow-with-warning guardrails.
	Warning string
	Locale  string
}

// Outbound is the reply handed back to the transport layer.
type Outbound struct {
	Text    string
	Warning string
	Crisis  bool
	State   session.State
}

// statePrompts keys the producer's system prompt by resolved state.
var statePrompts = map[session.State]string{
	session.StateCrisisIntervention: "The user may be in acute crisis. Respond with calm, direct support. Do not argue, do not minimize.",
	session.StateHighDistress:       "The user is highly distressed. Validate their feelings before anything else. Short sentences.",
	session.StateModerateSupport:    "The user is struggling but stable. Reflective listening, gentle open questions.",
	session.StateCasualChat:         "The user is stable. Warm, conversational tone. Follow their lead.",
	session.StateLetterWriting:      "Guide the user through drafting an unsent letter to their estranged child. One step at a time.",
	session.StateGoalTracking:       "Help the user review or set one small, concrete goal.",
	session.StateTechniqueSelection: "Offer two or three coping techniques suited to the user's state and let them choose.",
	session.StateTechniqueExecution: "Walk the user through the chosen technique step by step.",
	session.StateEndSession:         "Close the session warmly and remind the user they can return any time.",
}

// stateFallbacks are the canned replies used when the producer times out or
// errors. Deliberately generic and safe.
var stateFallbacks = map[session.State]string{
	session.StateCrisisIntervention: "I hear how much pain you are in right now, and I want you to be safe.",
	session.StateHighDistress:       "What you are feeling right now sounds incredibly heavy. I'm here, and I'm listening.",
	session.StateModerateSupport:    "Thank you for sharing that with me. Would you like to tell me more about what's been hardest?",
	session.StateCasualChat:         "I'm glad you checked in. How has your week been going?",
	session.StateLetterWriting:      "Let's work on your letter together. What is the first thing you wish you could say?",
	session.StateGoalTracking:       "Let's look at your goals. Which one feels most important right now?",
	session.StateTechniqueSelection: "We could try a breathing exercise, a grounding exercise, or writing. Which appeals to you?",
	session.StateTechniqueExecution: "Let's take this one step at a time. Start by taking one slow breath.",
	session.StateEndSession:         "Thank you for talking with me today. Take care of yourself, and come back whenever you need.",
}

// CrisisResources is always present in a crisis reply, whatever the
// producer returned. Kept as a single block so policy reviewers can audit it.
const CrisisResources = "If you are in danger of harming yourself, please reach out right now: " +
	"call your local emergency number, or the suicide and crisis lifeline at 988 (US) " +
	"or 8-800-2000-122 (Russia). You do not have to face this alone."

// Dispatcher turns a resolved state plus assessment bundle into the
// outbound reply, applying the final outbound PII check.
type Dispatcher struct {
	producer ContentProducer
	scrubber *pii.Scrubber
	timeout  time.Duration
}

func NewDispatcher(producer ContentProducer, scrubber *pii.Scrubber, timeout time.Duration) *Dispatcher {
	return &Dispatcher{producer: producer, scrubber: scrubber, timeout: timeout}
}

// Dispatch produces the outbound message for the resolved state. It never
// returns an error: generation failures degrade to the canned fallback,
// and crisis replies always include crisis resources.
func (d *Dispatcher) Dispatch(ctx context.Context, b Bundle) Outbound {
	text := d.produce(ctx, b)

	// Final outbound check: a generative component may echo PII back.
	// Runs before the resources block is attached so the hotline numbers
	// themselves are never redacted.
	text = d.scrubOutbound(text, b)

	// Resources are appended unconditionally: no producer output, however
	// it is phrased, can satisfy or suppress this block.
	isCrisis := b.ResultingState == session.StateCrisisIntervention
	if isCrisis {
		text = text + "\n\n" + CrisisResources
	}

	logging.LogEvent("turn_completed", map[string]interface{}{
		"content_hash":    b.ContentHash,
		"resulting_state": string(b.ResultingState),
		"crisis_score":    b.CrisisScore,
		"distress_score":  b.DistressScore,
		"primary_emotion": b.PrimaryEmotion,
	})

	return Outbound{
		Text:    text,
		Warning: b.Warning,
		Crisis:  isCrisis,
		State:   b.ResultingState,
	}
}

func (d *Dispatcher) produce(ctx context.Context, b Bundle) string {
	if b.OverrideText != "" {
		return b.OverrideText
	}

	fallback := stateFallbacks[b.ResultingState]
	if fallback == "" {
		fallback = stateFallbacks[session.StateModerateSupport]
	}

	if d.producer == nil {
		return fallback
	}

	callCtx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	prompt := statePrompts[b.ResultingState]
	text, err := d.producer.Generate(callCtx, prompt, b.ScrubbedText)
	if err != nil || strings.TrimSpace(text) == "" {
		logging.Warnf("Content producer failed for state %s, using fallback: %v", b.ResultingState, err)
		return fallback
	}
	return text
}

func (d *Dispatcher) scrubOutbound(text string, b Bundle) string {
	res, err := d.scrubber.ScrubOutbound(text, b.Locale)
	if err != nil {
		// Oversized generated text: refuse to pass it through unchecked.
		logging.Errorf("Outbound scrub failed for state %s: %v", b.ResultingState, err)
		return stateFallbacks[b.ResultingState]
	}
	return res.ScrubbedText
}
