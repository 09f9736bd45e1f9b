package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/parentline/guardian/pkg/crisis"
	"github.com/parentline/guardian/pkg/dispatch"
	"github.com/parentline/guardian/pkg/emotion"
	"github.com/parentline/guardian/pkg/observability/logging"
	"github.com/parentline/guardian/pkg/observability/metrics"
	"github.com/parentline/guardian/pkg/pii"
	"github.com/parentline/guardian/pkg/policy"
	"github.com/parentline/guardian/pkg/session"
)

// ErrPersistenceFailure is returned when the turn failed closed: the
// session could not be persisted even after a retry, so no response was
// sent rather than responding down an unlogged path.
var ErrPersistenceFailure = errors.New("persistence failure, turn failed closed")

// TurnInput is one inbound message. RawText lives only on the stack for
// the duration of the turn; nothing that persists or logs ever holds it.
type TurnInput struct {
	SessionID string
	UserID    string
	RawText   string
	Locale    string
}

// TurnOutput is the resolved reply plus the summary of what happened.
type TurnOutput struct {
	Reply          dispatch.Outbound
	ResultingState session.State
	SessionRev     int64
}

// Orchestrator owns the per-turn control flow: scrub, fan out the two
// classifiers, guard, transition, persist, dispatch. It is the only
// component that mutates Session.
type Orchestrator struct {
	store      session.Store
	locker     *session.Locker
	scrubber   *pii.Scrubber
	detector   *crisis.Detector
	classifier *emotion.Classifier
	policies   *policy.Manager
	dispatcher *dispatch.Dispatcher

	retryBackoff time.Duration
	now          func() time.Time
}

// Deps bundles the orchestrator's constructor dependencies. Everything is
// injected; the orchestrator holds no ambient globals.
type Deps struct {
	Store        session.Store
	Scrubber     *pii.Scrubber
	Detector     *crisis.Detector
	Classifier   *emotion.Classifier
	Policies     *policy.Manager
	Dispatcher   *dispatch.Dispatcher
	RetryBackoff time.Duration
}

func NewOrchestrator(d Deps) *Orchestrator {
	backoff := d.RetryBackoff
	if backoff == 0 {
		backoff = 200 * time.Millisecond
	}
	return &Orchestrator{
		store:        d.Store,
		locker:       session.NewLocker(),
		scrubber:     d.Scrubber,
		detector:     d.Detector,
		classifier:   d.Classifier,
		policies:     d.Policies,
		dispatcher:   d.Dispatcher,
		retryBackoff: backoff,
		now:          time.Now,
	}
}

// ProcessMessage runs one turn. Turns for the same session serialize on the
// per-session lock; different sessions run fully in parallel.
func (o *Orchestrator) ProcessMessage(ctx context.Context, in TurnInput) (*TurnOutput, error) {
	start := o.now()

	unlock := o.locker.Lock(in.SessionID)
	defer unlock()

	sess, err := o.loadOrCreate(ctx, in)
	if err != nil {
		return nil, err
	}
	if sess.CurrentState.Terminal() || sess.Archived {
		return nil, session.ErrSessionEnded
	}

	// A session past its first turn re-enters through EMOTION_CHECK.
	if sess.CurrentState == session.StateStart && sess.Revision > 0 {
		sess.CurrentState = session.StateEmotionCheck
	}

	// 1. Scrub. The raw text goes no further than the hash and this call.
	contentHash := session.ContentHash(in.RawText)
	scrubRes, err := o.scrubber.Scrub(in.RawText, in.Locale)
	if err != nil {
		if errors.Is(err, pii.ErrInputTooLarge) {
			return &TurnOutput{
				Reply: dispatch.Outbound{
					Text:  "Your message is a bit too long for me to take in at once. Could you share it in smaller pieces?",
					State: sess.CurrentState,
				},
				ResultingState: sess.CurrentState,
			}, nil
		}
		return nil, fmt.Errorf("scrub failed: %w", err)
	}
	scrubbed := scrubRes.ScrubbedText

	// 2. Crisis and emotion have no data dependency; fan out and join both.
	crisisRes, emotionRes := o.assessConcurrently(ctx, scrubbed)

	// 3. Policy guard over the phase's active rule set.
	ruleSet := o.policies.ActiveRuleSet(sess.TherapyPhase)
	decision := policy.Evaluate(ruleSet, policy.EvalInput{
		ScrubbedText:  scrubbed,
		CrisisScore:   crisisRes.Score,
		DistressScore: emotionRes.DistressScore,
		CurrentState:  sess.CurrentState,
		Phase:         sess.TherapyPhase,
	})
	if decision.MatchedRuleID != "" {
		metrics.RecordPolicyMatch(decision.MatchedRuleID, string(decision.Action))
	}

	// 4. Transition.
	emotionalScore := 1 - emotionRes.DistressScore
	prevState := sess.CurrentState
	nextState := NextState(sess.CurrentState, TurnEvent{
		CrisisScore:     crisisRes.Score,
		CrisisThreshold: o.detector.Threshold(),
		PolicyAction:    decision.Action,
		PolicyRedirect:  decision.RedirectState,
		EmotionalScore:  emotionalScore,
		Intent:          DetectIntent(scrubbed),
	})
	metrics.RecordTransition(string(prevState), string(nextState))

	// 5. Persist session then message before any response leaves. A client
	// disconnect must not lose safety data, so persistence runs under a
	// context detached from the request's cancellation.
	sess.CurrentState = nextState
	sess.TherapyPhase = session.PhaseForState(nextState)
	sess.EmotionalScore = emotionalScore
	sess.CrisisLevel = crisisRes.Score
	sess.LastActivityAt = o.now()

	msg := &session.Message{
		ID:              uuid.NewString(),
		SessionID:       sess.ID,
		ScrubbedText:    scrubbed,
		ContentHash:     contentHash,
		DetectedEmotion: emotionRes.PrimaryEmotion,
		CrisisScore:     crisisRes.Score,
		ResultingState:  nextState,
		Timestamp:       sess.LastActivityAt,
	}
	if decision.MatchedRuleID != "" {
		msg.AppliedPolicyIDs = []string{decision.MatchedRuleID}
	}

	persistCtx := context.WithoutCancel(ctx)
	if err := o.persist(persistCtx, sess, msg); err != nil {
		if nextState == session.StateCrisisIntervention {
			// Crisis-path failures are never swallowed into silence: the
			// user still gets crisis resources while the error is escalated.
			logging.Errorf("Persistence failed on crisis path for session %s, responding with crisis resources anyway: %v", sess.ID, err)
			return &TurnOutput{
				Reply: dispatch.Outbound{
					Text:   dispatch.CrisisResources,
					Crisis: true,
					State:  session.StateCrisisIntervention,
				},
				ResultingState: session.StateCrisisIntervention,
			}, nil
		}
		metrics.TurnsFailedClosed.Inc()
		return nil, fmt.Errorf("%w: %v", ErrPersistenceFailure, err)
	}

	// 6. Dispatch. Delivery may be abandoned on disconnect; state is safe.
	bundle := dispatch.Bundle{
		ResultingState:       nextState,
		ScrubbedText:         scrubbed,
		ContentHash:          contentHash,
		PrimaryEmotion:       emotionRes.PrimaryEmotion,
		DistressScore:        emotionRes.DistressScore,
		CrisisScore:          crisisRes.Score,
		RecommendedTechnique: emotionRes.RecommendedTechnique,
		Warning:              decision.Warning,
		Locale:               in.Locale,
	}
	if decision.Action == policy.ActionBlock {
		bundle.OverrideText = decision.Reply
		if bundle.OverrideText == "" {
			bundle.OverrideText = "Let's steer back to what brought you here. I'd rather focus on how you are doing."
		}
	}
	reply := o.dispatcher.Dispatch(ctx, bundle)

	metrics.TurnLatency.WithLabelValues(string(nextState)).Observe(o.now().Sub(start).Seconds())

	return &TurnOutput{
		Reply:          reply,
		ResultingState: nextState,
		SessionRev:     sess.Revision,
	}, nil
}

// EraseUser hard-deletes all data for a user on an explicit erasure request.
func (o *Orchestrator) EraseUser(ctx context.Context, userID string) error {
	return o.store.DeleteUserData(ctx, userID)
}

func (o *Orchestrator) loadOrCreate(ctx context.Context, in TurnInput) (*session.Session, error) {
	sess, err := o.store.LoadSession(ctx, in.SessionID)
	if errors.Is(err, session.ErrNotFound) {
		return session.NewSession(in.SessionID, in.UserID, o.now()), nil
	}
	if err != nil {
		return nil, fmt.Errorf("load session: %w", err)
	}
	return sess, nil
}

// assessConcurrently runs the crisis detector and emotion classifier in
// parallel and waits for both. Each bounds its own model call with its
// configured timeout, so the join cannot hang the turn.
func (o *Orchestrator) assessConcurrently(ctx context.Context, scrubbed string) (crisis.Assessment, emotion.Assessment) {
	var (
		wg         sync.WaitGroup
		crisisRes  crisis.Assessment
		emotionRes emotion.Assessment
	)
	wg.Add(2)
	go func() {
		defer wg.Done()
		crisisRes = o.detector.Assess(ctx, scrubbed)
	}()
	go func() {
		defer wg.Done()
		emotionRes = o.classifier.Classify(ctx, scrubbed)
	}()
	wg.Wait()
	return crisisRes, emotionRes
}

// persist writes the session and then the message, retrying the pair once
// with backoff. Write-before-respond: a crash after this returns nil can
// never lose the updated state.
func (o *Orchestrator) persist(ctx context.Context, sess *session.Session, msg *session.Message) error {
	err := o.persistOnce(ctx, sess, msg)
	if err == nil {
		return nil
	}
	metrics.PersistenceRetries.Inc()
	logging.Warnf("Persistence failed for session %s, retrying once: %v", sess.ID, err)
	time.Sleep(o.retryBackoff)
	return o.persistOnce(ctx, sess, msg)
}

func (o *Orchestrator) persistOnce(ctx context.Context, sess *session.Session, msg *session.Message) error {
	if err := o.store.SaveSession(ctx, sess); err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	if err := o.store.SaveMessage(ctx, msg); err != nil {
		return fmt.Errorf("save message: %w", err)
	}
	return nil
}
