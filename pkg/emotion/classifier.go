package emotion

import (
	"context"
	"sort"
	"time"

	"github.com/parentline/guardian/pkg/observability/logging"
	"github.com/parentline/guardian/pkg/observability/metrics"
)

// ModelClient returns multi-label emotion probabilities for a message.
type ModelClient interface {
	ClassifyEmotion(ctx context.Context, text string) (map[string]float64, error)
}

// Assessment is the emotional verdict for one message. Transient: consumed
// by the policy guard and state machine, then summarized onto the session.
type Assessment struct {
	PrimaryEmotion string
	// DistressScore is 0..1, higher = more distressed.
	DistressScore float64
	// RecommendedTechnique is advisory only; the technique layer may ignore it.
	RecommendedTechnique string
	// Degraded marks the neutral-prior fallback used when the model failed.
	Degraded bool
}

// distressWeights maps each emotion label to its signed contribution toward
// the distress score. The aggregate over probability-weighted contributions
// is shifted from a 0.5 baseline and clamped to [0,1].
var distressWeights = map[string]float64{
	"despair":    1.0,
	"fear":       0.8,
	"anger":      0.6,
	"sadness":    0.6,
	"shame":      0.55,
	"guilt":      0.5,
	"anxiety":    0.7,
	"loneliness": 0.6,
	"neutral":    0.0,
	"hope":       -0.5,
	"joy":        -0.8,
	"gratitude":  -0.7,
}

// techniqueByEmotion is the advisory mapping consumed by the technique layer.
var techniqueByEmotion = map[string]string{
	"despair":    "crisis_grounding",
	"fear":       "grounding",
	"anxiety":    "breathing",
	"anger":      "cooling_off",
	"sadness":    "self_compassion",
	"shame":      "self_compassion",
	"guilt":      "reframing",
	"loneliness": "connection_building",
	"hope":       "goal_setting",
	"joy":        "savoring",
	"gratitude":  "savoring",
	"neutral":    "open_reflection",
}

// Classifier maps model emotion probabilities onto a single distress score.
type Classifier struct {
	model   ModelClient
	timeout time.Duration
}

func NewClassifier(model ModelClient, timeout time.Duration) *Classifier {
	return &Classifier{model: model, timeout: timeout}
}

// Classify assesses the scrubbed message. Model failure is never fatal:
// the fallback is a neutral prior (distress 0.5) flagged as degraded, so a
// broken emotion model cannot block message delivery.
func (c *Classifier) Classify(ctx context.Context, scrubbedText string) Assessment {
	if c.model == nil {
		return neutralAssessment()
	}

	callCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	start := time.Now()
	probs, err := c.model.ClassifyEmotion(callCtx, scrubbedText)
	metrics.RecordClassifierLatency("emotion", time.Since(start).Seconds())

	if err != nil {
		logging.Warnf("Emotion model unavailable, using neutral prior: %v", err)
		reason := "error"
		if callCtx.Err() == context.DeadlineExceeded {
			reason = "timeout"
		}
		metrics.RecordDegradation("emotion", reason)
		return neutralAssessment()
	}

	return FromProbabilities(probs)
}

// FromProbabilities computes the assessment from raw label probabilities.
// Exposed for the offline replay tool and tests.
func FromProbabilities(probs map[string]float64) Assessment {
	if len(probs) == 0 {
		return neutralAssessment()
	}

	// Labels iterate in sorted order so the accumulation order and the
	// primary-emotion tie-break are stable across runs.
	labels := make([]string, 0, len(probs))
	for label := range probs {
		labels = append(labels, label)
	}
	sort.Strings(labels)

	var (
		distress = 0.5
		primary  = "neutral"
		bestProb float64
	)
	for _, label := range labels {
		p := probs[label]
		w, known := distressWeights[label]
		if !known {
			continue
		}
		distress += w * p * 0.5
		if p > bestProb {
			bestProb = p
			primary = label
		}
	}
	if distress < 0 {
		distress = 0
	}
	if distress > 1 {
		distress = 1
	}

	technique := techniqueByEmotion[primary]
	if technique == "" {
		technique = "open_reflection"
	}

	return Assessment{
		PrimaryEmotion:       primary,
		DistressScore:        distress,
		RecommendedTechnique: technique,
	}
}

func neutralAssessment() Assessment {
	return Assessment{
		PrimaryEmotion:       "neutral",
		DistressScore:        0.5,
		RecommendedTechnique: "open_reflection",
		Degraded:             true,
	}
}
