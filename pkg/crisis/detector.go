package crisis

import (
	"context"
	"time"

	"github.com/parentline/guardian/pkg/observability/logging"
	"github.com/parentline/guardian/pkg/observability/metrics"
)

// ModelClient scores self-harm/violence risk with a classifier model.
type ModelClient interface {
	ScoreCrisis(ctx context.Context, text string) (float64, error)
}

// Assessment is the crisis verdict for one message.
type Assessment struct {
	// Score is the combined max of the model signal and the keyword floor.
	Score             float64
	TriggeredKeywords []string
	// Degraded is set when the model signal was unavailable and only the
	// keyword floor contributed.
	Degraded bool
}

// Detector combines two independent signals: a classifier model score and a
// keyword lexicon score. The combined score is their maximum, never their
// average, so a classifier miss on a known high-risk phrase cannot fall
// below the lexicon's floor.
type Detector struct {
	model     ModelClient
	keywords  *KeywordScorer
	threshold float64
	timeout   time.Duration
}

// NewDetector builds a Detector. model may be nil, in which case the
// detector runs keyword-only (always degraded).
func NewDetector(model ModelClient, keywords *KeywordScorer, threshold float64, timeout time.Duration) *Detector {
	return &Detector{
		model:     model,
		keywords:  keywords,
		threshold: threshold,
		timeout:   timeout,
	}
}

// Threshold returns the configured crisis threshold. It applies to the
// combined score.
func (d *Detector) Threshold() float64 { return d.threshold }

// Assess scores the scrubbed message. It never returns an error: when the
// model is unavailable or times out, the detector degrades to keyword-only
// scoring rather than skipping the crisis check.
func (d *Detector) Assess(ctx context.Context, scrubbedText string) Assessment {
	keywordScore, matched := d.keywords.Score(scrubbedText)

	modelScore, degraded := d.modelScore(ctx, scrubbedText)

	combined := keywordScore
	if modelScore > combined {
		combined = modelScore
	}

	if combined >= d.threshold {
		signal := "model"
		if keywordScore >= modelScore {
			signal = "keyword"
		}
		metrics.CrisisDetections.WithLabelValues(signal).Inc()
	}

	return Assessment{
		Score:             combined,
		TriggeredKeywords: matched,
		Degraded:          degraded,
	}
}

func (d *Detector) modelScore(ctx context.Context, text string) (score float64, degraded bool) {
	if d.model == nil {
		return 0, true
	}

	callCtx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	start := time.Now()
	score, err := d.model.ScoreCrisis(callCtx, text)
	metrics.RecordClassifierLatency("crisis", time.Since(start).Seconds())

	if err != nil {
		// Fail open to the keyword heuristic, loudly.
		logging.Warnf("Crisis model unavailable, degrading to keyword-only scoring: %v", err)
		metrics.RecordDegradation("crisis", degradeReason(callCtx))
		return 0, true
	}
	return score, false
}

func degradeReason(ctx context.Context) string {
	if ctx.Err() == context.DeadlineExceeded {
		return "timeout"
	}
	return "error"
}
