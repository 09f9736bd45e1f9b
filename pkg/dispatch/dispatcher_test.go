package dispatch

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/parentline/guardian/pkg/pii"
	"github.com/parentline/guardian/pkg/session"
)

type stubProducer struct {
	text  string
	err   error
	delay time.Duration
}

func (s *stubProducer) Generate(ctx context.Context, _, _ string) (string, error) {
	if s.delay > 0 {
		select {
		case <-time.After(s.delay):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	return s.text, s.err
}

func newDispatcher(p ContentProducer) *Dispatcher {
	return NewDispatcher(p, pii.NewScrubber(), 50*time.Millisecond)
}

func TestDispatch_ProducerText(t *testing.T) {
	d := newDispatcher(&stubProducer{text: "That sounds really hard."})

	out := d.Dispatch(context.Background(), Bundle{
		ResultingState: session.StateModerateSupport,
		Locale:         "en",
	})

	assert.Equal(t, "That sounds really hard.", out.Text)
	assert.False(t, out.Crisis)
}

func TestDispatch_FallbackOnProducerError(t *testing.T) {
	d := newDispatcher(&stubProducer{err: errors.New("producer down")})

	out := d.Dispatch(context.Background(), Bundle{
		ResultingState: session.StateHighDistress,
		Locale:         "en",
	})

	assert.Equal(t, stateFallbacks[session.StateHighDistress], out.Text)
}

func TestDispatch_FallbackOnProducerTimeout(t *testing.T) {
	d := newDispatcher(&stubProducer{text: "late", delay: 500 * time.Millisecond})

	out := d.Dispatch(context.Background(), Bundle{
		ResultingState: session.StateCasualChat,
		Locale:         "en",
	})

	assert.Equal(t, stateFallbacks[session.StateCasualChat], out.Text)
}

func TestDispatch_CrisisAlwaysIncludesResources(t *testing.T) {
	tests := []struct {
		name     string
		producer ContentProducer
	}{
		{"producer ok", &stubProducer{text: "I hear you."}},
		{"producer failed", &stubProducer{err: errors.New("down")}},
		{"no producer", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := newDispatcher(tt.producer)
			out := d.Dispatch(context.Background(), Bundle{
				ResultingState: session.StateCrisisIntervention,
				Locale:         "en",
			})
			assert.True(t, out.Crisis)
			assert.Contains(t, out.Text, "988")
		})
	}
}

func TestDispatch_CrisisResourcesSurviveNumericReplies(t *testing.T) {
	// A reply that merely contains hotline-looking digits must not count
	// as carrying the resources block.
	d := newDispatcher(&stubProducer{text: "You mentioned 1988, the year she was born. I hear your pain."})

	out := d.Dispatch(context.Background(), Bundle{
		ResultingState: session.StateCrisisIntervention,
		Locale:         "en",
	})

	assert.True(t, out.Crisis)
	assert.Contains(t, out.Text, "You mentioned 1988")
	assert.Contains(t, out.Text, CrisisResources)
}

func TestDispatch_OutboundPIICheck(t *testing.T) {
	// A generative component echoing PII back gets caught on the way out.
	d := newDispatcher(&stubProducer{text: "You mentioned the number +79991234567 earlier."})

	out := d.Dispatch(context.Background(), Bundle{
		ResultingState: session.StateModerateSupport,
		Locale:         "en",
	})

	assert.NotContains(t, out.Text, "79991234567")
	assert.Contains(t, out.Text, "[[PHONE_NUMBER]]")
}

func TestDispatch_BlockOverrideSkipsProducer(t *testing.T) {
	d := newDispatcher(&stubProducer{text: "should not be used"})

	out := d.Dispatch(context.Background(), Bundle{
		ResultingState: session.StateModerateSupport,
		OverrideText:   "Let's get back to you.",
		Locale:         "en",
	})

	assert.Equal(t, "Let's get back to you.", out.Text)
}

func TestDispatch_WarningPassedThrough(t *testing.T) {
	d := newDispatcher(&stubProducer{text: "ok"})

	out := d.Dispatch(context.Background(), Bundle{
		ResultingState: session.StateModerateSupport,
		Warning:        "elevated_distress",
		Locale:         "en",
	})

	assert.Equal(t, "elevated_distress", out.Warning)
}
