package emotion

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type fakeModel struct {
	probs map[string]float64
	err   error
}

func (f *fakeModel) ClassifyEmotion(_ context.Context, _ string) (map[string]float64, error) {
	return f.probs, f.err
}

func TestFromProbabilities(t *testing.T) {
	tests := []struct {
		name         string
		probs        map[string]float64
		wantPrimary  string
		wantDistress func(t *testing.T, d float64)
	}{
		{
			name:        "despair dominates",
			probs:       map[string]float64{"despair": 0.9, "sadness": 0.4},
			wantPrimary: "despair",
			wantDistress: func(t *testing.T, d float64) {
				assert.Greater(t, d, 0.8)
			},
		},
		{
			name:        "joy lowers distress",
			probs:       map[string]float64{"joy": 0.8, "gratitude": 0.5},
			wantPrimary: "joy",
			wantDistress: func(t *testing.T, d float64) {
				assert.Less(t, d, 0.3)
			},
		},
		{
			name:        "mixed emotions roughly cancel",
			probs:       map[string]float64{"sadness": 0.5, "hope": 0.6},
			wantPrimary: "hope",
			wantDistress: func(t *testing.T, d float64) {
				assert.InDelta(t, 0.5, d, 0.1)
			},
		},
		{
			name:        "unknown labels ignored",
			probs:       map[string]float64{"confusion": 0.9},
			wantPrimary: "neutral",
			wantDistress: func(t *testing.T, d float64) {
				assert.InDelta(t, 0.5, d, 0.001)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := FromProbabilities(tt.probs)
			assert.Equal(t, tt.wantPrimary, a.PrimaryEmotion)
			tt.wantDistress(t, a.DistressScore)
			assert.False(t, a.Degraded)
			assert.NotEmpty(t, a.RecommendedTechnique)
		})
	}
}

func TestFromProbabilities_Deterministic(t *testing.T) {
	// Tied probabilities and float accumulation must resolve identically on
	// every run, or replaying a persisted turn could route differently.
	probs := map[string]float64{
		"anger":   0.4,
		"sadness": 0.4,
		"fear":    0.1,
		"hope":    0.1,
	}

	first := FromProbabilities(probs)
	assert.Equal(t, "anger", first.PrimaryEmotion)
	for i := 0; i < 100; i++ {
		assert.Equal(t, first, FromProbabilities(probs))
	}
}

func TestFromProbabilities_Clamped(t *testing.T) {
	a := FromProbabilities(map[string]float64{
		"despair": 1, "fear": 1, "anger": 1, "anxiety": 1, "loneliness": 1,
	})
	assert.LessOrEqual(t, a.DistressScore, 1.0)

	a = FromProbabilities(map[string]float64{"joy": 1, "gratitude": 1, "hope": 1})
	assert.GreaterOrEqual(t, a.DistressScore, 0.0)
}

func TestClassify_NeutralPriorOnModelFailure(t *testing.T) {
	c := NewClassifier(&fakeModel{err: errors.New("model down")}, time.Second)

	a := c.Classify(context.Background(), "any text")

	assert.True(t, a.Degraded)
	assert.InDelta(t, 0.5, a.DistressScore, 0.001)
	assert.Equal(t, "neutral", a.PrimaryEmotion)
}

func TestClassify_NilModelDegrades(t *testing.T) {
	c := NewClassifier(nil, time.Second)
	a := c.Classify(context.Background(), "any text")
	assert.True(t, a.Degraded)
	assert.InDelta(t, 0.5, a.DistressScore, 0.001)
}

func TestClassify_UsesModelProbabilities(t *testing.T) {
	c := NewClassifier(&fakeModel{probs: map[string]float64{"anxiety": 0.9}}, time.Second)
	a := c.Classify(context.Background(), "any text")
	assert.Equal(t, "anxiety", a.PrimaryEmotion)
	assert.Equal(t, "breathing", a.RecommendedTechnique)
	assert.False(t, a.Degraded)
}
