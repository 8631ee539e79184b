package learning

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/echocog/cogrun/internal/model"
)

func TestScenario6_FeedbackSignProperty(t *testing.T) {
	e := New(Config{LearningRate: 0.01, ForgettingRate: 0.001})

	pos := e.FeedbackDelta(model.FeedbackPositive, 1.0, model.Context{})
	neg := e.FeedbackDelta(model.FeedbackNegative, 1.0, model.Context{})
	neutral := e.FeedbackDelta(model.FeedbackNeutral, 1.0, model.Context{})

	assert.GreaterOrEqual(t, pos, 0.0)
	assert.LessOrEqual(t, neg, 0.0)
	assert.Equal(t, 0.0, neutral)
}

func TestDisableRuleZerosContribution(t *testing.T) {
	e := New(Config{LearningRate: 0.01})
	e.DisableRule(RuleBasicReinforcement)
	e.DisableRule(RuleContextualReinforcement)

	delta := e.FeedbackDelta(model.FeedbackPositive, 1.0, model.Context{})
	assert.Equal(t, 0.0, delta)
}

func TestAccessDeltaRequiresAtLeastTwoAccesses(t *testing.T) {
	e := New(Config{})
	assert.Equal(t, 0.0, e.AccessDelta(1))
	assert.Greater(t, e.AccessDelta(5), 0.0)
}

func TestDecayDeltaIsNonPositive(t *testing.T) {
	e := New(Config{ForgettingRate: 0.01})
	assert.LessOrEqual(t, e.DecayDelta(30), 0.0)
	assert.Equal(t, 0.0, e.DecayDelta(0))
}

func TestAdaptParametersRaisesLearningRateOnLowAccuracy(t *testing.T) {
	e := New(Config{LearningRate: 0.01})
	e.AdaptParameters(Feedback{Accuracy: 0.3, Stability: 0.9})

	stats := e.Statistics()
	assert.Greater(t, stats.LearningRate, 0.01)
}

func TestAssociationDeltasCoverAllPairs(t *testing.T) {
	e := New(Config{})
	deltas := e.AssociationDeltas([]string{"a", "b", "c"}, 1.0)
	assert.Len(t, deltas, 3)
}
