package router

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/echocog/cogrun/internal/model"
)

func itemWithStrength(strength float64) *model.MemoryItem {
	return &model.MemoryItem{
		ID:               "id-" + time.Now().Format(time.RFC3339Nano),
		PatternSignature: "sig:a",
		Strength:         strength,
		Tags:             map[string]struct{}{},
		LastAccessed:     time.Now().Add(-100 * 24 * time.Hour),
	}
}

func TestScenarioB_ThresholdActivatesOnlyAboveGlobalThreshold(t *testing.T) {
	r := New(Config{TargetSparsity: 0.05, TargetActivationCount: 10, InitialGlobalThreshold: 0.5})
	candidates := []*model.MemoryItem{
		itemWithStrength(0.1), itemWithStrength(0.2), itemWithStrength(0.3),
		itemWithStrength(0.4), itemWithStrength(0.8),
	}
	ctx := model.Context{State: model.StateNormal, Intensity: model.IntensityMedium, Method: string(MethodThreshold)}

	activated := r.Activate(candidates, ctx)

	// No candidate may be activated below the 0.5 global threshold. With
	// these stale, context-less candidates every score stays below it (the
	// 0.8 one scores about 0.19), so at most the 0.8 candidate can appear.
	require := assert.New(t)
	require.LessOrEqual(len(activated), 1)
	if len(activated) == 1 {
		require.Equal(0.8, activated[0].Strength)
	}
}

func TestScenarioC_WinnerTakesAllTop3(t *testing.T) {
	r := New(Config{TargetActivationCount: 3})
	candidates := []*model.MemoryItem{
		itemWithStrength(0.1), itemWithStrength(0.2), itemWithStrength(0.3),
		itemWithStrength(0.4), itemWithStrength(0.5),
	}
	ctx := model.Context{Method: string(MethodWinnerTakesAll)}

	activated := r.Activate(candidates, ctx)

	assert.Len(t, activated, 3)
	assert.Equal(t, 0.5, activated[0].Strength)
	assert.Equal(t, 0.4, activated[1].Strength)
	assert.Equal(t, 0.3, activated[2].Strength)
}

func TestScenarioF_AdaptiveThresholdRaisesOverTime(t *testing.T) {
	r := New(Config{TargetSparsity: 0.05, TargetActivationCount: 3, InitialGlobalThreshold: 0.1})

	var candidates []*model.MemoryItem
	for i := 0; i < 10; i++ {
		candidates = append(candidates, itemWithStrength(0.9))
	}
	ctx := model.Context{Method: string(MethodWinnerTakesAll)}

	initial := r.Threshold()
	for i := 0; i < 100; i++ {
		r.Activate(candidates, ctx) // 3/10 = 0.3, six-fold the 0.05 target
	}

	stats := r.Statistics()
	assert.Greater(t, r.Threshold(), initial)
	assert.GreaterOrEqual(t, stats.SparsityViolations, int64(1))
}

func TestCompetitiveActivationRespectsBudget(t *testing.T) {
	r := New(Config{ActivationBudget: 0.1})
	candidates := []*model.MemoryItem{itemWithStrength(0.9), itemWithStrength(0.9), itemWithStrength(0.9)}
	ctx := model.Context{Method: string(MethodCompetitive)}

	activated := r.Activate(candidates, ctx)

	assert.Less(t, len(activated), len(candidates))
}

func TestClassifyDormant(t *testing.T) {
	assert.Equal(t, StateDormant, Classify(nil, 10))
}
