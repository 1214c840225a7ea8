package questionnaire

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLifecyclePhase(t *testing.T) {
	calc := NewCalculator(DefaultThresholds())
	tests := []struct {
		day  int
		want LifecyclePhase
	}{
		{1, PhaseEarly},
		{7, PhaseEarly},
		{8, PhaseMid},
		{14, PhaseMid},
		{15, PhaseLate},
		{28, PhaseLate},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, calc.LifecyclePhase(tt.day), "day %d", tt.day)
	}
}

func TestMaterialStateTransitions(t *testing.T) {
	calc := NewCalculator(DefaultThresholds())
	tests := []struct {
		name    string
		current MaterialState
		day     int
		period  int
		want    MaterialState
	}{
		{"day one stays new", StateNewBag, 1, 21, StateNewBag},
		{"empty treated as new", "", 2, 21, StateNewBag},
		{"settles on day three", StateNewBag, 3, 21, StateNormal},
		{"normal mid period", StateNormal, 10, 21, StateNormal},
		{"nearing end two days out", StateNormal, 19, 21, StateNearingEnd},
		{"catch up from new bag", StateNewBag, 20, 21, StateNearingEnd},
		{"final day still open", StateNearingEnd, 21, 21, StateNearingEnd},
		{"ends once period exhausted", StateNearingEnd, 22, 21, StateEnded},
		{"longer period", StateNormal, 19, 28, StateNormal},
		{"never backwards", StateNearingEnd, 4, 21, StateNearingEnd},
		{"ended is terminal", StateEnded, 2, 21, StateEnded},
		{"short period", StateNewBag, 1, 1, StateNearingEnd},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, calc.MaterialState(tt.current, tt.day, tt.period))
		})
	}
}

func TestMaterialStateIsMonotonic(t *testing.T) {
	calc := NewCalculator(DefaultThresholds())
	for _, period := range []int{1, 3, 7, 21, 28} {
		state := StateNewBag
		for day := 1; day <= period+2; day++ {
			next := calc.MaterialState(state, day, period)
			require.False(t, next.Before(state), "period %d day %d: %s -> %s", period, day, state, next)
			state = next
		}
		assert.Equal(t, StateEnded, state, "period %d", period)
	}
}

func TestLogicBranch(t *testing.T) {
	calc := NewCalculator(DefaultThresholds())
	low := &StructuredScores{Odor: 2, Dust: 4, Clumping: 3, Comfort: 3, Cleanup: 3}
	dusty := &StructuredScores{Odor: 4, Dust: 1, Clumping: 3, Comfort: 3, Cleanup: 3}
	fine := &StructuredScores{Odor: 4, Dust: 4, Clumping: 4, Comfort: 4, Cleanup: 4}

	tests := []struct {
		name   string
		state  MaterialState
		day    int
		scores *StructuredScores
		want   LogicBranch
	}{
		{"normal day", StateNormal, 10, fine, BranchNormal},
		{"endgame window", StateNearingEnd, 19, fine, BranchEndgame},
		{"endgame first day", StateNearingEnd, 18, low, BranchEndgame},
		{"endgame needs nearing end", StateNormal, 18, fine, BranchNormal},
		{"retrospective on odor", StateNearingEnd, 21, low, BranchRetrospective},
		{"retrospective on dust", StateEnded, 21, dusty, BranchRetrospective},
		{"final day without complaints", StateEnded, 21, fine, BranchNormal},
		{"final day without scores", StateEnded, 21, nil, BranchNormal},
		{"low scores before final day", StateNormal, 12, low, BranchNormal},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, calc.LogicBranch(tt.state, tt.day, 21, tt.scores))
		})
	}
}

func TestEvaluateRetrospectiveOnFinalDay(t *testing.T) {
	calc := NewCalculator(DefaultThresholds())
	scores := &StructuredScores{Odor: 2, Dust: 4, Clumping: 4, Comfort: 4, Cleanup: 4}

	st := calc.Evaluate(StateNearingEnd, 21, 21, scores)

	assert.Equal(t, StateNearingEnd, st.MaterialState)
	assert.Equal(t, BranchRetrospective, st.LogicBranch)
	assert.Equal(t, PhaseLate, st.LifecyclePhase)
	assert.Equal(t, 21, st.Day)
}

func TestThresholdsValidate(t *testing.T) {
	require.NoError(t, DefaultThresholds().Validate())

	bad := DefaultThresholds()
	bad.MidPhaseEnd = bad.EarlyPhaseEnd
	assert.Error(t, bad.Validate())

	bad = DefaultThresholds()
	bad.LowScoreMax = 5
	assert.Error(t, bad.Validate())
}

func TestCycleIndex(t *testing.T) {
	tests := []struct{ day, cycle, inCycle int }{
		{1, 1, 1},
		{7, 1, 7},
		{8, 2, 1},
		{21, 3, 7},
		{22, 4, 1},
	}
	for _, tt := range tests {
		c, d := CycleIndex(tt.day)
		assert.Equal(t, tt.cycle, c, "day %d", tt.day)
		assert.Equal(t, tt.inCycle, d, "day %d", tt.day)
	}
}
