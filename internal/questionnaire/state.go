package questionnaire

import (
	"errors"
	"fmt"
)

// Thresholds holds the day and score boundaries of the state machine.
type Thresholds struct {
	// EarlyPhaseEnd is the last day of the early lifecycle phase.
	EarlyPhaseEnd int `yaml:"early_phase_end"`
	// MidPhaseEnd is the last day of the mid lifecycle phase.
	MidPhaseEnd int `yaml:"mid_phase_end"`
	// NormalFromDay is the first day a new bag is considered settled.
	NormalFromDay int `yaml:"normal_from_day"`
	// NearingEndOffset counts back from the final day to the start of nearing_end.
	NearingEndOffset int `yaml:"nearing_end_offset"`
	// EndgameOffset counts back from the final day to the start of the endgame branch.
	EndgameOffset int `yaml:"endgame_offset"`
	// LowScoreMax is the highest score still treated as a complaint.
	LowScoreMax int `yaml:"low_score_max"`
}

func DefaultThresholds() Thresholds {
	return Thresholds{
		EarlyPhaseEnd:    7,
		MidPhaseEnd:      14,
		NormalFromDay:    3,
		NearingEndOffset: 2,
		EndgameOffset:    3,
		LowScoreMax:      2,
	}
}

func (t Thresholds) Validate() error {
	if t.EarlyPhaseEnd < 1 || t.MidPhaseEnd <= t.EarlyPhaseEnd {
		return fmt.Errorf("phase boundaries must satisfy 1 <= early (%d) < mid (%d)", t.EarlyPhaseEnd, t.MidPhaseEnd)
	}
	if t.NormalFromDay < 1 {
		return errors.New("normal_from_day must be positive")
	}
	if t.NearingEndOffset < 0 || t.EndgameOffset < 0 {
		return errors.New("offsets must not be negative")
	}
	if t.LowScoreMax < MinScore || t.LowScoreMax >= MaxScore {
		return fmt.Errorf("low_score_max must be between %d and %d", MinScore, MaxScore-1)
	}
	return nil
}

// State is the evaluated tuple for one day.
type State struct {
	Day            int            `json:"day"`
	MaterialState  MaterialState  `json:"materialState"`
	LogicBranch    LogicBranch    `json:"logicBranch"`
	LifecyclePhase LifecyclePhase `json:"lifecyclePhase"`
}

// Calculator is a pure function of (day, period, current state, scores).
type Calculator struct {
	th Thresholds
}

func NewCalculator(th Thresholds) *Calculator {
	return &Calculator{th: th}
}

func (c *Calculator) Thresholds() Thresholds { return c.th }

func (c *Calculator) LifecyclePhase(day int) LifecyclePhase {
	switch {
	case day <= c.th.EarlyPhaseEnd:
		return PhaseEarly
	case day <= c.th.MidPhaseEnd:
		return PhaseMid
	default:
		return PhaseLate
	}
}

// MaterialState advances current as far as day allows. It never moves backwards.
// The final day is still open, so ended is only reached once day > period.
func (c *Calculator) MaterialState(current MaterialState, day, period int) MaterialState {
	state := current
	if !state.Valid() {
		state = StateNewBag
	}
	nearing := period - c.th.NearingEndOffset
	for {
		switch state {
		case StateNewBag:
			if day >= c.th.NormalFromDay || day >= nearing {
				state = StateNormal
				continue
			}
		case StateNormal:
			if day >= nearing {
				state = StateNearingEnd
				continue
			}
		case StateNearingEnd:
			if day > period {
				state = StateEnded
				continue
			}
		}
		return state
	}
}

// LogicBranch picks the questioning branch. Endgame takes precedence; the final
// day itself belongs to the retrospective check.
func (c *Calculator) LogicBranch(state MaterialState, day, period int, scores *StructuredScores) LogicBranch {
	if state == StateNearingEnd && day >= period-c.th.EndgameOffset && day < period {
		return BranchEndgame
	}
	if day == period && scores != nil && (scores.Odor <= c.th.LowScoreMax || scores.Dust <= c.th.LowScoreMax) {
		return BranchRetrospective
	}
	return BranchNormal
}

// Evaluate transitions the material state first, then derives the branch from it.
func (c *Calculator) Evaluate(current MaterialState, day, period int, scores *StructuredScores) State {
	state := c.MaterialState(current, day, period)
	return State{
		Day:            day,
		MaterialState:  state,
		LogicBranch:    c.LogicBranch(state, day, period, scores),
		LifecyclePhase: c.LifecyclePhase(day),
	}
}

// CycleIndex returns the 1-based week of day and the day's position within it.
func CycleIndex(day int) (cycle, dayInCycle int) {
	if day < 1 {
		return 0, 0
	}
	return (day + 6) / 7, (day-1)%7 + 1
}
