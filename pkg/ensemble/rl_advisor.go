package ensemble

import (
	"context"
	"math"
	"sync"
)

// rlState discretizes a request into the Q-table's lookup key.
type rlState struct {
	momentumBucket int
	volatilityBucket int
	imbalanceBucket int
}

// RLAdvisor maintains a simple tabular Q-function over discretized market
// state. It is deliberately small: a production system would persist and
// retrain the table, but the contract this engine depends on is just
// "argmax over a handful of actions, softmax-derived confidence".
type RLAdvisor struct {
	weight float64

	mu sync.Mutex
	q  map[rlState]map[Action]float64
}

// NewRLAdvisor constructs an advisor with an empty Q-table; learned values
// enter it only through Update.
func NewRLAdvisor(weight float64) *RLAdvisor {
	return &RLAdvisor{weight: weight, q: make(map[rlState]map[Action]float64)}
}

// Name implements Advisor.
func (a *RLAdvisor) Name() string { return "rl" }

// Update records an observed reward for a (state, action) pair, nudging the
// Q-table towards it. Called by the learning pipeline after a position
// closes; never called from the hot decision path.
func (a *RLAdvisor) Update(req Request, action Action, reward, learningRate float64) {
	state := discretize(req)
	a.mu.Lock()
	defer a.mu.Unlock()
	row, ok := a.q[state]
	if !ok {
		row = make(map[Action]float64, 4)
		a.q[state] = row
	}
	row[action] += learningRate * (reward - row[action])
}

// Vote implements Advisor: argmax over the Q-table row for this state, with
// softmax-derived confidence. An unseen state votes NEUTRAL.
func (a *RLAdvisor) Vote(ctx context.Context, req Request) AdvisorVote {
	state := discretize(req)

	a.mu.Lock()
	row, ok := a.q[state]
	cp := make(map[Action]float64, len(row))
	for k, v := range row {
		cp[k] = v
	}
	a.mu.Unlock()

	if !ok || len(cp) == 0 {
		return AdvisorVote{Advisor: a.Name(), Action: Neutral, Weight: a.weight}
	}

	best, bestVal := Skip, math.Inf(-1)
	for _, act := range []Action{BuyYes, BuyNo, BuyBoth, Skip} {
		if v, ok := cp[act]; ok && v > bestVal {
			best, bestVal = act, v
		}
	}

	confidence := softmaxShare(cp, best) * 100
	return AdvisorVote{
		Advisor:    a.Name(),
		Action:     best,
		Confidence: confidence,
		Weight:     a.weight,
		Reason:     "q-table argmax",
	}
}

func softmaxShare(values map[Action]float64, target Action) float64 {
	if len(values) == 0 {
		return 0
	}
	var sum float64
	for _, v := range values {
		sum += math.Exp(v)
	}
	if sum == 0 {
		return 0
	}
	return math.Exp(values[target]) / sum
}

func discretize(req Request) rlState {
	return rlState{
		momentumBucket:   bucket(req.RecentMomentum, 0.001),
		volatilityBucket: bucket(volatilityProxy(req), 0.001),
		imbalanceBucket:  bucket(req.YesPrice-req.NoPrice, 0.02),
	}
}

func volatilityProxy(req Request) float64 {
	return math.Abs(req.RecentMomentum)
}

func bucket(v, step float64) int {
	if step <= 0 {
		return 0
	}
	return int(math.Round(v / step))
}
