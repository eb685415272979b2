package ensemble

// Decision is the ensemble's combined output for one Request.
type Decision struct {
	Action     Action
	Confidence float64 // weighted average of contributing confidences, 0..100
	Consensus  float64 // score[action] / sum(weight_participating), 0..1
	Votes      []AdvisorVote
	Reasoning  string
}

// Approved reports whether the decision clears the configured consensus and
// confidence thresholds and is not a SKIP.
func (d Decision) Approved(minConsensus, minConfidence float64) bool {
	if d.Action == Skip {
		return false
	}
	return d.Consensus >= minConsensus && d.Confidence >= minConfidence
}

// score tallies weighted contributions per action across a vote set.
type score struct {
	byAction      map[Action]float64
	weightByStake float64 // total weight of advisors that did not go NEUTRAL
}

func tally(votes []AdvisorVote) score {
	s := score{byAction: make(map[Action]float64, 4)}
	for _, v := range votes {
		if v.Action == Neutral {
			continue
		}
		contribution := (v.Confidence / 100) * v.Weight
		s.byAction[v.Action] += contribution
		s.weightByStake += v.Weight
	}
	return s
}

func (s score) argmax() (Action, float64) {
	best := Skip
	bestScore := -1.0
	// Fixed iteration order keeps argmax deterministic across runs even
	// when scores tie.
	for _, a := range []Action{BuyYes, BuyNo, BuyBoth, Skip} {
		v, ok := s.byAction[a]
		if !ok {
			continue
		}
		if v > bestScore {
			best = a
			bestScore = v
		}
	}
	if bestScore < 0 {
		return Skip, 0
	}
	return best, bestScore
}

// Combine applies the §4.5 weighted-voting algorithm to a completed vote
// set. opportunityType downgrades a BUY_BOTH result to SKIP when the
// request was directional, since arbitrage-only actions never apply there.
func Combine(opportunityType OpportunityType, votes []AdvisorVote) Decision {
	t := tally(votes)
	action, topScore := t.argmax()

	consensus := 0.0
	if t.weightByStake > 0 {
		consensus = topScore / t.weightByStake
	}

	if action == BuyBoth && opportunityType == OpportunityDirectional {
		action = Skip
	}

	confidence := weightedConfidence(votes, action)

	return Decision{
		Action:     action,
		Confidence: confidence,
		Consensus:  consensus,
		Votes:      votes,
		Reasoning:  reasoningSummary(votes, action),
	}
}

func weightedConfidence(votes []AdvisorVote, action Action) float64 {
	var weightedSum, weightSum float64
	for _, v := range votes {
		if v.Action != action {
			continue
		}
		weightedSum += v.Confidence * v.Weight
		weightSum += v.Weight
	}
	if weightSum == 0 {
		return 0
	}
	return weightedSum / weightSum
}

func reasoningSummary(votes []AdvisorVote, action Action) string {
	for _, v := range votes {
		if v.Action == action && v.Reason != "" {
			return v.Reason
		}
	}
	return string(action)
}
