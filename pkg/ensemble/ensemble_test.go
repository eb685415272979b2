package ensemble_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"predictcore/pkg/ensemble"
)

type fixedAdvisor struct {
	name string
	vote ensemble.AdvisorVote
	slow bool
}

func (f fixedAdvisor) Name() string { return f.name }

func (f fixedAdvisor) Vote(ctx context.Context, req ensemble.Request) ensemble.AdvisorVote {
	if f.slow {
		select {
		case <-ctx.Done():
			return ensemble.AdvisorVote{Advisor: f.name, Action: ensemble.Neutral}
		case <-time.After(time.Hour):
		}
	}
	return f.vote
}

func TestEnsemble_Decide_CombinesAgreeingVotes(t *testing.T) {
	advisors := []ensemble.Advisor{
		fixedAdvisor{name: "a", vote: ensemble.AdvisorVote{Advisor: "a", Action: ensemble.BuyYes, Confidence: 80, Weight: 0.5}},
		fixedAdvisor{name: "b", vote: ensemble.AdvisorVote{Advisor: "b", Action: ensemble.BuyYes, Confidence: 60, Weight: 0.5}},
	}
	e := ensemble.New(ensemble.Config{MinConsensus: 0.15, MinConfidence: 15}, advisors...)

	decision := e.Decide(context.Background(), ensemble.Request{OpportunityType: ensemble.OpportunityDirectional})
	assert.Equal(t, ensemble.BuyYes, decision.Action)
	assert.True(t, decision.Approved(0.15, 15))
}

func TestEnsemble_Decide_DowngradesBuyBothForDirectional(t *testing.T) {
	advisors := []ensemble.Advisor{
		fixedAdvisor{name: "a", vote: ensemble.AdvisorVote{Advisor: "a", Action: ensemble.BuyBoth, Confidence: 90, Weight: 1.0}},
	}
	e := ensemble.New(ensemble.Config{MinConsensus: 0.1, MinConfidence: 1}, advisors...)

	decision := e.Decide(context.Background(), ensemble.Request{OpportunityType: ensemble.OpportunityDirectional})
	assert.Equal(t, ensemble.Skip, decision.Action)
	assert.False(t, decision.Approved(0.1, 1))
}

func TestEnsemble_Decide_LateAdvisorDowngradesToNeutral(t *testing.T) {
	advisors := []ensemble.Advisor{
		fixedAdvisor{name: "fast", vote: ensemble.AdvisorVote{Advisor: "fast", Action: ensemble.BuyYes, Confidence: 90, Weight: 0.5}},
		fixedAdvisor{name: "slow", slow: true},
	}
	e := ensemble.New(ensemble.Config{MinConsensus: 0.1, MinConfidence: 1, DecisionDeadline: 20 * time.Millisecond}, advisors...)

	decision := e.Decide(context.Background(), ensemble.Request{})
	assert.Equal(t, ensemble.BuyYes, decision.Action)
	assert.Len(t, decision.Votes, 2)
}

func TestCombine_NoVotes_SkipsWithZeroConsensus(t *testing.T) {
	decision := ensemble.Combine(ensemble.OpportunityDirectional, nil)
	assert.Equal(t, ensemble.Skip, decision.Action)
	assert.Zero(t, decision.Consensus)
}
