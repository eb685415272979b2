package ensemble

import (
	"context"
	"sync"
	"time"

	"github.com/zeromicro/go-zero/core/logx"
)

// Config controls the ensemble's execution thresholds and per-advisor
// decision deadline.
type Config struct {
	MinConsensus     float64       `yaml:"min_consensus"`
	MinConfidence    float64       `yaml:"min_confidence"`
	DecisionDeadline time.Duration `yaml:"-"`

	// DecisionDeadlineSeconds is the §6 YAML surface ("decision deadline (3
	// s)"); internal/config converts it into DecisionDeadline after
	// unmarshaling, same reasoning as scanloop.Config's *Seconds fields.
	DecisionDeadlineSeconds int `yaml:"decision_deadline_s"`
}

// Ensemble gathers votes from every registered advisor and combines them
// into a single Decision.
type Ensemble struct {
	advisors []Advisor
	cfg      Config
}

// New constructs an Ensemble over the given advisors. Advisor order does not
// affect the chosen action or its scores; each advisor's Weight field (set on
// its votes) drives the combination. Order does decide which matching vote's
// Reason becomes the Decision's reasoning.
func New(cfg Config, advisors ...Advisor) *Ensemble {
	if cfg.DecisionDeadline <= 0 {
		cfg.DecisionDeadline = 3 * time.Second
	}
	return &Ensemble{advisors: advisors, cfg: cfg}
}

// Decide runs every advisor concurrently, each on its own goroutine, and
// combines whatever votes land within the deadline. Advisors that do not
// respond in time contribute a NEUTRAL vote, per §4.5 cancellation policy.
func (e *Ensemble) Decide(ctx context.Context, req Request) Decision {
	ctx, cancel := context.WithTimeout(ctx, e.cfg.DecisionDeadline)
	defer cancel()

	votes := make([]AdvisorVote, len(e.advisors))
	claimed := make([]bool, len(e.advisors))
	var mu sync.Mutex

	var wg sync.WaitGroup
	for i, advisor := range e.advisors {
		wg.Add(1)
		go func(i int, advisor Advisor) {
			defer wg.Done()
			vote := e.collect(ctx, advisor, req)
			mu.Lock()
			if !claimed[i] {
				votes[i] = vote
				claimed[i] = true
			}
			mu.Unlock()
		}(i, advisor)
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		logx.WithContext(ctx).Infof("ensemble: deadline reached for market %s, late advisors downgraded to NEUTRAL", req.MarketID)
	}

	mu.Lock()
	for i, advisor := range e.advisors {
		if !claimed[i] {
			votes[i] = AdvisorVote{Advisor: advisor.Name(), Action: Neutral}
			claimed[i] = true
		}
	}
	snapshot := append([]AdvisorVote(nil), votes...)
	mu.Unlock()

	decision := Combine(req.OpportunityType, snapshot)
	return decision
}

func (e *Ensemble) collect(ctx context.Context, advisor Advisor, req Request) AdvisorVote {
	defer func() {
		if r := recover(); r != nil {
			logx.WithContext(ctx).Errorf("ensemble: advisor %s panicked: %v", advisor.Name(), r)
		}
	}()
	return advisor.Vote(ctx, req)
}
