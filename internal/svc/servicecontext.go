// Package svc wires every component the engine needs into one
// ServiceContext, the teacher's own dependency-ownership pattern
// (internal/svc/servicecontext.go) generalized from REST handlers + DB
// models to this engine's scan-loop components.
package svc

import (
	"context"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/zeromicro/go-zero/core/logx"
	"github.com/zeromicro/go-zero/core/stores/cache"

	"predictcore/internal/config"
	"predictcore/internal/obslog"
	"predictcore/pkg/ensemble"
	"predictcore/pkg/exchange"
	"predictcore/pkg/exchange/sim"
	"predictcore/pkg/journal"
	"predictcore/pkg/learning"
	llmpkg "predictcore/pkg/llm"
	"predictcore/pkg/order"
	"predictcore/pkg/position"
	"predictcore/pkg/pricefeed"
	"predictcore/pkg/pricefeed/binance"
	"predictcore/pkg/risk"
	"predictcore/pkg/scanloop"
	"predictcore/pkg/signer"
	"predictcore/pkg/signer/hyperliquid"
	"predictcore/pkg/strategy"
)

// ServiceContext owns every component's dependencies. cmd/engine constructs
// exactly one of these at startup and hands Loop to the process's run
// method; nothing else reaches into these fields concurrently once Loop.Run
// is underway (the scan goroutine is the only writer — see pkg/scanloop's
// package doc).
type ServiceContext struct {
	Config *config.Config

	Exchange exchange.Client
	Signer   signer.Builder
	Feed     pricefeed.Feed

	RiskState *risk.State
	RiskGate  *risk.Gate

	Positions     *position.Manager
	LearningStore *learning.Store
	Journal       *journal.Journal

	Ensemble *ensemble.Ensemble
	ObsLog   *obslog.Recorder

	Executor   *order.Executor
	Dispatcher *strategy.Dispatcher
	Loop       *scanloop.Loop
}

// NewServiceContext builds the full dependency graph from a loaded config.
// ctx bounds only the construction-time calls (GetBalance, pricefeed
// subscriptions); it is not retained.
func NewServiceContext(ctx context.Context, c *config.Config) (*ServiceContext, error) {
	logx.MustSetup(c.LogxConf())

	j, err := journal.Open(c.Journal.Dir)
	if err != nil {
		return nil, fmt.Errorf("svc: open journal: %w", err)
	}

	exchangeClient, signerBuilder, err := buildExchange(c)
	if err != nil {
		return nil, fmt.Errorf("svc: build exchange: %w", err)
	}

	source := binance.NewSource(c.PriceFeed.PollInterval)
	feed := pricefeed.NewStreamFeed(ctx, source, c.PriceFeed.Assets)

	startingBalance, err := exchangeClient.GetBalance(ctx)
	if err != nil {
		return nil, fmt.Errorf("svc: fetch starting balance: %w", err)
	}
	riskState := risk.NewState(startingBalance, time.Now())
	riskGate := risk.NewGate(c.Risk, riskState)

	positions := position.NewManager(c.Position)
	learningStore := learning.NewStore(c.Learning)

	obsRecorder := obslog.New(c.ObsLog)

	advisors, rlAdvisor, err := buildAdvisors(c, learningStore, obsRecorder)
	if err != nil {
		return nil, fmt.Errorf("svc: build ensemble advisors: %w", err)
	}
	ens := ensemble.New(c.Ensemble.Config, advisors...)

	executor := order.NewExecutor(exchangeClient, signerBuilder)
	dispatcher := strategy.New(c.Strategy, ens, feed, riskGate, executor, positions, exchangeClient)

	loop := scanloop.New(
		c.ScanLoop,
		c.Risk,
		exchangeClient,
		feed,
		dispatcher,
		executor,
		positions,
		learningStore,
		riskState,
		ens,
		j,
		rlAdvisor,
		c.Ensemble.RLLearningRate,
	)

	return &ServiceContext{
		Config:        c,
		Exchange:      exchangeClient,
		Signer:        signerBuilder,
		Feed:          feed,
		RiskState:     riskState,
		RiskGate:      riskGate,
		Positions:     positions,
		LearningStore: learningStore,
		Journal:       j,
		Ensemble:      ens,
		ObsLog:        obsRecorder,
		Executor:      executor,
		Dispatcher:    dispatcher,
		Loop:          loop,
	}, nil
}

// buildExchange wires the exchange.Client + signer.Builder pair. Only the
// dry-run simulator is available today: no concrete live REST/WS venue
// adapter exists in this tree (see DESIGN.md — the teacher's
// leveraged-futures transport was dropped as out of scope, keeping only its
// signing logic, generalized into pkg/signer/hyperliquid). Live trading is
// therefore a documented extension point, not a silently degraded path.
func buildExchange(c *config.Config) (exchange.Client, signer.Builder, error) {
	if !c.Exchange.DryRun {
		return nil, nil, fmt.Errorf("svc: live exchange.Client has no concrete adapter yet; run with -dry-run (see DESIGN.md)")
	}

	privateKeyHex := c.Exchange.PrivateKey
	if privateKeyHex == "" {
		// Dry-run with no configured key: mint an ephemeral one so the
		// signing path still exercises real EIP-712/msgpack code, rather
		// than special-casing "no signer" through the rest of the engine.
		key, err := crypto.GenerateKey()
		if err != nil {
			return nil, nil, fmt.Errorf("generate ephemeral dry-run signing key: %w", err)
		}
		privateKeyHex = fmt.Sprintf("%x", crypto.FromECDSA(key))
		logx.Info("svc: dry-run with no exchange.private_key configured; using an ephemeral signing key")
	}

	builder, err := hyperliquid.NewBuilder(privateKeyHex, c.Exchange.IsMainnet)
	if err != nil {
		return nil, nil, fmt.Errorf("construct signer: %w", err)
	}

	provider := sim.NewProvider(c.Exchange.StartingBalance, nil)
	return provider, builder, nil
}

// buildAdvisors constructs the four §4.5 ensemble advisors. The LLM advisor
// is only included when a ZenMux-backed LLM client section was configured
// (llm_client.file); the ensemble still runs with RL+Historical+Technical
// when it is not, rather than failing startup over an optional advisor.
func buildAdvisors(c *config.Config, learningStore *learning.Store, recorder *obslog.Recorder) ([]ensemble.Advisor, *ensemble.RLAdvisor, error) {
	rlAdvisor := ensemble.NewRLAdvisor(c.Ensemble.RLWeight)
	advisors := []ensemble.Advisor{
		rlAdvisor,
		ensemble.NewHistoricalAdvisor(learningStore, c.Ensemble.HistoricalWeight),
		ensemble.NewTechnicalAdvisor(c.Ensemble.TechnicalWeight),
	}

	if c.LLMClient.Value == nil {
		logx.Info("svc: no llm_client configured; ensemble runs without the LLM advisor")
		return advisors, rlAdvisor, nil
	}

	llmClient, err := llmpkg.NewClient(c.LLMClient.Value)
	if err != nil {
		return nil, nil, fmt.Errorf("construct llm client: %w", err)
	}
	llmAdvisor, err := ensemble.NewLLMAdvisor(llmClient, cache.CacheConf{}, c.Ensemble.LLM, recorder)
	if err != nil {
		return nil, nil, fmt.Errorf("construct llm advisor: %w", err)
	}
	return append(advisors, llmAdvisor), rlAdvisor, nil
}
