package ensemble

import (
	"context"
	"fmt"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/zeromicro/go-zero/core/stores/cache"
	"github.com/zeromicro/go-zero/core/syncx"

	"predictcore/pkg/llm"
)

// llmVoteResponse is the structured JSON shape requested from the model,
// per §6 "ensemble.LLMAdvisor (consumed)".
type llmVoteResponse struct {
	Action          string   `json:"action"`
	Confidence      *float64 `json:"confidence"`
	Reasoning       string   `json:"reasoning"`
	RiskAssessment  string   `json:"risk_assessment"`
}

// LLMAdvisorConfig controls rate limiting, caching and the request deadline
// of the LLM-backed advisor.
type LLMAdvisorConfig struct {
	Model          string        `yaml:"model"`
	Weight         float64       `yaml:"weight"`
	CacheTTL       time.Duration `yaml:"-"`
	MinInterval    time.Duration `yaml:"-"` // minimum spacing between requests per market
	Semaphore      int           `yaml:"semaphore"`
	PromptTemplate string        `yaml:"prompt_template"` // path to the prompt template file

	// CacheTTLSeconds/MinIntervalSeconds are the §6 YAML surface
	// (llm_cache_ttl_s, llm_min_interval_s); internal/config converts them
	// into CacheTTL/MinInterval after unmarshaling.
	CacheTTLSeconds    int `yaml:"llm_cache_ttl_s"`
	MinIntervalSeconds int `yaml:"llm_min_interval_s"`
}

// LLMAdvisor consults an external LLM, caching responses (when a cache is
// configured) by (market_id, price_bucket, momentum_bucket, opportunity
// type) and rate-limiting to at most
// one request per market every MinInterval. Any parse or transport failure
// degrades to a SKIP vote at 0 confidence; nothing here ever panics or
// returns an error to the ensemble.
type LLMAdvisor struct {
	client   llm.LLMClient
	cache    cache.Cache
	template *llm.PromptTemplate
	sem      syncx.Limit
	cfg      LLMAdvisorConfig
	recorder ConversationRecorder

	mu       sync.Mutex
	lastCall map[string]time.Time
}

// ConversationRecorder is the ambient, observability-only sink for LLM
// request/response digests. A nil recorder disables recording; recording
// never blocks or affects the vote.
type ConversationRecorder interface {
	Record(marketID, advisor, requestDigest, responseDigest string, latency time.Duration, cached bool)
}

// NewLLMAdvisor constructs an advisor backed by client. cacheConf may be the
// zero value, in which case no Redis dependency is required to run the
// engine in dry-run mode; responses are then not cached at all, and every
// vote that passes the rate limit queries the model.
func NewLLMAdvisor(client llm.LLMClient, cacheConf cache.CacheConf, cfg LLMAdvisorConfig, recorder ConversationRecorder) (*LLMAdvisor, error) {
	if cfg.Semaphore <= 0 {
		cfg.Semaphore = 4
	}
	if cfg.MinInterval <= 0 {
		cfg.MinInterval = 5 * time.Second
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = 30 * time.Second
	}

	var c cache.Cache
	if len(cacheConf) > 0 {
		var err error
		c, err = cache.NewCache(cacheConf)
		if err != nil {
			return nil, fmt.Errorf("ensemble: construct llm cache: %w", err)
		}
	}

	var tmpl *llm.PromptTemplate
	if cfg.PromptTemplate != "" {
		var err error
		tmpl, err = llm.NewPromptTemplate(cfg.PromptTemplate, nil)
		if err != nil {
			return nil, fmt.Errorf("ensemble: load llm prompt template: %w", err)
		}
	}

	return &LLMAdvisor{
		client:   client,
		cache:    c,
		template: tmpl,
		sem:      syncx.NewLimit(cfg.Semaphore),
		cfg:      cfg,
		recorder: recorder,
		lastCall: make(map[string]time.Time),
	}, nil
}

// Name implements Advisor.
func (a *LLMAdvisor) Name() string { return "llm" }

// Vote implements Advisor.
func (a *LLMAdvisor) Vote(ctx context.Context, req Request) AdvisorVote {
	base := AdvisorVote{Advisor: a.Name(), Weight: a.cfg.Weight, Action: Skip}

	if !a.sem.Borrow() {
		return base
	}
	defer func() { _ = a.sem.Return() }()

	if a.rateLimited(req.MarketID) {
		return base
	}

	key := cacheKey(req)
	start := time.Now()

	resp, cached, err := a.fetch(ctx, key, req)
	if err != nil {
		return base
	}

	if a.recorder != nil {
		a.recorder.Record(req.MarketID, a.Name(), key, resp.Action, time.Since(start), cached)
	}

	return voteFromResponse(a.cfg.Weight, resp)
}

func (a *LLMAdvisor) rateLimited(marketID string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	now := time.Now()
	if last, ok := a.lastCall[marketID]; ok && now.Sub(last) < a.cfg.MinInterval {
		return true
	}
	a.lastCall[marketID] = now
	return false
}

func (a *LLMAdvisor) fetch(ctx context.Context, key string, req Request) (llmVoteResponse, bool, error) {
	if a.cache == nil {
		resp, err := a.query(ctx, req)
		return resp, false, err
	}

	var resp llmVoteResponse
	cached := true
	err := a.cache.Take(&resp, key, func(v interface{}) error {
		cached = false
		out, err := a.query(ctx, req)
		if err != nil {
			return err
		}
		*(v.(*llmVoteResponse)) = out
		return nil
	})
	return resp, cached, err
}

func (a *LLMAdvisor) query(ctx context.Context, req Request) (llmVoteResponse, error) {
	text, err := a.renderPrompt(req)
	if err != nil {
		return llmVoteResponse{}, err
	}

	chatReq := &llm.ChatRequest{
		Model: a.cfg.Model,
		Messages: []llm.Message{
			{Role: "user", Content: text},
		},
	}

	var out llmVoteResponse
	if _, err := a.client.ChatStructured(ctx, chatReq, &out); err != nil {
		return llmVoteResponse{}, err
	}
	return out, nil
}

func (a *LLMAdvisor) renderPrompt(req Request) (string, error) {
	if a.template != nil {
		return a.template.Render(req)
	}
	return fmt.Sprintf(
		"Market %s asset=%s yes=%.4f no=%.4f momentum=%.4f opportunity=%s. Respond with action, confidence, reasoning, risk_assessment.",
		req.MarketID, req.Asset, req.YesPrice, req.NoPrice, req.RecentMomentum, req.OpportunityType,
	), nil
}

func voteFromResponse(weight float64, resp llmVoteResponse) AdvisorVote {
	action := parseAction(resp.Action)
	confidence := 0.0
	if resp.Confidence != nil {
		confidence = math.Max(0, math.Min(100, *resp.Confidence))
	}
	if action == Skip {
		confidence = 0
	}
	return AdvisorVote{
		Advisor:    "llm",
		Action:     action,
		Confidence: confidence,
		Weight:     weight,
		Reason:     resp.Reasoning,
	}
}

func parseAction(s string) Action {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case string(BuyYes):
		return BuyYes
	case string(BuyNo):
		return BuyNo
	case string(BuyBoth):
		return BuyBoth
	case string(Neutral):
		return Neutral
	default:
		return Skip
	}
}

// cacheKey buckets the request per §4.5: (market_id, price_bucket,
// momentum_bucket), plus the request's opportunity type.
func cacheKey(req Request) string {
	priceBucket := math.Round(req.YesPrice*20) / 20
	momentumBucket := math.Round(req.RecentMomentum*1000) / 1000
	return fmt.Sprintf("llm:%s:%.2f:%.3f:%s", req.MarketID, priceBucket, momentumBucket, req.OpportunityType)
}
