package ensemble_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zeromicro/go-zero/core/stores/cache"

	"predictcore/pkg/ensemble"
	"predictcore/pkg/llm"
)

type fakeLLMClient struct {
	calls    int
	response string
	err      error
}

func (f *fakeLLMClient) Chat(ctx context.Context, req *llm.ChatRequest) (*llm.ChatResponse, error) {
	return nil, nil
}

func (f *fakeLLMClient) ChatStream(ctx context.Context, req *llm.ChatRequest) (<-chan llm.StreamResponse, error) {
	return nil, nil
}

func (f *fakeLLMClient) ChatStructured(ctx context.Context, req *llm.ChatRequest, target interface{}) (interface{}, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return nil, json.Unmarshal([]byte(f.response), target)
}

func (f *fakeLLMClient) GetConfig() *llm.Config { return nil }

func (f *fakeLLMClient) Close() error { return nil }

type fakeRecorder struct {
	records int
}

func (r *fakeRecorder) Record(marketID, advisor, requestDigest, responseDigest string, latency time.Duration, cached bool) {
	r.records++
}

func TestLLMAdvisor_Vote_ParsesStructuredResponse(t *testing.T) {
	client := &fakeLLMClient{response: `{"action":"BUY_YES","confidence":72,"reasoning":"momentum favors yes"}`}
	rec := &fakeRecorder{}

	advisor, err := ensemble.NewLLMAdvisor(client, nil, ensemble.LLMAdvisorConfig{Weight: 0.3}, rec)
	require.NoError(t, err)

	vote := advisor.Vote(context.Background(), ensemble.Request{MarketID: "m1", YesPrice: 0.4, NoPrice: 0.6})
	assert.Equal(t, ensemble.BuyYes, vote.Action)
	assert.InDelta(t, 72, vote.Confidence, 1e-9)
	assert.Equal(t, 1, rec.records)
}

func TestLLMAdvisor_Vote_TransportErrorDegradesToSkip(t *testing.T) {
	client := &fakeLLMClient{err: assert.AnError}
	advisor, err := ensemble.NewLLMAdvisor(client, nil, ensemble.LLMAdvisorConfig{Weight: 0.3}, nil)
	require.NoError(t, err)

	vote := advisor.Vote(context.Background(), ensemble.Request{MarketID: "m2"})
	assert.Equal(t, ensemble.Skip, vote.Action)
	assert.Zero(t, vote.Confidence)
}

func TestLLMAdvisor_Vote_RateLimitsRepeatedCallsPerMarket(t *testing.T) {
	client := &fakeLLMClient{response: `{"action":"SKIP","confidence":0,"reasoning":"no edge"}`}
	advisor, err := ensemble.NewLLMAdvisor(client, nil, ensemble.LLMAdvisorConfig{Weight: 0.3, MinInterval: time.Hour}, nil)
	require.NoError(t, err)

	advisor.Vote(context.Background(), ensemble.Request{MarketID: "m3"})
	advisor.Vote(context.Background(), ensemble.Request{MarketID: "m3"})

	assert.Equal(t, 1, client.calls)
}

func TestLLMAdvisor_Vote_NoCacheConfigured_StillWorks(t *testing.T) {
	client := &fakeLLMClient{response: `{"action":"BUY_NO","confidence":55,"reasoning":"edge on no"}`}
	advisor, err := ensemble.NewLLMAdvisor(client, cache.CacheConf{}, ensemble.LLMAdvisorConfig{Weight: 0.3}, nil)
	require.NoError(t, err)

	vote := advisor.Vote(context.Background(), ensemble.Request{MarketID: "m4"})
	assert.Equal(t, ensemble.BuyNo, vote.Action)
}
