package cli

import (
	"fmt"

	"github.com/zeromicro/go-zero/core/logx"

	"predictcore/internal/config"
)

// ConfigSummaryLines returns human readable lines describing the loaded
// engine config, logged once at startup so a dry-run vs. live process is
// unambiguous from its log output alone.
func ConfigSummaryLines(cfg *config.Config) []string {
	if cfg == nil {
		return []string{"Configuration: <nil>"}
	}

	lines := []string{
		fmt.Sprintf("Environment: %s", cfg.Env),
		fmt.Sprintf("Journal dir: %s", cfg.Journal.Dir),
		fmt.Sprintf("Assets: %v", cfg.PriceFeed.Assets),
		fmt.Sprintf("Exchange: dry_run=%t mainnet=%t starting_balance=%s",
			cfg.Exchange.DryRun, cfg.Exchange.IsMainnet, cfg.Exchange.StartingBalance),
		fmt.Sprintf("Scan interval: %s (heartbeat every %s)", cfg.ScanLoop.ScanInterval, cfg.ScanLoop.HeartbeatInterval),
		fmt.Sprintf("Risk: min_edge=%s", cfg.Risk.MinEdge),
		fmt.Sprintf("Position: max_hold=%dm force_exit_before_close=%dm", cfg.Position.MaxHoldMinutes, cfg.Position.ForceExitMinutesBeforeClose),
		fmt.Sprintf("Learning: min_trades=%d rate=%v", cfg.Learning.MinTradesForLearning, cfg.Learning.LearningRate),
		fmt.Sprintf("Ensemble: min_consensus=%v min_confidence=%v deadline=%s weights(rl=%v historical=%v technical=%v llm=%v)",
			cfg.Ensemble.MinConsensus, cfg.Ensemble.MinConfidence, cfg.Ensemble.DecisionDeadline,
			cfg.Ensemble.RLWeight, cfg.Ensemble.HistoricalWeight, cfg.Ensemble.TechnicalWeight, cfg.Ensemble.LLM.Weight),
		fmt.Sprintf("LLM client: %s", sectionPresence(cfg.LLMClient.File != "" || cfg.LLMClient.Value != nil)),
		fmt.Sprintf("Observability log: %s", presence(cfg.ObsLog.DSN != "")),
	}

	return lines
}

// LogConfigSummary emits the configuration summary using logx.
func LogConfigSummary(cfg *config.Config) {
	lines := ConfigSummaryLines(cfg)
	if len(lines) == 0 {
		return
	}
	logx.Info("configuration summary")
	for _, line := range lines {
		logx.Infof("config • %s", line)
	}
}

func presence(ok bool) string {
	if ok {
		return "configured"
	}
	return "not configured"
}

func sectionPresence(ok bool) string {
	if ok {
		return "configured"
	}
	return "not configured (ensemble runs without the LLM advisor)"
}
