// Package config loads the engine's single YAML configuration document and
// validates it once at startup, mirroring the teacher's own
// pkg/manager/config.go: a strongly typed Config struct, gopkg.in/yaml.v3
// unmarshaling (not go-zero's core/conf — this Config embeds no
// rest.RestConf, so there is no reason to take on core/conf's json-tag
// convention), a Validate() pass, and a .env overlay for secrets via
// pkg/confkit's dotenv loader.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/zeromicro/go-zero/core/logx"
	"gopkg.in/yaml.v3"

	"predictcore/internal/obslog"
	"predictcore/pkg/confkit"
	"predictcore/pkg/ensemble"
	"predictcore/pkg/learning"
	llmpkg "predictcore/pkg/llm"
	"predictcore/pkg/market"
	"predictcore/pkg/position"
	"predictcore/pkg/risk"
	"predictcore/pkg/scanloop"
	"predictcore/pkg/strategy"
)

// LogConfig mirrors the handful of logx.LogConf fields the engine actually
// exercises; kept as our own small, yaml-tagged type rather than embedding
// logx.LogConf directly, since logx.LogConf's own tags are go-zero's
// json-style convention and would not round-trip through yaml.v3's default
// field-name matching the way ours do.
type LogConfig struct {
	ServiceName string `yaml:"service_name"`
	Mode        string `yaml:"mode"` // console | file | volume
	Encoding    string `yaml:"encoding"`
	Level       string `yaml:"level"`
	Path        string `yaml:"path"`
}

// DefaultLogConfig matches logx's own package defaults.
func DefaultLogConfig() LogConfig {
	return LogConfig{ServiceName: "predictcore", Mode: "console", Encoding: "json", Level: "info"}
}

func (l LogConfig) toLogx() logx.LogConf {
	return logx.LogConf{
		ServiceName: l.ServiceName,
		Mode:        l.Mode,
		Encoding:    l.Encoding,
		Level:       l.Level,
		Path:        l.Path,
	}
}

// JournalConfig names the directory the three journal documents (§4.10)
// are written under.
type JournalConfig struct {
	Dir string `yaml:"dir"`
}

// PriceFeedConfig controls which assets pricefeed.NewStreamFeed subscribes
// to and how often the concrete pricefeed/binance.Source polls.
type PriceFeedConfig struct {
	Assets []market.Asset `yaml:"assets"`

	// PollIntervalMillis is the YAML surface; PollInterval is the converted
	// time.Duration internal/svc actually wires up.
	PollIntervalMillis int           `yaml:"poll_interval_ms"`
	PollInterval       time.Duration `yaml:"-"`
}

// ExchangeConfig selects dry-run vs. live wiring. PrivateKey is expected to
// be a "${ENV_VAR}" reference, expanded via os.ExpandEnv at load time,
// exactly as the teacher's pkg/exchange/config.go does for its own
// PrivateKey field — the YAML document itself never carries the secret.
type ExchangeConfig struct {
	DryRun          bool            `yaml:"dry_run"`
	StartingBalance decimal.Decimal `yaml:"starting_balance"`
	IsMainnet       bool            `yaml:"is_mainnet"`
	PrivateKey      string          `yaml:"private_key"`
}

// EnsembleConfig wraps ensemble.Config with the per-advisor weights and the
// LLM advisor's own sub-config; §6 groups all of these under one
// "ensemble:" YAML key.
type EnsembleConfig struct {
	ensemble.Config `yaml:",inline"`

	RLWeight       float64 `yaml:"rl_weight"`
	RLLearningRate float64 `yaml:"rl_learning_rate"`

	HistoricalWeight float64 `yaml:"historical_weight"`
	TechnicalWeight  float64 `yaml:"technical_weight"`

	LLM ensemble.LLMAdvisorConfig `yaml:"llm_advisor"`
}

// Config is the engine's single process configuration document.
type Config struct {
	Env string `yaml:"env"`

	Log       LogConfig       `yaml:"log"`
	Journal   JournalConfig   `yaml:"journal"`
	PriceFeed PriceFeedConfig `yaml:"pricefeed"`
	Exchange  ExchangeConfig  `yaml:"exchange"`

	ScanLoop scanloop.Config `yaml:"scanloop"`
	Risk     risk.Config     `yaml:"risk"`
	Position position.Config `yaml:"position"`
	Learning learning.Config `yaml:"learning"`
	Strategy strategy.Config `yaml:"strategy"`
	Ensemble EnsembleConfig  `yaml:"ensemble"`

	// ObsLog is the ambient, observability-only LLM-conversation sink (§10);
	// an empty DSN disables it (obslog.New returns a nil, safely-inert
	// *Recorder).
	ObsLog obslog.Config `yaml:"obslog"`

	// LLMClient is a separate file (etc/llm.yaml by convention) hydrated via
	// llm.Config's own LoadConfig, the same confkit.Section[T] pattern the
	// teacher uses for its LLM/Executor/Manager/Exchange/Market sections.
	// This is the only section loaded as a distinct file: every other
	// domain package here has no LoadConfig of its own, so its fields live
	// inline in the single document above instead.
	LLMClient confkit.Section[llmpkg.Config] `yaml:"llm_client"`

	mainPath string
	baseDir  string
}

// DefaultConfig seeds every section from its own package's DefaultConfig,
// so a YAML document only needs to name the values it wants to override.
func DefaultConfig() Config {
	return Config{
		Env:     "dev",
		Log:     DefaultLogConfig(),
		Journal: JournalConfig{Dir: "data/journal"},
		PriceFeed: PriceFeedConfig{
			Assets:             []market.Asset{market.AssetBTC, market.AssetETH, market.AssetSOL, market.AssetXRP},
			PollIntervalMillis: 1000,
			PollInterval:       time.Second,
		},
		Exchange: ExchangeConfig{StartingBalance: decimal.NewFromInt(1000)},

		ScanLoop: scanloop.DefaultConfig(),
		Risk:     risk.DefaultConfig(),
		Position: position.DefaultConfig(),
		Learning: learning.DefaultConfig(),
		Strategy: strategy.DefaultConfig(),
		Ensemble: EnsembleConfig{
			Config: ensemble.Config{
				MinConsensus:            0.15,
				MinConfidence:           0.15,
				DecisionDeadline:        3 * time.Second,
				DecisionDeadlineSeconds: 3,
			},
			RLWeight:         0.20,
			RLLearningRate:   0.1,
			HistoricalWeight: 0.20,
			TechnicalWeight:  0.25,
			LLM: ensemble.LLMAdvisorConfig{
				Weight:             0.35,
				Semaphore:          4,
				MinInterval:        5 * time.Second,
				MinIntervalSeconds: 5,
				CacheTTL:           30 * time.Second,
				CacheTTLSeconds:    30,
			},
		},
	}
}

// Load reads, unmarshals, converts and validates the config document at
// path. Values absent from the YAML document keep DefaultConfig's values —
// yaml.v3 only overwrites fields it finds a matching key for.
func Load(path string) (*Config, error) {
	confkit.LoadDotenvOnce()

	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("config: resolve path %s: %w", path, err)
	}
	data, err := os.ReadFile(absPath)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", absPath, err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: unmarshal %s: %w", absPath, err)
	}
	cfg.mainPath = absPath
	cfg.baseDir = confkit.BaseDir(absPath)

	cfg.applyDurations()
	cfg.Exchange.PrivateKey = strings.TrimSpace(os.ExpandEnv(cfg.Exchange.PrivateKey))

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := cfg.hydrateSections(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// MustLoad is Load, panicking on error.
func MustLoad(path string) *Config {
	cfg, err := Load(path)
	if err != nil {
		panic(err)
	}
	return cfg
}

// applyDurations converts every *Seconds/*Millis YAML surface into the
// real time.Duration field the owning package consumes. See DESIGN.md for
// why these can't be unmarshaled directly.
func (c *Config) applyDurations() {
	if c.ScanLoop.ScanIntervalSeconds > 0 {
		c.ScanLoop.ScanInterval = time.Duration(c.ScanLoop.ScanIntervalSeconds) * time.Second
	}
	if c.ScanLoop.HeartbeatIntervalSeconds > 0 {
		c.ScanLoop.HeartbeatInterval = time.Duration(c.ScanLoop.HeartbeatIntervalSeconds) * time.Second
	}
	if c.Ensemble.DecisionDeadlineSeconds > 0 {
		c.Ensemble.DecisionDeadline = time.Duration(c.Ensemble.DecisionDeadlineSeconds) * time.Second
	}
	if c.Ensemble.LLM.CacheTTLSeconds > 0 {
		c.Ensemble.LLM.CacheTTL = time.Duration(c.Ensemble.LLM.CacheTTLSeconds) * time.Second
	}
	if c.Ensemble.LLM.MinIntervalSeconds > 0 {
		c.Ensemble.LLM.MinInterval = time.Duration(c.Ensemble.LLM.MinIntervalSeconds) * time.Second
	}
	if c.PriceFeed.PollIntervalMillis > 0 {
		c.PriceFeed.PollInterval = time.Duration(c.PriceFeed.PollIntervalMillis) * time.Millisecond
	}
}

// Validate checks the fields no single owning package can check on its
// own — cross-section defaults and the one required-unless-dry-run secret.
func (c *Config) Validate() error {
	switch c.Env {
	case "":
		c.Env = "dev"
	case "dev", "test", "prod":
	default:
		return fmt.Errorf("config: invalid env %q (want dev, test or prod)", c.Env)
	}
	if len(c.PriceFeed.Assets) == 0 {
		return fmt.Errorf("config: pricefeed.assets must not be empty")
	}
	if strings.TrimSpace(c.Journal.Dir) == "" {
		return fmt.Errorf("config: journal.dir must not be empty")
	}
	if !c.Exchange.DryRun && strings.TrimSpace(c.Exchange.PrivateKey) == "" {
		return fmt.Errorf("config: exchange.private_key is required outside dry-run (exchange.dry_run=false)")
	}
	return nil
}

// hydrateSections loads every section backed by a separate file.
func (c *Config) hydrateSections() error {
	return c.LLMClient.Hydrate(c.baseDir, llmpkg.LoadConfig)
}

// IsTestEnv reports whether Env is "test". No package selects endpoints or
// LLM models from it.
func (c *Config) IsTestEnv() bool {
	return c.Env == "test"
}

// MainPath returns the absolute path Load was called with.
func (c *Config) MainPath() string { return c.mainPath }

// BaseDir returns MainPath's directory, the base every relative section
// File path (e.g. LLMClient.File) is resolved against.
func (c *Config) BaseDir() string { return c.baseDir }

// LogxConf converts Log into the logx.LogConf logx.MustSetup expects.
func (c *Config) LogxConf() logx.LogConf { return c.Log.toLogx() }
