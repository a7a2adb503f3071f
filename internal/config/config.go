// File: internal/config/config.go
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/mitchellh/go-homedir"
	"github.com/spf13/viper"
)

// Interface defines the contract for accessing application configuration.
// This allows for dependency injection and mocking in tests.
type Interface interface {
	Logger() LoggerConfig
	Workspace() WorkspaceConfig
	Executor() ExecutorConfig
	LLM() LLMRouterConfig
	Orchestrator() OrchestratorConfig
	Phases() PhasesConfig
	Browser() BrowserConfig
	Database() DatabaseConfig

	// Run Setters, populated from CLI flags.
	SetTarget(string)
	SetInteraction(string)
	SetReconCrawl(bool)
}

// Config holds the entire application configuration.
type Config struct {
	LoggerCfg       LoggerConfig       `mapstructure:"logger" yaml:"logger"`
	WorkspaceCfg    WorkspaceConfig    `mapstructure:"workspace" yaml:"workspace"`
	ExecutorCfg     ExecutorConfig     `mapstructure:"executor" yaml:"executor"`
	LLMCfg          LLMRouterConfig    `mapstructure:"llm" yaml:"llm"`
	OrchestratorCfg OrchestratorConfig `mapstructure:"orchestrator" yaml:"orchestrator"`
	PhasesCfg       PhasesConfig       `mapstructure:"phases" yaml:"phases"`
	BrowserCfg      BrowserConfig      `mapstructure:"browser" yaml:"browser"`
	DatabaseCfg     DatabaseConfig     `mapstructure:"database" yaml:"database"`
}

// --- Interface Method Implementations (Getters) ---

func (c *Config) Logger() LoggerConfig             { return c.LoggerCfg }
func (c *Config) Workspace() WorkspaceConfig       { return c.WorkspaceCfg }
func (c *Config) Executor() ExecutorConfig         { return c.ExecutorCfg }
func (c *Config) LLM() LLMRouterConfig             { return c.LLMCfg }
func (c *Config) Orchestrator() OrchestratorConfig { return c.OrchestratorCfg }
func (c *Config) Phases() PhasesConfig             { return c.PhasesCfg }
func (c *Config) Browser() BrowserConfig           { return c.BrowserCfg }
func (c *Config) Database() DatabaseConfig         { return c.DatabaseCfg }

// --- Interface Method Implementations (Setters) ---

func (c *Config) SetTarget(t string)      { c.PhasesCfg.Target = t }
func (c *Config) SetInteraction(m string) { c.OrchestratorCfg.Interaction = m }
func (c *Config) SetReconCrawl(b bool)    { c.PhasesCfg.Recon.Crawl = b }

// LoggerConfig holds all the configuration for the logger.
type LoggerConfig struct {
	Level       string      `mapstructure:"level" yaml:"level"`
	Format      string      `mapstructure:"format" yaml:"format"`
	AddSource   bool        `mapstructure:"add_source" yaml:"add_source"`
	ServiceName string      `mapstructure:"service_name" yaml:"service_name"`
	LogFile     string      `mapstructure:"log_file" yaml:"log_file"`
	MaxSize     int         `mapstructure:"max_size" yaml:"max_size"`
	MaxBackups  int         `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAge      int         `mapstructure:"max_age" yaml:"max_age"`
	Compress    bool        `mapstructure:"compress" yaml:"compress"`
	Colors      ColorConfig `mapstructure:"colors" yaml:"colors"`
}

// ColorConfig defines the color codes for different log levels.
type ColorConfig struct {
	Debug  string `mapstructure:"debug" yaml:"debug"`
	Info   string `mapstructure:"info" yaml:"info"`
	Warn   string `mapstructure:"warn" yaml:"warn"`
	Error  string `mapstructure:"error" yaml:"error"`
	DPanic string `mapstructure:"dpanic" yaml:"dpanic"`
	Panic  string `mapstructure:"panic" yaml:"panic"`
	Fatal  string `mapstructure:"fatal" yaml:"fatal"`
}

// WorkspaceConfig locates the on-disk artifacts shared between phases.
type WorkspaceConfig struct {
	// ResultsDir is the root of the recon/vulnscan/exploit/reports tree.
	ResultsDir string `mapstructure:"results_dir" yaml:"results_dir"`
	// WorkDir is where commands run and where relative tool paths resolve.
	WorkDir         string `mapstructure:"work_dir" yaml:"work_dir"`
	HeaderFile      string `mapstructure:"header_file" yaml:"header_file"`
	CapturedURLFile string `mapstructure:"captured_url_file" yaml:"captured_url_file"`
	// ExportTranscripts writes every finished run to <results_dir>/transcripts.
	ExportTranscripts bool `mapstructure:"export_transcripts" yaml:"export_transcripts"`
}

// ExecutorConfig tunes the shell command runner.
type ExecutorConfig struct {
	Shell          string        `mapstructure:"shell" yaml:"shell"`
	Timeout        time.Duration `mapstructure:"timeout" yaml:"timeout"`
	MaxOutputBytes int           `mapstructure:"max_output_bytes" yaml:"max_output_bytes"`
	// FollowOutput tails the file a scan command redirects into and logs its lines.
	FollowOutput bool `mapstructure:"follow_output" yaml:"follow_output"`
}

// LLMProvider defines the supported LLM providers.
type LLMProvider string

const (
	ProviderGemini LLMProvider = "gemini"
	ProviderOpenAI LLMProvider = "openai"
)

// LLMRouterConfig configures the model routing logic. The default model fields
// name keys of the Models map.
type LLMRouterConfig struct {
	DefaultFastModel     string                    `mapstructure:"default_fast_model" yaml:"default_fast_model"`
	DefaultPowerfulModel string                    `mapstructure:"default_powerful_model" yaml:"default_powerful_model"`
	Models               map[string]LLMModelConfig `mapstructure:"models" yaml:"models"`
	RateLimit            RateLimitConfig           `mapstructure:"rate_limit" yaml:"rate_limit"`
	Cache                CacheConfig               `mapstructure:"cache" yaml:"cache"`
}

// LLMModelConfig defines the configuration for a single LLM.
type LLMModelConfig struct {
	Provider    LLMProvider   `mapstructure:"provider" yaml:"provider"`
	Model       string        `mapstructure:"model" yaml:"model"`
	APIKey      string        `mapstructure:"api_key" yaml:"-"`
	Endpoint    string        `mapstructure:"endpoint" yaml:"endpoint"`
	APITimeout  time.Duration `mapstructure:"api_timeout" yaml:"api_timeout"`
	Temperature float32       `mapstructure:"temperature" yaml:"temperature"`
	TopP        float32       `mapstructure:"top_p" yaml:"top_p"`
	TopK        int           `mapstructure:"top_k" yaml:"top_k"`
	MaxTokens   int           `mapstructure:"max_tokens" yaml:"max_tokens"`
	Seed        int64         `mapstructure:"seed" yaml:"seed"`
}

// RateLimitConfig throttles outgoing completion requests.
type RateLimitConfig struct {
	RequestsPerMinute float64 `mapstructure:"requests_per_minute" yaml:"requests_per_minute"`
	Burst             int     `mapstructure:"burst" yaml:"burst"`
}

// CacheConfig controls the in-process completion cache.
type CacheConfig struct {
	Enabled      bool          `mapstructure:"enabled" yaml:"enabled"`
	MaxCostBytes int64         `mapstructure:"max_cost_bytes" yaml:"max_cost_bytes"`
	TTL          time.Duration `mapstructure:"ttl" yaml:"ttl"`
}

// OrchestratorConfig holds the group chat settings shared by every phase.
type OrchestratorConfig struct {
	// Interaction is "always" (human confirms) or "never" (auto-approve).
	Interaction string `mapstructure:"interaction" yaml:"interaction"`
	Sentinel    string `mapstructure:"sentinel" yaml:"sentinel"`
	// TranscriptWindow bounds how many recent messages are rendered into a prompt.
	TranscriptWindow int `mapstructure:"transcript_window" yaml:"transcript_window"`
	// MaxRetries re-runs the generate/validate/execute cycle when a command fails.
	MaxRetries int `mapstructure:"max_retries" yaml:"max_retries"`
	// MaxMalformed bounds consecutive re-solicitations of one step.
	MaxMalformed int `mapstructure:"max_malformed" yaml:"max_malformed"`
}

// PhasesConfig holds the per-phase round caps and options.
type PhasesConfig struct {
	// Target overrides the human proxy's answer and the recon report lookup.
	Target   string         `mapstructure:"target" yaml:"target"`
	Recon    ReconConfig    `mapstructure:"recon" yaml:"recon"`
	VulnScan VulnScanConfig `mapstructure:"vulnscan" yaml:"vulnscan"`
	Exploit  ExploitConfig  `mapstructure:"exploit" yaml:"exploit"`
	Report   ReportConfig   `mapstructure:"report" yaml:"report"`
}

type ReconConfig struct {
	RoundCap int `mapstructure:"round_cap" yaml:"round_cap"`
	// Crawl adds the hakrawler step after the directory scan.
	Crawl bool `mapstructure:"crawl" yaml:"crawl"`
}

type VulnScanConfig struct {
	RoundCap     int `mapstructure:"round_cap" yaml:"round_cap"`
	MaxEndpoints int `mapstructure:"max_endpoints" yaml:"max_endpoints"`
}

type ExploitConfig struct {
	RoundCap     int `mapstructure:"round_cap" yaml:"round_cap"`
	MaxEndpoints int `mapstructure:"max_endpoints" yaml:"max_endpoints"`
}

type ReportConfig struct {
	RoundCap int `mapstructure:"round_cap" yaml:"round_cap"`
}

// BrowserConfig holds settings for the headless browser used by the form analyzer.
type BrowserConfig struct {
	Headless          bool          `mapstructure:"headless" yaml:"headless"`
	IgnoreTLSErrors   bool          `mapstructure:"ignore_tls_errors" yaml:"ignore_tls_errors"`
	NavigationTimeout time.Duration `mapstructure:"navigation_timeout" yaml:"navigation_timeout"`
	SettleWait        time.Duration `mapstructure:"settle_wait" yaml:"settle_wait"`
	LoginUser         string        `mapstructure:"login_user" yaml:"login_user"`
	LoginPassword     string        `mapstructure:"login_password" yaml:"-"`
	Args              []string      `mapstructure:"args" yaml:"args"`
}

// DatabaseConfig holds the optional transcript archive connection. An empty
// URL disables archiving.
type DatabaseConfig struct {
	URL string `mapstructure:"url" yaml:"url"`
}

// NewDefaultConfig creates a new configuration struct populated with default values.
func NewDefaultConfig() *Config {
	v := viper.New()
	SetDefaults(v)
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		panic(fmt.Sprintf("failed to unmarshal default config: %v", err))
	}
	return &cfg
}

// SetDefaults initializes default values for various configuration parameters.
func SetDefaults(v *viper.Viper) {
	// -- Logger --
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.add_source", false)
	v.SetDefault("logger.service_name", "pentest-crew")
	v.SetDefault("logger.log_file", "pentest-crew.log")
	v.SetDefault("logger.max_size", 100)
	v.SetDefault("logger.max_backups", 5)
	v.SetDefault("logger.max_age", 30)
	v.SetDefault("logger.compress", true)
	v.SetDefault("logger.colors.debug", "cyan")
	v.SetDefault("logger.colors.info", "green")
	v.SetDefault("logger.colors.warn", "yellow")
	v.SetDefault("logger.colors.error", "red")

	// -- Workspace --
	v.SetDefault("workspace.results_dir", "pentest_results")
	v.SetDefault("workspace.work_dir", ".")
	v.SetDefault("workspace.header_file", "header.txt")
	v.SetDefault("workspace.captured_url_file", "captured_urls.txt")
	v.SetDefault("workspace.export_transcripts", true)

	// -- Executor --
	v.SetDefault("executor.shell", "/bin/bash")
	v.SetDefault("executor.timeout", "1h")
	v.SetDefault("executor.max_output_bytes", 64*1024)
	v.SetDefault("executor.follow_output", true)

	// -- LLM --
	v.SetDefault("llm.default_fast_model", "openai")
	v.SetDefault("llm.default_powerful_model", "openai")
	v.SetDefault("llm.models.openai.provider", string(ProviderOpenAI))
	v.SetDefault("llm.models.openai.model", "gpt-4o-mini")
	v.SetDefault("llm.models.openai.api_timeout", "2m")
	v.SetDefault("llm.models.openai.temperature", 0.3)
	v.SetDefault("llm.models.openai.seed", 30)
	v.SetDefault("llm.models.gemini.provider", string(ProviderGemini))
	v.SetDefault("llm.models.gemini.model", "gemini-2.5-flash")
	v.SetDefault("llm.models.gemini.api_timeout", "2m")
	v.SetDefault("llm.models.gemini.temperature", 0.3)
	v.SetDefault("llm.models.gemini.max_tokens", 8192)
	v.SetDefault("llm.rate_limit.requests_per_minute", 60)
	v.SetDefault("llm.rate_limit.burst", 5)
	v.SetDefault("llm.cache.enabled", true)
	v.SetDefault("llm.cache.max_cost_bytes", 32<<20)
	v.SetDefault("llm.cache.ttl", "30m")

	// -- Orchestrator --
	v.SetDefault("orchestrator.interaction", "always")
	v.SetDefault("orchestrator.sentinel", "TERMINATE")
	v.SetDefault("orchestrator.transcript_window", 30)
	v.SetDefault("orchestrator.max_retries", 0)
	v.SetDefault("orchestrator.max_malformed", 3)

	// -- Phases --
	v.SetDefault("phases.recon.round_cap", 50)
	v.SetDefault("phases.recon.crawl", false)
	v.SetDefault("phases.vulnscan.round_cap", 100)
	v.SetDefault("phases.vulnscan.max_endpoints", 20)
	v.SetDefault("phases.exploit.round_cap", 80)
	v.SetDefault("phases.exploit.max_endpoints", 5)
	v.SetDefault("phases.report.round_cap", 20)

	// -- Browser --
	v.SetDefault("browser.headless", true)
	v.SetDefault("browser.ignore_tls_errors", true)
	v.SetDefault("browser.navigation_timeout", "5s")
	v.SetDefault("browser.settle_wait", "3s")
	v.SetDefault("browser.login_user", "admin")
	v.SetDefault("browser.login_password", "password")
}

// NewConfigFromViper creates a new configuration instance from a viper object.
func NewConfigFromViper(v *viper.Viper) (*Config, error) {
	var cfg Config

	// Bind environment variables for sensitive data
	v.BindEnv("llm.models.openai.api_key", "OPENAI_API_KEY")
	v.BindEnv("llm.models.gemini.api_key", "GEMINI_API_KEY")
	v.BindEnv("database.url", "CREW_DATABASE_URL")

	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if err := cfg.expandPaths(); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// expandPaths resolves a leading ~ in user supplied paths.
func (c *Config) expandPaths() error {
	for _, p := range []*string{
		&c.WorkspaceCfg.ResultsDir,
		&c.WorkspaceCfg.WorkDir,
		&c.WorkspaceCfg.HeaderFile,
		&c.WorkspaceCfg.CapturedURLFile,
		&c.LoggerCfg.LogFile,
	} {
		expanded, err := homedir.Expand(*p)
		if err != nil {
			return fmt.Errorf("failed to expand path %q: %w", *p, err)
		}
		*p = expanded
	}
	return nil
}

// Validate checks the configuration for required fields and sane values.
func (c *Config) Validate() error {
	if c.WorkspaceCfg.ResultsDir == "" {
		return fmt.Errorf("workspace.results_dir is a required configuration field")
	}
	if c.ExecutorCfg.Timeout <= 0 {
		return fmt.Errorf("executor.timeout must be a positive duration")
	}
	if c.ExecutorCfg.Shell == "" {
		return fmt.Errorf("executor.shell is a required configuration field")
	}
	if c.OrchestratorCfg.Interaction != "always" && c.OrchestratorCfg.Interaction != "never" {
		return fmt.Errorf("orchestrator.interaction must be 'always' or 'never'")
	}
	if c.OrchestratorCfg.Sentinel == "" {
		return fmt.Errorf("orchestrator.sentinel is a required configuration field")
	}
	if c.OrchestratorCfg.MaxRetries < 0 {
		return fmt.Errorf("orchestrator.max_retries must not be negative")
	}
	if err := c.PhasesCfg.Validate(); err != nil {
		return fmt.Errorf("phases configuration invalid: %w", err)
	}
	if err := c.LLMCfg.Validate(); err != nil {
		return fmt.Errorf("llm configuration invalid: %w", err)
	}
	return nil
}

// Validate checks the phase round caps.
func (p *PhasesConfig) Validate() error {
	caps := map[string]int{
		"recon.round_cap":    p.Recon.RoundCap,
		"vulnscan.round_cap": p.VulnScan.RoundCap,
		"exploit.round_cap":  p.Exploit.RoundCap,
		"report.round_cap":   p.Report.RoundCap,
	}
	for key, n := range caps {
		if n <= 0 {
			return fmt.Errorf("%s must be a positive integer", key)
		}
	}
	if p.VulnScan.MaxEndpoints <= 0 || p.Exploit.MaxEndpoints <= 0 {
		return fmt.Errorf("max_endpoints must be a positive integer")
	}
	return nil
}

// Validate checks that the tier defaults resolve to configured models.
func (l *LLMRouterConfig) Validate() error {
	for _, name := range []string{l.DefaultFastModel, l.DefaultPowerfulModel} {
		m, ok := l.Models[name]
		if !ok {
			return fmt.Errorf("model %q is not defined under llm.models", name)
		}
		if m.Provider != ProviderGemini && m.Provider != ProviderOpenAI {
			return fmt.Errorf("model %q has unsupported provider %q", name, m.Provider)
		}
	}
	if l.RateLimit.RequestsPerMinute < 0 {
		return fmt.Errorf("rate_limit.requests_per_minute must not be negative")
	}
	return nil
}

// ReportsDir returns the directory reports are saved into.
func (w WorkspaceConfig) ReportsDir() string {
	return filepath.Join(w.ResultsDir, "reports")
}

// ResolveWorkDir returns the absolute command working directory.
func (w WorkspaceConfig) ResolveWorkDir() string {
	if abs, err := filepath.Abs(w.WorkDir); err == nil {
		return abs
	}
	if wd, err := os.Getwd(); err == nil {
		return wd
	}
	return w.WorkDir
}
