// File: internal/config/config.go
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/mitchellh/go-homedir"
	"github.com/spf13/viper"
)

// Config holds the entire application configuration.
type Config struct {
	Logger     LoggerConfig     `mapstructure:"logger" yaml:"logger"`
	Browser    BrowserConfig    `mapstructure:"browser" yaml:"browser"`
	Oracle     OracleConfig     `mapstructure:"oracle" yaml:"oracle"`
	Supervisor SupervisorConfig `mapstructure:"supervisor" yaml:"supervisor"`
	Safety     SafetyConfig     `mapstructure:"safety" yaml:"safety"`
	Handoff    HandoffConfig    `mapstructure:"handoff" yaml:"handoff"`
	Screenshot ScreenshotConfig `mapstructure:"screenshot" yaml:"screenshot"`
	Database   DatabaseConfig   `mapstructure:"database" yaml:"database"`
}

// LoggerConfig configures the zap logger and file rotation.
type LoggerConfig struct {
	Level       string      `mapstructure:"level" yaml:"level"`
	Format      string      `mapstructure:"format" yaml:"format"` // "console" or "json"
	AddSource   bool        `mapstructure:"add_source" yaml:"add_source"`
	ServiceName string      `mapstructure:"service_name" yaml:"service_name"`
	LogFile     string      `mapstructure:"log_file" yaml:"log_file"`
	MaxSize     int         `mapstructure:"max_size" yaml:"max_size"` // megabytes
	MaxBackups  int         `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAge      int         `mapstructure:"max_age" yaml:"max_age"` // days
	Compress    bool        `mapstructure:"compress" yaml:"compress"`
	Colors      ColorConfig `mapstructure:"colors" yaml:"colors"`
}

// ColorConfig maps log levels to terminal colors for the console encoder.
type ColorConfig struct {
	Debug  string `mapstructure:"debug" yaml:"debug"`
	Info   string `mapstructure:"info" yaml:"info"`
	Warn   string `mapstructure:"warn" yaml:"warn"`
	Error  string `mapstructure:"error" yaml:"error"`
	DPanic string `mapstructure:"dpanic" yaml:"dpanic"`
	Panic  string `mapstructure:"panic" yaml:"panic"`
	Fatal  string `mapstructure:"fatal" yaml:"fatal"`
}

// BrowserConfig controls the Chrome process and page-level timeouts.
type BrowserConfig struct {
	Headless          bool          `mapstructure:"headless" yaml:"headless"`
	ExecPath          string        `mapstructure:"exec_path" yaml:"exec_path"`
	UserAgent         string        `mapstructure:"user_agent" yaml:"user_agent"`
	WindowWidth       int64         `mapstructure:"window_width" yaml:"window_width"`
	WindowHeight      int64         `mapstructure:"window_height" yaml:"window_height"`
	IgnoreTLSErrors   bool          `mapstructure:"ignore_tls_errors" yaml:"ignore_tls_errors"`
	NavigationTimeout time.Duration `mapstructure:"navigation_timeout" yaml:"navigation_timeout"`
	ActionTimeout     time.Duration `mapstructure:"action_timeout" yaml:"action_timeout"`
	// VisibilityTimeout bounds how long a click waits for its target to become
	// visible before proceeding best-effort.
	VisibilityTimeout time.Duration `mapstructure:"visibility_timeout" yaml:"visibility_timeout"`
}

// OracleConfig configures the reasoning service client.
type OracleConfig struct {
	Model       string        `mapstructure:"model" yaml:"model"`
	APIKey      string        `mapstructure:"api_key" yaml:"api_key"`
	APITimeout  time.Duration `mapstructure:"api_timeout" yaml:"api_timeout"`
	Temperature float32       `mapstructure:"temperature" yaml:"temperature"`
	MaxTokens   int32         `mapstructure:"max_tokens" yaml:"max_tokens"`
	// MaxActions caps the batch size requested per decision. The oracle's view
	// of the page goes stale fast, so small batches keep it honest.
	MaxActions      int           `mapstructure:"max_actions" yaml:"max_actions"`
	RetryMaxElapsed time.Duration `mapstructure:"retry_max_elapsed" yaml:"retry_max_elapsed"`
}

// SupervisorConfig bounds the task loop and the in-memory task registry.
type SupervisorConfig struct {
	MaxIterations     int           `mapstructure:"max_iterations" yaml:"max_iterations"`
	IterationDelay    time.Duration `mapstructure:"iteration_delay" yaml:"iteration_delay"`
	PausePollInterval time.Duration `mapstructure:"pause_poll_interval" yaml:"pause_poll_interval"`
	MaxTasks          int           `mapstructure:"max_tasks" yaml:"max_tasks"`
	TaskRetention     time.Duration `mapstructure:"task_retention" yaml:"task_retention"`
	EvictionInterval  time.Duration `mapstructure:"eviction_interval" yaml:"eviction_interval"`
	EventBufferSize   int           `mapstructure:"event_buffer_size" yaml:"event_buffer_size"`
}

// SafetyConfig holds the deterministic action policy.
type SafetyConfig struct {
	// AllowedDomains, when non-empty, restricts navigation targets and the
	// page domain of all other actions. Exact match, subdomain, or same
	// registrable domain all pass.
	AllowedDomains []string `mapstructure:"allowed_domains" yaml:"allowed_domains"`
	// ForbiddenSelectorPatterns rejects any selector containing one of these
	// substrings (e.g. password field patterns).
	ForbiddenSelectorPatterns []string `mapstructure:"forbidden_selector_patterns" yaml:"forbidden_selector_patterns"`
	MaxTypeLength             int      `mapstructure:"max_type_length" yaml:"max_type_length"`
}

// HandoffConfig configures the human handoff sub-protocol.
type HandoffConfig struct {
	Timeout time.Duration `mapstructure:"timeout" yaml:"timeout"`
}

// ScreenshotConfig controls capture throttling and audit persistence.
type ScreenshotConfig struct {
	Persist bool   `mapstructure:"persist" yaml:"persist"`
	Dir     string `mapstructure:"dir" yaml:"dir"`
	// MinCaptureInterval throttles how often the driver is asked for a fresh
	// screenshot per page.
	MinCaptureInterval time.Duration `mapstructure:"min_capture_interval" yaml:"min_capture_interval"`
}

// DatabaseConfig holds the Postgres connection settings.
type DatabaseConfig struct {
	URL string `mapstructure:"url" yaml:"url"`
	// SessionTTL is how long a session may sit without activity before the
	// startup sweep marks it ended.
	SessionTTL time.Duration `mapstructure:"session_ttl" yaml:"session_ttl"`
}

// SetDefaults initializes default values for all configuration parameters.
func SetDefaults(v *viper.Viper) {
	// -- Logger --
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.add_source", false)
	v.SetDefault("logger.service_name", "pagepilot")
	v.SetDefault("logger.log_file", "pagepilot.log")
	v.SetDefault("logger.max_size", 100)
	v.SetDefault("logger.max_backups", 5)
	v.SetDefault("logger.max_age", 30)
	v.SetDefault("logger.compress", true)
	v.SetDefault("logger.colors.debug", "cyan")
	v.SetDefault("logger.colors.info", "green")
	v.SetDefault("logger.colors.warn", "yellow")
	v.SetDefault("logger.colors.error", "red")
	v.SetDefault("logger.colors.dpanic", "magenta")
	v.SetDefault("logger.colors.panic", "magenta")
	v.SetDefault("logger.colors.fatal", "red")

	// -- Browser --
	v.SetDefault("browser.headless", true)
	v.SetDefault("browser.window_width", 1280)
	v.SetDefault("browser.window_height", 800)
	v.SetDefault("browser.ignore_tls_errors", false)
	v.SetDefault("browser.navigation_timeout", "90s")
	v.SetDefault("browser.action_timeout", "30s")
	v.SetDefault("browser.visibility_timeout", "30s")

	// -- Oracle --
	v.SetDefault("oracle.model", "gemini-2.5-flash")
	v.SetDefault("oracle.api_timeout", "60s")
	v.SetDefault("oracle.temperature", 0.2)
	v.SetDefault("oracle.max_tokens", 4096)
	v.SetDefault("oracle.max_actions", 3)
	v.SetDefault("oracle.retry_max_elapsed", "2m")

	// -- Supervisor --
	v.SetDefault("supervisor.max_iterations", 25)
	v.SetDefault("supervisor.iteration_delay", "1s")
	v.SetDefault("supervisor.pause_poll_interval", "500ms")
	v.SetDefault("supervisor.max_tasks", 100)
	v.SetDefault("supervisor.task_retention", "1h")
	v.SetDefault("supervisor.eviction_interval", "5m")
	v.SetDefault("supervisor.event_buffer_size", 100)

	// -- Safety --
	v.SetDefault("safety.max_type_length", 2000)
	v.SetDefault("safety.forbidden_selector_patterns", []string{})
	v.SetDefault("safety.allowed_domains", []string{})

	// -- Handoff --
	v.SetDefault("handoff.timeout", "5m")

	// -- Screenshot --
	v.SetDefault("screenshot.persist", false)
	v.SetDefault("screenshot.dir", "screenshots")
	v.SetDefault("screenshot.min_capture_interval", "250ms")

	// -- Database --
	v.SetDefault("database.session_ttl", "24h")
}

// NewDefaultConfig creates a configuration populated with default values.
func NewDefaultConfig() *Config {
	v := viper.New()
	SetDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		// Cannot happen with defaults only, but fail loudly if it does.
		panic(fmt.Sprintf("failed to unmarshal default config: %v", err))
	}
	return &cfg
}

// Load reads the configuration from file and environment into a Config.
// cfgFile may be empty, in which case config.yaml is searched for in the
// working directory and the user's home directory.
func Load(cfgFile string) (*Config, error) {
	v := viper.New()
	SetDefaults(v)

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.AddConfigPath(".")
		if home, err := homedir.Dir(); err == nil {
			v.AddConfigPath(home)
		}
		v.SetConfigName("pagepilot")
		v.SetConfigType("yaml")
	}

	v.SetEnvPrefix("PAGEPILOT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		// A missing config file is fine; defaults plus env cover everything.
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	return NewConfigFromViper(v)
}

// NewConfigFromViper creates a configuration instance from a viper object.
func NewConfigFromViper(v *viper.Viper) (*Config, error) {
	// Bind environment variables for sensitive data.
	_ = v.BindEnv("oracle.api_key", "PAGEPILOT_ORACLE_API_KEY", "GEMINI_API_KEY")
	_ = v.BindEnv("database.url", "PAGEPILOT_DATABASE_URL")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if cfg.Oracle.APIKey == "" {
		cfg.Oracle.APIKey = os.Getenv("GEMINI_API_KEY")
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// Validate checks the configuration for sane values.
func (c *Config) Validate() error {
	if c.Supervisor.MaxIterations <= 0 {
		return fmt.Errorf("supervisor.max_iterations must be a positive integer")
	}
	if c.Supervisor.MaxTasks <= 0 {
		return fmt.Errorf("supervisor.max_tasks must be a positive integer")
	}
	if c.Oracle.MaxActions <= 0 {
		return fmt.Errorf("oracle.max_actions must be a positive integer")
	}
	if c.Safety.MaxTypeLength <= 0 {
		return fmt.Errorf("safety.max_type_length must be a positive integer")
	}
	if c.Handoff.Timeout <= 0 {
		return fmt.Errorf("handoff.timeout must be a positive duration")
	}
	if c.Browser.WindowWidth <= 0 || c.Browser.WindowHeight <= 0 {
		return fmt.Errorf("browser window dimensions must be positive")
	}
	if c.Database.SessionTTL <= 0 {
		return fmt.Errorf("database.session_ttl must be a positive duration")
	}
	return nil
}
