package config

import (
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/adrg/xdg"
	"github.com/spf13/viper"
)

// Config holds the complete application configuration
type Config struct {
	Tracker   TrackerConfig   `mapstructure:"tracker"`
	Probe     ProbeConfig     `mapstructure:"probe"`
	Dashboard DashboardConfig `mapstructure:"dashboard"`
	Shell     ShellConfig     `mapstructure:"shell"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Insights  InsightsConfig  `mapstructure:"insights"`
}

// TrackerConfig defines where and how often usage is recorded
type TrackerConfig struct {
	DataDir      string `mapstructure:"data_dir"`
	DataFile     string `mapstructure:"data_file"`
	JournalFile  string `mapstructure:"journal_file"` // empty disables the session journal
	PollInterval string `mapstructure:"poll_interval"`
	AtomicWrite  bool   `mapstructure:"atomic_write"`
	MetricsAddr  string `mapstructure:"metrics_addr"` // empty disables the metrics listener
}

// ProbeConfig defines foreground probe settings
type ProbeConfig struct {
	CacheSize int `mapstructure:"cache_size"`
}

// DashboardConfig defines the local dashboard server
type DashboardConfig struct {
	BindAddress string `mapstructure:"bind_address"`
	Port        int    `mapstructure:"port"`
	Page        string `mapstructure:"page"`
	OpenBrowser bool   `mapstructure:"open_browser"`
}

// ShellConfig defines control shell behavior
type ShellConfig struct {
	StopTimeout string `mapstructure:"stop_timeout"`
}

// LoggingConfig defines logging behavior
type LoggingConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	File       string `mapstructure:"file"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
	Compress   bool   `mapstructure:"compress"`
}

// InsightsConfig defines how applications are categorised for reports
type InsightsConfig struct {
	HighlyProductive  []string `mapstructure:"highly_productive"`
	Productive        []string `mapstructure:"productive"`
	Neutral           []string `mapstructure:"neutral"`
	Distracting       []string `mapstructure:"distracting"`
	HighlyDistracting []string `mapstructure:"highly_distracting"`
	WorkApps          []string `mapstructure:"work_apps"`
	ProductiveApps    []string `mapstructure:"productive_apps"`
	WorkStartHour     int      `mapstructure:"work_start_hour"`
	WorkEndHour       int      `mapstructure:"work_end_hour"`
	WorkDays          []int    `mapstructure:"work_days"` // 0 = Sunday
}

// DefaultPath returns the default configuration file location.
func DefaultPath() string {
	return filepath.Join(xdg.ConfigHome, "trackit", "config.yaml")
}

// DataFilePath returns the usage document path.
func (c *Config) DataFilePath() string {
	return resolve(c.Tracker.DataDir, c.Tracker.DataFile)
}

// JournalPath returns the session journal path, or "" when disabled.
func (c *Config) JournalPath() string {
	if c.Tracker.JournalFile == "" {
		return ""
	}
	return resolve(c.Tracker.DataDir, c.Tracker.JournalFile)
}

// PollInterval returns the parsed tracker interval.
func (c *Config) PollInterval() time.Duration {
	d, _ := time.ParseDuration(c.Tracker.PollInterval)
	return d
}

// StopTimeout returns how long the shell waits for the tracker to exit.
func (c *Config) StopTimeout() time.Duration {
	d, _ := time.ParseDuration(c.Shell.StopTimeout)
	return d
}

// DashboardAddr returns the dashboard listen address.
func (c *Config) DashboardAddr() string {
	return fmt.Sprintf("%s:%d", c.Dashboard.BindAddress, c.Dashboard.Port)
}

// DashboardURL returns the URL of the dashboard page.
func (c *Config) DashboardURL() string {
	host := c.Dashboard.BindAddress
	if host == "" || host == "0.0.0.0" || host == "::" {
		host = "localhost"
	}
	return fmt.Sprintf("http://%s:%d/%s", host, c.Dashboard.Port, strings.TrimPrefix(c.Dashboard.Page, "/"))
}

func resolve(dir, file string) string {
	if filepath.IsAbs(file) || dir == "" {
		return file
	}
	return filepath.Join(dir, file)
}

// Load loads configuration from file and environment variables
func Load(configPath string) (*Config, error) {
	v := viper.New()

	// Set defaults
	SetDefaults(v)

	// Configure viper
	v.SetConfigFile(configPath)
	v.SetEnvPrefix("TRACKIT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Read config file
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// Config file not found, use defaults and environment variables
	}

	// Unmarshal config
	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// Validate config
	if err := validate(&config); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

// Defaults returns a configuration holding only default values.
func Defaults() *Config {
	v := viper.New()
	SetDefaults(v)

	var cfg Config
	_ = v.Unmarshal(&cfg)
	return &cfg
}

// FindUnknownKeys reads the config file and returns keys that no setting
// consumes. Every known key has a default, so the defaults define the set.
func FindUnknownKeys(configPath string) ([]string, error) {
	v := viper.New()
	v.SetConfigFile(configPath)
	if err := v.ReadInConfig(); err != nil {
		return nil, err
	}

	known := viper.New()
	SetDefaults(known)
	valid := make(map[string]bool)
	for _, key := range known.AllKeys() {
		valid[key] = true
	}

	unknown := []string{}
	for _, key := range v.AllKeys() {
		if !valid[key] {
			unknown = append(unknown, key)
		}
	}
	sort.Strings(unknown)
	return unknown, nil
}

// SetDefaults sets default configuration values
func SetDefaults(v *viper.Viper) {
	// Tracker defaults
	v.SetDefault("tracker.data_dir", ".")
	v.SetDefault("tracker.data_file", "activity_data.json")
	v.SetDefault("tracker.journal_file", "activity_journal.db")
	v.SetDefault("tracker.poll_interval", "1s")
	v.SetDefault("tracker.atomic_write", true)
	v.SetDefault("tracker.metrics_addr", "")

	// Probe defaults
	v.SetDefault("probe.cache_size", 256)

	// Dashboard defaults
	v.SetDefault("dashboard.bind_address", "127.0.0.1")
	v.SetDefault("dashboard.port", 8000)
	v.SetDefault("dashboard.page", "analysis.html")
	v.SetDefault("dashboard.open_browser", true)

	// Shell defaults
	v.SetDefault("shell.stop_timeout", "5s")

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.file", "")
	v.SetDefault("logging.max_size_mb", 10)
	v.SetDefault("logging.max_backups", 3)
	v.SetDefault("logging.max_age_days", 28)
	v.SetDefault("logging.compress", false)

	// Insights defaults
	v.SetDefault("insights.highly_productive", []string{"code", "cursor", "terminal", "git", "intellij", "vscode"})
	v.SetDefault("insights.productive", []string{"word", "excel", "powerpoint", "notion", "slack", "teams"})
	v.SetDefault("insights.neutral", []string{"chrome", "firefox", "brave", "explorer"})
	v.SetDefault("insights.distracting", []string{"youtube", "netflix", "spotify", "games"})
	v.SetDefault("insights.highly_distracting", []string{"facebook", "instagram", "twitter", "tiktok"})
	v.SetDefault("insights.work_apps", []string{
		"code", "visual studio", "intellij", "pycharm",
		"git", "github", "terminal", "cmd", "powershell",
		"word", "excel", "powerpoint", "outlook",
		"teams", "slack", "zoom", "chrome", "firefox", "edge", "brave", "cursor",
	})
	v.SetDefault("insights.productive_apps", []string{"code", "cursor", "terminal", "git"})
	v.SetDefault("insights.work_start_hour", 9)
	v.SetDefault("insights.work_end_hour", 18)
	v.SetDefault("insights.work_days", []int{1, 2, 3, 4, 5})
}

// validate validates the configuration
func validate(cfg *Config) error {
	if cfg.Tracker.DataFile == "" {
		return fmt.Errorf("tracker data file is required")
	}

	d, err := time.ParseDuration(cfg.Tracker.PollInterval)
	if err != nil {
		return fmt.Errorf("invalid tracker poll interval %q: %w", cfg.Tracker.PollInterval, err)
	}
	if d <= 0 {
		return fmt.Errorf("tracker poll interval must be positive: %s", d)
	}

	if cfg.Dashboard.Port <= 0 || cfg.Dashboard.Port > 65535 {
		return fmt.Errorf("invalid dashboard port: %d", cfg.Dashboard.Port)
	}

	if _, err := time.ParseDuration(cfg.Shell.StopTimeout); err != nil {
		return fmt.Errorf("invalid shell stop timeout %q: %w", cfg.Shell.StopTimeout, err)
	}

	switch cfg.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid logging level: %s", cfg.Logging.Level)
	}

	switch cfg.Logging.Format {
	case "json", "text":
	default:
		return fmt.Errorf("invalid logging format: %s", cfg.Logging.Format)
	}

	if cfg.Insights.WorkStartHour < 0 || cfg.Insights.WorkEndHour > 24 || cfg.Insights.WorkStartHour >= cfg.Insights.WorkEndHour {
		return fmt.Errorf("invalid work hours: %d-%d", cfg.Insights.WorkStartHour, cfg.Insights.WorkEndHour)
	}
	for _, day := range cfg.Insights.WorkDays {
		if day < 0 || day > 6 {
			return fmt.Errorf("invalid work day: %d", day)
		}
	}

	return nil
}
