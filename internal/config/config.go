package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	OpenAI   OpenAIConfig   `mapstructure:"openai"`
	SMS      SMSConfig      `mapstructure:"sms"`
	HRSync   HRSyncConfig   `mapstructure:"hr_sync"`
	Workflow WorkflowConfig `mapstructure:"workflow"`
	Logger   LoggerConfig   `mapstructure:"logger"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Path            string        `mapstructure:"path"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	MigrationsDir   string        `mapstructure:"migrations_dir"`
}

// OpenAIConfig holds configuration for the extraction and intent models
type OpenAIConfig struct {
	APIKey      string        `mapstructure:"api_key"`
	Model       string        `mapstructure:"model"`
	Temperature float32       `mapstructure:"temperature"`
	MaxTokens   int           `mapstructure:"max_tokens"`
	Timeout     time.Duration `mapstructure:"timeout"`
}

// SMSConfig holds outbound SMS provider configuration
type SMSConfig struct {
	BaseURL    string        `mapstructure:"base_url"`
	AccountSID string        `mapstructure:"account_sid"`
	AuthToken  string        `mapstructure:"auth_token"`
	FromNumber string        `mapstructure:"from_number"`
	APITimeout time.Duration `mapstructure:"api_timeout"`
}

// HRSyncConfig holds HR-system sync configuration
type HRSyncConfig struct {
	BaseURL    string        `mapstructure:"base_url"`
	APIKey     string        `mapstructure:"api_key"`
	APITimeout time.Duration `mapstructure:"api_timeout"`
}

// WorkflowConfig holds tunables for the renewal state machine
type WorkflowConfig struct {
	ConfidenceThreshold  float64       `mapstructure:"confidence_threshold"`
	MaxReminders         int           `mapstructure:"max_reminders"`
	MaxSubmissionRetries int           `mapstructure:"max_submission_retries"`
	StaleAfter           time.Duration `mapstructure:"stale_after"`
	ScanInterval         time.Duration `mapstructure:"scan_interval"`
	DispatchMaxAttempts  int           `mapstructure:"dispatch_max_attempts"`
	DispatchBaseBackoff  time.Duration `mapstructure:"dispatch_base_backoff"`
	DispatchMaxBackoff   time.Duration `mapstructure:"dispatch_max_backoff"`
}

// LoggerConfig holds logger configuration
type LoggerConfig struct {
	Level      string `mapstructure:"level"`
	OutputPath string `mapstructure:"output_path"`
	Format     string `mapstructure:"format"`
}

// Load loads configuration from file and environment variables
func Load(configPath string) (*Config, error) {
	viper.SetConfigFile(configPath)
	viper.SetConfigType("yaml")
	viper.AutomaticEnv()

	setDefaults()

	if err := viper.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	bindEnvVars()

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

func setDefaults() {
	viper.SetDefault("server.host", "0.0.0.0")
	viper.SetDefault("server.port", 8080)
	viper.SetDefault("server.read_timeout", 30*time.Second)
	viper.SetDefault("server.write_timeout", 30*time.Second)

	viper.SetDefault("database.path", "data/renewal.db")
	viper.SetDefault("database.max_open_conns", 25)
	viper.SetDefault("database.max_idle_conns", 5)
	viper.SetDefault("database.conn_max_lifetime", 5*time.Minute)
	viper.SetDefault("database.migrations_dir", "migrations")

	viper.SetDefault("openai.model", "gpt-4o")
	viper.SetDefault("openai.temperature", 0.2)
	viper.SetDefault("openai.max_tokens", 1000)
	viper.SetDefault("openai.timeout", 60*time.Second)

	viper.SetDefault("sms.api_timeout", 30*time.Second)
	viper.SetDefault("hr_sync.api_timeout", 30*time.Second)

	viper.SetDefault("workflow.confidence_threshold", 0.7)
	viper.SetDefault("workflow.max_reminders", 3)
	viper.SetDefault("workflow.max_submission_retries", 1)
	viper.SetDefault("workflow.stale_after", 72*time.Hour)
	viper.SetDefault("workflow.scan_interval", 15*time.Minute)
	viper.SetDefault("workflow.dispatch_max_attempts", 3)
	viper.SetDefault("workflow.dispatch_base_backoff", 1*time.Second)
	viper.SetDefault("workflow.dispatch_max_backoff", 8*time.Second)

	viper.SetDefault("logger.level", "info")
	viper.SetDefault("logger.output_path", "stdout")
	viper.SetDefault("logger.format", "json")
}

func bindEnvVars() {
	// Sensitive credentials from environment
	viper.BindEnv("openai.api_key", "OPENAI_API_KEY")
	viper.BindEnv("sms.account_sid", "SMS_ACCOUNT_SID")
	viper.BindEnv("sms.auth_token", "SMS_AUTH_TOKEN")
	viper.BindEnv("sms.from_number", "SMS_FROM_NUMBER")
	viper.BindEnv("hr_sync.api_key", "HR_SYNC_API_KEY")
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.OpenAI.APIKey == "" {
		return fmt.Errorf("openai.api_key is required")
	}
	if c.SMS.FromNumber == "" {
		return fmt.Errorf("sms.from_number is required")
	}
	if c.Workflow.ConfidenceThreshold <= 0 || c.Workflow.ConfidenceThreshold > 1 {
		return fmt.Errorf("workflow.confidence_threshold must be in (0, 1]")
	}
	if c.Workflow.MaxReminders < 1 {
		return fmt.Errorf("workflow.max_reminders must be at least 1")
	}
	if c.Workflow.DispatchMaxAttempts < 1 {
		return fmt.Errorf("workflow.dispatch_max_attempts must be at least 1")
	}
	return nil
}
