// File: internal/config/config.go
package config

import (
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"

	"github.com/smartdevs17/etherfund-dashboard/pkg/utils"
)

// Config holds all configuration for the application
type Config struct {
	App          AppConfig          `mapstructure:"app"`
	Chain        ChainConfig        `mapstructure:"chain"`
	ContentStore ContentStoreConfig `mapstructure:"content_store"`
	Reader       ReaderConfig       `mapstructure:"reader"`
	Dashboard    DashboardConfig    `mapstructure:"dashboard"`
	Storage      StorageConfig      `mapstructure:"storage"`
	Server       ServerConfig       `mapstructure:"server"`
	Notification NotificationConfig `mapstructure:"notification"`
	Logging      LoggingConfig      `mapstructure:"logging"`
	Telemetry    TelemetryConfig    `mapstructure:"telemetry"`
}

// AppConfig contains application-level configuration
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Version     string `mapstructure:"version"`
	Environment string `mapstructure:"environment"`
	Debug       bool   `mapstructure:"debug"`
}

// ChainConfig describes the JSON-RPC node and the crowdfunding contract
type ChainConfig struct {
	NodeURL         string        `mapstructure:"node_url"`
	BackupNodes     []string      `mapstructure:"backup_nodes"`
	ChainID         int64         `mapstructure:"chain_id"`
	ContractAddress string        `mapstructure:"contract_address"`
	ABIPath         string        `mapstructure:"abi_path"`
	StartBlock      uint64        `mapstructure:"start_block"`
	BlockBatchSize  uint64        `mapstructure:"block_batch_size"`
	Confirmations   int           `mapstructure:"confirmations"`
	RequestTimeout  time.Duration `mapstructure:"request_timeout"`
	RetryAttempts   int           `mapstructure:"retry_attempts"`
	RetryDelay      time.Duration `mapstructure:"retry_delay"`
	ReceiptTimeout  time.Duration `mapstructure:"receipt_timeout"`
	ExplorerTxURL   string        `mapstructure:"explorer_tx_url"`
	SignerKey       string        `mapstructure:"signer_key"`
}

// ContentStoreConfig describes the IPFS HTTP API endpoint
type ContentStoreConfig struct {
	Host          string        `mapstructure:"host"`
	Port          int           `mapstructure:"port"`
	Protocol      string        `mapstructure:"protocol"`
	ProjectID     string        `mapstructure:"project_id"`
	ProjectSecret string        `mapstructure:"project_secret"`
	AuthToken     string        `mapstructure:"auth_token"`
	Timeout       time.Duration `mapstructure:"timeout"`
}

// ReaderConfig configures the event log reader
type ReaderConfig struct {
	ContentConcurrency int `mapstructure:"content_concurrency"`
}

// DashboardConfig configures the read-model builder
type DashboardConfig struct {
	RecentLimit int           `mapstructure:"recent_limit"`
	CallTimeout time.Duration `mapstructure:"call_timeout"`
	// RefreshInterval polls the node head and reloads open dashboards; 0 disables
	RefreshInterval time.Duration `mapstructure:"refresh_interval"`
}

// StorageConfig configures the content cache
type StorageConfig struct {
	Type             string        `mapstructure:"type"` // memory, sqlite, postgres
	ConnectionString string        `mapstructure:"connection_string"`
	MaxConnections   int           `mapstructure:"max_connections"`
	MaxIdleTime      time.Duration `mapstructure:"max_idle_time"`
}

// ServerConfig contains HTTP server configuration
type ServerConfig struct {
	Port          int           `mapstructure:"port"`
	Host          string        `mapstructure:"host"`
	ReadTimeout   time.Duration `mapstructure:"read_timeout"`
	WriteTimeout  time.Duration `mapstructure:"write_timeout"`
	EnableMetrics bool          `mapstructure:"enable_metrics"`
	EnableHealth  bool          `mapstructure:"enable_health"`
}

// NotificationConfig lists webhooks told about confirmed writes
type NotificationConfig struct {
	WebhookURLs   []string          `mapstructure:"webhook_urls"`
	Headers       map[string]string `mapstructure:"headers"`
	Timeout       time.Duration     `mapstructure:"timeout"`
	RetryAttempts int               `mapstructure:"retry_attempts"`
	RetryDelay    time.Duration     `mapstructure:"retry_delay"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"` // json, text
	Output string `mapstructure:"output"` // stdout, stderr, file
	File   string `mapstructure:"file"`
}

// TelemetryConfig configures trace export
type TelemetryConfig struct {
	OTLPEndpoint string `mapstructure:"otlp_endpoint"`
	ServiceName  string `mapstructure:"service_name"`
}

// Load loads configuration from an optional .env file, a config file and environment variables
func Load(configPath string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("error reading .env file: %w", err)
	}

	v := viper.New()
	v.SetConfigType("yaml")

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
	}

	v.SetEnvPrefix("ETHERFUND")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Credentials keep their conventional names
	v.BindEnv("chain.node_url", "ETHERFUND_NODE_URL", "ETHERFUND_CHAIN_NODE_URL")
	v.BindEnv("chain.signer_key", "SIGNER_PRIVATE_KEY", "ETHERFUND_CHAIN_SIGNER_KEY")
	v.BindEnv("content_store.project_id", "IPFS_PROJECT_ID", "ETHERFUND_CONTENT_STORE_PROJECT_ID")
	v.BindEnv("content_store.project_secret", "IPFS_PROJECT_SECRET", "ETHERFUND_CONTENT_STORE_PROJECT_SECRET")
	v.BindEnv("content_store.auth_token", "IPFS_AUTH_TOKEN", "ETHERFUND_CONTENT_STORE_AUTH_TOKEN")

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			logrus.Debug("Config file not found, using defaults and environment variables")
		} else if configPath != "" || !os.IsNotExist(err) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	return &config, nil
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "etherfund-dashboard")
	v.SetDefault("app.version", "1.0.0")
	v.SetDefault("app.environment", "development")
	v.SetDefault("app.debug", false)

	v.SetDefault("chain.node_url", "http://127.0.0.1:8545")
	v.SetDefault("chain.chain_id", 1)
	v.SetDefault("chain.start_block", 0)
	v.SetDefault("chain.block_batch_size", 10000)
	v.SetDefault("chain.confirmations", 1)
	v.SetDefault("chain.request_timeout", "30s")
	v.SetDefault("chain.retry_attempts", 3)
	v.SetDefault("chain.retry_delay", "2s")
	v.SetDefault("chain.receipt_timeout", "5m")
	v.SetDefault("chain.explorer_tx_url", "https://etherscan.io/tx/")

	v.SetDefault("content_store.host", "ipfs.infura.io")
	v.SetDefault("content_store.port", 5001)
	v.SetDefault("content_store.protocol", "https")
	v.SetDefault("content_store.timeout", "30s")

	v.SetDefault("reader.content_concurrency", 4)

	v.SetDefault("dashboard.recent_limit", 5)
	v.SetDefault("dashboard.call_timeout", "20s")
	v.SetDefault("dashboard.refresh_interval", "0s")

	v.SetDefault("storage.type", "memory")
	v.SetDefault("storage.connection_string", "./data/content.db")
	v.SetDefault("storage.max_connections", 10)
	v.SetDefault("storage.max_idle_time", "15m")

	v.SetDefault("server.port", 8080)
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.read_timeout", "10s")
	v.SetDefault("server.write_timeout", "60s")
	v.SetDefault("server.enable_metrics", true)
	v.SetDefault("server.enable_health", true)

	v.SetDefault("notification.timeout", "10s")
	v.SetDefault("notification.retry_attempts", 3)
	v.SetDefault("notification.retry_delay", "1s")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.output", "stdout")

	v.SetDefault("telemetry.service_name", "etherfund-dashboard")
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Chain.NodeURL == "" {
		return fmt.Errorf("chain node URL is required")
	}
	if !utils.IsValidAddress(c.Chain.ContractAddress) {
		return fmt.Errorf("chain contract address %q is not a valid address", c.Chain.ContractAddress)
	}
	if c.Chain.BlockBatchSize == 0 {
		return fmt.Errorf("chain block batch size must be positive")
	}
	if c.Chain.Confirmations < 1 {
		return fmt.Errorf("chain confirmations must be at least 1")
	}
	if c.ContentStore.Host == "" {
		return fmt.Errorf("content store host is required")
	}
	switch c.ContentStore.Protocol {
	case "http", "https":
	default:
		return fmt.Errorf("content store protocol must be http or https, got %q", c.ContentStore.Protocol)
	}
	if c.Reader.ContentConcurrency <= 0 {
		return fmt.Errorf("reader content concurrency must be positive")
	}
	if c.Dashboard.RecentLimit <= 0 {
		return fmt.Errorf("dashboard recent limit must be positive")
	}
	for _, raw := range c.Notification.WebhookURLs {
		if u, err := url.Parse(raw); err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return fmt.Errorf("notification webhook URL %q is not a valid http(s) URL", raw)
		}
	}
	if c.Dashboard.RefreshInterval < 0 {
		return fmt.Errorf("dashboard refresh interval cannot be negative")
	}
	switch strings.ToLower(c.Storage.Type) {
	case "memory", "sqlite", "postgres", "postgresql":
	default:
		return fmt.Errorf("unsupported storage type %q", c.Storage.Type)
	}
	return nil
}

// ContentStoreURL returns the base URL of the content store API
func (c ContentStoreConfig) ContentStoreURL() string {
	if c.Port == 0 {
		return fmt.Sprintf("%s://%s", c.Protocol, c.Host)
	}
	return fmt.Sprintf("%s://%s:%d", c.Protocol, c.Host, c.Port)
}
