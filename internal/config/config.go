package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Printer  PrinterConfig  `yaml:"printer"`
	Queue    QueueConfig    `yaml:"queue"`
	Archive  ArchiveConfig  `yaml:"archive"`
	Logging  LoggingConfig  `yaml:"logging"`
}

type ServerConfig struct {
	Port         int           `yaml:"port"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

type DatabaseConfig struct {
	Path string `yaml:"path"`
}

type PrinterConfig struct {
	// Address pins the bridge to one printer; empty means "first device
	// advertising the service signature".
	Address            string        `yaml:"address"`
	ServiceUUID        string        `yaml:"service_uuid"`
	CharacteristicUUID string        `yaml:"characteristic_uuid"`
	ChunkSize          int           `yaml:"chunk_size"`
	ChunkDelay         time.Duration `yaml:"chunk_delay"`
	WriteTimeout       time.Duration `yaml:"write_timeout"`
	DiscoveryTimeout   time.Duration `yaml:"discovery_timeout"`
	ConnectTimeout     time.Duration `yaml:"connect_timeout"`
	ConnectRetries     int           `yaml:"connect_retries"`
	ConnectBackoff     time.Duration `yaml:"connect_backoff"`
}

type QueueConfig struct {
	MaxRetries int           `yaml:"max_retries"`
	RetryDelay time.Duration `yaml:"retry_delay"`
}

type ArchiveConfig struct {
	Path string `yaml:"path"`
	Days int    `yaml:"days"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// DefaultPrinterUUID is the signature the supported firmware family
// advertises and writes on; printers using other signatures need the
// config override.
const DefaultPrinterUUID = "0000ff02-0000-1000-8000-00805f9b34fb"

func defaults() *Config {
	return &Config{
		Server: ServerConfig{
			Port:         8080,
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 30 * time.Second,
		},
		Database: DatabaseConfig{
			Path: "./data/thermalink.db",
		},
		Printer: PrinterConfig{
			ServiceUUID:        DefaultPrinterUUID,
			CharacteristicUUID: DefaultPrinterUUID,
			ChunkSize:          20,
			ChunkDelay:         50 * time.Millisecond,
			WriteTimeout:       5 * time.Second,
			DiscoveryTimeout:   10 * time.Second,
			ConnectTimeout:     10 * time.Second,
			ConnectRetries:     3,
			ConnectBackoff:     2 * time.Second,
		},
		Queue: QueueConfig{
			MaxRetries: 3,
			RetryDelay: 10 * time.Second,
		},
		Archive: ArchiveConfig{
			Path: "./data/archives",
			Days: 30,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

func Load(configPath string) (*Config, error) {
	cfg := defaults()

	data, err := os.ReadFile(configPath)
	if err != nil {
		if os.IsNotExist(err) {
			applyEnv(cfg)
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	applyEnv(cfg)
	return cfg, nil
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("THERMALINK_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}

	if v := os.Getenv("THERMALINK_DB_PATH"); v != "" {
		cfg.Database.Path = v
	}

	if v := os.Getenv("THERMALINK_PRINTER_ADDRESS"); v != "" {
		cfg.Printer.Address = v
	}

	if v := os.Getenv("THERMALINK_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
}

func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server port must be between 1 and 65535, got %d", c.Server.Port)
	}

	if c.Server.ReadTimeout < 0 {
		return fmt.Errorf("server read timeout must be non-negative")
	}

	if c.Server.WriteTimeout < 0 {
		return fmt.Errorf("server write timeout must be non-negative")
	}

	if c.Database.Path == "" {
		return fmt.Errorf("database path is required")
	}

	if c.Printer.ServiceUUID == "" {
		return fmt.Errorf("printer service uuid is required")
	}

	if c.Printer.CharacteristicUUID == "" {
		return fmt.Errorf("printer characteristic uuid is required")
	}

	if c.Printer.ChunkSize < 1 {
		return fmt.Errorf("printer chunk size must be at least 1, got %d", c.Printer.ChunkSize)
	}

	if c.Printer.ChunkDelay < 0 {
		return fmt.Errorf("printer chunk delay must be non-negative")
	}

	if c.Printer.DiscoveryTimeout <= 0 {
		return fmt.Errorf("printer discovery timeout must be positive")
	}

	if c.Printer.ConnectTimeout <= 0 {
		return fmt.Errorf("printer connect timeout must be positive")
	}

	if c.Printer.ConnectRetries < 1 {
		return fmt.Errorf("printer connect retries must be at least 1")
	}

	if c.Printer.ConnectBackoff < 0 {
		return fmt.Errorf("printer connect backoff must be non-negative")
	}

	if c.Queue.MaxRetries < 0 {
		return fmt.Errorf("queue max retries must be non-negative")
	}

	if c.Queue.RetryDelay < 0 {
		return fmt.Errorf("queue retry delay must be non-negative")
	}

	if c.Archive.Days < 0 {
		return fmt.Errorf("archive days must be non-negative")
	}

	validLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}

	if !validLevels[c.Logging.Level] {
		return fmt.Errorf("invalid log level: %s (valid: debug, info, warn, error)", c.Logging.Level)
	}

	validFormats := map[string]bool{
		"json": true,
		"text": true,
	}

	if !validFormats[c.Logging.Format] {
		return fmt.Errorf("invalid log format: %s (valid: json, text)", c.Logging.Format)
	}

	return nil
}
