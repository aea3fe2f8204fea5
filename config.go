package snapodata

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/goccy/go-yaml"
	"github.com/joho/godotenv"
)

// ErrConfigValidation is returned when configuration validation fails
var ErrConfigValidation = errors.New("configuration validation failed")

// Config represents the SnapOData configuration
type Config struct {
	Service  ServiceConfig  `yaml:"service"`
	Batch    BatchConfig    `yaml:"batch"`
	Metadata MetadataConfig `yaml:"metadata"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// ServiceConfig represents the target OData service
type ServiceConfig struct {
	BaseURL                string            `yaml:"base_url"`
	Timeout                time.Duration     `yaml:"timeout"`
	Headers                map[string]string `yaml:"headers"`
	MaxProtocolVersion     string            `yaml:"max_protocol_version"`
	IgnoreResourceNotFound bool              `yaml:"ignore_resource_not_found"`
}

// BatchConfig represents $batch request settings
type BatchConfig struct {
	BoundaryPrefix string `yaml:"boundary_prefix"`
	Charset        string `yaml:"charset"`
}

// MetadataConfig points at a local CSDL document
type MetadataConfig struct {
	Path string `yaml:"path"`
}

// LoggingConfig controls request logging
type LoggingConfig struct {
	Level        string `yaml:"level"`
	IncludeStack bool   `yaml:"include_stack"`
	StackDepth   int    `yaml:"stack_depth"`
}

// ProtocolVersion returns the configured maximum protocol version.
// Validation guarantees the value parses.
func (c *Config) ProtocolVersion() ProtocolVersion {
	v, err := ParseProtocolVersion(c.Service.MaxProtocolVersion)
	if err != nil {
		return LatestVersion
	}

	return v
}

// LoadConfig loads configuration from the specified file
func LoadConfig(configPath string) (*Config, error) {
	// Load .env files first
	err := loadEnvFiles()
	if err != nil {
		return nil, fmt.Errorf("failed to load environment files: %w", err)
	}

	// Check if config file exists
	_, err = os.Stat(configPath)
	if os.IsNotExist(err) {
		// Return default configuration if file doesn't exist
		config := getDefaultConfig()
		expandConfigEnvVars(config)

		return config, nil
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	// Parse YAML with strict mode to detect unknown fields
	var config Config

	err = yaml.UnmarshalWithOptions(data, &config, yaml.Strict())
	if err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	// Expand environment variables before validation so ${BASE_URL} style values are checked
	expandConfigEnvVars(&config)

	if err := validateConfig(&config); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	applyDefaults(&config)

	return &config, nil
}

// validateConfig validates the configuration for common errors and inconsistencies
func validateConfig(config *Config) error {
	if config.Service.BaseURL != "" {
		if !strings.HasPrefix(config.Service.BaseURL, "http://") && !strings.HasPrefix(config.Service.BaseURL, "https://") {
			return fmt.Errorf("%w: service.base_url '%s' must be an http or https URL", ErrConfigValidation, config.Service.BaseURL)
		}
	}

	if config.Service.Timeout < 0 {
		return fmt.Errorf("%w: service.timeout must be non-negative, got %s", ErrConfigValidation, config.Service.Timeout)
	}

	if config.Service.MaxProtocolVersion != "" {
		if _, err := ParseProtocolVersion(config.Service.MaxProtocolVersion); err != nil {
			return fmt.Errorf("%w: service.max_protocol_version: %w", ErrConfigValidation, err)
		}
	}

	for name := range config.Service.Headers {
		if strings.TrimSpace(name) == "" || strings.ContainsAny(name, ": \t\r\n") {
			return fmt.Errorf("%w: service.headers: invalid header name '%s'", ErrConfigValidation, name)
		}
	}

	if strings.ContainsAny(config.Batch.BoundaryPrefix, " \t\r\n\"") {
		return fmt.Errorf("%w: batch.boundary_prefix '%s' must not contain whitespace or quotes", ErrConfigValidation, config.Batch.BoundaryPrefix)
	}

	if config.Logging.Level != "" {
		validLevels := map[string]bool{
			"debug": true,
			"info":  true,
			"warn":  true,
			"error": true,
		}
		if !validLevels[config.Logging.Level] {
			return fmt.Errorf("%w: logging.level '%s' is invalid: must be one of debug, info, warn, error", ErrConfigValidation, config.Logging.Level)
		}
	}

	if config.Logging.StackDepth < 0 {
		return fmt.Errorf("%w: logging.stack_depth must be non-negative, got %d", ErrConfigValidation, config.Logging.StackDepth)
	}

	return nil
}

// getDefaultConfig returns the default configuration
func getDefaultConfig() *Config {
	return &Config{
		Service: ServiceConfig{
			Timeout:            30 * time.Second,
			Headers:            map[string]string{},
			MaxProtocolVersion: LatestVersion.String(),
		},
		Batch: BatchConfig{
			BoundaryPrefix: "batch_",
			Charset:        "utf-8",
		},
		Logging: LoggingConfig{
			Level:      "info",
			StackDepth: 16,
		},
	}
}

// DefaultConfig returns a configuration with every default applied.
func DefaultConfig() *Config {
	return getDefaultConfig()
}

// applyDefaults applies default values to missing configuration fields
func applyDefaults(config *Config) {
	if config.Service.Timeout == 0 {
		config.Service.Timeout = 30 * time.Second
	}

	if config.Service.Headers == nil {
		config.Service.Headers = make(map[string]string)
	}

	if config.Service.MaxProtocolVersion == "" {
		config.Service.MaxProtocolVersion = LatestVersion.String()
	}

	if config.Batch.BoundaryPrefix == "" {
		config.Batch.BoundaryPrefix = "batch_"
	}

	if config.Batch.Charset == "" {
		config.Batch.Charset = "utf-8"
	}

	if config.Logging.Level == "" {
		config.Logging.Level = "info"
	}

	if config.Logging.IncludeStack && config.Logging.StackDepth == 0 {
		config.Logging.StackDepth = 16
	}
}

// loadEnvFiles loads .env files if they exist
func loadEnvFiles() error {
	if fileExists(".env") {
		err := godotenv.Load(".env")
		if err != nil {
			return fmt.Errorf("failed to load .env file: %w", err)
		}
	}

	return nil
}

var (
	bracedEnvVar = regexp.MustCompile(`\$\{([^}]+)\}`)
	plainEnvVar  = regexp.MustCompile(`\$([A-Za-z_][A-Za-z0-9_]*)`)
)

// expandEnvVars expands environment variables in the format ${VAR} or $VAR
func expandEnvVars(s string) string {
	s = bracedEnvVar.ReplaceAllStringFunc(s, func(match string) string {
		varName := match[2 : len(match)-1] // Remove ${ and }
		return os.Getenv(varName)
	})

	s = plainEnvVar.ReplaceAllStringFunc(s, func(match string) string {
		return os.Getenv(match[1:])
	})

	return s
}

// expandConfigEnvVars expands environment variables in string settings
func expandConfigEnvVars(config *Config) {
	config.Service.BaseURL = expandEnvVars(config.Service.BaseURL)

	for name, value := range config.Service.Headers {
		config.Service.Headers[name] = expandEnvVars(value)
	}

	config.Metadata.Path = expandEnvVars(config.Metadata.Path)
}

// fileExists checks if a file exists
func fileExists(path string) bool {
	_, err := os.Stat(path)
	return !os.IsNotExist(err)
}
