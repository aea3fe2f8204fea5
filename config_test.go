package snapodata

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/alecthomas/assert/v2"
	"github.com/goccy/go-yaml"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()

	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "snapodata.yaml")

	err := os.WriteFile(configPath, []byte(content), 0644)
	assert.NoError(t, err)

	return configPath
}

func TestLoadConfig_MissingFileReturnsDefaults(t *testing.T) {
	config, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.NoError(t, err)
	assert.Equal(t, 30*time.Second, config.Service.Timeout)
	assert.Equal(t, "4.01", config.Service.MaxProtocolVersion)
	assert.Equal(t, "batch_", config.Batch.BoundaryPrefix)
	assert.Equal(t, "info", config.Logging.Level)
	assert.Equal(t, Version401, config.ProtocolVersion())
}

func TestLoadConfig_ValidConfig(t *testing.T) {
	configPath := writeConfig(t, `
service:
  base_url: "https://example.com/odata"
  timeout: 5s
  max_protocol_version: "4.0"
  ignore_resource_not_found: true
  headers:
    X-Tenant: "acme"
batch:
  boundary_prefix: "b_"
metadata:
  path: "./metadata.xml"
logging:
  level: debug
`)

	config, err := LoadConfig(configPath)
	assert.NoError(t, err)
	assert.Equal(t, "https://example.com/odata", config.Service.BaseURL)
	assert.Equal(t, 5*time.Second, config.Service.Timeout)
	assert.Equal(t, Version40, config.ProtocolVersion())
	assert.True(t, config.Service.IgnoreResourceNotFound)
	assert.Equal(t, "acme", config.Service.Headers["X-Tenant"])
	assert.Equal(t, "b_", config.Batch.BoundaryPrefix)
	assert.Equal(t, "utf-8", config.Batch.Charset)
	assert.Equal(t, "./metadata.xml", config.Metadata.Path)
	assert.Equal(t, "debug", config.Logging.Level)
}

func TestLoadConfig_StrictMode_UnknownKeys(t *testing.T) {
	configPath := writeConfig(t, `
service:
  base_url: "https://example.com/odata"
  unknown_service_key: true
`)

	_, err := LoadConfig(configPath)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse config file")
}

func TestLoadConfig_EnvironmentExpansion(t *testing.T) {
	t.Setenv("SNAPODATA_TEST_HOST", "odata.example.com")
	t.Setenv("SNAPODATA_TEST_TOKEN", "secret")

	configPath := writeConfig(t, `
service:
  base_url: "https://${SNAPODATA_TEST_HOST}/v4"
  headers:
    Authorization: "Bearer $SNAPODATA_TEST_TOKEN"
`)

	config, err := LoadConfig(configPath)
	assert.NoError(t, err)
	assert.Equal(t, "https://odata.example.com/v4", config.Service.BaseURL)
	assert.Equal(t, "Bearer secret", config.Service.Headers["Authorization"])
}

func TestValidateConfig(t *testing.T) {
	tests := []struct {
		name    string
		config  Config
		message string
	}{
		{
			name:    "non http base url",
			config:  Config{Service: ServiceConfig{BaseURL: "ftp://example.com"}},
			message: "service.base_url",
		},
		{
			name:    "negative timeout",
			config:  Config{Service: ServiceConfig{Timeout: -time.Second}},
			message: "service.timeout",
		},
		{
			name:    "unknown protocol version",
			config:  Config{Service: ServiceConfig{MaxProtocolVersion: "3.0"}},
			message: "service.max_protocol_version",
		},
		{
			name:    "bad header name",
			config:  Config{Service: ServiceConfig{Headers: map[string]string{"Bad Header": "x"}}},
			message: "service.headers",
		},
		{
			name:    "boundary prefix with whitespace",
			config:  Config{Batch: BatchConfig{BoundaryPrefix: "a b"}},
			message: "batch.boundary_prefix",
		},
		{
			name:    "invalid log level",
			config:  Config{Logging: LoggingConfig{Level: "verbose"}},
			message: "logging.level",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validateConfig(&tt.config)
			assert.Error(t, err)
			assert.IsError(t, err, ErrConfigValidation)
			assert.Contains(t, err.Error(), tt.message)
		})
	}
}

func TestValidateConfig_Valid(t *testing.T) {
	config := getDefaultConfig()
	config.Service.BaseURL = "http://localhost:8080/odata"
	assert.NoError(t, validateConfig(config))
}

func TestConfig_YAMLRoundTrip(t *testing.T) {
	original := getDefaultConfig().Batch

	data, err := yaml.Marshal(original)
	assert.NoError(t, err)

	var decoded BatchConfig

	err = yaml.UnmarshalWithOptions(data, &decoded, yaml.Strict())
	assert.NoError(t, err)
	assert.Equal(t, original, decoded)
}

func TestProtocolVersion(t *testing.T) {
	v, err := ParseProtocolVersion("4.01")
	assert.NoError(t, err)
	assert.Equal(t, Version401, v)
	assert.Equal(t, "4.01", v.String())
	assert.True(t, v.AtLeast(Version40))
	assert.False(t, Version40.AtLeast(Version401))
	assert.Equal(t, Version401, MaxVersion(Version40, Version401))

	_, err = ParseProtocolVersion("5")
	assert.Error(t, err)
}
