package config

import (
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"infragraph/pkg/models"
)

// Config is the root configuration.
type Config struct {
	InfraGraph InfraGraphConfig `yaml:"infragraph"`
}

// InfraGraphConfig is the project configuration.
type InfraGraphConfig struct {
	Storage    StorageConfig    `yaml:"storage"`
	Changefeed ChangefeedConfig `yaml:"changefeed"`
	Query      QueryConfig      `yaml:"query"`
	RBAC       RBACConfig       `yaml:"rbac"`
	Metrics    MetricsConfig    `yaml:"metrics"`
	Logging    LoggingConfig    `yaml:"logging"`
}

// StorageConfig selects and seeds the storage backend.
type StorageConfig struct {
	Backend  string `yaml:"backend"` // memory
	Snapshot string `yaml:"snapshot"`
}

// ChangefeedConfig controls the Redis change publisher.
type ChangefeedConfig struct {
	Enabled bool        `yaml:"enabled"`
	Redis   RedisConfig `yaml:"redis"`
}

// RedisConfig controls Redis access.
type RedisConfig struct {
	Addr      string        `yaml:"addr"`
	Password  string        `yaml:"password"`
	DB        int           `yaml:"db"`
	Key       string        `yaml:"key"`
	KeyPrefix string        `yaml:"key_prefix"`
	MaxLen    int64         `yaml:"max_len"`
	Timeout   time.Duration `yaml:"timeout"`
}

// QueryConfig bounds query execution.
type QueryConfig struct {
	MaxRegexLength int             `yaml:"max_regex_length"`
	TraversalDepth int             `yaml:"traversal_depth"`
	Translate      TranslateConfig `yaml:"translate"`
}

// TranslateConfig controls natural-language translation.
type TranslateConfig struct {
	Enabled             bool    `yaml:"enabled"`
	ConfidenceThreshold float64 `yaml:"confidence_threshold"`
}

// RBACConfig is the access policy applied when wrapping storage.
type RBACConfig struct {
	Principals  []models.Principal `yaml:"principals"`
	DefaultRole models.Role        `yaml:"default_role"`
	AuditLog    bool               `yaml:"audit_log"`
	DenyUnknown bool               `yaml:"deny_unknown"`
}

// Policy converts the config section into the policy value handed to every
// storage wrap.
func (c RBACConfig) Policy() models.Policy {
	return models.Policy{
		Principals:  c.Principals,
		DefaultRole: c.DefaultRole,
		AuditLog:    c.AuditLog,
		DenyUnknown: c.DenyUnknown,
	}
}

// MetricsConfig controls the Prometheus listener.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Listen  string `yaml:"listen"`
}

// LoggingConfig controls logging output.
type LoggingConfig struct {
	Enabled bool   `yaml:"enabled"`
	Level   string `yaml:"level"`
	File    string `yaml:"file"`
	Console bool   `yaml:"console"`
}

// LoadConfig reads and parses a YAML config file.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}
