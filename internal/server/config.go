package server

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/go-playground/validator/v10"
	"github.com/invopop/jsonschema"
	"github.com/quantora/trademetrics/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Config holds the HTTP server configuration, loaded from YAML.
type Config struct {
	Host     string `yaml:"host" json:"host,omitempty"`
	Port     int    `yaml:"port" json:"port" validate:"required,gt=0,lte=65535"`
	Token    string `yaml:"token" json:"token" validate:"required,min=8"`
	DataDir  string `yaml:"data_dir" json:"data_dir" validate:"required"`
	LogLevel string `yaml:"log_level" json:"log_level,omitempty"`
}

// Address returns the listen address in host:port form.
func (c Config) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// LoadConfig reads and validates a YAML config file.
func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, errors.Wrapf(errors.ErrCodeInvalidConfig, err, "failed to read config file %s", path)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return Config{}, errors.Wrap(errors.ErrCodeInvalidConfig, "failed to parse config file", err)
	}

	if config.LogLevel == "" {
		config.LogLevel = "info"
	}

	if err := validator.New().Struct(config); err != nil {
		return Config{}, errors.Wrap(errors.ErrCodeInvalidConfig, "invalid config", err)
	}

	return config, nil
}

// ConfigSchema returns the JSON schema of the server config, for editor
// completion on config files.
func ConfigSchema() (string, error) {
	schema := jsonschema.Reflect(Config{})

	data, err := json.Marshal(schema)
	if err != nil {
		return "", errors.Wrap(errors.ErrCodeInvalidConfig, "failed to marshal config schema", err)
	}

	return string(data), nil
}
