package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// DefaultAllowedModules is the allow-list of standard-library modules that
// submitted code may import when no override is configured.
const DefaultAllowedModules = "math,cmath,random,string,collections,itertools,functools," +
	"operator,re,datetime,time,json,heapq,bisect,copy,decimal,fractions,numbers," +
	"statistics,typing,dataclasses,enum,abc,array,textwrap,unicodedata,calendar,pprint"

// Config represents the application configuration
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	API       APIConfig       `mapstructure:"api"`
	Sandbox   SandboxConfig   `mapstructure:"sandbox"`
	Validator ValidatorConfig `mapstructure:"validator"`
	Grader    GraderConfig    `mapstructure:"grader"`
	Logging   LoggingConfig   `mapstructure:"logging"`
}

// ServerConfig holds MCP server configuration
type ServerConfig struct {
	Transport string `mapstructure:"transport"`
	HTTPPort  int    `mapstructure:"http_port"`
}

// APIConfig holds the REST API configuration
type APIConfig struct {
	Enabled bool `mapstructure:"enabled"`
	Port    int  `mapstructure:"port"`
}

// SandboxConfig holds sandbox configuration
type SandboxConfig struct {
	Backend       string `mapstructure:"backend"`
	PythonPath    string `mapstructure:"python_path"`
	Image         string `mapstructure:"image"`
	TimeoutSec    int    `mapstructure:"timeout_sec"`
	MemoryMB      int    `mapstructure:"memory_mb"`
	MaxTimeoutSec int    `mapstructure:"max_timeout_sec"`
	MaxMemoryMB   int    `mapstructure:"max_memory_mb"`
	MaxProcesses  int    `mapstructure:"max_processes"`
	MaxOpenFiles  int    `mapstructure:"max_open_files"`
	MaxFileSizeKB int    `mapstructure:"max_file_size_kb"`
	MaxOutputKB   int    `mapstructure:"max_output_kb"`
	MaxConcurrent int    `mapstructure:"max_concurrent"`
	TempDir       string `mapstructure:"temp_dir"`
}

// ValidatorConfig holds static analysis configuration
type ValidatorConfig struct {
	// AllowedModules is a comma-separated list of importable modules.
	AllowedModules string `mapstructure:"allowed_modules"`
	MaxCodeBytes   int    `mapstructure:"max_code_bytes"`
}

// GraderConfig holds test runner configuration
type GraderConfig struct {
	EntryFunction    string `mapstructure:"entry_function"`
	Parallelism      int    `mapstructure:"parallelism"`
	AllowContainment bool   `mapstructure:"allow_containment"`
}

// LoggingConfig holds logger configuration
type LoggingConfig struct {
	Mode  string `mapstructure:"mode"`
	Level string `mapstructure:"level"`
}

// New loads and validates the application configuration
func New() (*Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	return load(v)
}

// NewFromFile loads the configuration from an explicit file path
func NewFromFile(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)

	return load(v)
}

func load(v *viper.Viper) (*Config, error) {
	setDefaults(v)

	v.SetEnvPrefix("CODEGRADER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		// If config file not found, continue with defaults
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if err := config.validate(); err != nil {
		return nil, fmt.Errorf("config validation error: %w", err)
	}

	return &config, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.transport", "stdio")
	v.SetDefault("server.http_port", 8080)

	v.SetDefault("api.enabled", false)
	v.SetDefault("api.port", 8081)

	v.SetDefault("sandbox.backend", "process")
	v.SetDefault("sandbox.python_path", "python3")
	v.SetDefault("sandbox.image", "python:3.11-slim")
	v.SetDefault("sandbox.timeout_sec", 5)
	v.SetDefault("sandbox.memory_mb", 50)
	v.SetDefault("sandbox.max_timeout_sec", 30)
	v.SetDefault("sandbox.max_memory_mb", 512)
	v.SetDefault("sandbox.max_processes", 32)
	v.SetDefault("sandbox.max_open_files", 64)
	v.SetDefault("sandbox.max_file_size_kb", 1024)
	v.SetDefault("sandbox.max_output_kb", 64)
	v.SetDefault("sandbox.max_concurrent", 8)
	v.SetDefault("sandbox.temp_dir", "")

	v.SetDefault("validator.allowed_modules", DefaultAllowedModules)
	v.SetDefault("validator.max_code_bytes", 64*1024)

	v.SetDefault("grader.entry_function", "solution")
	v.SetDefault("grader.parallelism", 4)
	v.SetDefault("grader.allow_containment", true)

	v.SetDefault("logging.mode", "production")
	v.SetDefault("logging.level", "info")
}

// validate ensures the configuration is valid
func (c *Config) validate() error {
	if c.Server.Transport != "stdio" && c.Server.Transport != "http" {
		return fmt.Errorf("invalid server.transport: %s, must be 'stdio' or 'http'", c.Server.Transport)
	}

	if c.API.Enabled && (c.API.Port <= 0 || c.API.Port > 65535) {
		return fmt.Errorf("invalid api.port: %d", c.API.Port)
	}

	switch c.Sandbox.Backend {
	case "process", "docker", "podman":
	default:
		return fmt.Errorf("unsupported sandbox.backend: %s", c.Sandbox.Backend)
	}

	if c.Sandbox.Backend == "process" && strings.TrimSpace(c.Sandbox.PythonPath) == "" {
		return fmt.Errorf("sandbox.python_path must not be empty for the process backend")
	}

	if c.Sandbox.TimeoutSec <= 0 {
		return fmt.Errorf("sandbox.timeout_sec must be positive, got: %d", c.Sandbox.TimeoutSec)
	}

	if c.Sandbox.MemoryMB <= 0 {
		return fmt.Errorf("sandbox.memory_mb must be positive, got: %d", c.Sandbox.MemoryMB)
	}

	if c.Sandbox.MaxTimeoutSec < c.Sandbox.TimeoutSec {
		return fmt.Errorf("sandbox.max_timeout_sec (%d) must not be below sandbox.timeout_sec (%d)",
			c.Sandbox.MaxTimeoutSec, c.Sandbox.TimeoutSec)
	}

	if c.Sandbox.MaxMemoryMB < c.Sandbox.MemoryMB {
		return fmt.Errorf("sandbox.max_memory_mb (%d) must not be below sandbox.memory_mb (%d)",
			c.Sandbox.MaxMemoryMB, c.Sandbox.MemoryMB)
	}

	if c.Sandbox.MaxOutputKB <= 0 {
		return fmt.Errorf("sandbox.max_output_kb must be positive, got: %d", c.Sandbox.MaxOutputKB)
	}

	if c.Sandbox.MaxConcurrent <= 0 {
		return fmt.Errorf("sandbox.max_concurrent must be positive, got: %d", c.Sandbox.MaxConcurrent)
	}

	if c.Sandbox.MaxProcesses < 0 || c.Sandbox.MaxOpenFiles < 0 || c.Sandbox.MaxFileSizeKB < 0 {
		return fmt.Errorf("sandbox process, file and file size limits must not be negative")
	}

	if c.Validator.MaxCodeBytes <= 0 {
		return fmt.Errorf("validator.max_code_bytes must be positive, got: %d", c.Validator.MaxCodeBytes)
	}

	if len(c.AllowedModules()) == 0 {
		return fmt.Errorf("validator.allowed_modules must list at least one module")
	}

	if c.Grader.EntryFunction == "" {
		return fmt.Errorf("grader.entry_function must not be empty")
	}

	if c.Grader.Parallelism <= 0 {
		return fmt.Errorf("grader.parallelism must be positive, got: %d", c.Grader.Parallelism)
	}

	if c.Logging.Mode != "production" && c.Logging.Mode != "development" {
		return fmt.Errorf("invalid logging.mode: %s, must be 'production' or 'development'", c.Logging.Mode)
	}

	switch c.Logging.Level {
	case "debug", "info", "warn", "error", "dpanic", "panic", "fatal":
	default:
		return fmt.Errorf("invalid logging.level: %s", c.Logging.Level)
	}

	return nil
}

// AllowedModules splits the comma-separated allow-list into module names
func (c *Config) AllowedModules() []string {
	var modules []string
	for _, m := range strings.Split(c.Validator.AllowedModules, ",") {
		if m = strings.TrimSpace(m); m != "" {
			modules = append(modules, m)
		}
	}
	return modules
}
