// Package config loads the process-wide DAEL configuration: the layered
// YAML file named by spec.md §6, `${VAR}`-style environment substitution,
// and an optional tolerant local override. Grounded on the teacher's
// viper-based internal/cli/root.go initConfig, generalized from
// CLI-flag binding to the full file+env model the spec names.
package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"regexp"

	"github.com/joho/godotenv"
	"github.com/ploston/dael/internal/daelerrors"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
	"github.com/tailscale/hujson"
)

// Mode mirrors tooling.Mode: a missing configuration file is not an error,
// it just means the registry stays in configuration mode exposing only
// built-ins (spec.md §6.3).
type Mode string

const (
	ModeConfiguration Mode = "configuration"
	ModeRunning       Mode = "running"
)

const (
	envConfigPath = "DAEL_CONFIG"
	primaryName   = "dael-config.yaml"
	localOverride = "dael-config.local.jsonc"
)

// ServerInfo is the top-level `server` section.
type ServerInfo struct {
	Name    string `mapstructure:"name" yaml:"name"`
	Version string `mapstructure:"version" yaml:"version"`
}

// MCPServerConfig is one entry of `mcp.servers.<id>`, covering all three
// backend transports (internal/tooling.ServerConfig is built from this).
type MCPServerConfig struct {
	Command    string            `mapstructure:"command" yaml:"command"`
	Args       []string          `mapstructure:"args" yaml:"args,omitempty"`
	Env        map[string]string `mapstructure:"env" yaml:"env,omitempty"`
	URL        string            `mapstructure:"url" yaml:"url,omitempty"`
	AuthHeader string            `mapstructure:"auth_header" yaml:"auth_header,omitempty"`
	Timeout    int               `mapstructure:"timeout" yaml:"timeout,omitempty"`
}

// MCPConfig is the top-level `mcp` section.
type MCPConfig struct {
	Servers map[string]MCPServerConfig `mapstructure:"servers" yaml:"servers,omitempty"`
}

// ToolsConfig is the top-level `tools` section.
type ToolsConfig struct {
	Builtins   []string `mapstructure:"builtins" yaml:"builtins,omitempty"`
	MCPServers []string `mapstructure:"mcp_servers" yaml:"mcp_servers,omitempty"`
}

// WorkflowsConfig is the top-level `workflows` section.
type WorkflowsConfig struct {
	Directory string `mapstructure:"directory" yaml:"directory,omitempty"`
	HotReload bool   `mapstructure:"hot_reload" yaml:"hot_reload,omitempty"`
}

// RetryPolicy is `execution.retry`.
type RetryPolicy struct {
	MaxAttempts       int     `mapstructure:"max_attempts" yaml:"max_attempts,omitempty"`
	BackoffMultiplier float64 `mapstructure:"backoff_multiplier" yaml:"backoff_multiplier,omitempty"`
}

// ExecutionConfig is the top-level `execution` section (spec.md §5).
type ExecutionConfig struct {
	MaxConcurrent  int         `mapstructure:"max_concurrent" yaml:"max_concurrent,omitempty"`
	DefaultTimeout int         `mapstructure:"default_timeout" yaml:"default_timeout,omitempty"`
	Retry          RetryPolicy `mapstructure:"retry" yaml:"retry,omitempty"`
}

// PythonExecConfig is the top-level `python_exec` section — advisory-only
// knobs (§9 Open Question i). They are decoded and shown by `config show`,
// but no other package reads them: the Sandbox's budget and timeout come
// from RunOptions, and max_memory is not enforced.
type PythonExecConfig struct {
	Timeout        int      `mapstructure:"timeout" yaml:"timeout,omitempty"`
	MaxMemory      int      `mapstructure:"max_memory" yaml:"max_memory,omitempty"`
	AllowedImports []string `mapstructure:"allowed_imports" yaml:"allowed_imports,omitempty"`
}

// LoggingOptions is `logging.options`.
type LoggingOptions struct {
	ShowParams  bool `mapstructure:"show_params" yaml:"show_params,omitempty"`
	ShowResults bool `mapstructure:"show_results" yaml:"show_results,omitempty"`
	TruncateAt  int  `mapstructure:"truncate_at" yaml:"truncate_at,omitempty"`
}

// LoggingConfig is the top-level `logging` section.
type LoggingConfig struct {
	Level      string            `mapstructure:"level" yaml:"level,omitempty"`
	Format     string            `mapstructure:"format" yaml:"format,omitempty"`
	Components map[string]string `mapstructure:"components" yaml:"components,omitempty"`
	Options    LoggingOptions    `mapstructure:"options" yaml:"options,omitempty"`
}

// SecurityConfig is the top-level `security` section. It is decoded but
// not consulted: the MCP HTTP/WebSocket backends dial their configured
// URL without checking these host lists.
type SecurityConfig struct {
	AllowedHosts []string `mapstructure:"allowed_hosts" yaml:"allowed_hosts,omitempty"`
	BlockedHosts []string `mapstructure:"blocked_hosts" yaml:"blocked_hosts,omitempty"`
}

// TelemetryConfig is the top-level `telemetry` section.
type TelemetryConfig struct {
	Enabled  bool   `mapstructure:"enabled" yaml:"enabled,omitempty"`
	Endpoint string `mapstructure:"endpoint" yaml:"endpoint,omitempty"`
}

// Config is the fully decoded configuration file. Carries both
// mapstructure tags (viper's decode path, Load) and matching yaml tags
// (the CLI's config show/get/set round-trip, internal/cli/config.go) so
// the two stay keyed the same way as the on-disk YAML.
type Config struct {
	Server     ServerInfo       `mapstructure:"server" yaml:"server"`
	MCP        MCPConfig        `mapstructure:"mcp" yaml:"mcp"`
	Tools      ToolsConfig      `mapstructure:"tools" yaml:"tools"`
	Workflows  WorkflowsConfig  `mapstructure:"workflows" yaml:"workflows"`
	Execution  ExecutionConfig  `mapstructure:"execution" yaml:"execution"`
	PythonExec PythonExecConfig `mapstructure:"python_exec" yaml:"python_exec"`
	Logging    LoggingConfig    `mapstructure:"logging" yaml:"logging"`
	Security   SecurityConfig   `mapstructure:"security" yaml:"security"`
	Telemetry  TelemetryConfig  `mapstructure:"telemetry" yaml:"telemetry"`

	// SourceFile records which path was actually loaded, empty in
	// configuration mode.
	SourceFile string `mapstructure:"-" yaml:"-"`
}

// Load resolves the configuration per the discovery order in spec.md §6.3:
// explicitPath (a CLI flag) → $DAEL_CONFIG → ./dael-config.yaml →
// ~/.dael/config.yaml. The first path that exists wins; if none exist,
// Load returns a zero Config in ModeConfiguration rather than an error.
// A file that exists but fails to parse or substitute is CONFIG_INVALID.
func Load(explicitPath string) (*Config, Mode, error) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Warn().Err(err).Msg("could not load .env file")
	}

	path, err := resolvePath(explicitPath)
	if err != nil {
		return nil, ModeConfiguration, err
	}
	if path == "" {
		return &Config{}, ModeConfiguration, nil
	}

	cfg, err := loadFile(path)
	if err != nil {
		return nil, ModeConfiguration, wrapInvalid(path, err)
	}
	cfg.SourceFile = path

	if err := mergeLocalOverride(cfg, filepath.Dir(path)); err != nil {
		return nil, ModeConfiguration, wrapInvalid(path, err)
	}

	return cfg, ModeRunning, nil
}

func resolvePath(explicitPath string) (string, error) {
	if explicitPath != "" {
		if _, err := os.Stat(explicitPath); err != nil {
			return "", daelerrors.Wrap(daelerrors.ConfigPathInvalid, err, "config path %q does not exist", explicitPath)
		}
		return explicitPath, nil
	}

	if envPath := os.Getenv(envConfigPath); envPath != "" {
		if _, err := os.Stat(envPath); err != nil {
			return "", daelerrors.Wrap(daelerrors.ConfigPathInvalid, err, "%s=%q does not exist", envConfigPath, envPath)
		}
		return envPath, nil
	}

	if _, err := os.Stat(primaryName); err == nil {
		return primaryName, nil
	}

	if home, err := os.UserHomeDir(); err == nil {
		candidate := filepath.Join(home, ".dael", "config.yaml")
		if _, err := os.Stat(candidate); err == nil {
			return candidate, nil
		}
	}

	return "", nil
}

func loadFile(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}

	substituted, err := substituteEnv(raw)
	if err != nil {
		return nil, err
	}

	v := viper.New()
	v.SetConfigType("yaml")
	if err := v.ReadConfig(bytes.NewReader(substituted)); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decoding %s: %w", path, err)
	}
	return &cfg, nil
}

// mergeLocalOverride looks for dael-config.local.jsonc next to the primary
// config and, if present, tolerantly parses it (hujson accepts comments
// and trailing commas) and merges its fields over cfg.
func mergeLocalOverride(cfg *Config, dir string) error {
	path := filepath.Join(dir, localOverride)
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("reading %s: %w", path, err)
	}

	standardized, err := hujson.Standardize(raw)
	if err != nil {
		return fmt.Errorf("parsing %s: %w", path, err)
	}

	substituted, err := substituteEnv(standardized)
	if err != nil {
		return err
	}

	v := viper.New()
	v.SetConfigType("json")
	if err := v.ReadConfig(bytes.NewReader(substituted)); err != nil {
		return fmt.Errorf("parsing %s: %w", path, err)
	}
	if err := v.Unmarshal(cfg); err != nil {
		return fmt.Errorf("decoding %s: %w", path, err)
	}
	return nil
}

var envPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)((:-)([^}]*)|(:\?)([^}]*))?\}`)

// substituteEnv expands `${VAR}`, `${VAR:-default}`, and `${VAR:?message}`
// against the process environment (spec.md §6.2). A bare `${VAR}` whose
// variable is unset is an error, matching the "(required)" annotation.
func substituteEnv(raw []byte) ([]byte, error) {
	var substErr error
	out := envPattern.ReplaceAllFunc(raw, func(match []byte) []byte {
		if substErr != nil {
			return match
		}
		groups := envPattern.FindSubmatch(match)
		name := string(groups[1])
		value, set := os.LookupEnv(name)

		switch {
		case len(groups[3]) > 0: // :-default
			if set {
				return []byte(value)
			}
			return groups[4]
		case len(groups[5]) > 0: // :?message
			if set {
				return []byte(value)
			}
			substErr = fmt.Errorf("environment variable %s is required: %s", name, string(groups[6]))
			return match
		default: // bare ${VAR}, required
			if set {
				return []byte(value)
			}
			substErr = fmt.Errorf("environment variable %s is required but not set", name)
			return match
		}
	})
	if substErr != nil {
		return nil, substErr
	}
	return out, nil
}

func wrapInvalid(path string, err error) error {
	return daelerrors.Wrap(daelerrors.ConfigInvalid, err, "invalid configuration file %s: %v", path, err)
}
