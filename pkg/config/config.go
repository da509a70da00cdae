// Package config is the single place settings enter the process. Load
// layers defaults, an optional YAML file and the environment, and the
// resulting Config is passed down; no other package reads the environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix namespaces the automatic environment variables, e.g.
// NOTEPRESS_LOOP_MAX_ITERATIONS.
const EnvPrefix = "NOTEPRESS"

// Config holds every setting of a notepress process.
type Config struct {
	LLM       LLMConfig       `mapstructure:"llm" yaml:"llm"`
	Notion    NotionConfig    `mapstructure:"notion" yaml:"notion"`
	MCP       MCPConfig       `mapstructure:"mcp" yaml:"mcp"`
	Workflow  WorkflowConfig  `mapstructure:"workflow" yaml:"workflow"`
	Loop      LoopConfig      `mapstructure:"loop" yaml:"loop"`
	Extract   ExtractConfig   `mapstructure:"extract" yaml:"extract"`
	Prompts   PromptsConfig   `mapstructure:"prompts" yaml:"prompts"`
	Server    ServerConfig    `mapstructure:"server" yaml:"server"`
	Logging   LoggingConfig   `mapstructure:"logging" yaml:"logging"`
	Artifacts ArtifactsConfig `mapstructure:"artifacts" yaml:"artifacts"`
	Telemetry TelemetryConfig `mapstructure:"telemetry" yaml:"telemetry"`
}

// LLMConfig selects the model for each step. All models share one key and endpoint.
type LLMConfig struct {
	APIKey       string  `mapstructure:"api_key" yaml:"api_key"`
	BaseURL      string  `mapstructure:"base_url" yaml:"base_url"`
	PlannerModel string  `mapstructure:"planner_model" yaml:"planner_model"` // structure
	WriterModel  string  `mapstructure:"writer_model" yaml:"writer_model"`   // enhance
	CheckerModel string  `mapstructure:"checker_model" yaml:"checker_model"` // verify
	ToolModel    string  `mapstructure:"tool_model" yaml:"tool_model"`       // publish loop
	VisionModel  string  `mapstructure:"vision_model" yaml:"vision_model"`   // transcription
	Temperature  float64 `mapstructure:"temperature" yaml:"temperature"`
	MaxRetries   int     `mapstructure:"max_retries" yaml:"max_retries"`
}

type NotionConfig struct {
	Token string `mapstructure:"token" yaml:"token"`

	// PageID is the parent page new notes go under. Empty means the agent
	// looks up or creates an "uploads" page.
	PageID string `mapstructure:"page_id" yaml:"page_id"`
}

// MCPConfig describes how to reach the workspace tool server.
type MCPConfig struct {
	Name      string   `mapstructure:"name" yaml:"name"`
	Transport string   `mapstructure:"transport" yaml:"transport"`
	Command   string   `mapstructure:"command" yaml:"command"`
	Args      []string `mapstructure:"args" yaml:"args"`
	URL       string   `mapstructure:"url" yaml:"url"`
}

type WorkflowConfig struct {
	// MaxVerifyRounds caps enhance/verify rounds; 0 keeps looping until the
	// checker accepts the draft.
	MaxVerifyRounds int `mapstructure:"max_verify_rounds" yaml:"max_verify_rounds"`
}

type LoopConfig struct {
	MaxIterations        int `mapstructure:"max_iterations" yaml:"max_iterations"`
	MaxConsecutiveErrors int `mapstructure:"max_consecutive_errors" yaml:"max_consecutive_errors"`
}

type ExtractConfig struct {
	Dir      string   `mapstructure:"dir" yaml:"dir"`
	Patterns []string `mapstructure:"patterns" yaml:"patterns"`
	Exclude  []string `mapstructure:"exclude" yaml:"exclude"`
}

type PromptsConfig struct {
	// Dir overrides the embedded stages.yaml and base_prompt.txt.
	Dir          string `mapstructure:"dir" yaml:"dir"`
	Instructions string `mapstructure:"instructions" yaml:"instructions"`
}

type ServerConfig struct {
	Addr            string        `mapstructure:"addr" yaml:"addr"`
	Port            int           `mapstructure:"port" yaml:"port"`
	AccessCode      string        `mapstructure:"access_code" yaml:"access_code"`
	UploadDir       string        `mapstructure:"upload_dir" yaml:"upload_dir"`
	MaxUploadBytes  int64         `mapstructure:"max_upload_bytes" yaml:"max_upload_bytes"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout"`
}

// ListenAddr prefers an explicit port over Addr.
func (s ServerConfig) ListenAddr() string {
	if s.Port > 0 {
		return ":" + strconv.Itoa(s.Port)
	}
	return s.Addr
}

type LoggingConfig struct {
	// Verbosity controls console output: quiet, normal, verbose or debug.
	Verbosity string `mapstructure:"verbosity" yaml:"verbosity"`

	// Level filters the run log file: debug, info, warn or error.
	Level string `mapstructure:"level" yaml:"level"`
	Dir   string `mapstructure:"dir" yaml:"dir"`
}

type ArtifactsConfig struct {
	Enabled   bool   `mapstructure:"enabled" yaml:"enabled"`
	OutputDir string `mapstructure:"output_dir" yaml:"output_dir"`
}

type TelemetryConfig struct {
	Enabled  bool   `mapstructure:"enabled" yaml:"enabled"`
	Exporter string `mapstructure:"exporter" yaml:"exporter"`
	Endpoint string `mapstructure:"endpoint" yaml:"endpoint"`
	Insecure bool   `mapstructure:"insecure" yaml:"insecure"`
}

// defaults are applied before the file and the environment.
var defaults = map[string]interface{}{
	"llm.api_key":       "",
	"llm.base_url":      "",
	"llm.planner_model": "gpt-4.1-mini",
	"llm.writer_model":  "gpt-4.1",
	"llm.checker_model": "gpt-4.1-mini",
	"llm.tool_model":    "gpt-4.1",
	"llm.vision_model":  "gpt-4o-mini",
	"llm.temperature":   0.0,
	"llm.max_retries":   2,

	"notion.token":   "",
	"notion.page_id": "",

	"mcp.name":      "notepress",
	"mcp.transport": "stdio",
	"mcp.command":   "npx",
	"mcp.args":      []string{"-y", "mcp-remote", "https://mcp.notion.com/mcp"},
	"mcp.url":       "",

	"workflow.max_verify_rounds": 0,

	"loop.max_iterations":         10,
	"loop.max_consecutive_errors": 5,

	"extract.dir":      "",
	"extract.patterns": []string{"*.{png,jpg,jpeg,gif,webp}"},
	"extract.exclude":  []string{},

	"prompts.dir":          "",
	"prompts.instructions": "",

	"server.addr":             ":5001",
	"server.port":             0,
	"server.access_code":      "",
	"server.upload_dir":       "",
	"server.max_upload_bytes": int64(16 << 20),
	"server.shutdown_timeout": 10 * time.Second,

	"logging.verbosity": "normal",
	"logging.level":     "info",
	"logging.dir":       "",

	"artifacts.enabled":    false,
	"artifacts.output_dir": "notepress-artifacts",

	"telemetry.enabled":  false,
	"telemetry.exporter": "stdout",
	"telemetry.endpoint": "",
	"telemetry.insecure": false,
}

// legacyEnv maps settings to the environment names used by earlier
// deployments. They are checked after the NOTEPRESS_ name.
var legacyEnv = map[string]string{
	"llm.api_key":        "OPENAI_API_KEY",
	"llm.base_url":       "OPENAI_BASE_URL",
	"notion.token":       "NOTION_TOKEN",
	"notion.page_id":     "NOTION_PAGE_ID",
	"server.access_code": "ACCESS_CODE",
	"server.port":        "BACKEND_PORT",
}

// DefaultPath is ~/.notepress/config.yaml.
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user home directory: %w", err)
	}
	return filepath.Join(home, ".notepress", "config.yaml"), nil
}

// New returns a viper instance carrying defaults and environment bindings.
func New() *viper.Viper {
	v := viper.New()
	for key, val := range defaults {
		v.SetDefault(key, val)
	}
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for key, env := range legacyEnv {
		prefixed := EnvPrefix + "_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
		// BindEnv only errors without a key.
		_ = v.BindEnv(key, prefixed, env)
	}
	return v
}

// Load reads path (when non-empty) over the defaults, applies the
// environment and validates the result. A missing file at the default
// location is not an error; a missing explicit path is.
func Load(path string) (*Config, error) {
	v := New()

	explicit := path != ""
	if !explicit {
		if p, err := DefaultPath(); err == nil {
			path = p
		}
	}
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			if explicit || !errors.Is(err, os.ErrNotExist) {
				return nil, fmt.Errorf("read config %s: %w", path, err)
			}
		}
	}

	return Decode(v)
}

// Decode unmarshals and validates a prepared viper instance.
func Decode(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Default returns the built-in settings without reading file or environment.
func Default() *Config {
	v := viper.New()
	for key, val := range defaults {
		v.SetDefault(key, val)
	}
	var cfg Config
	// Defaults always decode.
	_ = v.Unmarshal(&cfg)
	return &cfg
}
