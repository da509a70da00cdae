package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// clearEnv unsets the variables Load reads so the host environment cannot
// leak into a test.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, env := range legacyEnv {
		t.Setenv(env, "")
		os.Unsetenv(env)
	}
	t.Setenv("HOME", t.TempDir())
}

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "gpt-4.1-mini", cfg.LLM.PlannerModel)
	assert.Equal(t, "gpt-4.1", cfg.LLM.WriterModel)
	assert.Equal(t, "gpt-4.1-mini", cfg.LLM.CheckerModel)
	assert.Equal(t, "gpt-4o-mini", cfg.LLM.VisionModel)
	assert.Zero(t, cfg.LLM.Temperature)
	assert.Equal(t, 10, cfg.Loop.MaxIterations)
	assert.Equal(t, 5, cfg.Loop.MaxConsecutiveErrors)
	assert.Zero(t, cfg.Workflow.MaxVerifyRounds)
	assert.Equal(t, "stdio", cfg.MCP.Transport)
	assert.Equal(t, []string{"-y", "mcp-remote", "https://mcp.notion.com/mcp"}, cfg.MCP.Args)
	assert.Equal(t, ":5001", cfg.Server.ListenAddr())
	assert.Equal(t, int64(16<<20), cfg.Server.MaxUploadBytes)
	assert.Equal(t, 10*time.Second, cfg.Server.ShutdownTimeout)
	assert.Equal(t, Default(), cfg)
}

func TestLoadFileAndEnv(t *testing.T) {
	clearEnv(t)
	path := writeConfig(t, `
llm:
  writer_model: gpt-4o
  api_key: from-file
loop:
  max_iterations: 20
mcp:
  args: ["-y", "mcp-remote", "https://example.test/mcp"]
`)
	t.Setenv("OPENAI_API_KEY", "from-env")
	t.Setenv("NOTION_PAGE_ID", "parent-1")
	t.Setenv("BACKEND_PORT", "8080")
	t.Setenv("NOTEPRESS_LOOP_MAX_CONSECUTIVE_ERRORS", "3")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "gpt-4o", cfg.LLM.WriterModel)
	assert.Equal(t, "from-env", cfg.LLM.APIKey, "environment wins over file")
	assert.Equal(t, "parent-1", cfg.Notion.PageID)
	assert.Equal(t, ":8080", cfg.Server.ListenAddr())
	assert.Equal(t, 20, cfg.Loop.MaxIterations)
	assert.Equal(t, 3, cfg.Loop.MaxConsecutiveErrors)
	assert.Equal(t, "https://example.test/mcp", cfg.MCP.Args[2])
}

func TestLoadPrefixedNameWinsOverLegacy(t *testing.T) {
	clearEnv(t)
	t.Setenv("OPENAI_API_KEY", "legacy")
	t.Setenv("NOTEPRESS_LLM_API_KEY", "prefixed")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "prefixed", cfg.LLM.APIKey)
}

func TestLoadMissingExplicitFile(t *testing.T) {
	clearEnv(t)
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"zero iterations", func(c *Config) { c.Loop.MaxIterations = 0 }, "loop.max_iterations"},
		{"zero error cap", func(c *Config) { c.Loop.MaxConsecutiveErrors = 0 }, "loop.max_consecutive_errors"},
		{"negative rounds", func(c *Config) { c.Workflow.MaxVerifyRounds = -1 }, "workflow.max_verify_rounds"},
		{"temperature", func(c *Config) { c.LLM.Temperature = 3 }, "llm.temperature"},
		{"verbosity", func(c *Config) { c.Logging.Verbosity = "loud" }, "logging.verbosity"},
		{"transport", func(c *Config) { c.MCP.Transport = "carrier-pigeon" }, "mcp.transport"},
		{"http without url", func(c *Config) { c.MCP.Transport = "sse" }, "mcp.url"},
		{"stdio without command", func(c *Config) { c.MCP.Command = "" }, "mcp.command"},
		{"exporter", func(c *Config) { c.Telemetry.Exporter = "zipkin" }, "telemetry.exporter"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			require.NoError(t, cfg.Validate())
			tt.mutate(cfg)
			assert.ErrorContains(t, cfg.Validate(), tt.want)
		})
	}
}

func TestRequireCredentials(t *testing.T) {
	tests := []struct {
		name     string
		testMode bool
		mutate   func(*Config)
		want     string
	}{
		{"api key", false, func(c *Config) {}, "OPENAI_API_KEY"},
		{"test mode needs no key", true, func(c *Config) { c.Notion.PageID = "p" }, ""},
		{"test mode needs page", true, func(c *Config) {}, "NOTION_PAGE_ID"},
		{"token for http transport", false, func(c *Config) {
			c.LLM.APIKey = "k"
			c.MCP.Transport = "streamable"
			c.MCP.URL = "https://mcp.notion.com/mcp"
		}, "NOTION_TOKEN"},
		{"complete", false, func(c *Config) { c.LLM.APIKey = "k" }, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.RequireCredentials(tt.testMode)
			if tt.want == "" {
				assert.NoError(t, err)
				return
			}
			var missing *MissingSettingError
			require.True(t, errors.As(err, &missing))
			assert.Equal(t, tt.want, missing.Setting)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestWriteFileRoundTrip(t *testing.T) {
	clearEnv(t)
	cfg := Default()
	cfg.Loop.MaxIterations = 15
	cfg.Notion.PageID = "parent"
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")

	require.NoError(t, WriteFile(path, cfg))
	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 15, loaded.Loop.MaxIterations)
	assert.Equal(t, "parent", loaded.Notion.PageID)
	assert.Equal(t, cfg.Server.ShutdownTimeout, loaded.Server.ShutdownTimeout)
	assert.Equal(t, cfg.MCP.Args, loaded.MCP.Args)
	assert.Equal(t, cfg.LLM, loaded.LLM)

	_, err = os.Stat(path + ".tmp")
	assert.True(t, os.IsNotExist(err))
}

func TestRedacted(t *testing.T) {
	cfg := Default()
	cfg.LLM.APIKey = "sk-1234567890"
	cfg.Notion.Token = "short"

	r := cfg.Redacted()
	assert.Equal(t, "sk-1****", r.LLM.APIKey)
	assert.Equal(t, "****", r.Notion.Token)
	assert.Equal(t, "sk-1234567890", cfg.LLM.APIKey)
}

func TestBuildProvider(t *testing.T) {
	c := Default().LLM
	_, err := BuildProvider(c)
	var missing *MissingSettingError
	require.ErrorAs(t, err, &missing)

	c.APIKey = "k"
	base, err := BuildProvider(c)
	require.NoError(t, err)
	assert.Equal(t, "gpt-4.1", base.GetModel())

	models := BuildModels(c, base, nil)
	assert.Equal(t, "gpt-4.1-mini", models.Planner.GetModel())
	assert.Equal(t, "gpt-4.1", models.Writer.GetModel())
	assert.Equal(t, "gpt-4.1-mini", models.Checker.GetModel())
	assert.Equal(t, "gpt-4.1", models.Tool.GetModel())
	assert.NotNil(t, models.Vision)
}
