package config

import (
	"errors"
	"fmt"
	"strings"
)

// MissingSettingError names a required setting that has no value.
type MissingSettingError struct {
	Setting string
	Key     string
}

func (e *MissingSettingError) Error() string {
	return fmt.Sprintf("missing required setting %s (config key %s)", e.Setting, e.Key)
}

var (
	verbosities = []string{"quiet", "normal", "verbose", "debug"}
	levels      = []string{"debug", "info", "warn", "warning", "error"}
	transports  = []string{"stdio", "sse", "streamable", "streaming"}
	exporters   = []string{"stdout", "otlp"}
)

// Validate checks values that are wrong regardless of the command being run.
func (c *Config) Validate() error {
	var errs []error
	if c.Loop.MaxIterations < 1 {
		errs = append(errs, fmt.Errorf("loop.max_iterations must be at least 1, got %d", c.Loop.MaxIterations))
	}
	if c.Loop.MaxConsecutiveErrors < 1 {
		errs = append(errs, fmt.Errorf("loop.max_consecutive_errors must be at least 1, got %d", c.Loop.MaxConsecutiveErrors))
	}
	if c.Workflow.MaxVerifyRounds < 0 {
		errs = append(errs, fmt.Errorf("workflow.max_verify_rounds must not be negative, got %d", c.Workflow.MaxVerifyRounds))
	}
	if c.LLM.Temperature < 0 || c.LLM.Temperature > 2 {
		errs = append(errs, fmt.Errorf("llm.temperature must be within [0, 2], got %g", c.LLM.Temperature))
	}
	if c.Server.MaxUploadBytes <= 0 {
		errs = append(errs, fmt.Errorf("server.max_upload_bytes must be positive, got %d", c.Server.MaxUploadBytes))
	}
	if c.Server.ListenAddr() == "" {
		errs = append(errs, errors.New("server.addr must not be empty"))
	}
	errs = append(errs,
		oneOf("logging.verbosity", c.Logging.Verbosity, verbosities),
		oneOf("logging.level", c.Logging.Level, levels),
		oneOf("mcp.transport", c.MCP.Transport, transports),
		oneOf("telemetry.exporter", c.Telemetry.Exporter, exporters),
	)

	switch strings.ToLower(c.MCP.Transport) {
	case "stdio":
		if c.MCP.Command == "" {
			errs = append(errs, errors.New("mcp.command is required for the stdio transport"))
		}
	default:
		if c.MCP.URL == "" {
			errs = append(errs, fmt.Errorf("mcp.url is required for the %s transport", c.MCP.Transport))
		}
	}
	return errors.Join(errs...)
}

// RequireCredentials checks the secrets a publishing run needs before any
// network call is made. Test mode makes no model calls, so it needs no
// API key, but it writes directly under a configured page.
func (c *Config) RequireCredentials(testMode bool) error {
	if !testMode && c.LLM.APIKey == "" {
		return &MissingSettingError{Setting: "OPENAI_API_KEY", Key: "llm.api_key"}
	}
	if c.Notion.Token == "" && c.MCP.Transport != "stdio" {
		return &MissingSettingError{Setting: "NOTION_TOKEN", Key: "notion.token"}
	}
	if testMode && c.Notion.PageID == "" {
		return &MissingSettingError{Setting: "NOTION_PAGE_ID", Key: "notion.page_id"}
	}
	return nil
}

func oneOf(key, val string, allowed []string) error {
	lower := strings.ToLower(val)
	for _, a := range allowed {
		if lower == a {
			return nil
		}
	}
	return fmt.Errorf("%s must be one of %s, got %q", key, strings.Join(allowed, ", "), val)
}
