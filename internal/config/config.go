// Package config defines the Config value the core consumes (spec.md §6).
// Parsing is intentionally thin: the full project/orchestrator config split,
// secrets redaction, and smart-defaults machinery the teacher's pkg/config
// carries are out of scope here (spec.md §1 — "the configuration-file
// loader" is an external collaborator). This package only has to produce the
// fields the core actually reads.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// ChatConfig is the chat section of Config: a default channel plus a
// workspace-id -> channel-id routing map (spec.md §6).
type ChatConfig struct {
	ChannelID string            `yaml:"channel_id"`
	Routing   map[string]string `yaml:"routing"`
}

// Timeouts holds the three blocking-handler timeouts spec.md §6 names.
type Timeouts struct {
	ApprovalSeconds int `yaml:"approval_seconds"`
	PromptSeconds   int `yaml:"prompt_seconds"`
	WaitSeconds     int `yaml:"wait_seconds"`
}

func (t Timeouts) Approval() time.Duration { return time.Duration(t.ApprovalSeconds) * time.Second }
func (t Timeouts) Prompt() time.Duration   { return time.Duration(t.PromptSeconds) * time.Second }
func (t Timeouts) Wait() time.Duration     { return time.Duration(t.WaitSeconds) * time.Second }

// StallConfig configures the stall detector (C8).
type StallConfig struct {
	Enabled                 bool `yaml:"enabled"`
	InactivityThresholdSecs int  `yaml:"inactivity_threshold_seconds"`
	EscalationThresholdSecs int  `yaml:"escalation_threshold_seconds"`
	MaxRetries              int  `yaml:"max_retries"`
}

func (s StallConfig) InactivityThreshold() time.Duration {
	return time.Duration(s.InactivityThresholdSecs) * time.Second
}

func (s StallConfig) EscalationThreshold() time.Duration {
	return time.Duration(s.EscalationThresholdSecs) * time.Second
}

// Config is the full set of fields the core consumes (spec.md §6).
//
//nolint:govet // logical field grouping preferred over memory layout
type Config struct {
	DefaultWorkspaceRoot  string            `yaml:"default_workspace_root"`
	HTTPAddr              string            `yaml:"http_addr"`
	IPCSocketPath         string            `yaml:"ipc_socket_path"`
	MaxConcurrentSessions int               `yaml:"max_concurrent_sessions"`
	HostCLI               string            `yaml:"host_cli"`
	HostCLIArgs           []string          `yaml:"host_cli_args"`
	HostCLIPty            bool              `yaml:"host_cli_pty"`
	RetentionDays         int               `yaml:"retention_days"`
	Chat                  ChatConfig        `yaml:"chat"`
	Timeouts              Timeouts          `yaml:"timeouts"`
	Stall                 StallConfig       `yaml:"stall"`
	CommandAllowlist      map[string]string `yaml:"command_allowlist"` // alias -> literal command
	AuthorizedUserIDs     []string          `yaml:"authorized_user_ids"`
	DBPath                string            `yaml:"db_path"`
	AuditLogDir           string            `yaml:"audit_log_dir"`
}

// Load reads and validates a YAML config file (spec.md §6).
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config %s: %w", path, err)
	}

	return cfg, nil
}

// Default returns a Config with sane defaults for local/dev use.
func Default() *Config {
	return &Config{
		HTTPAddr:              ":8765",
		IPCSocketPath:         "/tmp/overseer.sock",
		MaxConcurrentSessions: 4,
		RetentionDays:         30,
		Timeouts: Timeouts{
			ApprovalSeconds: 300,
			PromptSeconds:   120,
			WaitSeconds:     0,
		},
		Stall: StallConfig{
			Enabled:                 true,
			InactivityThresholdSecs: 180,
			EscalationThresholdSecs: 120,
			MaxRetries:              3,
		},
		CommandAllowlist:  map[string]string{},
		AuthorizedUserIDs: []string{},
	}
}

// Validate enforces the load-time checks spec.md §6 names: duplicate or
// empty workspace_id routing entries are rejected.
func (c *Config) Validate() error {
	if c.MaxConcurrentSessions <= 0 {
		return fmt.Errorf("max_concurrent_sessions must be positive")
	}

	seen := make(map[string]bool, len(c.Chat.Routing))
	for workspaceID, channelID := range c.Chat.Routing {
		if workspaceID == "" {
			return fmt.Errorf("chat.routing: empty workspace_id entry")
		}
		if channelID == "" {
			return fmt.Errorf("chat.routing: empty channel_id for workspace_id %q", workspaceID)
		}
		if seen[workspaceID] {
			return fmt.Errorf("chat.routing: duplicate workspace_id %q", workspaceID)
		}
		seen[workspaceID] = true
	}

	return nil
}

// ResolveChannel implements the explicit channel-resolution rule from
// spec.md §6 and §9's Open Questions: an explicit workspaceID, when
// non-empty, wins — and an unknown workspaceID resolves to "" with no
// silent fallback to channelID. Only when workspaceID is empty does the
// raw channelID (or the configured default) apply.
func (c *Config) ResolveChannel(workspaceID, channelID string) (resolved string, ok bool) {
	if workspaceID != "" {
		ch, found := c.Chat.Routing[workspaceID]
		return ch, found
	}
	if channelID != "" {
		return channelID, true
	}
	if c.Chat.ChannelID != "" {
		return c.Chat.ChannelID, true
	}
	return "", false
}

// IsCommandAllowed reports whether alias names a command in the process-wide
// allowlist (FR-011, spec.md §4.3), returning the literal command it maps to.
func (c *Config) IsCommandAllowed(alias string) (string, bool) {
	cmd, ok := c.CommandAllowlist[alias]
	return cmd, ok
}

// IsAuthorizedUser reports whether userID is in the authorized-users list.
func (c *Config) IsAuthorizedUser(userID string) bool {
	for _, id := range c.AuthorizedUserIDs {
		if id == userID {
			return true
		}
	}
	return false
}
