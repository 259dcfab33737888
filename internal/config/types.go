// Package config provides configuration loading and management for aiddflow.
//
// Configuration is loaded using Viper, supporting YAML config files and
// environment variable overrides. The defaults work out of the box for a
// workspace laid out the standard way (docs/, reports/, a per-workspace
// ledger database), with knobs for the diff-boundary lists, gate tuning,
// and stage operation commands.
//
// Key types:
//   - [Config] is the root configuration container with all settings
//   - [Loader] handles Viper-based configuration loading
//   - [OperationConfig] defines how one stage's external operation is run
//
// Configuration priority (highest to lowest):
//  1. Environment variables (AIDDFLOW_ prefix)
//  2. Config file specified by AIDDFLOW_CONFIG_PATH
//  3. ./aiddflow.yaml in the workspace
//  4. [DefaultConfig] defaults
package config

// Config represents the root configuration structure.
type Config struct {
	// Workspace holds filesystem layout settings.
	Workspace WorkspaceConfig `mapstructure:"workspace"`

	// Operations maps canonical stage names to their external operation.
	Operations map[string]OperationConfig `mapstructure:"operations"`

	// Boundary holds the diff-boundary allow/deny path lists consulted by
	// the implement/review/qa gates.
	Boundary BoundaryConfig `mapstructure:"boundary"`

	// Gates holds readiness-gate tuning.
	Gates GatesConfig `mapstructure:"gates"`

	// Output holds terminal output formatting settings.
	Output OutputConfig `mapstructure:"output"`
}

// WorkspaceConfig holds the filesystem layout of one workspace.
type WorkspaceConfig struct {
	// Root is the workspace root directory. Empty means the current
	// working directory.
	Root string `mapstructure:"root"`

	// DocsDir is the artifact directory relative to Root. The active-state
	// record lives at <DocsDir>/.active.json.
	DocsDir string `mapstructure:"docs_dir"`

	// ReportsDir receives spilled subprocess output and diagnostic
	// references, relative to Root.
	ReportsDir string `mapstructure:"reports_dir"`

	// LedgerPath is the action-ledger database path relative to Root.
	LedgerPath string `mapstructure:"ledger_path"`
}

// OperationConfig describes the external operation executed for a stage.
//
// The operation is a subprocess; the invoker appends the ticket as the final
// argument. Operations propose artifact mutations by writing a JSON action
// file to the path named in their environment and never mutate artifacts
// themselves.
type OperationConfig struct {
	// Command is the argv to execute. The first element is the binary.
	Command []string `mapstructure:"command"`

	// TimeoutSec overrides the profile's subprocess timeout when > 0.
	TimeoutSec int `mapstructure:"timeout_sec"`
}

// BoundaryConfig declares which file paths a loop-stage work item may touch.
//
// Patterns use path.Match syntax with a trailing "/" matching any path under
// the directory. Deny wins over allow. An empty allow list permits any path
// not denied.
type BoundaryConfig struct {
	Allow []string `mapstructure:"allow"`
	Deny  []string `mapstructure:"deny"`
}

// GatesConfig holds readiness-gate tuning.
type GatesConfig struct {
	// ResearchMaxAgeDays marks research older than this as stale (WARN).
	// Zero disables the age check.
	ResearchMaxAgeDays int `mapstructure:"research_max_age_days"`

	// RequireSpecInterview makes the tasklist gate insist on a completed
	// spec interview rather than warning about its absence.
	RequireSpecInterview bool `mapstructure:"require_spec_interview"`
}

// OutputConfig contains terminal output formatting configuration.
type OutputConfig struct {
	// TruncateLines is the maximum number of captured-output lines shown
	// inline in a dispatch summary. Additional lines stay in the report file.
	TruncateLines int `mapstructure:"truncate_lines"`

	// TruncateLength is the maximum length of each displayed line.
	TruncateLength int `mapstructure:"truncate_length"`
}

// DefaultConfig returns a new [Config] with sensible defaults.
//
// The defaults assume stage operations are installed as "aidd-<stage>"
// binaries on PATH and a workspace rooted at the current directory.
func DefaultConfig() *Config {
	operations := make(map[string]OperationConfig)
	for _, name := range []string{
		"idea", "research", "plan", "review-spec",
		"spec-interview", "tasklist", "implement", "review", "qa",
	} {
		operations[name] = OperationConfig{
			Command: []string{"aidd-" + name},
		}
	}
	return &Config{
		Workspace: WorkspaceConfig{
			DocsDir:    "docs",
			ReportsDir: "reports",
			LedgerPath: "reports/ledger.db",
		},
		Operations: operations,
		Boundary: BoundaryConfig{
			Deny: []string{".git/", "docs/.active.json", "reports/ledger.db"},
		},
		Gates: GatesConfig{
			ResearchMaxAgeDays: 30,
		},
		Output: OutputConfig{
			TruncateLines:  20,
			TruncateLength: 120,
		},
	}
}

// Operation returns the configured operation for a canonical stage name.
// The boolean is false when the stage has no operation configured.
func (c *Config) Operation(name string) (OperationConfig, bool) {
	op, ok := c.Operations[name]
	if !ok || len(op.Command) == 0 {
		return OperationConfig{}, false
	}
	return op, true
}
