// Package profile resolves the execution profile for one dispatch.
//
// A profile bundles the host-dialect command syntax, the skills search paths,
// the subprocess output limits, and the permission posture for a single
// invocation. Profiles are derived, never persisted: every dispatch resolves
// one fresh from a fixed priority chain and discards it afterwards.
//
// Resolution order (first present signal wins):
//  1. Explicit override parameter
//  2. Dialect signal in the raw command prefix (a "$" leader means codex)
//  3. AIDDFLOW_PROFILE / AIDDFLOW_HOST environment variables
//  4. Skills-directory probing, only when exactly one dialect is installed
//  5. The hard-coded default profile
//
// Resolution never fails; absence of every signal yields [Default].
//
// The profile table is static and data-driven: each dialect is a row keyed
// by its discriminator name, with no runtime type inspection. When both the
// command prefix and the environment name a dialect, the prefix wins; see
// DESIGN.md for the rationale behind that tie-break.
package profile

import (
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Profile is the resolved execution configuration for one dispatch.
type Profile struct {
	// Name is the dialect discriminator (e.g., "kimi", "codex", "cursor").
	Name string

	// CommandLeaders are the prefix characters a host places before a
	// command token (e.g., "/" or "$").
	CommandLeaders []string

	// CommandNamespaces are the namespace tokens a host may prepend, either
	// colon-joined ("aidd:implement") or space-separated ("aidd implement").
	CommandNamespaces []string

	// SkillsDirs are the dialect's default skill-search locations. Entries
	// may start with "~" and are expanded during discovery.
	SkillsDirs []string

	// Timeout bounds one stage subprocess invocation.
	Timeout time.Duration

	// MaxStdoutBytes and MaxStderrBytes cap captured subprocess output.
	// Overflow is spilled to a report file, never inlined.
	MaxStdoutBytes int
	MaxStderrBytes int

	// DiagnosticsBypass allows a run past a BLOCKED gate verdict. The gate
	// evaluator downgrades such runs to WARN; bypass never yields READY.
	DiagnosticsBypass bool
}

// DefaultName is the dialect used when no signal selects one.
const DefaultName = "kimi"

// Environment variables consulted during resolution.
const (
	EnvProfile    = "AIDDFLOW_PROFILE"
	EnvHost       = "AIDDFLOW_HOST"
	EnvSkillsDirs = "AIDDFLOW_SKILLS_DIRS"
	EnvDiagBypass = "AIDDFLOW_DIAG_BYPASS"
)

// profiles is the static dialect table.
var profiles = map[string]Profile{
	"kimi": {
		Name:              "kimi",
		CommandLeaders:    []string{"/"},
		CommandNamespaces: []string{"skill", "flow", "aidd"},
		SkillsDirs:        []string{"~/.config/agents/skills"},
		Timeout:           180 * time.Second,
		MaxStdoutBytes:    50_000,
		MaxStderrBytes:    20_000,
	},
	"codex": {
		Name:              "codex",
		CommandLeaders:    []string{"$", "/"},
		CommandNamespaces: []string{"aidd", "skill", "flow"},
		SkillsDirs:        []string{"~/.codex/skills"},
		Timeout:           180 * time.Second,
		MaxStdoutBytes:    50_000,
		MaxStderrBytes:    20_000,
	},
	"cursor": {
		Name:              "cursor",
		CommandLeaders:    []string{"/"},
		CommandNamespaces: []string{"aidd", "skill", "flow"},
		SkillsDirs:        []string{"~/.cursor/skills"},
		Timeout:           180 * time.Second,
		MaxStdoutBytes:    50_000,
		MaxStderrBytes:    20_000,
	},
}

// Default returns the fallback profile.
func Default() Profile {
	return profiles[DefaultName]
}

// ByName looks up a dialect by its discriminator. Name matching is
// case-insensitive with underscores folded to hyphens.
func ByName(name string) (Profile, bool) {
	p, ok := profiles[normalizeName(name)]
	return p, ok
}

// Names returns the supported dialect names. Order is not guaranteed;
// callers needing stable output should sort.
func Names() []string {
	names := make([]string, 0, len(profiles))
	for name := range profiles {
		names = append(names, name)
	}
	return names
}

// Resolve derives the profile for one dispatch from the priority chain.
//
// The explicit parameter is an operator-supplied dialect name (empty when
// absent). The rawCommand is the unnormalized command string, inspected for
// a dialect leader. Environment and directory probing fill in behind those
// signals, and [Default] backstops everything. Env-level overrides for the
// skills search paths and the diagnostics-bypass posture are applied to
// whichever profile wins.
func Resolve(explicit, rawCommand string) Profile {
	p, ok := ByName(explicit)
	if !ok {
		p, ok = detectFromCommand(rawCommand)
	}
	if !ok {
		p, ok = detectFromEnv()
	}
	if !ok {
		p, ok = detectFromSkillsDirs()
	}
	if !ok {
		p = Default()
	}
	return applyEnvOverrides(p)
}

// detectFromCommand inspects the raw command prefix for a dialect signal.
// Only the "$" leader is distinctive; "/" is shared by every dialect.
func detectFromCommand(rawCommand string) (Profile, bool) {
	text := strings.TrimLeft(rawCommand, " \t")
	if strings.HasPrefix(text, "$") {
		return profiles["codex"], true
	}
	return Profile{}, false
}

func detectFromEnv() (Profile, bool) {
	if p, ok := ByName(os.Getenv(EnvProfile)); ok {
		return p, true
	}
	if p, ok := ByName(os.Getenv(EnvHost)); ok {
		return p, true
	}
	return Profile{}, false
}

// detectFromSkillsDirs probes each dialect's default skill locations and
// selects a dialect only when exactly one has an installation. Ambiguity
// falls through to the default.
func detectFromSkillsDirs() (Profile, bool) {
	var detected []Profile
	for _, name := range []string{"kimi", "codex", "cursor"} {
		p := profiles[name]
		for _, dir := range expandDirs(p.SkillsDirs) {
			if dirExists(dir) {
				detected = append(detected, p)
				break
			}
		}
	}
	if len(detected) == 1 {
		return detected[0], true
	}
	return Profile{}, false
}

func applyEnvOverrides(p Profile) Profile {
	if raw := os.Getenv(EnvSkillsDirs); strings.TrimSpace(raw) != "" {
		p.SkillsDirs = ParseSkillsDirs(raw)
	}
	if isTruthy(os.Getenv(EnvDiagBypass)) {
		p.DiagnosticsBypass = true
	}
	return p
}

// SkillsSearchPaths returns the resolved, deduplicated skill-search paths
// for the profile, expanded and filtered to directories that exist. When
// none exist the unfiltered expansion is returned so callers can report
// where installation was expected.
func SkillsSearchPaths(p Profile) []string {
	expanded := expandDirs(p.SkillsDirs)
	existing := make([]string, 0, len(expanded))
	for _, dir := range expanded {
		if dirExists(dir) {
			existing = append(existing, dir)
		}
	}
	if len(existing) > 0 {
		return existing
	}
	return expanded
}

// ParseSkillsDirs splits an ordered search-path override on the platform
// list separator, expanding "~" and dropping empty or duplicate entries.
func ParseSkillsDirs(raw string) []string {
	parts := strings.Split(raw, string(os.PathListSeparator))
	seen := make(map[string]bool, len(parts))
	var dirs []string
	for _, part := range parts {
		dir := expandHome(strings.TrimSpace(part))
		if dir == "" || seen[dir] {
			continue
		}
		seen[dir] = true
		dirs = append(dirs, dir)
	}
	return dirs
}

// StripHostPrefix removes the dialect's command leader and namespace token
// from a raw command string, returning the bare command token and any
// trailing text.
func StripHostPrefix(rawCommand string, p Profile) string {
	text := strings.TrimSpace(rawCommand)
	if text == "" {
		return ""
	}
	for _, leader := range p.CommandLeaders {
		if strings.HasPrefix(text, leader) {
			text = strings.TrimSpace(strings.TrimPrefix(text, leader))
			break
		}
	}
	if prefix, rest, ok := strings.Cut(text, ":"); ok {
		if isNamespace(prefix, p) {
			return strings.TrimSpace(rest)
		}
	}
	fields := strings.SplitN(text, " ", 2)
	if len(fields) == 2 && isNamespace(fields[0], p) {
		return strings.TrimSpace(fields[1])
	}
	return text
}

func isNamespace(token string, p Profile) bool {
	normalized := normalizeName(token)
	for _, ns := range p.CommandNamespaces {
		if normalized == ns {
			return true
		}
	}
	return false
}

func normalizeName(value string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimSpace(value)), "_", "-")
}

func expandDirs(dirs []string) []string {
	out := make([]string, 0, len(dirs))
	seen := make(map[string]bool, len(dirs))
	for _, dir := range dirs {
		expanded := expandHome(dir)
		if expanded == "" || seen[expanded] {
			continue
		}
		seen[expanded] = true
		out = append(out, expanded)
	}
	return out
}

func expandHome(path string) string {
	if path == "~" || strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, strings.TrimPrefix(path, "~"))
	}
	return path
}

func dirExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}

func isTruthy(value string) bool {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "true", "yes", "on":
		return true
	}
	return false
}
