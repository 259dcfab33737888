package gate

import (
	"path"
	"strings"

	"aiddflow/internal/config"
)

// boundaryViolations checks each declared file touch against the workspace
// boundary and returns a description per out-of-bounds path. Deny patterns
// win over allow patterns; an empty allow list admits every path the deny
// list does not reject.
func boundaryViolations(paths []string, b config.BoundaryConfig) []string {
	var violations []string
	for _, raw := range paths {
		p := path.Clean(strings.TrimSpace(raw))
		if p == "" || p == "." {
			continue
		}
		if strings.HasPrefix(p, "/") || p == ".." || strings.HasPrefix(p, "../") {
			violations = append(violations, raw+" escapes the workspace")
			continue
		}
		if pat := matchAny(p, b.Deny); pat != "" {
			violations = append(violations, raw+" matches deny pattern "+pat)
			continue
		}
		if len(b.Allow) > 0 && matchAny(p, b.Allow) == "" {
			violations = append(violations, raw+" outside allowed paths")
		}
	}
	return violations
}

// matchAny returns the first pattern the path matches, or "" when none do.
// A pattern with a trailing slash matches every path under that directory;
// any other pattern is a glob tried against the full path, and against the
// base name when the pattern itself carries no slash.
func matchAny(p string, patterns []string) string {
	for _, pat := range patterns {
		pat = strings.TrimSpace(pat)
		if pat == "" {
			continue
		}
		if strings.HasSuffix(pat, "/") {
			if strings.HasPrefix(p, pat) || p == strings.TrimSuffix(pat, "/") {
				return pat
			}
			continue
		}
		if ok, err := path.Match(pat, p); err == nil && ok {
			return pat
		}
		// A bare pattern such as "*.pem" applies at any depth.
		if !strings.Contains(pat, "/") {
			if ok, err := path.Match(pat, path.Base(p)); err == nil && ok {
				return pat
			}
		}
	}
	return ""
}
