// Package stage defines the pipeline stage lexicon for aiddflow.
//
// A stage is a named phase in the delivery pipeline (idea through qa). The
// package owns the canonical stage set, the legacy command-alias table, the
// normalization rules applied to raw stage tokens, and the stage transition
// table used by the dispatch engine.
//
// Key types:
//   - [Stage] - A canonical stage identifier
//   - [Outcome] - The result class of a completed stage run (pass or rework)
//
// Stage tokens arrive in many spellings (underscores, mixed case, legacy
// "-flow" command names). [Resolve] folds all of them to a canonical [Stage].
package stage

import (
	"sort"
	"strings"
)

// Stage is a canonical stage identifier in the delivery pipeline.
type Stage string

// Public stages, in canonical forward order.
const (
	Idea          Stage = "idea"
	Research      Stage = "research"
	Plan          Stage = "plan"
	ReviewSpec    Stage = "review-spec"
	SpecInterview Stage = "spec-interview"
	Tasklist      Stage = "tasklist"
	Implement     Stage = "implement"
	Review        Stage = "review"
	QA            Stage = "qa"
	Status        Stage = "status"
)

// Internal stages, composed under the review-spec umbrella. They are valid
// targets for state updates but are never dispatched directly.
const (
	ReviewPlan Stage = "review-plan"
	ReviewPRD  Stage = "review-prd"
)

// PublicStages lists the dispatchable stages in canonical forward order.
var PublicStages = []Stage{
	Idea,
	Research,
	Plan,
	ReviewSpec,
	SpecInterview,
	Tasklist,
	Implement,
	Review,
	QA,
	Status,
}

// InternalStages lists stages that exist only as active-state values.
var InternalStages = []Stage{ReviewPlan, ReviewPRD}

// aliases maps legacy command tokens to their canonical stage. The table is
// static: host installers shipped these names for several releases and old
// palettes still emit them.
var aliases = map[string]Stage{
	"idea-flow":      Idea,
	"idea-new":       Idea,
	"research-flow":  Research,
	"researcher":     Research,
	"plan-flow":      Plan,
	"plan-new":       Plan,
	"tasks-new":      Tasklist,
	"implement-flow": Implement,
	"review-flow":    Review,
	"qa-flow":        QA,
}

// canonical is the set of all valid stage values.
var canonical = func() map[Stage]bool {
	m := make(map[Stage]bool, len(PublicStages)+len(InternalStages))
	for _, s := range PublicStages {
		m[s] = true
	}
	for _, s := range InternalStages {
		m[s] = true
	}
	return m
}()

// loopStages are the stages that participate in the implement/review/qa loop.
var loopStages = map[Stage]bool{
	Implement: true,
	Review:    true,
	QA:        true,
}

// Normalize folds a raw stage token to its comparable form: lowercase, with
// any run of whitespace or underscores collapsed to a single hyphen and
// leading/trailing hyphens trimmed.
func Normalize(value string) string {
	raw := strings.ToLower(strings.TrimSpace(value))
	if raw == "" {
		return ""
	}
	var b strings.Builder
	b.Grow(len(raw))
	pendingSep := false
	for _, r := range raw {
		switch {
		case r == '_' || r == ' ' || r == '\t' || r == '\n' || r == '\r' || r == '-':
			pendingSep = b.Len() > 0
		default:
			if pendingSep {
				b.WriteByte('-')
				pendingSep = false
			}
			b.WriteRune(r)
		}
	}
	return b.String()
}

// Resolve normalizes a raw token and maps legacy aliases to their canonical
// stage. The result is not guaranteed to be a known stage; check with
// [IsKnown]. Resolve is idempotent: resolving an already-canonical value
// returns it unchanged.
func Resolve(value string) Stage {
	normalized := Normalize(value)
	if normalized == "" {
		return ""
	}
	if s, ok := aliases[normalized]; ok {
		return s
	}
	return Stage(normalized)
}

// IsKnown reports whether the value resolves to a canonical stage.
func IsKnown(value string) bool {
	return canonical[Resolve(value)]
}

// IsValid reports whether s is a canonical stage value as-is, without
// normalization or alias resolution.
func (s Stage) IsValid() bool {
	return canonical[s]
}

// IsLoop reports whether s belongs to the implement/review/qa loop.
func (s Stage) IsLoop() bool {
	return loopStages[s]
}

// IsPlanning reports whether s is a planning-phase stage: everything before
// the loop, excluding the read-only status stage.
func (s Stage) IsPlanning() bool {
	return s.IsValid() && !loopStages[s] && s != Status
}

// Supported returns the accepted stage tokens, canonical values first and
// aliases appended when includeAliases is set. Used for usage messages.
func Supported(includeAliases bool) []string {
	values := make([]string, 0, len(canonical)+len(aliases))
	for _, s := range PublicStages {
		values = append(values, string(s))
	}
	for _, s := range InternalStages {
		values = append(values, string(s))
	}
	if includeAliases {
		names := make([]string, 0, len(aliases))
		for a := range aliases {
			names = append(names, a)
		}
		sort.Strings(names)
		values = append(values, names...)
	}
	return values
}
