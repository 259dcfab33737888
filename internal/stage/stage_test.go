package stage

import (
	"errors"
	"testing"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"already canonical", "idea", "idea"},
		{"uppercase", "IDEA", "idea"},
		{"underscores", "review_spec", "review-spec"},
		{"mixed separators", "spec _ interview", "spec-interview"},
		{"collapses runs", "qa--flow", "qa-flow"},
		{"trims hyphens", "-implement-", "implement"},
		{"whitespace only", "   ", ""},
		{"empty", "", ""},
		{"tabs and newlines", "review\tplan\n", "review-plan"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Normalize(tt.input); got != tt.want {
				t.Errorf("Normalize(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestResolve_LegacyAliases(t *testing.T) {
	tests := []struct {
		alias string
		want  Stage
	}{
		{"idea-flow", Idea},
		{"idea-new", Idea},
		{"research-flow", Research},
		{"researcher", Research},
		{"plan-flow", Plan},
		{"plan-new", Plan},
		{"tasks-new", Tasklist},
		{"implement-flow", Implement},
		{"review-flow", Review},
		{"qa-flow", QA},
	}

	for _, tt := range tests {
		t.Run(tt.alias, func(t *testing.T) {
			got := Resolve(tt.alias)
			if got != tt.want {
				t.Errorf("Resolve(%q) = %q, want %q", tt.alias, got, tt.want)
			}
			// Alias resolution must agree with resolving the canonical name.
			if got != Resolve(string(tt.want)) {
				t.Errorf("Resolve(%q) != Resolve(%q)", tt.alias, tt.want)
			}
		})
	}
}

func TestResolve_Idempotent(t *testing.T) {
	for _, s := range PublicStages {
		if got := Resolve(string(s)); got != s {
			t.Errorf("Resolve(%q) = %q, want unchanged", s, got)
		}
		// Resolving the result of a resolve must be a fixed point.
		if Resolve(string(Resolve(string(s)))) != s {
			t.Errorf("Resolve not idempotent for %q", s)
		}
	}
}

func TestIsKnown(t *testing.T) {
	tests := []struct {
		input string
		want  bool
	}{
		{"idea", true},
		{"review-plan", true},
		{"review_prd", true},
		{"idea-flow", true},
		{"deploy", false},
		{"", false},
	}

	for _, tt := range tests {
		if got := IsKnown(tt.input); got != tt.want {
			t.Errorf("IsKnown(%q) = %v, want %v", tt.input, got, tt.want)
		}
	}
}

func TestStageClassification(t *testing.T) {
	if !Implement.IsLoop() || !Review.IsLoop() || !QA.IsLoop() {
		t.Error("implement/review/qa should be loop stages")
	}
	if Idea.IsLoop() {
		t.Error("idea should not be a loop stage")
	}
	if !Plan.IsPlanning() || !ReviewPRD.IsPlanning() {
		t.Error("plan and review-prd should be planning stages")
	}
	if Stage("deploy").IsPlanning() {
		t.Error("unknown stage should not classify as planning")
	}
	if Status.IsLoop() || Status.IsPlanning() {
		t.Error("status is read-only and belongs to neither phase")
	}
}

func TestNext_ForwardOrder(t *testing.T) {
	want := []Stage{Research, Plan, ReviewSpec, SpecInterview, Tasklist, Implement, Review, QA}
	from := Idea
	for _, next := range want {
		got, err := Next(from, OutcomePass)
		if err != nil {
			t.Fatalf("Next(%q, pass) err = %v", from, err)
		}
		if got != next {
			t.Fatalf("Next(%q, pass) = %q, want %q", from, got, next)
		}
		from = got
	}
}

func TestNext_Terminal(t *testing.T) {
	_, err := Next(QA, OutcomePass)
	if !errors.Is(err, ErrPipelineComplete) {
		t.Errorf("Next(qa, pass) err = %v, want ErrPipelineComplete", err)
	}
}

func TestNext_ReworkCycles(t *testing.T) {
	tests := []struct {
		from Stage
		want Stage
	}{
		{Review, Implement},
		{QA, Implement},
	}
	for _, tt := range tests {
		got, err := Next(tt.from, OutcomeRework)
		if err != nil {
			t.Fatalf("Next(%q, rework) err = %v", tt.from, err)
		}
		if got != tt.want {
			t.Errorf("Next(%q, rework) = %q, want %q", tt.from, got, tt.want)
		}
	}
}

func TestNext_UndefinedTransition(t *testing.T) {
	_, err := Next(Idea, OutcomeRework)
	if !errors.Is(err, ErrNoTransition) {
		t.Errorf("Next(idea, rework) err = %v, want ErrNoTransition", err)
	}
}

func TestSupported_IncludesAliases(t *testing.T) {
	withAliases := Supported(true)
	without := Supported(false)
	if len(withAliases) <= len(without) {
		t.Error("Supported(true) should append alias tokens")
	}
	found := false
	for _, v := range withAliases {
		if v == "idea-flow" {
			found = true
		}
	}
	if !found {
		t.Error("Supported(true) should include idea-flow")
	}
}
