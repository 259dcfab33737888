// Package gate evaluates the readiness preconditions a ticket must satisfy
// before a stage operation is allowed to run.
//
// Every stage has one predicate defined purely over the ticket's current
// artifact set. For a fixed set of documents on disk (and a fixed clock),
// [Evaluator.Evaluate] always returns the same [Verdict], so any verdict can
// be replayed exactly by re-running it against the same snapshot. Verdicts
// are never cached across artifact mutation.
//
// A diagnostics bypass may downgrade a BLOCKED verdict to WARN so operators
// can force a run while investigating, but never to READY, and never past a
// workspace boundary violation.
package gate

import (
	"fmt"
	"strings"
	"time"

	"aiddflow/internal/artifact"
	"aiddflow/internal/config"
	"aiddflow/internal/stage"
)

// Status is the outcome class of a gate check.
type Status string

const (
	// StatusReady means all required preconditions hold.
	StatusReady Status = "READY"
	// StatusWarn means the stage may run but optional evidence is missing,
	// or a block was overridden by the diagnostics bypass.
	StatusWarn Status = "WARN"
	// StatusBlocked means required preconditions are missing and the stage
	// must not run.
	StatusBlocked Status = "BLOCKED"
)

// Reason codes attached to non-READY verdicts.
const (
	ReasonPRDMissing           = "prd_missing"
	ReasonPRDDraft             = "prd_draft"
	ReasonResearchNotReady     = "research_not_ready"
	ReasonResearchStale        = "research_stale"
	ReasonResearchEvidenceThin = "research_evidence_thin"
	ReasonPlanMissing          = "plan_missing"
	ReasonPlanDraft            = "plan_draft"
	ReasonPlanUnapproved       = "plan_unapproved"
	ReasonInterviewMissing     = "spec_interview_missing"
	ReasonTasklistMissing      = "tasklist_missing"
	ReasonTasklistInvalid      = "tasklist_invalid"
	ReasonTasksIncomplete      = "tasks_incomplete"
	ReasonBoundaryViolation    = "diff_boundary_violation"
	ReasonDiagnosticsBypass    = "diagnostics_bypass_engaged"
)

// Verdict is the result of evaluating a stage's readiness predicate.
type Verdict struct {
	Stage        stage.Stage `json:"stage"`
	Ticket       string      `json:"ticket"`
	Status       Status      `json:"status"`
	Reasons      []string    `json:"reasons,omitempty"`
	EvidenceRefs []string    `json:"evidence_refs,omitempty"`
}

// Blocked reports whether the verdict forbids running the stage.
func (v Verdict) Blocked() bool {
	return v.Status == StatusBlocked
}

// HasReason reports whether the given reason code is attached. Reasons may
// carry a detail suffix after the code ("code: detail"); matching is on the
// code alone.
func (v Verdict) HasReason(code string) bool {
	for _, r := range v.Reasons {
		if r == code || strings.HasPrefix(r, code+":") {
			return true
		}
	}
	return false
}

// Evaluator computes gate verdicts from a ticket's artifact set.
type Evaluator struct {
	docs     *artifact.Store
	gates    config.GatesConfig
	boundary config.BoundaryConfig

	// Now is consulted only for research-staleness checks. Tests may
	// replace it.
	Now func() time.Time
}

// New creates an [Evaluator] reading from the given artifact store.
func New(docs *artifact.Store, cfg *config.Config) *Evaluator {
	return &Evaluator{
		docs:     docs,
		gates:    cfg.Gates,
		boundary: cfg.Boundary,
		Now:      time.Now,
	}
}

// Evaluate runs the readiness predicate for the given stage and ticket.
// It reads artifact content only; it never mutates anything.
func (e *Evaluator) Evaluate(st stage.Stage, ticket string) Verdict {
	v := Verdict{Stage: st, Ticket: ticket, Status: StatusReady}

	switch st {
	case stage.Idea, stage.Status:
		// Entry and read-only stages have no preconditions.
	case stage.Research:
		e.checkResearchEntry(&v)
	case stage.Plan:
		e.checkResearchReady(&v)
	case stage.ReviewSpec, stage.ReviewPlan, stage.ReviewPRD:
		e.checkPlanExists(&v)
	case stage.SpecInterview:
		e.checkPlanApproved(&v)
	case stage.Tasklist:
		e.checkInterview(&v)
	case stage.Implement, stage.Review, stage.QA:
		e.checkWorkItem(&v, st)
	}
	return v
}

// EvaluateWithBypass evaluates the stage predicate and, when bypass is set,
// downgrades a BLOCKED verdict to WARN with [ReasonDiagnosticsBypass]
// recorded. A boundary violation is never downgraded.
func (e *Evaluator) EvaluateWithBypass(st stage.Stage, ticket string, bypass bool) Verdict {
	v := e.Evaluate(st, ticket)
	if !bypass || v.Status != StatusBlocked {
		return v
	}
	if v.HasReason(ReasonBoundaryViolation) {
		return v
	}
	v.Status = StatusWarn
	v.Reasons = append(v.Reasons, ReasonDiagnosticsBypass)
	return v
}

// checkResearchEntry gates research on the PRD produced by the idea stage.
func (e *Evaluator) checkResearchEntry(v *Verdict) {
	prd, err := e.docs.Load(v.Ticket, artifact.KindPRD)
	if err != nil {
		v.Status = StatusBlocked
		v.Reasons = append(v.Reasons, ReasonPRDMissing)
		return
	}
	v.EvidenceRefs = append(v.EvidenceRefs, prd.Path)
	if prd.Meta.Status == artifact.StatusDraft {
		v.Status = StatusWarn
		v.Reasons = append(v.Reasons, ReasonPRDDraft)
	}
}

// checkResearchReady gates plan on a ready research document with filled
// findings. Stale or evidence-thin research warns but does not block.
func (e *Evaluator) checkResearchReady(v *Verdict) {
	research, err := e.docs.Load(v.Ticket, artifact.KindResearch)
	if err != nil {
		v.Status = StatusBlocked
		v.Reasons = append(v.Reasons, ReasonResearchNotReady)
		return
	}
	v.EvidenceRefs = append(v.EvidenceRefs, research.Path)

	ready := research.Meta.Status == artifact.StatusReady || research.Meta.Status == artifact.StatusApproved
	if !ready || !research.SectionFilled("Findings") {
		v.Status = StatusBlocked
		v.Reasons = append(v.Reasons, ReasonResearchNotReady)
		return
	}
	if e.researchStale(research) {
		v.Status = StatusWarn
		v.Reasons = append(v.Reasons, ReasonResearchStale)
	}
	if !research.SectionFilled("Evidence") {
		v.Status = StatusWarn
		v.Reasons = append(v.Reasons, ReasonResearchEvidenceThin)
	}
}

func (e *Evaluator) researchStale(research *artifact.Document) bool {
	if e.gates.ResearchMaxAgeDays <= 0 || research.Meta.UpdatedAt == "" {
		return false
	}
	updated, err := time.Parse(time.RFC3339, research.Meta.UpdatedAt)
	if err != nil {
		return false
	}
	maxAge := time.Duration(e.gates.ResearchMaxAgeDays) * 24 * time.Hour
	return e.Now().Sub(updated) > maxAge
}

func (e *Evaluator) checkPlanExists(v *Verdict) {
	plan, err := e.docs.Load(v.Ticket, artifact.KindPlan)
	if err != nil {
		v.Status = StatusBlocked
		v.Reasons = append(v.Reasons, ReasonPlanMissing)
		return
	}
	v.EvidenceRefs = append(v.EvidenceRefs, plan.Path)
	if plan.Meta.Status == artifact.StatusDraft {
		v.Status = StatusWarn
		v.Reasons = append(v.Reasons, ReasonPlanDraft)
	}
}

func (e *Evaluator) checkPlanApproved(v *Verdict) {
	plan, err := e.docs.Load(v.Ticket, artifact.KindPlan)
	if err != nil {
		v.Status = StatusBlocked
		v.Reasons = append(v.Reasons, ReasonPlanMissing)
		return
	}
	v.EvidenceRefs = append(v.EvidenceRefs, plan.Path)
	if plan.Meta.Status != artifact.StatusApproved {
		v.Status = StatusWarn
		v.Reasons = append(v.Reasons, ReasonPlanUnapproved)
	}
}

// checkInterview gates tasklist on the spec interview transcript. Absence
// blocks only when the workspace requires interviews.
func (e *Evaluator) checkInterview(v *Verdict) {
	interview, err := e.docs.Load(v.Ticket, artifact.KindInterview)
	if err != nil {
		if e.gates.RequireSpecInterview {
			v.Status = StatusBlocked
		} else {
			v.Status = StatusWarn
		}
		v.Reasons = append(v.Reasons, ReasonInterviewMissing)
		return
	}
	v.EvidenceRefs = append(v.EvidenceRefs, interview.Path)
}

// checkWorkItem gates implement, review, and qa on a structurally valid
// tasklist and an in-bounds set of declared file touches.
func (e *Evaluator) checkWorkItem(v *Verdict, st stage.Stage) {
	tasklist, err := e.docs.Load(v.Ticket, artifact.KindTasklist)
	if err != nil {
		v.Status = StatusBlocked
		v.Reasons = append(v.Reasons, ReasonTasklistMissing)
		return
	}
	v.EvidenceRefs = append(v.EvidenceRefs, tasklist.Path)

	if problems := tasklist.ValidateTasklist(); len(problems) > 0 {
		v.Status = StatusBlocked
		for _, p := range problems {
			v.Reasons = append(v.Reasons, fmt.Sprintf("%s: %s", ReasonTasklistInvalid, p))
		}
		return
	}

	for _, violation := range boundaryViolations(tasklist.TouchedFiles(), e.boundary) {
		v.Status = StatusBlocked
		v.Reasons = append(v.Reasons, fmt.Sprintf("%s: %s", ReasonBoundaryViolation, violation))
	}
	if v.Status == StatusBlocked {
		return
	}

	// Review and qa expect implementation progress on the checklist.
	if st == stage.Review || st == stage.QA {
		items := tasklist.TaskItems()
		done := 0
		for _, it := range items {
			if it.Done {
				done++
			}
		}
		if done == 0 || (st == stage.QA && done < len(items)) {
			v.Status = StatusWarn
			v.Reasons = append(v.Reasons, ReasonTasksIncomplete)
		}
	}
}
