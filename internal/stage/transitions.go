package stage

import "errors"

// Sentinel errors for stage transitions.
var (
	// ErrPipelineComplete is a sentinel error indicating the qa stage passed
	// and the pipeline has reached its terminal state. Callers should treat
	// this as completion rather than a failure.
	ErrPipelineComplete = errors.New("pipeline is complete, no further stage")

	// ErrNoTransition is a sentinel error indicating the (stage, outcome)
	// pair has no entry in the transition table.
	ErrNoTransition = errors.New("no transition defined for stage and outcome")
)

// Outcome classifies how a completed stage run ended for transition purposes.
type Outcome string

const (
	// OutcomePass means the stage completed and the pipeline moves forward.
	OutcomePass Outcome = "pass"

	// OutcomeRework means a verdict demanded rework; the pipeline moves
	// backward to the stage named in the transition table.
	OutcomeRework Outcome = "rework"
)

type transitionKey struct {
	From    Stage
	Outcome Outcome
}

// transitions is the complete stage transition table. Keeping every edge in
// one table (including the review->implement and qa->implement rework cycles)
// makes all cycles enumerable for testing; there is no recursive control flow.
var transitions = map[transitionKey]Stage{
	{Idea, OutcomePass}:          Research,
	{Research, OutcomePass}:      Plan,
	{Plan, OutcomePass}:          ReviewSpec,
	{ReviewSpec, OutcomePass}:    SpecInterview,
	{SpecInterview, OutcomePass}: Tasklist,
	{Tasklist, OutcomePass}:      Implement,
	{Implement, OutcomePass}:     Review,
	{Review, OutcomePass}:        QA,
	{Review, OutcomeRework}:      Implement,
	{QA, OutcomeRework}:          Implement,
}

// Next returns the stage that follows from the given stage and outcome.
//
// Returns [ErrPipelineComplete] when qa passes (terminal state) and
// [ErrNoTransition] for pairs absent from the table, such as rework out of a
// planning stage.
func Next(from Stage, outcome Outcome) (Stage, error) {
	if from == QA && outcome == OutcomePass {
		return "", ErrPipelineComplete
	}
	next, ok := transitions[transitionKey{From: from, Outcome: outcome}]
	if !ok {
		return "", ErrNoTransition
	}
	return next, nil
}

// Transitions returns a copy of every edge in the transition table. The
// dispatch engine uses this for diagnostics; tests use it to enumerate cycles.
func Transitions() map[Stage][]Stage {
	out := make(map[Stage][]Stage)
	for key, to := range transitions {
		out[key.From] = append(out[key.From], to)
	}
	return out
}
