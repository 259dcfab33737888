// Package engine coordinates one dispatch from raw command to updated
// workspace state.
//
// A dispatch runs normalize, dialect resolution, gate evaluation, stage
// invocation, and the apply batch to completion before returning; the only
// long-blocking step is the bounded subprocess inside the invoker. At most
// one dispatch may mutate a workspace at a time, enforced through the active
// state store's advisory lock.
package engine

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	"aiddflow/internal/artifact"
	"aiddflow/internal/config"
	"aiddflow/internal/dispatch"
	"aiddflow/internal/gate"
	"aiddflow/internal/invoke"
	"aiddflow/internal/ledger"
	"aiddflow/internal/profile"
	"aiddflow/internal/stage"
	"aiddflow/internal/state"
)

// Sentinel errors.
var (
	// ErrNoTicket indicates neither the command nor the active state names
	// a ticket to work on.
	ErrNoTicket = errors.New("no ticket given and no active ticket")

	// ErrGateBlocked indicates the readiness gate refused the stage.
	ErrGateBlocked = errors.New("stage blocked by readiness gate")
)

// StageInvoker runs the external operation for a stage.
type StageInvoker interface {
	Invoke(ctx context.Context, st stage.Stage, ticket string, p profile.Profile, verdict gate.Verdict) (*invoke.Result, error)
}

// ActionApplier applies one invocation's action records.
type ActionApplier interface {
	Apply(ctx context.Context, ticket, scope, invocationID string, records []ledger.ActionRecord) (*ledger.ApplyResult, error)
}

// Result reports everything one dispatch did.
type Result struct {
	Target     dispatch.Target
	Profile    profile.Profile
	Verdict    gate.Verdict
	Invocation *invoke.Result
	Apply      *ledger.ApplyResult
	State      *state.ActiveState

	// NextStage is the forward transition after this stage passes; empty
	// when the pipeline is complete.
	NextStage    stage.Stage
	PipelineDone bool
}

// Dispatcher owns the component chain for one workspace.
type Dispatcher struct {
	cfg    *config.Config
	docs   *artifact.Store
	states *state.Store
	gates  *gate.Evaluator
	ledger *ledger.Store

	// Invoker and Applier are replaceable for testing.
	Invoker StageInvoker
	Applier ActionApplier
}

// New builds a [Dispatcher] for the configured workspace, opening the action
// ledger database.
func New(cfg *config.Config) (*Dispatcher, error) {
	docsDir := filepath.Join(cfg.Workspace.Root, cfg.Workspace.DocsDir)
	docs := artifact.NewStore(docsDir)

	ledgerStore, err := ledger.Open(filepath.Join(cfg.Workspace.Root, cfg.Workspace.LedgerPath))
	if err != nil {
		return nil, err
	}

	return &Dispatcher{
		cfg:     cfg,
		docs:    docs,
		states:  state.NewStore(docsDir),
		gates:   gate.New(docs, cfg),
		ledger:  ledgerStore,
		Invoker: invoke.New(cfg),
		Applier: ledger.NewApplier(ledgerStore, docs),
	}, nil
}

// Close releases the ledger database.
func (d *Dispatcher) Close() error {
	return d.ledger.Close()
}

// Dispatch runs the full chain for one raw command. The gate may
// short-circuit with [ErrGateBlocked] before the invoker is called; a
// concurrent dispatch for the workspace fails fast with [state.ErrBusy].
// The active stage pointer moves only after a successful apply.
func (d *Dispatcher) Dispatch(ctx context.Context, rawCommand string, args []string, explicitProfile string) (*Result, error) {
	p := profile.Resolve(explicitProfile, rawCommand)

	target, err := dispatch.Normalize(rawCommand, args, p)
	if err != nil {
		return nil, err
	}

	result := &Result{Target: target, Profile: p}

	ticket := target.Ticket
	if ticket == "" {
		active, err := d.states.Get()
		if err != nil {
			return result, err
		}
		if active == nil {
			return result, ErrNoTicket
		}
		ticket = active.Ticket
		result.Target.Ticket = ticket
	}

	result.Verdict = d.gates.EvaluateWithBypass(target.Stage, ticket, p.DiagnosticsBypass)
	if result.Verdict.Blocked() {
		return result, fmt.Errorf("%w: %s", ErrGateBlocked, target.Stage)
	}

	release, err := d.states.Lock()
	if err != nil {
		return result, err
	}
	defer release()

	invocation, err := d.Invoker.Invoke(ctx, target.Stage, ticket, p, result.Verdict)
	result.Invocation = invocation
	if err != nil {
		return result, err
	}

	applied, err := d.Applier.Apply(ctx, ticket, string(target.Stage), invocation.InvocationID, invocation.Actions)
	result.Apply = applied
	if err != nil {
		return result, err
	}

	active, err := d.states.Set(ticket, target.Stage)
	if err != nil {
		return result, err
	}
	result.State = active

	next, err := stage.Next(target.Stage, stage.OutcomePass)
	switch {
	case errors.Is(err, stage.ErrPipelineComplete):
		result.PipelineDone = true
	case err == nil:
		result.NextStage = next
	}
	return result, nil
}

// Gate evaluates the readiness predicate without invoking anything. The
// bypass downgrade is applied when the resolved dialect allows it.
func (d *Dispatcher) Gate(st stage.Stage, ticket string, explicitProfile string) (gate.Verdict, error) {
	if ticket == "" {
		active, err := d.states.Get()
		if err != nil {
			return gate.Verdict{}, err
		}
		if active == nil {
			return gate.Verdict{}, ErrNoTicket
		}
		ticket = active.Ticket
	}
	p := profile.Resolve(explicitProfile, "")
	return d.gates.EvaluateWithBypass(st, ticket, p.DiagnosticsBypass), nil
}

// Active returns the workspace's active state, nil when none exists.
func (d *Dispatcher) Active() (*state.ActiveState, error) {
	return d.states.Get()
}

// SetActive moves the active stage pointer directly, outside a dispatch.
func (d *Dispatcher) SetActive(ticket string, st stage.Stage) error {
	release, err := d.states.Lock()
	if err != nil {
		return err
	}
	defer release()
	_, err = d.states.Set(ticket, st)
	return err
}

// Apply runs an actions batch against a ticket's documents outside a
// dispatch, under the same workspace lock and idempotency rules. The scope
// names the stage or tool the batch belongs to; the invocation ID ties the
// resulting ledger entries together.
func (d *Dispatcher) Apply(ctx context.Context, ticket, scope, invocationID string, records []ledger.ActionRecord) (*ledger.ApplyResult, error) {
	release, err := d.states.Lock()
	if err != nil {
		return nil, err
	}
	defer release()
	return d.Applier.Apply(ctx, ticket, scope, invocationID, records)
}

// Ledger returns a ticket's audit trail in application order.
func (d *Dispatcher) Ledger(ctx context.Context, ticket string) ([]ledger.Entry, error) {
	return d.ledger.Entries(ctx, ticket)
}

// Artifacts reports which documents exist for a ticket.
func (d *Dispatcher) Artifacts(ticket string) map[artifact.Kind]bool {
	kinds := []artifact.Kind{
		artifact.KindPRD, artifact.KindResearch, artifact.KindPlan,
		artifact.KindInterview, artifact.KindTasklist,
	}
	present := make(map[artifact.Kind]bool, len(kinds))
	for _, k := range kinds {
		present[k] = d.docs.Exists(ticket, k)
	}
	return present
}
