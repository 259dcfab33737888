package invoke

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"aiddflow/internal/config"
	"aiddflow/internal/gate"
	"aiddflow/internal/ledger"
	"aiddflow/internal/profile"
	"aiddflow/internal/stage"
)

// EnvActionsFile hands the operation the path where it may write its
// proposed action records as a JSON array.
const EnvActionsFile = "AIDDFLOW_ACTIONS_FILE"

// EnvTicket and EnvStage identify the work item to the operation.
const (
	EnvTicket = "AIDDFLOW_TICKET"
	EnvStage  = "AIDDFLOW_STAGE"
)

// Sentinel errors.
var (
	// ErrBlockedVerdict indicates an attempt to invoke past a BLOCKED gate.
	ErrBlockedVerdict = errors.New("refusing to invoke blocked stage")

	// ErrRuntimeFailure indicates the operation exited non-zero.
	ErrRuntimeFailure = errors.New("stage operation failed")

	// ErrNoOperation indicates no command is configured for the stage.
	ErrNoOperation = errors.New("no operation configured for stage")
)

// Result captures one stage operation invocation.
type Result struct {
	InvocationID string
	Stage        stage.Stage
	Ticket       string
	ExitCode     int
	Stdout       string
	Stderr       string
	TimedOut     bool

	// OutputRef is the report file holding the complete output, useful when
	// the inline copies above were truncated.
	OutputRef string

	// Actions are the mutations the operation proposed for the apply
	// engine. Empty on failure.
	Actions []ledger.ActionRecord
}

// Invoker runs the external operation bound to a stage.
type Invoker struct {
	cfg    *config.Config
	runner CommandRunner

	// NewID generates invocation IDs. Tests may replace it.
	NewID func() string
}

// New creates an [Invoker] that shells out through [ExecRunner].
func New(cfg *config.Config) *Invoker {
	return NewWithRunner(cfg, ExecRunner{})
}

// NewWithRunner creates an [Invoker] with a caller-supplied runner.
func NewWithRunner(cfg *config.Config, runner CommandRunner) *Invoker {
	return &Invoker{
		cfg:    cfg,
		runner: runner,
		NewID:  func() string { return uuid.NewString() },
	}
}

// Invoke executes the operation for the given stage under the resolved
// dialect's resource limits. It refuses BLOCKED verdicts, reports a timeout
// as a fatal [ErrTimeout], and maps a non-zero exit to [ErrRuntimeFailure]
// carrying the report reference. The invoker itself performs no artifact
// mutation; collected action records go to the apply engine.
func (inv *Invoker) Invoke(ctx context.Context, st stage.Stage, ticket string, p profile.Profile, verdict gate.Verdict) (*Result, error) {
	if verdict.Blocked() {
		return nil, fmt.Errorf("%w: %s (%s)", ErrBlockedVerdict, st, strings.Join(verdict.Reasons, "; "))
	}

	op, ok := inv.cfg.Operation(string(st))
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNoOperation, st)
	}

	id := inv.NewID()
	reportDir := filepath.Join(inv.cfg.Workspace.Root, inv.cfg.Workspace.ReportsDir, ticket)
	if err := os.MkdirAll(reportDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create report dir: %w", err)
	}
	logPath := filepath.Join(reportDir, id+".log")
	actionsPath := filepath.Join(reportDir, id+".actions.json")

	logFile, err := os.Create(logPath)
	if err != nil {
		return nil, fmt.Errorf("failed to create report log: %w", err)
	}
	defer logFile.Close()

	timeout := p.Timeout
	if op.TimeoutSec > 0 {
		timeout = time.Duration(op.TimeoutSec) * time.Second
	}

	spec := CommandSpec{
		Argv:           append(op.Command, ticket),
		Dir:            inv.cfg.Workspace.Root,
		Env:            inv.buildEnv(st, ticket, p, actionsPath),
		Timeout:        timeout,
		MaxStdoutBytes: p.MaxStdoutBytes,
		MaxStderrBytes: p.MaxStderrBytes,
		SpillStdout:    logFile,
		SpillStderr:    logFile,
	}

	result := &Result{
		InvocationID: id,
		Stage:        st,
		Ticket:       ticket,
		OutputRef:    logPath,
	}

	cmdResult, err := inv.runner.Run(ctx, spec)
	if cmdResult != nil {
		result.ExitCode = cmdResult.ExitCode
		result.Stdout = cmdResult.Stdout
		result.Stderr = cmdResult.Stderr
		result.TimedOut = cmdResult.TimedOut
	}
	if err != nil {
		return result, err
	}
	if !cmdResult.Ok() {
		return result, fmt.Errorf("%w: %s exited %d (see %s)", ErrRuntimeFailure, st, cmdResult.ExitCode, logPath)
	}

	actions, err := readActions(actionsPath)
	if err != nil {
		return result, err
	}
	result.Actions = actions
	return result, nil
}

// buildEnv extends the ambient environment with the dialect and work-item
// variables the operation contract defines.
func (inv *Invoker) buildEnv(st stage.Stage, ticket string, p profile.Profile, actionsPath string) []string {
	env := os.Environ()
	env = append(env,
		profile.EnvProfile+"="+p.Name,
		profile.EnvSkillsDirs+"="+strings.Join(profile.SkillsSearchPaths(p), string(os.PathListSeparator)),
		EnvTicket+"="+ticket,
		EnvStage+"="+string(st),
		EnvActionsFile+"="+actionsPath,
	)
	return env
}

// readActions loads the JSON action file the operation wrote, if any.
// Absence means the operation proposed no mutations.
func readActions(path string) ([]ledger.ActionRecord, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read action file: %w", err)
	}
	var records []ledger.ActionRecord
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("malformed action file %s: %w", path, err)
	}
	return records, nil
}
