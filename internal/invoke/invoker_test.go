package invoke

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"aiddflow/internal/config"
	"aiddflow/internal/gate"
	"aiddflow/internal/ledger"
	"aiddflow/internal/profile"
	"aiddflow/internal/stage"
)

// stubRunner records the spec it was handed and plays back a canned result.
type stubRunner struct {
	spec    CommandSpec
	result  *CommandResult
	err     error
	actions []ledger.ActionRecord
}

func (s *stubRunner) Run(_ context.Context, spec CommandSpec) (*CommandResult, error) {
	s.spec = spec
	if s.actions != nil {
		path := envValue(spec.Env, EnvActionsFile)
		data, _ := json.Marshal(s.actions)
		if err := os.WriteFile(path, data, 0644); err != nil {
			return nil, err
		}
	}
	return s.result, s.err
}

func envValue(env []string, key string) string {
	prefix := key + "="
	for _, kv := range env {
		if len(kv) > len(prefix) && kv[:len(prefix)] == prefix {
			return kv[len(prefix):]
		}
	}
	return ""
}

func newInvoker(t *testing.T, runner CommandRunner) *Invoker {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.Workspace.Root = t.TempDir()
	inv := NewWithRunner(cfg, runner)
	inv.NewID = func() string { return "inv-0001" }
	return inv
}

func readyVerdict(st stage.Stage) gate.Verdict {
	return gate.Verdict{Stage: st, Ticket: "ABC-1", Status: gate.StatusReady}
}

func TestInvoke_RefusesBlockedVerdict(t *testing.T) {
	runner := &stubRunner{}
	inv := newInvoker(t, runner)

	blocked := gate.Verdict{Stage: stage.Plan, Ticket: "ABC-1", Status: gate.StatusBlocked,
		Reasons: []string{gate.ReasonResearchNotReady}}
	_, err := inv.Invoke(context.Background(), stage.Plan, "ABC-1", profile.Default(), blocked)
	require.ErrorIs(t, err, ErrBlockedVerdict)
	assert.Empty(t, runner.spec.Argv, "runner must not be called")
}

func TestInvoke_Success(t *testing.T) {
	runner := &stubRunner{
		result: &CommandResult{ExitCode: 0, Stdout: "done\n"},
		actions: []ledger.ActionRecord{
			{Type: ledger.ActionSetItemDone, IdempotencyKey: "k1",
				Params: map[string]any{"item_id": "T1"}},
		},
	}
	inv := newInvoker(t, runner)

	result, err := inv.Invoke(context.Background(), stage.Implement, "ABC-1", profile.Default(), readyVerdict(stage.Implement))
	require.NoError(t, err)
	assert.Equal(t, "inv-0001", result.InvocationID)
	assert.Equal(t, 0, result.ExitCode)
	require.Len(t, result.Actions, 1)
	assert.Equal(t, ledger.ActionSetItemDone, result.Actions[0].Type)

	// The operation saw its contract environment.
	assert.Equal(t, "ABC-1", envValue(runner.spec.Env, EnvTicket))
	assert.Equal(t, "implement", envValue(runner.spec.Env, EnvStage))
	assert.NotEmpty(t, envValue(runner.spec.Env, EnvActionsFile))
	assert.Equal(t, profile.DefaultName, envValue(runner.spec.Env, profile.EnvProfile))

	// Ticket is appended to the configured command.
	assert.Equal(t, "ABC-1", runner.spec.Argv[len(runner.spec.Argv)-1])
}

func TestInvoke_NoActionsFileMeansNoActions(t *testing.T) {
	runner := &stubRunner{result: &CommandResult{ExitCode: 0}}
	inv := newInvoker(t, runner)

	result, err := inv.Invoke(context.Background(), stage.Research, "ABC-1", profile.Default(), readyVerdict(stage.Research))
	require.NoError(t, err)
	assert.Empty(t, result.Actions)
}

func TestInvoke_RuntimeFailure(t *testing.T) {
	runner := &stubRunner{result: &CommandResult{ExitCode: 2, Stderr: "boom"}}
	inv := newInvoker(t, runner)

	result, err := inv.Invoke(context.Background(), stage.Plan, "ABC-1", profile.Default(), readyVerdict(stage.Plan))
	require.ErrorIs(t, err, ErrRuntimeFailure)
	assert.Equal(t, 2, result.ExitCode)
	assert.Contains(t, err.Error(), result.OutputRef)
}

func TestInvoke_TimeoutIsFatal(t *testing.T) {
	runner := &stubRunner{
		result: &CommandResult{ExitCode: TimeoutExitCode, TimedOut: true},
		err:    ErrTimeout,
	}
	inv := newInvoker(t, runner)

	result, err := inv.Invoke(context.Background(), stage.QA, "ABC-1", profile.Default(), readyVerdict(stage.QA))
	require.ErrorIs(t, err, ErrTimeout)
	assert.True(t, result.TimedOut)
}

func TestInvoke_UnknownStage(t *testing.T) {
	inv := newInvoker(t, &stubRunner{})

	_, err := inv.Invoke(context.Background(), stage.Stage("mystery"), "ABC-1", profile.Default(), readyVerdict("mystery"))
	assert.ErrorIs(t, err, ErrNoOperation)
}

func TestInvoke_WarnVerdictProceeds(t *testing.T) {
	runner := &stubRunner{result: &CommandResult{ExitCode: 0}}
	inv := newInvoker(t, runner)

	warn := gate.Verdict{Stage: stage.Plan, Ticket: "ABC-1", Status: gate.StatusWarn,
		Reasons: []string{gate.ReasonResearchStale}}
	_, err := inv.Invoke(context.Background(), stage.Plan, "ABC-1", profile.Default(), warn)
	assert.NoError(t, err)
}

func TestInvoke_ReportLogCreated(t *testing.T) {
	runner := &stubRunner{result: &CommandResult{ExitCode: 0}}
	inv := newInvoker(t, runner)

	result, err := inv.Invoke(context.Background(), stage.Idea, "ABC-1", profile.Default(), readyVerdict(stage.Idea))
	require.NoError(t, err)
	assert.Equal(t, filepath.Base(result.OutputRef), "inv-0001.log")
	_, statErr := os.Stat(result.OutputRef)
	assert.NoError(t, statErr)
}
