package cli

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"aiddflow/internal/dispatch"
	"aiddflow/internal/engine"
	"aiddflow/internal/gate"
	"aiddflow/internal/ledger"
	"aiddflow/internal/stage"
	"aiddflow/internal/state"
)

func okResult(st stage.Stage, ticket string) *engine.Result {
	next, _ := stage.Next(st, stage.OutcomePass)
	return &engine.Result{
		Target:    dispatch.Target{Stage: st, Ticket: ticket},
		Verdict:   gate.Verdict{Stage: st, Ticket: ticket, Status: gate.StatusReady},
		NextStage: next,
	}
}

func TestStageCommand_Dispatches(t *testing.T) {
	mock := &MockEngine{DispatchResult: okResult(stage.Implement, "ABC-1")}
	app, out, _ := newTestApp(mock)

	code := app.Run(context.Background(), []string{"implement", "ABC-1"})
	assert.Equal(t, ExitOK, code)
	require.Len(t, mock.Dispatched, 1)
	assert.Equal(t, "implement", mock.Dispatched[0])
	assert.Contains(t, out.String(), "READY")
	assert.Contains(t, out.String(), "next: review")
}

func TestDispatchCommand_PassesRawString(t *testing.T) {
	mock := &MockEngine{DispatchResult: okResult(stage.Idea, "ABC-1")}
	app, _, _ := newTestApp(mock)

	code := app.Run(context.Background(), []string{"dispatch", "/idea-flow", "ABC-1"})
	assert.Equal(t, ExitOK, code)
	require.Len(t, mock.Dispatched, 1)
	assert.Equal(t, "/idea-flow", mock.Dispatched[0])
}

func TestStageCommand_BlockedExitsOne(t *testing.T) {
	mock := &MockEngine{
		DispatchResult: &engine.Result{
			Verdict: gate.Verdict{Stage: stage.Plan, Ticket: "ABC-1",
				Status: gate.StatusBlocked, Reasons: []string{gate.ReasonResearchNotReady}},
		},
		DispatchErr: engine.ErrGateBlocked,
	}
	app, out, _ := newTestApp(mock)

	code := app.Run(context.Background(), []string{"plan", "ABC-1"})
	assert.Equal(t, ExitBlocked, code)
	assert.Contains(t, out.String(), "BLOCKED")
	assert.Contains(t, out.String(), gate.ReasonResearchNotReady)
}

func TestStageCommand_UsageErrors(t *testing.T) {
	mock := &MockEngine{DispatchErr: engine.ErrNoTicket}
	app, _, errOut := newTestApp(mock)

	code := app.Run(context.Background(), []string{"idea"})
	assert.Equal(t, ExitUsage, code)
	assert.Contains(t, errOut.String(), "no ticket")
}

func TestDispatchCommand_UnrecognizedCommand(t *testing.T) {
	mock := &MockEngine{DispatchErr: dispatch.ErrUnrecognizedCommand}
	app, _, _ := newTestApp(mock)

	code := app.Run(context.Background(), []string{"dispatch", "/mystery"})
	assert.Equal(t, ExitUsage, code)
}

func TestGateCommand(t *testing.T) {
	mock := &MockEngine{GateVerdict: gate.Verdict{Status: gate.StatusWarn,
		Reasons: []string{gate.ReasonResearchStale}}}
	app, out, _ := newTestApp(mock)

	code := app.Run(context.Background(), []string{"gate", "plan", "ABC-1"})
	assert.Equal(t, ExitOK, code, "WARN exits zero")
	assert.Contains(t, out.String(), "WARN")

	mock.GateVerdict = gate.Verdict{Status: gate.StatusBlocked,
		Reasons: []string{gate.ReasonTasklistMissing}}
	code = app.Run(context.Background(), []string{"gate", "implement", "ABC-1"})
	assert.Equal(t, ExitBlocked, code)
}

func TestGateCommand_UnknownStage(t *testing.T) {
	app, _, errOut := newTestApp(&MockEngine{})

	code := app.Run(context.Background(), []string{"gate", "shipit", "ABC-1"})
	assert.Equal(t, ExitUsage, code)
	assert.Contains(t, errOut.String(), "unknown stage")
}

func TestGateCommand_AcceptsLegacyAlias(t *testing.T) {
	mock := &MockEngine{GateVerdict: gate.Verdict{Status: gate.StatusReady}}
	app, out, _ := newTestApp(mock)

	code := app.Run(context.Background(), []string{"gate", "idea-flow", "ABC-1"})
	assert.Equal(t, ExitOK, code)
	assert.Contains(t, out.String(), "gate idea")
}

func TestStatusCommand(t *testing.T) {
	mock := &MockEngine{
		ActiveState: &state.ActiveState{Ticket: "ABC-1", Stage: stage.Implement,
			UpdatedAt: "2026-03-14T09:26:53Z", Generation: 4},
		LedgerEntries: []ledger.Entry{
			{ID: 1, Scope: "implement", Type: ledger.ActionSetItemDone,
				Outcome: "applied", AppliedAt: "2026-03-14T09:26:53Z"},
		},
	}
	app, out, _ := newTestApp(mock)

	code := app.Run(context.Background(), []string{"status"})
	assert.Equal(t, ExitOK, code)
	assert.Contains(t, out.String(), "ABC-1")
	assert.Contains(t, out.String(), "implement")
	assert.Contains(t, out.String(), "delivery loop")
	assert.Contains(t, out.String(), "next:   review")
	assert.Contains(t, out.String(), ledger.ActionSetItemDone)
}

func TestStatusCommand_NoActiveState(t *testing.T) {
	app, out, _ := newTestApp(&MockEngine{})

	code := app.Run(context.Background(), []string{"status"})
	assert.Equal(t, ExitOK, code)
	assert.Contains(t, out.String(), "no active stage")
}

func TestSetActiveCommand(t *testing.T) {
	mock := &MockEngine{}
	app, _, _ := newTestApp(mock)

	code := app.Run(context.Background(), []string{"set-active", "ABC-1", "tasks-new"})
	assert.Equal(t, ExitOK, code)
	require.Len(t, mock.SetActiveLog, 1)
	assert.Equal(t, "ABC-1@tasklist", mock.SetActiveLog[0], "alias resolves before storing")

	code = app.Run(context.Background(), []string{"set-active", "ABC-1", "bogus"})
	assert.Equal(t, ExitUsage, code)
}

func TestRoot_HasAllStageCommands(t *testing.T) {
	app, _, _ := newTestApp(&MockEngine{})
	root := app.Root()

	names := map[string]bool{}
	for _, cmd := range root.Commands() {
		names[cmd.Name()] = true
	}
	for _, st := range []string{"idea", "research", "plan", "review-spec",
		"spec-interview", "tasklist", "implement", "review", "qa"} {
		assert.True(t, names[st], "missing stage command %s", st)
	}
	assert.True(t, names["dispatch"])
	assert.True(t, names["gate"])
	assert.True(t, names["status"])
	assert.True(t, names["set-active"])
	assert.True(t, names["apply"])
	assert.True(t, names["profile"])
}

func TestApplyCommand(t *testing.T) {
	mock := &MockEngine{ApplyResult: &ledger.ApplyResult{
		Applied: []ledger.Entry{{IdempotencyKey: "k1"}},
	}}
	app, out, _ := newTestApp(mock)

	path := filepath.Join(t.TempDir(), "actions.json")
	payload := `[{"type":"tasklist.set_item_done","idempotency_key":"k1","params":{"task_id":"T1"}}]`
	require.NoError(t, os.WriteFile(path, []byte(payload), 0644))

	code := app.Run(context.Background(), []string{"apply", "ABC-1", path})
	assert.Equal(t, ExitOK, code)
	require.Len(t, mock.AppliedRecords, 1)
	assert.Equal(t, "k1", mock.AppliedRecords[0].IdempotencyKey)
	assert.Contains(t, out.String(), "1 applied")
}

func TestApplyCommand_UnreadableFile(t *testing.T) {
	app, _, errOut := newTestApp(&MockEngine{})

	code := app.Run(context.Background(), []string{"apply", "ABC-1", filepath.Join(t.TempDir(), "missing.json")})
	assert.Equal(t, ExitUsage, code)
	assert.Contains(t, errOut.String(), "actions file")
}
