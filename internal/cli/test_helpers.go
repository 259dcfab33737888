package cli

import (
	"bytes"
	"context"

	"aiddflow/internal/artifact"
	"aiddflow/internal/config"
	"aiddflow/internal/engine"
	"aiddflow/internal/gate"
	"aiddflow/internal/ledger"
	"aiddflow/internal/stage"
	"aiddflow/internal/state"
)

// MockEngine is an [Engine] for testing. It records dispatch calls and plays
// back canned results.
type MockEngine struct {
	// Dispatched records every raw command handed to Dispatch, in order.
	Dispatched []string

	DispatchResult *engine.Result
	DispatchErr    error

	GateVerdict gate.Verdict

	ActiveState  *state.ActiveState
	SetActiveLog []string

	LedgerEntries []ledger.Entry
	Present       map[artifact.Kind]bool

	// AppliedRecords accumulates every record handed to Apply.
	AppliedRecords []ledger.ActionRecord
	ApplyResult    *ledger.ApplyResult
	ApplyErr       error
}

func (m *MockEngine) Dispatch(_ context.Context, rawCommand string, args []string, _ string) (*engine.Result, error) {
	m.Dispatched = append(m.Dispatched, rawCommand)
	return m.DispatchResult, m.DispatchErr
}

func (m *MockEngine) Gate(st stage.Stage, ticket, _ string) (gate.Verdict, error) {
	v := m.GateVerdict
	v.Stage = st
	v.Ticket = ticket
	return v, nil
}

func (m *MockEngine) Active() (*state.ActiveState, error) {
	return m.ActiveState, nil
}

func (m *MockEngine) SetActive(ticket string, st stage.Stage) error {
	m.SetActiveLog = append(m.SetActiveLog, ticket+"@"+string(st))
	return nil
}

func (m *MockEngine) Apply(_ context.Context, _, _, _ string, records []ledger.ActionRecord) (*ledger.ApplyResult, error) {
	m.AppliedRecords = append(m.AppliedRecords, records...)
	if m.ApplyResult == nil && m.ApplyErr == nil {
		return &ledger.ApplyResult{}, nil
	}
	return m.ApplyResult, m.ApplyErr
}

func (m *MockEngine) Ledger(_ context.Context, _ string) ([]ledger.Entry, error) {
	return m.LedgerEntries, nil
}

func (m *MockEngine) Artifacts(_ string) map[artifact.Kind]bool {
	if m.Present == nil {
		return map[artifact.Kind]bool{}
	}
	return m.Present
}

// newTestApp wires an [App] to a [MockEngine] with captured output.
func newTestApp(mock *MockEngine) (*App, *bytes.Buffer, *bytes.Buffer) {
	app := NewApp(config.DefaultConfig())
	app.Engine = mock
	out := &bytes.Buffer{}
	errOut := &bytes.Buffer{}
	app.Out = out
	app.ErrOut = errOut
	return app, out, errOut
}
