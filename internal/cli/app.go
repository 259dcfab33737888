// Package cli wires the dispatch engine into a cobra command tree.
//
// Every public stage gets a subcommand, plus dispatch for raw host command
// strings, gate for standalone verdict checks, status for the workspace
// overview, and set-active for moving the stage pointer by hand. Exit codes
// follow the gate convention: 0 for READY/WARN, 1 for BLOCKED, 2 for usage
// errors.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"aiddflow/internal/artifact"
	"aiddflow/internal/config"
	"aiddflow/internal/dispatch"
	"aiddflow/internal/engine"
	"aiddflow/internal/gate"
	"aiddflow/internal/invoke"
	"aiddflow/internal/ledger"
	"aiddflow/internal/stage"
	"aiddflow/internal/state"
)

// Engine is the dispatch surface the commands run against. The production
// implementation is [engine.Dispatcher]; tests substitute a mock.
type Engine interface {
	Dispatch(ctx context.Context, rawCommand string, args []string, explicitProfile string) (*engine.Result, error)
	Gate(st stage.Stage, ticket, explicitProfile string) (gate.Verdict, error)
	Active() (*state.ActiveState, error)
	SetActive(ticket string, st stage.Stage) error
	Apply(ctx context.Context, ticket, scope, invocationID string, records []ledger.ActionRecord) (*ledger.ApplyResult, error)
	Ledger(ctx context.Context, ticket string) ([]ledger.Entry, error)
	Artifacts(ticket string) map[artifact.Kind]bool
}

// App holds the dependencies shared by all commands.
type App struct {
	Config *config.Config
	Engine Engine
	Out    io.Writer
	ErrOut io.Writer

	profileFlag string
	closeEngine func() error
}

// NewApp creates an [App] over the given configuration. The engine is opened
// lazily on first use so usage errors never touch the ledger database.
func NewApp(cfg *config.Config) *App {
	return &App{Config: cfg, Out: os.Stdout, ErrOut: os.Stderr}
}

func (a *App) engine() (Engine, error) {
	if a.Engine != nil {
		return a.Engine, nil
	}
	d, err := engine.New(a.Config)
	if err != nil {
		return nil, err
	}
	a.Engine = d
	a.closeEngine = d.Close
	return a.Engine, nil
}

// Close releases the lazily opened engine, if any.
func (a *App) Close() error {
	if a.closeEngine != nil {
		return a.closeEngine()
	}
	return nil
}

// Root builds the full command tree.
func (a *App) Root() *cobra.Command {
	root := &cobra.Command{
		Use:           "aiddflow",
		Short:         "Stage dispatch and readiness gates for ticket pipelines",
		Long:          "aiddflow routes host commands to canonical pipeline stages,\nchecks readiness gates before each run, and applies the resulting\nartifact mutations through an idempotent action ledger.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&a.profileFlag, "profile", "", "host dialect to assume (kimi, codex, cursor)")

	for _, st := range stage.PublicStages {
		if st == stage.Status {
			continue
		}
		root.AddCommand(a.newStageCommand(st))
	}
	root.AddCommand(a.newDispatchCommand())
	root.AddCommand(a.newGateCommand())
	root.AddCommand(a.newStatusCommand())
	root.AddCommand(a.newSetActiveCommand())
	root.AddCommand(a.newApplyCommand())
	root.AddCommand(a.newProfileCommand())
	return root
}

// Run executes the command tree and maps errors to shell exit codes.
func (a *App) Run(ctx context.Context, args []string) int {
	root := a.Root()
	root.SetArgs(args)
	root.SetOut(a.Out)
	root.SetErr(a.ErrOut)
	defer a.Close()

	err := root.ExecuteContext(ctx)
	if err == nil {
		return ExitOK
	}
	if code, ok := IsExitError(err); ok {
		return code
	}
	fmt.Fprintf(a.ErrOut, "Error: %v\n", err)
	switch {
	case errors.Is(err, dispatch.ErrUnrecognizedCommand),
		errors.Is(err, engine.ErrNoTicket):
		return ExitUsage
	case errors.Is(err, engine.ErrGateBlocked):
		return ExitBlocked
	default:
		return 1
	}
}

// Execute loads configuration and runs the CLI, returning the process exit
// code. SIGINT and SIGTERM cancel any in-flight stage invocation.
func Execute() int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.NewLoader().Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	return NewApp(cfg).Run(ctx, os.Args[1:])
}

// reportDispatch renders a dispatch result and translates failures into the
// exit-code convention.
func (a *App) reportDispatch(result *engine.Result, err error) error {
	if result != nil {
		a.renderVerdict(result.Verdict)
	}
	if err != nil {
		switch {
		case errors.Is(err, engine.ErrGateBlocked):
			return NewExitError(ExitBlocked)
		case errors.Is(err, dispatch.ErrUnrecognizedCommand), errors.Is(err, engine.ErrNoTicket):
			fmt.Fprintf(a.ErrOut, "Error: %v\n", err)
			return NewExitError(ExitUsage)
		case errors.Is(err, invoke.ErrTimeout), errors.Is(err, invoke.ErrRuntimeFailure),
			errors.Is(err, ledger.ErrApplyConflict), errors.Is(err, ledger.ErrRejected),
			errors.Is(err, state.ErrBusy):
			fmt.Fprintf(a.ErrOut, "Error: %v\n", err)
			return NewExitError(1)
		}
		return err
	}
	a.renderOutcome(result)
	return nil
}
