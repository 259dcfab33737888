package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"aiddflow/internal/stage"
)

var stageShort = map[stage.Stage]string{
	stage.Idea:          "Capture an idea and open its ticket",
	stage.Research:      "Research the ticket's problem space",
	stage.Plan:          "Draft the implementation plan",
	stage.ReviewSpec:    "Review the drafted specification",
	stage.SpecInterview: "Interview the plan for gaps",
	stage.Tasklist:      "Break the plan into a tasklist",
	stage.Implement:     "Work the tasklist",
	stage.Review:        "Review the implementation",
	stage.QA:            "Run final quality checks",
}

// newStageCommand builds the subcommand that dispatches one pipeline stage.
func (a *App) newStageCommand(st stage.Stage) *cobra.Command {
	return &cobra.Command{
		Use:   fmt.Sprintf("%s [ticket]", st),
		Short: stageShort[st],
		Long: fmt.Sprintf(`Dispatch the %s stage.

The readiness gate for the stage runs first; a BLOCKED verdict exits 1
without invoking anything. When no ticket is given the workspace's active
ticket is used.`, st),
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			eng, err := a.engine()
			if err != nil {
				return err
			}
			result, err := eng.Dispatch(cmd.Context(), string(st), args, a.profileFlag)
			return a.reportDispatch(result, err)
		},
	}
}

// newDispatchCommand routes a raw host command string, aliases and dialect
// prefixes included, through the same chain the stage subcommands use.
func (a *App) newDispatchCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "dispatch <command> [ticket] [note...]",
		Short: "Dispatch a raw host command string",
		Long: `Dispatch a raw host command string.

The command is normalized before dispatch: dialect leaders and namespaces
are stripped, legacy aliases resolve to their canonical stage, and a ticket
may ride along in the command text or as a separate argument.

Example:
  aiddflow dispatch "/idea-flow" ABC-1`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			eng, err := a.engine()
			if err != nil {
				return err
			}
			result, err := eng.Dispatch(cmd.Context(), args[0], args[1:], a.profileFlag)
			return a.reportDispatch(result, err)
		},
	}
}

// newSetActiveCommand moves the active stage pointer without dispatching.
func (a *App) newSetActiveCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "set-active <ticket> <stage>",
		Short: "Set the workspace's active ticket and stage",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			st := stage.Resolve(args[1])
			if !stage.IsKnown(args[1]) {
				fmt.Fprintf(a.ErrOut, "Error: unknown stage %q (valid: %v)\n", args[1], stage.Supported(false))
				return NewExitError(ExitUsage)
			}
			eng, err := a.engine()
			if err != nil {
				return err
			}
			if err := eng.SetActive(args[0], st); err != nil {
				return err
			}
			fmt.Fprintf(a.Out, "active: %s @ %s\n", args[0], st)
			return nil
		},
	}
}
