package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"aiddflow/internal/stage"
)

// newGateCommand evaluates a stage's readiness without invoking anything.
func (a *App) newGateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "gate <stage> [ticket]",
		Short: "Check a stage's readiness gate",
		Long: `Evaluate the readiness gate for a stage without running it.

Exits 0 for READY or WARN, 1 for BLOCKED, 2 for usage errors. Verdicts are
recomputed from current artifact content on every call.`,
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !stage.IsKnown(args[0]) {
				fmt.Fprintf(a.ErrOut, "Error: unknown stage %q (valid: %v)\n", args[0], stage.Supported(true))
				return NewExitError(ExitUsage)
			}
			ticket := ""
			if len(args) > 1 {
				ticket = args[1]
			}

			eng, err := a.engine()
			if err != nil {
				return err
			}
			verdict, err := eng.Gate(stage.Resolve(args[0]), ticket, a.profileFlag)
			if err != nil {
				fmt.Fprintf(a.ErrOut, "Error: %v\n", err)
				return NewExitError(ExitUsage)
			}

			a.renderVerdict(verdict)
			if verdict.Blocked() {
				return NewExitError(ExitBlocked)
			}
			return nil
		},
	}
}
