package cli

import (
	"fmt"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"aiddflow/internal/artifact"
	"aiddflow/internal/stage"
)

// newStatusCommand shows the workspace overview: the active pointer, which
// artifacts a ticket has, and its action ledger.
func (a *App) newStatusCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "status [ticket]",
		Short: "Show the active stage, artifacts, and action ledger",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			eng, err := a.engine()
			if err != nil {
				return err
			}

			active, err := eng.Active()
			if err != nil {
				return err
			}

			ticket := ""
			if len(args) > 0 {
				ticket = args[0]
			} else if active != nil {
				ticket = active.Ticket
			}

			if active == nil {
				fmt.Fprintln(a.Out, "no active stage")
			} else {
				phase := "planning"
				if active.Stage.IsLoop() {
					phase = "delivery loop"
				}
				fmt.Fprintf(a.Out, "active: %s @ %s (%s, updated %s)\n",
					styleTicket.Render(active.Ticket), styleStage.Render(string(active.Stage)), phase, active.UpdatedAt)
				if next, err := stage.Next(active.Stage, stage.OutcomePass); err == nil {
					fmt.Fprintf(a.Out, "next:   %s\n", next)
				} else {
					fmt.Fprintln(a.Out, "next:   pipeline complete")
				}
			}
			if ticket == "" {
				return nil
			}

			fmt.Fprintf(a.Out, "\nartifacts for %s:\n", ticket)
			present := eng.Artifacts(ticket)
			for _, kind := range []artifact.Kind{
				artifact.KindPRD, artifact.KindResearch, artifact.KindPlan,
				artifact.KindInterview, artifact.KindTasklist,
			} {
				mark := styleAbsent.Render("missing")
				if present[kind] {
					mark = stylePresent.Render("present")
				}
				fmt.Fprintf(a.Out, "  %-10s %s\n", kind, mark)
			}

			entries, err := eng.Ledger(cmd.Context(), ticket)
			if err != nil {
				return err
			}
			if len(entries) == 0 {
				fmt.Fprintln(a.Out, "\nledger: empty")
				return nil
			}

			fmt.Fprintln(a.Out)
			tw := table.NewWriter()
			tw.SetOutputMirror(a.Out)
			tw.AppendHeader(table.Row{"#", "Scope", "Action", "Outcome", "Applied At"})
			for _, e := range entries {
				tw.AppendRow(table.Row{e.ID, e.Scope, e.Type, e.Outcome, e.AppliedAt})
			}
			tw.Render()
			return nil
		},
	}
}
