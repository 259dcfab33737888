package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"aiddflow/internal/ledger"
)

// newApplyCommand applies an actions payload file outside a dispatch. This is
// the recovery path: when a stage run produced actions but the apply step
// failed, the sidecar file can be replayed here and the idempotency keys keep
// already-applied records from running twice.
func (a *App) newApplyCommand() *cobra.Command {
	var scope string
	cmd := &cobra.Command{
		Use:   "apply <ticket> <actions-file>",
		Short: "Apply an actions payload file to a ticket's documents",
		Long: `Apply an actions payload file to a ticket's documents.

The file holds a JSON array of action records, the same format stage
operations write to their actions sidecar. Replayed records report as
already applied; a record whose idempotency key was used with a different
payload aborts the whole batch.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			records, err := readActionsFile(args[1])
			if err != nil {
				fmt.Fprintf(a.ErrOut, "Error: %v\n", err)
				return NewExitError(ExitUsage)
			}
			eng, err := a.engine()
			if err != nil {
				return err
			}
			result, err := eng.Apply(cmd.Context(), args[0], scope, uuid.NewString(), records)
			if err != nil {
				if errors.Is(err, ledger.ErrRejected) && result != nil {
					for _, rej := range result.Rejected {
						fmt.Fprintf(a.ErrOut, "rejected %s: %s\n", rej.Record.IdempotencyKey, rej.Reason)
					}
				}
				fmt.Fprintf(a.ErrOut, "Error: %v\n", err)
				return NewExitError(1)
			}
			fmt.Fprintf(a.Out, "actions: %d applied, %d already applied\n",
				len(result.Applied), len(result.AlreadyApplied))
			return nil
		},
	}
	cmd.Flags().StringVar(&scope, "scope", "manual", "ledger scope to record the batch under")
	return cmd
}

func readActionsFile(path string) ([]ledger.ActionRecord, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read actions file: %w", err)
	}
	var records []ledger.ActionRecord
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("failed to parse actions file: %w", err)
	}
	return records, nil
}
