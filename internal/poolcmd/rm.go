package poolcmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dsrg-uoft/hottub/internal/poolinspect"
	"github.com/dsrg-uoft/hottub/internal/poolpaths"
)

var rmForceFlag bool

func addRMCommand(root *cobra.Command) {
	cmd := &cobra.Command{
		Use:   "rm SLOT [SLOT...]",
		Short: "Stop and remove one or more pool slots",
		Args:  cobra.MinimumNArgs(1),
		RunE:  runRM,
	}
	cmd.Flags().BoolVar(&rmForceFlag, "force", false, "remove even if a client is currently attached")
	root.AddCommand(cmd)
}

func runRM(cmd *cobra.Command, args []string) error {
	paths, err := poolpaths.Resolve()
	if err != nil {
		return fmt.Errorf("resolving pool paths: %w", err)
	}

	slots, err := poolinspect.List(paths.DataRoot)
	if err != nil {
		return fmt.Errorf("listing slots: %w", err)
	}
	bySlot := make(map[string]poolinspect.Slot, len(slots))
	for _, s := range slots {
		bySlot[s.ID] = s
	}

	var firstErr error
	for _, name := range args {
		slot, ok := bySlot[name]
		if !ok {
			fmt.Fprintf(cmd.ErrOrStderr(), "slot %s not found\n", name)
			if firstErr == nil {
				firstErr = fmt.Errorf("slot %s not found", name)
			}
			continue
		}
		if err := poolinspect.Remove(slot, rmForceFlag); err != nil {
			fmt.Fprintf(cmd.ErrOrStderr(), "removing %s: %v\n", name, err)
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		fmt.Fprintf(cmd.OutOrStdout(), "removed %s\n", name)
	}
	return firstErr
}
