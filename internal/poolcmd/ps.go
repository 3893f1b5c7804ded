package poolcmd

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/dsrg-uoft/hottub/internal/poolinspect"
	"github.com/dsrg-uoft/hottub/internal/poolpaths"
)

func addPSCommand(root *cobra.Command) {
	cmd := &cobra.Command{
		Use:   "ps",
		Short: "List pool slots on this host",
		Long: `List every pool slot directory under the hottub data root.

A slot with a server pid but no client pid is idle and ready to accept the
next matching invocation; a slot with both is currently serving one.`,
		RunE: runPS,
	}
	root.AddCommand(cmd)
}

func runPS(cmd *cobra.Command, args []string) error {
	paths, err := poolpaths.Resolve()
	if err != nil {
		return fmt.Errorf("resolving pool paths: %w", err)
	}

	slots, err := poolinspect.List(paths.DataRoot)
	if err != nil {
		return fmt.Errorf("listing slots: %w", err)
	}

	if len(slots) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No pool slots found.")
		return nil
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "SLOT\tSERVER PID\tALIVE\tCLIENT PID")
	for _, s := range slots {
		client := "-"
		if s.ClientPID != 0 {
			client = fmt.Sprintf("%d", s.ClientPID)
		}
		fmt.Fprintf(w, "%s\t%d\t%t\t%s\n", s.ID, s.ServerPID, s.ServerAlive, client)
	}
	return w.Flush()
}
