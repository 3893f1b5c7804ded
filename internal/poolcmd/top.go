package poolcmd

import (
	"fmt"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/dsrg-uoft/hottub/internal/pooltui"
	"github.com/dsrg-uoft/hottub/internal/poolpaths"
)

func addTopCommand(root *cobra.Command) {
	cmd := &cobra.Command{
		Use:   "top",
		Short: "Live dashboard of pool slots",
		RunE:  runTop,
	}
	root.AddCommand(cmd)
}

func runTop(cmd *cobra.Command, args []string) error {
	paths, err := poolpaths.Resolve()
	if err != nil {
		return fmt.Errorf("resolving pool paths: %w", err)
	}
	p := tea.NewProgram(pooltui.New(paths.DataRoot))
	_, err = p.Run()
	return err
}
