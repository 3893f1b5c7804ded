package poolcmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dsrg-uoft/hottub/internal/poolconfig"
)

func addConfigCommand(root *cobra.Command) {
	cfgCmd := &cobra.Command{
		Use:   "config",
		Short: "Get or set hottub.toml values",
	}

	getCmd := &cobra.Command{
		Use:   "get KEY",
		Short: "Print a config value",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			v, err := poolconfig.Get(args[0])
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), v)
			return nil
		},
	}

	setCmd := &cobra.Command{
		Use:   "set KEY VALUE",
		Short: "Set a config value and persist it",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return poolconfig.Set(args[0], args[1])
		},
	}

	cfgCmd.AddCommand(getCmd, setCmd)
	root.AddCommand(cfgCmd)
}
