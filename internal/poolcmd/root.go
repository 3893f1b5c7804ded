// Package poolcmd implements the javapool admin CLI: inspecting,
// scaling-down, and diagnosing the local pool of hottub slots. A root
// cobra.Command plus one addXCommands function per command group, all
// wired up from Execute().
package poolcmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dsrg-uoft/hottub/internal/poolconfig"
)

// Version is set at build time via -ldflags.
var Version = "dev"

var configDirFlag string

// Execute builds and runs the root command, returning any error for
// main to report.
func Execute() error {
	return NewRootCmd().Execute()
}

// NewRootCmd assembles the full command tree.
func NewRootCmd() *cobra.Command {
	root := newRootCmd()
	addPSCommand(root)
	addRMCommand(root)
	addTopCommand(root)
	addClinitReportCommand(root)
	addDoctorCommand(root)
	addConfigCommand(root)
	return root
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "javapool",
		Short:         "Inspect and manage the local hottub JVM pool",
		Version:       fmt.Sprintf("javapool v%s", Version),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if configDirFlag != "" {
				poolconfig.SetDir(configDirFlag)
			}
			return nil
		},
	}
	root.PersistentFlags().StringVar(&configDirFlag, "config-dir", "", "override the hottub config directory (default: $HOTTUB_HOME or ~/.hottub)")
	return root
}
