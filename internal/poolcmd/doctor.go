package poolcmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/dsrg-uoft/hottub/internal/poolconfig"
	"github.com/dsrg-uoft/hottub/internal/poolinspect"
	"github.com/dsrg-uoft/hottub/internal/poolpaths"
)

// checkResult is a named diagnostic with an ok/warning/error status and
// a one-line detail.
type checkResult struct {
	Name   string `yaml:"name"`
	Status string `yaml:"status"`
	Detail string `yaml:"detail"`
}

var doctorYAMLFlag bool

func addDoctorCommand(root *cobra.Command) {
	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Diagnose the local hottub installation",
		Long: `Checks that the launcher can resolve its own paths, that the real VM
binary and data root exist, and reports on any pool slots found.`,
		RunE: runDoctor,
	}
	cmd.Flags().BoolVar(&doctorYAMLFlag, "yaml", false, "emit results as YAML instead of plain text")
	root.AddCommand(cmd)
}

func runDoctor(cmd *cobra.Command, args []string) error {
	checks := runChecks()

	if doctorYAMLFlag {
		data, err := yaml.Marshal(checks)
		if err != nil {
			return fmt.Errorf("marshaling results: %w", err)
		}
		_, err = cmd.OutOrStdout().Write(data)
		return err
	}

	for _, c := range checks {
		fmt.Fprintf(cmd.OutOrStdout(), "[%s] %s: %s\n", c.Status, c.Name, c.Detail)
	}
	return nil
}

func runChecks() []checkResult {
	var checks []checkResult

	paths, err := poolpaths.Resolve()
	if err != nil {
		checks = append(checks, checkResult{Name: "paths", Status: "error", Detail: err.Error()})
		return checks
	}
	checks = append(checks, checkResult{Name: "paths", Status: "ok",
		Detail: fmt.Sprintf("exec_real=%s data_root=%s", paths.ExecReal, paths.DataRoot)})

	if _, err := os.Stat(paths.ExecReal); err != nil {
		checks = append(checks, checkResult{Name: "exec_real", Status: "error",
			Detail: fmt.Sprintf("%s: %v", paths.ExecReal, err)})
	} else {
		checks = append(checks, checkResult{Name: "exec_real", Status: "ok", Detail: paths.ExecReal})
	}

	if info, err := os.Stat(paths.DataRoot); err != nil {
		checks = append(checks, checkResult{Name: "data_root", Status: "error",
			Detail: fmt.Sprintf("%s: %v", paths.DataRoot, err)})
	} else if !info.IsDir() {
		checks = append(checks, checkResult{Name: "data_root", Status: "error",
			Detail: fmt.Sprintf("%s: not a directory", paths.DataRoot)})
	} else {
		checks = append(checks, checkResult{Name: "data_root", Status: "ok", Detail: paths.DataRoot})
	}

	cfg, err := poolconfig.Load()
	if err != nil {
		checks = append(checks, checkResult{Name: "config", Status: "error", Detail: err.Error()})
	} else {
		checks = append(checks, checkResult{Name: "config", Status: "ok",
			Detail: fmt.Sprintf("pool_size=%d retry_count=%d retry_delay=%s", cfg.PoolSize, cfg.RetryCount, cfg.RetryDelay)})
	}

	slots, err := poolinspect.List(paths.DataRoot)
	if err != nil {
		checks = append(checks, checkResult{Name: "slots", Status: "error", Detail: err.Error()})
	} else {
		status := "ok"
		if len(slots) == 0 {
			status = "warning"
		}
		checks = append(checks, checkResult{Name: "slots", Status: status,
			Detail: fmt.Sprintf("%d slot(s) found", len(slots))})
	}

	return checks
}
