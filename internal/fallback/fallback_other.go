//go:build !linux

package fallback

import (
	"fmt"
	"os"
	"os/exec"
)

// realArgv0 mirrors fallback_linux.go's constant; kept here too since a
// non-Linux build can't rely on the Linux file compiling at all.
const realArgv0 = "java_real"

// Exec runs execReal as a child process and forwards its exit code via
// os.Exit, since true process-image replacement (execve) has no portable
// Go equivalent outside Linux's golang.org/x/sys/unix.Exec. This is a
// deliberate platform fallback of the fallback path (spec §6: abstract
// sockets and process replacement are both called out as Linux-specific;
// everywhere else degrades gracefully to a child-process model).
func Exec(execReal string, argvProgram []string, env []string) error {
	cmd := exec.Command(execReal, argvProgram...)
	cmd.Args[0] = realArgv0
	cmd.Env = env
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr

	if err := cmd.Run(); err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			os.Exit(exitErr.ExitCode())
		}
		return fmt.Errorf("running %s: %w", execReal, err)
	}
	os.Exit(0)
	return nil
}
