//go:build linux

// Package fallback implements C6: executing the real, un-intercepted VM
// binary in place of the launcher process, exactly reproducing
// exec_jvm's argv[0] rewrite and process replacement (spec §4.6, §7: this
// is the last-resort path taken whenever pooling cannot proceed).
package fallback

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// realArgv0 is the argv[0] exec_jvm hardcodes for the replaced process,
// independent of how the launcher itself was invoked.
const realArgv0 = "java_real"

// Exec replaces the current process image with execReal, forwarding
// argvProgram (everything after the launcher's own argv[0]) and the
// current environment. On success this call never returns; on failure it
// returns an error describing why exec(2) failed, which the caller should
// treat as unrecoverable (spec §7: a failed fallback has nowhere left to
// fall back to).
func Exec(execReal string, argvProgram []string, env []string) error {
	argv := make([]string, 0, len(argvProgram)+1)
	argv = append(argv, realArgv0)
	argv = append(argv, argvProgram...)

	if err := unix.Exec(execReal, argv, env); err != nil {
		return fmt.Errorf("exec %s: %w", execReal, err)
	}
	return nil
}
