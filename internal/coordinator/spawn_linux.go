//go:build linux

package coordinator

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"syscall"

	"github.com/dsrg-uoft/hottub/internal/fingerprint"
)

// serverStdoutFile and serverStderrFile are where a spawned server's
// stdout/stderr are redirected, matching setup_server_logs's two distinct
// per-slot log files (java.c run_hottub's forked child calls
// setup_server_logs(jvmpath), which opens jvmpath/stdout and
// jvmpath/stderr as separate paths, before exec_jvm).
const (
	serverStdoutFile = "stdout"
	serverStderrFile = "stderr"
)

// javapoolsrvBinary is the companion binary the coordinator spawns to
// serve a freshly reserved slot. It is resolved relative to execReal's
// directory so a hottub install is self-contained (bin/java, bin/java_real,
// bin/javapoolsrv all installed together).
const javapoolsrvBinary = "javapoolsrv"

// ProcessSpawner launches the javapoolsrv companion binary as a detached
// child process, the Go-process equivalent of java.c's fork+setsid+exec
// sequence for starting a server in a fresh pool slot (spec §4.4).
type ProcessSpawner struct {
	execReal string
}

// NewProcessSpawner builds a ProcessSpawner that locates javapoolsrv next
// to execReal (the real VM binary java.c's exec_jvm replaces itself
// with).
func NewProcessSpawner(execReal string) *ProcessSpawner {
	return &ProcessSpawner{execReal: execReal}
}

// Spawn implements coordinator.Spawner.
func (p *ProcessSpawner) Spawn(ctx context.Context, slotID fingerprint.ID, slotDir string) (int, error) {
	srvPath := filepath.Join(filepath.Dir(p.execReal), javapoolsrvBinary)

	stdout, err := os.OpenFile(filepath.Join(slotDir, serverStdoutFile), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return 0, fmt.Errorf("opening server stdout: %w", err)
	}
	defer stdout.Close()
	stderr, err := os.OpenFile(filepath.Join(slotDir, serverStderrFile), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return 0, fmt.Errorf("opening server stderr: %w", err)
	}
	defer stderr.Close()

	cmd := exec.Command(srvPath, "-slot-id", slotID.String(), "-exec-real", p.execReal, "-slot-dir", slotDir)
	cmd.Stdout = stdout
	cmd.Stderr = stderr
	cmd.Stdin = nil
	// setsid detaches the server from this client's controlling terminal
	// and session, matching java.c's setsid() call in the forked child —
	// the server must outlive this invocation.
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}

	if err := cmd.Start(); err != nil {
		return 0, fmt.Errorf("starting %s: %w", srvPath, err)
	}
	pid := cmd.Process.Pid
	// Intentionally not Wait()-ed: the server is meant to run detached for
	// the lifetime of the pool slot, outliving this client process.
	if err := cmd.Process.Release(); err != nil {
		return 0, err
	}
	return pid, nil
}
