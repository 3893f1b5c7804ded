// Package poolserver is the reference implementation of one pool slot's
// server side: listen on the slot's abstract socket, accept exactly one
// client at a time, receive its invocation context, run the program, and
// report the exit code back. A connection that arrives while another is
// being served waits in the listen backlog until the server accepts
// again; keeping a second client off a busy slot is done on the launcher
// side by the exclusive client.pid file.
package poolserver

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/exec"
	"sync"
	"time"

	"github.com/dsrg-uoft/hottub/internal/clinit"
	"github.com/dsrg-uoft/hottub/internal/fingerprint"
	"github.com/dsrg-uoft/hottub/internal/poollog"
	"github.com/dsrg-uoft/hottub/internal/transfer"
	"github.com/dsrg-uoft/hottub/internal/wire"
)

// connDeadline bounds how long a connected client has to complete the
// full transfer handshake.
const connDeadline = 5 * time.Minute

// Runner executes one invocation's program and returns its exit code.
// The default implementation (DirectRunner) execs the real VM binary as
// a child process; a test double can fake this entirely.
type Runner interface {
	Run(ctx context.Context, r *transfer.Received) (exitCode int, err error)
}

// DirectRunner runs ExecReal as a child process, wiring the received
// stdio descriptors, program args, -D options, working directory and
// environment straight through — the Go-process equivalent of the
// original's modified JVM picking up a freshly attached client.
type DirectRunner struct {
	ExecReal string
}

// Run implements Runner.
func (d DirectRunner) Run(ctx context.Context, r *transfer.Received) (int, error) {
	args := append(append([]string(nil), r.VMOptions...), r.ArgvProgram...)
	cmd := exec.CommandContext(ctx, d.ExecReal, args...)
	cmd.Dir = r.Dir
	cmd.Env = r.Env

	names := [3]string{"stdin", "stdout", "stderr"}
	files := make([]*os.File, 0, 3)
	defer func() {
		for _, f := range files {
			f.Close()
		}
	}()

	for i, fd := range r.StdioFDs {
		if fd < 0 {
			continue
		}
		f := os.NewFile(uintptr(fd), names[i])
		files = append(files, f)
		switch i {
		case 0:
			cmd.Stdin = f
		case 1:
			cmd.Stdout = f
		case 2:
			cmd.Stderr = f
		}
	}

	if err := cmd.Run(); err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			return exitErr.ExitCode(), nil
		}
		return 0, fmt.Errorf("running %s: %w", d.ExecReal, err)
	}
	return 0, nil
}

// Server owns one slot's listener and serves requests until Shutdown.
type Server struct {
	SlotID   fingerprint.ID
	Runner   Runner
	Analyzer *clinit.Analyzer
	Logger   *poollog.Logger

	mu       sync.Mutex
	listener net.Listener
	done     chan struct{}
	wg       sync.WaitGroup
}

// Listen binds the slot's abstract-namespace socket (spec §4.2, §6).
func (s *Server) Listen() error {
	addr := &net.UnixAddr{Name: s.SlotID.SocketName(), Net: "unix"}
	l, err := net.ListenUnix("unix", addr)
	if err != nil {
		return fmt.Errorf("listening on slot socket: %w", err)
	}
	s.listener = l
	s.done = make(chan struct{})
	return nil
}

// Serve runs the accept loop until ctx is cancelled or Shutdown is
// called. Deliberately not goroutine-per-connection: this loop handles
// one connection fully before accepting the next (spec §5's one-at-a-time
// slot semantics) — a busy slot simply doesn't Accept again until the
// current client is done.
func (s *Server) Serve(ctx context.Context) error {
	defer func() {
		s.wg.Wait()
	}()

	for {
		conn, err := s.listener.Accept()
		if err != nil {
			select {
			case <-s.done:
				return nil
			default:
				if ctx.Err() != nil {
					return ctx.Err()
				}
				return fmt.Errorf("accept: %w", err)
			}
		}

		s.handleConnection(ctx, conn)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-s.done:
			return nil
		default:
		}
	}
}

// Shutdown stops the accept loop and closes the listener.
func (s *Server) Shutdown() {
	s.mu.Lock()
	defer s.mu.Unlock()
	select {
	case <-s.done:
	default:
		close(s.done)
	}
	if s.listener != nil {
		s.listener.Close()
	}
}

// handleConnection receives one invocation's context, runs it, and
// reports the exit code (spec §4.5, §5).
func (s *Server) handleConnection(ctx context.Context, conn net.Conn) {
	defer conn.Close()
	conn.SetDeadline(time.Now().Add(connDeadline))

	w := wire.New(conn.(*net.UnixConn))
	received, err := transfer.Receive(w)
	if err != nil {
		if s.Logger != nil {
			s.Logger.Error(poollog.Logged, "poolserver.receive", err)
		}
		return
	}

	// A production binding would derive the touched-class set from the
	// attached VM itself; the reference server only knows the program's
	// entry class name, which it treats as the analysis root when an
	// Analyzer is configured (tests wire one against a clinit.Fake).
	if s.Analyzer != nil && len(received.ArgvProgram) > 0 {
		if err := s.Analyzer.Run(received.ArgvProgram[0]); err != nil && s.Logger != nil {
			s.Logger.Error(poollog.Logged, "poolserver.clinit", err)
		}
	}

	runner := s.Runner
	if runner == nil {
		if s.Logger != nil {
			s.Logger.Error(poollog.Logged, "poolserver.run", fmt.Errorf("no runner configured"))
		}
		_ = w.WriteInt32(255)
		return
	}

	exitCode, err := runner.Run(ctx, received)
	if err != nil {
		if s.Logger != nil {
			s.Logger.Error(poollog.Logged, "poolserver.run", err)
		}
		exitCode = 255
	}

	if err := w.WriteInt32(int32(exitCode)); err != nil && s.Logger != nil {
		s.Logger.Error(poollog.Logged, "poolserver.reply", err)
	}
}
