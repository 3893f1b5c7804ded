// Package coordinator implements C4: the client-side slot loop that
// reserves a pool slot via mkdir, spawns a server when none exists, and
// otherwise connects to an existing one and hands off the invocation.
// This is a line-for-line generalization of java.c's run_hottub, using
// hashicorp/go-multierror to aggregate the per-slot failures that don't
// abort the whole attempt.
package coordinator

import (
	"context"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/opentracing/opentracing-go"
	"golang.org/x/sys/unix"

	"github.com/dsrg-uoft/hottub/internal/fingerprint"
	"github.com/dsrg-uoft/hottub/internal/poolconfig"
	"github.com/dsrg-uoft/hottub/internal/poollog"
	"github.com/dsrg-uoft/hottub/internal/transfer"
	"github.com/dsrg-uoft/hottub/internal/wire"
)

// serverPIDFile and clientPIDFile name the files java.c creates under each
// slot directory to track the server and the currently-attached client
// (spec §4.4, java.h SERVER/CLIENT).
const (
	serverPIDFile = "server.pid"
	clientPIDFile = "client.pid"
	slotDirMode   = 0o775
)

// Spawner starts a new server process for a fresh slot. The coordinator
// doesn't know how to launch a VM itself — that's C6/C7's concern — so it
// takes this as a dependency, mirroring how pool_linux.go's Pool takes a
// firecracker template rather than hardcoding VM boot logic inline.
type Spawner interface {
	// Spawn starts a detached server process serving slotID, returning its
	// pid once the process has been started (not once it's ready to accept
	// connections — the coordinator's connect-retry loop handles that).
	Spawn(ctx context.Context, slotID fingerprint.ID, slotDir string) (pid int, err error)
}

// Options configures one coordinator run.
type Options struct {
	Config  poolconfig.Config
	Spawner Spawner
	Logger  *poollog.Logger
	Tracer  opentracing.Tracer

	// AttemptID is a per-invocation correlation id (a github.com/google/uuid
	// string minted by cmd/java), distinct from the fingerprint id: many
	// attempts share one fingerprint/pool, but each gets its own AttemptID
	// so its trace span and log lines can be isolated from siblings.
	AttemptID string
}

// Run attempts every slot for inv's fingerprint in turn (spec §4.4):
// reserve-or-attach, transfer the invocation context, and return the
// remote exit code. If every slot is exhausted without a successful
// handoff, Run returns a poollog error bucketed FatalToPooling so the
// caller falls through to C6.
func Run(ctx context.Context, dataRoot string, inv *fingerprint.Invocation, opts Options) (int, error) {
	span := maybeStartSpan(opts.Tracer, "coordinator.run")
	if opts.AttemptID != "" {
		span.SetTag("attempt_id", opts.AttemptID)
	}
	defer span.Finish()

	var errs *multierror.Error

	for slot := 0; slot < opts.Config.PoolSize; slot++ {
		slotID := inv.ID.WithSlot(slot)
		slotDir := filepath.Join(dataRoot, slotID.String())

		exitCode, err := tryOneSlot(ctx, slotDir, slotID, inv, opts)
		if err == nil {
			return exitCode, nil
		}
		if poollog.IsFatalToPooling(err) {
			return 0, err
		}
		// Fatal-to-slot or logged-non-fatal: record and advance (java.c:
		// "if you ever can't connect or lose connection to a jvm just go
		// next").
		errs = multierror.Append(errs, fmt.Errorf("slot %d: %w", slot, err))
		if opts.Logger != nil {
			opts.Logger.Error(poollog.Logged, "coordinator.run_hottub", err)
		}
	}

	return 0, poollog.Wrap(poollog.FatalToPooling, "coordinator.run_hottub",
		fmt.Errorf("no pool slot accepted the invocation after %d attempts: %w",
			opts.Config.PoolSize, errs.ErrorOrNil()))
}

// tryOneSlot reserves or attaches to a single slot directory and, on
// success, runs the full transfer + wait-for-exit-code sequence.
func tryOneSlot(ctx context.Context, slotDir string, slotID fingerprint.ID, inv *fingerprint.Invocation, opts Options) (int, error) {
	span := maybeStartSpan(opts.Tracer, "coordinator.slot")
	defer span.Finish()

	reserved, err := reserveSlot(slotDir)
	if err != nil {
		return 0, poollog.Wrap(poollog.FatalToSlot, "coordinator.mkdir", err)
	}
	if reserved {
		if opts.Spawner == nil {
			return 0, poollog.Wrap(poollog.FatalToSlot, "coordinator.spawn",
				fmt.Errorf("no spawner configured for a freshly reserved slot"))
		}
		serverPID, err := opts.Spawner.Spawn(ctx, slotID, slotDir)
		if err != nil {
			return 0, poollog.Wrap(poollog.FatalToSlot, "coordinator.spawn", err)
		}
		// server.pid names the spawned server, not this coordinator — the
		// coordinator itself may exit as soon as this invocation hands off,
		// while the server outlives it for the life of the slot.
		if err := writePIDFile(slotDir, serverPIDFile, serverPID); err != nil {
			if opts.Logger != nil {
				opts.Logger.Error(poollog.Logged, "coordinator.server_pid", err)
			}
		}
	}

	if err := createExclusive(filepath.Join(slotDir, clientPIDFile), os.Getpid()); err != nil {
		return 0, poollog.Wrap(poollog.FatalToSlot, "coordinator.client_pid", err)
	}
	defer os.Remove(filepath.Join(slotDir, clientPIDFile))

	conn, err := connectWithRetry(ctx, slotID, opts.Config.RetryCount, opts.Config.RetryDelay)
	if err != nil {
		return 0, poollog.Wrap(poollog.FatalToSlot, "coordinator.connect", err)
	}
	defer conn.Close()

	w := wire.New(conn)
	xferCtx := transfer.Context{
		ArgvProgram: inv.ArgvProgram,
		VMOptions:   inv.VMOptionStrings,
	}
	if err := transfer.Send(w, xferCtx); err != nil {
		return 0, poollog.Wrap(poollog.FatalToSlot, "coordinator.transfer", err)
	}

	exitCode, err := w.ReadInt32()
	if err != nil {
		return 0, poollog.Wrap(poollog.FatalToSlot, "coordinator.read_exit", err)
	}
	return int(exitCode), nil
}

// reserveSlot attempts to mkdir slotDir. A success means this invocation
// owns server startup for the slot; EEXIST means a server (or a
// concurrent client racing to create one) already claims it (spec §4.4,
// §5: "mkdir as the cross-process mutex").
func reserveSlot(slotDir string) (reserved bool, err error) {
	if err := os.Mkdir(slotDir, slotDirMode); err != nil {
		if os.IsExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("mkdir %s: %w", slotDir, err)
	}
	return true, nil
}

// createExclusive creates path with O_CREAT|O_EXCL, matching
// create_pid_file's client-attach exclusivity (spec §4.4: at most one
// client may be attached to a slot's server at a time).
func createExclusive(path string, pid int) error {
	fd, err := unix.Open(path, unix.O_CREAT|unix.O_EXCL|unix.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("creating %s: %w", path, err)
	}
	defer unix.Close(fd)
	_, err = unix.Write(fd, []byte(strconv.Itoa(pid)))
	return err
}

func writePIDFile(slotDir, name string, pid int) error {
	return os.WriteFile(filepath.Join(slotDir, name), []byte(strconv.Itoa(pid)), 0o644)
}

// connectWithRetry dials id's abstract socket up to retryCount times,
// sleeping retryDelay between attempts — the server may still be
// starting up (spec §4.4, java.c's RETRY_COUNT/200ms nanosleep loop).
func connectWithRetry(ctx context.Context, id fingerprint.ID, retryCount int, retryDelay time.Duration) (*net.UnixConn, error) {
	addr := &net.UnixAddr{Name: id.SocketName(), Net: "unix"}

	var lastErr error
	for attempt := 0; attempt < retryCount; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		conn, err := net.DialUnix("unix", nil, addr)
		if err == nil {
			return conn, nil
		}
		lastErr = err
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(retryDelay):
		}
	}
	return nil, fmt.Errorf("no server accepted a connection after %d attempts: %w", retryCount, lastErr)
}

func maybeStartSpan(tracer opentracing.Tracer, name string) opentracing.Span {
	if tracer == nil {
		tracer = opentracing.NoopTracer{}
	}
	return tracer.StartSpan(name)
}
