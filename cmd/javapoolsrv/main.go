// Command javapoolsrv is the reference pool-slot server. The client
// launcher (cmd/java) spawns one of these per fresh pool slot; it binds
// the slot's abstract socket, accepts invocations one at a time, and runs
// each one's program by forking the real VM binary, reporting the exit
// code back over the wire. A production deployment could instead embed
// this logic directly in a patched VM, as the original project did — see
// DESIGN.md's architectural note on that tradeoff.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/dsrg-uoft/hottub/internal/fingerprint"
	"github.com/dsrg-uoft/hottub/internal/poollog"
	"github.com/dsrg-uoft/hottub/internal/poolserver"
)

func main() {
	var (
		slotIDStr = flag.String("slot-id", "", "the 34-byte pool identity this server owns")
		execReal  = flag.String("exec-real", "", "path to the real VM binary to run on each invocation")
		slotDir   = flag.String("slot-dir", "", "the slot's data directory")
		idleStr   = flag.String("idle-timeout", "30m", "shut down this long after startup")
	)
	flag.Parse()

	if *slotIDStr == "" || *execReal == "" {
		fmt.Fprintln(os.Stderr, "[hottub][error][javapoolsrv] -slot-id and -exec-real are required")
		os.Exit(1)
	}

	idleTimeout, err := time.ParseDuration(*idleStr)
	if err != nil {
		fmt.Fprintf(os.Stderr, "[hottub][error][javapoolsrv] invalid -idle-timeout: %v\n", err)
		os.Exit(1)
	}

	slotID, err := parseSlotID(*slotIDStr)
	if err != nil {
		fmt.Fprintf(os.Stderr, "[hottub][error][javapoolsrv] %v\n", err)
		os.Exit(1)
	}

	logger := poollog.New(logrus.StandardLogger(), *slotIDStr)

	srv := &poolserver.Server{
		SlotID: slotID,
		Runner: poolserver.DirectRunner{ExecReal: *execReal},
		Logger: logger,
	}
	if err := srv.Listen(); err != nil {
		fmt.Fprintf(os.Stderr, "[hottub][error][javapoolsrv] %v\n", err)
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	go idleShutdown(srv, idleTimeout, ctx.Done())

	if err := srv.Serve(ctx); err != nil && ctx.Err() == nil {
		logger.Error(poollog.Logged, "javapoolsrv.serve", err)
		os.Exit(1)
	}

	_ = slotDir // reserved for future slot-local bookkeeping (e.g. idle-file refresh)
}

// idleShutdown shuts the server down idleTimeout after startup, whether
// or not clients have connected in the meantime; the timer is one-shot
// and is not reset by completed requests. A request already being served
// when it fires is finished before Serve returns.
func idleShutdown(srv *poolserver.Server, idleTimeout time.Duration, stop <-chan struct{}) {
	select {
	case <-time.After(idleTimeout):
		srv.Shutdown()
	case <-stop:
	}
}

func parseSlotID(s string) (fingerprint.ID, error) {
	var id fingerprint.ID
	if len(s) != fingerprint.IDLen {
		return id, fmt.Errorf("slot id %q: expected %d bytes, got %d", s, fingerprint.IDLen, len(s))
	}
	copy(id[:], s)
	return id, nil
}
