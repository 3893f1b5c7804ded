// Command java is the drop-in replacement for the real "java" binary. It
// mirrors java.c's main(): look for the "-hottub" marker, fingerprint the
// invocation, try the local pool, and fall through to a direct exec of
// the real VM the moment anything about pooling fails.
package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/dsrg-uoft/hottub/internal/coordinator"
	"github.com/dsrg-uoft/hottub/internal/fallback"
	"github.com/dsrg-uoft/hottub/internal/fingerprint"
	"github.com/dsrg-uoft/hottub/internal/poolconfig"
	"github.com/dsrg-uoft/hottub/internal/poollog"
	"github.com/dsrg-uoft/hottub/internal/poolpaths"
)

// hottubMarker is the argv prefix that opts an invocation into pooling
// (spec §4 entry point, java.c main's `strncmp(argv[i], "-hottub", 7)`).
const hottubMarker = "-hottub"

func main() {
	os.Exit(run(os.Args, os.Environ()))
}

func run(argv, env []string) int {
	paths, err := poolpaths.Resolve()
	if err != nil {
		fmt.Fprintf(os.Stderr, "[hottub][error][java] resolving paths: %v\n", err)
		return 1
	}

	if !hasHottubMarker(argv) {
		return execFallback(paths.ExecReal, argv, env)
	}

	inv, err := fingerprint.Compute(argv)
	if err != nil {
		logrus.WithError(err).Warn("[hottub] fingerprinting failed, falling back to direct exec")
		return execFallback(paths.ExecReal, argv, env)
	}

	cfg, err := poolconfig.Load()
	if err != nil {
		logrus.WithError(err).Warn("[hottub] loading pool config failed, using defaults")
		defaults := poolconfig.Defaults()
		cfg = &defaults
	}

	attemptID := uuid.New().String()
	logger := poollog.New(logrus.StandardLogger(), inv.ID.String()).WithAttempt(attemptID)

	ctx, cancel := context.WithTimeout(context.Background(), poolAttemptTimeout(*cfg))
	defer cancel()

	exitCode, err := coordinator.Run(ctx, paths.DataRoot, inv, coordinator.Options{
		Config:    *cfg,
		Spawner:   coordinator.NewProcessSpawner(paths.ExecReal),
		Logger:    logger,
		AttemptID: attemptID,
	})
	if err != nil {
		logger.Error(poollog.FatalToPooling, "java.main", err)
		return execFallback(paths.ExecReal, argv, env)
	}
	return exitCode
}

// hasHottubMarker reports whether any argument after argv[0] begins with
// "-hottub" — the opt-in switch java.c checks before attempting pooling
// at all.
func hasHottubMarker(argv []string) bool {
	for _, a := range argv[1:] {
		if strings.HasPrefix(a, hottubMarker) {
			return true
		}
	}
	return false
}

// execFallback runs the real VM binary directly, replacing this process
// on Linux. argv[1:] is forwarded verbatim (spec §4.6: the fallback must
// behave exactly as if hottub were never installed).
func execFallback(execReal string, argv, env []string) int {
	if err := fallback.Exec(execReal, argv[1:], env); err != nil {
		fmt.Fprintf(os.Stderr, "[hottub][error][java] exec fallback: %v\n", err)
		return 1
	}
	// Exec replaces the process image on success and never returns here;
	// on non-Linux platforms fallback.Exec calls os.Exit itself.
	return 0
}

// poolAttemptTimeout bounds how long the whole pool attempt (every slot,
// every retry) may take before falling back, derived from the configured
// per-connect retry budget so a wedged pool can't hang the launcher
// forever.
func poolAttemptTimeout(cfg poolconfig.Config) time.Duration {
	budget := time.Duration(cfg.RetryCount) * (cfg.RetryDelay + 5*time.Millisecond) * time.Duration(cfg.PoolSize)
	if budget <= 0 {
		return 30 * time.Second
	}
	return budget
}
