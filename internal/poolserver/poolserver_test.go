package poolserver

import (
	"context"
	"net"
	"os"
	"testing"
	"time"

	"github.com/dsrg-uoft/hottub/internal/clinit"
	"github.com/dsrg-uoft/hottub/internal/fingerprint"
	"github.com/dsrg-uoft/hottub/internal/transfer"
	"github.com/dsrg-uoft/hottub/internal/wire"
)

type recordingRunner struct {
	exitCode int
	got      chan *transfer.Received
}

func (r recordingRunner) Run(ctx context.Context, rec *transfer.Received) (int, error) {
	if r.got != nil {
		r.got <- rec
	}
	return r.exitCode, nil
}

func newTestSlotID(t *testing.T, tag string) fingerprint.ID {
	t.Helper()
	inv, err := fingerprint.Compute([]string{"java", tag, "Main"})
	if err != nil {
		t.Fatalf("Compute: %v", err)
	}
	return inv.ID.WithSlot(0)
}

func TestServeHandlesOneInvocationAndReturnsExitCode(t *testing.T) {
	slotID := newTestSlotID(t, "-Dserve-test=1")
	got := make(chan *transfer.Received, 1)
	srv := &Server{SlotID: slotID, Runner: recordingRunner{exitCode: 5, got: got}}
	if err := srv.Listen(); err != nil {
		t.Fatalf("Listen: %v", err)
	}
	defer srv.Shutdown()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	go srv.Serve(ctx)

	conn, err := net.DialUnix("unix", nil, &net.UnixAddr{Name: slotID.SocketName(), Net: "unix"})
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	w := wire.New(conn)
	if err := transfer.Send(w, transfer.Context{ArgvProgram: []string{"Main"}}); err != nil {
		t.Fatalf("Send: %v", err)
	}

	exitCode, err := w.ReadInt32()
	if err != nil {
		t.Fatalf("ReadInt32: %v", err)
	}
	if exitCode != 5 {
		t.Errorf("exitCode = %d, want 5", exitCode)
	}

	select {
	case rec := <-got:
		if len(rec.ArgvProgram) != 1 || rec.ArgvProgram[0] != "Main" {
			t.Errorf("ArgvProgram = %v, want [Main]", rec.ArgvProgram)
		}
	case <-time.After(time.Second):
		t.Fatal("runner was never invoked")
	}
}

func TestServeRunsClinitAnalysisWhenConfigured(t *testing.T) {
	slotID := newTestSlotID(t, "-Dclinit-test=1")
	vm := clinit.NewFake()
	vm.Bodies[clinit.Method{Class: "Main", Name: "<clinit>", Signature: "()V"}] = nil
	vm.Reinit["Main"] = true

	srv := &Server{
		SlotID:   slotID,
		Runner:   recordingRunner{exitCode: 0},
		Analyzer: clinit.NewAnalyzer(vm),
	}
	if err := srv.Listen(); err != nil {
		t.Fatalf("Listen: %v", err)
	}
	defer srv.Shutdown()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	go srv.Serve(ctx)

	conn, err := net.DialUnix("unix", nil, &net.UnixAddr{Name: slotID.SocketName(), Net: "unix"})
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	w := wire.New(conn)
	if err := transfer.Send(w, transfer.Context{ArgvProgram: []string{"Main"}}); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if _, err := w.ReadInt32(); err != nil {
		t.Fatalf("ReadInt32: %v", err)
	}

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if len(vm.Called) > 0 {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	if len(vm.Called) != 1 || vm.Called[0] != "Main" {
		t.Errorf("vm.Called = %v, want [Main]", vm.Called)
	}
}

func TestDirectRunnerReturnsChildExitCode(t *testing.T) {
	devnull, err := os.OpenFile(os.DevNull, os.O_RDWR, 0)
	if err != nil {
		t.Fatal(err)
	}
	defer devnull.Close()

	runner := DirectRunner{ExecReal: "/bin/sh"}
	rec := &transfer.Received{
		StdioFDs:    [3]int{int(devnull.Fd()), int(devnull.Fd()), int(devnull.Fd())},
		ArgvProgram: []string{"-c", "exit 3"},
		Dir:         os.TempDir(),
		Env:         os.Environ(),
	}
	code, err := runner.Run(context.Background(), rec)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if code != 3 {
		t.Errorf("exit code = %d, want 3", code)
	}
}

func TestDirectRunnerSucceedsWithZeroExit(t *testing.T) {
	runner := DirectRunner{ExecReal: "/bin/sh"}
	rec := &transfer.Received{
		StdioFDs:    [3]int{-1, -1, -1},
		ArgvProgram: []string{"-c", "exit 0"},
		Env:         os.Environ(),
	}
	code, err := runner.Run(context.Background(), rec)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if code != 0 {
		t.Errorf("exit code = %d, want 0", code)
	}
}
