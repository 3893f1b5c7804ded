package wire

import (
	"net"
	"os"
	"testing"

	"golang.org/x/sys/unix"
)

// connPair returns two ends of a connected Unix stream socket, wrapped as
// *net.UnixConn, for exercising the frame/fd primitives without a real
// listener.
func connPair(t *testing.T) (*Conn, *Conn, func()) {
	t.Helper()
	fds, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_STREAM, 0)
	if err != nil {
		t.Fatalf("socketpair: %v", err)
	}

	a, err := net.FileConn(os.NewFile(uintptr(fds[0]), "a"))
	if err != nil {
		t.Fatalf("FileConn a: %v", err)
	}
	b, err := net.FileConn(os.NewFile(uintptr(fds[1]), "b"))
	if err != nil {
		t.Fatalf("FileConn b: %v", err)
	}

	ua, ok := a.(*net.UnixConn)
	if !ok {
		t.Fatalf("a is not *net.UnixConn: %T", a)
	}
	ub, ok := b.(*net.UnixConn)
	if !ok {
		t.Fatalf("b is not *net.UnixConn: %T", b)
	}

	cleanup := func() {
		a.Close()
		b.Close()
	}
	return New(ua), New(ub), cleanup
}

func TestInt32RoundTrip(t *testing.T) {
	client, server, cleanup := connPair(t)
	defer cleanup()

	go func() {
		if err := client.WriteInt32(42); err != nil {
			t.Error(err)
		}
	}()

	got, err := server.ReadInt32()
	if err != nil {
		t.Fatalf("ReadInt32: %v", err)
	}
	if got != 42 {
		t.Errorf("got %d, want 42", got)
	}
}

func TestInt32RoundTripNegative(t *testing.T) {
	client, server, cleanup := connPair(t)
	defer cleanup()

	go func() {
		if err := client.WriteInt32(-1); err != nil {
			t.Error(err)
		}
	}()

	got, err := server.ReadInt32()
	if err != nil {
		t.Fatalf("ReadInt32: %v", err)
	}
	if got != -1 {
		t.Errorf("got %d, want -1", got)
	}
}

func TestFrameRoundTrip(t *testing.T) {
	client, server, cleanup := connPair(t)
	defer cleanup()

	payload := []byte("hello pool slot")
	go func() {
		if err := client.WriteFrame(payload); err != nil {
			t.Error(err)
		}
	}()

	buf := make([]byte, len(payload))
	if err := server.ReadFrame(buf); err != nil {
		t.Fatalf("ReadFrame: %v", err)
	}
	if string(buf) != string(payload) {
		t.Errorf("got %q, want %q", buf, payload)
	}
}

func TestWriteFDReadFD(t *testing.T) {
	client, server, cleanup := connPair(t)
	defer cleanup()

	tmp, err := os.CreateTemp(t.TempDir(), "fd-passing")
	if err != nil {
		t.Fatal(err)
	}
	defer tmp.Close()
	if _, err := tmp.WriteString("stdio payload"); err != nil {
		t.Fatal(err)
	}

	go func() {
		if err := client.WriteFD(7, int(tmp.Fd())); err != nil {
			t.Error(err)
		}
	}()

	payload, fd, err := server.ReadFD()
	if err != nil {
		t.Fatalf("ReadFD: %v", err)
	}
	if payload != 7 {
		t.Errorf("payload = %d, want 7", payload)
	}
	if fd < 0 {
		t.Fatalf("expected a received fd, got %d", fd)
	}
	defer unix.Close(fd)

	got := make([]byte, 64)
	n, err := unix.Pread(fd, got, 0)
	if err != nil {
		t.Fatalf("pread received fd: %v", err)
	}
	if string(got[:n]) != "stdio payload" {
		t.Errorf("received fd content = %q, want %q", got[:n], "stdio payload")
	}
}

func TestReadFDWithoutAncillaryDataReturnsNegativeOne(t *testing.T) {
	client, server, cleanup := connPair(t)
	defer cleanup()

	go func() {
		if err := client.WriteInt32(0); err != nil {
			t.Error(err)
		}
	}()

	payload, fd, err := server.ReadFD()
	if err != nil {
		t.Fatalf("ReadFD: %v", err)
	}
	if payload != 0 {
		t.Errorf("payload = %d, want 0", payload)
	}
	if fd != -1 {
		t.Errorf("fd = %d, want -1 for a terminator frame", fd)
	}
}
