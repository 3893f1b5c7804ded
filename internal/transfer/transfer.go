// Package transfer implements C5: handing an invocation's context — stdio
// descriptors, program arguments, VM options, working directory and
// environment — across an already-connected pool slot. The message order
// below is taken directly from java.c's send_fds/send_args/
// send_working_dir/send_env_var sequence (spec §4.5), including the
// somewhat surprising choice to send argv_program before the -D options.
package transfer

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"

	"github.com/dsrg-uoft/hottub/internal/wire"
)

// Context is everything a pool slot needs to run one invocation on behalf
// of a client, gathered client-side before the transfer begins.
type Context struct {
	// ArgvProgram is the user program and its arguments (fingerprint.Invocation.ArgvProgram).
	ArgvProgram []string

	// VMOptions are the raw "-Dkey=value" strings, in original argv order
	// (spec §4.1 step 2a identifies them; this package forwards the literal
	// strings rather than re-deriving them).
	VMOptions []string

	// Dir is the client's working directory. If empty, Send resolves it
	// with os.Getwd.
	Dir string

	// Env is the client's environment in "KEY=VALUE" form. If nil, Send
	// uses os.Environ().
	Env []string
}

// stdioFDCount is the number of inherited descriptors sent: stdin, stdout,
// stderr (spec §4.5 step 1, java.c send_fds: "only send stdin, stdout,
// stderr").
const stdioFDCount = 3

// Send transfers ctx over conn in the fixed order the original protocol
// uses: stdio fds terminated by a sentinel frame, then argv_program,
// then -D options, then the working directory, then the environment
// terminated by a zero-length entry.
func Send(conn *wire.Conn, ctx Context) error {
	if err := sendFDs(conn); err != nil {
		return fmt.Errorf("sending stdio fds: %w", err)
	}
	if err := sendArgs(conn, ctx.ArgvProgram, ctx.VMOptions); err != nil {
		return fmt.Errorf("sending args: %w", err)
	}
	if err := sendWorkingDir(conn, ctx.Dir); err != nil {
		return fmt.Errorf("sending working dir: %w", err)
	}
	if err := sendEnv(conn, ctx.Env); err != nil {
		return fmt.Errorf("sending environment: %w", err)
	}
	return nil
}

// sendFDs sends whichever of stdin/stdout/stderr are currently open, each
// preceded by its own index as the plain payload (java.c passes `&fd` as
// the accompanying int), then a final frame with no ancillary data as a
// terminator (spec §4.5 step 1: "For fd ∈ {0,1,2}, if open, send…").
// java.c's send_fds guards every fd with fcntl(fd, F_GETFD) before sending
// it; a closed fd (e.g. a launcher run under a supervisor with stdin
// closed) is skipped rather than handed to sendmsg.
func sendFDs(conn *wire.Conn) error {
	sent := 0
	for fd := 0; fd < stdioFDCount; fd++ {
		if _, err := unix.FcntlInt(uintptr(fd), unix.F_GETFD, 0); err != nil {
			continue
		}
		if err := conn.WriteFD(int32(fd), fd); err != nil {
			return fmt.Errorf("fd %d: %w", fd, err)
		}
		sent++
	}
	return conn.WriteInt32(int32(sent))
}

// sendArgs sends argv_program (count, then each length-prefixed, NUL
// terminated string) followed by the -D options in the same shape,
// matching java.c send_args's two-block layout.
func sendArgs(conn *wire.Conn, argvProgram, vmOptions []string) error {
	if err := conn.WriteInt32(int32(len(argvProgram))); err != nil {
		return err
	}
	for i, a := range argvProgram {
		if err := sendCString(conn, a); err != nil {
			return fmt.Errorf("program arg %d: %w", i, err)
		}
	}

	if err := conn.WriteInt32(int32(len(vmOptions))); err != nil {
		return err
	}
	for i, d := range vmOptions {
		if err := sendCString(conn, d); err != nil {
			return fmt.Errorf("vm option %d: %w", i, err)
		}
	}
	return nil
}

// sendCString writes len(s)+1 (the NUL terminator width java.c's
// strlen(val)+1 always includes) followed by s itself plus one NUL byte.
func sendCString(conn *wire.Conn, s string) error {
	if err := conn.WriteInt32(int32(len(s) + 1)); err != nil {
		return err
	}
	return conn.WriteFrame(append([]byte(s), 0))
}

// sendWorkingDir sends dir's length then its bytes, no terminator (spec
// §4.5 step 3). If dir is empty, the process's current directory is used.
func sendWorkingDir(conn *wire.Conn, dir string) error {
	if dir == "" {
		wd, err := os.Getwd()
		if err != nil {
			return fmt.Errorf("resolving working directory: %w", err)
		}
		dir = wd
	}
	if err := conn.WriteInt32(int32(len(dir))); err != nil {
		return err
	}
	return conn.WriteFrame([]byte(dir))
}

// sendEnv sends each "KEY=VALUE" entry length-prefixed with no terminator
// byte, followed by a zero-length frame as the end marker (spec §4.5 step
// 4, java.c send_env_var).
func sendEnv(conn *wire.Conn, env []string) error {
	if env == nil {
		env = os.Environ()
	}
	for _, e := range env {
		if err := conn.WriteInt32(int32(len(e))); err != nil {
			return err
		}
		if err := conn.WriteFrame([]byte(e)); err != nil {
			return err
		}
	}
	return conn.WriteInt32(0)
}

// Receive is the slot-side counterpart to Send, used by a pool server
// reconstructing an invocation's context. It mirrors Send's framing
// exactly; any error here means the wire protocol desynchronized and the
// connection must be abandoned (spec §4.5, §7: this is fatal-to-slot, not
// fatal-to-pooling — the client still has its own copy of argv).
type Received struct {
	StdioFDs    [stdioFDCount]int
	ArgvProgram []string
	VMOptions   []string
	Dir         string
	Env         []string
}

// Receive reads one full Context off conn.
func Receive(conn *wire.Conn) (*Received, error) {
	r := &Received{}
	for i := range r.StdioFDs {
		r.StdioFDs[i] = -1
	}

	for {
		payload, fd, err := conn.ReadFD()
		if err != nil {
			return nil, fmt.Errorf("reading fd %d: %w", payload, err)
		}
		if fd == -1 {
			break
		}
		if int(payload) < 0 || int(payload) >= stdioFDCount {
			return nil, fmt.Errorf("fd index %d out of range", payload)
		}
		r.StdioFDs[payload] = fd
	}

	argc, err := conn.ReadInt32()
	if err != nil {
		return nil, fmt.Errorf("reading argv_program count: %w", err)
	}
	r.ArgvProgram = make([]string, argc)
	for i := range r.ArgvProgram {
		s, err := recvCString(conn)
		if err != nil {
			return nil, fmt.Errorf("program arg %d: %w", i, err)
		}
		r.ArgvProgram[i] = s
	}

	dcount, err := conn.ReadInt32()
	if err != nil {
		return nil, fmt.Errorf("reading vm option count: %w", err)
	}
	r.VMOptions = make([]string, dcount)
	for i := range r.VMOptions {
		s, err := recvCString(conn)
		if err != nil {
			return nil, fmt.Errorf("vm option %d: %w", i, err)
		}
		r.VMOptions[i] = s
	}

	dirLen, err := conn.ReadInt32()
	if err != nil {
		return nil, fmt.Errorf("reading working dir length: %w", err)
	}
	dirBuf := make([]byte, dirLen)
	if err := conn.ReadFrame(dirBuf); err != nil {
		return nil, fmt.Errorf("reading working dir: %w", err)
	}
	r.Dir = string(dirBuf)

	for {
		l, err := conn.ReadInt32()
		if err != nil {
			return nil, fmt.Errorf("reading env entry length: %w", err)
		}
		if l == 0 {
			break
		}
		buf := make([]byte, l)
		if err := conn.ReadFrame(buf); err != nil {
			return nil, fmt.Errorf("reading env entry: %w", err)
		}
		r.Env = append(r.Env, string(buf))
	}

	return r, nil
}

func recvCString(conn *wire.Conn) (string, error) {
	l, err := conn.ReadInt32()
	if err != nil {
		return "", err
	}
	if l <= 0 {
		return "", fmt.Errorf("invalid c-string length %d", l)
	}
	buf := make([]byte, l)
	if err := conn.ReadFrame(buf); err != nil {
		return "", err
	}
	// Strip the trailing NUL the sender always appends.
	if buf[len(buf)-1] == 0 {
		buf = buf[:len(buf)-1]
	}
	return string(buf), nil
}
