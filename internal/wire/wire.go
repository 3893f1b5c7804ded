// Package wire implements the length-prefixed framing and single-fd
// ancillary-data passing described in spec §4.3 (C3), over a
// *net.UnixConn. Out-of-band control messages are parsed with
// golang.org/x/sys/unix, the same low-level approach raw ioctl/fadvise
// calls need, applied here to SCM_RIGHTS instead.
package wire

import (
	"encoding/binary"
	"fmt"
	"net"

	"golang.org/x/sys/unix"
)

// frameWidth is the width of a plain or fd-bearing frame's payload: one
// platform int, matching java.c's use of `sizeof(int)` throughout (spec
// §4.3, §6).
const frameWidth = 4

// Conn wraps a *net.UnixConn with the frame primitives C3 requires.
type Conn struct {
	uc *net.UnixConn
}

// New wraps an established *net.UnixConn.
func New(uc *net.UnixConn) *Conn { return &Conn{uc: uc} }

// Close closes the underlying connection. Per spec §4.3, closing without
// receiving a pending reply is permitted on any error path.
func (c *Conn) Close() error { return c.uc.Close() }

// WriteFrame sends a plain frame: an iovec carrying exactly len(payload)
// bytes, retried until fully written or a hard error occurs (spec §4.3:
// "short sends must be retried"). net.Conn.Write already guarantees a
// full write or an error for stream sockets, but we loop defensively
// since the spec treats this as a hard requirement of the implementation,
// not an assumption about the transport.
func (c *Conn) WriteFrame(payload []byte) error {
	for written := 0; written < len(payload); {
		n, err := c.uc.Write(payload[written:])
		if err != nil {
			return fmt.Errorf("writing frame: %w", err)
		}
		if n == 0 {
			return fmt.Errorf("writing frame: zero-byte write with %d bytes remaining", len(payload)-written)
		}
		written += n
	}
	return nil
}

// ReadFrame reads exactly len(buf) bytes into buf, retrying short reads.
func (c *Conn) ReadFrame(buf []byte) error {
	for read := 0; read < len(buf); {
		n, err := c.uc.Read(buf[read:])
		if err != nil {
			return fmt.Errorf("reading frame: %w", err)
		}
		if n == 0 {
			return fmt.Errorf("reading frame: zero-byte read with %d bytes remaining", len(buf)-read)
		}
		read += n
	}
	return nil
}

// WriteInt32 sends a single little-endian int32 as a plain frame (used
// for length prefixes and the exit-code reply, spec §6).
func (c *Conn) WriteInt32(v int32) error {
	var buf [frameWidth]byte
	binary.LittleEndian.PutUint32(buf[:], uint32(v))
	return c.WriteFrame(buf[:])
}

// ReadInt32 reads a single little-endian int32 frame.
func (c *Conn) ReadInt32() (int32, error) {
	var buf [frameWidth]byte
	if err := c.ReadFrame(buf[:]); err != nil {
		return 0, err
	}
	return int32(binary.LittleEndian.Uint32(buf[:])), nil
}

// WriteFD sends a frame-with-fd: the same frameWidth-byte payload as
// WriteInt32, plus ancillary data carrying fd. Spec §4.3: "the receiver
// inherits a duplicated descriptor."
func (c *Conn) WriteFD(payload int32, fd int) error {
	var buf [frameWidth]byte
	binary.LittleEndian.PutUint32(buf[:], uint32(payload))

	oob := unix.UnixRights(fd)
	raw, err := c.uc.SyscallConn()
	if err != nil {
		return fmt.Errorf("getting raw conn for fd send: %w", err)
	}

	var sendErr error
	ctrlErr := raw.Write(func(sysfd uintptr) bool {
		sendErr = unix.Sendmsg(int(sysfd), buf[:], oob, nil, 0)
		return sendErr != unix.EAGAIN
	})
	if ctrlErr != nil {
		return fmt.Errorf("sendmsg control: %w", ctrlErr)
	}
	if sendErr != nil {
		return fmt.Errorf("sendmsg fd=%d: %w", fd, sendErr)
	}
	return nil
}

// ReadFD reads a frame that may or may not carry ancillary fd data.
// Returns the received fd, or -1 if the frame carried no ancillary data
// (the terminator frame in the send_fds sequence, spec §4.5 step 1).
// Receiving a frame that has ancillary space allocated but zero control
// messages inside it when one was expected is a protocol error the
// caller surfaces per spec §4.3 ("Receiving an fd-bearing frame with no
// ancillary data is a protocol error").
func (c *Conn) ReadFD() (payload int32, fd int, err error) {
	buf := make([]byte, frameWidth)
	oob := make([]byte, unix.CmsgSpace(4))

	raw, err := c.uc.SyscallConn()
	if err != nil {
		return 0, -1, fmt.Errorf("getting raw conn for fd recv: %w", err)
	}

	var (
		n, oobn int
		recvErr error
	)
	ctrlErr := raw.Read(func(sysfd uintptr) bool {
		n, oobn, _, _, recvErr = unix.Recvmsg(int(sysfd), buf, oob, 0)
		return recvErr != unix.EAGAIN
	})
	if ctrlErr != nil {
		return 0, -1, fmt.Errorf("recvmsg control: %w", ctrlErr)
	}
	if recvErr != nil {
		return 0, -1, fmt.Errorf("recvmsg: %w", recvErr)
	}
	if n < frameWidth {
		return 0, -1, fmt.Errorf("recvmsg: short frame (%d bytes)", n)
	}
	payload = int32(binary.LittleEndian.Uint32(buf))

	if oobn == 0 {
		return payload, -1, nil
	}

	cmsgs, err := unix.ParseSocketControlMessage(oob[:oobn])
	if err != nil {
		return payload, -1, fmt.Errorf("parsing control message: %w", err)
	}
	if len(cmsgs) == 0 {
		return payload, -1, fmt.Errorf("fd-bearing frame carried no control messages")
	}
	fds, err := unix.ParseUnixRights(&cmsgs[0])
	if err != nil {
		return payload, -1, fmt.Errorf("parsing unix rights: %w", err)
	}
	if len(fds) == 0 {
		return payload, -1, fmt.Errorf("control message carried no rights")
	}
	return payload, fds[0], nil
}
