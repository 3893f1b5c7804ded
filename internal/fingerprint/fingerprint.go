// Package fingerprint derives a stable pool identity from an invocation's
// argument vector and classpath contents (C1, spec §4.1). The algorithm's
// order is load-bearing — spec.md is explicit that changing the order
// changes the id — so this file follows java.c:compute_id step for step,
// except that the argument ending the VM-option scan is not fed to the
// digest and opens ArgvProgram (see DESIGN.md, C1).
package fingerprint

import (
	"crypto/md5" //nolint:gosec // identity digest, not a security boundary (spec §4.1)
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/asaskevich/govalidator"
)

// IDLen is the width of the rendered id: 1 reserved byte + 32 hex digest
// bytes + 1 slot byte, matching spec §3's "34-byte printable token".
const IDLen = 34

// separatorByte is the placeholder the coordinator overwrites with the
// slot digit as it tries successive pool slots (spec §4.1 step 5, §9).
const separatorByte = '_'

// ID is the 34-byte pool identity token. Byte 0 is '/' when used as a
// path component and is overwritten with NUL when used as a socket
// address (spec §3, §9) — SocketName and PathComponent perform that
// conversion without mutating the shared backing array in place, so a
// single ID value can be safely reused for both purposes.
type ID [IDLen]byte

// String renders the id with its path-component leading byte ('/').
func (id ID) String() string {
	b := id
	b[0] = '/'
	return string(b[:])
}

// SocketName renders the id as an abstract-namespace socket address: the
// leading byte is NUL, placing the name outside the filesystem namespace
// (spec §3, §6).
func (id ID) SocketName() string {
	b := id
	b[0] = 0
	return string(b[:])
}

// WithSlot returns a copy of id with the trailing slot byte set to the
// given slot index (spec §4.1 step 5: "suffix with one slot byte,
// initialized to '_', overwritten later by the coordinator").
func (id ID) WithSlot(slot int) ID {
	b := id
	b[IDLen-1] = byte('0' + slot)
	return b
}

// Invocation is the result of fingerprinting one argv, split into the
// parts spec §3's "Invocation Context" names.
type Invocation struct {
	ID ID

	// VMOptionCount is the number of -D<key>[=<value>] arguments seen
	// (spec §3: argv_vm_opts).
	VMOptionCount int

	// VMOptionStrings holds the literal -D<key>[=<value>] arguments, in
	// original argv order, for callers (internal/coordinator) that must
	// forward them verbatim over the wire.
	VMOptionStrings []string

	// ArgvProgram is the remainder after the VM-option block: the user
	// program and its arguments (spec §3: argv_program).
	ArgvProgram []string

	// Classpath is the resolved classpath used to feed file contents into
	// the digest (spec §4.1 step 3).
	Classpath string
}

// IsVMOption reports whether a an argument matches the -D<key>[=<value>]
// convention used to identify VM configuration options (spec §4.1 step
// 2a: "begins with -D and has length >= 3").
func IsVMOption(arg string) bool {
	return len(arg) >= 3 && strings.HasPrefix(arg, "-D")
}

// Compute fingerprints argvAll (argv[0] is the program name and is never
// fed to the digest, per spec §4.1 step 2 "Walk argv_all from index 1").
// Any failure to read a classpath file aborts fingerprinting entirely
// (spec §4.1 "Error handling"); callers should treat a non-nil error as
// fatal-to-pooling and fall through to C6.
func Compute(argvAll []string) (*Invocation, error) {
	h := md5.New() //nolint:gosec // see import comment

	var classpath string
	classpathSet := false
	programStart := len(argvAll)
	vmOptCount := 0
	var vmOpts []string

	i := 1
	for ; i < len(argvAll); i++ {
		a := argvAll[i]

		if IsVMOption(a) {
			vmOptCount++
			vmOpts = append(vmOpts, a)
			continue
		}

		if a != "-classpath" && a != "-cp" && strings.HasPrefix(a, "-") {
			// Still part of the VM-option block (but not a -D option):
			// feed it and continue scanning.
			fmt.Fprint(h, a)
		} else if a == "-classpath" || a == "-cp" {
			fmt.Fprint(h, a)
			if i+1 < len(argvAll) {
				i++
				classpath = argvAll[i]
				classpathSet = true
				fmt.Fprint(h, argvAll[i])
			}
		} else {
			// First non-flag argument: scanning stops here, per spec
			// §4.1 step 2d.
			programStart = i
			break
		}
	}
	if i >= len(argvAll) {
		programStart = len(argvAll)
	}

	if !classpathSet {
		if v, ok := os.LookupEnv("CLASSPATH"); ok {
			classpath = v
		} else {
			classpath = "."
		}
	}

	if err := addClasspath(h, classpath); err != nil {
		return nil, fmt.Errorf("hashing classpath: %w", err)
	}

	digest := h.Sum(nil)

	var id ID
	id[0] = '/'
	for j, b := range digest {
		hex := fmt.Sprintf("%02x", b)
		id[1+j*2] = hex[0]
		id[1+j*2+1] = hex[1]
	}
	id[IDLen-1] = separatorByte

	if !govalidator.IsPrintableASCII(string(id[:])) {
		return nil, fmt.Errorf("computed id is not printable ASCII: %q", id[:])
	}

	return &Invocation{
		ID:              id,
		VMOptionCount:   vmOptCount,
		VMOptionStrings: vmOpts,
		ArgvProgram:     append([]string(nil), argvAll[programStart:]...),
		Classpath:       classpath,
	}, nil
}

// addClasspath walks a colon-separated classpath, feeding jar contents
// into h. Per spec §4.1 step 4 / §9's open questions, loose class
// directories are silently ignored — acknowledged incompleteness, not a
// bug to fix.
func addClasspath(h interface{ Write([]byte) (int, error) }, classpath string) error {
	for _, entry := range strings.Split(classpath, ":") {
		if entry == "" {
			continue
		}
		switch {
		case isWildcard(entry):
			if err := addWildcard(h, entry); err != nil {
				return err
			}
		case strings.HasSuffix(entry, ".jar"):
			if err := addFile(h, entry); err != nil {
				return err
			}
		default:
			// Ignored: see spec §9 open question on loose class dirs.
		}
	}
	return nil
}

// isWildcard matches classpath entries of the form "dir/*" where dir
// exists, per spec §4.1 step 4.
func isWildcard(entry string) bool {
	if !strings.HasSuffix(entry, "*") {
		return false
	}
	dir := strings.TrimSuffix(entry, "*")
	if dir == "" {
		return true
	}
	if !strings.HasSuffix(dir, "/") {
		return false
	}
	dir = strings.TrimSuffix(dir, "/")
	info, err := os.Stat(dir)
	return err == nil && info.IsDir()
}

func addWildcard(h interface{ Write([]byte) (int, error) }, wildcard string) error {
	dir := strings.TrimSuffix(wildcard, "*")
	dir = strings.TrimSuffix(dir, "/")
	if dir == "" {
		dir = "."
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("listing wildcard dir %s: %w", dir, err)
	}
	for _, e := range entries {
		if strings.HasSuffix(e.Name(), ".jar") {
			if err := addFile(h, filepath.Join(dir, e.Name())); err != nil {
				return err
			}
		}
	}
	return nil
}

// addFile feeds a jar's raw bytes into h. It reads in fixed 1024-byte
// chunks and always feeds the full buffer size to the digest even on a
// short final read, reproducing the original md5add_file's documented
// defect (spec §9: "A faithful rewrite must reproduce it; a corrected
// rewrite is a compatibility break").
func addFile(h interface{ Write([]byte) (int, error) }, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("opening classpath entry %s: %w", path, err)
	}
	defer f.Close()

	buf := make([]byte, 1024)
	for {
		n, err := f.Read(buf)
		if n > 0 {
			if _, werr := h.Write(buf); werr != nil {
				return werr
			}
		}
		if err != nil {
			break
		}
	}
	return nil
}
