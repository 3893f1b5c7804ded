// Package poolpaths resolves the launcher's own location on disk (C2):
// the co-located "real" VM binary and the per-pool data root. It is the
// single owner of path layout for this subsystem.
package poolpaths

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// DataDirName is the directory (sibling of "bin") holding all pool slot
// directories, matching the original hottub/data layout from spec §4.2.
const DataDirName = "hottub/data"

// realSuffix is appended to the launcher's own path to find the real,
// un-intercepted VM binary (spec §4.2, §6).
const realSuffix = "_real"

// Paths holds the two locations C2 is responsible for resolving.
type Paths struct {
	// ExecReal is the path to the real VM binary: the launcher's own
	// executable path with "_real" appended.
	ExecReal string

	// DataRoot is the directory under which every pool slot directory is
	// created: the launcher's executable path with the trailing
	// "bin/java" (or platform equivalent) replaced by DataDirName.
	DataRoot string
}

// Resolve locates ExecReal and DataRoot from the currently running
// executable. Both operations fail closed per spec §4.2: if the launcher
// cannot determine its own path, pooling AND the fallback exec are both
// impossible, so the caller must report failure and exit non-zero rather
// than silently continuing.
func Resolve() (*Paths, error) {
	self, err := os.Executable()
	if err != nil {
		return nil, fmt.Errorf("resolving self path: %w", err)
	}
	self, err = filepath.EvalSymlinks(self)
	if err != nil {
		return nil, fmt.Errorf("resolving self path symlinks: %w", err)
	}

	return &Paths{
		ExecReal: self + realSuffix,
		DataRoot: dataRoot(self),
	}, nil
}

// dataRoot strips a trailing "bin/<exe>" path segment and replaces it
// with DataDirName, exactly mirroring create_datapath in java.c (which
// hardcodes stripping 8 bytes, the length of "bin/java").
func dataRoot(selfPath string) string {
	dir := filepath.Dir(selfPath) // .../bin
	root := filepath.Dir(dir)     // one level above bin/
	if strings.HasSuffix(filepath.ToSlash(dir), "/bin") || filepath.Base(dir) == "bin" {
		return filepath.Join(root, DataDirName)
	}
	// Not installed under a conventional bin/ directory (e.g. run from a
	// build output dir in development) — fall back to a sibling directory
	// of the executable itself rather than climbing further than we know
	// is safe.
	return filepath.Join(dir, DataDirName)
}
