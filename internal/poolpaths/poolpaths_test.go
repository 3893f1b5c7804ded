package poolpaths

import (
	"path/filepath"
	"testing"
)

func TestDataRootUnderBin(t *testing.T) {
	got := dataRoot("/opt/hottub/bin/java")
	want := filepath.Join("/opt/hottub", DataDirName)
	if got != want {
		t.Errorf("dataRoot(.../bin/java) = %q, want %q", got, want)
	}
}

func TestDataRootNotUnderBin(t *testing.T) {
	got := dataRoot("/home/dev/build/java")
	want := filepath.Join("/home/dev/build", DataDirName)
	if got != want {
		t.Errorf("dataRoot(non-bin path) = %q, want %q", got, want)
	}
}

func TestResolveExecRealSuffix(t *testing.T) {
	paths, err := Resolve()
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if filepath.Base(paths.ExecReal) == "" {
		t.Fatalf("ExecReal is empty")
	}
	wantSuffix := realSuffix
	if got := paths.ExecReal[len(paths.ExecReal)-len(wantSuffix):]; got != wantSuffix {
		t.Errorf("ExecReal = %q, want suffix %q", paths.ExecReal, wantSuffix)
	}
	if paths.DataRoot == "" {
		t.Errorf("DataRoot is empty")
	}
}
