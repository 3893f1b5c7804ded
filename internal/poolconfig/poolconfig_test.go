package poolconfig

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func withTempDir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	SetDir(dir)
	t.Cleanup(func() { SetDir("") })
	return dir
}

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	withTempDir(t)
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	want := Defaults()
	if *cfg != want {
		t.Errorf("Load() = %+v, want defaults %+v", *cfg, want)
	}
}

func TestLoadMergesFileOverDefaults(t *testing.T) {
	dir := withTempDir(t)
	content := "pool_size = 9\ntag = \"fleet-a\"\n"
	if err := os.WriteFile(filepath.Join(dir, "hottub.toml"), []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.PoolSize != 9 {
		t.Errorf("PoolSize = %d, want 9", cfg.PoolSize)
	}
	if cfg.Tag != "fleet-a" {
		t.Errorf("Tag = %q, want fleet-a", cfg.Tag)
	}
	// Unset fields still fall back to the defaults.
	if cfg.RetryCount != Defaults().RetryCount {
		t.Errorf("RetryCount = %d, want default %d", cfg.RetryCount, Defaults().RetryCount)
	}
}

func TestLoadMalformedTOML(t *testing.T) {
	dir := withTempDir(t)
	if err := os.WriteFile(filepath.Join(dir, "hottub.toml"), []byte("not valid [[ toml"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(); err == nil {
		t.Error("expected malformed TOML to produce an error")
	}
}

func TestEnvOverridesFile(t *testing.T) {
	dir := withTempDir(t)
	if err := os.WriteFile(filepath.Join(dir, "hottub.toml"), []byte("pool_size = 3\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("HOTTUB_POOL_SIZE", "12")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.PoolSize != 12 {
		t.Errorf("PoolSize = %d, want 12 (env override)", cfg.PoolSize)
	}
}

func TestEnvVerboseAcceptsTrueAndOne(t *testing.T) {
	withTempDir(t)
	for _, v := range []string{"1", "true", "TRUE"} {
		t.Setenv("HOTTUB_VERBOSE", v)
		cfg, err := Load()
		if err != nil {
			t.Fatalf("Load: %v", err)
		}
		if !cfg.Verbose {
			t.Errorf("HOTTUB_VERBOSE=%q: Verbose = false, want true", v)
		}
	}
}

func TestGetSetRoundTrip(t *testing.T) {
	withTempDir(t)
	if err := Set("pool_size", "7"); err != nil {
		t.Fatalf("Set: %v", err)
	}
	got, err := Get("pool_size")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got != "7" {
		t.Errorf("Get(pool_size) = %q, want 7", got)
	}

	if err := Set("retry_delay", "500ms"); err != nil {
		t.Fatalf("Set: %v", err)
	}
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.RetryDelay != 500*time.Millisecond {
		t.Errorf("RetryDelay = %v, want 500ms", cfg.RetryDelay)
	}
}

func TestGetSetUnknownKeyFails(t *testing.T) {
	withTempDir(t)
	if _, err := Get("bogus"); err == nil {
		t.Error("expected Get of an unknown key to fail")
	}
	if err := Set("bogus", "x"); err == nil {
		t.Error("expected Set of an unknown key to fail")
	}
}

func TestSetInvalidValueFails(t *testing.T) {
	withTempDir(t)
	if err := Set("pool_size", "not-a-number"); err == nil {
		t.Error("expected Set(pool_size, non-numeric) to fail")
	}
}
