package logging

import (
	"compress/gzip"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
)

func TestNewRotatingWriter(t *testing.T) {
	t.Run("creates nested directories", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "nested", "dir", "test.log")

		rw, err := NewRotatingWriter(path, DefaultRotationConfig())
		if err != nil {
			t.Fatalf("NewRotatingWriter failed: %v", err)
		}
		defer func() { _ = rw.Close() }()

		if _, err := os.Stat(path); os.IsNotExist(err) {
			t.Errorf("log file was not created at %s", path)
		}
		if rw.Path() != path {
			t.Errorf("Path() = %q, want %q", rw.Path(), path)
		}
	})

	t.Run("appends to existing file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "test.log")
		if err := os.WriteFile(path, []byte("initial\n"), 0644); err != nil {
			t.Fatal(err)
		}

		rw, err := NewRotatingWriter(path, DefaultRotationConfig())
		if err != nil {
			t.Fatalf("NewRotatingWriter failed: %v", err)
		}
		defer func() { _ = rw.Close() }()

		if rw.Size() != int64(len("initial\n")) {
			t.Errorf("Size() = %d, want %d", rw.Size(), len("initial\n"))
		}
	})
}

// tinyWriter returns a writer whose limit is one megabyte but whose live
// file already holds almost that much, so the next write rotates.
func tinyWriter(t *testing.T, cfg RotationConfig) (*RotatingWriter, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "coeftune.log")
	cfg.MaxSizeMB = 1
	if err := os.WriteFile(path, []byte(strings.Repeat("x", 1<<20-4)+"\n"), 0644); err != nil {
		t.Fatal(err)
	}
	rw, err := NewRotatingWriter(path, cfg)
	if err != nil {
		t.Fatalf("NewRotatingWriter failed: %v", err)
	}
	t.Cleanup(func() { _ = rw.Close() })
	return rw, path
}

func TestRotatingWriterRotation(t *testing.T) {
	rw, path := tinyWriter(t, RotationConfig{MaxBackups: 2})

	if _, err := rw.Write([]byte("fresh line\n")); err != nil {
		t.Fatalf("Write failed: %v", err)
	}

	live, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if string(live) != "fresh line\n" {
		t.Errorf("live file = %q, want only the new line", live)
	}
	if _, err := os.Stat(rw.BackupPath(1)); err != nil {
		t.Errorf("backup .1 missing: %v", err)
	}
	if rw.Size() != int64(len("fresh line\n")) {
		t.Errorf("Size() = %d after rotation", rw.Size())
	}
}

func TestRotatingWriterKeepsMaxBackups(t *testing.T) {
	rw, _ := tinyWriter(t, RotationConfig{MaxBackups: 1})
	big := []byte(strings.Repeat("y", 1<<20-1) + "\n")

	for i := 0; i < 3; i++ {
		if _, err := rw.Write(big); err != nil {
			t.Fatalf("Write %d failed: %v", i, err)
		}
	}

	if _, err := os.Stat(rw.BackupPath(1)); err != nil {
		t.Errorf("backup .1 missing: %v", err)
	}
	if _, err := os.Stat(rw.BackupPath(2)); !os.IsNotExist(err) {
		t.Errorf("backup .2 should not exist, stat err = %v", err)
	}
}

func TestRotatingWriterCompression(t *testing.T) {
	rw, _ := tinyWriter(t, RotationConfig{MaxBackups: 2, Compress: true})

	if _, err := rw.Write([]byte("after\n")); err != nil {
		t.Fatalf("Write failed: %v", err)
	}

	if _, err := os.Stat(rw.BackupPath(1)); !os.IsNotExist(err) {
		t.Errorf("uncompressed backup should be removed, stat err = %v", err)
	}
	f, err := os.Open(rw.BackupPath(1) + ".gz")
	if err != nil {
		t.Fatalf("compressed backup missing: %v", err)
	}
	defer func() { _ = f.Close() }()

	zr, err := gzip.NewReader(f)
	if err != nil {
		t.Fatalf("gzip.NewReader: %v", err)
	}
	data, err := io.ReadAll(zr)
	if err != nil {
		t.Fatalf("read gzip: %v", err)
	}
	if len(data) != 1<<20-3 {
		t.Errorf("decompressed %d bytes, want %d", len(data), 1<<20-3)
	}
}

func TestRotatingWriterConcurrency(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.log")
	rw, err := NewRotatingWriter(path, DefaultRotationConfig())
	if err != nil {
		t.Fatal(err)
	}

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				_, _ = rw.Write([]byte("line\n"))
			}
		}()
	}
	wg.Wait()
	_ = rw.Close()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if n := strings.Count(string(data), "line\n"); n != 400 {
		t.Errorf("got %d lines, want 400", n)
	}
}

func TestRotatingWriterClose(t *testing.T) {
	rw, err := NewRotatingWriter(filepath.Join(t.TempDir(), "test.log"), DefaultRotationConfig())
	if err != nil {
		t.Fatal(err)
	}
	if err := rw.Close(); err != nil {
		t.Fatalf("Close() = %v", err)
	}
	if err := rw.Close(); err != nil {
		t.Errorf("second Close() = %v, want nil", err)
	}
	if _, err := rw.Write([]byte("x")); err == nil {
		t.Error("Write after Close should fail")
	}
	if err := rw.Sync(); err != nil {
		t.Errorf("Sync after Close = %v, want nil", err)
	}
}

func TestDefaultRotationConfig(t *testing.T) {
	cfg := DefaultRotationConfig()
	if cfg.MaxSizeMB != 10 || cfg.MaxBackups != 3 || cfg.Compress {
		t.Errorf("DefaultRotationConfig() = %+v", cfg)
	}
}
