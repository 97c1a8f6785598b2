package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/danmuck/txprocessor/internal/testutil/testlog"
)

func TestWriteThenValidate(t *testing.T) {
	testlog.Start(t)
	path := filepath.Join(t.TempDir(), "config.toml")

	var out bytes.Buffer
	if err := run([]string{"--output", path}, &out); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := run([]string{"--output", path}, &out); err == nil {
		t.Fatalf("expected refusal to overwrite without --force")
	}
	if err := run([]string{"--output", path, "--force"}, &out); err != nil {
		t.Fatalf("write with --force: %v", err)
	}

	out.Reset()
	if err := run([]string{"--validate", "--input", path}, &out); err != nil {
		t.Fatalf("validate: %v", err)
	}
	if !strings.Contains(out.String(), "endpoint=tcp://localhost:4004") {
		t.Fatalf("unexpected validate output %q", out.String())
	}
}

func TestValidateRejectsBadConfig(t *testing.T) {
	testlog.Start(t)
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte("workers = 0\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if err := run([]string{"--validate", "-i", path}, &bytes.Buffer{}); err == nil {
		t.Fatalf("expected validation error")
	}
}
