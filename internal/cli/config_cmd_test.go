package cli

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestConfigCmd_InitThenValidate(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tollgate.json")

	var out bytes.Buffer
	cmd := NewRootCmd()
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"config", "init", "--output", path})
	if err := cmd.Execute(); err != nil {
		t.Fatalf("config init failed: %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("example config not written: %v", err)
	}

	out.Reset()
	cmd = NewRootCmd()
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"config", "validate", "--file", path})
	if err := cmd.Execute(); err != nil {
		t.Fatalf("config validate failed on example: %v", err)
	}
	if !strings.Contains(out.String(), "is valid") {
		t.Errorf("output = %q", out.String())
	}
}

func TestConfigCmd_ValidateRejectsBadLimiter(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.json")
	if err := os.WriteFile(path, []byte(`{ "limiter": { "cost": "2s", "grace": "1s" } }`), 0o644); err != nil {
		t.Fatal(err)
	}

	cmd := NewRootCmd()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"config", "validate", "--file", path})
	if err := cmd.Execute(); err == nil {
		t.Fatal("expected validation error")
	}
}
