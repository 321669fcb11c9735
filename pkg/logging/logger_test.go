package logging

import (
	"os"
	"path/filepath"
	"testing"

	"podcastle/pkg/config"
)

func TestInit_CreatesLogFiles(t *testing.T) {
	dir := t.TempDir()
	cfg := &config.LogConfig{
		Server:   config.LogSettings{Path: filepath.Join(dir, "server.log"), Level: "INFO"},
		Requests: config.LogSettings{Path: filepath.Join(dir, "requests.log"), Level: "DEBUG"},
	}

	cleanup, err := Init(cfg)
	if err != nil {
		t.Fatalf("Init failed: %v", err)
	}
	defer cleanup()

	if _, err := os.Stat(cfg.Server.Path); err != nil {
		t.Errorf("server log not created: %v", err)
	}
	if _, err := os.Stat(cfg.Requests.Path); err != nil {
		t.Errorf("requests log not created: %v", err)
	}
	if RequestLogger == nil {
		t.Error("RequestLogger not initialized")
	}
}

func TestInit_RotatesExisting(t *testing.T) {
	dir := t.TempDir()
	serverPath := filepath.Join(dir, "server.log")
	if err := os.WriteFile(serverPath, []byte("previous run\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg := &config.LogConfig{
		Server:   config.LogSettings{Path: serverPath, Level: "INFO"},
		Requests: config.LogSettings{Path: filepath.Join(dir, "requests.log"), Level: "INFO"},
	}

	cleanup, err := Init(cfg)
	if err != nil {
		t.Fatalf("Init failed: %v", err)
	}
	defer cleanup()

	old, err := os.ReadFile(serverPath + ".old")
	if err != nil {
		t.Fatalf("rotated log missing: %v", err)
	}
	if string(old) != "previous run\n" {
		t.Errorf("rotated content = %q", old)
	}
}
