package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
	if cfg.Server.BasePath != "/api" {
		t.Fatalf("unexpected base path %q", cfg.Server.BasePath)
	}
	if !cfg.AttachmentsEnabled() {
		t.Fatalf("attachments should be enabled by default")
	}
}

func TestFromYAMLKeepsDefaults(t *testing.T) {
	cfg, err := FromYAML([]byte("files:\n  max_size: 0\n"))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if cfg.AttachmentsEnabled() {
		t.Fatalf("max_size 0 must disable attachments")
	}
	if cfg.Server.Addr != "127.0.0.1:8080" {
		t.Fatalf("server.addr default lost: %q", cfg.Server.Addr)
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	cases := map[string]string{
		"negative size": "files:\n  max_size: -1\n",
		"base path":     "server:\n  base_path: api\n",
		"log level":     "log:\n  level: chatty\n",
		"log format":    "log:\n  format: xml\n",
	}
	for name, doc := range cases {
		if _, err := FromYAML([]byte(doc)); err == nil {
			t.Errorf("%s: expected validation error", name)
		}
	}
}

func TestLoadOrDefault(t *testing.T) {
	dir := t.TempDir()
	cfg, err := LoadOrDefault(dir)
	if err != nil {
		t.Fatalf("load default: %v", err)
	}
	if cfg.Files.MaxSize != 10 {
		t.Fatalf("expected default max size, got %d", cfg.Files.MaxSize)
	}
	if err := os.WriteFile(filepath.Join(dir, "etraxis.yml"), []byte("files:\n  max_size: 2\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err = LoadOrDefault(dir)
	if err != nil {
		t.Fatalf("load file: %v", err)
	}
	if cfg.Files.MaxSize != 2 {
		t.Fatalf("expected max size from file, got %d", cfg.Files.MaxSize)
	}
	if _, err := Load(t.TempDir()); err == nil || !strings.Contains(err.Error(), "not found") {
		t.Fatalf("expected not found error, got %v", err)
	}
}
