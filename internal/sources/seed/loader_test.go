package seed

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/mcpmon/mcpmon/internal/domain"
)

func writeSeedFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "services.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write seed file: %v", err)
	}
	return path
}

func TestLoad(t *testing.T) {
	path := writeSeedFile(t, `
services:
  - name: filesystem
    type: server
    endpoint: http://localhost:8001
    capabilities: [read, write]
    metadata:
      root: /data
  - name: webscraper
    endpoint: http://localhost:8002
`)

	configs, err := NewLoader(path).Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if len(configs) != 2 {
		t.Fatalf("got %d configs, want 2", len(configs))
	}

	first := configs[0]
	if first.Name != "filesystem" || first.Type != domain.TypeServer {
		t.Errorf("first entry mismatch: %+v", first)
	}
	if len(first.Capabilities) != 2 {
		t.Errorf("capabilities = %v, want 2 entries", first.Capabilities)
	}
	if first.Metadata["root"] != "/data" {
		t.Errorf("metadata = %v", first.Metadata)
	}

	if configs[1].Type != "" {
		t.Errorf("type should stay empty when omitted, got %q", configs[1].Type)
	}
}

func TestLoadRejectsInvalidEntry(t *testing.T) {
	path := writeSeedFile(t, `
services:
  - name: broken
`)

	if _, err := NewLoader(path).Load(); err == nil {
		t.Fatal("expected an error for an entry without endpoint")
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := NewLoader("/nonexistent/services.yaml").Load(); err == nil {
		t.Fatal("expected an error for a missing file")
	}
}

func TestLoadBadYAML(t *testing.T) {
	path := writeSeedFile(t, "services: [unclosed")

	if _, err := NewLoader(path).Load(); err == nil {
		t.Fatal("expected a parse error")
	}
}
