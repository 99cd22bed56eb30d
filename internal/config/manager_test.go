package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
)

func TestManagerLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "channels.yaml")
	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		t.Fatal(err)
	}

	m := NewManager(path, zerolog.Nop())
	snap, err := m.Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if m.Snapshot() != snap {
		t.Fatal("Snapshot must return the committed value")
	}
	if !snap.Channels["whatsapp"].Enabled {
		t.Fatal("expected whatsapp enabled")
	}
}

func TestManagerLoadBadFile(t *testing.T) {
	m := NewManager(filepath.Join(t.TempDir(), "missing.yaml"), zerolog.Nop())
	if _, err := m.Load(); err == nil {
		t.Fatal("expected error for missing file")
	}
	if m.Snapshot() != nil {
		t.Fatal("no snapshot must be committed on failure")
	}
}
