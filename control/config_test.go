package control

import "testing"

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.Host != "localhost" || cfg.Port != 8082 {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
	if cfg.CPUAffinity != -1 {
		t.Fatal("CPUAffinity must default to -1 (unset)")
	}
}

func TestConfigStore_SnapshotIsImmutable(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Port = 9090
	cs := NewConfigStore(cfg)

	snap := cs.Snapshot()
	if snap.Port != 9090 {
		t.Fatalf("Snapshot().Port = %d, want 9090", snap.Port)
	}

	snap.Port = 1 // mutate the copy
	if cs.Snapshot().Port != 9090 {
		t.Fatal("ConfigStore must hand out copies, not share state with callers")
	}
}
