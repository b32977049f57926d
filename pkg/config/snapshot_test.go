package config

import (
	"os"
	"strings"
	"testing"
	"time"
)

func TestStoreReloadSwapsSnapshot(t *testing.T) {
	path := writeConfig(t, validYAML)
	cfg, err := LoadConfigWithEnvOverrides(path)
	if err != nil {
		t.Fatal(err)
	}
	store := NewStore(cfg)

	var swapped *Config
	store.OnSwap(func(c *Config) { swapped = c })

	updated := strings.Replace(validYAML, ":8443", ":9443", 1)
	if err := os.WriteFile(path, []byte(updated), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := store.Reload(path); err != nil {
		t.Fatal(err)
	}

	if store.Current().Server.ListenAddress != ":9443" {
		t.Errorf("listen_address = %q after reload", store.Current().Server.ListenAddress)
	}
	if store.Reloads() != 1 {
		t.Errorf("reloads = %d, want 1", store.Reloads())
	}
	if swapped == nil || swapped.Server.ListenAddress != ":9443" {
		t.Error("OnSwap callback did not receive the new snapshot")
	}
}

func TestStoreReloadRejectsInvalid(t *testing.T) {
	path := writeConfig(t, validYAML)
	cfg, err := LoadConfigWithEnvOverrides(path)
	if err != nil {
		t.Fatal(err)
	}
	store := NewStore(cfg)

	if err := os.WriteFile(path, []byte("pools: {}\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	err = store.Reload(path)
	if err == nil {
		t.Fatal("invalid reload should fail")
	}
	if !strings.Contains(err.Error(), "reload rejected") {
		t.Errorf("error = %v, want reload rejected", err)
	}

	if store.Current() != cfg {
		t.Error("failed reload must keep the previous snapshot")
	}
	if store.Reloads() != 0 {
		t.Errorf("reloads = %d, want 0 after rejection", store.Reloads())
	}
}

func TestWatcherReloadsOnWrite(t *testing.T) {
	path := writeConfig(t, validYAML)
	cfg, err := LoadConfigWithEnvOverrides(path)
	if err != nil {
		t.Fatal(err)
	}
	store := NewStore(cfg)

	w, err := NewWatcher(store, path)
	if err != nil {
		t.Fatal(err)
	}
	defer w.Close()
	w.Start()

	updated := strings.Replace(validYAML, ":8443", ":9443", 1)
	if err := os.WriteFile(path, []byte(updated), 0o644); err != nil {
		t.Fatal(err)
	}

	deadline := time.After(3 * time.Second)
	for store.Reloads() == 0 {
		select {
		case <-deadline:
			t.Fatal("watcher did not trigger a reload")
		case <-time.After(20 * time.Millisecond):
		}
	}

	if store.Current().Server.ListenAddress != ":9443" {
		t.Errorf("listen_address = %q after watched reload", store.Current().Server.ListenAddress)
	}
}

func TestWatcherIgnoresSiblingFiles(t *testing.T) {
	path := writeConfig(t, validYAML)
	cfg, err := LoadConfigWithEnvOverrides(path)
	if err != nil {
		t.Fatal(err)
	}
	store := NewStore(cfg)

	w, err := NewWatcher(store, path)
	if err != nil {
		t.Fatal(err)
	}
	defer w.Close()
	w.Start()

	sibling := strings.TrimSuffix(path, "config.yaml") + "other.yaml"
	if err := os.WriteFile(sibling, []byte("x: 1\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	time.Sleep(500 * time.Millisecond)
	if n := store.Reloads(); n != 0 {
		t.Errorf("reloads = %d, sibling write must not trigger reload", n)
	}
}
