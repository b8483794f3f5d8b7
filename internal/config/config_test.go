package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestFindConfig_Explicit(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "test.yaml")
	os.WriteFile(path, []byte("system_id: 9\n"), 0600)

	got, err := FindConfig(path)
	if err != nil {
		t.Fatalf("FindConfig(%q) error: %v", path, err)
	}
	if got != path {
		t.Errorf("FindConfig(%q) = %q, want %q", path, got, path)
	}
}

func TestFindConfig_ExplicitMissing(t *testing.T) {
	_, err := FindConfig("/nonexistent/config.yaml")
	if err == nil {
		t.Fatal("FindConfig with missing explicit path should error")
	}
}

func TestFindConfig_SearchPath(t *testing.T) {
	dir := t.TempDir()
	orig := searchPathsFunc
	searchPathsFunc = func() []string {
		return []string{filepath.Join(dir, "config.yaml")}
	}
	defer func() { searchPathsFunc = orig }()

	_, err := FindConfig("")
	if err == nil {
		t.Fatal(`FindConfig("") with no config files should error`)
	}
}

func TestFindConfig_CWD(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	os.WriteFile(path, []byte("system_id: 1\n"), 0600)

	orig, _ := os.Getwd()
	os.Chdir(dir)
	defer os.Chdir(orig)

	got, err := FindConfig("")
	if err != nil {
		t.Fatalf(`FindConfig("") error: %v`, err)
	}
	if got != "config.yaml" {
		t.Errorf(`FindConfig("") = %q, want %q`, got, "config.yaml")
	}
}

func TestLoad_ExpandsEnvVars(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	os.WriteFile(path, []byte("bind_addr: ${AGENTMESH_TEST_BROKER}\n"), 0600)
	os.Setenv("AGENTMESH_TEST_BROKER", "tcp://broker.local:1883")
	defer os.Unsetenv("AGENTMESH_TEST_BROKER")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	if cfg.BindAddr != "tcp://broker.local:1883" {
		t.Errorf("bind_addr = %q, want %q", cfg.BindAddr, "tcp://broker.local:1883")
	}
}

func TestApplyDefaults(t *testing.T) {
	cfg := Default()
	if cfg.InboxCapacity != 128 {
		t.Errorf("InboxCapacity = %d, want 128", cfg.InboxCapacity)
	}
	if cfg.BindAddr == "" {
		t.Error("BindAddr should have a default")
	}
}

func TestValidate_RejectsInvalidLogLevel(t *testing.T) {
	cfg := Default()
	cfg.LogLevel = "verbose"
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for invalid log_level")
	}
}

func TestValidate_RejectsRemoteObserverCollidingWithSelf(t *testing.T) {
	cfg := Default()
	cfg.SystemID = 1
	cfg.RemoteObservers = []RemoteObserverConfig{{SystemID: 1, BrokerURL: "tcp://x:1883"}}
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error when a remote observer shares this system's id")
	}
}

func TestValidate_RejectsDuplicateRemoteObservers(t *testing.T) {
	cfg := Default()
	cfg.RemoteObservers = []RemoteObserverConfig{
		{SystemID: 2, BrokerURL: "tcp://a:1883"},
		{SystemID: 2, BrokerURL: "tcp://b:1883"},
	}
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for duplicate remote observer system_id")
	}
}

func TestValidate_RejectsEmptyBrokerURL(t *testing.T) {
	cfg := Default()
	cfg.RemoteObservers = []RemoteObserverConfig{{SystemID: 2}}
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for empty broker_url")
	}
}

func TestValidate_AcceptsWellFormedRemoteObservers(t *testing.T) {
	cfg := Default()
	cfg.SystemID = 0
	cfg.RemoteObservers = []RemoteObserverConfig{
		{SystemID: 1, BrokerURL: "tcp://a:1883"},
		{SystemID: 2, BrokerURL: "tcp://b:1883"},
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("unexpected validation error: %v", err)
	}
}
