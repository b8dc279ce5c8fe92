package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
)

// setupTestEnv creates a temporary config directory and clears env vars.
// Returns cleanup function to restore state.
func setupTestEnv(t *testing.T) func() {
	t.Helper()

	origConfigDir := os.Getenv("GODLY_CONFIG_DIR")
	origInstance := os.Getenv("GODLY_INSTANCE")
	origPipeName := os.Getenv("GODLY_PIPE_NAME")
	origNoDetach := os.Getenv("GODLY_NO_DETACH")
	origIdleTimeout := os.Getenv("GODLY_IDLE_TIMEOUT_SECONDS")

	tmpDir := t.TempDir()
	os.Setenv("GODLY_CONFIG_DIR", tmpDir)

	os.Unsetenv("GODLY_INSTANCE")
	os.Unsetenv("GODLY_PIPE_NAME")
	os.Unsetenv("GODLY_NO_DETACH")
	os.Unsetenv("GODLY_IDLE_TIMEOUT_SECONDS")

	return func() {
		os.Setenv("GODLY_CONFIG_DIR", origConfigDir)
		if origInstance != "" {
			os.Setenv("GODLY_INSTANCE", origInstance)
		}
		if origPipeName != "" {
			os.Setenv("GODLY_PIPE_NAME", origPipeName)
		}
		if origNoDetach != "" {
			os.Setenv("GODLY_NO_DETACH", origNoDetach)
		}
		if origIdleTimeout != "" {
			os.Setenv("GODLY_IDLE_TIMEOUT_SECONDS", origIdleTimeout)
		}
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Instance != DefaultInstance {
		t.Errorf("Instance = %q, want %q", cfg.Instance, DefaultInstance)
	}
	if cfg.IdleTimeoutSeconds != 300 {
		t.Errorf("IdleTimeoutSeconds = %d, want %d", cfg.IdleTimeoutSeconds, 300)
	}
	if cfg.PollIntervalSeconds != 10 {
		t.Errorf("PollIntervalSeconds = %d, want %d", cfg.PollIntervalSeconds, 10)
	}
	if cfg.NoDetach {
		t.Errorf("NoDetach = true, want false")
	}
}

func TestConfigSerialization(t *testing.T) {
	cfg := DefaultConfig()
	cfg.PipeName = `\\.\pipe\custom`
	cfg.NoDetach = true

	data, err := json.Marshal(cfg)
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}

	var loaded Config
	if err := json.Unmarshal(data, &loaded); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}

	if loaded.Instance != cfg.Instance {
		t.Errorf("Instance = %q, want %q", loaded.Instance, cfg.Instance)
	}
	if loaded.PipeName != cfg.PipeName {
		t.Errorf("PipeName = %q, want %q", loaded.PipeName, cfg.PipeName)
	}
	if loaded.NoDetach != cfg.NoDetach {
		t.Errorf("NoDetach = %v, want %v", loaded.NoDetach, cfg.NoDetach)
	}
}

func TestPipePathDefault(t *testing.T) {
	cfg := DefaultConfig()
	want := `\\.\pipe\godlyd-` + DefaultInstance
	if got := cfg.PipePath(); got != want {
		t.Errorf("PipePath() = %q, want %q", got, want)
	}
}

func TestPipePathOverride(t *testing.T) {
	cfg := DefaultConfig()
	cfg.PipeName = `\\.\pipe\explicit`
	if got := cfg.PipePath(); got != cfg.PipeName {
		t.Errorf("PipePath() = %q, want %q", got, cfg.PipeName)
	}
}

func TestLoadFromFile(t *testing.T) {
	cleanup := setupTestEnv(t)
	defer cleanup()

	configPath, err := ConfigPath()
	if err != nil {
		t.Fatalf("ConfigPath() failed: %v", err)
	}

	fileConfig := &Config{
		Instance:            "custom",
		IdleTimeoutSeconds:  120,
		PollIntervalSeconds: 5,
	}

	data, err := json.MarshalIndent(fileConfig, "", "  ")
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}

	if err := os.WriteFile(configPath, data, 0600); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	if cfg.Instance != "custom" {
		t.Errorf("Instance = %q, want %q", cfg.Instance, "custom")
	}
	if cfg.IdleTimeoutSeconds != 120 {
		t.Errorf("IdleTimeoutSeconds = %d, want %d", cfg.IdleTimeoutSeconds, 120)
	}
}

func TestEnvOverridesFile(t *testing.T) {
	cleanup := setupTestEnv(t)
	defer cleanup()

	configPath, err := ConfigPath()
	if err != nil {
		t.Fatalf("ConfigPath() failed: %v", err)
	}

	fileConfig := &Config{Instance: "file-instance", IdleTimeoutSeconds: 60}
	data, _ := json.MarshalIndent(fileConfig, "", "  ")
	os.WriteFile(configPath, data, 0600)

	os.Setenv("GODLY_INSTANCE", "env-instance")
	os.Setenv("GODLY_IDLE_TIMEOUT_SECONDS", "45")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	if cfg.Instance != "env-instance" {
		t.Errorf("Instance = %q, want %q (env override)", cfg.Instance, "env-instance")
	}
	if cfg.IdleTimeoutSeconds != 45 {
		t.Errorf("IdleTimeoutSeconds = %d, want %d (env override)", cfg.IdleTimeoutSeconds, 45)
	}
}

func TestAllEnvOverrides(t *testing.T) {
	cleanup := setupTestEnv(t)
	defer cleanup()

	os.Setenv("GODLY_INSTANCE", "env-instance")
	os.Setenv("GODLY_PIPE_NAME", `\\.\pipe\env-pipe`)
	os.Setenv("GODLY_NO_DETACH", "1")
	os.Setenv("GODLY_IDLE_TIMEOUT_SECONDS", "90")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	if cfg.Instance != "env-instance" {
		t.Errorf("Instance = %q, want %q", cfg.Instance, "env-instance")
	}
	if cfg.PipeName != `\\.\pipe\env-pipe` {
		t.Errorf("PipeName = %q, want %q", cfg.PipeName, `\\.\pipe\env-pipe`)
	}
	if !cfg.NoDetach {
		t.Errorf("NoDetach = false, want true")
	}
	if cfg.IdleTimeoutSeconds != 90 {
		t.Errorf("IdleTimeoutSeconds = %d, want %d", cfg.IdleTimeoutSeconds, 90)
	}
}

func TestSaveAndLoad(t *testing.T) {
	cleanup := setupTestEnv(t)
	defer cleanup()

	cfg := DefaultConfig()
	cfg.Instance = "saved-instance"
	cfg.IdleTimeoutSeconds = 200

	if err := cfg.Save(); err != nil {
		t.Fatalf("Save() failed: %v", err)
	}

	loaded, err := Load()
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	if loaded.Instance != "saved-instance" {
		t.Errorf("Instance = %q, want %q", loaded.Instance, "saved-instance")
	}
	if loaded.IdleTimeoutSeconds != 200 {
		t.Errorf("IdleTimeoutSeconds = %d, want %d", loaded.IdleTimeoutSeconds, 200)
	}
}

func TestConfigDirOverride(t *testing.T) {
	tmpDir := t.TempDir()
	customDir := filepath.Join(tmpDir, "custom_config")

	os.Setenv("GODLY_CONFIG_DIR", customDir)
	defer os.Unsetenv("GODLY_CONFIG_DIR")

	dir, err := ConfigDir()
	if err != nil {
		t.Fatalf("ConfigDir() failed: %v", err)
	}

	if dir != customDir {
		t.Errorf("ConfigDir() = %q, want %q", dir, customDir)
	}

	if _, err := os.Stat(customDir); os.IsNotExist(err) {
		t.Errorf("Config directory was not created")
	}
}

func TestLoadWithNoFile(t *testing.T) {
	cleanup := setupTestEnv(t)
	defer cleanup()

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	if cfg.Instance != DefaultInstance {
		t.Errorf("Instance = %q, want default", cfg.Instance)
	}
	if cfg.IdleTimeoutSeconds != 300 {
		t.Errorf("IdleTimeoutSeconds = %d, want default 300", cfg.IdleTimeoutSeconds)
	}
}

func TestInvalidEnvVarsIgnored(t *testing.T) {
	cleanup := setupTestEnv(t)
	defer cleanup()

	os.Setenv("GODLY_IDLE_TIMEOUT_SECONDS", "not_a_number")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	if cfg.IdleTimeoutSeconds != 300 {
		t.Errorf("IdleTimeoutSeconds = %d, want default 300 (invalid env ignored)", cfg.IdleTimeoutSeconds)
	}
}

func TestPidPath(t *testing.T) {
	cleanup := setupTestEnv(t)
	defer cleanup()

	path, err := PidPath("myinstance")
	if err != nil {
		t.Fatalf("PidPath() failed: %v", err)
	}
	if filepath.Base(path) != "myinstance.pid" {
		t.Errorf("PidPath() = %q, want basename %q", path, "myinstance.pid")
	}
}
