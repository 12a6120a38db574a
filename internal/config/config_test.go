package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"rtthreads/internal/maps"
)

// TestConfigData tests defaults, overrides and validation
func TestConfigData(t *testing.T) {
	tests := []struct {
		name       string
		configTOML string
		setupFunc  func(*AppConfig)
		validate   func(*testing.T, *AppConfig)
		expectErr  bool
	}{
		{
			name: "defaults are valid",
			validate: func(t *testing.T, c *AppConfig) {
				if c.Server.ListenAddress != "localhost:9190" {
					t.Errorf("Expected localhost:9190, got %s", c.Server.ListenAddress)
				}
				if c.Threads.IndexMap != maps.Default {
					t.Errorf("Expected index map %s, got %s", maps.Default, c.Threads.IndexMap)
				}
				if c.Threads.MaxThreads != 0 {
					t.Errorf("Expected unbounded registry, got %d", c.Threads.MaxThreads)
				}
				if c.Demo.Workers != 10 {
					t.Errorf("Expected 10 demo workers, got %d", c.Demo.Workers)
				}
				if len(c.Logging.Outputs) == 0 || c.Logging.Outputs[0].Type != "console" {
					t.Error("Expected console as first output")
				}
			},
		},
		{
			name: "invalid empty listen address",
			setupFunc: func(c *AppConfig) {
				c.Server.ListenAddress = ""
			},
			expectErr: true,
		},
		{
			name: "invalid index map",
			setupFunc: func(c *AppConfig) {
				c.Threads.IndexMap = "btree"
			},
			expectErr: true,
		},
		{
			name: "invalid cpu mask",
			setupFunc: func(c *AppConfig) {
				c.Threads.DefaultCPUs = "cpu0"
			},
			expectErr: true,
		},
		{
			name: "demo larger than registry",
			setupFunc: func(c *AppConfig) {
				c.Threads.MaxThreads = 4
				c.Demo.Workers = 8
			},
			expectErr: true,
		},
		{
			name: "disabled demo is not checked",
			setupFunc: func(c *AppConfig) {
				c.Demo.Enabled = false
				c.Demo.Workers = 0
			},
		},
		{
			name: "invalid no outputs enabled",
			setupFunc: func(c *AppConfig) {
				for i := range c.Logging.Outputs {
					c.Logging.Outputs[i].Enabled = false
				}
			},
			expectErr: true,
		},
		{
			name: "valid custom threads config",
			configTOML: `
[server]
listen_address = ":8080"
metrics_path = "/custom"

[threads]
default_cpus = "0x3"
max_threads = 32
index_map = "cornelk"
`,
			validate: func(t *testing.T, c *AppConfig) {
				if c.Server.MetricsPath != "/custom" {
					t.Errorf("Expected /custom, got %s", c.Server.MetricsPath)
				}
				if c.Threads.IndexMap != maps.Cornelk {
					t.Errorf("Expected cornelk, got %s", c.Threads.IndexMap)
				}
				if c.Threads.MaxThreads != 32 {
					t.Errorf("Expected 32, got %d", c.Threads.MaxThreads)
				}
				if mask, _ := ParseCPUMask(c.Threads.DefaultCPUs); mask != 3 {
					t.Errorf("Expected mask 3, got %d", mask)
				}
				// Untouched keys keep their defaults
				if c.Threads.StartupTimeoutMs != 1000 {
					t.Errorf("Expected default startup timeout, got %d", c.Threads.StartupTimeoutMs)
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			if tt.configTOML != "" {
				path := filepath.Join(t.TempDir(), "config.toml")
				if err := os.WriteFile(path, []byte(tt.configTOML), 0644); err != nil {
					t.Fatalf("Failed to create test config: %v", err)
				}
				var err error
				cfg, err = LoadConfig(path)
				if err != nil {
					t.Fatalf("Failed to load config: %v", err)
				}
			}
			if tt.setupFunc != nil {
				tt.setupFunc(cfg)
			}

			err := cfg.Validate()
			if tt.expectErr {
				if err == nil {
					t.Fatal("Expected validation error but got none")
				}
				return
			}
			if err != nil {
				t.Fatalf("Unexpected validation error: %v", err)
			}
			if tt.validate != nil {
				tt.validate(t, cfg)
			}
		})
	}
}

func TestParseCPUMask(t *testing.T) {
	tests := []struct {
		in      string
		want    uint64
		wantErr bool
	}{
		{"", 0, false},
		{"5", 5, false},
		{"0xff", 0xff, false},
		{"-1", 0, true},
		{"all", 0, true},
	}
	for _, tt := range tests {
		got, err := ParseCPUMask(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseCPUMask(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseCPUMask(%q) = %d, want %d", tt.in, got, tt.want)
		}
	}
}

// TestLoadConfig tests loading configurations with fallbacks and validation
func TestLoadConfig(t *testing.T) {
	tests := []struct {
		name       string
		configTOML string
		path       string
		expectErr  bool
	}{
		{
			name:      "non-existent file is reported",
			path:      "nonexistent.toml",
			expectErr: true,
		},
		{
			name: "empty path returns defaults",
		},
		{
			name: "valid config loads correctly",
			configTOML: `
[server]
listen_address = ":8080"

[demo]
enabled = false

[logging.defaults]
level = "debug"

[[logging.outputs]]
type = "console"
enabled = true
`,
		},
		{
			name: "invalid TOML returns error",
			configTOML: `
[server]
listen_address = ":8080"
invalid_syntax [
`,
			expectErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			configPath := tt.path
			if tt.configTOML != "" {
				configPath = filepath.Join(t.TempDir(), "test.toml")
				if err := os.WriteFile(configPath, []byte(tt.configTOML), 0644); err != nil {
					t.Fatalf("Failed to create test config: %v", err)
				}
			}

			config, err := LoadConfig(configPath)
			if tt.expectErr {
				if err == nil {
					t.Fatal("Expected error but got none")
				}
				return
			}
			if err != nil {
				t.Fatalf("Unexpected error: %v", err)
			}

			if tt.configTOML != "" {
				if config.Server.ListenAddress != ":8080" {
					t.Errorf("Expected :8080, got %s", config.Server.ListenAddress)
				}
				if config.Demo.Enabled {
					t.Error("Expected demo to be disabled")
				}
				if config.Logging.Defaults.Level != "debug" {
					t.Errorf("Expected debug level, got %s", config.Logging.Defaults.Level)
				}
			}

			if err := config.Validate(); err != nil {
				t.Errorf("Config validation failed: %v", err)
			}
		})
	}
}

// TestSaveConfig tests saving configurations
func TestSaveConfig(t *testing.T) {
	t.Run("save and load roundtrip", func(t *testing.T) {
		configPath := filepath.Join(t.TempDir(), "subdir", "test.toml")

		original := DefaultConfig()
		original.Server.ListenAddress = ":7777"
		original.Threads.IndexMap = maps.Sharded
		original.Threads.MaxThreads = 128

		if err := SaveConfig(configPath, original); err != nil {
			t.Fatalf("Failed to save: %v", err)
		}
		loaded, err := LoadConfig(configPath)
		if err != nil {
			t.Fatalf("Failed to load: %v", err)
		}

		if loaded.Server.ListenAddress != ":7777" {
			t.Errorf("Expected :7777, got %s", loaded.Server.ListenAddress)
		}
		if loaded.Threads.IndexMap != maps.Sharded {
			t.Errorf("Expected sharded, got %s", loaded.Threads.IndexMap)
		}
		if loaded.Threads.MaxThreads != 128 {
			t.Errorf("Expected 128, got %d", loaded.Threads.MaxThreads)
		}
	})

	t.Run("invalid path", func(t *testing.T) {
		if err := SaveConfig("\x00invalid", DefaultConfig()); err == nil {
			t.Error("Expected error for invalid path")
		}
	})
}

// TestConfigGenerator tests configuration generation
func TestConfigGenerator(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "example.toml")

	if err := GenerateExampleConfig(configPath); err != nil {
		t.Fatalf("Failed to generate config: %v", err)
	}

	config, err := LoadConfig(configPath)
	if err != nil {
		t.Fatalf("Generated config is invalid: %v", err)
	}
	if err := config.Validate(); err != nil {
		t.Errorf("Generated config validation failed: %v", err)
	}

	content, err := os.ReadFile(configPath)
	if err != nil {
		t.Fatalf("Failed to read generated file: %v", err)
	}
	contentStr := string(content)
	if !strings.Contains(contentStr, "rtthreads Example Configuration") {
		t.Error("Generated config missing expected header")
	}
	if !strings.Contains(contentStr, "[threads]") {
		t.Error("Generated config missing [threads] section")
	}
}
