package am

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/viper"

	"github.com/teranos/reportlib/messenger"
)

func TestLoad_Defaults(t *testing.T) {
	// Create isolated viper instance without loading user/system config
	v := viper.New()
	SetDefaults(v)

	cfg, err := LoadWithViper(v)
	if err != nil {
		t.Fatalf("LoadWithViper() failed: %v", err)
	}

	if cfg.Transport.URL != "ws://localhost:8787/ws" {
		t.Errorf("expected default transport url, got %q", cfg.Transport.URL)
	}
	if cfg.Host.Addr != ":8787" {
		t.Errorf("expected default host addr ':8787', got %q", cfg.Host.Addr)
	}
	if cfg.ErrorPolicy() != messenger.ErrorPolicyLog {
		t.Errorf("expected default error policy log, got %s", cfg.ErrorPolicy())
	}
	if !cfg.Transport.Keepalive.Enabled {
		t.Error("expected keepalive enabled by default")
	}
	if cfg.Monitor.Burst != 20 {
		t.Errorf("expected default monitor burst 20, got %d", cfg.Monitor.Burst)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("defaults should validate: %v", err)
	}
}

func TestValidate(t *testing.T) {
	zero := 0
	five := 5

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{name: "defaults", mutate: func(*Config) {}},
		{
			name:    "unknown error policy",
			mutate:  func(c *Config) { c.Messenger.ErrorPolicy = "shout" },
			wantErr: "messenger.error_policy",
		},
		{
			name:   "notify policy",
			mutate: func(c *Config) { c.Messenger.ErrorPolicy = "NOTIFY" },
		},
		{
			name:    "negative request timeout",
			mutate:  func(c *Config) { c.Messenger.RequestTimeoutSecs = -1 },
			wantErr: "request_timeout_secs",
		},
		{
			name:    "parent origin without host",
			mutate:  func(c *Config) { c.Messenger.ParentOrigin = "not a url" },
			wantErr: "parent_origin",
		},
		{
			name:    "negative max message size",
			mutate:  func(c *Config) { c.Transport.MaxMessageSize = -1 },
			wantErr: "max_message_size",
		},
		{
			name:    "zero ping interval while enabled",
			mutate:  func(c *Config) { c.Transport.Keepalive.PingIntervalSecs = &zero },
			wantErr: "ping_interval_secs",
		},
		{
			name: "zero ping interval while disabled",
			mutate: func(c *Config) {
				c.Transport.Keepalive.Enabled = false
				c.Transport.Keepalive.PingIntervalSecs = &zero
			},
		},
		{
			name:   "explicit pong timeout",
			mutate: func(c *Config) { c.Transport.Keepalive.PongTimeoutSecs = &five },
		},
		{
			name:    "bad version constraint",
			mutate:  func(c *Config) { c.Host.VersionConstraint = ">= banana" },
			wantErr: "version_constraint",
		},
		{
			name:    "negative events per second",
			mutate:  func(c *Config) { c.Monitor.EventsPerSecond = -1 },
			wantErr: "events_per_second",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Validate() unexpected error: %v", err)
				}
				return
			}
			if err == nil {
				t.Fatalf("Validate() expected error containing %q", tt.wantErr)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() error %q does not mention %q", err, tt.wantErr)
			}
		})
	}
}

func TestKeepaliveSettings(t *testing.T) {
	ping, pong := 10, 20
	cfg := Default()
	cfg.Transport.Keepalive.PingIntervalSecs = &ping
	cfg.Transport.Keepalive.PongTimeoutSecs = &pong

	k := cfg.KeepaliveSettings()
	if !k.Enabled {
		t.Error("expected keepalive enabled")
	}
	if k.PingInterval != 10*time.Second || k.PongTimeout != 20*time.Second {
		t.Errorf("unexpected keepalive %+v", k)
	}

	opts := cfg.TransportOptions()
	if opts.MaxMessageSize != 1<<20 || opts.SendBuffer != 256 {
		t.Errorf("unexpected transport options %+v", opts)
	}
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ConfigFileName)
	content := `
[messenger]
parent_origin = "https://parent.example.com"
error_policy = "notify"

[host]
addr = ":9000"
allowed_origins = ["https://parent.example.com"]
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadFromFile(path)
	if err != nil {
		t.Fatalf("LoadFromFile() failed: %v", err)
	}
	if cfg.Messenger.ParentOrigin != "https://parent.example.com" {
		t.Errorf("unexpected parent origin %q", cfg.Messenger.ParentOrigin)
	}
	if cfg.ErrorPolicy() != messenger.ErrorPolicyNotify {
		t.Errorf("expected notify policy, got %s", cfg.ErrorPolicy())
	}
	if cfg.Host.Addr != ":9000" {
		t.Errorf("expected host addr from file, got %q", cfg.Host.Addr)
	}
	// Unset keys keep their defaults
	if cfg.Transport.SendBuffer != 256 {
		t.Errorf("expected default send buffer, got %d", cfg.Transport.SendBuffer)
	}

	if _, err := LoadFromFile(filepath.Join(dir, "missing.toml")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestLoad_ProjectFileAndEnvironment(t *testing.T) {
	home := t.TempDir()
	project := t.TempDir()
	nested := filepath.Join(project, "reports", "matrix")
	if err := os.MkdirAll(nested, 0750); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(project, ConfigFileName), []byte("[host]\naddr = \":7000\"\n[monitor]\nburst = 3\n"), 0644); err != nil {
		t.Fatal(err)
	}

	t.Setenv("HOME", home)
	t.Setenv("REPORTLIB_MONITOR_BURST", "9")
	t.Chdir(nested)
	Reset()
	t.Cleanup(Reset)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	if cfg.Host.Addr != ":7000" {
		t.Errorf("expected project file addr, got %q", cfg.Host.Addr)
	}
	if cfg.Monitor.Burst != 9 {
		t.Errorf("expected environment to win over project file, got %d", cfg.Monitor.Burst)
	}

	introspection, err := GetConfigIntrospection()
	if err != nil {
		t.Fatalf("GetConfigIntrospection() failed: %v", err)
	}
	sources := map[string]SettingInfo{}
	for _, s := range introspection.Settings {
		sources[s.Key] = s
	}
	if got := sources["host.addr"].Source; got != SourceProject {
		t.Errorf("host.addr source = %s, want project", got)
	}
	if got := sources["monitor.burst"]; got.Source != SourceEnvironment || got.SourcePath != "REPORTLIB_MONITOR_BURST" {
		t.Errorf("monitor.burst source = %+v, want environment", got)
	}
	if got := sources["transport.send_buffer"].Source; got != SourceDefault {
		t.Errorf("transport.send_buffer source = %s, want default", got)
	}
}

func TestSaveRotatesBackups(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", ConfigFileName)

	created, err := InitFile(path)
	if err != nil || !created {
		t.Fatalf("InitFile() = %v, %v", created, err)
	}
	if created, _ := InitFile(path); created {
		t.Error("InitFile() must not overwrite an existing file")
	}

	for i := 1; i <= 4; i++ {
		cfg := Default()
		cfg.Monitor.Burst = i
		if err := Save(path, cfg); err != nil {
			t.Fatalf("Save() #%d failed: %v", i, err)
		}
	}

	for _, suffix := range []string{".back1", ".back2", ".back3"} {
		if _, err := os.Stat(path + suffix); err != nil {
			t.Errorf("expected backup %s: %v", suffix, err)
		}
	}

	cfg, err := LoadFromFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Monitor.Burst != 4 {
		t.Errorf("expected last save to win, got burst %d", cfg.Monitor.Burst)
	}

	prev, err := LoadFromFile(path + ".back1")
	if err != nil {
		t.Fatal(err)
	}
	if prev.Monitor.Burst != 3 {
		t.Errorf("expected .back1 to hold the previous save, got burst %d", prev.Monitor.Burst)
	}

	bad := Default()
	bad.Messenger.ErrorPolicy = "shout"
	if err := Save(path, bad); err == nil {
		t.Error("Save() must reject invalid config")
	}
}

func TestIsBackupFile(t *testing.T) {
	cases := map[string]bool{
		"report.toml":           false,
		"report.toml.back1":     true,
		"/x/fixture.yaml.back3": true,
		"report.toml.backup":    false,
	}
	for path, want := range cases {
		if got := isBackupFile(path); got != want {
			t.Errorf("isBackupFile(%q) = %v, want %v", path, got, want)
		}
	}
}

func TestConfigWatcherFiresOnChange(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fixture.json")
	if err := os.WriteFile(path, []byte(`{}`), 0644); err != nil {
		t.Fatal(err)
	}

	cw, err := NewConfigWatcher(path, WithDebounce(20*time.Millisecond))
	if err != nil {
		t.Fatalf("NewConfigWatcher() failed: %v", err)
	}
	defer cw.Stop()

	changed := make(chan string, 4)
	cw.OnChange(func(p string) error {
		changed <- p
		return nil
	})
	cw.Start()

	// Sibling files and backups are ignored
	if err := os.WriteFile(path+".back1", []byte(`{}`), 0644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(filepath.Dir(path), "other.json"), []byte(`{}`), 0644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(`{"a":1}`), 0644); err != nil {
		t.Fatal(err)
	}

	select {
	case p := <-changed:
		if p != cw.Path() {
			t.Errorf("callback path %q, want %q", p, cw.Path())
		}
	case <-time.After(2 * time.Second):
		t.Fatal("watcher did not fire")
	}
}
