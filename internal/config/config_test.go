package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/danmuck/txprocessor/internal/testutil/testlog"
)

func TestLoadDefaultsAndOverrides(t *testing.T) {
	testlog.Start(t)
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	content := `
endpoint = "tcp://validator:4004"
workers = 8
queue_limit = 16
request_timeout = "30s"
max_state_batch = 100
reconnect = true
admin_addr = "127.0.0.1:9090"
admin_token = " secret "
log_level = "debug"

[backoff]
initial_delay = "100ms"
max_delay = "2s"
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	p := cfg.Processor
	if p.Endpoint != "tcp://validator:4004" || p.Workers != 8 || p.QueueLimit != 16 || p.MaxStateBatch != 100 || !p.Reconnect {
		t.Fatalf("unexpected processor config: %+v", p)
	}
	if p.Session.RequestTimeout != 30*time.Second {
		t.Fatalf("unexpected request timeout: %s", p.Session.RequestTimeout)
	}
	if p.Session.RegisterTimeout != 300*time.Second || p.Session.ConnectTimeout != 5*time.Second {
		t.Fatalf("expected untouched keys to keep defaults: %+v", p.Session)
	}
	if p.Session.Backoff.InitialDelay != 100*time.Millisecond || p.Session.Backoff.MaxDelay != 2*time.Second {
		t.Fatalf("unexpected backoff: %+v", p.Session.Backoff)
	}
	if p.Session.Backoff.Multiplier != 2.0 || !p.Session.Backoff.Jitter {
		t.Fatalf("expected backoff defaults kept: %+v", p.Session.Backoff)
	}
	if cfg.AdminAddr != "127.0.0.1:9090" || cfg.AdminToken != "secret" || cfg.LogLevel != "debug" {
		t.Fatalf("unexpected admin/log settings: %+v", cfg)
	}
}

func TestLoadEmptyPathReturnsDefaults(t *testing.T) {
	testlog.Start(t)
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Processor.Endpoint != "localhost:4004" || cfg.Processor.Workers != 4 || cfg.AdminAddr != "" {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
}

func TestTemplateParsesToDefaults(t *testing.T) {
	testlog.Start(t)
	cfg, err := Parse(Template())
	if err != nil {
		t.Fatalf("parse template: %v", err)
	}
	want := Default()
	want.Processor.Endpoint = "tcp://localhost:4004"
	if cfg.Processor.Endpoint != want.Processor.Endpoint ||
		cfg.Processor.Workers != want.Processor.Workers ||
		cfg.Processor.Session != want.Processor.Session ||
		cfg.LogLevel != want.LogLevel {
		t.Fatalf("template drifted from defaults:\n got %+v\nwant %+v", cfg, want)
	}
}

func TestWriteTemplateRefusesOverwrite(t *testing.T) {
	testlog.Start(t)
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := WriteTemplate(path, false); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := WriteTemplate(path, false); err == nil {
		t.Fatalf("expected second write to fail")
	}
	if err := WriteTemplate(path, true); err != nil {
		t.Fatalf("overwrite: %v", err)
	}
	if _, err := Load(path); err != nil {
		t.Fatalf("load written template: %v", err)
	}
}

func TestParseRejectsInvalidValues(t *testing.T) {
	testlog.Start(t)
	cases := map[string]string{
		`workers = 0`:                        "workers",
		`queue_limit = -1`:                   "queue_limit",
		`request_timeout = "soon"`:           "request_timeout",
		`endpoint = ""`:                      "endpoint",
		`log_level = "loud"`:                 "log_level",
		`unknown_key = 1`:                    "unknown_key",
		"[backoff]\nmultiplier = 0.5":        "backoff.multiplier",
		"[backoff]\ninitial_delay = \"10s\"": "backoff.max_delay",
		"[backoff]\nmax_delay = \"-1s\"":     "backoff.max_delay",
		`shutdown_timeout = "0s"`:            "shutdown_timeout",
	}
	for content, key := range cases {
		_, err := Parse(content)
		if err == nil {
			t.Fatalf("expected error for %q", content)
		}
		if !strings.Contains(err.Error(), key) {
			t.Fatalf("expected error for %q to name %s, got %v", content, key, err)
		}
	}
}

func TestParseTLSSection(t *testing.T) {
	testlog.Start(t)
	cfg, err := Parse(`
[tls]
enabled = true
mutual = true
ca_file = " /etc/tp/ca.crt "
cert_file = "/etc/tp/tp.crt"
key_file = "/etc/tp/tp.key"
server_name = "validator.local"
`)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	got := cfg.Processor.Session.TLS
	if !got.Enabled || !got.Mutual || got.CAFile != "/etc/tp/ca.crt" || got.KeyFile != "/etc/tp/tp.key" || got.ServerName != "validator.local" {
		t.Fatalf("unexpected tls config: %+v", got)
	}

	if _, err := Parse("[tls]\nenabled = true\nmutual = true\nca_file = \"ca.crt\""); err == nil || !strings.Contains(err.Error(), "tls") {
		t.Fatalf("expected mutual tls without cert to fail, got %v", err)
	}
	if _, err := Parse("[tls]\nmutual = true"); err == nil {
		t.Fatalf("expected mutual without enabled to fail")
	}
}
