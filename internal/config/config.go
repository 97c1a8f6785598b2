package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/danmuck/txprocessor/internal/logging"
	"github.com/danmuck/txprocessor/internal/processor"
	"github.com/danmuck/txprocessor/internal/protocol/session"
)

// File is a fully resolved processor config: file values laid over defaults.
type File struct {
	Processor  processor.Config
	// AdminAddr enables the admin HTTP listener when non-empty.
	AdminAddr  string
	// AdminToken, when set, guards the admin introspection routes.
	AdminToken string
	LogLevel   string
}

// fileConfig maps config.toml keys. Durations are Go duration strings.
type fileConfig struct {
	Endpoint           string        `toml:"endpoint"`
	Workers            int           `toml:"workers"`
	QueueLimit         int           `toml:"queue_limit"`
	RequestTimeout     string        `toml:"request_timeout"`
	RegisterTimeout    string        `toml:"register_timeout"`
	ConnectTimeout     string        `toml:"connect_timeout"`
	WriteTimeout       string        `toml:"write_timeout"`
	ShutdownTimeout    string        `toml:"shutdown_timeout"`
	MaxStateBatch      int           `toml:"max_state_batch"`
	MaxConnectAttempts int           `toml:"max_connect_attempts"`
	Reconnect          bool          `toml:"reconnect"`
	AdminAddr          string        `toml:"admin_addr"`
	AdminToken         string        `toml:"admin_token"`
	LogLevel           string        `toml:"log_level"`
	Backoff            backoffConfig `toml:"backoff"`
	TLS                tlsConfig     `toml:"tls"`
}

type backoffConfig struct {
	InitialDelay string  `toml:"initial_delay"`
	Multiplier   float64 `toml:"multiplier"`
	MaxDelay     string  `toml:"max_delay"`
	Jitter       bool    `toml:"jitter"`
}

type tlsConfig struct {
	Enabled            bool   `toml:"enabled"`
	Mutual             bool   `toml:"mutual"`
	CAFile             string `toml:"ca_file"`
	CertFile           string `toml:"cert_file"`
	KeyFile            string `toml:"key_file"`
	ServerName         string `toml:"server_name"`
	InsecureSkipVerify bool   `toml:"insecure_skip_verify"`
}

func Default() File {
	cfg := processor.DefaultConfig()
	cfg.Endpoint = "localhost:4004"
	return File{Processor: cfg, LogLevel: "info"}
}

// Load reads path over Default. An empty path returns the defaults.
func Load(path string) (File, error) {
	if strings.TrimSpace(path) == "" {
		return Default(), nil
	}
	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return File{}, fmt.Errorf("load config %s: %w", path, err)
	}
	out, err := apply(Default(), raw, meta)
	if err != nil {
		return File{}, fmt.Errorf("load config %s: %w", path, err)
	}
	return out, nil
}

// Parse is Load for in-memory TOML.
func Parse(data string) (File, error) {
	var raw fileConfig
	meta, err := toml.Decode(data, &raw)
	if err != nil {
		return File{}, fmt.Errorf("parse config: %w", err)
	}
	out, err := apply(Default(), raw, meta)
	if err != nil {
		return File{}, fmt.Errorf("parse config: %w", err)
	}
	return out, nil
}

func apply(cfg File, raw fileConfig, meta toml.MetaData) (File, error) {
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return File{}, fmt.Errorf("unknown key %q", undecoded[0].String())
	}

	p := &cfg.Processor
	if meta.IsDefined("endpoint") {
		p.Endpoint = strings.TrimSpace(raw.Endpoint)
	}
	if meta.IsDefined("workers") {
		p.Workers = raw.Workers
	}
	if meta.IsDefined("queue_limit") {
		p.QueueLimit = raw.QueueLimit
	}
	if meta.IsDefined("max_state_batch") {
		p.MaxStateBatch = raw.MaxStateBatch
	}
	if meta.IsDefined("max_connect_attempts") {
		p.MaxConnectAttempts = raw.MaxConnectAttempts
	}
	if meta.IsDefined("reconnect") {
		p.Reconnect = raw.Reconnect
	}
	if meta.IsDefined("admin_addr") {
		cfg.AdminAddr = strings.TrimSpace(raw.AdminAddr)
	}
	if meta.IsDefined("admin_token") {
		cfg.AdminToken = strings.TrimSpace(raw.AdminToken)
	}
	if meta.IsDefined("log_level") {
		cfg.LogLevel = strings.TrimSpace(raw.LogLevel)
	}

	durations := []struct {
		key string
		val string
		dst *time.Duration
	}{
		{"request_timeout", raw.RequestTimeout, &p.Session.RequestTimeout},
		{"register_timeout", raw.RegisterTimeout, &p.Session.RegisterTimeout},
		{"connect_timeout", raw.ConnectTimeout, &p.Session.ConnectTimeout},
		{"write_timeout", raw.WriteTimeout, &p.Session.WriteTimeout},
		{"shutdown_timeout", raw.ShutdownTimeout, &p.Session.ShutdownTimeout},
		{"backoff.initial_delay", raw.Backoff.InitialDelay, &p.Session.Backoff.InitialDelay},
		{"backoff.max_delay", raw.Backoff.MaxDelay, &p.Session.Backoff.MaxDelay},
	}
	for _, d := range durations {
		if !meta.IsDefined(strings.Split(d.key, ".")...) {
			continue
		}
		v, err := time.ParseDuration(strings.TrimSpace(d.val))
		if err != nil {
			return File{}, fmt.Errorf("%s: %w", d.key, err)
		}
		*d.dst = v
	}
	if meta.IsDefined("backoff", "multiplier") {
		p.Session.Backoff.Multiplier = raw.Backoff.Multiplier
	}
	if meta.IsDefined("backoff", "jitter") {
		p.Session.Backoff.Jitter = raw.Backoff.Jitter
	}
	applyTLS(&p.Session.TLS, raw.TLS, meta)

	if err := Validate(cfg); err != nil {
		return File{}, err
	}
	return cfg, nil
}

func applyTLS(dst *session.TLSConfig, raw tlsConfig, meta toml.MetaData) {
	if meta.IsDefined("tls", "enabled") {
		dst.Enabled = raw.Enabled
	}
	if meta.IsDefined("tls", "mutual") {
		dst.Mutual = raw.Mutual
	}
	if meta.IsDefined("tls", "ca_file") {
		dst.CAFile = strings.TrimSpace(raw.CAFile)
	}
	if meta.IsDefined("tls", "cert_file") {
		dst.CertFile = strings.TrimSpace(raw.CertFile)
	}
	if meta.IsDefined("tls", "key_file") {
		dst.KeyFile = strings.TrimSpace(raw.KeyFile)
	}
	if meta.IsDefined("tls", "server_name") {
		dst.ServerName = strings.TrimSpace(raw.ServerName)
	}
	if meta.IsDefined("tls", "insecure_skip_verify") {
		dst.InsecureSkipVerify = raw.InsecureSkipVerify
	}
}

// Validate reports the first invalid key.
func Validate(cfg File) error {
	p := cfg.Processor
	if strings.TrimSpace(p.Endpoint) == "" {
		return fmt.Errorf("endpoint is required")
	}
	if p.Workers <= 0 {
		return fmt.Errorf("workers must be positive, got %d", p.Workers)
	}
	if p.QueueLimit < 0 {
		return fmt.Errorf("queue_limit must not be negative, got %d", p.QueueLimit)
	}
	if p.MaxStateBatch < 0 {
		return fmt.Errorf("max_state_batch must not be negative, got %d", p.MaxStateBatch)
	}
	if p.MaxConnectAttempts < 0 {
		return fmt.Errorf("max_connect_attempts must not be negative, got %d", p.MaxConnectAttempts)
	}
	for _, d := range []struct {
		key string
		val time.Duration
	}{
		{"request_timeout", p.Session.RequestTimeout},
		{"register_timeout", p.Session.RegisterTimeout},
		{"connect_timeout", p.Session.ConnectTimeout},
		{"write_timeout", p.Session.WriteTimeout},
		{"shutdown_timeout", p.Session.ShutdownTimeout},
		{"backoff.initial_delay", p.Session.Backoff.InitialDelay},
		{"backoff.max_delay", p.Session.Backoff.MaxDelay},
	} {
		if d.val <= 0 {
			return fmt.Errorf("%s must be positive, got %s", d.key, d.val)
		}
	}
	if p.Session.Backoff.Multiplier < 1 {
		return fmt.Errorf("backoff.multiplier must be >= 1, got %g", p.Session.Backoff.Multiplier)
	}
	if p.Session.Backoff.MaxDelay < p.Session.Backoff.InitialDelay {
		return fmt.Errorf("backoff.max_delay %s is below backoff.initial_delay %s", p.Session.Backoff.MaxDelay, p.Session.Backoff.InitialDelay)
	}
	if err := p.Session.TLS.Validate(); err != nil {
		return fmt.Errorf("tls: %w", err)
	}
	if cfg.LogLevel != "" {
		if _, ok := logging.ParseLevel(cfg.LogLevel); !ok {
			return fmt.Errorf("log_level: unknown level %q", cfg.LogLevel)
		}
	}
	return nil
}
