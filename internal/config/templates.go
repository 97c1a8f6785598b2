package config

import (
	"fmt"
	"os"
)

// Template returns a commented config.toml holding the default values.
func Template() string {
	return processorTemplate
}

// WriteTemplate writes Template to path, refusing to replace an existing
// file unless overwrite is set.
func WriteTemplate(path string, overwrite bool) error {
	if !overwrite {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("config already exists: %s", path)
		}
	}
	return os.WriteFile(path, []byte(processorTemplate), 0o600)
}

const processorTemplate = `# validator endpoint, host:port or tcp://host:port
endpoint = "tcp://localhost:4004"

workers = 4
# 0 leaves the process request queue unbounded
queue_limit = 0
# 0 sends every state call as one request
max_state_batch = 0
# 0 retries the dial forever
max_connect_attempts = 0
reconnect = false

connect_timeout = "5s"
write_timeout = "10s"
request_timeout = "300s"
register_timeout = "300s"
shutdown_timeout = "10s"

# admin_addr = "127.0.0.1:9090"
# admin_token = "change-me"
log_level = "info"

[backoff]
initial_delay = "250ms"
multiplier = 2.0
max_delay = "5s"
jitter = true

[tls]
enabled = false
mutual = false
# ca_file = "/etc/txprocessor/ca.crt"
# cert_file = "/etc/txprocessor/processor.crt"
# key_file = "/etc/txprocessor/processor.key"
# server_name = "validator.local"
insecure_skip_verify = false
`
