package config

import (
	"fmt"
	"os"
)

// Template returns a commented config file holding the defaults.
func Template() string {
	return defaultTemplate
}

func WriteTemplate(path string, overwrite bool) error {
	if !overwrite {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("config: already exists: %s", path)
		}
	}
	return os.WriteFile(path, []byte(defaultTemplate), 0o600)
}

const defaultTemplate = `# linkollector configuration
bind = "*"
port = 17729

# requests buffered across connections before readers pause
queue_depth = 64
max_payload_bytes = 1048576

# durations use Go syntax; "0s" disables read_timeout and ack_timeout
read_timeout = "0s"
write_timeout = "15s"
connect_timeout = "5s"
ack_timeout = "0s"

response_buffer = 16

# empty disables the Prometheus listener
metrics_addr = ""
inline = false
`
