package instance

import (
	"os"

	"github.com/angelmondragon/miravo-storefront/pkg/env"
)

// GetID returns the process instance identifier used to tag log entries. It
// prefers an explicit id, then the platform dyno name, then the hostname.
func GetID() string {
	if id := env.First("", "MIRAVO_INSTANCE_ID", "DYNO"); id != "" {
		return id
	}
	if host, err := os.Hostname(); err == nil && host != "" {
		return host
	}
	return "local"
}
