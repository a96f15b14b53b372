package instance

import "os"

const (
	EnvInstanceID = "PACKFINDERZ_INSTANCE_ID"
	envDyno       = "DYNO"
)

var hostname = os.Hostname

// ID names this process in logs and lock owners. It prefers an explicit
// instance id, then the platform dyno name, then the hostname.
func ID() string {
	for _, key := range []string{EnvInstanceID, envDyno} {
		if id := os.Getenv(key); id != "" {
			return id
		}
	}
	if host, err := hostname(); err == nil && host != "" {
		return host
	}
	return "local"
}
