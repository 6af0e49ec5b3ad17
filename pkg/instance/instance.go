package instance

import "os"

// GetID names this process for log correlation. Orchestrators can inject
// VENDIQUE_WORKER_ID; containers fall back to the hostname.
func GetID() string {
	if id := os.Getenv("VENDIQUE_WORKER_ID"); id != "" {
		return id
	}
	if host, err := os.Hostname(); err == nil && host != "" {
		return host
	}
	return "worker-0"
}
