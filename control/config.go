package control

import "sync"

// Config holds every recognized configuration key for the server core.
// CPUAffinity is -1 when no specific CPU should be pinned.
type Config struct {
	Host                    string
	Port                    int
	CleanupIntervalSeconds  int
	ConnectionTimeoutMillis int
	MaxRequestSize          int
	ResponseBufferSize      int
	MaxTasksPerIteration    int
	CPUAffinity             int
}

// DefaultConfig returns the documented defaults.
func DefaultConfig() Config {
	return Config{
		Host:                    "localhost",
		Port:                    8082,
		CleanupIntervalSeconds:  30,
		ConnectionTimeoutMillis: 30000,
		MaxRequestSize:          1 << 20,
		ResponseBufferSize:      8 * 1024,
		MaxTasksPerIteration:    10000,
		CPUAffinity:             -1,
	}
}

// ConfigStore holds the configuration a running server was started with.
// It carries no listener-dispatch or SetConfig path: hot configuration
// reload is out of scope, so the snapshot taken at construction never
// changes.
type ConfigStore struct {
	mu  sync.RWMutex
	cfg Config
}

// NewConfigStore wraps cfg for read access from any goroutine.
func NewConfigStore(cfg Config) *ConfigStore {
	return &ConfigStore{cfg: cfg}
}

// Snapshot returns a copy of the stored configuration.
func (cs *ConfigStore) Snapshot() Config {
	cs.mu.RLock()
	defer cs.mu.RUnlock()
	return cs.cfg
}
