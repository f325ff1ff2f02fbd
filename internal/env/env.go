// Package env describes the host that produced a report.
package env

import (
	"fmt"
	"net"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"

	"github.com/google/uuid"
)

// Version is sent in the user agent.
const Version = "0.1.0"

const instanceIDFile = "instance-id"

// Collector builds EnvInfo values. The instance id is resolved once.
type Collector struct {
	stateDir string

	once       sync.Once
	instanceID string
}

// NewCollector returns a Collector that keeps its instance id under stateDir.
// An empty stateDir uses ~/.logbuf.
func NewCollector(stateDir string) *Collector {
	return &Collector{stateDir: stateDir}
}

// Collect snapshots the current environment.
func (c *Collector) Collect() EnvInfo {
	c.once.Do(func() {
		c.instanceID = ensureInstanceID(c.stateDir)
	})
	return EnvInfo{
		Network:      network(),
		Platform:     runtime.GOOS + "/" + runtime.GOARCH,
		DeviceMemory: deviceMemory(),
		UserAgent:    fmt.Sprintf("logbuf/%s (%s; %s)", Version, runtime.GOOS, runtime.Version()),
		InstanceID:   c.instanceID,
	}
}

// ensureInstanceID reads the persistent instance id, creating it if needed.
// Any filesystem failure yields an ephemeral id.
func ensureInstanceID(dir string) string {
	if dir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return uuid.New().String()
		}
		dir = filepath.Join(home, ".logbuf")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return uuid.New().String()
	}

	path := filepath.Join(dir, instanceIDFile)
	if data, err := os.ReadFile(path); err == nil {
		if id := strings.TrimSpace(string(data)); id != "" {
			return id
		}
	}

	id := uuid.New().String()
	_ = os.WriteFile(path, []byte(id), 0o644)
	return id
}

// network reports the names of up, non-loopback interfaces. The host counts
// as online when at least one exists.
func network() Network {
	ifaces, err := net.Interfaces()
	if err != nil {
		return Network{}
	}
	var names []string
	for _, iface := range ifaces {
		if iface.Flags&net.FlagUp == 0 || iface.Flags&net.FlagLoopback != 0 {
			continue
		}
		names = append(names, iface.Name)
	}
	return Network{Online: len(names) > 0, Interfaces: names}
}

// roundMemory converts a byte count to GiB, rounded down to a power of two and
// capped at 8. Sub-GiB values round to 0.25, 0.5 or 0 steps.
func roundMemory(bytes uint64) float64 {
	if bytes == 0 {
		return 0
	}
	gib := float64(bytes) / (1 << 30)
	steps := []float64{8, 4, 2, 1, 0.5, 0.25}
	for _, step := range steps {
		if gib >= step {
			return step
		}
	}
	return 0
}
