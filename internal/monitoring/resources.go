package monitoring

import (
	"os"
	"strconv"
	"strings"

	"github.com/shirou/gopsutil/v3/cpu"
)

// MemoryLimit returns the container memory limit in bytes from the cgroup
// filesystem, trying cgroup v2 first and falling back to v1. Returns 0 with
// a nil error when no limit is detectable (bare metal, VMs, cgroup v2
// containers whose limit is "max"). An unlimited cgroup v1 container has
// its very large limit_in_bytes value returned as is.
func MemoryLimit() (int64, error) {
	if data, err := os.ReadFile("/sys/fs/cgroup/memory.max"); err == nil {
		limitStr := strings.TrimSpace(string(data))
		if limitStr != "max" {
			return strconv.ParseInt(limitStr, 10, 64)
		}
	}

	if data, err := os.ReadFile("/sys/fs/cgroup/memory/memory.limit_in_bytes"); err == nil {
		return strconv.ParseInt(strings.TrimSpace(string(data)), 10, 64)
	}

	return 0, nil
}

// CPUPercent samples host/container CPU usage over a short interval using
// gopsutil, for the readiness endpoint's resource-headroom signal.
func CPUPercent() (float64, error) {
	percents, err := cpu.Percent(0, false)
	if err != nil || len(percents) == 0 {
		return 0, err
	}
	return percents[0], nil
}

// MaxConnectionsForMemory derives a safe WebSocket connection cap from a
// container memory limit, reserving headroom for runtime and per-connection
// buffers. Used as ws.Config.MaxConnections's default when no explicit
// override is configured.
func MaxConnectionsForMemory(memoryLimitBytes int64) int {
	if memoryLimitBytes == 0 {
		return 10000
	}

	const runtimeOverheadBytes = 128 * 1024 * 1024
	const bytesPerConnection = 180 * 1024

	available := memoryLimitBytes - runtimeOverheadBytes
	if available < 0 {
		available = memoryLimitBytes / 2
	}

	maxConns := int(available / bytesPerConnection)
	if maxConns < 100 {
		maxConns = 100
	}
	if maxConns > 50000 {
		maxConns = 50000
	}
	return maxConns
}
