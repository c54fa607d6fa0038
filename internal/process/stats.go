package process

import (
	gopsproc "github.com/shirou/gopsutil/v4/process"
)

// ResourceUsage samples CPU percent and resident memory for a running
// pid. Zero values mean the sample was unavailable, not that usage is
// actually zero.
func ResourceUsage(pid int) (cpuPercent float64, rssBytes uint64) {
	if pid <= 0 {
		return 0, 0
	}
	p, err := gopsproc.NewProcess(int32(pid))
	if err != nil {
		return 0, 0
	}
	if v, err := p.CPUPercent(); err == nil {
		cpuPercent = v
	}
	if mi, err := p.MemoryInfo(); err == nil && mi != nil {
		rssBytes = mi.RSS
	}
	return cpuPercent, rssBytes
}
