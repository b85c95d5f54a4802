package util

import (
	"fmt"
	"os"
	"runtime"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/host"
	"github.com/shirou/gopsutil/v3/mem"
)

// SystemInfo describes the host running the agent. It is attached to
// telemetry so results from different machines can be told apart.
type SystemInfo struct {
	Hostname     string `json:"hostname"`
	OS           string `json:"os"`
	Architecture string `json:"architecture"`
	CPUModel     string `json:"cpu_model"`
	CPUCores     int    `json:"cpu_cores"`
	TotalMemory  uint64 `json:"total_memory_mb"`
	GoVersion    string `json:"go_version"`
}

// GetSystemInfo gathers static host information. Fields that cannot be
// read are left empty.
func GetSystemInfo() SystemInfo {
	info := SystemInfo{
		Architecture: runtime.GOARCH,
		CPUCores:     runtime.NumCPU(),
		GoVersion:    runtime.Version(),
	}

	if hostname, err := os.Hostname(); err == nil {
		info.Hostname = hostname
	}
	if hostInfo, err := host.Info(); err == nil {
		info.OS = fmt.Sprintf("%s %s", hostInfo.Platform, hostInfo.PlatformVersion)
	} else {
		info.OS = runtime.GOOS
	}
	if cpuInfo, err := cpu.Info(); err == nil && len(cpuInfo) > 0 {
		info.CPUModel = cpuInfo[0].ModelName
	}
	if memInfo, err := mem.VirtualMemory(); err == nil {
		info.TotalMemory = memInfo.Total / (1024 * 1024)
	}
	return info
}

// HostLoad is a point-in-time resource sample.
type HostLoad struct {
	CPUPercent    float64 `json:"cpu_percent"`
	MemoryPercent float64 `json:"memory_percent"`
	DiskPercent   float64 `json:"disk_percent"`
	UptimeSec     uint64  `json:"uptime_sec"`
}

// SampleHostLoad reads current CPU, memory and disk usage. diskPath is the
// filesystem checked for disk usage; an empty path skips it.
func SampleHostLoad(diskPath string) (HostLoad, error) {
	var load HostLoad

	percentages, err := cpu.Percent(0, false)
	if err != nil {
		return load, fmt.Errorf("cpu usage: %w", err)
	}
	if len(percentages) > 0 {
		load.CPUPercent = percentages[0]
	}

	memInfo, err := mem.VirtualMemory()
	if err != nil {
		return load, fmt.Errorf("memory usage: %w", err)
	}
	load.MemoryPercent = memInfo.UsedPercent

	if diskPath != "" {
		if usage, err := disk.Usage(diskPath); err == nil {
			load.DiskPercent = usage.UsedPercent
		}
	}
	if uptime, err := host.Uptime(); err == nil {
		load.UptimeSec = uptime
	}
	return load, nil
}

// EnsureDir creates a directory and all parent directories if they don't exist.
func EnsureDir(path string) error {
	return os.MkdirAll(path, 0755)
}
