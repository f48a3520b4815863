// Package sysstats 收集连接器进程与宿主机的运行状态
package sysstats

import (
	"os"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/shirou/gopsutil/v3/host"
	"github.com/shirou/gopsutil/v3/process"
)

// Stats 状态接口返回的进程信息
type Stats struct {
	PID        int           `json:"pid"`
	Goroutines int           `json:"goroutines"`
	HeapAlloc  uint64        `json:"heap_alloc"`
	RSS        uint64        `json:"rss"`
	Memory     string        `json:"memory"`
	CPUPercent float64       `json:"cpu_percent"`
	Uptime     time.Duration `json:"uptime"`
	HostUptime time.Duration `json:"host_uptime"`
	// MemoryLimit 容器内存上限，未限制时为 0
	MemoryLimit uint64 `json:"memory_limit,omitempty"`
}

var started = time.Now()

// Collect 读取当前进程的统计，gopsutil 读取失败的字段保持零值
func Collect() Stats {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	s := Stats{
		PID:        os.Getpid(),
		Goroutines: runtime.NumGoroutine(),
		HeapAlloc:  m.HeapAlloc,
		Uptime:     time.Since(started).Round(time.Second),
	}
	if p, err := process.NewProcess(int32(s.PID)); err == nil {
		if info, err := p.MemoryInfo(); err == nil {
			s.RSS = info.RSS
		}
		if cpu, err := p.CPUPercent(); err == nil {
			s.CPUPercent = cpu
		}
	}
	if seconds, err := host.Uptime(); err == nil {
		s.HostUptime = time.Duration(seconds) * time.Second
	}
	s.MemoryLimit = memoryLimit()
	s.Memory = humanize.IBytes(s.RSS)
	if s.MemoryLimit > 0 {
		s.Memory += " / " + humanize.IBytes(s.MemoryLimit)
	}
	return s
}

// memoryLimit 依次尝试 cgroup v2 和 v1
func memoryLimit() uint64 {
	for _, path := range []string{
		"/sys/fs/cgroup/memory.max",
		"/sys/fs/cgroup/memory/memory.limit_in_bytes",
	} {
		if limit, ok := readLimit(path); ok {
			return limit
		}
	}
	return 0
}

func readLimit(path string) (uint64, bool) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, false
	}
	content := strings.TrimSpace(string(data))
	if content == "max" {
		return 0, true
	}
	value, err := strconv.ParseUint(content, 10, 64)
	if err != nil {
		return 0, false
	}
	// v1 未限制时是一个接近 2^63 的值
	if value >= 1<<62 {
		return 0, true
	}
	return value, true
}
