package monitor

import (
	"context"
	"fmt"
	"time"

	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/host"
	"github.com/shirou/gopsutil/v4/mem"
)

// CoreTimes 是单个逻辑核自开机以来的累计时间（秒）。
type CoreTimes struct {
	Idle  float64
	Total float64
}

// MemoryStats 是主机内存（字节）。
type MemoryStats struct {
	Total uint64 `json:"total"`
	Used  uint64 `json:"used"`
	Free  uint64 `json:"free"`
}

// HostSample 是一次主机采样的原始数据。
type HostSample struct {
	Cores  []CoreTimes
	Memory MemoryStats
	Uptime time.Duration
}

// Sampler 读取主机的 CPU、内存与运行时长。
type Sampler interface {
	Sample(ctx context.Context) (HostSample, error)
}

// HostSampler 通过 gopsutil 读取本机数据。
type HostSampler struct{}

func (HostSampler) Sample(ctx context.Context) (HostSample, error) {
	times, err := cpu.TimesWithContext(ctx, true)
	if err != nil {
		return HostSample{}, fmt.Errorf("read cpu times: %w", err)
	}
	vm, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		return HostSample{}, fmt.Errorf("read memory: %w", err)
	}
	uptime, err := host.UptimeWithContext(ctx)
	if err != nil {
		return HostSample{}, fmt.Errorf("read uptime: %w", err)
	}

	cores := make([]CoreTimes, 0, len(times))
	for _, t := range times {
		// Guest 已计入 User，不重复累加
		total := t.User + t.System + t.Idle + t.Nice + t.Iowait + t.Irq + t.Softirq + t.Steal
		cores = append(cores, CoreTimes{Idle: t.Idle, Total: total})
	}

	free := vm.Available
	if free > vm.Total {
		free = vm.Total
	}
	return HostSample{
		Cores: cores,
		Memory: MemoryStats{
			Total: vm.Total,
			Used:  vm.Total - free,
			Free:  free,
		},
		Uptime: time.Duration(uptime) * time.Second,
	}, nil
}
