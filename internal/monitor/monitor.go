// Package monitor 周期性采集主机与进程指标，并统计请求延迟与通道计数。
// 指标只能被拉取，不主动推送。
package monitor

import (
	"context"
	"runtime"
	"sync"
	"time"

	"pai-dashboard-go/pkg/log"
)

// Options 控制采样节奏。零值字段使用默认值。
type Options struct {
	SampleInterval  time.Duration
	CleanupInterval time.Duration
	Window          time.Duration
	Now             func() time.Time
}

func (o Options) withDefaults() Options {
	if o.SampleInterval <= 0 {
		o.SampleInterval = 2 * time.Second
	}
	if o.CleanupInterval <= 0 {
		o.CleanupInterval = time.Minute
	}
	if o.Window <= 0 {
		o.Window = 5 * time.Minute
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	return o
}

// SystemMetrics 是主机层面的指标。
type SystemMetrics struct {
	CPU    float64     `json:"cpu"` // 百分比 [0,100]
	Memory MemoryStats `json:"memory"`
	Uptime float64     `json:"uptime"` // 秒
}

// ApplicationMetrics 是应用层计数。
type ApplicationMetrics struct {
	Requests          uint64  `json:"requests"`
	Errors            uint64  `json:"errors"`
	AvgResponseTime   float64 `json:"avgResponseTime"` // 毫秒
	MessagesSent      uint64  `json:"messagesSent"`
	MessagesReceived  uint64  `json:"messagesReceived"`
	ActiveConnections int64   `json:"activeConnections"`
}

// ResourceMetrics 是 Go 运行时的堆内存（字节）。
type ResourceMetrics struct {
	HeapUsed  uint64 `json:"heapUsed"`
	HeapTotal uint64 `json:"heapTotal"`
	External  uint64 `json:"external"`
}

// Snapshot 是某一时刻的完整指标。
type Snapshot struct {
	System      SystemMetrics      `json:"system"`
	Application ApplicationMetrics `json:"application"`
	Resources   ResourceMetrics    `json:"resources"`
	Timestamp   int64              `json:"timestamp"` // 毫秒
}

// HostMetrics 是 /api/metrics 返回的精简视图。
type HostMetrics struct {
	CPU       float64     `json:"cpu"`
	Memory    MemoryStats `json:"memory"`
	Timestamp int64       `json:"timestamp"`
}

// Utilization 是带百分比的资源使用情况。
type Utilization struct {
	CPU    float64 `json:"cpu"`
	Memory struct {
		Percentage float64 `json:"percentage"`
		MemoryStats
	} `json:"memory"`
	Heap struct {
		Percentage float64 `json:"percentage"`
		ResourceMetrics
	} `json:"heap"`
}

// ModelStatus 描述服务的存活情况。
type ModelStatus struct {
	Status      string  `json:"status"`
	Uptime      float64 `json:"uptime"`      // 进程运行秒数
	LastRequest int64   `json:"lastRequest"` // 毫秒，尚无请求时为 0
}

type latencySample struct {
	ms float64
	at time.Time
}

// Reporter 持有最新的采样结果与应用计数。所有方法都可并发调用。
type Reporter struct {
	sampler Sampler
	opts    Options
	started time.Time

	mu          sync.Mutex
	system      SystemMetrics
	resources   ResourceMetrics
	app         ApplicationMetrics
	latencies   []latencySample
	lastRequest time.Time
	prevCores   []CoreTimes

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New 创建一个 Reporter。调用 Start 之前快照为零值。
func New(sampler Sampler, opts Options) *Reporter {
	opts = opts.withDefaults()
	return &Reporter{
		sampler: sampler,
		opts:    opts,
		started: opts.Now(),
	}
}

// Start 立即采样一次，然后在后台按间隔采样与清理，直到 ctx 取消或 Close。
func (r *Reporter) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	r.cancel = cancel

	r.sample(ctx)

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		sampleTicker := time.NewTicker(r.opts.SampleInterval)
		defer sampleTicker.Stop()
		cleanupTicker := time.NewTicker(r.opts.CleanupInterval)
		defer cleanupTicker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-sampleTicker.C:
				r.sample(ctx)
			case <-cleanupTicker.C:
				r.prune()
			}
		}
	}()
}

// Close 停止后台采样并等待其退出。
func (r *Reporter) Close() {
	if r.cancel != nil {
		r.cancel()
	}
	r.wg.Wait()
}

func (r *Reporter) sample(ctx context.Context) {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)
	resources := ResourceMetrics{
		HeapUsed:  ms.HeapAlloc,
		HeapTotal: ms.HeapSys,
		External:  ms.Sys - ms.HeapSys,
	}

	hs, err := r.sampler.Sample(ctx)

	r.mu.Lock()
	defer r.mu.Unlock()
	r.resources = resources
	if err != nil {
		if ctx.Err() == nil {
			log.Warnw("Host sampling failed", "error", err)
		}
		return
	}
	r.system = SystemMetrics{
		CPU:    cpuPercent(r.prevCores, hs.Cores),
		Memory: hs.Memory,
		Uptime: hs.Uptime.Seconds(),
	}
	r.prevCores = hs.Cores
}

// cpuPercent 计算各核非空闲时间占比的平均值。有上一次采样时使用两次采样的差值，
// 否则使用开机以来的累计值。
func cpuPercent(prev, cur []CoreTimes) float64 {
	var sum float64
	var n int
	for i, c := range cur {
		idle, total := c.Idle, c.Total
		if len(prev) == len(cur) {
			idle -= prev[i].Idle
			total -= prev[i].Total
		}
		if total <= 0 {
			continue
		}
		sum += (total - idle) / total
		n++
	}
	if n == 0 {
		return 0
	}
	pct := sum / float64(n) * 100
	if pct < 0 {
		return 0
	}
	if pct > 100 {
		return 100
	}
	return pct
}

// prune 丢弃窗口之外的延迟样本。
func (r *Reporter) prune() {
	cutoff := r.opts.Now().Add(-r.opts.Window)
	r.mu.Lock()
	defer r.mu.Unlock()
	kept := r.latencies[:0]
	for _, s := range r.latencies {
		if s.at.After(cutoff) {
			kept = append(kept, s)
		}
	}
	r.latencies = kept
}

// RecordRequest 记录一次 HTTP 请求的延迟与结果。
func (r *Reporter) RecordRequest(latency time.Duration, isError bool) {
	now := r.opts.Now()
	r.mu.Lock()
	defer r.mu.Unlock()
	r.app.Requests++
	if isError {
		r.app.Errors++
	}
	r.latencies = append(r.latencies, latencySample{ms: float64(latency) / float64(time.Millisecond), at: now})
	r.lastRequest = now
}

// ConnectionOpened 与 ConnectionClosed 维护当前的通道连接数。
func (r *Reporter) ConnectionOpened() { r.addConnections(1) }

func (r *Reporter) ConnectionClosed() { r.addConnections(-1) }

func (r *Reporter) addConnections(delta int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.app.ActiveConnections += delta
}

// ActiveConnections 返回当前的通道连接数。
func (r *Reporter) ActiveConnections() int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.app.ActiveConnections
}

// MessageReceived 记录一个入站信封。
func (r *Reporter) MessageReceived() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.app.MessagesReceived++
}

// MessageSent 记录一个成功发出的出站信封。
func (r *Reporter) MessageSent() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.app.MessagesSent++
}

// Snapshot 返回最新的采样结果与当前时间戳。
func (r *Reporter) Snapshot() Snapshot {
	now := r.opts.Now()
	r.mu.Lock()
	defer r.mu.Unlock()

	app := r.app
	if len(r.latencies) > 0 {
		var sum float64
		for _, s := range r.latencies {
			sum += s.ms
		}
		app.AvgResponseTime = sum / float64(len(r.latencies))
	}
	return Snapshot{
		System:      r.system,
		Application: app,
		Resources:   r.resources,
		Timestamp:   now.UnixMilli(),
	}
}

// HostMetrics 返回 CPU、内存与时间戳。
func (r *Reporter) HostMetrics() HostMetrics {
	s := r.Snapshot()
	return HostMetrics{CPU: s.System.CPU, Memory: s.System.Memory, Timestamp: s.Timestamp}
}

// ResourceUtilization 返回内存与堆的使用率。分母为 0 时百分比为 0。
func (r *Reporter) ResourceUtilization() Utilization {
	s := r.Snapshot()
	var u Utilization
	u.CPU = s.System.CPU
	u.Memory.MemoryStats = s.System.Memory
	u.Memory.Percentage = percent(s.System.Memory.Used, s.System.Memory.Total)
	u.Heap.ResourceMetrics = s.Resources
	u.Heap.Percentage = percent(s.Resources.HeapUsed, s.Resources.HeapTotal)
	return u
}

// ModelStatus 返回进程运行时长与最近一次请求时间。
func (r *Reporter) ModelStatus() ModelStatus {
	now := r.opts.Now()
	r.mu.Lock()
	last := r.lastRequest
	r.mu.Unlock()

	status := ModelStatus{Status: "active", Uptime: now.Sub(r.started).Seconds()}
	if !last.IsZero() {
		status.LastRequest = last.UnixMilli()
	}
	return status
}

func percent(part, whole uint64) float64 {
	if whole == 0 {
		return 0
	}
	return float64(part) / float64(whole) * 100
}
