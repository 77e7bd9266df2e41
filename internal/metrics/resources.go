package metrics

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/shirou/gopsutil/v4/process"
)

var (
	daemonCPU = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "daemon",
		Name:      "cpu_percent",
		Help:      "CPU usage percentage of the indexing daemon.",
	})
	daemonRSS = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "daemon",
		Name:      "memory_rss_bytes",
		Help:      "Resident memory of the indexing daemon.",
	})
	daemonThreads = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "daemon",
		Name:      "num_threads",
		Help:      "Thread count of the indexing daemon.",
	})
)

// Usage is one resource sample of a process.
type Usage struct {
	PID        int       `json:"pid"`
	CPUPercent float64   `json:"cpu_percent"`
	RSSBytes   uint64    `json:"rss_bytes"`
	NumThreads int32     `json:"num_threads"`
	SampledAt  time.Time `json:"sampled_at"`
}

// sampleUsage reads CPU and memory usage of p. CPU is measured since the
// previous call on the same handle; the first call reports 0.
func sampleUsage(p *process.Process) (Usage, error) {
	cpu, err := p.Percent(0)
	if err != nil {
		return Usage{}, err
	}
	u := Usage{PID: int(p.Pid), CPUPercent: cpu, SampledAt: time.Now()}
	if mem, err := p.MemoryInfo(); err == nil && mem != nil {
		u.RSSBytes = mem.RSS
	}
	if n, err := p.NumThreads(); err == nil {
		u.NumThreads = n
	}
	return u, nil
}

// ResourceCollector samples the daemon returned by pid every Interval and
// keeps the latest sample. pid returns 0 when nothing is running.
type ResourceCollector struct {
	Interval time.Duration
	Logger   *slog.Logger

	mu   sync.RWMutex
	last *Usage

	// handle reused across samples of the same pid; owned by Run
	proc *process.Process
}

// Last returns the latest sample, or nil.
func (c *ResourceCollector) Last() *Usage {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.last
}

// Run samples until ctx is done.
func (c *ResourceCollector) Run(ctx context.Context, pid func() int) {
	interval := c.Interval
	if interval <= 0 {
		interval = 10 * time.Second
	}
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		c.sample(pid())
		select {
		case <-ctx.Done():
			return
		case <-t.C:
		}
	}
}

func (c *ResourceCollector) sample(pid int) {
	if pid <= 0 {
		c.proc = nil
		c.store(nil)
		return
	}
	if c.proc == nil || int(c.proc.Pid) != pid {
		p, err := process.NewProcess(int32(pid))
		if err != nil {
			c.fail(pid, err)
			return
		}
		c.proc = p
	}
	u, err := sampleUsage(c.proc)
	if err != nil {
		c.fail(pid, err)
		return
	}
	c.store(&u)
}

func (c *ResourceCollector) fail(pid int, err error) {
	if c.Logger != nil {
		c.Logger.Debug("resource sample failed", "pid", pid, "error", err)
	}
	c.proc = nil
	c.store(nil)
}

func (c *ResourceCollector) store(u *Usage) {
	c.mu.Lock()
	c.last = u
	c.mu.Unlock()
	if !regOK.Load() {
		return
	}
	if u == nil {
		daemonCPU.Set(0)
		daemonRSS.Set(0)
		daemonThreads.Set(0)
		return
	}
	daemonCPU.Set(u.CPUPercent)
	daemonRSS.Set(float64(u.RSSBytes))
	daemonThreads.Set(float64(u.NumThreads))
}
