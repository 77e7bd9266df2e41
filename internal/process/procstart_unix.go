//go:build !windows

package process

import (
	"bufio"
	"bytes"
	"os"
	"runtime"
	"strconv"
	"strings"
	"sync"

	gopsproc "github.com/shirou/gopsutil/v4/process"
	sysconf "github.com/tklauser/go-sysconf"
)

var (
	bootOnce sync.Once
	bootTime int64
	clkTck   int64 = 100
)

// getProcStartUnix returns the start time of pid in Unix seconds, or 0.
func getProcStartUnix(pid int) int64 {
	if pid <= 0 {
		return 0
	}
	if runtime.GOOS == "linux" {
		return linuxProcStart(pid)
	}
	p, err := gopsproc.NewProcess(int32(pid))
	if err != nil {
		return 0
	}
	ms, err := p.CreateTime()
	if err != nil || ms <= 0 {
		return 0
	}
	return ms / 1000
}

// linuxProcStart combines /proc/<pid>/stat starttime (ticks since boot) with btime.
func linuxProcStart(pid int) int64 {
	b, err := os.ReadFile("/proc/" + strconv.Itoa(pid) + "/stat")
	if err != nil {
		return 0
	}
	fields := statFields(b)
	// starttime is field 22; fields starts at field 3 (state).
	if len(fields) < 20 {
		return 0
	}
	ticks, err := strconv.ParseInt(fields[19], 10, 64)
	if err != nil || ticks <= 0 {
		return 0
	}
	bootOnce.Do(loadBootInfo)
	if bootTime == 0 {
		return 0
	}
	return bootTime + ticks/clkTck
}

// statFields returns the fields of /proc/<pid>/stat after the comm field,
// which may itself contain spaces and parentheses.
func statFields(b []byte) []string {
	end := bytes.LastIndex(b, []byte(") "))
	if end < 0 {
		return nil
	}
	return strings.Fields(string(b[end+2:]))
}

func loadBootInfo() {
	if clk, err := sysconf.Sysconf(sysconf.SC_CLK_TCK); err == nil && clk > 0 {
		clkTck = clk
	}
	f, err := os.Open("/proc/stat")
	if err != nil {
		return
	}
	defer func() { _ = f.Close() }()
	s := bufio.NewScanner(f)
	for s.Scan() {
		v, ok := strings.CutPrefix(s.Text(), "btime ")
		if !ok {
			continue
		}
		if bt, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64); err == nil {
			bootTime = bt
		}
		return
	}
}

// isZombieLinux reports whether pid is in state Z (exited, not yet reaped).
func isZombieLinux(pid int) bool {
	b, err := os.ReadFile("/proc/" + strconv.Itoa(pid) + "/stat")
	if err != nil {
		return false
	}
	fields := statFields(b)
	return len(fields) > 0 && fields[0] == "Z"
}
