package process

import (
	"fmt"
	"time"
)

// Identity is the record of one spawned process.
// ProcStart is the OS-reported start time in Unix seconds, 0 when unavailable.
type Identity struct {
	PID       int       `json:"pid"`
	StartedAt time.Time `json:"started_at"`
	ProcStart int64     `json:"proc_start,omitempty"`
}

// Reused reports whether the PID now belongs to a different process than the
// one recorded in the identity.
func (id Identity) Reused() bool {
	if id.ProcStart <= 0 {
		return false
	}
	cur := getProcStartUnix(id.PID)
	return cur > 0 && cur != id.ProcStart
}

// ExitInfo is delivered to Listeners.OnExit once the process has been reaped.
type ExitInfo struct {
	PID    int       `json:"pid"`
	Code   int       `json:"code"`
	Signal string    `json:"signal,omitempty"`
	Err    error     `json:"-"`
	At     time.Time `json:"at"`
}

func (e ExitInfo) String() string {
	if e.Signal != "" {
		return fmt.Sprintf("pid %d killed by %s", e.PID, e.Signal)
	}
	return fmt.Sprintf("pid %d exited with code %d", e.PID, e.Code)
}
