// Package agentstatus reports host telemetry for a running page agent,
// served on its local status endpoint and answered for AGENT_STATUS
// requests.
package agentstatus

import (
	"context"
	"net/http"
	"os"
	"time"

	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/mem"
	"github.com/shirou/gopsutil/v4/process"

	"github.com/lexiview/bridge/bus"
)

// Snapshot is one telemetry sample.
type Snapshot struct {
	ContextID   string  `json:"context_id"`
	Kind        string  `json:"kind"`
	Channel     string  `json:"channel"`
	UptimeSec   int64   `json:"uptime_sec"`
	CPUPercent  float64 `json:"cpu_percent"`
	MemRSSBytes uint64  `json:"mem_rss_bytes"`
	HostMemUsed float64 `json:"host_mem_used_percent"`
}

// Reporter samples the current process and host.
type Reporter struct {
	contextID string
	kind      string
	started   time.Time
	state     func() bus.State
}

func NewReporter(contextID, kind string, state func() bus.State) *Reporter {
	return &Reporter{contextID: contextID, kind: kind, started: time.Now(), state: state}
}

// Snapshot gathers a sample. Telemetry probes that fail leave their
// fields zero rather than failing the whole snapshot.
func (r *Reporter) Snapshot(ctx context.Context) Snapshot {
	s := Snapshot{
		ContextID: r.contextID,
		Kind:      r.kind,
		Channel:   r.state().String(),
		UptimeSec: int64(time.Since(r.started).Seconds()),
	}
	if pcts, err := cpu.PercentWithContext(ctx, 0, false); err == nil && len(pcts) > 0 {
		s.CPUPercent = pcts[0]
	}
	if vm, err := mem.VirtualMemoryWithContext(ctx); err == nil {
		s.HostMemUsed = vm.UsedPercent
	}
	if p, err := process.NewProcess(int32(os.Getpid())); err == nil {
		if mi, err := p.MemoryInfoWithContext(ctx); err == nil {
			s.MemRSSBytes = mi.RSS
		}
	}
	return s
}

// Handler serves the snapshot as JSON on the agent's status endpoint.
func (r *Reporter) Handler() http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		bus.WriteJSON(w, r.Snapshot(req.Context()))
	}
}
