// Package memprobe reports per-session memory usage, keyed by terminal
// device. Strictly best-effort: a tty with no measurable process simply has
// no entry, and errors never propagate past this package.
package memprobe

import (
	"context"
	"log/slog"
	"strings"

	"github.com/shirou/gopsutil/v3/process"

	"github.com/twistedxcom/statusdeck/internal/logging"
)

var probeLog = logging.ForComponent(logging.CompProbe)

// Prober measures memory usage for the processes attached to a set of ttys.
type Prober interface {
	// MemoryByTTY returns RSS bytes per tty. Missing ttys are tolerated.
	MemoryByTTY(ctx context.Context, ttys []string) map[string]uint64
}

// ProcProber walks the process table and sums RSS for processes whose
// controlling terminal matches a requested tty.
type ProcProber struct {
	// listProcesses is injectable for tests.
	listProcesses func(ctx context.Context) ([]procInfo, error)
}

type procInfo struct {
	Terminal string
	RSS      uint64
}

// NewProcProber creates a prober backed by the process table.
func NewProcProber() *ProcProber {
	return &ProcProber{listProcesses: listRealProcesses}
}

// MemoryByTTY implements Prober. Each probe walks the full process table
// once; this sits on the reconciliation path, so pass latency grows with
// process count. Known throughput ceiling, not a bug.
func (p *ProcProber) MemoryByTTY(ctx context.Context, ttys []string) map[string]uint64 {
	out := make(map[string]uint64)
	if len(ttys) == 0 {
		return out
	}

	procs, err := p.listProcesses(ctx)
	if err != nil {
		probeLog.Debug("process_list_failed", slog.String("error", err.Error()))
		return out
	}

	// The process table reports terminals without the /dev prefix.
	want := make(map[string]string, len(ttys))
	for _, tty := range ttys {
		if tty == "" {
			continue
		}
		want[strings.TrimPrefix(tty, "/dev/")] = tty
	}

	for _, pr := range procs {
		if pr.Terminal == "" {
			continue
		}
		if full, ok := want[strings.TrimPrefix(pr.Terminal, "/dev/")]; ok {
			out[full] += pr.RSS
		}
	}
	return out
}

func listRealProcesses(ctx context.Context) ([]procInfo, error) {
	procs, err := process.ProcessesWithContext(ctx)
	if err != nil {
		return nil, err
	}

	out := make([]procInfo, 0, len(procs))
	for _, pr := range procs {
		term, err := pr.TerminalWithContext(ctx)
		if err != nil || term == "" {
			continue
		}
		mem, err := pr.MemoryInfoWithContext(ctx)
		if err != nil || mem == nil {
			continue
		}
		out = append(out, procInfo{Terminal: term, RSS: mem.RSS})
	}
	return out, nil
}
