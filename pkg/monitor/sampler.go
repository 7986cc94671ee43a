package monitor

import (
	"context"
	"errors"
	"fmt"
	"os"
	"runtime"
	"sync"

	"github.com/shirou/gopsutil/v4/mem"
	"github.com/shirou/gopsutil/v4/process"
)

// ResourceSample is a point-in-time view of process resource usage.
// CPU, Memory and Heap are percentages.
type ResourceSample struct {
	CPU        float64 `json:"cpu"`
	Memory     float64 `json:"memory"`
	Heap       float64 `json:"heap"`
	RSS        uint64  `json:"rss"`
	TotalMem   uint64  `json:"totalMemory"`
	HeapAlloc  uint64  `json:"heapAlloc"`
	HeapSys    uint64  `json:"heapSys"`
	Goroutines int     `json:"goroutines"`
}

// HeapRatio returns HeapAlloc / HeapSys in [0, 1]
func (r ResourceSample) HeapRatio() float64 {
	if r.HeapSys == 0 {
		return 0
	}
	return float64(r.HeapAlloc) / float64(r.HeapSys)
}

// ResourceSampler reads current resource usage. Implementations must not
// perform network I/O.
type ResourceSampler interface {
	Sample(ctx context.Context) (ResourceSample, error)
}

// Peeker is implemented by samplers that can read current usage without
// advancing a measurement baseline. GetMetrics prefers it over Sample.
type Peeker interface {
	Peek(ctx context.Context) (ResourceSample, error)
}

// ProcessSampler samples the current process with gopsutil and the Go runtime
type ProcessSampler struct {
	mu   sync.Mutex
	proc *process.Process
}

// NewProcessSampler creates a sampler for the running process
func NewProcessSampler(ctx context.Context) (*ProcessSampler, error) {
	proc, err := process.NewProcessWithContext(ctx, int32(os.Getpid()))
	if err != nil {
		return nil, fmt.Errorf("failed to open process %d: %w", os.Getpid(), err)
	}
	s := &ProcessSampler{proc: proc}
	// Prime the CPU counters so the first real sample has a baseline
	_, _ = proc.PercentWithContext(ctx, 0)
	return s, nil
}

// Sample reads CPU, memory and heap usage. Runtime figures are always
// filled in; the returned error joins whatever the OS reads failed on.
// CPU is measured since the previous Sample call.
func (s *ProcessSampler) Sample(ctx context.Context) (ResourceSample, error) {
	return s.read(ctx, true)
}

// Peek reads memory and heap usage and leaves CPU at zero, so the CPU
// interval of the next Sample is not shortened.
func (s *ProcessSampler) Peek(ctx context.Context) (ResourceSample, error) {
	return s.read(ctx, false)
}

func (s *ProcessSampler) read(ctx context.Context, withCPU bool) (ResourceSample, error) {
	out := runtimeSample()

	s.mu.Lock()
	defer s.mu.Unlock()

	var errs []error
	if withCPU {
		if cpu, err := s.proc.PercentWithContext(ctx, 0); err != nil {
			errs = append(errs, fmt.Errorf("cpu: %w", err))
		} else {
			out.CPU = cpu / float64(runtime.NumCPU())
		}
	}

	if info, err := s.proc.MemoryInfoWithContext(ctx); err != nil {
		errs = append(errs, fmt.Errorf("rss: %w", err))
	} else {
		out.RSS = info.RSS
	}

	if vm, err := mem.VirtualMemoryWithContext(ctx); err != nil {
		errs = append(errs, fmt.Errorf("total memory: %w", err))
	} else {
		out.TotalMem = vm.Total
	}
	if out.TotalMem > 0 {
		out.Memory = float64(out.RSS) / float64(out.TotalMem) * 100
	}

	return out, errors.Join(errs...)
}

// RuntimeSampler reports only Go runtime heap figures. Used when the process
// cannot be inspected.
type RuntimeSampler struct{}

// Sample implements ResourceSampler
func (RuntimeSampler) Sample(ctx context.Context) (ResourceSample, error) {
	return runtimeSample(), nil
}

func runtimeSample() ResourceSample {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)

	out := ResourceSample{
		HeapAlloc:  ms.HeapAlloc,
		HeapSys:    ms.HeapSys,
		Goroutines: runtime.NumGoroutine(),
	}
	out.Heap = out.HeapRatio() * 100
	return out
}
