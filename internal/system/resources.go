package system

import (
	"runtime"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
)

// bytesPerWorker is a rough budget for one segment worker: decoded source
// frames, the target canvas and the encoder pipe buffers.
const bytesPerWorker = 512 << 20

// RecommendedWorkers sizes the segment pool by logical CPUs and available
// memory, whichever is tighter. It never returns less than 1.
func RecommendedWorkers() int {
	workers, err := cpu.Counts(true)
	if err != nil || workers <= 0 {
		workers = runtime.NumCPU()
	}

	if vm, err := mem.VirtualMemory(); err == nil && vm.Available > 0 {
		if byMem := int(vm.Available / bytesPerWorker); byMem < workers {
			workers = byMem
		}
	}

	if workers < 1 {
		workers = 1
	}
	return workers
}

// Snapshot is a point-in-time view of host resources for the render report.
type Snapshot struct {
	LogicalCPUs    int
	MemTotal       uint64
	MemAvailable   uint64
	MemUsedPercent float64
}

// TakeSnapshot collects a Snapshot; fields that cannot be read stay zero.
func TakeSnapshot() Snapshot {
	var s Snapshot
	if n, err := cpu.Counts(true); err == nil {
		s.LogicalCPUs = n
	}
	if vm, err := mem.VirtualMemory(); err == nil {
		s.MemTotal = vm.Total
		s.MemAvailable = vm.Available
		s.MemUsedPercent = vm.UsedPercent
	}
	return s
}
