// Package sysinfo describes the machine a run is timed on, so timing
// reports from different thread counts can be compared.
package sysinfo

import (
	"context"
	"runtime"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/host"
	"github.com/shirou/gopsutil/v3/mem"
	log "github.com/sirupsen/logrus"
)

// Host is a best-effort snapshot; fields that could not be read are zero
type Host struct {
	OS              string
	Platform        string
	PlatformVersion string
	Arch            string
	LogicalCPUs     int
	PhysicalCPUs    int
	TotalRAM        uint64
	AvailableRAM    uint64
	GoMaxProcs      int
}

// replaced in tests
var (
	hostInfo      = host.InfoWithContext
	cpuCounts     = cpu.CountsWithContext
	virtualMemory = mem.VirtualMemoryWithContext
)

// Collect reads the host snapshot. Individual lookup failures are ignored.
func Collect(ctx context.Context) Host {
	h := Host{
		OS:         runtime.GOOS,
		Arch:       runtime.GOARCH,
		GoMaxProcs: runtime.GOMAXPROCS(0),
	}

	if info, err := hostInfo(ctx); err == nil && info != nil {
		h.Platform = info.Platform
		h.PlatformVersion = info.PlatformVersion
		if info.KernelArch != "" {
			h.Arch = info.KernelArch
		}
	}
	if n, err := cpuCounts(ctx, true); err == nil {
		h.LogicalCPUs = n
	}
	if n, err := cpuCounts(ctx, false); err == nil {
		h.PhysicalCPUs = n
	}
	if vm, err := virtualMemory(ctx); err == nil && vm != nil {
		h.TotalRAM = vm.Total
		h.AvailableRAM = vm.Available
	}
	return h
}

// Oversubscribed reports whether threads exceeds the logical CPU count.
// An unknown CPU count is never oversubscribed.
func (h Host) Oversubscribed(threads int) bool {
	return h.LogicalCPUs > 0 && threads > h.LogicalCPUs
}

// Fields returns h as log fields
func (h Host) Fields() log.Fields {
	return log.Fields{
		"os":            h.OS,
		"platform":      h.Platform,
		"version":       h.PlatformVersion,
		"arch":          h.Arch,
		"logical_cpus":  h.LogicalCPUs,
		"physical_cpus": h.PhysicalCPUs,
		"total_ram":     h.TotalRAM,
		"available_ram": h.AvailableRAM,
		"gomaxprocs":    h.GoMaxProcs,
	}
}

// Log writes the snapshot at debug level and warns when threads workers
// would oversubscribe the CPUs
func Log(ctx context.Context, logger *log.Entry, threads int) Host {
	h := Collect(ctx)
	logger.WithFields(h.Fields()).Debug("host")
	if h.Oversubscribed(threads) {
		logger.WithFields(log.Fields{
			"workers":      threads,
			"logical_cpus": h.LogicalCPUs,
		}).Warn("more workers than logical CPUs")
	}
	return h
}
