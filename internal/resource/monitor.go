// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package resource samples system memory and CPU headroom. The scheduler
// consults it before admitting new work when the pool is saturated; the
// check is advisory backpressure with a bounded wait, never a hard limit.
package resource

import (
	"context"
	"fmt"
	"time"

	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/mem"

	"github.com/pdiddy/docbatch/pkg/types"
)

// Snapshot is an ephemeral, read-only view of system headroom. It is
// regenerated on every admission check and never persisted.
type Snapshot struct {
	// AvailableMemory is the bytes of memory available for new work.
	AvailableMemory uint64

	// CPUPercent is the system-wide CPU utilization, 0-100.
	CPUPercent float64

	// Taken is when the sample was read.
	Taken time.Time
}

// Sampler reads a resource snapshot. The production sampler uses gopsutil;
// tests inject deterministic samplers.
type Sampler interface {
	Sample() (Snapshot, error)
}

// SystemSampler reads live memory and CPU figures from the host.
type SystemSampler struct{}

// Sample returns the current host headroom. The CPU figure is an instant
// reading, not an interval average, so sampling never blocks.
func (SystemSampler) Sample() (Snapshot, error) {
	vm, err := mem.VirtualMemory()
	if err != nil {
		return Snapshot{}, fmt.Errorf("sampling memory: %w", err)
	}

	snap := Snapshot{
		AvailableMemory: vm.Available,
		Taken:           time.Now(),
	}

	percents, err := cpu.Percent(0, false)
	if err == nil && len(percents) > 0 {
		snap.CPUPercent = percents[0]
	}

	return snap, nil
}

// HasHeadroom reports whether the snapshot leaves room for another job
// under the configured floors.
func HasHeadroom(snap Snapshot, cfg types.ResourceConfig) bool {
	if cfg.MinFreeMemory > 0 && snap.AvailableMemory < cfg.MinFreeMemory {
		return false
	}
	if cfg.MaxCPUPercent > 0 && snap.CPUPercent > cfg.MaxCPUPercent {
		return false
	}
	return true
}

// Monitor gates admission of new work on system headroom.
type Monitor struct {
	sampler Sampler
	cfg     types.ResourceConfig
}

// NewMonitor builds a Monitor over the given sampler. Zero-valued config
// fields fall back to the package defaults.
func NewMonitor(sampler Sampler, cfg types.ResourceConfig) *Monitor {
	if cfg.MinFreeMemory == 0 {
		cfg.MinFreeMemory = types.DefaultMinFreeMemory
	}
	if cfg.MaxCPUPercent == 0 {
		cfg.MaxCPUPercent = types.DefaultMaxCPUPercent
	}
	if cfg.AdmissionMaxWait == 0 {
		cfg.AdmissionMaxWait = types.DefaultAdmissionMaxWait
	}
	if cfg.PollInterval == 0 {
		cfg.PollInterval = types.DefaultPollInterval
	}
	return &Monitor{sampler: sampler, cfg: cfg}
}

// Sample reads a fresh snapshot through the monitor's sampler.
func (m *Monitor) Sample() (Snapshot, error) {
	return m.sampler.Sample()
}

// WaitForHeadroom blocks until the system has headroom, the bounded wait
// elapses, or ctx is cancelled. It returns forced=true when the wait
// elapsed and the caller should admit the job anyway with a warning, and
// an error only on ctx cancellation. Sampling failures count as headroom:
// a broken probe must not stall the batch.
func (m *Monitor) WaitForHeadroom(ctx context.Context) (forced bool, err error) {
	deadline := time.Now().Add(m.cfg.AdmissionMaxWait)

	for {
		snap, sampleErr := m.sampler.Sample()
		if sampleErr != nil || HasHeadroom(snap, m.cfg) {
			return false, nil
		}
		if time.Now().After(deadline) {
			return true, nil
		}

		select {
		case <-ctx.Done():
			return false, ctx.Err()
		case <-time.After(m.cfg.PollInterval):
		}
	}
}
