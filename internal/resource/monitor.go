package resource

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/disk"
	"github.com/shirou/gopsutil/v4/host"
	"github.com/shirou/gopsutil/v4/mem"
)

const (
	// DefaultInterval is the fixed sampling interval (§4.2).
	DefaultInterval = 5 * time.Second
	bytesPerMB      = 1024 * 1024
	bytesPerGB      = 1024 * 1024 * 1024
)

// AlertSink receives a formatted message whenever the performance level
// crosses into Poor or Critical. internal/notifications implements it.
type AlertSink interface {
	Notify(severity, message string)
}

// Monitor samples host resource state on a fixed interval and serves
// overwrite-only snapshots to the rest of the pipeline. Consumers never
// block waiting for a fresh sample: CurrentSnapshot always returns the last
// completed read.
type Monitor struct {
	mu       sync.RWMutex
	last     Snapshot
	interval time.Duration
	sink     AlertSink

	runningMu sync.Mutex
	running   bool

	lastAlertLevel PerformanceLevel
}

// NewMonitor builds a Monitor with the given sampling interval. A zero
// interval falls back to DefaultInterval. sink may be nil.
func NewMonitor(interval time.Duration, sink AlertSink) *Monitor {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Monitor{
		interval: interval,
		sink:     sink,
		last:     defaultSnapshot(),
	}
}

func defaultSnapshot() Snapshot {
	return Snapshot{
		Thermal:          ThermalNormal,
		PerformanceLevel: LevelGood,
		LastUpdated:      time.Time{},
	}
}

// Start runs the sampling loop until ctx is cancelled. Calling Start on an
// already-running monitor is a no-op, mirroring the single-flight guard used
// by the other background loops in this repo.
func (m *Monitor) Start(ctx context.Context) {
	m.runningMu.Lock()
	if m.running {
		m.runningMu.Unlock()
		log.Printf("[RESOURCE] monitor already running")
		return
	}
	m.running = true
	m.runningMu.Unlock()

	log.Printf("[RESOURCE] starting resource monitor (interval: %v)", m.interval)

	// Sample once immediately so early callers don't see the zero-value
	// default snapshot for a full interval.
	m.sample(ctx)

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			m.runningMu.Lock()
			m.running = false
			m.runningMu.Unlock()
			log.Printf("[RESOURCE] resource monitor stopping")
			return
		case <-ticker.C:
			m.sample(ctx)
		}
	}
}

func (m *Monitor) sample(ctx context.Context) {
	snap, err := readSnapshot(ctx)
	if err != nil {
		log.Printf("[RESOURCE] sample failed: %v", err)
		return
	}
	snap.PerformanceLevel = classify(snap.MemoryPressure(), snap.CPULoad())

	m.mu.Lock()
	m.last = snap
	m.mu.Unlock()

	m.maybeAlert(snap)
}

func (m *Monitor) maybeAlert(snap Snapshot) {
	if m.sink == nil {
		return
	}
	if snap.PerformanceLevel != LevelPoor && snap.PerformanceLevel != LevelCritical {
		m.lastAlertLevel = snap.PerformanceLevel
		return
	}
	if snap.PerformanceLevel == m.lastAlertLevel {
		return
	}
	m.lastAlertLevel = snap.PerformanceLevel
	severity := "warning"
	if snap.PerformanceLevel == LevelCritical {
		severity = "critical"
	}
	m.sink.Notify(severity, "system performance is "+string(snap.PerformanceLevel))
}

// readSnapshot performs a single, synchronous sample of host state via
// gopsutil. Disk usage is sampled for "/" and failures there are
// non-fatal — a platform without that mount point still yields CPU/RAM.
func readSnapshot(ctx context.Context) (Snapshot, error) {
	snap := Snapshot{
		Thermal:     ThermalNormal,
		LastUpdated: time.Now(),
	}

	cpuPercents, err := cpu.PercentWithContext(ctx, 200*time.Millisecond, false)
	if err != nil {
		return Snapshot{}, err
	}
	if len(cpuPercents) > 0 {
		snap.CPUUsagePercent = cpuPercents[0]
	}

	vm, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		return Snapshot{}, err
	}
	snap.MemoryTotalMB = vm.Total / bytesPerMB
	snap.MemoryUsedMB = vm.Used / bytesPerMB
	snap.MemoryAvailableMB = vm.Available / bytesPerMB

	if du, err := disk.UsageWithContext(ctx, "/"); err == nil {
		snap.DiskTotalGB = du.Total / bytesPerGB
		snap.DiskUsedGB = du.Used / bytesPerGB
		snap.DiskAvailableGB = du.Free / bytesPerGB
	}

	if procs, err := host.InfoWithContext(ctx); err == nil {
		snap.SystemUptimeSecs = procs.Uptime
		snap.ProcessCount = int(procs.Procs)
	}

	return snap, nil
}

// classify applies the memory-pressure/CPU-load threshold table (§4.2).
func classify(memoryPressure, cpuLoad float64) PerformanceLevel {
	switch {
	case memoryPressure < 0.5 && cpuLoad < 0.3:
		return LevelExcellent
	case memoryPressure < 0.7 && cpuLoad < 0.6:
		return LevelGood
	case memoryPressure < 0.8 && cpuLoad < 0.8:
		return LevelModerate
	case memoryPressure < 0.9 && cpuLoad < 0.9:
		return LevelPoor
	default:
		return LevelCritical
	}
}

// CurrentSnapshot returns the most recently completed sample. It never
// blocks on a new sample being taken.
func (m *Monitor) CurrentSnapshot() Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.last
}

// CanLoad reports whether the model's declared RAM requirement fits within
// currently available memory.
func (m *Monitor) CanLoad(req ModelRequirement) bool {
	snap := m.CurrentSnapshot()
	return snap.MemoryAvailableMB >= req.RequiredRAMMB
}

// Recommend is the convenience heuristic from §4.2: given a task complexity
// score, pick a coarse quality tier and explain why, given current system
// state. Candidates must be supplied by the caller (the Model Selector owns
// the catalogue); Recommend only applies the resource-pressure heuristic.
func (m *Monitor) Recommend(taskComplexity float64, lightweight, capable []string) Recommendation {
	snap := m.CurrentSnapshot()
	memoryPressure := snap.MemoryPressure()
	cpuLoad := snap.CPULoad()

	pick := func(ids []string) (string, []string) {
		if len(ids) == 0 {
			return "", nil
		}
		return ids[0], ids[1:]
	}

	switch {
	case memoryPressure > 0.8 || cpuLoad > 0.9:
		id, alts := pick(lightweight)
		return Recommendation{ModelID: id, Reason: "system resources are constrained", Confidence: 0.9, AlternativeModels: alts}
	case taskComplexity > 0.7 && memoryPressure < 0.6 && cpuLoad < 0.5:
		id, _ := pick(capable)
		return Recommendation{ModelID: id, Reason: "complex task detected with sufficient resources available", Confidence: 0.8, AlternativeModels: lightweight}
	case taskComplexity < 0.3:
		id, _ := pick(lightweight)
		return Recommendation{ModelID: id, Reason: "simple task, a lightweight model is sufficient", Confidence: 0.85, AlternativeModels: capable}
	case snap.PerformanceLevel == LevelExcellent || snap.PerformanceLevel == LevelGood:
		id, _ := pick(capable)
		return Recommendation{ModelID: id, Reason: "good system performance allows for a quality model", Confidence: 0.7, AlternativeModels: lightweight}
	default:
		id, _ := pick(lightweight)
		return Recommendation{ModelID: id, Reason: "moderate system performance, defaulting to a lightweight model", Confidence: 0.6, AlternativeModels: capable}
	}
}
