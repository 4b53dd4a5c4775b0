package sensor

import (
	"runtime"
	"sync"
	"time"

	"chatcore/pkg/state/logger"
	"chatcore/pkg/telemetry"
	"chatcore/pkg/timeutil"

	"golang.org/x/sys/unix"
)

// Config sets what the sensor watches and when it alerts.
type Config struct {
	Path           string
	PollInterval   time.Duration
	DiskHighPct    int
	DiskLowPct     int
	MemHighPct     int
	RecoveryWindow time.Duration
}

// Reading is one poll of the db volume and the heap.
type Reading struct {
	DiskUsedPct float64   `json:"disk_used_pct"`
	HeapUsedPct float64   `json:"heap_used_pct"`
	At          time.Time `json:"at"`
}

// Sensor polls disk usage of the database volume and heap occupancy,
// logging an alert on the rising edge and a recovery after the window.
type Sensor struct {
	cfg      Config
	now      timeutil.Clock
	statfs   func(path string) (total, avail uint64, err error)
	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup

	mu            sync.Mutex
	diskAlert     bool
	memAlert      bool
	lastDiskAlert time.Time
	lastMemAlert  time.Time
	last          Reading
}

func New(cfg Config) *Sensor {
	if cfg.Path == "" {
		cfg.Path = "."
	}
	return &Sensor{cfg: cfg, now: timeutil.Now, statfs: statfs, stopCh: make(chan struct{})}
}

func statfs(path string) (uint64, uint64, error) {
	var st unix.Statfs_t
	if err := unix.Statfs(path, &st); err != nil {
		return 0, 0, err
	}
	return st.Blocks * uint64(st.Bsize), st.Bavail * uint64(st.Bsize), nil
}

func (s *Sensor) Start() {
	if s.cfg.PollInterval <= 0 {
		return
	}
	s.wg.Add(1)
	go s.run()
}

func (s *Sensor) Stop() {
	s.stopOnce.Do(func() { close(s.stopCh) })
	s.wg.Wait()
}

func (s *Sensor) run() {
	defer s.wg.Done()
	s.Check()
	ticker := time.NewTicker(s.cfg.PollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			s.Check()
		case <-s.stopCh:
			return
		}
	}
}

// Check polls once and updates alert state.
func (s *Sensor) Check() Reading {
	now := s.now()
	r := Reading{At: now}

	total, avail, err := s.statfs(s.cfg.Path)
	if err != nil {
		logger.Error("disk_stat_failed", "path", s.cfg.Path, "error", err)
	} else if total > 0 {
		r.DiskUsedPct = float64(total-avail) / float64(total) * 100
	}
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	if m.HeapSys > 0 {
		r.HeapUsedPct = float64(m.HeapInuse) / float64(m.HeapSys) * 100
	}
	telemetry.DiskUsedPercent.Set(r.DiskUsedPct)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.last = r

	switch {
	case r.DiskUsedPct > float64(s.cfg.DiskHighPct):
		if !s.diskAlert {
			logger.Warn("disk_usage_high", "usage_pct", r.DiskUsedPct, "threshold", s.cfg.DiskHighPct, "path", s.cfg.Path)
			s.diskAlert = true
			s.lastDiskAlert = now
		}
	case r.DiskUsedPct < float64(s.cfg.DiskLowPct) && s.diskAlert:
		if now.Sub(s.lastDiskAlert) >= s.cfg.RecoveryWindow {
			logger.Info("disk_usage_recovered", "usage_pct", r.DiskUsedPct, "threshold", s.cfg.DiskLowPct)
			s.diskAlert = false
		}
	}

	switch {
	case r.HeapUsedPct > float64(s.cfg.MemHighPct):
		if !s.memAlert {
			logger.Warn("memory_usage_high", "usage_pct", r.HeapUsedPct, "threshold", s.cfg.MemHighPct)
			s.memAlert = true
			s.lastMemAlert = now
		}
	case s.memAlert:
		if now.Sub(s.lastMemAlert) >= s.cfg.RecoveryWindow {
			logger.Info("memory_usage_recovered", "usage_pct", r.HeapUsedPct, "threshold", s.cfg.MemHighPct)
			s.memAlert = false
		}
	}
	return r
}

// DiskPressure reports whether the disk alert is raised.
func (s *Sensor) DiskPressure() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.diskAlert
}

func (s *Sensor) Last() Reading {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.last
}
