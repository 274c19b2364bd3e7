package liveness

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// DefaultInterval is the pause between two liveness probes
const DefaultInterval = 30 * time.Second

// Prober pings every connection and returns how many it pruned
type Prober interface {
	PingAll() int
}

// Monitor periodically probes every connection so sockets that died without
// a close frame are reclaimed
// ARCHITECTURAL DISCOVERY: A single goroutine owns the ticker; it holds no
// lock while sleeping, so probes never block registry operations
type Monitor struct {
	prober   Prober
	interval time.Duration
	logger   zerolog.Logger

	running  bool
	shutdown chan struct{}
	done     chan struct{}
	mu       sync.Mutex
}

// NewMonitor creates a stopped monitor; a non-positive interval uses
// DefaultInterval
func NewMonitor(prober Prober, interval time.Duration, logger zerolog.Logger) *Monitor {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Monitor{
		prober:   prober,
		interval: interval,
		logger:   logger.With().Str("component", "liveness").Logger(),
	}
}

// Start launches the probe loop. It ends on Stop or when ctx is done.
func (m *Monitor) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.running {
		return ErrMonitorAlreadyRunning
	}
	m.running = true
	m.shutdown = make(chan struct{})
	m.done = make(chan struct{})

	m.logger.Info().Dur("interval", m.interval).Msg("starting liveness monitor")
	go m.run(ctx, m.shutdown, m.done)
	return nil
}

// Stop ends the probe loop and waits for it to exit
func (m *Monitor) Stop() error {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return ErrMonitorNotRunning
	}
	m.running = false
	close(m.shutdown)
	done := m.done
	m.mu.Unlock()

	<-done
	m.logger.Info().Msg("liveness monitor stopped")
	return nil
}

// IsRunning reports whether the probe loop is active
func (m *Monitor) IsRunning() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running
}

func (m *Monitor) run(ctx context.Context, shutdown <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if pruned := m.prober.PingAll(); pruned > 0 {
				m.logger.Debug().Int("pruned", pruned).Msg("liveness probe complete")
			}
		case <-shutdown:
			return
		case <-ctx.Done():
			return
		}
	}
}
