package telnetcore

import (
	"fmt"
	"sync"

	"github.com/robfig/cron/v3"

	"github.com/oakmoss/telnetcore/internal/corelog"
	"github.com/oakmoss/telnetcore/telnet"
)

// keepaliveNOP is the two-byte Telnet command written to every connection
// on each sweep: IAC NOP. Clients and intermediate NATs treat it as inert
// traffic that resets idle-connection timers without touching the
// application data stream.
var keepaliveNOP = []byte{telnet.IAC, telnet.NOP}

// keepalive owns the cron job driving periodic IAC NOP sweeps, kept
// separate from Manager's own fields so StartKeepalive/StopKeepalive can
// be called repeatedly without disturbing listeners or connections.
type keepalive struct {
	mu   sync.Mutex
	cron *cron.Cron
}

// StartKeepalive schedules a sweep that writes IAC NOP to every currently
// registered connection according to schedule, a robfig/cron expression
// (e.g. "@every 60s" or standard 5-field cron syntax). Calling it again
// replaces any previously running schedule.
func (m *Manager) StartKeepalive(schedule string) error {
	m.keepaliveState.mu.Lock()
	defer m.keepaliveState.mu.Unlock()

	if m.keepaliveState.cron != nil {
		m.keepaliveState.cron.Stop()
	}

	c := cron.New()
	if _, err := c.AddFunc(schedule, m.sweepKeepalive); err != nil {
		return fmt.Errorf("telnetcore: invalid keepalive schedule %q: %w", schedule, err)
	}
	c.Start()
	m.keepaliveState.cron = c
	return nil
}

// StopKeepalive halts the keepalive sweep, if one is running.
func (m *Manager) StopKeepalive() {
	m.keepaliveState.mu.Lock()
	defer m.keepaliveState.mu.Unlock()
	if m.keepaliveState.cron != nil {
		m.keepaliveState.cron.Stop()
		m.keepaliveState.cron = nil
	}
}

func (m *Manager) sweepKeepalive() {
	m.mu.RLock()
	ids := make([]string, 0, len(m.conns))
	for id := range m.conns {
		ids = append(ids, id)
	}
	m.mu.RUnlock()

	for _, id := range ids {
		c := m.Lookup(id)
		if c == nil {
			continue
		}
		c.SendBytes(keepaliveNOP)
	}
	corelog.Debugf("keepalive sweep sent IAC NOP to %d connection(s)", len(ids))
}
