package websocket

import (
	"time"

	"go.uber.org/zap"

	"github.com/giziai/digital-human/internal/schedule"
)

const idleCheckInterval = time.Minute

// IdleCleanup closes surfaces whose user has not sent anything for a while.
// Pongs keep a connection open but do not count as activity.
type IdleCleanup struct {
	hub     *Hub
	timeout time.Duration
	logger  *zap.Logger
	task    *schedule.Task
}

// NewIdleCleanup creates a new idle cleanup service
func NewIdleCleanup(hub *Hub, timeout time.Duration, logger *zap.Logger) *IdleCleanup {
	return &IdleCleanup{
		hub:     hub,
		timeout: timeout,
		logger:  logger,
	}
}

// Start begins the periodic cleanup
func (s *IdleCleanup) Start() {
	interval := idleCheckInterval
	if s.timeout < interval {
		interval = s.timeout
	}
	s.task = schedule.Every(s.hub.clock, interval, func() bool {
		s.runCleanup()
		return true
	})
	s.logger.Info("Idle cleanup started", zap.Duration("timeout", s.timeout))
}

// Stop stops the cleanup
func (s *IdleCleanup) Stop() {
	s.task.Cancel()
	s.logger.Info("Idle cleanup stopped")
}

// runCleanup closes every client idle for longer than the timeout
func (s *IdleCleanup) runCleanup() int {
	now := s.hub.clock.Now()
	closed := 0
	for _, c := range s.hub.Clients() {
		idle := now.Sub(c.LastSeen())
		if idle <= s.timeout {
			continue
		}
		s.logger.Info("Closing idle client",
			zap.String("connID", c.ID()),
			zap.Duration("idle", idle))
		c.close()
		closed++
	}
	return closed
}
