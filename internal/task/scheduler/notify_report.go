package scheduler

import (
	"time"

	"duebot/pkg/logx"
)

const notifyWarnThrottle = 5 * time.Minute

// reportNotifyError logs every delivery failure at debug and surfaces at
// most one warning per throttle window, so a dead transport does not flood
// the log once per reminder.
func (s *Service) reportNotifyError(taskID string, err error) {
	s.log.Debug("notify failed", logx.String("task", taskID), logx.Err(err))

	now := time.Now()
	s.warnMu.Lock()
	last := s.lastNotifyWarn
	if !last.IsZero() && now.Sub(last) < notifyWarnThrottle {
		s.suppressedWarns++
		s.warnMu.Unlock()
		return
	}
	suppressed := s.suppressedWarns
	s.lastNotifyWarn = now
	s.suppressedWarns = 0
	s.warnMu.Unlock()

	s.log.Warn("reminder delivery failing", logx.Err(err), logx.Int("suppressed", suppressed))
}
