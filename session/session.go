// Package session decides whether trading is currently permitted based on a
// weekly calendar in a fixed reference timezone.
package session

import (
	"fmt"
	"time"

	"github.com/evdnx/gaptrader/config"
)

// Scheduler is a pure function of time and configuration; it holds no
// mutable state beyond the parsed timezone.
type Scheduler struct {
	cfg config.Session
	loc *time.Location
}

func NewScheduler(cfg config.Session) (*Scheduler, error) {
	if !cfg.Enabled {
		return &Scheduler{cfg: cfg, loc: time.UTC}, nil
	}
	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		return nil, fmt.Errorf("session timezone %q: %w", cfg.Timezone, err)
	}
	return &Scheduler{cfg: cfg, loc: loc}, nil
}

// IsTradingPermitted reports whether now falls inside the weekly window.
// The Sunday open boundary is inclusive; the Friday close boundary is
// exclusive. Saturday is always closed, Monday through Thursday always open.
func (s *Scheduler) IsTradingPermitted(now time.Time) bool {
	if !s.cfg.Enabled {
		return true
	}
	local := now.In(s.loc)
	minute := local.Hour()*60 + local.Minute()

	switch local.Weekday() {
	case time.Sunday:
		return minute >= s.cfg.SundayOpenHour*60+s.cfg.SundayOpenMin
	case time.Friday:
		return minute < s.cfg.FridayCloseHour*60+s.cfg.FridayCloseMin
	case time.Saturday:
		return false
	default:
		return true
	}
}

// IsNewTradingDay reports whether now is the first tick of a fresh trading
// day (Sunday through Friday) relative to last. A zero last always counts
// as a new day.
func (s *Scheduler) IsNewTradingDay(now, last time.Time) bool {
	local := now.In(s.loc)
	if local.Weekday() == time.Saturday {
		return false
	}
	if last.IsZero() {
		return true
	}
	ly, lm, ld := last.In(s.loc).Date()
	ny, nm, nd := local.Date()
	return ny != ly || nm != lm || nd != ld
}
