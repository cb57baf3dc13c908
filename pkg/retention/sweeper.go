// Package retention purges aged rows from the append-only tables: server
// and meeting statistics, and closed attendance sessions. Every category
// has its own retention period in days; a period of zero keeps its rows
// forever.
package retention

import (
	"context"
	"fmt"
	"time"

	"github.com/coder/quartz"
	"go.uber.org/zap"

	"conference-balancer/pkg/config"
	"conference-balancer/pkg/metrics"
	"conference-balancer/pkg/store"
)

const (
	CategoryServerStats  = "server_stats"
	CategoryMeetingStats = "meeting_stats"
	CategoryAttendance   = "attendance"
)

// Purged maps a category to the number of rows deleted from it. A category
// whose retention is disabled is absent.
type Purged map[string]int64

type Sweeper struct {
	store      store.Store
	statistics config.Statistics
	attendance config.Attendance
	clock      quartz.Clock
	log        *zap.SugaredLogger
}

func NewSweeper(st store.Store, statistics config.Statistics, att config.Attendance, clock quartz.Clock, log *zap.SugaredLogger) *Sweeper {
	return &Sweeper{
		store:      st,
		statistics: statistics,
		attendance: att,
		clock:      clock,
		log:        log,
	}
}

// Cutoff returns the instant before which rows are removed, and false when
// retention is disabled.
func Cutoff(now time.Time, days int) (time.Time, bool) {
	if days <= 0 {
		return time.Time{}, false
	}
	return now.AddDate(0, 0, -days), true
}

// SweepStatistics deletes server and meeting statistics older than their
// retention periods. Both deletes run in one transaction; a storage error
// aborts the sweep and nothing is removed.
func (s *Sweeper) SweepStatistics(ctx context.Context) (Purged, error) {
	start := s.clock.Now()
	purged := Purged{}

	err := s.store.InTx(ctx, func(tx store.Store) error {
		if cutoff, ok := Cutoff(start, s.statistics.Servers.RetentionPeriod); ok {
			n, err := tx.DeleteServerStatsBefore(ctx, cutoff)
			if err != nil {
				return fmt.Errorf("failed to delete old server stats: %w", err)
			}
			purged[CategoryServerStats] = n
		}
		if cutoff, ok := Cutoff(start, s.statistics.Meetings.RetentionPeriod); ok {
			n, err := tx.DeleteMeetingStatsBefore(ctx, cutoff)
			if err != nil {
				return fmt.Errorf("failed to delete old meeting stats: %w", err)
			}
			purged[CategoryMeetingStats] = n
		}
		return nil
	})
	if err != nil {
		s.log.Errorw("Failed to purge old statistics", "error", err)
		return nil, err
	}

	s.report(purged, start)
	return purged, nil
}

// SweepAttendance deletes closed attendance sessions whose leave time is
// older than the attendance retention period. Open sessions are kept
// whatever their age.
func (s *Sweeper) SweepAttendance(ctx context.Context) (Purged, error) {
	start := s.clock.Now()
	purged := Purged{}

	if cutoff, ok := Cutoff(start, s.attendance.RetentionPeriod); ok {
		n, err := s.store.DeleteAttendeesLeftBefore(ctx, cutoff)
		if err != nil {
			s.log.Errorw("Failed to purge old attendance", "error", err)
			return nil, fmt.Errorf("failed to delete old attendance: %w", err)
		}
		purged[CategoryAttendance] = n
	}

	s.report(purged, start)
	return purged, nil
}

func (s *Sweeper) report(purged Purged, start time.Time) {
	args := []any{"duration", s.clock.Since(start)}
	for category, n := range purged {
		metrics.RowsPurged.WithLabelValues(category).Add(float64(n))
		args = append(args, category, n)
	}
	s.log.Infow("Purged old database entries", args...)
}
