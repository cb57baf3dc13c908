// Package meetings assigns new meetings to servers.
package meetings

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"

	"github.com/coder/quartz"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"conference-balancer/pkg/config"
	"conference-balancer/pkg/models"
	"conference-balancer/pkg/pool"
	"conference-balancer/pkg/store"
)

type Starter struct {
	store      store.Store
	attendance config.Attendance
	clock      quartz.Clock
	log        *zap.SugaredLogger
}

func NewStarter(st store.Store, att config.Attendance, clock quartz.Clock, log *zap.SugaredLogger) *Starter {
	return &Starter{store: st, attendance: att, clock: clock, log: log}
}

// Start returns the meeting running in the room, or records a new one on
// the least loaded online server of the room's pool. recordAttendance is
// only honoured while attendance logging is enabled. Creating the meeting
// on the backend is left to the caller. When another caller records a
// meeting for the same room first, that meeting is returned instead.
func (s *Starter) Start(ctx context.Context, roomID string, recordAttendance bool) (models.Meeting, bool, error) {
	var (
		meeting models.Meeting
		created bool
	)

	err := s.store.InTx(ctx, func(tx store.Store) error {
		running, err := tx.GetRunningMeetingByRoom(ctx, roomID)
		if err == nil {
			meeting = running
			return nil
		}
		if !errors.Is(err, store.ErrNotFound) {
			return fmt.Errorf("failed to look up running meeting: %w", err)
		}

		room, err := tx.GetRoomByID(ctx, roomID)
		if err != nil {
			return fmt.Errorf("failed to get room %s: %w", roomID, err)
		}

		srv, err := pool.NewSelector(tx).Pick(ctx, room.ServerPoolID)
		if err != nil {
			return err
		}

		meeting = models.Meeting{
			ID:               uuid.New(),
			RoomID:           room.ID,
			ServerID:         srv.ID,
			Start:            s.clock.Now(),
			RecordAttendance: recordAttendance && s.attendance.Enabled,
			AttendeePW:       rand.Text(),
			ModeratorPW:      rand.Text(),
		}
		if err := tx.InsertMeeting(ctx, &meeting); err != nil {
			return fmt.Errorf("failed to insert meeting: %w", err)
		}
		created = true
		return nil
	})
	if errors.Is(err, store.ErrConflict) {
		// Lost the race; the failed transaction is gone, so read outside it.
		running, err := s.store.GetRunningMeetingByRoom(ctx, roomID)
		if err != nil {
			return models.Meeting{}, false, fmt.Errorf("failed to look up running meeting: %w", err)
		}
		s.log.Debugw("Meeting already started", "meeting", running.ID.String(), "room", roomID)
		return running, false, nil
	}
	if err != nil {
		return models.Meeting{}, false, err
	}

	if created {
		s.log.Infow("Meeting started", "meeting", meeting.ID.String(), "room", roomID, "server", meeting.ServerID)
	}
	return meeting, created, nil
}
