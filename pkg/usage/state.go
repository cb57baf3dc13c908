package usage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"conference-balancer/pkg/bbb"
	"conference-balancer/pkg/metrics"
	"conference-balancer/pkg/models"
	"conference-balancer/pkg/store"
)

// markUnavailable moves srv into status, which must not be StatusOnline.
// The live counters of the server are cleared and every meeting still
// running on it is ended at now, because the backend can no longer attest
// that it exists. It returns the number of meetings ended.
func (p *Poller) markUnavailable(ctx context.Context, tx store.Store, srv *models.Server, status models.ServerStatus, now time.Time) (int, error) {
	srv.Status = status
	srv.ClearUsage()
	if err := tx.UpdateServerUsage(ctx, srv); err != nil {
		return 0, fmt.Errorf("failed to update server %d: %w", srv.ID, err)
	}

	running, err := tx.GetRunningMeetingsByServer(ctx, srv.ID)
	if err != nil {
		return 0, fmt.Errorf("failed to get running meetings of server %d: %w", srv.ID, err)
	}

	for i := range running {
		if err := p.endMeeting(ctx, tx, &running[i], now); err != nil {
			return i, err
		}
		metrics.MeetingsForceEnded.Inc()
		p.log.Infow("Meeting force ended", "meeting", running[i].ID.String(), "server", srv.ID, "status", status.String())
	}
	return len(running), nil
}

// markOnline applies a successful poll: meetings that are live get their
// attendance reconciled and their room counters refreshed, tracked meetings
// missing from the list are ended, and the server totals cover every live
// meeting including the ones this system did not start.
func (p *Poller) markOnline(ctx context.Context, tx store.Store, srv *models.Server, live []bbb.Meeting, now time.Time) (Outcome, error) {
	liveByID := make(map[string]bbb.Meeting, len(live))
	for _, m := range live {
		if _, dup := liveByID[m.MeetingID]; dup {
			p.log.Warnw("Duplicate meeting in server response", "meeting", m.MeetingID, "server", srv.ID)
			continue
		}
		liveByID[m.MeetingID] = m
	}
	meetingCount := len(liveByID)
	out := Outcome{ServerID: srv.ID, Status: models.StatusOnline, Meetings: meetingCount}

	tracked, err := tx.GetRunningMeetingsByServer(ctx, srv.ID)
	if err != nil {
		return out, fmt.Errorf("failed to get running meetings of server %d: %w", srv.ID, err)
	}

	var total models.Usage
	for i := range tracked {
		meeting := &tracked[i]
		lm, ok := liveByID[meeting.ID.String()]
		if !ok {
			if err := p.endMeeting(ctx, tx, meeting, now); err != nil {
				return out, err
			}
			metrics.MeetingsEnded.Inc()
			out.Ended++
			p.log.Debugw("Meeting no longer running", "meeting", meeting.ID.String(), "server", srv.ID)
			continue
		}
		delete(liveByID, lm.MeetingID)

		res, err := p.attendance.Reconcile(ctx, tx, *meeting, lm.Attendees, now)
		if err != nil {
			return out, fmt.Errorf("meeting %s: %w", meeting.ID, err)
		}
		out.Attendance.Add(res)

		u := lm.Usage()
		total.Add(u)
		if err := setRoomUsage(ctx, tx, meeting.RoomID, &u); err != nil {
			return out, err
		}
		if _, err := p.history.RecordMeeting(ctx, tx, meeting.ID, u, now); err != nil {
			return out, err
		}
	}

	for id, lm := range liveByID {
		total.Add(lm.Usage())
		p.log.Debugw("Untracked meeting counted", "meeting", id, "server", srv.ID)
	}

	srv.SetUsage(total, meetingCount)
	if err := tx.UpdateServerUsage(ctx, srv); err != nil {
		return out, fmt.Errorf("failed to update server %d: %w", srv.ID, err)
	}
	if _, err := p.history.RecordServer(ctx, tx, srv.ID, total, meetingCount, now); err != nil {
		return out, err
	}

	out.Usage = total
	return out, nil
}

// endMeeting closes a running meeting, clears its room and closes every
// attendance session that is still open.
func (p *Poller) endMeeting(ctx context.Context, tx store.Store, meeting *models.Meeting, now time.Time) error {
	meeting.Finish(now)
	if err := tx.UpdateMeeting(ctx, meeting); err != nil {
		return fmt.Errorf("failed to end meeting %s: %w", meeting.ID, err)
	}
	if err := setRoomUsage(ctx, tx, meeting.RoomID, nil); err != nil {
		return err
	}
	if _, err := p.attendance.Reconcile(ctx, tx, *meeting, nil, now); err != nil {
		return fmt.Errorf("meeting %s: %w", meeting.ID, err)
	}
	return nil
}

// setRoomUsage stores u on the room, or clears its counters when u is nil.
// A room that no longer exists is ignored.
func setRoomUsage(ctx context.Context, tx store.Store, roomID string, u *models.Usage) error {
	room, err := tx.GetRoomByID(ctx, roomID)
	if errors.Is(err, store.ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to get room %s: %w", roomID, err)
	}

	if u == nil {
		room.ClearUsage()
	} else {
		room.SetUsage(*u)
	}
	if err := tx.UpdateRoomUsage(ctx, &room); err != nil {
		return fmt.Errorf("failed to update room %s: %w", roomID, err)
	}
	return nil
}
