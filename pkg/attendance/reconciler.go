// Package attendance rebuilds join/leave sessions from the attendee
// snapshots a backend reports on each poll.
//
// A backend cannot tell us when somebody joined or left, only who is there
// right now. Each poll the snapshot is diffed against the open sessions of
// the meeting: newcomers get a row with Join set, open rows whose owner is
// gone get Leave set. Times are therefore only as precise as the poll
// interval.
package attendance

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"conference-balancer/pkg/bbb"
	"conference-balancer/pkg/config"
	"conference-balancer/pkg/metrics"
	"conference-balancer/pkg/models"
	"conference-balancer/pkg/store"
)

// Store is the part of the repository the reconciler touches.
type Store interface {
	GetUserByID(ctx context.Context, id int64) (models.User, error)
	GetOpenAttendees(ctx context.Context, meetingID uuid.UUID) ([]models.Attendee, error)
	InsertAttendee(ctx context.Context, attendee *models.Attendee) error
	CloseAttendee(ctx context.Context, attendee *models.Attendee) error
}

// Result counts the rows one reconciliation wrote.
type Result struct {
	Joined  int
	Left    int
	Skipped int
}

func (r *Result) Add(o Result) {
	r.Joined += o.Joined
	r.Left += o.Left
	r.Skipped += o.Skipped
}

type Reconciler struct {
	cfg config.Attendance
	log *zap.SugaredLogger
}

func NewReconciler(cfg config.Attendance, log *zap.SugaredLogger) *Reconciler {
	return &Reconciler{cfg: cfg, log: log}
}

// Enabled reports whether sessions are tracked for the meeting.
func (r *Reconciler) Enabled(meeting models.Meeting) bool {
	return r.cfg.Enabled && meeting.RecordAttendance
}

// Reconcile diffs the attendees currently present in meeting against its
// open sessions. An empty snapshot closes every open session. Nothing is
// read or written unless attendance is enabled globally and for the
// meeting.
func (r *Reconciler) Reconcile(ctx context.Context, st Store, meeting models.Meeting, present []bbb.Attendee, now time.Time) (Result, error) {
	var res Result
	if !r.Enabled(meeting) {
		return res, nil
	}

	seen, order, skipped, err := r.resolve(ctx, st, meeting, present)
	if err != nil {
		return res, err
	}
	res.Skipped = skipped

	open, err := st.GetOpenAttendees(ctx, meeting.ID)
	if err != nil {
		return res, fmt.Errorf("failed to load open sessions: %w", err)
	}

	openByKey := make(map[string]models.Attendee, len(open))
	for _, row := range open {
		k := rowKey(row)
		if _, dup := openByKey[k]; dup {
			// Two open rows for one identity; keep the first and close the rest.
			r.log.Warnw("Duplicate open attendance session closed", "attendee", row.ID, "meeting", meeting.ID.String())
			if err := r.close(ctx, st, &row, now); err != nil {
				return res, err
			}
			res.Left++
			continue
		}
		openByKey[k] = row
	}

	for _, k := range order {
		if _, ok := openByKey[k]; ok {
			continue
		}
		id := seen[k]
		row := models.Attendee{MeetingID: meeting.ID, Join: now}
		switch id.Kind {
		case KindUser:
			userID := id.UserID
			row.UserID = &userID
		case KindGuest:
			row.Name = id.Name
			row.SessionID = id.SessionID
		}
		if err := st.InsertAttendee(ctx, &row); err != nil {
			return res, fmt.Errorf("failed to open session: %w", err)
		}
		res.Joined++
	}

	for _, row := range open {
		k := rowKey(row)
		if _, ok := seen[k]; ok {
			continue
		}
		if kept, ok := openByKey[k]; !ok || kept.ID != row.ID {
			continue
		}
		if err := r.close(ctx, st, &row, now); err != nil {
			return res, err
		}
		res.Left++
	}

	metrics.AttendanceSessionsOpened.Add(float64(res.Joined))
	metrics.AttendanceSessionsClosed.Add(float64(res.Left))
	return res, nil
}

func (r *Reconciler) close(ctx context.Context, st Store, row *models.Attendee, now time.Time) error {
	row.Close(now)
	if err := st.CloseAttendee(ctx, row); err != nil {
		return fmt.Errorf("failed to close session: %w", err)
	}
	return nil
}

// resolve parses and validates the snapshot. It returns the present
// identities by key, their first-seen order and the number of skipped
// entries.
func (r *Reconciler) resolve(ctx context.Context, st Store, meeting models.Meeting, present []bbb.Attendee) (map[string]Identity, []string, int, error) {
	seen := make(map[string]Identity, len(present))
	order := make([]string, 0, len(present))
	known := make(map[int64]bool)
	skipped := 0

	for _, a := range present {
		id := ParseIdentity(a)

		switch id.Kind {
		case KindUnrecognized:
			r.log.Warnw("Unknown prefix for attendee found", "prefix", id.Prefix, "meeting", meeting.ID.String())
			skipped++
			continue

		case KindUser:
			exists, checked := known[id.UserID]
			if !checked && id.UserID > 0 {
				_, err := st.GetUserByID(ctx, id.UserID)
				switch {
				case err == nil:
					exists = true
				case errors.Is(err, store.ErrNotFound):
					exists = false
				default:
					return nil, nil, 0, fmt.Errorf("failed to look up user %d: %w", id.UserID, err)
				}
				known[id.UserID] = exists
			}
			if !exists {
				r.log.Warnw("Attendee user not found", "user", id.UserRef, "meeting", meeting.ID.String())
				skipped++
				continue
			}
		}

		k := id.key()
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = id
		order = append(order, k)
	}
	return seen, order, skipped, nil
}

func rowKey(row models.Attendee) string {
	if row.UserID != nil {
		return Identity{Kind: KindUser, UserID: *row.UserID}.key()
	}
	return Identity{Kind: KindGuest, SessionID: row.SessionID}.key()
}

// RecordingStore is what DisableRecording needs.
type RecordingStore interface {
	GetRunningMeetings(ctx context.Context) ([]models.Meeting, error)
	UpdateMeeting(ctx context.Context, meeting *models.Meeting) error
}

// DisableRecording clears RecordAttendance on every running meeting. It is
// applied when attendance logging is switched off globally so a later
// switch-on does not resume half-recorded meetings.
func DisableRecording(ctx context.Context, st RecordingStore) (int, error) {
	meetings, err := st.GetRunningMeetings(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to get running meetings: %w", err)
	}

	changed := 0
	for i := range meetings {
		if !meetings[i].RecordAttendance {
			continue
		}
		meetings[i].RecordAttendance = false
		if err := st.UpdateMeeting(ctx, &meetings[i]); err != nil {
			return changed, fmt.Errorf("failed to update meeting %s: %w", meetings[i].ID, err)
		}
		changed++
	}
	return changed, nil
}
