// Package history appends point-in-time usage snapshots to the server and
// meeting statistics tables. Rows are never updated; pkg/retention removes
// them once they age out.
package history

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"conference-balancer/pkg/config"
	"conference-balancer/pkg/metrics"
	"conference-balancer/pkg/models"
)

const (
	CategoryServers  = "servers"
	CategoryMeetings = "meetings"
)

type Store interface {
	InsertServerStat(ctx context.Context, stat *models.ServerStat) error
	InsertMeetingStat(ctx context.Context, stat *models.MeetingStat) error
}

type Recorder struct {
	cfg config.Statistics
	log *zap.SugaredLogger
}

func NewRecorder(cfg config.Statistics, log *zap.SugaredLogger) *Recorder {
	return &Recorder{cfg: cfg, log: log}
}

// RecordServer appends one server row, or nothing when server statistics
// are switched off. It reports whether a row was written.
func (r *Recorder) RecordServer(ctx context.Context, st Store, serverID int64, u models.Usage, meetingCount int, at time.Time) (bool, error) {
	if !r.cfg.Servers.Enabled {
		return false, nil
	}

	stat := models.ServerStat{
		ServerID:              serverID,
		ParticipantCount:      u.Participants,
		ListenerCount:         u.Listeners,
		VoiceParticipantCount: u.VoiceParticipants,
		VideoCount:            u.Videos,
		MeetingCount:          meetingCount,
		CreatedAt:             at,
	}
	if err := st.InsertServerStat(ctx, &stat); err != nil {
		return false, fmt.Errorf("failed to record server %d stats: %w", serverID, err)
	}

	metrics.StatsRecorded.WithLabelValues(CategoryServers).Inc()
	r.log.Debugw("Server stats recorded", "server", serverID, "participants", u.Participants, "meetings", meetingCount)
	return true, nil
}

// RecordMeeting appends one meeting row, or nothing when meeting statistics
// are switched off.
func (r *Recorder) RecordMeeting(ctx context.Context, st Store, meetingID uuid.UUID, u models.Usage, at time.Time) (bool, error) {
	if !r.cfg.Meetings.Enabled {
		return false, nil
	}

	stat := models.MeetingStat{
		MeetingID:             meetingID,
		ParticipantCount:      u.Participants,
		ListenerCount:         u.Listeners,
		VoiceParticipantCount: u.VoiceParticipants,
		VideoCount:            u.Videos,
		CreatedAt:             at,
	}
	if err := st.InsertMeetingStat(ctx, &stat); err != nil {
		return false, fmt.Errorf("failed to record meeting %s stats: %w", meetingID, err)
	}

	metrics.StatsRecorded.WithLabelValues(CategoryMeetings).Inc()
	return true, nil
}
