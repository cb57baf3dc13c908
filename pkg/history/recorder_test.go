package history

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"conference-balancer/pkg/config"
	"conference-balancer/pkg/models"
	"conference-balancer/pkg/store/memstore"
)

func TestRecorderToggles(t *testing.T) {
	usage := models.Usage{Participants: 12, Listeners: 3, VoiceParticipants: 8, Videos: 2}
	at := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)

	tests := []struct {
		name         string
		servers      bool
		meetings     bool
		wantServer   int
		wantMeetings int
	}{
		{name: "Both enabled", servers: true, meetings: true, wantServer: 1, wantMeetings: 1},
		{name: "Servers only", servers: true, wantServer: 1},
		{name: "Meetings only", meetings: true, wantMeetings: 1},
		{name: "Both disabled"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			st := memstore.New()
			rec := NewRecorder(config.Statistics{
				Servers:  config.Category{Enabled: tt.servers},
				Meetings: config.Category{Enabled: tt.meetings},
			}, zap.NewNop().Sugar())

			meetingID := uuid.New()
			wrote, err := rec.RecordServer(ctx, st, 1, usage, 4, at)
			require.NoError(t, err)
			assert.Equal(t, tt.servers, wrote)

			wrote, err = rec.RecordMeeting(ctx, st, meetingID, usage, at)
			require.NoError(t, err)
			assert.Equal(t, tt.meetings, wrote)

			require.Len(t, st.ServerStats(1), tt.wantServer)
			require.Len(t, st.MeetingStats(meetingID), tt.wantMeetings)

			if tt.servers {
				row := st.ServerStats(1)[0]
				assert.Equal(t, 12, row.ParticipantCount)
				assert.Equal(t, 3, row.ListenerCount)
				assert.Equal(t, 8, row.VoiceParticipantCount)
				assert.Equal(t, 2, row.VideoCount)
				assert.Equal(t, 4, row.MeetingCount)
				assert.Equal(t, at, row.CreatedAt)
			}
			if tt.meetings {
				row := st.MeetingStats(meetingID)[0]
				assert.Equal(t, 12, row.ParticipantCount)
				assert.Equal(t, at, row.CreatedAt)
			}
		})
	}
}

func TestRecorderAppends(t *testing.T) {
	ctx := context.Background()
	st := memstore.New()
	rec := NewRecorder(config.Statistics{Servers: config.Category{Enabled: true}}, zap.NewNop().Sugar())

	at := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		_, err := rec.RecordServer(ctx, st, 7, models.Usage{Participants: i}, 1, at.Add(time.Duration(i)*time.Minute))
		require.NoError(t, err)
	}

	rows := st.ServerStats(7)
	require.Len(t, rows, 3)
	for i, row := range rows {
		assert.Equal(t, i, row.ParticipantCount)
	}
}

func TestRecorderStoreError(t *testing.T) {
	st := memstore.New()
	boom := errors.New("disk full")
	st.Fail(boom)

	rec := NewRecorder(config.Statistics{Servers: config.Category{Enabled: true}}, zap.NewNop().Sugar())
	_, err := rec.RecordServer(context.Background(), st, 1, models.Usage{}, 0, time.Now())
	require.ErrorIs(t, err, boom)
}
