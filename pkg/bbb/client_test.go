package bbb

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"conference-balancer/pkg/models"
)

const meetingsXML = `<response>
  <returncode>SUCCESS</returncode>
  <meetings>
    <meeting>
      <meetingName>Weekly</meetingName>
      <meetingID>409e94ee-e317-4040-8cb2-8000a289b49d</meetingID>
      <running>true</running>
      <attendees>
        <attendee>
          <userID>1_99</userID>
          <fullName>Mable Torres</fullName>
          <role>MODERATOR</role>
          <isPresenter>true</isPresenter>
          <isListeningOnly>false</isListeningOnly>
          <hasJoinedVoice>true</hasJoinedVoice>
          <hasVideo>true</hasVideo>
          <clientType>HTML5</clientType>
        </attendee>
        <attendee>
          <userID>PogeR6XH8I2SAeCqc8Cp5y5bD9Qq70dRxe4DzBcb</userID>
          <fullName>Marie Walker</fullName>
          <role>VIEWER</role>
          <isPresenter>false</isPresenter>
          <isListeningOnly>true</isListeningOnly>
          <hasJoinedVoice>false</hasJoinedVoice>
          <hasVideo>false</hasVideo>
          <clientType>HTML5</clientType>
        </attendee>
      </attendees>
    </meeting>
  </meetings>
</response>`

func TestBuildURL(t *testing.T) {
	tests := []struct {
		name    string
		baseURL string
		query   string
		want    string
	}{
		{
			name:    "Trailing slash",
			baseURL: "https://bbb.example.org/bigbluebutton/",
			want:    "https://bbb.example.org/bigbluebutton/api/getMeetings?checksum=",
		},
		{
			name:    "Missing trailing slash",
			baseURL: "https://bbb.example.org/bigbluebutton",
			want:    "https://bbb.example.org/bigbluebutton/api/getMeetings?checksum=",
		},
		{
			name:    "With query",
			baseURL: "https://bbb.example.org/bigbluebutton/",
			query:   "meetingID=abc",
			want:    "https://bbb.example.org/bigbluebutton/api/getMeetings?meetingID=abc&checksum=",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := buildURL(tt.baseURL, "secret", "getMeetings", tt.query)
			assert.True(t, len(got) == len(tt.want)+40, "checksum must be a sha1 hex digest: %s", got)
			assert.Equal(t, tt.want, got[:len(tt.want)])
		})
	}
}

func TestParseGetMeetings(t *testing.T) {
	tests := []struct {
		name     string
		body     string
		meetings int
		wantErr  error
		anyErr   bool
	}{
		{name: "Meetings", body: meetingsXML, meetings: 1},
		{
			name:     "No meetings",
			body:     `<response><returncode>SUCCESS</returncode><meetings/><messageKey>noMeetings</messageKey></response>`,
			meetings: 0,
		},
		{
			name:    "Checksum rejected",
			body:    `<response><returncode>FAILED</returncode><messageKey>checksumError</messageKey><message>bad</message></response>`,
			wantErr: ErrRequestFailed,
		},
		{name: "Malformed", body: `<response><returncode>SUCCESS`, anyErr: true},
		{name: "Not XML", body: `Bad Gateway`, anyErr: true},
		{
			name:   "Meeting without id",
			body:   `<response><returncode>SUCCESS</returncode><meetings><meeting><running>true</running></meeting></meetings></response>`,
			anyErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseGetMeetings([]byte(tt.body))
			switch {
			case tt.wantErr != nil:
				require.ErrorIs(t, err, tt.wantErr)
			case tt.anyErr:
				require.Error(t, err)
			default:
				require.NoError(t, err)
				assert.Len(t, got, tt.meetings)
			}
		})
	}
}

func TestMeetingUsage(t *testing.T) {
	meetings, err := parseGetMeetings([]byte(meetingsXML))
	require.NoError(t, err)
	require.Len(t, meetings, 1)

	m := meetings[0]
	assert.Equal(t, "409e94ee-e317-4040-8cb2-8000a289b49d", m.MeetingID)
	assert.Equal(t, "1_99", m.Attendees[0].UserID)
	assert.Equal(t, RoleModerator, m.Attendees[0].Role)
	assert.Equal(t, models.Usage{Participants: 2, Listeners: 1, VoiceParticipants: 1, Videos: 1}, m.Usage())
}

func TestHTTPClientGetMeetings(t *testing.T) {
	server := models.Server{ID: 1, Secret: "secret"}

	t.Run("Success", func(t *testing.T) {
		ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/bigbluebutton/api/getMeetings", r.URL.Path)
			assert.Len(t, r.URL.Query().Get("checksum"), 40)
			_, _ = w.Write([]byte(meetingsXML))
		}))
		defer ts.Close()

		server.BaseURL = ts.URL + "/bigbluebutton/"
		got, err := NewHTTPClient(time.Second).GetMeetings(context.Background(), server)
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Len(t, got[0].Attendees, 2)
	})

	t.Run("Server error", func(t *testing.T) {
		ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadGateway)
		}))
		defer ts.Close()

		server.BaseURL = ts.URL + "/"
		_, err := NewHTTPClient(time.Second).GetMeetings(context.Background(), server)
		require.Error(t, err)
	})

	t.Run("Timeout", func(t *testing.T) {
		release := make(chan struct{})
		ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			select {
			case <-release:
			case <-r.Context().Done():
			}
		}))
		defer ts.Close()
		defer close(release)

		server.BaseURL = ts.URL + "/"
		ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
		defer cancel()
		_, err := NewHTTPClient(time.Second).GetMeetings(ctx, server)
		require.Error(t, err)
		assert.True(t, errors.Is(err, context.DeadlineExceeded))
	})
}
