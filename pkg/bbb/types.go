// Package bbb talks to BigBlueButton-compatible conferencing backends. The
// balancer only needs one call: the list of meetings that are live right now
// together with their attendees.
package bbb

import (
	"context"
	"errors"

	"conference-balancer/pkg/models"
)

// ErrRequestFailed is returned when the backend answers with a FAILED return
// code, e.g. because the checksum was rejected.
var ErrRequestFailed = errors.New("backend request failed")

// Client fetches the live meetings of one server. Any error means the server
// could not attest its state and must be treated as unreachable.
type Client interface {
	GetMeetings(ctx context.Context, server models.Server) ([]Meeting, error)
}

const (
	RoleModerator = "MODERATOR"
	RoleViewer    = "VIEWER"
)

type Attendee struct {
	UserID          string `xml:"userID"`
	FullName        string `xml:"fullName"`
	Role            string `xml:"role"`
	IsPresenter     bool   `xml:"isPresenter"`
	IsListeningOnly bool   `xml:"isListeningOnly"`
	HasJoinedVoice  bool   `xml:"hasJoinedVoice"`
	HasVideo        bool   `xml:"hasVideo"`
	ClientType      string `xml:"clientType"`
}

type Meeting struct {
	MeetingID   string     `xml:"meetingID"`
	MeetingName string     `xml:"meetingName"`
	Running     bool       `xml:"running"`
	Attendees   []Attendee `xml:"attendees>attendee"`
}

// Usage derives the live counters from the attendee list and its markers.
func (m Meeting) Usage() models.Usage {
	u := models.Usage{Participants: len(m.Attendees)}
	for _, a := range m.Attendees {
		if a.IsListeningOnly {
			u.Listeners++
		}
		if a.HasJoinedVoice {
			u.VoiceParticipants++
		}
		if a.HasVideo {
			u.Videos++
		}
	}
	return u
}
