package models

import (
	"time"

	"github.com/uptrace/bun"
)

type ServerStatus int

const (
	StatusDisabled ServerStatus = -1
	StatusOffline  ServerStatus = 0
	StatusOnline   ServerStatus = 1
)

func (s ServerStatus) String() string {
	switch s {
	case StatusDisabled:
		return "disabled"
	case StatusOffline:
		return "offline"
	case StatusOnline:
		return "online"
	default:
		return "unknown"
	}
}

// ParseServerStatus maps the names used on the command line to a status.
func ParseServerStatus(name string) (ServerStatus, bool) {
	switch name {
	case "disabled":
		return StatusDisabled, true
	case "offline":
		return StatusOffline, true
	case "online":
		return StatusOnline, true
	}
	return 0, false
}

// Usage is one set of live counters as reported by a backend.
type Usage struct {
	Participants      int
	Listeners         int
	VoiceParticipants int
	Videos            int
}

func (u *Usage) Add(o Usage) {
	u.Participants += o.Participants
	u.Listeners += o.Listeners
	u.VoiceParticipants += o.VoiceParticipants
	u.Videos += o.Videos
}

type Server struct {
	bun.BaseModel `bun:"table:servers,alias:s"`

	ID          int64        `bun:",pk,autoincrement"`
	Name        string       `bun:",unique,notnull"`
	Description string
	BaseURL     string       `bun:",unique,notnull"`
	Secret      string       `bun:",notnull"`
	Strength    int          `bun:",notnull,default:1"`
	Status      ServerStatus `bun:",notnull,default:0"`

	// Live counters, NULL unless Status is StatusOnline.
	ParticipantCount      *int
	ListenerCount         *int
	VoiceParticipantCount *int
	VideoCount            *int
	MeetingCount          *int

	CreatedAt time.Time `bun:",nullzero,notnull,default:current_timestamp"`
	UpdatedAt time.Time `bun:",nullzero,notnull,default:current_timestamp"`
}

func (s *Server) IsOnline() bool {
	return s.Status == StatusOnline
}

// HasUsage reports whether the live counters are populated.
func (s *Server) HasUsage() bool {
	return s.ParticipantCount != nil &&
		s.ListenerCount != nil &&
		s.VoiceParticipantCount != nil &&
		s.VideoCount != nil &&
		s.MeetingCount != nil
}

// SetUsage marks the server online and stores the aggregated counters.
func (s *Server) SetUsage(u Usage, meetingCount int) {
	s.Status = StatusOnline
	s.ParticipantCount = intPtr(u.Participants)
	s.ListenerCount = intPtr(u.Listeners)
	s.VoiceParticipantCount = intPtr(u.VoiceParticipants)
	s.VideoCount = intPtr(u.Videos)
	s.MeetingCount = intPtr(meetingCount)
}

// ClearUsage nulls every live counter. It does not touch Status.
func (s *Server) ClearUsage() {
	s.ParticipantCount = nil
	s.ListenerCount = nil
	s.VoiceParticipantCount = nil
	s.VideoCount = nil
	s.MeetingCount = nil
}

// Load is the value the pool selector compares. Missing counters count as zero.
func (s *Server) Load() int {
	return deref(s.ParticipantCount) + deref(s.VideoCount) + deref(s.VoiceParticipantCount)
}

func intPtr(v int) *int {
	return &v
}

func deref(v *int) int {
	if v == nil {
		return 0
	}
	return *v
}
