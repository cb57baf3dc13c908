package models

import (
	"time"

	"github.com/uptrace/bun"
)

type Room struct {
	bun.BaseModel `bun:"table:rooms,alias:r"`

	ID           string `bun:",pk"`
	Name         string `bun:",notnull"`
	ServerPoolID int64  `bun:",notnull"`

	// Live counters of the running meeting, NULL while nothing runs or the
	// hosting server is unreachable.
	ParticipantCount      *int
	ListenerCount         *int
	VoiceParticipantCount *int
	VideoCount            *int

	CreatedAt time.Time `bun:",nullzero,notnull,default:current_timestamp"`
	UpdatedAt time.Time `bun:",nullzero,notnull,default:current_timestamp"`
}

func (r *Room) SetUsage(u Usage) {
	r.ParticipantCount = intPtr(u.Participants)
	r.ListenerCount = intPtr(u.Listeners)
	r.VoiceParticipantCount = intPtr(u.VoiceParticipants)
	r.VideoCount = intPtr(u.Videos)
}

func (r *Room) ClearUsage() {
	r.ParticipantCount = nil
	r.ListenerCount = nil
	r.VoiceParticipantCount = nil
	r.VideoCount = nil
}

func (r *Room) HasUsage() bool {
	return r.ParticipantCount != nil
}
