package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// ServerStat is an append-only snapshot of a server's live counters.
type ServerStat struct {
	bun.BaseModel `bun:"table:server_stats,alias:ss"`

	ID                    int64     `bun:",pk,autoincrement"`
	ServerID              int64     `bun:",notnull"`
	ParticipantCount      int       `bun:",notnull"`
	ListenerCount         int       `bun:",notnull"`
	VoiceParticipantCount int       `bun:",notnull"`
	VideoCount            int       `bun:",notnull"`
	MeetingCount          int       `bun:",notnull"`
	CreatedAt             time.Time `bun:",notnull"`
}

// MeetingStat is an append-only snapshot of one meeting's counters.
type MeetingStat struct {
	bun.BaseModel `bun:"table:meeting_stats,alias:ms"`

	ID                    int64     `bun:",pk,autoincrement"`
	MeetingID             uuid.UUID `bun:",notnull,type:uuid"`
	ParticipantCount      int       `bun:",notnull"`
	ListenerCount         int       `bun:",notnull"`
	VoiceParticipantCount int       `bun:",notnull"`
	VideoCount            int       `bun:",notnull"`
	CreatedAt             time.Time `bun:",notnull"`
}
