package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

type Meeting struct {
	bun.BaseModel `bun:"table:meetings,alias:m"`

	ID               uuid.UUID  `bun:",pk,type:uuid"`
	RoomID           string     `bun:",notnull"`
	ServerID         int64      `bun:",notnull"`
	Start            time.Time  `bun:",notnull"`
	End              *time.Time // NULL while the meeting is running
	RecordAttendance bool       `bun:",notnull,default:false"`
	AttendeePW       string     `bun:"attendee_pw,notnull"`
	ModeratorPW      string     `bun:"moderator_pw,notnull"`

	Room   *Room   `bun:"rel:belongs-to,join:room_id=id"`
	Server *Server `bun:"rel:belongs-to,join:server_id=id"`
}

func (m *Meeting) IsRunning() bool {
	return m.End == nil
}

// Finish sets the end time. A meeting that already ended keeps its first end.
func (m *Meeting) Finish(at time.Time) {
	if m.End != nil {
		return
	}
	end := at
	m.End = &end
}
